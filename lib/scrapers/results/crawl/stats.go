package crawl

import (
	"resultscraper/lib/scrapers/results/tree"
	"time"
)

type LevelCount struct {
	Cached  int
	Fetched int
}

// Stats counts the documents seen by one Scrape call.
type Stats struct {
	Levels [tree.LevelContest + 1]LevelCount

	// precincts whose contest count matched the cache
	PrecinctsComplete int
	// precincts whose contests were downloaded in this run
	PrecinctsCollected int
	// precincts that have not transmitted results yet
	PrecinctsFailed int

	Elapsed time.Duration
}

func (s Stats) Cached() int {
	total := 0
	for _, l := range s.Levels {
		total += l.Cached
	}
	return total
}

func (s Stats) Fetched() int {
	total := 0
	for _, l := range s.Levels {
		total += l.Fetched
	}
	return total
}
