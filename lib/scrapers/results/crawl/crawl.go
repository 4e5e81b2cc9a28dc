package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"resultscraper/lib/resultcache"
	"resultscraper/lib/scrapers/results/core"
	"resultscraper/lib/scrapers/results/tree"
	"time"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var ErrUnknownRegion = errors.New("unknown region")

// Root is the entry point of the results tree.
var Root = tree.Descriptor{
	Name: "PHILIPPINES",
	Url:  "data/regions/root.json",
}

type Options struct {
	Store resultcache.Store
	Http  Getter
	// pause before every network fetch above the contest level, drawn
	// uniformly from [DelayMin, DelayMax]
	DelayMin time.Duration
	DelayMax time.Duration
	// optional
	Recorder Recorder
}

// Crawler walks the results tree depth first and mirrors every document into
// the cache. It is not safe for concurrent use and assumes it is the only
// process writing to the cache directory.
type Crawler struct {
	store   resultcache.Store
	http    Getter
	fetcher *Fetcher
	stats   *Stats
}

func New(opts Options) (*Crawler, error) {
	if opts.Http == nil {
		return nil, errors.New("http getter required")
	}
	if opts.Store.Base() == "" {
		return nil, errors.New("cache store required")
	}
	if opts.DelayMin < 0 || opts.DelayMax < opts.DelayMin {
		return nil, fmt.Errorf("invalid delay range [%s, %s]", opts.DelayMin, opts.DelayMax)
	}

	stats := &Stats{}
	return &Crawler{
		store:   opts.Store,
		http:    opts.Http,
		fetcher: newFetcher(opts.Store, opts.Http, opts.DelayMin, opts.DelayMax, opts.Recorder, stats),
		stats:   stats,
	}, nil
}

type ScrapeOptions struct {
	// key of a single region in the root's subRegions, empty crawls every region
	Region string
}

// Scrape downloads every document below the root that is not cached yet. The
// returned stats cover this call only.
func (c *Crawler) Scrape(ctx context.Context, opts ScrapeOptions) (Stats, error) {
	ctx, span := tracer.Start(ctx, "Scrape")
	defer span.End()

	*c.stats = Stats{}
	started := time.Now()
	err := c.visit(ctx, tree.LevelRoot, Root, tree.Path{}, opts.Region)
	c.stats.Elapsed = time.Since(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape failed")
	}
	return *c.stats, err
}

func (c *Crawler) visit(ctx context.Context, level tree.Level, desc tree.Descriptor, parent tree.Path, region string) error {
	ctx, span := tracer.Start(ctx, "visit:"+level.String())
	defer span.End()

	node, err := c.fetcher.Fetch(ctx, level, desc, parent)
	if err != nil {
		return err
	}

	name := node.Name
	if name == "" {
		name = desc.Name
	}
	here := parent.Child(name)
	span.SetAttributes(attribute.String("path", here.String()))

	if level == tree.LevelPrecinct {
		return c.collectContests(ctx, node, here)
	}

	children := node.Children()
	if level == tree.LevelRoot && region != "" {
		child, err := selectRegion(node, region)
		if err != nil {
			return err
		}
		children = []tree.Descriptor{child}
	}

	for _, child := range children {
		err := c.visit(ctx, level.Next(), child, here, "")
		if err != nil {
			return err
		}
	}
	return nil
}

func selectRegion(root tree.Node, key string) (tree.Descriptor, error) {
	child, ok := root.SubRegions[key]
	if ok {
		return child, nil
	}

	closest := ""
	best := 0.0
	for _, k := range root.Keys() {
		score := matchr.JaroWinkler(key, k, false)
		if score > best {
			best = score
			closest = k
		}
	}
	if closest == "" {
		return tree.Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownRegion, key)
	}
	return tree.Descriptor{}, fmt.Errorf("%w: %q, did you mean %q?", ErrUnknownRegion, key, closest)
}

// collectContests mirrors the contests of a precinct. The contest file names
// are only known after the contests are downloaded, so the precinct counts as
// complete when it holds as many entries as it lists contests.
func (c *Crawler) collectContests(ctx context.Context, precinct tree.Node, here tree.Path) error {
	ctx, span := tracer.Start(ctx, "collectContests")
	defer span.End()

	dir := c.store.Dir(here)
	count, err := c.store.CountEntries(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count cached contests")
		return err
	}
	span.SetAttributes(
		attribute.Int("cached", count),
		attribute.Int("contests", len(precinct.Contests)),
	)
	if count == len(precinct.Contests) {
		c.stats.PrecinctsComplete++
		c.stats.Levels[tree.LevelContest].Cached += count
		return nil
	}

	for _, contest := range precinct.Contests {
		// no pause here, a browser loads all the contests of a precinct at once
		body, err := c.http.Get(ctx, contest.Url)
		var statusErr *core.StatusError
		if err != nil && !errors.As(err, &statusErr) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch contest")
			return fmt.Errorf("fetch contest %s: %w", contest.Url, err)
		}

		// an error page is as good as a non-json body here
		parsed, parseErr := tree.ParseContest(body)
		if statusErr != nil || parseErr != nil || parsed.Name == "" {
			// the precinct has not transmitted its results yet
			slog.WarnContext(ctx, "FAILED", "dir", dir)
			c.stats.PrecinctsFailed++
			failedPrecinctCounter.Add(ctx, 1)
			return nil
		}

		file := c.store.EntryPath(here, parsed.Name)
		created, err := c.store.Put(ctx, file, body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to write contest")
			return err
		}
		c.stats.Levels[tree.LevelContest].Fetched++
		fetchedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("level", tree.LevelContest.String())))

		if created {
			err = c.fetcher.record(ctx, Document{File: file, Level: tree.LevelContest, Url: contest.Url, Size: len(body)})
			if err != nil {
				return err
			}
		}
	}

	c.stats.PrecinctsCollected++
	return nil
}
