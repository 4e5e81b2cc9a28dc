package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"resultscraper/lib/resultcache"
	"resultscraper/lib/scrapers/results/tree"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("scrapers/results/crawl")
var meter = otel.Meter("scrapers/results/crawl")

var fetchedCounter, _ = meter.Int64Counter("results.documents.fetched")
var cachedCounter, _ = meter.Int64Counter("results.documents.cached")
var failedPrecinctCounter, _ = meter.Int64Counter("results.precincts.failed")

var ErrMalformedDocument = errors.New("malformed results document")

// Getter fetches raw documents from the results host, `ref` is a url as it
// appears in a results document. *core.Client implements it.
type Getter interface {
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Document describes a cache entry that was just written.
type Document struct {
	File  string
	Level tree.Level
	Url   string
	Size  int
}

// Recorder is notified of every new cache entry.
type Recorder interface {
	Record(ctx context.Context, doc Document) error
}

type delay struct {
	min   time.Duration
	max   time.Duration
	rand  func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

func (d delay) next() time.Duration {
	if d.max <= d.min {
		return d.min
	}
	return d.min + time.Duration(d.rand()*float64(d.max-d.min))
}

func (d delay) wait(ctx context.Context) error {
	return d.sleep(ctx, d.next())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fetcher returns the content of a node, either from the cache or from the
// results host. Network fetches are preceded by a random pause so that the
// crawl looks like someone clicking through the site.
type Fetcher struct {
	store    resultcache.Store
	http     Getter
	delay    delay
	recorder Recorder
	stats    *Stats
}

func newFetcher(store resultcache.Store, http Getter, delayMin, delayMax time.Duration, recorder Recorder, stats *Stats) *Fetcher {
	return &Fetcher{
		store: store,
		http:  http,
		delay: delay{
			min:   delayMin,
			max:   delayMax,
			rand:  rand.Float64,
			sleep: sleepContext,
		},
		recorder: recorder,
		stats:    stats,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, level tree.Level, desc tree.Descriptor, parent tree.Path) (tree.Node, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	file := f.store.EntryPath(parent, desc.Name)
	span.SetAttributes(
		attribute.String("level", level.String()),
		attribute.String("file", file),
	)
	slog.InfoContext(ctx, "attempting to process/download", "path", file)

	body, err := f.store.Read(file)
	if err == nil {
		node, err := tree.ParseNode(body)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cached document is not json")
			return tree.Node{}, fmt.Errorf("%w: cached %s: %w", ErrMalformedDocument, file, err)
		}
		f.stats.Levels[level].Cached++
		cachedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level.String())))
		return node, nil
	}
	if !errors.Is(err, resultcache.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read cache entry")
		return tree.Node{}, err
	}

	err = f.delay.wait(ctx)
	if err != nil {
		return tree.Node{}, err
	}

	body, err = f.http.Get(ctx, desc.Url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch document")
		return tree.Node{}, fmt.Errorf("fetch %s %q: %w", level, desc.Name, err)
	}

	// the body is checked before it is persisted so that a challenge page or
	// an error page never ends up in the cache
	node, err := tree.ParseNode(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetched document is not json")
		return tree.Node{}, fmt.Errorf("%w: %s %s: %w", ErrMalformedDocument, level, desc.Url, err)
	}

	created, err := f.store.Put(ctx, file, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write cache entry")
		return tree.Node{}, err
	}
	f.stats.Levels[level].Fetched++
	fetchedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level.String())))

	if created {
		err = f.record(ctx, Document{File: file, Level: level, Url: desc.Url, Size: len(body)})
		if err != nil {
			return tree.Node{}, err
		}
	}
	return node, nil
}

func (f *Fetcher) record(ctx context.Context, doc Document) error {
	if f.recorder == nil {
		return nil
	}
	err := f.recorder.Record(ctx, doc)
	if err != nil {
		return fmt.Errorf("record %s: %w", doc.File, err)
	}
	return nil
}
