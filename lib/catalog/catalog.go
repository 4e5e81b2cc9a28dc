package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"resultscraper/lib/scrapers/results/crawl"
	"resultscraper/lib/scrapers/results/tree"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("catalog")

//go:embed schema.sql
var Schema string

// Catalog keeps a row per cache entry written by a crawl so that progress
// can be inspected without walking the cache directory.
type Catalog struct {
	db  *sql.DB
	now func() time.Time
}

func Open(ctx context.Context, config Config) (*Catalog, error) {
	db, err := config.OpenDB()
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if !config.remote() {
		// sqlite only supports one writer
		db.SetMaxOpenConns(1)
		_, err = db.ExecContext(ctx, "pragma journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	_, err = db.ExecContext(ctx, Schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog tables: %w", err)
	}
	return &Catalog{db: db, now: time.Now}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record implements crawl.Recorder.
func (c *Catalog) Record(ctx context.Context, doc crawl.Document) error {
	ctx, span := tracer.Start(ctx, "Record")
	defer span.End()
	span.SetAttributes(attribute.String("file", doc.File))

	_, err := c.db.ExecContext(
		ctx,
		`insert into documents(file, level, url, size, fetched_at)
		values (?, ?, ?, ?, ?)
		on conflict(file) do update set
			level = excluded.level,
			url = excluded.url,
			size = excluded.size,
			fetched_at = excluded.fetched_at`,
		doc.File, int(doc.Level), doc.Url, doc.Size, c.now().Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert document")
		return err
	}
	return nil
}

type LevelSummary struct {
	Level     tree.Level
	Documents int
	Bytes     int64
	// zero if no documents
	LastFetched time.Time
}

// CountsByLevel summarizes the catalog per level of the results tree,
// levels without documents are left out.
func (c *Catalog) CountsByLevel(ctx context.Context) ([]LevelSummary, error) {
	ctx, span := tracer.Start(ctx, "CountsByLevel")
	defer span.End()

	rows, err := c.db.QueryContext(
		ctx,
		`select level, count(*), coalesce(sum(size), 0), coalesce(max(fetched_at), 0)
		from documents
		group by level
		order by level`,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query documents")
		return nil, err
	}
	defer rows.Close()

	var out []LevelSummary
	for rows.Next() {
		var level int
		var summary LevelSummary
		var lastFetched int64
		err := rows.Scan(&level, &summary.Documents, &summary.Bytes, &lastFetched)
		if err != nil {
			return nil, err
		}
		summary.Level = tree.Level(level)
		if lastFetched > 0 {
			summary.LastFetched = time.Unix(lastFetched, 0)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}
