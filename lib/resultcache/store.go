package resultcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"resultscraper/lib/scrapers/results/tree"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("resultcache")

var ErrNotFound = errors.New("cache entry not found")

// Store is the on-disk cache of results documents. The layout is
//
//	<base>/<sanitized ancestor>/.../<sanitized name>.json
//
// and the existence of a file is the only signal that a document was fetched.
// Entries are written once and never modified afterwards.
type Store struct {
	base string
}

func NewStore(base string) (Store, error) {
	if base == "" {
		return Store{}, errors.New("cache directory required")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return Store{}, fmt.Errorf("resolve cache directory: %w", err)
	}
	return Store{base: abs}, nil
}

func (s Store) Base() string {
	return s.base
}

// EntryPath is the cache file of the node called `name` below `parent`.
func (s Store) EntryPath(parent tree.Path, name string) string {
	return parent.File(s.base, name)
}

// Dir is the directory that holds the entries of `p`'s children.
func (s Store) Dir(p tree.Path) string {
	return p.Dir(s.base)
}

func (s Store) Exists(file string) (bool, error) {
	info, err := os.Stat(file)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (s Store) Read(file string) ([]byte, error) {
	body, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return body, err
}

// Put writes `body` to `file` unless an entry is already there, the returned
// bool reports whether a new entry was created. The body is written to a
// temporary file in the same directory and renamed into place so an
// interrupted write never leaves a partial entry behind.
func (s Store) Put(ctx context.Context, file string, body []byte) (bool, error) {
	ctx, span := tracer.Start(ctx, "Put")
	defer span.End()
	span.SetAttributes(attribute.String("file", file))

	if err := ctx.Err(); err != nil {
		return false, err
	}

	exists, err := s.Exists(file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to stat entry")
		return false, err
	}
	if exists {
		return false, nil
	}

	dir := filepath.Dir(file)
	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create entry directory")
		return false, err
	}

	temp, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create temp file")
		return false, err
	}
	tempName := temp.Name()

	_, err = temp.Write(body)
	closeErr := temp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write temp file")
		return false, err
	}

	err = os.Rename(tempName, file)
	if err != nil {
		os.Remove(tempName)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to move entry into place")
		return false, err
	}
	return true, nil
}

// CountEntries counts the .json entries directly inside `dir`, hidden files
// are skipped and a missing directory holds zero entries.
func (s Store) CountEntries(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if filepath.Ext(e.Name()) == ".json" {
			count++
		}
	}
	return count, nil
}
