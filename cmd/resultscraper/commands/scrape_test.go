package commands

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"resultscraper/lib/catalog"
	"resultscraper/lib/scrapers/results/core"
	"resultscraper/lib/scrapers/results/crawl"
	"resultscraper/lib/scrapers/results/tree"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func parseScrapeFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("scrape", pflag.ContinueOnError)
	addScrapeFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resultscraper.json5")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestScrapeSettingsFromConfig(t *testing.T) {
	path := writeConfig(t, `{
		// mirror used during testing
		basedir: "/srv/results",
		base_url: "http://mirror.local",
		delay_min: "500ms",
		delay_max: "2s",
		catalog: {file: "/srv/catalog.db"},
	}`)

	settings, err := resolveScrapeSettings(parseScrapeFlags(t, "--config", path, "-r", "REGION_III"))
	require.NoError(t, err)

	expected := scrapeSettings{
		BaseDir:  "/srv/results",
		BaseUrl:  "http://mirror.local",
		Region:   "REGION_III",
		DelayMin: 500 * time.Millisecond,
		DelayMax: 2 * time.Second,
		Catalog:  catalog.Config{File: "/srv/catalog.db"},
	}
	if diff := cmp.Diff(expected, settings); diff != "" {
		t.Fatal(diff)
	}
}

func TestScrapeSettingsFlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, `{basedir: "/srv/results", delay_max: "10s"}`)

	settings, err := resolveScrapeSettings(parseScrapeFlags(
		t,
		"--config", path,
		"-b", "elsewhere",
		"--delay-max", "4s",
		"--catalog", "libsql://results.example.com",
	))
	require.NoError(t, err)
	require.Equal(t, "elsewhere", settings.BaseDir)
	require.Equal(t, 4*time.Second, settings.DelayMax)
	require.Equal(t, time.Second, settings.DelayMin)
	require.Equal(t, catalog.Config{Url: "libsql://results.example.com"}, settings.Catalog)
}

func TestScrapeSettingsMissingExplicitConfig(t *testing.T) {
	_, err := resolveScrapeSettings(parseScrapeFlags(t, "--config", filepath.Join(t.TempDir(), "missing.json5")))
	require.Error(t, err)
}

func TestScrapeSettingsBadDuration(t *testing.T) {
	path := writeConfig(t, `{delay_min: "soon"}`)
	_, err := resolveScrapeSettings(parseScrapeFlags(t, "--config", path))
	require.Error(t, err)
}

func TestRenderStats(t *testing.T) {
	var stats crawl.Stats
	stats.Levels[tree.LevelRoot] = crawl.LevelCount{Cached: 1}
	stats.Levels[tree.LevelContest] = crawl.LevelCount{Fetched: 8}
	stats.PrecinctsFailed = 2

	var out bytes.Buffer
	renderStats(&out, stats)
	require.Contains(t, out.String(), "contest")
	require.Contains(t, out.String(), "not reporting")
}

func TestRenderCatalog(t *testing.T) {
	var out bytes.Buffer
	renderCatalog(&out, []catalog.LevelSummary{
		{Level: tree.LevelRegion, Documents: 17, Bytes: 2048, LastFetched: time.Unix(1462800000, 0)},
	})
	require.Contains(t, out.String(), "region")
	require.Contains(t, out.String(), "2048")
}

func TestRunScrapeWithHttpDump(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/regions/root.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"name": "PHILIPPINES", "subRegions": {}}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	settings := scrapeSettings{
		BaseDir:  filepath.Join(dir, "data"),
		BaseUrl:  server.URL,
		DumpHttp: filepath.Join(dir, "http"),
	}

	var out bytes.Buffer
	require.NoError(t, runScrape(settings, &out))
	require.Contains(t, out.String(), "root")

	_, err := os.Stat(filepath.Join(dir, "data", "PHILIPPINES.json"))
	require.NoError(t, err)
	transcript, err := os.ReadFile(filepath.Join(dir, "http", "1.txt"))
	require.NoError(t, err)
	require.Contains(t, string(transcript), "/data/regions/root.json")
}

func TestRunScrapeReturnsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	settings := scrapeSettings{
		BaseDir: filepath.Join(t.TempDir(), "data"),
		BaseUrl: server.URL,
	}

	var out bytes.Buffer
	err := runScrape(settings, &out)
	var statusErr *core.StatusError
	require.True(t, errors.As(err, &statusErr), "expected a status error, got %v", err)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Status)
	// stats are still printed for a failed run
	require.Contains(t, out.String(), "not reporting")
}
