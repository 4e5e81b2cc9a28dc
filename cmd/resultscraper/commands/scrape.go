package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"resultscraper/lib/catalog"
	"resultscraper/lib/configutil"
	"resultscraper/lib/restyutil"
	"resultscraper/lib/resultcache"
	"resultscraper/lib/scrapers/results/core"
	"resultscraper/lib/scrapers/results/crawl"
	"resultscraper/lib/scrapers/results/tree"
	"resultscraper/lib/serviceutil"
	"resultscraper/lib/telemetry"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Config is the content of resultscraper.json5, flags set on the command
// line take precedence.
type Config struct {
	BaseDir string `json:"basedir"`
	BaseUrl string `json:"base_url"`
	Region  string `json:"region"`
	// go duration strings, ex. "1500ms"
	DelayMin string         `json:"delay_min"`
	DelayMax string         `json:"delay_max"`
	Catalog  catalog.Config `json:"catalog"`
	DumpHttp string         `json:"dump_http"`
}

type scrapeSettings struct {
	BaseDir  string
	BaseUrl  string
	Region   string
	DelayMin time.Duration
	DelayMax time.Duration
	Catalog  catalog.Config
	DumpHttp string
}

func init() {
	addScrapeFlags(scrapeCmd.Flags())
	rootCmd.AddCommand(scrapeCmd)
}

func addScrapeFlags(flags *pflag.FlagSet) {
	flags.StringP("basedir", "b", "data", "The directory the results tree is mirrored into.")
	flags.StringP("region", "r", "", "Only crawl the region with this key, ex. REGION_III.")
	flags.Duration("delay-min", time.Second, "Minimum pause before each document download.")
	flags.Duration("delay-max", 3*time.Second, "Maximum pause before each document download.")
	flags.String("base-url", core.DefaultBaseUrl, "The results host.")
	flags.String("catalog", "", "Record downloaded documents in this sqlite file or libsql:// database.")
	flags.String("dump-http", "", "Write a transcript of every http exchange into this directory.")
	flags.String("config", "", "Read settings from this file instead of searching for resultscraper.json5.")
}

func resolveScrapeSettings(flags *pflag.FlagSet) (scrapeSettings, error) {
	configPath, err := flags.GetString("config")
	if err != nil {
		return scrapeSettings{}, err
	}
	cfg, err := configutil.Find[Config](configPath, "resultscraper", "resultscraper.json5")
	if os.IsNotExist(err) && configPath == "" {
		cfg = Config{}
	} else if err != nil {
		return scrapeSettings{}, fmt.Errorf("read config: %w", err)
	}

	settings := scrapeSettings{
		BaseDir:  cfg.BaseDir,
		BaseUrl:  cfg.BaseUrl,
		Region:   cfg.Region,
		Catalog:  cfg.Catalog,
		DumpHttp: cfg.DumpHttp,
	}
	if cfg.DelayMin != "" {
		settings.DelayMin, err = time.ParseDuration(cfg.DelayMin)
		if err != nil {
			return scrapeSettings{}, fmt.Errorf("delay_min: %w", err)
		}
	}
	if cfg.DelayMax != "" {
		settings.DelayMax, err = time.ParseDuration(cfg.DelayMax)
		if err != nil {
			return scrapeSettings{}, fmt.Errorf("delay_max: %w", err)
		}
	}

	// a flag wins if it was given or if the config left the setting empty
	useFlag := func(name string, empty bool) bool {
		return flags.Changed(name) || empty
	}
	if useFlag("basedir", settings.BaseDir == "") {
		settings.BaseDir, _ = flags.GetString("basedir")
	}
	if useFlag("base-url", settings.BaseUrl == "") {
		settings.BaseUrl, _ = flags.GetString("base-url")
	}
	if useFlag("region", settings.Region == "") {
		settings.Region, _ = flags.GetString("region")
	}
	if useFlag("delay-min", cfg.DelayMin == "") {
		settings.DelayMin, _ = flags.GetDuration("delay-min")
	}
	if useFlag("delay-max", cfg.DelayMax == "") {
		settings.DelayMax, _ = flags.GetDuration("delay-max")
	}
	if flags.Changed("catalog") {
		dsn, _ := flags.GetString("catalog")
		settings.Catalog = catalog.ParseDSN(dsn)
	}
	if useFlag("dump-http", settings.DumpHttp == "") {
		settings.DumpHttp, _ = flags.GetString("dump-http")
	}
	return settings, nil
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--basedir <dir>] [--region <key>]",
	Short: "Downloads every results document that is not cached yet.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := resolveScrapeSettings(cmd.Flags())
		if err != nil {
			serviceutil.Fatal("invalid settings", err)
		}
		err = runScrape(settings, os.Stdout)
		if err != nil {
			serviceutil.Fatal("scrape failed", err)
		}
	},
}

// runScrape returns instead of exiting so that telemetry of a failed run is
// flushed before the process ends.
func runScrape(settings scrapeSettings, out io.Writer) error {
	ctx, cancel := serviceutil.SignalContext()
	defer cancel()

	tel, err := telemetry.SetupFromEnv(ctx, "resultscraper")
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := tel.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}()
	if tel.Enabled() {
		telemetry.InstrumentPerfStats(ctx, 10*time.Second)
	}

	stats, err := scrape(ctx, settings)
	renderStats(out, stats)
	return err
}

func scrape(ctx context.Context, settings scrapeSettings) (crawl.Stats, error) {
	client, err := core.NewClient(core.ClientOptions{BaseUrl: settings.BaseUrl})
	if err != nil {
		return crawl.Stats{}, fmt.Errorf("create client: %w", err)
	}
	var transcripts restyutil.TranscriptOutput
	if settings.DumpHttp != "" {
		output, err := restyutil.NewFilesystemOutput(settings.DumpHttp)
		if err != nil {
			return crawl.Stats{}, fmt.Errorf("create http dump dir: %w", err)
		}
		transcripts = output
		slog.Info("dumping http transcripts", "dir", output.Directory())
	}
	restyutil.InstrumentClient(client.Http, transcripts)

	store, err := resultcache.NewStore(settings.BaseDir)
	if err != nil {
		return crawl.Stats{}, err
	}

	opts := crawl.Options{
		Store:    store,
		Http:     client,
		DelayMin: settings.DelayMin,
		DelayMax: settings.DelayMax,
	}
	if settings.Catalog != (catalog.Config{}) {
		cat, err := catalog.Open(ctx, settings.Catalog)
		if err != nil {
			return crawl.Stats{}, err
		}
		defer cat.Close()
		opts.Recorder = cat
	}

	crawler, err := crawl.New(opts)
	if err != nil {
		return crawl.Stats{}, err
	}

	slog.Info(
		"scraping results",
		"basedir", store.Base(),
		"base_url", client.BaseUrl.String(),
		"region", settings.Region,
	)
	stats, err := crawler.Scrape(ctx, crawl.ScrapeOptions{Region: settings.Region})
	slog.Info("scraping time", "seconds", stats.Elapsed.Seconds())
	return stats, err
}

func renderStats(w io.Writer, stats crawl.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Level", "Cached", "Fetched"})
	for i, count := range stats.Levels {
		t.AppendRow(table.Row{tree.Level(i).String(), count.Cached, count.Fetched})
	}
	t.AppendFooter(table.Row{"Total", stats.Cached(), stats.Fetched()})
	t.SetStyle(table.StyleRounded)
	t.Render()

	p := table.NewWriter()
	p.SetOutputMirror(w)
	p.AppendHeader(table.Row{"Precincts", "Count"})
	p.AppendRows([]table.Row{
		{"complete", stats.PrecinctsComplete},
		{"collected", stats.PrecinctsCollected},
		{"not reporting", stats.PrecinctsFailed},
	})
	p.SetStyle(table.StyleRounded)
	p.Render()
}
