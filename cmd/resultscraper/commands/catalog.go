package commands

import (
	"io"
	"os"
	"resultscraper/lib/catalog"
	"resultscraper/lib/serviceutil"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var catalogDb *string

func init() {
	catalogDb = catalogCmd.Flags().String("db", "catalog.db", "The catalog written by scrape --catalog.")
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog [--db <path/to/catalog.db>]",
	Short: "Prints how many documents have been downloaded per level.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		config := catalog.ParseDSN(*catalogDb)
		if config.File != "" {
			_, err := os.Stat(config.File)
			if err != nil {
				serviceutil.Fatal("failed to open catalog", err)
			}
		}

		cat, err := catalog.Open(cmd.Context(), config)
		if err != nil {
			serviceutil.Fatal("failed to open catalog", err)
		}
		defer cat.Close()

		summaries, err := cat.CountsByLevel(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to read catalog", err)
		}
		renderCatalog(os.Stdout, summaries)
	},
}

func renderCatalog(w io.Writer, summaries []catalog.LevelSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Level", "Documents", "Bytes", "Last fetched"})

	documents := 0
	var bytes int64
	for _, s := range summaries {
		lastFetched := ""
		if !s.LastFetched.IsZero() {
			lastFetched = s.LastFetched.Format(time.DateTime)
		}
		t.AppendRow(table.Row{s.Level.String(), s.Documents, s.Bytes, lastFetched})
		documents += s.Documents
		bytes += s.Bytes
	}
	t.AppendFooter(table.Row{"Total", documents, bytes, ""})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
