package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"resultscraper/lib/telemetry"

	"github.com/spf13/cobra"
)

var verbose *bool
var logFile *string

var logCloser io.Closer

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages, including a line per http request.")
	logFile = rootCmd.PersistentFlags().String("log-file", "", "Write logs to a size-rotated file instead of stderr.")
}

var rootCmd = &cobra.Command{
	Use:   "resultscraper",
	Short: "resultscraper mirrors the 2016 Philippine election results into a local cache.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		closer, err := telemetry.InitSlog(telemetry.LogOptions{
			Verbose: *verbose,
			File:    *logFile,
		})
		if err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		logCloser = closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
	SilenceUsage: true,
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
