package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitSlogToFile(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	file := filepath.Join(t.TempDir(), "logs", "scrape.log")
	closer, err := InitSlog(LogOptions{Verbose: true, File: file})
	require.NoError(t, err)

	slog.Debug("attempting to process/download", "path", "data/PHILIPPINES.json")
	require.NoError(t, closer.Close())

	contents, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(contents), "attempting to process/download")
	require.Contains(t, string(contents), "data/PHILIPPINES.json")
}

func TestInitSlogLevel(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	closer, err := InitSlog(LogOptions{})
	require.NoError(t, err)
	defer closer.Close()

	require.False(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
	require.True(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
}

func TestDisabledTelemetryShutdown(t *testing.T) {
	var tel Telemetry
	require.False(t, tel.Enabled())
	require.NoError(t, tel.Shutdown(context.Background()))
}
