// Package commands implements the audioident command-line interface.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MacPhobos/audio-ident-sub000/pkg/config"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "audioident",
	Short: "Audio identification service and tooling",
	Long: `audioident runs the audio identification service and its
maintenance commands.

The service answers "what track is this?" for short audio clips using
two lanes: exact fingerprint matching for verbatim copies and embedding
similarity for re-recordings, covers, and other sound-alikes.

Examples:

  # Run the HTTP service
  audioident serve

  # Ingest a directory of audio files with four hash workers
  audioident ingest --workers 4 ./music

  # Ingest with tag overrides from a manifest
  audioident ingest --manifest tags.yaml ./music

  # Remove a track and purge its archived original
  audioident remove --purge 4f7b2c1a-...

  # Rebuild every track after an embedding model upgrade
  audioident reindex --all`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")
}

// loadSettings reads the config file (or defaults) and applies the
// --log-level override.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		settings.LogLevel = logLevel
	}
	return settings, nil
}

// newLogger builds the process logger. Logs go to stderr so command
// output on stdout stays machine-readable.
func newLogger(settings *config.Settings) *slog.Logger {
	var level slog.Level
	switch settings.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if logFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
