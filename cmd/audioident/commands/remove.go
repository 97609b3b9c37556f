package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MacPhobos/audio-ident-sub000/cmd/audioident/internal/build"
	"github.com/MacPhobos/audio-ident-sub000/pkg/app"
)

var removePurge bool

var removeCmd = &cobra.Command{
	Use:   "remove <track-id>",
	Short: "Remove a track from every store",
	Long: `Remove deletes a track's fingerprints, embeddings, and catalog row.
The archived original stays available for future reindexing unless
--purge is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().BoolVar(&removePurge, "purge", false, "also delete the archived original file")
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	log := newLogger(settings)
	slog.SetDefault(log)

	a, err := app.New(cmd.Context(), settings, build.Version, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Pipeline.Remove(cmd.Context(), args[0], removePurge)
}
