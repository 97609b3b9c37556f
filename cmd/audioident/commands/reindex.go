package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MacPhobos/audio-ident-sub000/cmd/audioident/internal/build"
	"github.com/MacPhobos/audio-ident-sub000/pkg/app"
)

var reindexAll bool

var reindexCmd = &cobra.Command{
	Use:   "reindex [track-id]",
	Short: "Rebuild a track's fingerprints and embeddings",
	Long: `Reindex re-decodes a track's archived original and rebuilds its
fingerprints and embeddings from scratch. With --all every cataloged
track is rebuilt, which is the upgrade path after changing the
embedding model.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexAll, "all", false, "reindex every track in the catalog")
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	if reindexAll == (len(args) == 1) {
		return errors.New("pass a track id or --all, not both")
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	log := newLogger(settings)
	slog.SetDefault(log)

	ctx := cmd.Context()
	a, err := app.New(ctx, settings, build.Version, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if !reindexAll {
		return a.Pipeline.Reindex(ctx, args[0])
	}

	const pageSize = 100
	done := 0
	for page := 1; ; page++ {
		tracks, total, err := a.Catalog.List(ctx, page, pageSize, "")
		if err != nil {
			return err
		}
		if len(tracks) == 0 {
			break
		}
		for _, t := range tracks {
			if err := a.Pipeline.Reindex(ctx, t.ID); err != nil {
				return fmt.Errorf("reindex %s after %d of %d: %w", t.ID, done, total, err)
			}
			done++
		}
		if len(tracks) < pageSize {
			break
		}
	}
	log.Info("reindex complete", "tracks", done)
	return nil
}
