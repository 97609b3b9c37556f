package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MacPhobos/audio-ident-sub000/pkg/catalog"
	"github.com/MacPhobos/audio-ident-sub000/pkg/cli"
)

var (
	tracksSearch string
	tracksPage   int
	tracksJSON   bool
)

var tracksCmd = &cobra.Command{
	Use:   "tracks",
	Short: "List cataloged tracks",
	Long: `Tracks lists the catalog one page at a time, newest last. It only
opens the catalog database, so it works while the service is running
and without the external tools installed.`,
	RunE: runTracks,
}

func init() {
	tracksCmd.Flags().StringVar(&tracksSearch, "search", "", "filter by title or artist substring")
	tracksCmd.Flags().IntVar(&tracksPage, "page", 1, "page number")
	tracksCmd.Flags().BoolVar(&tracksJSON, "json", false, "emit JSON instead of the table")
	rootCmd.AddCommand(tracksCmd)
}

func runTracks(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	cat, err := catalog.Open(settings.SQLitePath())
	if err != nil {
		return err
	}
	defer cat.Close()

	const pageSize = 50
	tracks, total, err := cat.List(cmd.Context(), tracksPage, pageSize, tracksSearch)
	if err != nil {
		return err
	}

	if tracksJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
			"tracks": tracks,
			"total":  total,
			"page":   tracksPage,
		})
	}

	styles := cli.NewStyles(cli.DefaultTheme)
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %d tracks (page %d)\n", styles.Title.Render("catalog"), total, tracksPage)
	for _, t := range tracks {
		title := t.Title
		if t.Artist != "" {
			title = t.Artist + " - " + title
		}
		fmt.Fprintf(w, "%s  %-40s %8s %10s  %s\n",
			t.ID, title,
			cli.FormatSeconds(t.DurationSec),
			cli.FormatBytes(t.SizeBytes),
			styles.Dim.Render(t.SourceFormat))
	}
	return nil
}
