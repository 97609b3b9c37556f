package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alitto/pond"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MacPhobos/audio-ident-sub000/cmd/audioident/internal/build"
	"github.com/MacPhobos/audio-ident-sub000/pkg/app"
	"github.com/MacPhobos/audio-ident-sub000/pkg/catalog"
	"github.com/MacPhobos/audio-ident-sub000/pkg/ingest"
	"github.com/MacPhobos/audio-ident-sub000/pkg/meta"
)

var (
	ingestManifest string
	ingestWorkers  int
	ingestJSON     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [flags] <file-or-dir> [...]",
	Short: "Batch-ingest audio files or directories",
	Long: `Ingest catalogs the given audio files. Directories are walked
recursively; files with unrecognized extensions are skipped during the
walk but ingested when named directly.

Hashing and duplicate lookup run in parallel, the pipeline itself runs
one file at a time because the fingerprint index has a single writer.

A manifest supplies tag overrides for untagged or mistagged files:

  - path: night-drive.mp3
    title: Night Drive
    artist: The Commute`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestManifest, "manifest", "", "YAML file with per-path tag overrides")
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 4, "parallel hash workers for the duplicate pre-scan")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "emit one JSON object per file instead of the summary")
	rootCmd.AddCommand(ingestCmd)
}

// audioExtensions lists the formats picked up when walking a directory.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".webm": true,
	".ogg":  true,
	".mp4":  true,
	".m4a":  true,
	".flac": true,
}

// manifestEntry is one override record in the --manifest file.
type manifestEntry struct {
	Path   string `yaml:"path"`
	Title  string `yaml:"title"`
	Artist string `yaml:"artist"`
	Album  string `yaml:"album"`
	Genre  string `yaml:"genre"`
}

// fileReport is the per-file outcome, printed as JSON with --json and
// aggregated into the summary otherwise.
type fileReport struct {
	Path        string  `json:"path"`
	Status      string  `json:"status"`
	TrackID     string  `json:"track_id,omitempty"`
	Title       string  `json:"title,omitempty"`
	Detail      string  `json:"detail,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
}

// prescan is the parallel phase's verdict for one file.
type prescan struct {
	sha string
	dup *catalog.Track
	err error
}

func runIngest(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no audio files found")
	}

	overrides := map[string]meta.Overrides{}
	if ingestManifest != "" {
		overrides, err = loadManifest(ingestManifest)
		if err != nil {
			return err
		}
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

	// Hash everything up front so byte-identical files are reported as
	// duplicates without ever taking the pipeline lock. Each task writes
	// only its own slot.
	workers := ingestWorkers
	if workers < 1 {
		workers = 1
	}
	scans := make([]prescan, len(files))
	pool := pond.New(workers, len(files))
	for i, path := range files {
		pool.Submit(func() {
			sha, err := hashFile(path)
			if err != nil {
				scans[i].err = err
				return
			}
			scans[i].sha = sha
			t, err := a.Catalog.FindByHash(ctx, sha)
			if err == nil {
				scans[i].dup = t
				return
			}
			if !errors.Is(err, catalog.ErrNotFound) {
				scans[i].err = err
			}
		})
	}
	pool.StopAndWait()

	reports := make([]fileReport, 0, len(files))
	for i, path := range files {
		log.Info("ingesting", "file", path, "progress", fmt.Sprintf("[%d/%d]", i+1, len(files)))

		var r fileReport
		switch s := scans[i]; {
		case s.err != nil:
			r = fileReport{Path: path, Status: "error", Detail: s.err.Error()}
		case s.dup != nil:
			r = fileReport{Path: path, Status: "duplicate", TrackID: s.dup.ID, Title: s.dup.Title, Detail: "sha256"}
		default:
			r, err = ingestFile(cmd, a, path, overrideFor(overrides, path))
			if err != nil {
				return err
			}
		}

		reports = append(reports, r)
		if ingestJSON {
			line, err := json.Marshal(r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(line))
		}
	}

	if !ingestJSON {
		fmt.Fprint(cmd.OutOrStdout(), renderSummary(reports))
	}
	if n := countStatus(reports, "error"); n > 0 {
		return fmt.Errorf("%d of %d files failed", n, len(reports))
	}
	return nil
}

func ingestFile(cmd *cobra.Command, a *app.App, path string, over meta.Overrides) (fileReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileReport{Path: path, Status: "error", Detail: err.Error()}, nil
	}
	res, err := a.Pipeline.IngestTagged(cmd.Context(), filepath.Base(path), data, over)
	if err != nil {
		// Only the context can fail the lock wait; abort the batch.
		return fileReport{}, err
	}
	return reportFor(path, res), nil
}

func reportFor(path string, res ingest.Result) fileReport {
	r := fileReport{Path: path}
	switch v := res.(type) {
	case ingest.Ingested:
		r.Status = "ingested"
		r.TrackID = v.TrackID
		r.Title = v.Title
		r.DurationSec = v.DurationSec
	case ingest.Duplicate:
		r.Status = "duplicate"
		r.TrackID = v.TrackID
		r.Title = v.Title
		r.Detail = v.Via
	case ingest.Skipped:
		r.Status = "skipped"
		r.Detail = v.Reason
		r.DurationSec = v.DurationSec
	case ingest.Errored:
		r.Status = "error"
		r.Detail = v.Message
	}
	return r
}

// collectFiles expands the command-line arguments into a sorted list of
// audio files. Directories are walked recursively with the extension
// filter; explicitly named files are taken as-is.
func collectFiles(args []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	add := func(path string) {
		path = filepath.Clean(path)
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && audioExtensions[strings.ToLower(filepath.Ext(path))] {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

// loadManifest parses the override file into a lookup keyed by cleaned
// path. Lookups fall back to the base name so a manifest written next
// to the files keeps working when the batch is invoked from elsewhere.
func loadManifest(path string) (map[string]meta.Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []manifestEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	m := make(map[string]meta.Overrides, len(entries))
	for _, e := range entries {
		if e.Path == "" {
			return nil, fmt.Errorf("manifest %s: entry without path", path)
		}
		m[filepath.Clean(e.Path)] = meta.Overrides{
			Title:  e.Title,
			Artist: e.Artist,
			Album:  e.Album,
			Genre:  e.Genre,
		}
	}
	return m, nil
}

func overrideFor(m map[string]meta.Overrides, path string) meta.Overrides {
	if o, ok := m[filepath.Clean(path)]; ok {
		return o
	}
	return m[filepath.Base(path)]
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func countStatus(reports []fileReport, status string) int {
	n := 0
	for _, r := range reports {
		if r.Status == status {
			n++
		}
	}
	return n
}
