// Package app assembles the service from settings and tears it down again.
//
// New builds each dependency in a fixed order and probes every external
// system (ffmpeg, catalog, vector store, fingerprint index) as it goes, so
// a broken deployment fails at startup with one precise error instead of
// on the first request. Close releases everything in reverse.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/MacPhobos/audio-ident-sub000/pkg/catalog"
	"github.com/MacPhobos/audio-ident-sub000/pkg/config"
	"github.com/MacPhobos/audio-ident-sub000/pkg/decode"
	"github.com/MacPhobos/audio-ident-sub000/pkg/dedup"
	"github.com/MacPhobos/audio-ident-sub000/pkg/embedding"
	"github.com/MacPhobos/audio-ident-sub000/pkg/httpapi"
	"github.com/MacPhobos/audio-ident-sub000/pkg/ingest"
	"github.com/MacPhobos/audio-ident-sub000/pkg/journal"
	"github.com/MacPhobos/audio-ident-sub000/pkg/olaf"
	"github.com/MacPhobos/audio-ident-sub000/pkg/rawstore"
	"github.com/MacPhobos/audio-ident-sub000/pkg/search"
	"github.com/MacPhobos/audio-ident-sub000/pkg/vecstore"
)

// warmupWarnAfter is the model warm-up time above which startup logs a
// warning instead of an info line.
const warmupWarnAfter = 5 * time.Second

// memoryBackend selects the in-process vector store instead of Qdrant.
const memoryBackend = "memory"

// App holds every long-lived handle the service runs on. Fields are
// exported so CLI commands can drive individual subsystems directly.
type App struct {
	Settings *config.Settings
	Log      *slog.Logger

	Decoder  *decode.Decoder
	Catalog  *catalog.Catalog
	Vectors  vecstore.Store
	Index    *olaf.Index
	Chroma   *dedup.Chromaprint
	Journal  *journal.Journal
	Embedder *embedding.Engine
	Raw      *rawstore.Store
	Pipeline *ingest.Pipeline
	Searcher *search.Orchestrator
	Server   *httpapi.Server

	owned bool
}

// New builds the full stack described by settings. version is the build
// version reported by the HTTP API. On error, everything already opened
// is closed before returning.
func New(ctx context.Context, settings *config.Settings, version string, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Settings: settings, Log: log}

	a.Decoder = decode.New(settings.FFmpegBin)
	ffver, err := a.Decoder.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: ffmpeg probe: %w", err)
	}
	log.Info("ffmpeg ready", "bin", settings.FFmpegBin, "version", ffver)

	if a.Catalog, err = catalog.Open(settings.SQLitePath()); err != nil {
		return nil, a.failStartup("open catalog", err)
	}
	if err := a.Catalog.Ping(ctx); err != nil {
		return nil, a.failStartup("catalog ping", err)
	}
	log.Info("catalog ready", "path", settings.SQLitePath())

	if a.Vectors, err = openVectors(settings); err != nil {
		return nil, a.failStartup("open vector store", err)
	}
	if err := a.Vectors.Ping(ctx); err != nil {
		return nil, a.failStartup("vector store ping", err)
	}
	log.Info("vector store ready", "backend", vectorBackend(settings))

	a.Index = olaf.New(settings.OlafBin, settings.OlafDBDir)
	if err := a.Index.CheckBinary(); err != nil {
		return nil, a.failStartup("fingerprint index", err)
	}
	if err := a.Index.AcquireOwnership(); err != nil {
		return nil, a.failStartup("fingerprint index", err)
	}
	a.owned = true
	log.Info("fingerprint index ready", "bin", settings.OlafBin, "db_dir", settings.OlafDBDir)

	if a.Journal, err = journal.Open(journal.Options{
		Dir: filepath.Join(settings.StorageRoot, "journal"),
		Log: log,
	}); err != nil {
		return nil, a.failStartup("open journal", err)
	}

	model, err := openModel(ctx, settings, log)
	if err != nil {
		return nil, a.failStartup("embedding model", err)
	}
	a.Embedder = embedding.NewEngine(model, settings.EmbedConcurrency)
	elapsed, err := a.Embedder.Warmup(ctx)
	if err != nil {
		return nil, a.failStartup("model warm-up", err)
	}
	if elapsed > warmupWarnAfter {
		log.Warn("model warm-up slow", "model", a.Embedder.ModelName(), "elapsed", elapsed)
	} else {
		log.Info("model ready", "model", a.Embedder.ModelName(),
			"dim", a.Embedder.Dimension(), "warmup", elapsed)
	}

	blob, err := openBlob(settings)
	if err != nil {
		return nil, a.failStartup("open raw store", err)
	}
	a.Raw = rawstore.NewStore(blob)

	a.Chroma = dedup.New(settings.FpcalcBin)

	if a.Pipeline, err = ingest.New(ingest.Config{
		Decoder:      a.Decoder,
		Chromaprint:  a.Chroma,
		Catalog:      a.Catalog,
		Fingerprints: a.Index,
		Embedder:     a.Embedder,
		Vectors:      a.Vectors,
		Raw:          a.Raw,
		Journal:      a.Journal,
		Locker:       ingest.NewLocker(),
		DupThreshold: settings.DupSimilarityThreshold,
		Log:          log,
	}); err != nil {
		return nil, a.failStartup("ingest pipeline", err)
	}
	if err := a.Pipeline.RecoverPending(ctx); err != nil {
		return nil, a.failStartup("journal recovery", err)
	}

	exact := search.NewExactLane(a.Index, a.Catalog, log)
	vibe := search.NewVibeLane(a.Embedder, a.Vectors, a.Catalog, settings.VibeMatchThreshold, log)
	a.Searcher = search.NewOrchestrator(exact, vibe, search.Budget{
		Exact: settings.ExactLaneTimeout,
		Vibe:  settings.VibeLaneTimeout,
		Total: settings.TotalRequestTimeout,
	}, settings.ExactTrustThreshold, log)

	if a.Server, err = httpapi.NewServer(httpapi.Config{
		Addr:     settings.Addr(),
		AdminKey: settings.AdminKey,
		Version:  version,
		Log:      log,
	}, httpapi.Deps{
		Searcher: a.Searcher,
		Decoder:  a.Decoder,
		Ingester: a.Pipeline,
		Tracks:   a.Catalog,
		Blobs:    a.Raw,
	}); err != nil {
		return nil, a.failStartup("http server", err)
	}

	return a, nil
}

// Close tears the stack down in reverse construction order. The HTTP
// server is not touched; callers shut it down before closing the App.
func (a *App) Close() error {
	var errs []error
	if a.Embedder != nil {
		if err := a.Embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close model: %w", err))
		}
	}
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close journal: %w", err))
		}
	}
	if a.owned {
		if err := a.Index.ReleaseOwnership(); err != nil {
			errs = append(errs, fmt.Errorf("app: release index: %w", err))
		}
	}
	if a.Vectors != nil {
		if err := a.Vectors.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close vector store: %w", err))
		}
	}
	if a.Catalog != nil {
		if err := a.Catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close catalog: %w", err))
		}
	}
	return errors.Join(errs...)
}

// failStartup closes the partially built stack and wraps err with the
// failing step.
func (a *App) failStartup(step string, err error) error {
	if cerr := a.Close(); cerr != nil {
		a.Log.Warn("startup cleanup failed", "error", cerr)
	}
	return fmt.Errorf("app: %s: %w", step, err)
}

func vectorBackend(settings *config.Settings) string {
	if settings.QdrantURL == memoryBackend {
		return memoryBackend
	}
	return "qdrant"
}

func openVectors(settings *config.Settings) (vecstore.Store, error) {
	if settings.QdrantURL == memoryBackend {
		return vecstore.NewMemory(), nil
	}
	return vecstore.NewQdrant(vecstore.QdrantConfig{
		URL:        settings.QdrantURL,
		APIKey:     settings.QdrantAPIKey,
		Collection: settings.QdrantCollection,
	})
}

// openModel picks the embedding backend: an external runner process when
// one is configured, the in-process filterbank model otherwise.
func openModel(ctx context.Context, settings *config.Settings, log *slog.Logger) (embedding.Model, error) {
	if settings.EmbedRunner != "" {
		return embedding.NewRunner(ctx, settings.EmbedRunner, settings.EmbedModel, settings.EmbedDim, log)
	}
	return embedding.NewStatic(settings.EmbedModel, settings.EmbedDim), nil
}

func openBlob(settings *config.Settings) (rawstore.Blob, error) {
	switch settings.StorageBackend {
	case "s3":
		return rawstore.NewS3(s3Client(settings), settings.S3Bucket, settings.S3Prefix), nil
	default:
		return rawstore.NewLocal(settings.StorageRoot)
	}
}

// s3Client builds a client for AWS or any S3-compatible endpoint (MinIO,
// R2). Path-style addressing keeps bucket names out of DNS, which the
// compatible stores require.
func s3Client(settings *config.Settings) *s3.Client {
	opts := s3.Options{
		Region:       settings.S3Region,
		UsePathStyle: true,
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if settings.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(settings.S3Endpoint)
	}
	if settings.S3AccessKey != "" {
		key, secret := settings.S3AccessKey, settings.S3SecretKey
		opts.Credentials = aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{AccessKeyID: key, SecretAccessKey: secret}, nil
			})
	}
	return s3.New(opts)
}
