// Package httpapi exposes the service over HTTP: search and ingest
// uploads, the track catalog, raw audio byte-serving with Range support,
// and liveness.
//
// Handlers validate and translate; all domain work happens behind the
// small interfaces in Deps so the package tests against fakes. Upload
// payloads are sniffed by magic bytes, never trusted by extension or
// Content-Type. Error responses share one envelope shape:
//
//	{"error": {"code": "...", "message": "...", "details": ...}}
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MacPhobos/audio-ident-sub000/pkg/catalog"
	"github.com/MacPhobos/audio-ident-sub000/pkg/ingest"
	"github.com/MacPhobos/audio-ident-sub000/pkg/search"
)

// Searcher answers one dual-rate PCM query.
type Searcher interface {
	Search(ctx context.Context, pcm16, pcm48 []byte, mode search.Mode, maxResults int) (*search.Response, error)
}

// Decoder produces the two canonical PCM rates from container bytes.
type Decoder interface {
	DecodeDualRate(ctx context.Context, data []byte, formatHint string) (pcm16, pcm48 []byte, err error)
}

// Ingester runs the ingestion pipeline, failing fast when it is busy.
type Ingester interface {
	TryIngest(ctx context.Context, filename string, data []byte) (ingest.Result, error)
}

// TrackStore is the read side of the track catalog.
type TrackStore interface {
	GetByID(ctx context.Context, id string) (*catalog.Track, error)
	List(ctx context.Context, page, pageSize int, search string) ([]catalog.Track, int64, error)
}

// BlobStore reads archived original files for byte-serving.
type BlobStore interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	OpenRange(ctx context.Context, path string, off, n int64) (io.ReadCloser, error)
	Size(ctx context.Context, path string) (int64, error)
}

// Config carries the listener settings.
type Config struct {
	// Addr is the listen address, e.g. "0.0.0.0:17010".
	Addr string
	// AdminKey guards POST /ingest. Empty rejects every ingest request.
	AdminKey string
	// Version is reported by GET /version; empty means "dev".
	Version string
	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Deps wires the handlers to the domain. All fields are required.
type Deps struct {
	Searcher Searcher
	Decoder  Decoder
	Ingester Ingester
	Tracks   TrackStore
	Blobs    BlobStore
}

// Server owns the HTTP listener.
type Server struct {
	cfg Config
	log *slog.Logger

	searcher Searcher
	decoder  Decoder
	ingester Ingester
	tracks   TrackStore
	blobs    BlobStore

	http *http.Server
}

// NewServer validates deps and builds the server with its routes mounted.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Searcher == nil:
		return nil, errors.New("httpapi: Deps.Searcher is required")
	case deps.Decoder == nil:
		return nil, errors.New("httpapi: Deps.Decoder is required")
	case deps.Ingester == nil:
		return nil, errors.New("httpapi: Deps.Ingester is required")
	case deps.Tracks == nil:
		return nil, errors.New("httpapi: Deps.Tracks is required")
	case deps.Blobs == nil:
		return nil, errors.New("httpapi: Deps.Blobs is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		cfg:      cfg,
		log:      cfg.Log,
		searcher: deps.Searcher,
		decoder:  deps.Decoder,
		ingester: deps.Ingester,
		tracks:   deps.Tracks,
		blobs:    deps.Blobs,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// routes mounts every endpoint behind the shared middleware chain.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/search", s.handleSearch)
	mux.HandleFunc("POST /api/v1/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/v1/tracks", s.handleTracks)
	mux.HandleFunc("GET /api/v1/tracks/{id}", s.handleTrack)
	mux.HandleFunc("GET /api/v1/tracks/{id}/audio", s.handleTrackAudio)
	mux.HandleFunc("GET /api/v1/version", s.handleVersion)

	// Liveness stays unversioned so probes never chase the API prefix.
	mux.HandleFunc("GET /health", s.handleHealth)

	var h http.Handler = mux
	h = withCORS(h)
	h = recoverPanics(s.log, h)
	h = logRequests(s.log, h)
	return h
}

// Handler returns the mounted route tree. Useful for embedding the API
// into an existing server or test harness.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start blocks serving HTTP until Shutdown is called or the listener
// fails. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
