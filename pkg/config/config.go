// Package config loads service settings from an optional YAML file with
// environment overrides. Precedence: defaults, then file, then environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Settings holds every tunable the service reads. Zero values are never
// used directly; start from [Default] or [Load].
type Settings struct {
	// HTTP listener.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Relational catalog. A plain path or a sqlite:// URL; either way it
	// ends up as a sqlite file on disk.
	DatabaseURL string `yaml:"database_url"`

	// Vector store. "memory" selects the in-process backend.
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantAPIKey     string `yaml:"qdrant_api_key"`
	QdrantCollection string `yaml:"qdrant_collection"`

	// External tools.
	OlafBin   string `yaml:"olaf_bin"`
	OlafDBDir string `yaml:"olaf_db_dir"`
	FFmpegBin string `yaml:"ffmpeg_bin"`
	FpcalcBin string `yaml:"fpcalc_bin"`

	// Embedding model.
	EmbedModel       string `yaml:"embed_model"`
	EmbedDim         int    `yaml:"embed_dim"`
	EmbedRunner      string `yaml:"embed_runner"`
	EmbedConcurrency int    `yaml:"embed_concurrency"`

	// Raw audio archive.
	StorageRoot    string `yaml:"storage_root"`
	StorageBackend string `yaml:"storage_backend"` // local | s3
	S3Bucket       string `yaml:"s3_bucket"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3Prefix       string `yaml:"s3_prefix"`

	// Admin. Empty keeps the ingest endpoint locked.
	AdminKey string `yaml:"admin_key"`

	// Search tunables.
	ExactTrustThreshold    float64       `yaml:"exact_trust_threshold"`
	VibeMatchThreshold     float64       `yaml:"vibe_match_threshold"`
	DupSimilarityThreshold float64       `yaml:"dup_similarity_threshold"`
	ExactLaneTimeout       time.Duration `yaml:"exact_lane_timeout"`
	VibeLaneTimeout        time.Duration `yaml:"vibe_lane_timeout"`
	TotalRequestTimeout    time.Duration `yaml:"total_request_timeout"`

	// Logging: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the settings the service runs with when nothing is
// configured.
func Default() Settings {
	return Settings{
		Host:             "0.0.0.0",
		Port:             17010,
		DatabaseURL:      "./data/catalog.db",
		QdrantURL:        "http://localhost:6334",
		QdrantCollection: "audio_embeddings",

		OlafBin:   "olaf_c",
		OlafDBDir: "./data/olaf_db",
		FFmpegBin: "ffmpeg",
		FpcalcBin: "fpcalc",

		EmbedModel:       "static-v1",
		EmbedDim:         512,
		EmbedConcurrency: 1,

		StorageRoot:    "./data",
		StorageBackend: "local",

		ExactTrustThreshold:    0.85,
		VibeMatchThreshold:     0.60,
		DupSimilarityThreshold: 0.85,
		ExactLaneTimeout:       3 * time.Second,
		VibeLaneTimeout:        4 * time.Second,
		TotalRequestTimeout:    5 * time.Second,

		LogLevel: "info",
	}
}

// Load reads settings from path (skipped when empty or missing), applies
// environment overrides, and validates the result.
func Load(path string) (*Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Optional file.
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &s); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	s.applyEnv()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) applyEnv() {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flt := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return
		}
		// Bare numbers mean seconds, matching the original deployment envs.
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = time.Duration(f * float64(time.Second))
		}
	}

	str("HOST", &s.Host)
	num("PORT", &s.Port)
	str("DATABASE_URL", &s.DatabaseURL)
	str("QDRANT_URL", &s.QdrantURL)
	str("QDRANT_API_KEY", &s.QdrantAPIKey)
	str("QDRANT_COLLECTION", &s.QdrantCollection)
	str("OLAF_BIN", &s.OlafBin)
	str("OLAF_DB_DIR", &s.OlafDBDir)
	str("FFMPEG_BIN", &s.FFmpegBin)
	str("FPCALC_BIN", &s.FpcalcBin)
	str("EMBED_MODEL", &s.EmbedModel)
	num("EMBED_DIM", &s.EmbedDim)
	str("EMBED_RUNNER", &s.EmbedRunner)
	num("EMBED_CONCURRENCY", &s.EmbedConcurrency)
	str("STORAGE_ROOT", &s.StorageRoot)
	str("STORAGE_BACKEND", &s.StorageBackend)
	str("S3_BUCKET", &s.S3Bucket)
	str("S3_ENDPOINT", &s.S3Endpoint)
	str("S3_REGION", &s.S3Region)
	str("S3_ACCESS_KEY", &s.S3AccessKey)
	str("S3_SECRET_KEY", &s.S3SecretKey)
	str("S3_PREFIX", &s.S3Prefix)
	str("ADMIN_KEY", &s.AdminKey)
	flt("EXACT_TRUST_THRESHOLD", &s.ExactTrustThreshold)
	flt("VIBE_MATCH_THRESHOLD", &s.VibeMatchThreshold)
	flt("DUP_SIMILARITY_THRESHOLD", &s.DupSimilarityThreshold)
	dur("EXACT_LANE_TIMEOUT", &s.ExactLaneTimeout)
	dur("VIBE_LANE_TIMEOUT", &s.VibeLaneTimeout)
	dur("TOTAL_REQUEST_TIMEOUT", &s.TotalRequestTimeout)
	str("LOG_LEVEL", &s.LogLevel)
}

// Validate rejects settings the service cannot start with.
func (s *Settings) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", s.Port)
	}
	if s.DatabaseURL == "" {
		return errors.New("config: database_url is required")
	}
	if s.QdrantURL == "" {
		return errors.New("config: qdrant_url is required")
	}
	if s.EmbedDim <= 0 {
		return fmt.Errorf("config: embed_dim %d must be positive", s.EmbedDim)
	}
	if s.EmbedConcurrency < 1 {
		return fmt.Errorf("config: embed_concurrency %d must be at least 1", s.EmbedConcurrency)
	}
	switch s.StorageBackend {
	case "local":
	case "s3":
		if s.S3Bucket == "" {
			return errors.New("config: s3 backend requires s3_bucket")
		}
	default:
		return fmt.Errorf("config: unknown storage_backend %q", s.StorageBackend)
	}
	for name, v := range map[string]float64{
		"exact_trust_threshold":    s.ExactTrustThreshold,
		"vibe_match_threshold":     s.VibeMatchThreshold,
		"dup_similarity_threshold": s.DupSimilarityThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: %s %v out of [0,1]", name, v)
		}
	}
	for name, d := range map[string]time.Duration{
		"exact_lane_timeout":    s.ExactLaneTimeout,
		"vibe_lane_timeout":     s.VibeLaneTimeout,
		"total_request_timeout": s.TotalRequestTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	return nil
}

// Addr returns the host:port the HTTP server binds.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SQLitePath strips an optional sqlite URL scheme from DatabaseURL so the
// driver always sees a filesystem path.
func (s *Settings) SQLitePath() string {
	p := s.DatabaseURL
	for _, prefix := range []string{"sqlite:///", "sqlite://", "sqlite:"} {
		if strings.HasPrefix(p, prefix) {
			return strings.TrimPrefix(p, prefix)
		}
	}
	return p
}

// MaskDSN redacts the password in a URL-shaped DSN for logging. Values
// without credentials pass through unchanged.
func MaskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, has := u.User.Password(); !has {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), "****")
	return u.String()
}
