// Package catalog persists track records in a relational store. SQLite
// via the pure-Go driver keeps the deployment single-binary; the schema
// is managed by AutoMigrate at open.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrDuplicateHash reports an insert whose SHA-256 already exists.
	ErrDuplicateHash = errors.New("catalog: duplicate content hash")
	// ErrNotFound reports a lookup for a track that is not cataloged.
	ErrNotFound = errors.New("catalog: track not found")
)

// Track is the authoritative record for one ingested audio file.
type Track struct {
	ID                     string `gorm:"primaryKey;type:varchar(36)"`
	Title                  string
	Artist                 string
	Album                  string
	DurationSec            float64
	SampleRate             int
	Channels               int
	Bitrate                int
	SourceFormat           string
	SHA256                 string `gorm:"column:sha256;uniqueIndex;type:varchar(64)"`
	SizeBytes              int64
	StoragePath            string
	Chromaprint            string
	ChromaprintDurationSec float64
	OlafIndexed            bool
	EmbeddingModel         string
	EmbeddingDim           int
	IngestedAt             time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt              time.Time
}

// Catalog wraps the tracks table.
type Catalog struct {
	db  *gorm.DB
	sql *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and runs
// migrations.
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("catalog: create db dir: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("catalog: unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Track{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	return &Catalog{db: db, sql: sqlDB}, nil
}

// Insert stores a new track record. The timestamps are assigned here, not
// by the caller.
func (c *Catalog) Insert(ctx context.Context, t *Track) error {
	err := c.db.WithContext(ctx).Create(t).Error
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateHash, t.SHA256)
		}
		return fmt.Errorf("catalog: insert: %w", err)
	}
	return nil
}

// FindByHash returns the track with the given content hash, or ErrNotFound.
func (c *Catalog) FindByHash(ctx context.Context, sha256 string) (*Track, error) {
	var t Track
	err := c.db.WithContext(ctx).Where("sha256 = ?", sha256).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: find by hash: %w", err)
	}
	return &t, nil
}

// GetByID returns one track by identifier, or ErrNotFound.
func (c *Catalog) GetByID(ctx context.Context, id string) (*Track, error) {
	var t Track
	err := c.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	return &t, nil
}

// GetByIDs resolves a batch of identifiers in one query. Unknown IDs are
// simply absent from the result map.
func (c *Catalog) GetByIDs(ctx context.Context, ids []string) (map[string]*Track, error) {
	out := make(map[string]*Track, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []Track
	if err := c.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("catalog: get by ids: %w", err)
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

const maxPageSize = 100

// List returns one page of tracks plus the total row count for the query.
// page is 1-based and clamped to 1; pageSize is clamped to [1, 100].
// A non-empty search filters case-insensitively on title or artist.
// Ordering is ingested-at then ID so pagination is stable.
func (c *Catalog) List(ctx context.Context, page, pageSize int, search string) ([]Track, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	} else if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	q := c.db.WithContext(ctx).Model(&Track{})
	if search != "" {
		needle := "%" + escapeLike(strings.ToLower(search)) + "%"
		q = q.Where(`lower(title) LIKE ? ESCAPE '\' OR lower(artist) LIKE ? ESCAPE '\'`, needle, needle)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("catalog: count: %w", err)
	}

	var rows []Track
	err := q.Order("ingested_at ASC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list: %w", err)
	}
	return rows, total, nil
}

// ListByDurationRange returns tracks whose duration lies in [minSec, maxSec].
// The perceptual dedup scan uses this to bound its candidate set.
func (c *Catalog) ListByDurationRange(ctx context.Context, minSec, maxSec float64) ([]Track, error) {
	var rows []Track
	err := c.db.WithContext(ctx).
		Where("duration_sec >= ? AND duration_sec <= ?", minSec, maxSec).
		Order("ingested_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("catalog: list by duration: %w", err)
	}
	return rows, nil
}

// UpdateFlags sets the index bookkeeping fields for a track. Records are
// otherwise immutable after insert.
func (c *Catalog) UpdateFlags(ctx context.Context, id string, olafIndexed bool, embeddingModel string, embeddingDim int) error {
	res := c.db.WithContext(ctx).Model(&Track{}).Where("id = ?", id).Updates(map[string]any{
		"olaf_indexed":    olafIndexed,
		"embedding_model": embeddingModel,
		"embedding_dim":   embeddingDim,
	})
	if res.Error != nil {
		return fmt.Errorf("catalog: update flags: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a track record. The caller is responsible for the
// corresponding fingerprint and vector deletions.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	res := c.db.WithContext(ctx).Where("id = ?", id).Delete(&Track{})
	if res.Error != nil {
		return fmt.Errorf("catalog: delete %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the total number of cataloged tracks.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.WithContext(ctx).Model(&Track{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}

// Ping verifies the database is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.sql.PingContext(ctx)
}

func (c *Catalog) Close() error {
	return c.sql.Close()
}

// isUniqueViolation matches both gorm's translated error and the raw
// SQLite message, depending on driver support.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// escapeLike neutralizes LIKE wildcards in user-supplied search text.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
