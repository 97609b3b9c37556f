// Package journal records in-flight ingestions so a crash between the
// index writes and the catalog insert can be repaired at the next start.
// Entries are msgpack-encoded in a BadgerDB keyspace; Begin writes one,
// Complete removes it, and Pending lists the leftovers.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "pending:"

// Entry describes one ingestion that has started writing derived state.
type Entry struct {
	TrackID     string    `msgpack:"track_id"`
	SHA256      string    `msgpack:"sha256"`
	StoragePath string    `msgpack:"storage_path"`
	StartedAt   time.Time `msgpack:"started_at"`
}

// Journal is the write-ahead record of ingestions in flight.
type Journal struct {
	db *badger.DB
}

// Options configures the journal store.
type Options struct {
	// Dir is the BadgerDB directory. Required unless InMemory is set.
	Dir string
	// InMemory runs badger without disk persistence, for tests.
	InMemory bool
	// Log receives badger's warnings and errors. Defaults to slog.Default().
	Log *slog.Logger
}

// Open opens the journal database.
func Open(opts Options) (*Journal, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("journal: Options.Dir is required for on-disk mode")
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	dbOpts := badger.DefaultOptions(opts.Dir).
		WithLogger(badgerLogger{log: opts.Log})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Journal{db: db}, nil
}

// Begin records that the derived-state writes for a track have started.
func (j *Journal) Begin(_ context.Context, e Entry) error {
	if e.TrackID == "" {
		return errors.New("journal: entry has no track ID")
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	data, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: encode entry: %w", err)
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(e.TrackID), data)
	})
	if err != nil {
		return fmt.Errorf("journal: begin %s: %w", e.TrackID, err)
	}
	return nil
}

// Complete removes the entry for a track. Completing a track that was
// never begun (or already completed) is a no-op.
func (j *Journal) Complete(_ context.Context, trackID string) error {
	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(trackID))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("journal: complete %s: %w", trackID, err)
	}
	return nil
}

// Pending returns all entries that were begun but never completed,
// oldest first.
func (j *Journal) Pending(_ context.Context) ([]Entry, error) {
	var out []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var e Entry
			if err := msgpack.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: pending: %w", err)
	}
	// Badger iterates in key order; recovery wants oldest first.
	sort.Slice(out, func(i, k int) bool {
		return out[i].StartedAt.Before(out[k].StartedAt)
	})
	return out, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func key(trackID string) []byte {
	return []byte(keyPrefix + trackID)
}

// badgerLogger forwards badger's complaints to slog and drops its chatter.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any)   { l.log.Error(fmt.Sprintf("badger: "+f, v...)) }
func (l badgerLogger) Warningf(f string, v ...any) { l.log.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (l badgerLogger) Infof(string, ...any)        {}
func (l badgerLogger) Debugf(string, ...any)       {}
