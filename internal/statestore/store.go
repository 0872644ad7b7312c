// Package statestore is the expiring key/value store holding each key's
// active story list and cached image scores. It is backed by badger and
// relies on badger's per-entry TTL for expiry.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"horse.fit/storify/internal/logging"
)

var ErrNotFound = errors.New("statestore: key not found")

// ErrLocked is returned by Open when another process holds the directory.
// Badger allows a single writer process per directory.
var ErrLocked = errors.New("statestore: directory held by another process")

type Options struct {
	Dir      string
	InMemory bool
}

type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

func Open(opts Options, logger zerolog.Logger) (*Store, error) {
	dir := strings.TrimSpace(opts.Dir)
	if !opts.InMemory && dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if opts.InMemory {
		dir = ""
	}

	badgerOpts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithLogger(logging.Badger(logger))

	db, err := badger.Open(badgerOpts)
	if err != nil {
		if isDirLocked(err) {
			return nil, fmt.Errorf("%w: %q (is the storify daemon running?)", ErrLocked, dir)
		}
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}

	return &Store{db: db, logger: logging.Component(logger, "statestore")}, nil
}

// badger only reports the flock failure as text.
func isDirLocked(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Cannot acquire directory lock") ||
		strings.Contains(msg, "Another process is using this Badger database")
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value under key, or ErrNotFound when it is absent or
// expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get state key=%s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key for ttl. A non-positive ttl stores without
// expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("set state key=%s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete state key=%s: %w", key, err)
	}
	return nil
}

// Keys lists live keys starting with prefix, in key order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list state keys prefix=%s: %w", prefix, err)
	}
	return keys, nil
}

// RunGC reclaims value-log space until ctx is done. Badger reports
// ErrNoRewrite when there is nothing to collect.
func (s *Store) RunGC(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
					s.logger.Warn().Err(err).Msg("value log gc failed")
				}
				break
			}
		}
	}
}
