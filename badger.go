package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes in the snapshot database.
const (
	puzzlePrefix  = "puzzle/"
	sessionPrefix = "session/"
)

// openBadger opens a BadgerDB at path, or an in-memory one when path is
// empty. A nil logger silences badger's own logging.
func openBadger(path string, logger *slog.Logger) (*badger.DB, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// badgerLogger adapts slog to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// putJSON stores v under key.
func putJSON(db *badger.DB, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// scanJSON calls fn with the raw value of every key under prefix.
func scanJSON(db *badger.DB, prefix string, fn func(key string, raw []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), raw); err != nil {
				return err
			}
		}
		return nil
	})
}
