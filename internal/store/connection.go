// Package store provides durable List, Mapping and PriorityQueue
// abstractions over a single embedded BadgerDB file, in the manner
// of a JSON-table key-value database: one physical store, several
// logical tables distinguished by name.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// DB wraps a badgerhold store opened against a single directory.
type DB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	path   string
}

// Open opens (creating if absent) the database directory at path.
func Open(logger arbor.ILogger, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("store: create parent directory: %w", err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("store: create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	logger.Debug().Str("path", path).Msg("opening store")

	bh, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	return &DB{store: bh, logger: logger, path: path}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	if d == nil || d.store == nil {
		return nil
	}
	return d.store.Close()
}
