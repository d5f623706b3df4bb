package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/timshannon/badgerhold/v4"
)

// mapRow backs every named key-unique Mapping. Key is Table+"|"+MapKey
// so every logical mapping shares one badgerhold collection while
// staying independently addressable and iterable.
type mapRow struct {
	Key     string `badgerhold:"key"`
	Table   string `badgerholdIndex:"Table"`
	MapKey  string
	Payload []byte
}

// Mapping is a named, durable key-unique map of JSON-encoded values —
// the shape the running-slot set needs (slot -> RunningJob).
type Mapping[T any] struct {
	db    *DB
	table string
}

// NewMapping returns the mapping named table within db.
func NewMapping[T any](db *DB, table string) *Mapping[T] {
	return &Mapping[T]{db: db, table: table}
}

func (m *Mapping[T]) rowKey(key string) string {
	return m.table + "|" + key
}

// Set inserts or replaces the value stored at key.
func (m *Mapping[T]) Set(key string, v T) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mapping %s: encode: %w", m.table, err)
	}
	row := &mapRow{Key: m.rowKey(key), Table: m.table, MapKey: key, Payload: payload}
	if err := m.db.store.Upsert(row.Key, row); err != nil {
		return fmt.Errorf("mapping %s: upsert: %w", m.table, err)
	}
	return nil
}

// Get returns the value at key, or ErrNotFound (badgerhold.ErrNotFound)
// if absent.
func (m *Mapping[T]) Get(key string) (T, error) {
	var zero T
	var row mapRow
	if err := m.db.store.Get(m.rowKey(key), &row); err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal(row.Payload, &v); err != nil {
		return zero, fmt.Errorf("mapping %s: decode: %w", m.table, err)
	}
	return v, nil
}

// Has reports whether key is present.
func (m *Mapping[T]) Has(key string) (bool, error) {
	_, err := m.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Delete removes key, if present. Deleting an absent key is not an error.
func (m *Mapping[T]) Delete(key string) error {
	err := m.db.store.Delete(m.rowKey(key), mapRow{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("mapping %s: delete: %w", m.table, err)
	}
	return nil
}

// Len returns the number of keys currently stored.
func (m *Mapping[T]) Len() (int, error) {
	return m.db.store.Count(mapRow{}, badgerhold.Where("Table").Eq(m.table))
}

// Keys returns every key currently stored, in no particular order.
func (m *Mapping[T]) Keys() ([]string, error) {
	var rows []mapRow
	if err := m.db.store.Find(&rows, badgerhold.Where("Table").Eq(m.table)); err != nil {
		return nil, fmt.Errorf("mapping %s: find: %w", m.table, err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.MapKey)
	}
	return out, nil
}

// Entries returns every (key, value) pair currently stored.
func (m *Mapping[T]) Entries() (map[string]T, error) {
	var rows []mapRow
	if err := m.db.store.Find(&rows, badgerhold.Where("Table").Eq(m.table)); err != nil {
		return nil, fmt.Errorf("mapping %s: find: %w", m.table, err)
	}
	out := make(map[string]T, len(rows))
	for _, row := range rows {
		var v T
		if err := json.Unmarshal(row.Payload, &v); err != nil {
			return nil, fmt.Errorf("mapping %s: decode: %w", m.table, err)
		}
		out[row.MapKey] = v
	}
	return out, nil
}

// ErrNotFound re-exports badgerhold's not-found sentinel so callers of
// this package never need to import badgerhold directly.
var ErrNotFound = badgerhold.ErrNotFound
