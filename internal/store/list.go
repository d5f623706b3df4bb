package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/timshannon/badgerhold/v4"
)

// listRow backs every named ordered List. Key is badgerhold's own
// auto-incrementing sequence (assigned via badgerhold.NextSequence on
// Insert) — strictly monotonic and never reused for the lifetime of
// the table, which is what ordering and range-deletion rely on.
// Logical 0-based indices (Get's "i") are derived at read time by
// sorting on Key rather than stored, so a row's position is never
// recomputed from a live row count that shrinks as rows are deleted.
type listRow struct {
	Key     uint64 `badgerhold:"key"`
	Table   string `badgerholdIndex:"Table"`
	Payload []byte
}

// List is a named, durable ordered list of JSON-encoded values,
// appended to at the tail and trimmed from the head — the shape the
// finished-job log needs.
type List[T any] struct {
	db    *DB
	table string
}

// NewList returns the list named table within db.
func NewList[T any](db *DB, table string) *List[T] {
	return &List[T]{db: db, table: table}
}

// Append adds v at the end of the list, returning its order key.
func (l *List[T]) Append(v T) (uint64, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("list %s: encode: %w", l.table, err)
	}
	row := &listRow{Table: l.table, Payload: payload}
	if err := l.db.store.Insert(badgerhold.NextSequence(), row); err != nil {
		return 0, fmt.Errorf("list %s: insert: %w", l.table, err)
	}
	return row.Key, nil
}

// Len returns the number of entries currently in the list.
func (l *List[T]) Len() (int, error) {
	return l.db.store.Count(listRow{}, badgerhold.Where("Table").Eq(l.table))
}

// Get returns the value at logical index i (0-based, ascending
// insertion order among surviving rows).
func (l *List[T]) Get(i int) (T, error) {
	var zero T
	rows, err := l.sortedRows()
	if err != nil {
		return zero, err
	}
	if i < 0 || i >= len(rows) {
		return zero, fmt.Errorf("list %s: index %d: %w", l.table, i, badgerhold.ErrNotFound)
	}
	var v T
	if err := json.Unmarshal(rows[i].Payload, &v); err != nil {
		return zero, fmt.Errorf("list %s: decode: %w", l.table, err)
	}
	return v, nil
}

// DeleteRange deletes every entry with Key < keyLessThan.
func (l *List[T]) DeleteRange(keyLessThan uint64) error {
	return l.db.store.DeleteMatching(listRow{}, badgerhold.Where("Table").Eq(l.table).And("Key").Lt(keyLessThan))
}

// Truncate retains only the last keep entries (by insertion order),
// deleting the rest in a single range delete keyed on Key — the
// strictly monotonic sequence number — rather than on a recomputed
// position, so the cutoff is correct regardless of how many rows have
// already been trimmed. keep <= 0 empties the list.
func (l *List[T]) Truncate(keep int) error {
	rows, err := l.sortedRows()
	if err != nil {
		return err
	}
	if keep <= 0 {
		return l.db.store.DeleteMatching(listRow{}, badgerhold.Where("Table").Eq(l.table))
	}
	if len(rows) <= keep {
		return nil
	}
	cutoff := rows[len(rows)-keep].Key
	return l.DeleteRange(cutoff)
}

// Iterate returns every entry in ascending insertion order.
func (l *List[T]) Iterate() ([]T, error) {
	rows, err := l.sortedRows()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := json.Unmarshal(row.Payload, &v); err != nil {
			return nil, fmt.Errorf("list %s: decode: %w", l.table, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// sortedRows returns every row for this table ordered ascending by
// Key, the list's true (monotonic) insertion order.
func (l *List[T]) sortedRows() ([]listRow, error) {
	var rows []listRow
	if err := l.db.store.Find(&rows, badgerhold.Where("Table").Eq(l.table)); err != nil {
		return nil, fmt.Errorf("list %s: find: %w", l.table, err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}
