package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/timshannon/badgerhold/v4"
)

// ErrEmpty is returned by PriorityQueue.Pop when the table has no rows.
var ErrEmpty = errors.New("store: queue is empty")

// queueRow is the single badgerhold collection backing every named
// priority queue. Table discriminates logical queues (one per project);
// Key is assigned by badgerhold's auto-sequence and used only to break
// priority ties in a deterministic, insertion-ordered way.
type queueRow struct {
	Key      uint64 `badgerhold:"key"`
	Table    string `badgerholdIndex:"Table"`
	Priority float64
	Payload  []byte
}

// PriorityQueue is a named, durable priority queue of JSON-encoded
// values of type T, backed by one shared badgerhold collection.
// Pop selects the highest-priority row (ties broken by insertion order)
// and deletes it atomically, retrying if a concurrent writer won the
// race for that row, mirroring JsonSqlitePriorityQueue.pop.
type PriorityQueue[T any] struct {
	db    *DB
	table string
}

// NewPriorityQueue returns the queue named table within db. Multiple
// tables share the same underlying badgerhold collection; callers never
// see other tables' rows.
func NewPriorityQueue[T any](db *DB, table string) *PriorityQueue[T] {
	return &PriorityQueue[T]{db: db, table: table}
}

// Put inserts v at the given priority (higher pops first).
func (q *PriorityQueue[T]) Put(v T, priority float64) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("priorityqueue %s: encode: %w", q.table, err)
	}
	row := &queueRow{
		Table:    q.table,
		Priority: priority,
		Payload:  payload,
	}
	if err := q.db.store.Insert(badgerhold.NextSequence(), row); err != nil {
		return fmt.Errorf("priorityqueue %s: insert: %w", q.table, err)
	}
	return nil
}

// Pop removes and returns the highest-priority value, or ErrEmpty if
// the table has no rows. Ties are broken by ascending insertion order.
func (q *PriorityQueue[T]) Pop() (T, error) {
	var zero T
	for {
		rows, err := q.findAll()
		if err != nil {
			return zero, err
		}
		if len(rows) == 0 {
			return zero, ErrEmpty
		}
		best := rows[0]
		if err := q.db.store.Delete(best.Key, queueRow{}); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				// Lost the race for this row; someone else popped or
				// removed it first. Retry from scratch.
				continue
			}
			return zero, fmt.Errorf("priorityqueue %s: delete: %w", q.table, err)
		}
		var v T
		if err := json.Unmarshal(best.Payload, &v); err != nil {
			return zero, fmt.Errorf("priorityqueue %s: decode: %w", q.table, err)
		}
		return v, nil
	}
}

// Remove deletes every entry for which match returns true, decoding
// each payload first. It returns the number removed. If a delete loses
// a race (the row already vanished), the whole pass is retried, per the
// retry-from-scratch-on-miss discipline of the source's JsonSqlitePriorityQueue.remove.
func (q *PriorityQueue[T]) Remove(match func(T) bool) (int, error) {
	for {
		rows, err := q.findAll()
		if err != nil {
			return 0, err
		}
		removed := 0
		missed := false
		for _, row := range rows {
			var v T
			if err := json.Unmarshal(row.Payload, &v); err != nil {
				return removed, fmt.Errorf("priorityqueue %s: decode: %w", q.table, err)
			}
			if !match(v) {
				continue
			}
			if err := q.db.store.Delete(row.Key, queueRow{}); err != nil {
				if errors.Is(err, badgerhold.ErrNotFound) {
					missed = true
					break
				}
				return removed, fmt.Errorf("priorityqueue %s: delete: %w", q.table, err)
			}
			removed++
		}
		if missed {
			continue
		}
		return removed, nil
	}
}

// List returns every value currently queued, highest priority first.
func (q *PriorityQueue[T]) List() ([]T, error) {
	rows, err := q.findAll()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var v T
		if err := json.Unmarshal(row.Payload, &v); err != nil {
			return nil, fmt.Errorf("priorityqueue %s: decode: %w", q.table, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Clear removes every row in the table.
func (q *PriorityQueue[T]) Clear() error {
	return q.db.store.DeleteMatching(queueRow{}, badgerhold.Where("Table").Eq(q.table))
}

// Len returns the number of queued rows.
func (q *PriorityQueue[T]) Len() (int, error) {
	return q.db.store.Count(queueRow{}, badgerhold.Where("Table").Eq(q.table))
}

// findAll returns every row for this table sorted by priority
// descending, Key ascending as tiebreak. Sorting is done in memory
// rather than via badgerhold's SortBy, which only supports a single
// ascending-or-descending field and cannot express the secondary
// tiebreak this queue needs.
func (q *PriorityQueue[T]) findAll() ([]queueRow, error) {
	var rows []queueRow
	if err := q.db.store.Find(&rows, badgerhold.Where("Table").Eq(q.table)); err != nil {
		return nil, fmt.Errorf("priorityqueue %s: find: %w", q.table, err)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Priority != rows[j].Priority {
			return rows[i].Priority > rows[j].Priority
		}
		return rows[i].Key < rows[j].Key
	})
	return rows, nil
}
