package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir, err := os.MkdirTemp("", "store-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := Open(arbor.NewLogger(), dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPriorityQueuePopOrder(t *testing.T) {
	db := openTestDB(t)
	q := NewPriorityQueue[string](db, "P")

	require.NoError(t, q.Put("a", 1))
	require.NoError(t, q.Put("b", 2))

	v, err := q.Pop()
	require.NoError(t, err)
	require.Equal(t, "b", v)

	v, err = q.Pop()
	require.NoError(t, err)
	require.Equal(t, "a", v)

	_, err = q.Pop()
	require.ErrorIs(t, err, ErrEmpty)
}

func TestPriorityQueueTieBreakIsDeterministicSet(t *testing.T) {
	db := openTestDB(t)
	q := NewPriorityQueue[string](db, "P")

	require.NoError(t, q.Put("m1", 1))
	require.NoError(t, q.Put("m2", 1))

	first, err := q.Pop()
	require.NoError(t, err)
	second, err := q.Pop()
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"m1", "m2"}, []string{first, second})
}

func TestPriorityQueueRemove(t *testing.T) {
	db := openTestDB(t)
	q := NewPriorityQueue[int](db, "P")

	require.NoError(t, q.Put(1, 1))
	require.NoError(t, q.Put(2, 2))
	require.NoError(t, q.Put(3, 3))

	n, err := q.Remove(func(v int) bool { return v%2 == 0 })
	require.NoError(t, err)
	require.Equal(t, 1, n)

	remaining, err := q.List()
	require.NoError(t, err)
	require.ElementsMatch(t, []int{1, 3}, remaining)
}

func TestPriorityQueueIsolatedByTable(t *testing.T) {
	db := openTestDB(t)
	a := NewPriorityQueue[string](db, "A")
	b := NewPriorityQueue[string](db, "B")

	require.NoError(t, a.Put("only-a", 1))

	_, err := b.Pop()
	require.ErrorIs(t, err, ErrEmpty)

	aLen, err := a.Len()
	require.NoError(t, err)
	require.Equal(t, 1, aLen)
}

func TestListAppendAndTruncate(t *testing.T) {
	db := openTestDB(t)
	l := NewList[int](db, "finished")

	for i := 0; i < 5; i++ {
		_, err := l.Append(i)
		require.NoError(t, err)
	}

	n, err := l.Len()
	require.NoError(t, err)
	require.Equal(t, 5, n)

	require.NoError(t, l.Truncate(3))

	vals, err := l.Iterate()
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 4}, vals)
}

// TestListTruncateAfterEveryAppendStaysBounded exercises spec §8
// Scenario 1's finished_to_keep=3 case: truncating to the same keep
// count after every single append must never let the list grow past
// keep, even once appends outnumber keep many times over. A cutoff
// recomputed from a live row count (rather than the list's monotonic
// insertion sequence) collides once the list has been truncated at
// least once, letting the list grow unbounded from then on.
func TestListTruncateAfterEveryAppendStaysBounded(t *testing.T) {
	db := openTestDB(t)
	l := NewList[int](db, "finished")

	const keep = 3
	for i := 0; i < 10; i++ {
		_, err := l.Append(i)
		require.NoError(t, err)
		require.NoError(t, l.Truncate(keep))

		n, err := l.Len()
		require.NoError(t, err)
		require.LessOrEqualf(t, n, keep, "after appending %d, list grew past finished_to_keep=%d", i, keep)
	}

	vals, err := l.Iterate()
	require.NoError(t, err)
	require.Equal(t, []int{7, 8, 9}, vals)
}

func TestMappingSetGetDelete(t *testing.T) {
	db := openTestDB(t)
	m := NewMapping[string](db, "running")

	require.NoError(t, m.Set("0", "job-a"))
	require.NoError(t, m.Set("1", "job-b"))

	v, err := m.Get("0")
	require.NoError(t, err)
	require.Equal(t, "job-a", v)

	has, err := m.Has("1")
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, m.Delete("0"))
	has, err = m.Has("0")
	require.NoError(t, err)
	require.False(t, has)

	entries, err := m.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
