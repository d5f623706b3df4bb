package launcher

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/crawlerd/internal/store"
)

func newTestPool(t *testing.T, maxProc, finishedToKeep int) (*Pool, *Poller) {
	t.Helper()
	dir, err := os.MkdirTemp("", "pool-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := store.Open(arbor.NewLogger(), dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	poller := NewPoller(db)
	env := NewDefaultEnvironment(t.TempDir(), t.TempDir(), "")
	cfg := Config{MaxProc: maxProc, FinishedToKeep: finishedToKeep, Runner: "echo"}

	pool := NewPool(arbor.NewLogger(), db, cfg, poller, env, nil)
	pool.sched = NewInProcessScheduler(poller)
	return pool, poller
}

func priority(f float64) *float64 { return &f }

func TestPoolRunsMessagesSeriallyAtMaxProcOne(t *testing.T) {
	pool, poller := newTestPool(t, 1, 10)
	poller.UpdateProjects([]string{"P"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	priorities := []float64{1, 5, 3, 2, 4}
	for _, pr := range priorities {
		m := CrawlMessage{Project: "P", Spider: "s", Job: NewJobID(), Priority: priority(pr)}
		if err := poller.Put("P", m, pr); err != nil {
			t.Fatal(err)
		}
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(4 * time.Second)
	for {
		snap, err := pool.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		if len(snap.Finished) >= len(priorities) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for jobs to finish, got %d", len(snap.Finished))
		}
		time.Sleep(20 * time.Millisecond)
	}

	snap, err := pool.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	got := make([]float64, len(snap.Finished))
	for i, f := range snap.Finished {
		got[i] = f.Priority
	}
	want := []float64{5, 4, 3, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("finished order = %v, want %v", got, want)
		}
	}
}

// TestPoolFinishedListTruncatesToExactlyFinishedToKeep is spec §8
// Scenario 1: with finished_to_keep=3, running five jobs to completion
// must leave exactly the last three finished entries, not more. This
// exercises truncation across repeated append-then-truncate cycles at
// a keep count small enough to hit the cutoff more than once, unlike
// the larger finishedToKeep used by the other pool tests.
func TestPoolFinishedListTruncatesToExactlyFinishedToKeep(t *testing.T) {
	pool, poller := newTestPool(t, 1, 3)
	poller.UpdateProjects([]string{"P"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}

	const total = 5
	jobs := make([]string, 0, total)
	for i := 0; i < total; i++ {
		m := CrawlMessage{Project: "P", Spider: "s", Job: NewJobID(), Priority: priority(1)}
		jobs = append(jobs, m.Job)
		if err := poller.Put("P", m, 1); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(4 * time.Second)
	for {
		n, err := pool.finished.Len()
		if err != nil {
			t.Fatal(err)
		}
		if n > 3 {
			t.Fatalf("finished list grew to %d entries, want <= 3 (finished_to_keep)", n)
		}
		snap, err := pool.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		if len(snap.Finished) == 3 && snap.Finished[2].Job == jobs[total-1] {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for finished list to settle, got %d entries", len(snap.Finished))
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestPoolMalformedMessageRecordsErrorAndDoesNotRequeue(t *testing.T) {
	pool, poller := newTestPool(t, 1, 10)
	poller.UpdateProjects([]string{"P"})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		t.Fatal(err)
	}

	bad := CrawlMessage{Project: "", Spider: "s", Job: "j", Priority: priority(1)}
	if err := poller.Put("P", bad, 1); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := pool.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		if len(snap.Finished) >= 1 {
			if snap.Finished[0].ExitErr == "" {
				t.Fatal("expected a recorded error on the malformed message")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for malformed message to be recorded")
		}
		time.Sleep(20 * time.Millisecond)
	}

	pending, err := poller.Pending("P")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("malformed message was requeued: %d pending", len(pending))
	}
}
