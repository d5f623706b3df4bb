package launcher

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/crawlerd/internal/store"
)

func openPollerDB(t *testing.T) *store.DB {
	t.Helper()
	dir, err := os.MkdirTemp("", "poller-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	db, err := store.Open(arbor.NewLogger(), dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func msg(project string) CrawlMessage {
	p := 1.0
	return CrawlMessage{Project: project, Spider: "s", Job: NewJobID(), Priority: &p}
}

func TestPollerRoundRobinAcrossProjects(t *testing.T) {
	db := openPollerDB(t)
	p := NewPoller(db)
	p.UpdateProjects([]string{"A", "B"})

	if err := p.Put("A", msg("A"), 1); err != nil {
		t.Fatal(err)
	}
	if err := p.Put("B", msg("B"), 1); err != nil {
		t.Fatal(err)
	}
	if err := p.Put("A", msg("A"), 1); err != nil {
		t.Fatal(err)
	}
	if err := p.Put("B", msg("B"), 1); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	for i := 0; i < 4; i++ {
		project, _, err := p.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		order = append(order, project)
	}

	want := []string{"A", "B", "A", "B"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("round robin order = %v, want %v", order, want)
		}
	}
}

func TestPollerPriorityOrderWithinProject(t *testing.T) {
	db := openPollerDB(t)
	p := NewPoller(db)
	p.UpdateProjects([]string{"P"})

	lowPrio := msg("P")
	highPrio := msg("P")

	if err := p.Put("P", lowPrio, 1); err != nil {
		t.Fatal(err)
	}
	if err := p.Put("P", highPrio, 2); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, first, err := p.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Job != highPrio.Job {
		t.Fatalf("expected higher priority message first")
	}

	_, second, err := p.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.Job != lowPrio.Job {
		t.Fatalf("expected lower priority message second")
	}
}

func TestPollerNextBlocksUntilPut(t *testing.T) {
	db := openPollerDB(t)
	p := NewPoller(db)
	p.UpdateProjects([]string{"P"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan string, 1)
	go func() {
		project, _, err := p.Next(ctx)
		if err != nil {
			return
		}
		resultCh <- project
	}()

	time.Sleep(50 * time.Millisecond)
	if err := p.Put("P", msg("P"), 1); err != nil {
		t.Fatal(err)
	}

	select {
	case project := <-resultCh:
		if project != "P" {
			t.Fatalf("expected project P, got %s", project)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Put")
	}
}

// TestPollerMultipleWaitersAllWakeOnBurstEnqueue guards against the
// single-token doorbell starving idle waiters: with several goroutines
// already blocked in Next before a burst of Puts lands, every one of
// them must eventually receive a message, not just the first to wake.
func TestPollerMultipleWaitersAllWakeOnBurstEnqueue(t *testing.T) {
	db := openPollerDB(t)
	p := NewPoller(db)
	p.UpdateProjects([]string{"P"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const waiters = 4
	resultCh := make(chan string, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			_, _, err := p.Next(ctx)
			if err != nil {
				return
			}
			resultCh <- "done"
		}()
	}

	// Give every waiter a chance to block on the doorbell before the
	// burst lands, so a single coalesced ring could only wake one of
	// them if Next did not chain-wake after each successful pop.
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < waiters; i++ {
		if err := p.Put("P", msg("P"), 1); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < waiters; i++ {
		select {
		case <-resultCh:
		case <-time.After(time.Second):
			t.Fatalf("only %d/%d waiters were woken after a burst enqueue", i, waiters)
		}
	}
}

func TestPollerNextCancellation(t *testing.T) {
	db := openPollerDB(t)
	p := NewPoller(db)
	p.UpdateProjects([]string{"P"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := p.Next(ctx)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
