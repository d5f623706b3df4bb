package launcher

import (
	"context"
	"sync"

	"github.com/ternarybob/crawlerd/internal/store"
)

// Poller owns one durable priority queue per known project and
// delivers the next ready CrawlMessage round-robin-fairly across them.
// Rotation is an explicit cursor over a stable project order — made
// explicit rather than left to map iteration order, for determinism
// and testability.
type Poller struct {
	db *store.DB

	mu       sync.Mutex
	order    []string
	cursor   int
	queues   map[string]*store.PriorityQueue[CrawlMessage]
	doorbell chan struct{}
}

// NewPoller returns a poller with no known projects; call UpdateProjects
// to register them.
func NewPoller(db *store.DB) *Poller {
	return &Poller{
		db:       db,
		queues:   make(map[string]*store.PriorityQueue[CrawlMessage]),
		doorbell: make(chan struct{}, 1),
	}
}

// UpdateProjects refreshes the known project set. Projects no longer
// present are dropped from the rotation (their durable queue table is
// left untouched — a project reappearing later resumes it). This is
// the ProjectRegistry notification contract of spec §4.2.
func (p *Poller) UpdateProjects(names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]bool, len(names))
	order := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		order = append(order, name)
		if _, ok := p.queues[name]; !ok {
			p.queues[name] = store.NewPriorityQueue[CrawlMessage](p.db, projectQueueTable(name))
		}
	}
	p.order = order
	if p.cursor >= len(order) {
		p.cursor = 0
	}
	p.ring()
}

// Put enqueues msg into project's queue at the given priority. A
// project not yet known is first added to the rotation via
// UpdateProjects.
func (p *Poller) Put(project string, msg CrawlMessage, priority float64) error {
	p.mu.Lock()
	q, ok := p.queues[project]
	p.mu.Unlock()
	if !ok {
		p.UpdateProjects(append(p.Projects(), project))
		p.mu.Lock()
		q = p.queues[project]
		p.mu.Unlock()
	}
	if err := q.Put(msg, priority); err != nil {
		return err
	}
	p.ring()
	return nil
}

// Projects returns the currently known project names.
func (p *Poller) Projects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Pending returns every still-queued message for project, highest
// priority first — the Status view's Pending rows.
func (p *Poller) Pending(project string) ([]CrawlMessage, error) {
	p.mu.Lock()
	q, ok := p.queues[project]
	p.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return q.List()
}

// Next blocks until a message is available from some project's queue,
// returning it along with the project it came from, and advances the
// rotation cursor past the winning project so the following call
// starts from the next one. Cancellation via ctx completes promptly
// without consuming a message.
func (p *Poller) Next(ctx context.Context) (string, CrawlMessage, error) {
	for {
		if project, msg, ok, err := p.tryPop(); err != nil {
			return "", CrawlMessage{}, err
		} else if ok {
			// Chain-wake: another idle waiter may be blocked on the
			// same single-token doorbell. A burst of Puts only rings
			// once (the signal coalesces), so without re-ringing here
			// a successful pop would consume the only token and leave
			// every other idle slot parked even though queues may
			// still be non-empty. Re-ringing after every successful
			// pop lets each wake-up hand the baton to the next waiter
			// until the queues are genuinely drained.
			p.ring()
			return project, msg, nil
		}

		select {
		case <-ctx.Done():
			return "", CrawlMessage{}, ctx.Err()
		case <-p.doorbell:
		}
	}
}

// tryPop attempts one round-robin sweep across every known project,
// starting at the cursor, popping the first non-empty queue found.
func (p *Poller) tryPop() (string, CrawlMessage, bool, error) {
	p.mu.Lock()
	order := make([]string, len(p.order))
	copy(order, p.order)
	start := p.cursor
	p.mu.Unlock()

	if len(order) == 0 {
		return "", CrawlMessage{}, false, nil
	}

	for i := 0; i < len(order); i++ {
		idx := (start + i) % len(order)
		project := order[idx]

		p.mu.Lock()
		q, ok := p.queues[project]
		p.mu.Unlock()
		if !ok {
			continue
		}

		msg, err := q.Pop()
		if err == store.ErrEmpty {
			continue
		}
		if err != nil {
			return "", CrawlMessage{}, false, err
		}

		p.mu.Lock()
		p.cursor = (idx + 1) % len(order)
		p.mu.Unlock()
		return project, msg, true, nil
	}
	return "", CrawlMessage{}, false, nil
}

// ring signals any waiter blocked in Next that a message may now be
// available, without blocking itself if a signal is already pending.
func (p *Poller) ring() {
	select {
	case p.doorbell <- struct{}{}:
	default:
	}
}

func projectQueueTable(project string) string {
	return "project:" + project
}
