package launcher

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/crawlerd/internal/common"
	"github.com/ternarybob/crawlerd/internal/store"
)

const (
	runningTable  = "processes"
	finishedTable = "finished_job"
)

// Config bundles the slot pool's tunables, mirroring spec §6's
// configuration keys that govern launcher behaviour.
type Config struct {
	MaxProc        int
	MaxProcPerCPU  int
	FinishedToKeep int
	Runner         string
}

// maxProc derives the effective concurrency cap per spec §4.3: a
// configured positive value wins outright; otherwise cpu_count *
// max_proc_per_cpu (default 4), falling back to 1 if cpu_count cannot
// be determined to be positive.
func (c Config) maxProc() int {
	if c.MaxProc > 0 {
		return c.MaxProc
	}
	perCPU := c.MaxProcPerCPU
	if perCPU <= 0 {
		perCPU = 4
	}
	cpus := runtime.NumCPU()
	if cpus <= 0 {
		cpus = 1
	}
	n := cpus * perCPU
	if n <= 0 {
		return 1
	}
	return n
}

// Pool is the slot pool / launcher: it owns N slots, each hosting at
// most one child process, couples them to the Poller, and persists
// running/finished state so it survives a restart.
type Pool struct {
	logger arbor.ILogger
	cfg    Config

	poller *Poller
	env    Environment
	sched  Scheduler

	running  *store.Mapping[RunningJob]
	finished *store.List[FinishedJob]

	mu         sync.RWMutex
	processes  map[int]*Supervisor
	runningSet map[int]RunningJob

	finishedCh chan FinishedJob
	events     *Broadcaster
}

// NewPool wires a Pool against db, using poller as its message source,
// env to build each child's environment, and sched to resubmit
// repeat-count copies.
func NewPool(logger arbor.ILogger, db *store.DB, cfg Config, poller *Poller, env Environment, sched Scheduler) *Pool {
	return &Pool{
		logger:     logger,
		cfg:        cfg,
		poller:     poller,
		env:        env,
		sched:      sched,
		running:    store.NewMapping[RunningJob](db, runningTable),
		finished:   store.NewList[FinishedJob](db, finishedTable),
		processes:  make(map[int]*Supervisor),
		runningSet: make(map[int]RunningJob),
		finishedCh: make(chan FinishedJob, 16),
		events:     NewBroadcaster(),
	}
}

// MaxProc returns the effective concurrency cap.
func (p *Pool) MaxProc() int { return p.cfg.maxProc() }

// Events returns the pool's slot-transition broadcaster, consumed by
// the live status push.
func (p *Pool) Events() *Broadcaster { return p.events }

// Start performs startup recovery — resuming any slot the durable
// running-set says was live when the daemon last exited — then brings
// every remaining slot up as an idle waiter. It returns once every
// slot loop has been launched; the loops themselves run until ctx is
// cancelled.
func (p *Pool) Start(ctx context.Context) error {
	maxProc := p.MaxProc()
	p.logger.Info().
		Int("max_proc", maxProc).
		Str("runner", p.cfg.Runner).
		Msg("launcher starting")

	for slot := 0; slot < maxProc; slot++ {
		job, err := p.running.Get(fmt.Sprintf("%d", slot))
		if err == store.ErrNotFound {
			p.startWaiter(ctx, slot)
			continue
		}
		if err != nil {
			return fmt.Errorf("pool: read running slot %d: %w", slot, err)
		}

		// The daemon died while this slot's child was running; the
		// child itself died with it. Re-run its message: at-least-once,
		// not exactly-once (spec §9).
		if err := p.running.Delete(fmt.Sprintf("%d", slot)); err != nil {
			return fmt.Errorf("pool: clear stale running slot %d: %w", slot, err)
		}
		p.logger.Warn().
			Int("slot", slot).
			Str("project", job.Project).
			Str("job", job.Job).
			Msg("respawning after restart")
		p.spawnInSlot(ctx, slot, job.Project, job.Msg)
	}

	go p.finishedWriter(ctx)

	return nil
}

// startWaiter attaches a waiter to the poller for an idle slot.
func (p *Pool) startWaiter(ctx context.Context, slot int) {
	common.SafeGoWithContext(ctx, p.logger, fmt.Sprintf("slot-%d", slot), func() {
		p.slotLoop(ctx, slot)
	})
}

// Snapshot returns a read-only view of pending/running/finished state
// for the status view, per spec §4.5. It performs no mutation; the
// three sections may be mildly inconsistent with one another.
type Snapshot struct {
	Pending  map[string][]CrawlMessage
	Running  []RunningJob
	Finished []FinishedJob
}

func (p *Pool) Snapshot() (Snapshot, error) {
	snap := Snapshot{Pending: make(map[string][]CrawlMessage)}

	for _, project := range p.poller.Projects() {
		msgs, err := p.poller.Pending(project)
		if err != nil {
			return snap, err
		}
		snap.Pending[project] = msgs
	}

	p.mu.RLock()
	for _, job := range p.runningSet {
		snap.Running = append(snap.Running, job)
	}
	p.mu.RUnlock()

	finished, err := p.finished.Iterate()
	if err != nil {
		return snap, err
	}
	snap.Finished = finished

	return snap, nil
}

// ReconcileStale cross-checks the durable running-set against
// in-memory supervisors and logs (never mutates) any divergence. This
// supplements the spec with a lightweight staleness detector; the slot
// loop remains the sole writer of running->finished transitions.
func (p *Pool) ReconcileStale() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries, err := p.running.Entries()
	if err != nil {
		p.logger.Warn().Err(err).Msg("reconcile: read running set")
		return
	}
	for key, job := range entries {
		slot := job.Slot
		if _, ok := p.processes[slot]; !ok {
			p.logger.Warn().
				Str("slot_key", key).
				Int("slot", slot).
				Str("job", job.Job).
				Msg("reconcile: running-set entry has no in-memory supervisor")
		}
	}
}
