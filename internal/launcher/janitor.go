package launcher

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Janitor runs Pool.ReconcileStale on a cron schedule. It never kills
// or mutates a running job; it only logs divergence between the
// durable running-set and the in-memory supervisors, supplementing
// the spec with the teacher's stale-job-detector pattern scaled down
// to an observation-only sweep (the slot loop remains the sole writer
// of running->finished transitions, per spec §5).
type Janitor struct {
	logger arbor.ILogger
	cron   *cron.Cron
	pool   *Pool
}

// NewJanitor builds a Janitor that calls pool.ReconcileStale according
// to schedule, a standard 5-field cron expression.
func NewJanitor(logger arbor.ILogger, pool *Pool, schedule string) (*Janitor, error) {
	c := cron.New()
	j := &Janitor{logger: logger, cron: c, pool: pool}

	_, err := c.AddFunc(schedule, func() {
		logger.Debug().Msg("reconciliation sweep starting")
		pool.ReconcileStale()
	})
	if err != nil {
		return nil, fmt.Errorf("janitor: invalid schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins the cron scheduler.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the cron scheduler, waiting for any in-flight run.
func (j *Janitor) Stop() { <-j.cron.Stop().Done() }
