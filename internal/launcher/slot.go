package launcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/crawlerd/internal/common"
)

// slotLoop is one slot's independent waiter -> spawner -> awaiter ->
// recorder loop. It returns when ctx is cancelled, or once a valid
// message has been handed to runSlot, which reattaches a fresh waiter
// for the slot after the child exits.
func (p *Pool) slotLoop(ctx context.Context, slot int) {
	for {
		project, msg, err := p.poller.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error().Err(err).Int("slot", slot).Msg("poller.Next failed")
			continue
		}

		if verr := msg.Validate(); verr != nil {
			p.logger.Warn().Err(verr).Int("slot", slot).Str("project", project).Msg("malformed crawl message, not requeued")
			p.recordMalformed(slot, project, msg, verr)
			continue
		}

		p.runSlot(ctx, slot, project, msg)
		return
	}
}

// spawnInSlot is the startup-recovery path: it re-runs msg in slot
// directly, without waiting on the poller, because the durable
// running-set already reserved this slot for it.
func (p *Pool) spawnInSlot(ctx context.Context, slot int, project string, msg CrawlMessage) {
	common.SafeGoWithContext(ctx, p.logger, fmt.Sprintf("slot-%d", slot), func() {
		p.runSlot(ctx, slot, project, msg)
	})
}

// runSlot spawns msg's child in slot, records RunningJob durably and
// in-memory, waits for completion, then hands the slot back to
// startWaiter for its next message. Step order follows spec §4.3:
// spawn -> record running -> await exit -> finished record -> repeat
// resubmit -> reattach waiter.
func (p *Pool) runSlot(ctx context.Context, slot int, project string, msg CrawlMessage) {
	env, err := p.env.BuildEnv(ctx, slot, msg)
	if err != nil {
		p.logger.Error().Err(err).Int("slot", slot).Msg("environment build failed")
		p.recordSpawnFailure(slot, project, msg, nil, err)
		p.startWaiter(ctx, slot)
		return
	}

	argv := buildArgv(p.cfg.Runner, msg)
	startTime := time.Now().UTC()

	sup, err := Spawn(ctx, p.logger, argv, env)
	running := RunningJob{
		Slot:      slot,
		Project:   project,
		Spider:    msg.Spider,
		Job:       msg.Job,
		Priority:  msg.PriorityValue(),
		StartTime: startTime,
		Env:       env,
		Msg:       msg,
		LogFile:   env["SCRAPY_LOG_FILE"],
		ItemsFile: env["SCRAPY_FEED_URI"],
	}
	if sup != nil {
		running.Pid = sup.Pid()
	}

	if err != nil {
		// Spawn itself failed: error taxonomy item 4, immediate
		// crashed-exit, repeat-count resubmission still applies.
		p.recordSpawnFailure(slot, project, msg, &running, err)
		p.startWaiter(ctx, slot)
		return
	}

	p.mu.Lock()
	p.processes[slot] = sup
	p.runningSet[slot] = running
	p.mu.Unlock()
	if err := p.running.Set(fmt.Sprintf("%d", slot), running); err != nil {
		p.logger.Error().Err(err).Int("slot", slot).Msg("persist running slot failed")
	}
	p.events.Publish(Event{Type: EventSpawned, Slot: slot, Job: running})

	outcome := <-sup.Done()

	p.completeSlot(slot, running, outcome.ExitCode, outcome.Err)
	p.startWaiter(ctx, slot)
}

// completeSlot performs the four durable steps spec §4.3 requires on
// child exit, in order: remove from running-set, remove in-memory,
// write finished record (serialized via finishedCh), then resubmit a
// repeat-count copy if requested.
func (p *Pool) completeSlot(slot int, running RunningJob, exitCode int, childErr error) {
	if err := p.running.Delete(fmt.Sprintf("%d", slot)); err != nil {
		p.logger.Error().Err(err).Int("slot", slot).Msg("clear running slot failed")
	}

	p.mu.Lock()
	delete(p.processes, slot)
	delete(p.runningSet, slot)
	p.mu.Unlock()

	finished := FinishedJob{
		RunningJob: running,
		EndTime:    time.Now().UTC(),
		ExitCode:   exitCode,
	}
	if childErr != nil {
		finished.ExitErr = childErr.Error()
	}

	p.finishedCh <- finished
	p.events.Publish(Event{Type: EventFinished, Slot: slot, Job: running})

	p.resubmitIfRepeating(running.Project, running.Msg)
}

// resubmitIfRepeating decrements count and re-schedules a fresh copy
// through the Scheduler collaborator, the same path an external
// scheduler would use, when the completed message asked to repeat.
func (p *Pool) resubmitIfRepeating(project string, msg CrawlMessage) {
	count := msg.EffectiveCount()
	if count <= 1 {
		return
	}
	next := msg.WithCount(count - 1).WithNewJob()
	if p.sched == nil {
		p.logger.Warn().Str("project", project).Msg("repeat-count resubmission requested but no scheduler wired")
		return
	}
	if err := p.sched.Schedule(project, next); err != nil {
		p.logger.Error().Err(err).Str("project", project).Str("job", next.Job).Msg("repeat-count resubmission failed")
	}
}

// recordMalformed records a synthetic Finished entry for a message
// that failed validation after dequeue, per error taxonomy item 3. The
// message is never re-queued.
func (p *Pool) recordMalformed(slot int, project string, msg CrawlMessage, cause error) {
	now := time.Now().UTC()
	finished := FinishedJob{
		RunningJob: RunningJob{
			Slot:      slot,
			Project:   project,
			Spider:    msg.Spider,
			Job:       msg.Job,
			Priority:  msg.PriorityValue(),
			StartTime: now,
			Msg:       msg,
		},
		EndTime:  now,
		ExitCode: -1,
		ExitErr:  cause.Error(),
	}
	p.finishedCh <- finished
}

// recordSpawnFailure records a synthetic Finished entry for a message
// whose child process could not be spawned at all, per error taxonomy
// item 4, then still honours repeat-count resubmission.
func (p *Pool) recordSpawnFailure(slot int, project string, msg CrawlMessage, running *RunningJob, cause error) {
	now := time.Now().UTC()
	base := RunningJob{
		Slot:      slot,
		Project:   project,
		Spider:    msg.Spider,
		Job:       msg.Job,
		Priority:  msg.PriorityValue(),
		StartTime: now,
		Msg:       msg,
	}
	if running != nil {
		base = *running
	}
	finished := FinishedJob{
		RunningJob: base,
		EndTime:    now,
		ExitCode:   -1,
		ExitErr:    cause.Error(),
	}
	p.finishedCh <- finished
	p.resubmitIfRepeating(project, msg)
}

// finishedWriter is the single serialized task that mutates the
// finished list: append then truncate to the last finishedToKeep
// entries. Serializing every mutation through one goroutine is the
// discipline spec §4.3 calls for so concurrent completions cannot
// produce a list shorter than finishedToKeep when more than that many
// exist. Truncate keys its cutoff on the list's monotonic insertion
// sequence rather than a recomputed row count, so the cutoff stays
// correct across repeated append-then-truncate cycles.
func (p *Pool) finishedWriter(ctx context.Context) {
	keep := p.cfg.FinishedToKeep
	if keep <= 0 {
		keep = 100
	}
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.finishedCh:
			if _, err := p.finished.Append(job); err != nil {
				p.logger.Error().Err(err).Msg("append finished job failed")
				continue
			}
			if err := p.finished.Truncate(keep); err != nil {
				p.logger.Error().Err(err).Msg("truncate finished list failed")
			}
		}
	}
}

// buildArgv constructs the child argv: runner as the executable
// (argv[0]), "crawl", the spider name, then flattened -a and -s pairs.
func buildArgv(runner string, msg CrawlMessage) []string {
	argv := []string{runner, "crawl", msg.Spider}
	argv = append(argv, msg.CrawlArgs()...)
	argv = append(argv, msg.SettingsArgs()...)
	return argv
}
