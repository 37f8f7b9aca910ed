// Package jobs contains the engine's scheduled jobs.
package jobs

import (
	"context"
	"fmt"

	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDRIVE DEAD LETTERS JOB
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetters is the dispatcher side of the job.
type DeadLetters interface {
	PendingDeadLetters() int
	Redrive(limit int) int
}

// Gauge receives the queue size after each run.
type Gauge interface {
	SetDeadLetters(n int)
}

// RedriveDeadLettersJob hands dead-lettered events back to their handlers.
// Handlers that failed on a transient outage (a locked store, an
// unreachable Redis) catch up without a restart.
type RedriveDeadLettersJob struct {
	source DeadLetters
	gauge  Gauge
	batch  int
	log    *logger.Logger
}

// NewRedriveDeadLettersJob creates the job. batch caps the entries retried
// per run; 0 means all of them. gauge may be nil.
func NewRedriveDeadLettersJob(source DeadLetters, gauge Gauge, batch int, log *logger.Logger) *RedriveDeadLettersJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RedriveDeadLettersJob{
		source: source,
		gauge:  gauge,
		batch:  batch,
		log:    log.With(logger.Component("redrive_job")),
	}
}

// Name implements scheduler.Job.
func (j *RedriveDeadLettersJob) Name() string { return "redrive_dead_letters" }

// Description implements scheduler.Job.
func (j *RedriveDeadLettersJob) Description() string {
	return "Retries events whose handlers gave up"
}

// Run implements scheduler.Job. It fails when entries were pending and none
// of them could be handled.
func (j *RedriveDeadLettersJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pending := j.source.PendingDeadLetters()
	if pending == 0 {
		j.report(0)
		return nil
	}

	handled := j.source.Redrive(j.batch)
	remaining := j.source.PendingDeadLetters()
	j.report(remaining)

	j.log.Info("dead letters redriven",
		logger.Int("pending", pending),
		logger.Int("handled", handled),
		logger.Int("remaining", remaining),
	)
	if handled == 0 {
		return fmt.Errorf("redrive: none of %d dead letters could be handled", pending)
	}
	return nil
}

func (j *RedriveDeadLettersJob) report(n int) {
	if j.gauge != nil {
		j.gauge.SetDeadLetters(n)
	}
}
