package jobs

import (
	"context"

	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// PendingIncrements is the award ledger side of RetryEarnCountersJob.
type PendingIncrements interface {
	PendingIncrements() int
	RetryPending(ctx context.Context) (int, error)
}

// RetryEarnCountersJob applies earn counter increments that failed after
// their grant was saved.
type RetryEarnCountersJob struct {
	ledger PendingIncrements
	log    *logger.Logger
}

func NewRetryEarnCountersJob(ledger PendingIncrements, log *logger.Logger) *RetryEarnCountersJob {
	if log == nil {
		log = logger.Nop()
	}
	return &RetryEarnCountersJob{ledger: ledger, log: log.With(logger.Component("earn_counter_job"))}
}

// Name implements scheduler.Job.
func (j *RetryEarnCountersJob) Name() string { return "retry_earn_counters" }

// Description implements scheduler.Job.
func (j *RetryEarnCountersJob) Description() string {
	return "Applies earn counter increments that failed after a grant"
}

// Run implements scheduler.Job.
func (j *RetryEarnCountersJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j.ledger.PendingIncrements() == 0 {
		return nil
	}

	applied, err := j.ledger.RetryPending(ctx)
	j.log.Info("earn counter increments retried",
		logger.Int("applied", applied),
		logger.Int("remaining", j.ledger.PendingIncrements()),
	)
	return err
}
