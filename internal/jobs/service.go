package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stefabooks/internal/logger"
)

type SubscriptionExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type PaymentExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// Runner performs the periodic expiry sweep that an external scheduler triggers.
type Runner struct {
	repo          Repository
	subscriptions SubscriptionExpirer
	payments      PaymentExpirer
	now           func() time.Time
}

func NewRunner(repo Repository, subscriptions SubscriptionExpirer, payments PaymentExpirer, now func() time.Time) *Runner {
	if now == nil {
		now = time.Now
	}
	return &Runner{repo: repo, subscriptions: subscriptions, payments: payments, now: now}
}

// Run expires overdue subscriptions and stale pending payments and records
// the outcome in job_runs. Both sweeps run even if the first one fails.
func (r *Runner) Run(ctx context.Context) (run *Run, err error) {
	log := logger.FromContext(ctx).With("job", JobExpire)
	run = &Run{
		Job:       JobExpire,
		Status:    StatusRunning,
		StartedAt: r.now(),
	}
	runID, rErr := r.repo.CreateRun(ctx, run)
	if rErr != nil {
		return nil, fmt.Errorf("record job run: %w", rErr)
	}
	run.ID = runID

	defer func() {
		finished := r.now()
		run.FinishedAt = &finished
		if err != nil {
			run.Status = StatusFailed
			run.Error = err.Error()
		} else {
			run.Status = StatusCompleted
		}
		if updateErr := r.repo.UpdateRun(ctx, run); updateErr != nil {
			log.Error("failed to update job run", "run_id", run.ID, "error", updateErr)
		}
		log.Info("job finished",
			"run_id", run.ID,
			"status", run.Status,
			"subscriptions_expired", run.SubscriptionsExpired,
			"payments_expired", run.PaymentsExpired,
			"duration_ms", finished.Sub(run.StartedAt).Milliseconds())
	}()

	now := run.StartedAt
	var errs []error
	if n, err := r.subscriptions.ExpireOverdue(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("expire subscriptions: %w", err))
	} else {
		run.SubscriptionsExpired = n
	}
	if n, err := r.payments.ExpireStale(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("expire payments: %w", err))
	} else {
		run.PaymentsExpired = n
	}
	return run, errors.Join(errs...)
}
