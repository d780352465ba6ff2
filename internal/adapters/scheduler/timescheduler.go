package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/service"
)

// TimeScheduler fires scheduled jobs whose time arrived: each due submission
// leaves the scheduled index and is routed exactly like a fresh admission.
type TimeScheduler struct {
	store     core.JobStore
	admission *service.AdmissionService
	logger    *slog.Logger
}

// TimeSchedulerOptions holds the dependencies for creating a TimeScheduler.
type TimeSchedulerOptions struct {
	Store     core.JobStore
	Admission *service.AdmissionService
	Logger    *slog.Logger
}

// NewTimeScheduler creates the scheduler.
func NewTimeScheduler(opts TimeSchedulerOptions) (*TimeScheduler, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	if opts.Admission == nil {
		return nil, errors.New("admission service is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &TimeScheduler{
		store:     opts.Store,
		admission: opts.Admission,
		logger:    opts.Logger,
	}, nil
}

// Name identifies the loop in logs and metrics.
func (t *TimeScheduler) Name() string { return "time_scheduler" }

// Tick routes every due scheduled job. Routing failures affect only the job
// concerned; the rest of the due set still fires.
func (t *TimeScheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	due, err := t.store.AllScheduledDue(ctx, now)
	if err != nil {
		return 0, err
	}

	processed := 0
	var errs []error
	for _, sub := range due {
		// Leave the index first so a routing failure cannot re-fire the job
		// every tick; the submission itself stays in the store.
		if err := t.store.RemoveScheduled(ctx, sub.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := t.admission.RouteFired(ctx, sub); err != nil {
			t.logger.ErrorContext(ctx, "routing fired job failed", "job_id", sub.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}
