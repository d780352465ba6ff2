// Package scheduler provides the background tick loops: the batch monitor
// that drains ready batches and the time scheduler that fires scheduled jobs.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Silverviles/nexar-hal/internal/observability/metrics"
	"github.com/Silverviles/nexar-hal/internal/observability/statsd"
)

// TickService is one unit of periodic work. Tick returns the number of jobs
// it progressed; errors do not stop the loop.
type TickService interface {
	Name() string
	Tick(ctx context.Context, now time.Time) (int, error)
}

// Runner drives a TickService at a fixed interval until the context ends.
type Runner struct {
	service  TickService
	interval time.Duration
	logger   *slog.Logger
	metrics  statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Service  TickService
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  statsd.Sink
}

// NewRunner creates a runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Service == nil {
		return nil, errors.New("tick service is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		service:  opts.Service,
		interval: opts.Interval,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}, nil
}

// Run ticks until the context is cancelled. Tick errors are logged and the
// loop continues.
func (r *Runner) Run(ctx context.Context) error {
	name := r.service.Name()
	r.logger.Info("starting runner", "loop", name, "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping", "loop", name, "cause", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			start := time.Now()
			processed, err := r.service.Tick(ctx, now)
			elapsed := time.Since(start)

			metrics.EmitTick(r.metrics, metrics.TickMetric{
				Loop:      name,
				Processed: processed,
				Duration:  elapsed,
				Err:       err,
			})

			if err != nil {
				r.logger.Error("tick error", "loop", name, "error", err)
			} else if processed > 0 {
				r.logger.Debug("tick processed jobs", "loop", name, "count", processed)
			}
		}
	}
}
