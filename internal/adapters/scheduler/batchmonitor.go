package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/domain/batch"
	"github.com/Silverviles/nexar-hal/internal/domain/model"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
	"github.com/Silverviles/nexar-hal/internal/service"
)

// BatchMonitor walks the batch queues each tick: it re-checks device
// availability for members parked as unavailable, promotes them back to
// QUEUED when the device recovers, and hands ready batches to the dispatcher.
type BatchMonitor struct {
	registry   *core.ProviderRegistry
	store      core.JobStore
	queues     *batch.Queues
	lifecycle  *service.Lifecycle
	dispatcher *service.DispatchService
	cfg        core.OrchestratorConfig
	logger     *slog.Logger
}

// BatchMonitorOptions holds the dependencies for creating a BatchMonitor.
type BatchMonitorOptions struct {
	Registry   *core.ProviderRegistry
	Store      core.JobStore
	Queues     *batch.Queues
	Lifecycle  *service.Lifecycle
	Dispatcher *service.DispatchService
	Config     core.OrchestratorConfig
	Logger     *slog.Logger
}

// NewBatchMonitor creates the monitor.
func NewBatchMonitor(opts BatchMonitorOptions) (*BatchMonitor, error) {
	switch {
	case opts.Registry == nil:
		return nil, errors.New("provider registry is required")
	case opts.Store == nil:
		return nil, errors.New("job store is required")
	case opts.Queues == nil:
		return nil, errors.New("batch queues are required")
	case opts.Lifecycle == nil:
		return nil, errors.New("lifecycle is required")
	case opts.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &BatchMonitor{
		registry:   opts.Registry,
		store:      opts.Store,
		queues:     opts.Queues,
		lifecycle:  opts.Lifecycle,
		dispatcher: opts.Dispatcher,
		cfg:        opts.Config,
		logger:     opts.Logger,
	}, nil
}

// Name identifies the loop in logs and metrics.
func (m *BatchMonitor) Name() string { return "batch_monitor" }

// Tick processes every non-empty queue key once. A key failure does not stop
// the remaining keys; errors are joined and returned.
func (m *BatchMonitor) Tick(ctx context.Context, now time.Time) (int, error) {
	processed := 0
	var errs []error

	for _, key := range m.queues.Keys() {
		n, err := m.tickKey(ctx, key, now)
		processed += n
		if err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}
	return processed, errors.Join(errs...)
}

func (m *BatchMonitor) tickKey(ctx context.Context, key model.BatchKey, now time.Time) (int, error) {
	processed := 0

	// One availability probe per key per tick, and only when someone waits.
	// The queue entry flips to available only after the QUEUED transition
	// persisted; a failed promote leaves the member parked for the next tick.
	if parked := m.queues.UnavailableMembers(key); len(parked) > 0 && m.deviceAvailable(ctx, key) {
		for _, jobID := range parked {
			promoted, err := m.promote(ctx, jobID)
			if err != nil {
				m.logger.ErrorContext(ctx, "promote failed", "job_id", jobID, "error", err)
				continue
			}
			if !promoted {
				// The store no longer says parked; drop the stale entry.
				m.queues.Remove(key, jobID)
				continue
			}
			m.queues.MarkMemberAvailable(key, jobID)
			processed++
		}
	}

	for _, group := range m.queues.TakeReady(key, now, batch.Config{
		MaxBatchSize: m.cfg.MaxBatchSize,
		TimeWait:     m.cfg.TimeWait,
		CostWait:     m.cfg.CostWait,
	}) {
		if err := m.dispatcher.Dispatch(ctx, group); err != nil {
			return processed, err
		}
		processed += len(group.JobIDs)
	}
	return processed, nil
}

// promote records the device recovery for one parked job. It reports whether
// the transition committed; submissions that disappeared or already moved on
// return false with no error.
func (m *BatchMonitor) promote(ctx context.Context, jobID string) (bool, error) {
	promoted := false
	err := m.lifecycle.WithJob(ctx, jobID, func(ctx context.Context) error {
		sub, err := m.store.Get(ctx, jobID)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
				return nil
			}
			return err
		}
		if sub.Status != model.JobStatusQueuedUnavailable {
			return nil
		}
		if err := m.lifecycle.Transition(ctx, sub, model.JobStatusQueued, service.TransitionParams{
			Reason: "device now available",
		}); err != nil {
			return err
		}
		promoted = true
		return nil
	})
	return promoted, err
}

func (m *BatchMonitor) deviceAvailable(ctx context.Context, key model.BatchKey) bool {
	provider, ok := m.registry.Get(key.Provider)
	if !ok {
		return false
	}
	av, err := provider.CheckAvailability(ctx, key.Device)
	if err != nil {
		m.logger.WarnContext(ctx, "availability check failed",
			"provider", key.Provider, "device", key.Device, "error", err)
		return false
	}
	av.Threshold = m.cfg.DeviceQueueThreshold
	return av.Available()
}
