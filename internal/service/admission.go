package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/domain/batch"
	"github.com/Silverviles/nexar-hal/internal/domain/model"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
	"github.com/Silverviles/nexar-hal/internal/observability/statsd"
)

// AdmissionService turns a JobRequest into a durable JobSubmission and
// routes it: scheduled, queued-unavailable, high-priority singleton dispatch,
// or the standard batch queue.
type AdmissionService struct {
	registry   *core.ProviderRegistry
	store      core.JobStore
	queues     *batch.Queues
	lifecycle  *Lifecycle
	dispatcher *DispatchService
	cfg        core.OrchestratorConfig
	logger     *slog.Logger
	metrics    statsd.Sink
	nowFn      func() time.Time
}

// AdmissionServiceOptions holds the dependencies for creating an AdmissionService.
type AdmissionServiceOptions struct {
	Registry   *core.ProviderRegistry
	Store      core.JobStore
	Queues     *batch.Queues
	Lifecycle  *Lifecycle
	Dispatcher *DispatchService
	Config     core.OrchestratorConfig
	Logger     *slog.Logger
	Metrics    statsd.Sink
	Now        func() time.Time
}

// NewAdmissionService creates the admission service.
func NewAdmissionService(opts AdmissionServiceOptions) *AdmissionService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &AdmissionService{
		registry:   opts.Registry,
		store:      opts.Store,
		queues:     opts.Queues,
		lifecycle:  opts.Lifecycle,
		dispatcher: opts.Dispatcher,
		cfg:        opts.Config,
		logger:     logger,
		metrics:    opts.Metrics,
		nowFn:      nowFn,
	}
}

// Submit validates, persists and routes one request, returning the new job
// id. Validation failures are synchronous and persist nothing.
func (s *AdmissionService) Submit(ctx context.Context, req model.JobRequest) (string, error) {
	provider, err := s.validate(ctx, &req)
	if err != nil {
		s.count("admission.submit", "rejected")
		return "", err
	}

	now := s.nowFn()
	sub := &model.JobSubmission{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.ScheduledTime != nil && req.ScheduledTime.After(now) {
		sub.ScheduledTime = req.ScheduledTime
	}

	// Crash-safety precondition: the PENDING record is durable before any
	// routing happens.
	if err := s.store.Put(ctx, sub); err != nil {
		s.count("admission.submit", "store_error")
		return "", apperrors.TransientWrap("persist submission", err)
	}

	if err := s.route(ctx, sub, provider); err != nil {
		return "", err
	}
	s.count("admission.submit", "accepted")
	return sub.ID, nil
}

// validate applies the synchronous admission checks: request shape, provider
// and device registration, shots limits, source-code capability, and
// backpressure for STANDARD submissions.
func (s *AdmissionService) validate(ctx context.Context, req *model.JobRequest) (core.Provider, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.InvalidRequest(err.Error())
	}

	provider, ok := s.registry.Get(req.Provider)
	if !ok {
		return nil, apperrors.InvalidRequestf("unknown provider %q", req.Provider)
	}

	device, err := s.findDevice(ctx, provider, req.Device)
	if err != nil {
		return nil, err
	}
	if device.MaxShots > 0 && req.Shots > device.MaxShots {
		return nil, apperrors.InvalidRequestField("shots",
			fmt.Sprintf("shots %d exceeds device limit %d", req.Shots, device.MaxShots))
	}

	if req.IsSourceCode {
		if _, ok := provider.(core.CodeExecutor); !ok {
			return nil, apperrors.InvalidRequestf("provider %q does not execute source code", req.Provider)
		}
	}

	if req.Priority == model.PriorityStandard && req.ScheduledTime == nil {
		if s.queues.Len(req.Key()) >= s.cfg.BackpressureHighWater {
			return nil, apperrors.Unavailablef("batch queue for %s is full", req.Key())
		}
	}
	return provider, nil
}

func (s *AdmissionService) findDevice(ctx context.Context, provider core.Provider, name string) (model.Device, error) {
	devices, err := provider.ListDevices(ctx)
	if err != nil {
		return model.Device{}, apperrors.TransientWrap("list devices", err)
	}
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	return model.Device{}, apperrors.InvalidRequestField("device",
		fmt.Sprintf("unknown device %q on provider %q", name, provider.Name()))
}

// route classifies the persisted submission. The same logic serves fresh
// admissions and scheduled jobs whose fire time arrived. Any HIGH-priority
// dispatch happens after the job's critical section is released, because the
// dispatcher re-enters it to bind the provider handle.
func (s *AdmissionService) route(ctx context.Context, sub *model.JobSubmission, provider core.Provider) error {
	var dispatch *batch.Group
	err := s.lifecycle.WithJob(ctx, sub.ID, func(ctx context.Context) error {
		if sub.ScheduledTime != nil && sub.Status == model.JobStatusPending {
			return s.lifecycle.Transition(ctx, sub, model.JobStatusScheduled, TransitionParams{})
		}
		var rerr error
		dispatch, rerr = s.routeActive(ctx, sub, provider)
		return rerr
	})
	if err != nil || dispatch == nil {
		return err
	}
	return s.dispatcher.Dispatch(ctx, *dispatch)
}

// routeActive routes a submission whose fire time (if any) has passed. The
// caller holds the job's critical section. A non-nil group means the caller
// must dispatch it once the critical section is released.
func (s *AdmissionService) routeActive(ctx context.Context, sub *model.JobSubmission, provider core.Provider) (*batch.Group, error) {
	req := &sub.Request

	if req.QueueIfUnavailable && !s.deviceAvailable(ctx, provider, req.Device) {
		if err := s.lifecycle.Transition(ctx, sub, model.JobStatusQueuedUnavailable, TransitionParams{
			Reason: "device unavailable",
		}); err != nil {
			return nil, err
		}
		s.enqueue(sub, true)
		return nil, nil
	}

	if err := s.lifecycle.Transition(ctx, sub, model.JobStatusQueued, TransitionParams{}); err != nil {
		return nil, err
	}

	if req.Priority == model.PriorityHigh {
		// HIGH bypasses batching: dispatch a singleton batch now.
		return &batch.Group{
			Key:        req.Key(),
			Shots:      req.Shots,
			SourceCode: req.IsSourceCode,
			JobIDs:     []string{sub.ID},
		}, nil
	}

	s.enqueue(sub, false)
	return nil, nil
}

// RouteFired routes a job whose scheduled time arrived, exactly as admission
// would route a fresh non-scheduled submission. Called by the time scheduler.
// The caller's copy is stale by the time the critical section is held, so the
// submission is re-read under the lock; a job that left SCHEDULED in the
// meantime (a racing cancel) is skipped.
func (s *AdmissionService) RouteFired(ctx context.Context, sub *model.JobSubmission) error {
	provider, registered := s.registry.Get(sub.Request.Provider)

	var dispatch *batch.Group
	err := s.lifecycle.WithJob(ctx, sub.ID, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, sub.ID)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
				return nil
			}
			return err
		}
		if current.Status != model.JobStatusScheduled {
			s.logger.DebugContext(ctx, "skipping fired job that left the scheduled state",
				"job_id", current.ID, "status", current.Status)
			return nil
		}

		if !registered {
			queued := s.lifecycle.Transition(ctx, current, model.JobStatusQueued, TransitionParams{})
			if queued != nil {
				return queued
			}
			return s.lifecycle.Transition(ctx, current, model.JobStatusFailed, TransitionParams{
				Error: "provider no longer registered",
			})
		}

		var rerr error
		dispatch, rerr = s.routeActive(ctx, current, provider)
		return rerr
	})
	if err != nil || dispatch == nil {
		return err
	}
	return s.dispatcher.Dispatch(ctx, *dispatch)
}

func (s *AdmissionService) deviceAvailable(ctx context.Context, provider core.Provider, device string) bool {
	av, err := provider.CheckAvailability(ctx, device)
	if err != nil {
		s.logger.WarnContext(ctx, "availability check failed; treating device as unavailable",
			"provider", provider.Name(), "device", device, "error", err)
		return false
	}
	av.Threshold = s.cfg.DeviceQueueThreshold
	return av.Available()
}

func (s *AdmissionService) enqueue(sub *model.JobSubmission, unavailable bool) {
	s.queues.Enqueue(batch.Entry{
		JobID:       sub.ID,
		Key:         sub.Key(),
		Shots:       sub.Request.Shots,
		Strategy:    sub.Request.Strategy,
		SourceCode:  sub.Request.IsSourceCode,
		Unavailable: unavailable,
		EnqueuedAt:  s.nowFn(),
	})
}

func (s *AdmissionService) count(name, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.Count(name, 1, map[string]string{"result": result})
}
