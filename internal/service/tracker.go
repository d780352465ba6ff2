package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/domain/batch"
	"github.com/Silverviles/nexar-hal/internal/domain/model"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
)

// TrackerService reconciles local job state with the provider on pull, and
// owns cancellation and the scheduled-jobs listing.
type TrackerService struct {
	registry  *core.ProviderRegistry
	store     core.JobStore
	queues    *batch.Queues
	lifecycle *Lifecycle
	logger    *slog.Logger
}

// TrackerServiceOptions holds the dependencies for creating a TrackerService.
type TrackerServiceOptions struct {
	Registry  *core.ProviderRegistry
	Store     core.JobStore
	Queues    *batch.Queues
	Lifecycle *Lifecycle
	Logger    *slog.Logger
}

// NewTrackerService creates the tracker.
func NewTrackerService(opts TrackerServiceOptions) *TrackerService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackerService{
		registry:  opts.Registry,
		store:     opts.Store,
		queues:    opts.Queues,
		lifecycle: opts.Lifecycle,
		logger:    logger,
	}
}

// Status returns the job's reconciled status. Terminal statuses are answered
// locally without a provider call; otherwise, when a provider handle exists,
// the provider's view is reconciled into the store and the new value
// returned. Transient provider errors leave state unchanged and surface to
// the caller.
func (t *TrackerService) Status(ctx context.Context, jobID string) (model.JobStatus, error) {
	sub, err := t.store.Get(ctx, jobID)
	if err != nil {
		return model.JobStatusUnknown, err
	}
	if sub.Status.Terminal() || sub.ProviderJobID == "" {
		return sub.Status, nil
	}

	provider, ok := t.registry.Get(sub.Request.Provider)
	if !ok {
		return sub.Status, nil
	}

	remote, err := provider.GetStatus(ctx, sub.ProviderJobID)
	if err != nil {
		if apperrors.IsTransient(err) {
			return sub.Status, err
		}
		if ferr := t.transitionTo(ctx, sub, model.JobStatusFailed, TransitionParams{Error: err.Error()}); ferr != nil {
			return sub.Status, ferr
		}
		return model.JobStatusFailed, nil
	}

	next, changed := reconcile(sub.Status, remote)
	if !changed {
		return sub.Status, nil
	}
	params := TransitionParams{Reason: "provider status"}
	if next == model.JobStatusFailed {
		params.Error = "provider reported failure"
	}
	if err := t.transitionTo(ctx, sub, next, params); err != nil {
		return sub.Status, err
	}
	return next, nil
}

// reconcile maps a provider-reported status onto the local state machine.
// Composite ids were already split by the provider; UNKNOWN and the
// pre-terminal provider states leave the local status in place.
func reconcile(local, remote model.JobStatus) (model.JobStatus, bool) {
	switch remote {
	case model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled:
		if local != remote && local.CanTransition(remote) {
			return remote, true
		}
	}
	return local, false
}

// Result fetches the provider result for a job at SUBMITTED or later. On the
// first successful fetch the job transitions to COMPLETED and the event
// carries the result payload.
func (t *TrackerService) Result(ctx context.Context, jobID string) (json.RawMessage, error) {
	sub, err := t.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch sub.Status {
	case model.JobStatusFailed:
		return nil, apperrors.Conflictf("job %s failed: %s", jobID, sub.LastError)
	case model.JobStatusCancelled:
		return nil, apperrors.Conflictf("job %s was cancelled", jobID)
	case model.JobStatusSubmitted, model.JobStatusCompleted:
	default:
		return nil, apperrors.Transientf("job %s not submitted yet", jobID)
	}

	provider, ok := t.registry.Get(sub.Request.Provider)
	if !ok {
		return nil, apperrors.Unavailablef("provider %q not registered", sub.Request.Provider)
	}

	result, err := provider.GetResult(ctx, sub.ProviderJobID)
	if err != nil {
		if apperrors.IsTransient(err) || apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return nil, err
		}
		if ferr := t.transitionTo(ctx, sub, model.JobStatusFailed, TransitionParams{Error: err.Error()}); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}

	if sub.Status != model.JobStatusCompleted {
		if err := t.transitionTo(ctx, sub, model.JobStatusCompleted, TransitionParams{Result: result}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Cancel cancels a SCHEDULED or QUEUED job, removing it from its index or
// queue and recording the transition in one step. Cancellation of SUBMITTED
// or terminal jobs is rejected with a conflict.
func (t *TrackerService) Cancel(ctx context.Context, jobID string) error {
	return t.lifecycle.WithJob(ctx, jobID, func(ctx context.Context) error {
		sub, err := t.store.Get(ctx, jobID)
		if err != nil {
			return err
		}

		switch sub.Status {
		case model.JobStatusScheduled:
			if err := t.store.RemoveScheduled(ctx, jobID); err != nil {
				return err
			}
		case model.JobStatusQueued, model.JobStatusQueuedUnavailable:
			if !t.queues.Remove(sub.Key(), jobID) {
				// Already drained toward a dispatcher; too late to cancel.
				return apperrors.Conflictf("job %s is being dispatched", jobID)
			}
		default:
			return apperrors.Conflictf("job %s cannot be cancelled in state %s", jobID, sub.Status)
		}

		return t.lifecycle.Transition(ctx, sub, model.JobStatusCancelled, TransitionParams{
			Reason: "cancelled by caller",
		})
	})
}

// ListScheduled returns every submission currently waiting on its fire time.
func (t *TrackerService) ListScheduled(ctx context.Context) ([]model.ScheduledJob, error) {
	subs, err := t.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScheduledJob, 0)
	for _, sub := range subs {
		if sub.Status != model.JobStatusScheduled || sub.ScheduledTime == nil {
			continue
		}
		out = append(out, model.ScheduledJob{
			JobID:         sub.ID,
			Provider:      sub.Request.Provider,
			Device:        sub.Request.Device,
			ScheduledTime: *sub.ScheduledTime,
			Status:        sub.Status,
			CreatedAt:     sub.CreatedAt,
		})
	}
	return out, nil
}

func (t *TrackerService) transitionTo(
	ctx context.Context,
	sub *model.JobSubmission,
	next model.JobStatus,
	params TransitionParams,
) error {
	return t.lifecycle.WithJob(ctx, sub.ID, func(ctx context.Context) error {
		return t.lifecycle.Transition(ctx, sub, next, params)
	})
}
