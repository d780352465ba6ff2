package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/domain/batch"
	"github.com/Silverviles/nexar-hal/internal/domain/model"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
	"github.com/Silverviles/nexar-hal/internal/observability/statsd"
)

// DispatchService packs eligible submissions into provider calls and binds
// the returned handles back onto the submissions.
type DispatchService struct {
	registry  *core.ProviderRegistry
	store     core.JobStore
	lifecycle *Lifecycle
	logger    *slog.Logger
	metrics   statsd.Sink
}

// DispatchServiceOptions holds the dependencies for creating a DispatchService.
type DispatchServiceOptions struct {
	Registry  *core.ProviderRegistry
	Store     core.JobStore
	Lifecycle *Lifecycle
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// NewDispatchService creates the dispatcher.
func NewDispatchService(opts DispatchServiceOptions) *DispatchService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchService{
		registry:  opts.Registry,
		store:     opts.Store,
		lifecycle: opts.Lifecycle,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Dispatch sends one drained group to its provider. Background errors never
// surface to the original caller; they land on the submissions and are
// emitted as events. The returned error reports infrastructure trouble only
// (store reads), for the runner's logs.
func (d *DispatchService) Dispatch(ctx context.Context, group batch.Group) error {
	subs, err := d.loadDispatchable(ctx, group.JobIDs)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	provider, ok := d.registry.Get(group.Key.Provider)
	if !ok {
		return d.failAll(ctx, subs, apperrors.Unavailablef("provider %q not registered", group.Key.Provider))
	}

	if group.SourceCode {
		return d.dispatchCode(ctx, provider, group, subs[0])
	}
	return d.dispatchTasks(ctx, provider, group, subs)
}

// loadDispatchable reads the submissions for a group, skipping any that left
// the QUEUED state between drain and dispatch (e.g. a racing cancel).
func (d *DispatchService) loadDispatchable(ctx context.Context, jobIDs []string) ([]*model.JobSubmission, error) {
	subs := make([]*model.JobSubmission, 0, len(jobIDs))
	for _, id := range jobIDs {
		sub, err := d.store.Get(ctx, id)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
				continue
			}
			return nil, err
		}
		if sub.Status != model.JobStatusQueued {
			d.logger.DebugContext(ctx, "skipping non-queued submission at dispatch",
				"job_id", sub.ID, "status", sub.Status)
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (d *DispatchService) dispatchCode(
	ctx context.Context,
	provider core.Provider,
	group batch.Group,
	sub *model.JobSubmission,
) error {
	executor, ok := provider.(core.CodeExecutor)
	if !ok {
		return d.failAll(ctx, []*model.JobSubmission{sub},
			apperrors.InvalidRequestf("provider %q does not execute source code", provider.Name()))
	}

	providerJobID, err := executor.ExecuteCode(ctx, core.ExecuteCodeParams{
		Device: group.Key.Device,
		Shots:  group.Shots,
		Source: sub.Request.Source,
	})
	if err != nil {
		d.count("dispatch.code", "failed", group.Key)
		return d.failAll(ctx, []*model.JobSubmission{sub}, err)
	}

	d.count("dispatch.code", "submitted", group.Key)
	return d.lifecycle.WithJob(ctx, sub.ID, func(ctx context.Context) error {
		return d.lifecycle.Transition(ctx, sub, model.JobStatusSubmitted, TransitionParams{
			ProviderJobID: providerJobID,
		})
	})
}

func (d *DispatchService) dispatchTasks(
	ctx context.Context,
	provider core.Provider,
	group batch.Group,
	subs []*model.JobSubmission,
) error {
	tasks := make([]json.RawMessage, len(subs))
	for i, sub := range subs {
		tasks[i] = sub.Request.Payload
	}

	ids, err := provider.ExecuteBatch(ctx, core.ExecuteBatchParams{
		Device: group.Key.Device,
		Shots:  group.Shots,
		Tasks:  tasks,
	})
	if err != nil {
		d.count("dispatch.batch", "failed", group.Key)
		return d.failAll(ctx, subs, err)
	}
	if len(ids) != len(tasks) {
		d.count("dispatch.batch", "failed", group.Key)
		return d.failAll(ctx, subs,
			apperrors.Internal("provider returned a handle list of the wrong length"))
	}

	d.count("dispatch.batch", "submitted", group.Key)
	if d.metrics != nil {
		d.metrics.Gauge("dispatch.batch_size", float64(len(subs)), map[string]string{"key": group.Key.String()})
	}

	// The i-th returned handle binds to the i-th input submission.
	return d.lifecycle.TransitionMany(ctx, subs, model.JobStatusSubmitted, func(i int) TransitionParams {
		return TransitionParams{ProviderJobID: ids[i]}
	})
}

// failAll fails every submission in the call with the same error. Partial
// success is not assumed.
func (d *DispatchService) failAll(ctx context.Context, subs []*model.JobSubmission, cause error) error {
	msg := cause.Error()
	err := d.lifecycle.TransitionMany(ctx, subs, model.JobStatusFailed, func(int) TransitionParams {
		return TransitionParams{Error: msg}
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to record batch failure", "error", err, "cause", msg)
	}
	return nil
}

func (d *DispatchService) count(name, result string, key model.BatchKey) {
	if d.metrics == nil {
		return
	}
	d.metrics.Count(name, 1, map[string]string{"result": result, "key": key.String()})
}
