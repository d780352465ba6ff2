// Package service implements the HAL application services: admission,
// dispatch, and status tracking.
package service

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/domain/model"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
	"golang.org/x/sync/errgroup"
)

const lifecycleShards = 64

// Lifecycle owns the persist-then-publish discipline for status transitions.
// All writes to a submission go through Transition under a per-job critical
// section, sharded by job id hash so unrelated jobs proceed in parallel.
type Lifecycle struct {
	store     core.JobStore
	publisher core.EventPublisher
	logger    *slog.Logger
	nowFn     func() time.Time

	shards [lifecycleShards]chan struct{}
}

// LifecycleOptions holds the dependencies for creating a Lifecycle.
type LifecycleOptions struct {
	Store     core.JobStore
	Publisher core.EventPublisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewLifecycle creates the transition coordinator.
func NewLifecycle(opts LifecycleOptions) *Lifecycle {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	l := &Lifecycle{
		store:     opts.Store,
		publisher: opts.Publisher,
		logger:    logger,
		nowFn:     nowFn,
	}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *Lifecycle) shardFor(jobID string) chan struct{} {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobID))
	return l.shards[h.Sum32()%lifecycleShards]
}

// WithJob runs fn while holding the job's critical section. The lock is a
// buffered channel so waiting respects ctx cancellation.
func (l *Lifecycle) WithJob(ctx context.Context, jobID string, fn func(context.Context) error) error {
	shard := l.shardFor(jobID)
	select {
	case shard <- struct{}{}:
	case <-ctx.Done():
		return apperrors.TransientWrap("acquire job lock", ctx.Err())
	}
	defer func() { <-shard }()
	return fn(ctx)
}

// TransitionParams carry the optional fields a transition records.
type TransitionParams struct {
	ProviderJobID string
	Error         string
	Reason        string
	Result        json.RawMessage
}

// Transition validates the move, persists it, then publishes the lifecycle
// event. A store failure aborts the transition; a publish failure is logged
// and dropped because the store is authoritative. The caller must hold the
// job's critical section.
func (l *Lifecycle) Transition(
	ctx context.Context,
	sub *model.JobSubmission,
	next model.JobStatus,
	params TransitionParams,
) error {
	if !sub.Status.CanTransition(next) {
		return apperrors.Conflictf("illegal transition %s -> %s for job %s", sub.Status, next, sub.ID)
	}

	now := l.nowFn()
	sub.Status = next
	sub.UpdatedAt = now
	if params.ProviderJobID != "" {
		sub.ProviderJobID = params.ProviderJobID
	}
	if params.Error != "" {
		sub.LastError = params.Error
	}

	if err := l.store.Put(ctx, sub); err != nil {
		return apperrors.TransientWrap("persist transition", err)
	}

	event := model.NewLifecycleEvent(sub, now)
	event.Reason = params.Reason
	event.Result = params.Result
	l.publish(ctx, event)
	return nil
}

func (l *Lifecycle) publish(ctx context.Context, event model.LifecycleEvent) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.WarnContext(ctx, "dropping lifecycle event after publish failure",
			"job_id", event.JobID,
			"status", event.Status,
			"error", err)
	}
}

// TransitionMany applies the same transition to a set of jobs concurrently,
// each under its own critical section. Used by the dispatcher for whole-batch
// failure and submission binding.
func (l *Lifecycle) TransitionMany(
	ctx context.Context,
	subs []*model.JobSubmission,
	next model.JobStatus,
	params func(i int) TransitionParams,
) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, sub := range subs {
		g.Go(func() error {
			return l.WithJob(gctx, sub.ID, func(ctx context.Context) error {
				return l.Transition(ctx, sub, next, params(i))
			})
		})
	}
	return g.Wait()
}
