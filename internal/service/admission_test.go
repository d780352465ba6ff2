package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/domain/model"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
)

func TestSubmitStandardQueues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	jobID, err := env.admission.Submit(ctx, taskRequest())
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	sub, err := env.store.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, sub.Status)

	assert.Equal(t, 1, env.queues.Len(sub.Key()))
	assert.Equal(t, 0, env.sim.BackendRuns(), "standard submissions wait for the batch monitor")
	assert.Equal(t, []model.JobStatus{model.JobStatusQueued}, env.publisher.statuses())
}

func TestSubmitHighPriorityDispatchesImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := taskRequest()
	req.Priority = model.PriorityHigh
	jobID, err := env.admission.Submit(ctx, req)
	require.NoError(t, err)

	sub, err := env.store.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSubmitted, sub.Status)
	assert.NotEmpty(t, sub.ProviderJobID)

	assert.Equal(t, 1, env.sim.BackendRuns())
	assert.Equal(t, 0, env.queues.Len(sub.Key()), "high priority never touches the batch queue")
	assert.Equal(t, []model.JobStatus{model.JobStatusQueued, model.JobStatusSubmitted}, env.publisher.statuses())
}

func TestSubmitValidationFailurePersistsNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*model.JobRequest)
		field  string
	}{
		{"unknown provider", func(r *model.JobRequest) { r.Provider = "nope" }, ""},
		{"unknown device", func(r *model.JobRequest) { r.Device = "nope" }, "device"},
		{"zero shots", func(r *model.JobRequest) { r.Shots = 0 }, ""},
		{"shots above device limit", func(r *model.JobRequest) { r.Shots = 1_000_000 }, "shots"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := taskRequest()
			tc.mutate(&req)
			_, err := env.admission.Submit(ctx, req)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
			if tc.field != "" {
				var appErr *apperrors.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tc.field, appErr.Field)
			}
		})
	}

	subs, err := env.store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs, "rejected submissions must not be persisted")
	assert.Empty(t, env.publisher.events)
}

func TestSubmitFutureScheduledTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fireAt := time.Now().Add(time.Hour)
	req := taskRequest()
	req.ScheduledTime = &fireAt

	jobID, err := env.admission.Submit(ctx, req)
	require.NoError(t, err)

	sub, err := env.store.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusScheduled, sub.Status)
	require.NotNil(t, sub.ScheduledTime)
	assert.Equal(t, 0, env.queues.Len(sub.Key()))

	due, err := env.store.AllScheduledDue(ctx, fireAt.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, jobID, due[0].ID)
}

func TestSubmitPastScheduledTimeRoutesImmediately(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fireAt := time.Now().Add(-time.Minute)
	req := taskRequest()
	req.ScheduledTime = &fireAt

	jobID, err := env.admission.Submit(ctx, req)
	require.NoError(t, err)

	sub, err := env.store.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, sub.Status, "past fire times route like fresh submissions")
}

func TestSubmitQueueIfUnavailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sim.SetOperational("sim-7q", false)

	req := taskRequest()
	req.QueueIfUnavailable = true
	jobID, err := env.admission.Submit(ctx, req)
	require.NoError(t, err)

	sub, err := env.store.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueuedUnavailable, sub.Status)

	assert.Equal(t, []string{jobID}, env.queues.UnavailableMembers(sub.Key()))
	event := env.publisher.last()
	assert.Equal(t, model.JobStatusQueuedUnavailable, event.Status)
	assert.Equal(t, "device unavailable", event.Reason)
}

func TestSubmitWithoutQueueIfUnavailableIgnoresAvailability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.sim.SetOperational("sim-7q", false)

	jobID, err := env.admission.Submit(ctx, taskRequest())
	require.NoError(t, err)

	sub, err := env.store.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, sub.Status)
}

func TestSubmitBackpressure(t *testing.T) {
	cfg := core.DefaultOrchestratorConfig()
	cfg.BackpressureHighWater = 2
	env := newTestEnvWithConfig(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := env.admission.Submit(ctx, taskRequest())
		require.NoError(t, err)
	}

	_, err := env.admission.Submit(ctx, taskRequest())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnavailable))

	// High priority bypasses the queue, so backpressure never applies to it.
	high := taskRequest()
	high.Priority = model.PriorityHigh
	_, err = env.admission.Submit(ctx, high)
	require.NoError(t, err)

	// Scheduled submissions are not counted against the queue either.
	fireAt := time.Now().Add(time.Hour)
	scheduled := taskRequest()
	scheduled.ScheduledTime = &fireAt
	_, err = env.admission.Submit(ctx, scheduled)
	require.NoError(t, err)
}

func TestSubmitSourceCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := model.JobRequest{
		Provider:     "sim",
		Device:       "sim-7q",
		Shots:        50,
		Priority:     model.PriorityHigh,
		Strategy:     model.StrategyTime,
		IsSourceCode: true,
		Source:       "circuit = QuantumCircuit(2)",
	}
	jobID, err := env.admission.Submit(ctx, req)
	require.NoError(t, err)

	sub, err := env.store.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSubmitted, sub.Status)
	assert.Equal(t, 1, env.sim.BackendRuns())
}

func TestRouteFiredProviderGone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fireAt := time.Now().Add(-time.Minute)
	sub := &model.JobSubmission{
		ID:            "fired-1",
		Request:       taskRequest(),
		Status:        model.JobStatusScheduled,
		ScheduledTime: &fireAt,
	}
	sub.Request.Provider = "gone"
	require.NoError(t, env.store.Put(ctx, sub))

	require.NoError(t, env.admission.RouteFired(ctx, sub))

	stored, err := env.store.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "no longer registered")
}

func TestRouteFiredSkipsCancelledJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fireAt := time.Now().Add(-time.Minute)
	sub := &model.JobSubmission{
		ID:            "fired-cancelled",
		Request:       taskRequest(),
		Status:        model.JobStatusScheduled,
		ScheduledTime: &fireAt,
	}
	require.NoError(t, env.store.Put(ctx, sub))

	// The due scan took its copy of the submission, then a caller cancelled
	// the job before the scheduler got around to routing it.
	stale := *sub
	require.NoError(t, env.tracker.Cancel(ctx, sub.ID))

	require.NoError(t, env.admission.RouteFired(ctx, &stale))

	stored, err := env.store.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, stored.Status, "a cancelled job must stay cancelled")
	assert.Equal(t, 0, env.queues.Len(stored.Key()))
	assert.Equal(t, 0, env.sim.BackendRuns())
}

func TestRouteFiredUnknownJobIsNoop(t *testing.T) {
	env := newTestEnv(t)

	ghost := &model.JobSubmission{
		ID:      "never-stored",
		Request: taskRequest(),
		Status:  model.JobStatusScheduled,
	}
	require.NoError(t, env.admission.RouteFired(context.Background(), ghost))
	assert.Empty(t, env.publisher.events)
}
