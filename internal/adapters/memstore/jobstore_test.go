package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silverviles/nexar-hal/internal/domain/model"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
)

func submission(id string, status model.JobStatus, at *time.Time) *model.JobSubmission {
	return &model.JobSubmission{
		ID: id,
		Request: model.JobRequest{
			Provider: "sim",
			Device:   "sim-7q",
			Shots:    100,
			Priority: model.PriorityStandard,
			Strategy: model.StrategyTime,
			Payload:  []byte(`{}`),
		},
		Status:        status,
		ScheduledTime: at,
	}
}

func TestPutAndGet(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	sub := submission("a", model.JobStatusPending, nil)
	require.NoError(t, store.Put(ctx, sub))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, model.JobStatusPending, got.Status)

	// Get returns a copy, not a live reference.
	got.Status = model.JobStatusFailed
	again, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, again.Status)
}

func TestGetNotFound(t *testing.T) {
	store := NewJobStore()
	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestPutRejectsEmptyID(t *testing.T) {
	store := NewJobStore()
	assert.Error(t, store.Put(context.Background(), &model.JobSubmission{}))
	assert.Error(t, store.Put(context.Background(), nil))
}

func TestScheduledIndexFollowsStatus(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	fireAt := time.Now().Add(time.Hour)

	sub := submission("a", model.JobStatusScheduled, &fireAt)
	require.NoError(t, store.Put(ctx, sub))

	due, err := store.AllScheduledDue(ctx, fireAt.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)

	// Leaving SCHEDULED drops the job from the index.
	sub.Status = model.JobStatusCancelled
	require.NoError(t, store.Put(ctx, sub))

	due, err = store.AllScheduledDue(ctx, fireAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestAllScheduledDueOrdersByFireTime(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	now := time.Now()

	for _, tc := range []struct {
		id     string
		offset time.Duration
	}{
		{"late", -time.Minute},
		{"early", -time.Hour},
		{"future", time.Hour},
	} {
		at := now.Add(tc.offset)
		require.NoError(t, store.Put(ctx, submission(tc.id, model.JobStatusScheduled, &at)))
	}

	due, err := store.AllScheduledDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].ID)
	assert.Equal(t, "late", due[1].ID)
}

func TestRemoveScheduled(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()
	fireAt := time.Now().Add(-time.Minute)

	require.NoError(t, store.Put(ctx, submission("a", model.JobStatusScheduled, &fireAt)))
	require.NoError(t, store.RemoveScheduled(ctx, "a"))

	due, err := store.AllScheduledDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	// The submission itself survives; only the index entry is gone.
	_, err = store.Get(ctx, "a")
	require.NoError(t, err)

	// Removing an unknown id is a no-op.
	require.NoError(t, store.RemoveScheduled(ctx, "missing"))
}

func TestLoadAll(t *testing.T) {
	store := NewJobStore()
	ctx := context.Background()

	subs, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)

	require.NoError(t, store.Put(ctx, submission("a", model.JobStatusQueued, nil)))
	require.NoError(t, store.Put(ctx, submission("b", model.JobStatusCompleted, nil)))

	subs, err = store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestDurable(t *testing.T) {
	assert.False(t, NewJobStore().Durable())
}
