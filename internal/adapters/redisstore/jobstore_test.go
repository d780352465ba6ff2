package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silverviles/nexar-hal/internal/domain/model"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
	"github.com/Silverviles/nexar-hal/internal/testutil"
)

func setupStore(t *testing.T) *JobStore {
	t.Helper()
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })
	return NewJobStore(client)
}

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

func TestPutAndGetRoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	fireAt := time.Now().Add(time.Hour).Truncate(time.Second)
	sub := submission("a", model.JobStatusScheduled, &fireAt)
	sub.ProviderJobID = "h:0"
	require.NoError(t, store.Put(ctx, sub))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, model.JobStatusScheduled, got.Status)
	assert.Equal(t, "h:0", got.ProviderJobID)
	require.NotNil(t, got.ScheduledTime)
	assert.True(t, fireAt.Equal(*got.ScheduledTime))
}

func TestGetNotFound(t *testing.T) {
	store := setupStore(t)
	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestScheduledIndexFollowsStatus(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	fireAt := time.Now().Add(-time.Minute)

	sub := submission("a", model.JobStatusScheduled, &fireAt)
	require.NoError(t, store.Put(ctx, sub))

	due, err := store.AllScheduledDue(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "a", due[0].ID)

	// Moving out of SCHEDULED cleans the index up.
	sub.Status = model.JobStatusQueued
	require.NoError(t, store.Put(ctx, sub))

	due, err = store.AllScheduledDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestAllScheduledDueHonorsFireTime(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	require.NoError(t, store.Put(ctx, submission("past", model.JobStatusScheduled, &past)))
	require.NoError(t, store.Put(ctx, submission("future", model.JobStatusScheduled, &future)))

	due, err := store.AllScheduledDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "past", due[0].ID)

	due, err = store.AllScheduledDue(ctx, future.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestAllScheduledDueDropsOrphanedIndexEntries(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	fireAt := time.Now().Add(-time.Minute)

	require.NoError(t, store.Put(ctx, submission("orphan", model.JobStatusScheduled, &fireAt)))

	// Delete the backing record but leave the index entry in place.
	require.NoError(t, store.client.HDel(ctx, store.jobsKey(), "orphan").Err())

	due, err := store.AllScheduledDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	// The orphaned entry was self-healed out of the index.
	count, err := store.client.ZCard(ctx, store.schedZSetKey()).Result()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRemoveScheduled(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	fireAt := time.Now().Add(-time.Minute)

	require.NoError(t, store.Put(ctx, submission("a", model.JobStatusScheduled, &fireAt)))
	require.NoError(t, store.RemoveScheduled(ctx, "a"))

	due, err := store.AllScheduledDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	// The submission record itself survives.
	_, err = store.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, store.RemoveScheduled(ctx, "missing"))
}

func TestLoadAll(t *testing.T) {
	store := setupStore(t)
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

func TestKeyPrefixIsolation(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	first := NewJobStoreWithPrefix(client, "one:")
	second := NewJobStoreWithPrefix(client, "two:")

	require.NoError(t, first.Put(ctx, submission("a", model.JobStatusQueued, nil)))

	_, err := second.Get(ctx, "a")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestDurable(t *testing.T) {
	assert.True(t, (&JobStore{}).Durable())
}
