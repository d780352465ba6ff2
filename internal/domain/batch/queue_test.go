package batch

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Silverviles/nexar-hal/internal/domain/model"
)

var testKey = model.BatchKey{Provider: "sim", Device: "sim-7q"}

func testCfg() Config {
	return Config{
		MaxBatchSize: 10,
		TimeWait:     time.Second,
		CostWait:     10 * time.Second,
	}
}

func enqueueN(q *Queues, n int, shots int, at time.Time) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("job-%d-%d", shots, i)
		q.Enqueue(Entry{
			JobID:      id,
			Key:        testKey,
			Shots:      shots,
			Strategy:   model.StrategyTime,
			EnqueuedAt: at,
		})
		ids = append(ids, id)
	}
	return ids
}

func TestTakeReadyNotReadyBeforeWait(t *testing.T) {
	q := NewQueues()
	now := time.Now()
	enqueueN(q, 3, 100, now)

	groups := q.TakeReady(testKey, now.Add(500*time.Millisecond), testCfg())
	assert.Nil(t, groups)
	assert.Equal(t, 3, q.Len(testKey))
}

func TestTakeReadySizeTrigger(t *testing.T) {
	q := NewQueues()
	now := time.Now()
	ids := enqueueN(q, 25, 100, now)

	// Full batches drain immediately regardless of age.
	first := q.TakeReady(testKey, now, testCfg())
	require.Len(t, first, 1)
	assert.Equal(t, ids[:10], first[0].JobIDs)
	assert.Equal(t, 100, first[0].Shots)

	second := q.TakeReady(testKey, now, testCfg())
	require.Len(t, second, 1)
	assert.Equal(t, ids[10:20], second[0].JobIDs)

	// The remaining 5 are below MaxBatchSize and not yet aged.
	assert.Nil(t, q.TakeReady(testKey, now, testCfg()))

	// Once the oldest member passes the wait cap the tail drains too.
	third := q.TakeReady(testKey, now.Add(2*time.Second), testCfg())
	require.Len(t, third, 1)
	assert.Equal(t, ids[20:], third[0].JobIDs)
	assert.Equal(t, 0, q.Len(testKey))
}

func TestTakeReadyAgeTrigger(t *testing.T) {
	q := NewQueues()
	now := time.Now()
	ids := enqueueN(q, 2, 100, now)

	groups := q.TakeReady(testKey, now.Add(1100*time.Millisecond), testCfg())
	require.Len(t, groups, 1)
	assert.Equal(t, ids, groups[0].JobIDs)
}

func TestTakeReadyCostStrategyWaitsLonger(t *testing.T) {
	q := NewQueues()
	now := time.Now()
	q.Enqueue(Entry{JobID: "cost-1", Key: testKey, Shots: 100, Strategy: model.StrategyCost, EnqueuedAt: now})

	// Past the time cap but inside the cost cap: not ready.
	assert.Nil(t, q.TakeReady(testKey, now.Add(2*time.Second), testCfg()))

	groups := q.TakeReady(testKey, now.Add(11*time.Second), testCfg())
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"cost-1"}, groups[0].JobIDs)
}

func TestTakeReadyGroupsByShots(t *testing.T) {
	q := NewQueues()
	now := time.Now()
	for i, shots := range []int{100, 100, 200, 100} {
		q.Enqueue(Entry{
			JobID:      fmt.Sprintf("job-%d", i),
			Key:        testKey,
			Shots:      shots,
			Strategy:   model.StrategyTime,
			EnqueuedAt: now,
		})
	}

	groups := q.TakeReady(testKey, now.Add(2*time.Second), testCfg())
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"job-0", "job-1"}, groups[0].JobIDs)
	assert.Equal(t, 100, groups[0].Shots)
	assert.Equal(t, []string{"job-2"}, groups[1].JobIDs)
	assert.Equal(t, 200, groups[1].Shots)
	assert.Equal(t, []string{"job-3"}, groups[2].JobIDs)
}

func TestTakeReadySourceCodeIsSingleton(t *testing.T) {
	q := NewQueues()
	now := time.Now()
	q.Enqueue(Entry{JobID: "task-1", Key: testKey, Shots: 100, Strategy: model.StrategyTime, EnqueuedAt: now})
	q.Enqueue(Entry{JobID: "code-1", Key: testKey, Shots: 100, Strategy: model.StrategyTime, SourceCode: true, EnqueuedAt: now})
	q.Enqueue(Entry{JobID: "task-2", Key: testKey, Shots: 100, Strategy: model.StrategyTime, EnqueuedAt: now})

	groups := q.TakeReady(testKey, now.Add(2*time.Second), testCfg())
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"task-1"}, groups[0].JobIDs)
	assert.True(t, groups[1].SourceCode)
	assert.Equal(t, []string{"code-1"}, groups[1].JobIDs)
	assert.Equal(t, []string{"task-2"}, groups[2].JobIDs)
}

func TestTakeReadySkipsUnavailableMembers(t *testing.T) {
	q := NewQueues()
	now := time.Now()
	q.Enqueue(Entry{JobID: "parked", Key: testKey, Shots: 100, Strategy: model.StrategyTime, Unavailable: true, EnqueuedAt: now})

	// Only unavailable members: nothing is ready however old they get.
	assert.Nil(t, q.TakeReady(testKey, now.Add(time.Minute), testCfg()))
	assert.Equal(t, []string{"parked"}, q.UnavailableMembers(testKey))

	assert.True(t, q.MarkMemberAvailable(testKey, "parked"))
	assert.False(t, q.MarkMemberAvailable(testKey, "parked"), "already available")
	assert.False(t, q.MarkMemberAvailable(testKey, "ghost"))
	assert.Empty(t, q.UnavailableMembers(testKey))

	groups := q.TakeReady(testKey, now.Add(time.Minute), testCfg())
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"parked"}, groups[0].JobIDs)
}

func TestRemove(t *testing.T) {
	q := NewQueues()
	now := time.Now()
	enqueueN(q, 3, 100, now)

	assert.True(t, q.Remove(testKey, "job-100-1"))
	assert.False(t, q.Remove(testKey, "job-100-1"))
	assert.Equal(t, 2, q.Len(testKey))

	groups := q.TakeReady(testKey, now.Add(2*time.Second), testCfg())
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"job-100-0", "job-100-2"}, groups[0].JobIDs)
}

func TestKeysListsNonEmptyQueuesOnly(t *testing.T) {
	q := NewQueues()
	assert.Empty(t, q.Keys())

	now := time.Now()
	enqueueN(q, 1, 100, now)
	otherKey := model.BatchKey{Provider: "sim", Device: "sim-30q"}
	q.Enqueue(Entry{JobID: "other", Key: otherKey, Shots: 10, Strategy: model.StrategyTime, EnqueuedAt: now})
	require.True(t, q.Remove(otherKey, "other"))

	assert.Equal(t, []model.BatchKey{testKey}, q.Keys())
}
