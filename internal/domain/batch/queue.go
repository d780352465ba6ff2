// Package batch holds the pending-submission queues the batch monitor drains.
package batch

import (
	"sync"
	"time"

	"github.com/Silverviles/nexar-hal/internal/domain/model"
)

// Entry is a queue member. Queues hold references by job id, never copies of
// submission state; the job store stays authoritative.
type Entry struct {
	JobID       string
	Key         model.BatchKey
	Shots       int
	Strategy    model.Strategy
	SourceCode  bool
	Unavailable bool
	EnqueuedAt  time.Time
}

// Group is one dispatchable unit drained from a queue: either a run of task
// entries sharing identical shots, or a single source-code entry.
type Group struct {
	Key        model.BatchKey
	Shots      int
	SourceCode bool
	JobIDs     []string
}

// Config are the readiness tunables, taken from the orchestrator config.
type Config struct {
	MaxBatchSize int
	TimeWait     time.Duration
	CostWait     time.Duration
}

// Queues is the set of per-key pending queues. Each key has its own lock so
// dispatches across devices proceed in parallel; the outer lock only guards
// the key map.
type Queues struct {
	mu     sync.RWMutex
	queues map[model.BatchKey]*queue
}

type queue struct {
	mu      sync.Mutex
	entries []Entry
}

// NewQueues creates an empty queue set.
func NewQueues() *Queues {
	return &Queues{queues: make(map[model.BatchKey]*queue)}
}

func (q *Queues) forKey(key model.BatchKey) *queue {
	q.mu.RLock()
	pq, ok := q.queues[key]
	q.mu.RUnlock()
	if ok {
		return pq
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if pq, ok = q.queues[key]; ok {
		return pq
	}
	pq = &queue{}
	q.queues[key] = pq
	return pq
}

// Enqueue appends an entry to its key's queue and returns the new queue length.
func (q *Queues) Enqueue(e Entry) int {
	pq := q.forKey(e.Key)
	pq.mu.Lock()
	defer pq.mu.Unlock()
	pq.entries = append(pq.entries, e)
	return len(pq.entries)
}

// Len returns the current length of the queue for key.
func (q *Queues) Len(key model.BatchKey) int {
	pq := q.forKey(key)
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.entries)
}

// Keys returns every key with a non-empty queue.
func (q *Queues) Keys() []model.BatchKey {
	q.mu.RLock()
	defer q.mu.RUnlock()
	keys := make([]model.BatchKey, 0, len(q.queues))
	for key, pq := range q.queues {
		pq.mu.Lock()
		n := len(pq.entries)
		pq.mu.Unlock()
		if n > 0 {
			keys = append(keys, key)
		}
	}
	return keys
}

// Remove deletes the entry for jobID from its queue in one step. It returns
// false when the job is not queued under key.
func (q *Queues) Remove(key model.BatchKey, jobID string) bool {
	pq := q.forKey(key)
	pq.mu.Lock()
	defer pq.mu.Unlock()
	for i := range pq.entries {
		if pq.entries[i].JobID == jobID {
			pq.entries = append(pq.entries[:i], pq.entries[i+1:]...)
			return true
		}
	}
	return false
}

// UnavailableMembers returns the job ids of entries waiting for the device to
// come back.
func (q *Queues) UnavailableMembers(key model.BatchKey) []string {
	pq := q.forKey(key)
	pq.mu.Lock()
	defer pq.mu.Unlock()
	var ids []string
	for i := range pq.entries {
		if pq.entries[i].Unavailable {
			ids = append(ids, pq.entries[i].JobID)
		}
	}
	return ids
}

// MarkMemberAvailable clears the unavailable flag on jobID's entry under key.
// It reports whether an unavailable entry was flipped. Callers flip a member
// only after the matching status transition persisted, so a crashed or failed
// promote never leaves a drainable entry behind.
func (q *Queues) MarkMemberAvailable(key model.BatchKey, jobID string) bool {
	pq := q.forKey(key)
	pq.mu.Lock()
	defer pq.mu.Unlock()
	for i := range pq.entries {
		if pq.entries[i].JobID == jobID && pq.entries[i].Unavailable {
			pq.entries[i].Unavailable = false
			return true
		}
	}
	return false
}

// TakeReady drains the head of key's queue when the batch is ready and splits
// it into dispatchable groups.
//
// Readiness considers only queued (not unavailable) entries. The wait cap is
// derived from the oldest member's strategy. A batch is ready when the queue
// holds MaxBatchSize members or the oldest has waited past the cap. The
// drained prefix is at most MaxBatchSize entries; source-code entries become
// singleton groups and task entries are grouped by identical shots, order
// preserved.
func (q *Queues) TakeReady(key model.BatchKey, now time.Time, cfg Config) []Group {
	pq := q.forKey(key)
	pq.mu.Lock()
	defer pq.mu.Unlock()

	eligible := make([]int, 0, len(pq.entries))
	for i := range pq.entries {
		if !pq.entries[i].Unavailable {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	oldest := pq.entries[eligible[0]]
	wait := cfg.TimeWait
	if oldest.Strategy == model.StrategyCost {
		wait = cfg.CostWait
	}
	if len(eligible) < cfg.MaxBatchSize && now.Sub(oldest.EnqueuedAt) < wait {
		return nil
	}

	take := eligible
	if len(take) > cfg.MaxBatchSize {
		take = take[:cfg.MaxBatchSize]
	}

	drained := make([]Entry, 0, len(take))
	for _, idx := range take {
		drained = append(drained, pq.entries[idx])
	}

	kept := pq.entries[:0]
	taken := make(map[int]bool, len(take))
	for _, idx := range take {
		taken[idx] = true
	}
	for i := range pq.entries {
		if !taken[i] {
			kept = append(kept, pq.entries[i])
		}
	}
	pq.entries = kept

	return groupEntries(key, drained)
}

// groupEntries splits a drained prefix into homogeneous dispatch groups.
func groupEntries(key model.BatchKey, entries []Entry) []Group {
	var groups []Group
	var current *Group
	for _, e := range entries {
		if e.SourceCode {
			groups = append(groups, Group{Key: key, Shots: e.Shots, SourceCode: true, JobIDs: []string{e.JobID}})
			current = nil
			continue
		}
		if current == nil || current.Shots != e.Shots {
			groups = append(groups, Group{Key: key, Shots: e.Shots})
			current = &groups[len(groups)-1]
		}
		current.JobIDs = append(current.JobIDs, e.JobID)
	}
	return groups
}
