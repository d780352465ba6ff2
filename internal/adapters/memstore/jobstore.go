// Package memstore provides the non-durable in-memory job store fallback.
//
// Choosing this store is an explicit constructor decision: it advertises
// reduced guarantees through Durable() and loses non-terminal jobs on
// restart. The composition root logs a startup warning when it is selected.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Silverviles/nexar-hal/internal/domain/model"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
)

// JobStore keeps submissions in process memory.
type JobStore struct {
	mu        sync.RWMutex
	jobs      map[string]model.JobSubmission
	scheduled map[string]time.Time
}

// NewJobStore creates an empty in-memory store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:      make(map[string]model.JobSubmission),
		scheduled: make(map[string]time.Time),
	}
}

// Durable reports that this store does not survive restart.
func (s *JobStore) Durable() bool { return false }

// Put upserts the submission and maintains the scheduled index.
func (s *JobStore) Put(_ context.Context, sub *model.JobSubmission) error {
	if sub == nil || sub.ID == "" {
		return apperrors.Internal("submission id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[sub.ID] = *sub
	if sub.Status == model.JobStatusScheduled && sub.ScheduledTime != nil {
		s.scheduled[sub.ID] = *sub.ScheduledTime
	} else {
		delete(s.scheduled, sub.ID)
	}
	return nil
}

// Get returns the submission for jobID, or a not-found error.
func (s *JobStore) Get(_ context.Context, jobID string) (*model.JobSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.jobs[jobID]
	if !ok {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}
	out := sub
	return &out, nil
}

// AllScheduledDue returns scheduled submissions with fire time at or before
// now, ordered by fire time.
func (s *JobStore) AllScheduledDue(_ context.Context, now time.Time) ([]*model.JobSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var subs []*model.JobSubmission
	for id, at := range s.scheduled {
		if !at.After(now) {
			sub := s.jobs[id]
			out := sub
			subs = append(subs, &out)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].ScheduledTime.Before(*subs[j].ScheduledTime)
	})
	return subs, nil
}

// RemoveScheduled drops jobID from the scheduled index.
func (s *JobStore) RemoveScheduled(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, jobID)
	return nil
}

// LoadAll returns every stored submission.
func (s *JobStore) LoadAll(_ context.Context) ([]*model.JobSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := make([]*model.JobSubmission, 0, len(s.jobs))
	for _, sub := range s.jobs {
		out := sub
		subs = append(subs, &out)
	}
	return subs, nil
}
