// Package model defines the core data types shared across the HAL job orchestrator.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority controls whether a submission bypasses batching.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Priority string

// Strategy selects the batching wait cap for a submission.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Strategy string

// JobStatus represents the current lifecycle state of a submission.
type JobStatus string

const (
	// PriorityHigh dispatches immediately as a singleton batch.
	PriorityHigh Priority = "high"
	// PriorityStandard accumulates in the per-device batch queue.
	PriorityStandard Priority = "standard"

	// StrategyTime dispatches as soon as the short wait cap elapses.
	StrategyTime Strategy = "time"
	// StrategyCost waits longer to grow batches.
	StrategyCost Strategy = "cost"

	// JobStatusPending is the transient state set inside admission only.
	JobStatusPending JobStatus = "pending"
	// JobStatusScheduled indicates the job waits for its fire time.
	JobStatusScheduled JobStatus = "scheduled"
	// JobStatusQueuedUnavailable indicates the job waits for its device to come back.
	JobStatusQueuedUnavailable JobStatus = "queued_unavailable"
	// JobStatusQueued indicates the job sits in a batch queue or awaits dispatch.
	JobStatusQueued JobStatus = "queued"
	// JobStatusSubmitted indicates the provider accepted the job.
	JobStatusSubmitted JobStatus = "submitted"
	// JobStatusCompleted indicates the provider finished the job successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed permanently.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled before completion.
	JobStatusCancelled JobStatus = "cancelled"
	// JobStatusUnknown is returned for jobs the orchestrator cannot resolve.
	JobStatusUnknown JobStatus = "unknown"
)

// UnmarshalText implements encoding.TextUnmarshaler for Priority.
func (p *Priority) UnmarshalText(text []byte) error {
	v := Priority(strings.ToLower(strings.TrimSpace(string(text))))
	if v == "" {
		*p = PriorityStandard
		return nil
	}
	if !v.Valid() {
		return fmt.Errorf("invalid priority: %q", v)
	}
	*p = v
	return nil
}

// Valid returns true if the Priority is a known value.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityStandard
}

// UnmarshalText implements encoding.TextUnmarshaler for Strategy.
func (s *Strategy) UnmarshalText(text []byte) error {
	v := Strategy(strings.ToLower(strings.TrimSpace(string(text))))
	if v == "" {
		*s = StrategyTime
		return nil
	}
	if !v.Valid() {
		return fmt.Errorf("invalid strategy: %q", v)
	}
	*s = v
	return nil
}

// Valid returns true if the Strategy is a known value.
func (s Strategy) Valid() bool {
	return s == StrategyTime || s == StrategyCost
}

// Valid returns true if the JobStatus is a known value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusScheduled, JobStatusQueuedUnavailable,
		JobStatusQueued, JobStatusSubmitted, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true for states that never advance again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// legalTransitions encodes the lifecycle graph. Absence means the transition
// is illegal; no transition skips a state.
var legalTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:           {JobStatusScheduled, JobStatusQueuedUnavailable, JobStatusQueued, JobStatusFailed},
	JobStatusScheduled:         {JobStatusQueued, JobStatusQueuedUnavailable, JobStatusCancelled},
	JobStatusQueuedUnavailable: {JobStatusQueued, JobStatusCancelled},
	JobStatusQueued:            {JobStatusSubmitted, JobStatusFailed, JobStatusCancelled},
	JobStatusSubmitted:         {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// CanTransition reports whether moving from s to next is permitted by the
// lifecycle graph. Self-transitions are treated as no-ops and allowed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BatchKey identifies one pending-jobs queue.
type BatchKey struct {
	Provider string `json:"provider"`
	Device   string `json:"device"`
}

// String renders the key in provider/device form for logs and metrics tags.
func (k BatchKey) String() string {
	return k.Provider + "/" + k.Device
}

// JobRequest is the immutable description of what to run. It is captured on
// the submission at admission and never mutated afterwards.
type JobRequest struct {
	Provider           string          `json:"provider"`
	Device             string          `json:"device"`
	Shots              int             `json:"shots"`
	Priority           Priority        `json:"priority"`
	Strategy           Strategy        `json:"strategy"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	Source             string          `json:"source,omitempty"`
	IsSourceCode       bool            `json:"is_source_code"`
	QueueIfUnavailable bool            `json:"queue_if_unavailable"`
	ScheduledTime      *time.Time      `json:"scheduled_time,omitempty"`
}

// Key returns the batch queue key for the request.
func (r *JobRequest) Key() BatchKey {
	return BatchKey{Provider: r.Provider, Device: r.Device}
}

// Validate checks the request fields that do not require provider knowledge.
// Provider and device existence are checked by admission against the registry.
func (r *JobRequest) Validate() error {
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	if r.Device == "" {
		return errors.New("device is required")
	}
	if r.Shots < 1 {
		return errors.New("shots must be >= 1")
	}
	if !r.Priority.Valid() {
		return errors.New("invalid priority")
	}
	if !r.Strategy.Valid() {
		return errors.New("invalid strategy")
	}
	if r.IsSourceCode {
		if strings.TrimSpace(r.Source) == "" {
			return errors.New("source is required for source-code submissions")
		}
	} else if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

// JobSubmission is the authoritative record for one admitted job. It is owned
// exclusively by the job store; other components hold read-only views.
type JobSubmission struct {
	ID            string     `json:"id"`
	Request       JobRequest `json:"request"`
	Status        JobStatus  `json:"status"`
	ProviderJobID string     `json:"provider_job_id,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Key returns the batch queue key for the submission.
func (s *JobSubmission) Key() BatchKey {
	return s.Request.Key()
}

// ScheduledJob is the read model returned by the scheduled-jobs listing.
type ScheduledJob struct {
	JobID         string    `json:"job_id"`
	Provider      string    `json:"provider"`
	Device        string    `json:"device"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Status        JobStatus `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}
