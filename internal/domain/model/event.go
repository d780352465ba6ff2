package model

import (
	"encoding/json"
	"time"
)

// LifecycleEvent describes one persisted status transition of one job.
// Events are emitted at least once per transition and may be re-delivered.
type LifecycleEvent struct {
	JobID         string          `json:"job_id"`
	ProviderJobID string          `json:"provider_job_id,omitempty"`
	Status        JobStatus       `json:"status"`
	Provider      string          `json:"provider"`
	Device        string          `json:"device"`
	Timestamp     time.Time       `json:"timestamp"`
	Error         string          `json:"error,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	ScheduledTime *time.Time      `json:"scheduled_time,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// NewLifecycleEvent builds the event for a submission's current state.
func NewLifecycleEvent(sub *JobSubmission, now time.Time) LifecycleEvent {
	return LifecycleEvent{
		JobID:         sub.ID,
		ProviderJobID: sub.ProviderJobID,
		Status:        sub.Status,
		Provider:      sub.Request.Provider,
		Device:        sub.Request.Device,
		Timestamp:     now,
		Error:         sub.LastError,
		ScheduledTime: sub.ScheduledTime,
	}
}
