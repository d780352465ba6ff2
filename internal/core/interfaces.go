// Package core provides the ports and shared configuration for the HAL
// job orchestrator.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Silverviles/nexar-hal/internal/domain/model"
)

// This file contains the port definitions between the service layer and the
// adapters. Service implementations depend on these interfaces, not on
// concrete implementations.

// ProviderKind distinguishes the task type a provider accepts.
type ProviderKind string

const (
	// ProviderKindQuantum accepts quantum circuit tasks.
	ProviderKindQuantum ProviderKind = "quantum"
	// ProviderKindClassical accepts classical code tasks.
	ProviderKindClassical ProviderKind = "classical"
)

// ExecuteBatchParams groups parameters for Provider.ExecuteBatch.
type ExecuteBatchParams struct {
	Device string
	Shots  int
	Tasks  []json.RawMessage
}

// ExecuteCodeParams groups parameters for CodeExecutor.ExecuteCode.
type ExecuteCodeParams struct {
	Device string
	Shots  int
	Source string
}

// Provider is the pluggable backend contract. Implementations must be safe
// for concurrent invocation.
//
// ExecuteBatch is order-preserving: the i-th returned provider job id binds
// to the i-th input task. Providers may return composite ids of the form
// "base:i"; GetStatus and GetResult must accept them.
type Provider interface {
	Name() string
	Kind() ProviderKind
	ListDevices(ctx context.Context) ([]model.Device, error)
	CheckAvailability(ctx context.Context, device string) (model.DeviceAvailability, error)
	ExecuteBatch(ctx context.Context, params ExecuteBatchParams) ([]string, error)
	GetStatus(ctx context.Context, providerJobID string) (model.JobStatus, error)
	GetResult(ctx context.Context, providerJobID string) (json.RawMessage, error)
}

// CodeExecutor is the optional capability for providers that accept
// source-string tasks. Admission rejects source-code submissions targeting
// providers that do not implement it.
type CodeExecutor interface {
	ExecuteCode(ctx context.Context, params ExecuteCodeParams) (string, error)
}

// Canceller is the optional capability for provider-side cancellation.
type Canceller interface {
	Cancel(ctx context.Context, providerJobID string) error
}

// JobStore is the durable mapping from job id to submission, plus the
// time-indexed secondary index for scheduled jobs.
//
// Put is an upsert and must be atomic per job id; it maintains the scheduled
// index from the submission's status and scheduled time. Every state
// transition is persisted through Put before the corresponding event is
// published or the next action taken.
type JobStore interface {
	Put(ctx context.Context, sub *model.JobSubmission) error
	Get(ctx context.Context, jobID string) (*model.JobSubmission, error)
	AllScheduledDue(ctx context.Context, now time.Time) ([]*model.JobSubmission, error)
	RemoveScheduled(ctx context.Context, jobID string) error
	LoadAll(ctx context.Context) ([]*model.JobSubmission, error)
	// Durable reports whether the store survives process restart. The
	// in-memory fallback returns false and the health surface exposes it.
	Durable() bool
}

// EventPublisher publishes lifecycle events to an external bus with
// at-least-once semantics. Publish failures must not block job progression;
// callers log and drop.
type EventPublisher interface {
	Publish(ctx context.Context, event model.LifecycleEvent) error
}
