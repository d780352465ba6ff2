package config

import (
	"strings"
	"time"

	"github.com/Silverviles/nexar-hal/internal/core"
)

// StoreBackend names a job store implementation.
type StoreBackend string

const (
	// StoreBackendRedis persists submissions in Redis.
	StoreBackendRedis StoreBackend = "redis"
	// StoreBackendMemory keeps submissions in process memory. Not durable.
	StoreBackendMemory StoreBackend = "memory"
)

// OrchestratorConfig contains batching, scheduling, store and event
// configuration.
type OrchestratorConfig struct {
	// BatchTick is the batch monitor wake period.
	BatchTick time.Duration `env:"HAL_BATCH_TICK" envDefault:"2s"`

	// SchedTick is the time scheduler wake period.
	SchedTick time.Duration `env:"HAL_SCHED_TICK" envDefault:"1s"`

	// TimeWait is the batching wait cap for time-strategy submissions.
	TimeWait time.Duration `env:"HAL_TIME_WAIT" envDefault:"1s"`

	// CostWait is the batching wait cap for cost-strategy submissions.
	CostWait time.Duration `env:"HAL_COST_WAIT" envDefault:"10s"`

	// MaxBatchSize caps how many submissions one provider call carries.
	MaxBatchSize int `env:"HAL_MAX_BATCH_SIZE" envDefault:"10"`

	// DeviceQueueThreshold is the pending-jobs count at which a device is
	// treated as unavailable.
	DeviceQueueThreshold int `env:"HAL_DEVICE_QUEUE_THRESHOLD" envDefault:"20"`

	// BackpressureHighWater rejects new standard submissions once a batch
	// queue reaches this size.
	BackpressureHighWater int `env:"HAL_BACKPRESSURE_HIGH_WATER" envDefault:"100"`

	// Store selects the job store backend: redis or memory.
	Store StoreBackend `env:"HAL_STORE" envDefault:"redis"`

	// EventTopic is the pub/sub channel lifecycle events are published to.
	EventTopic string `env:"HAL_EVENT_TOPIC" envDefault:"hal:events"`
}

// Sanitize applies guardrails to orchestrator configuration values.
func (o *OrchestratorConfig) Sanitize() {
	shared := o.Core()
	shared.Sanitize()
	o.BatchTick = shared.BatchTick
	o.SchedTick = shared.SchedTick
	o.TimeWait = shared.TimeWait
	o.CostWait = shared.CostWait
	o.MaxBatchSize = shared.MaxBatchSize
	o.DeviceQueueThreshold = shared.DeviceQueueThreshold
	o.BackpressureHighWater = shared.BackpressureHighWater

	switch StoreBackend(strings.ToLower(strings.TrimSpace(string(o.Store)))) {
	case StoreBackendMemory:
		o.Store = StoreBackendMemory
	default:
		o.Store = StoreBackendRedis
	}
	if strings.TrimSpace(o.EventTopic) == "" {
		o.EventTopic = "hal:events"
	}
}

// Core converts the env-bound struct into the shared orchestrator tunables.
func (o *OrchestratorConfig) Core() core.OrchestratorConfig {
	return core.OrchestratorConfig{
		BatchTick:             o.BatchTick,
		SchedTick:             o.SchedTick,
		TimeWait:              o.TimeWait,
		CostWait:              o.CostWait,
		MaxBatchSize:          o.MaxBatchSize,
		DeviceQueueThreshold:  o.DeviceQueueThreshold,
		BackpressureHighWater: o.BackpressureHighWater,
	}
}
