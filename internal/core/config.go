package core

import "time"

// OrchestratorConfig holds the tunables shared by admission, the batch
// monitor and the time scheduler.
type OrchestratorConfig struct {
	// BatchTick is the batch monitor wake period.
	BatchTick time.Duration `json:"batch_tick"`
	// SchedTick is the time scheduler wake period.
	SchedTick time.Duration `json:"sched_tick"`
	// TimeWait is the strategy wait cap for TIME submissions.
	TimeWait time.Duration `json:"time_wait"`
	// CostWait is the strategy wait cap for COST submissions.
	CostWait time.Duration `json:"cost_wait"`
	// MaxBatchSize caps how many submissions one provider call carries.
	MaxBatchSize int `json:"max_batch_size"`
	// DeviceQueueThreshold gates availability: a device with at least this
	// many pending jobs is treated as unavailable.
	DeviceQueueThreshold int `json:"device_queue_threshold"`
	// BackpressureHighWater rejects new STANDARD submissions once a batch
	// queue reaches this size. HIGH priority is never rejected.
	BackpressureHighWater int `json:"backpressure_high_water"`
}

// DefaultOrchestratorConfig returns an OrchestratorConfig with the documented
// defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		BatchTick:             2 * time.Second,
		SchedTick:             time.Second,
		TimeWait:              time.Second,
		CostWait:              10 * time.Second,
		MaxBatchSize:          10,
		DeviceQueueThreshold:  20,
		BackpressureHighWater: 100,
	}
}

// Sanitize applies guardrails to configuration values.
func (c *OrchestratorConfig) Sanitize() {
	def := DefaultOrchestratorConfig()
	if c.BatchTick <= 0 {
		c.BatchTick = def.BatchTick
	}
	if c.SchedTick <= 0 {
		c.SchedTick = def.SchedTick
	}
	if c.TimeWait <= 0 {
		c.TimeWait = def.TimeWait
	}
	if c.CostWait <= 0 {
		c.CostWait = def.CostWait
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = def.MaxBatchSize
	}
	if c.DeviceQueueThreshold <= 0 {
		c.DeviceQueueThreshold = def.DeviceQueueThreshold
	}
	if c.BackpressureHighWater < c.MaxBatchSize {
		c.BackpressureHighWater = def.BackpressureHighWater
	}
}
