package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	services, err := ParseServices("http,batch-monitor,time-scheduler")
	require.NoError(t, err)
	assert.True(t, services[ServiceModeHTTP])
	assert.True(t, services[ServiceModeBatchMonitor])
	assert.True(t, services[ServiceModeTimeScheduler])

	services, err = ParseServices("http")
	require.NoError(t, err)
	assert.True(t, services[ServiceModeHTTP])
	assert.False(t, services[ServiceModeBatchMonitor])

	// Whitespace and empty segments are tolerated.
	services, err = ParseServices(" http , time-scheduler ,")
	require.NoError(t, err)
	assert.True(t, services[ServiceModeHTTP])
	assert.True(t, services[ServiceModeTimeScheduler])
}

func TestParseServicesRejectsInvalid(t *testing.T) {
	_, err := ParseServices("")
	assert.Error(t, err)

	_, err = ParseServices(",,")
	assert.Error(t, err)

	_, err = ParseServices("http,worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker")
}

func TestAppConfigServiceFlags(t *testing.T) {
	cfg := AppConfig{Services: "http,time-scheduler"}
	assert.True(t, cfg.IsHTTPServerEnabled())
	assert.False(t, cfg.IsBatchMonitorEnabled())
	assert.True(t, cfg.IsTimeSchedulerEnabled())

	broken := AppConfig{Services: "bogus"}
	assert.False(t, broken.IsHTTPServerEnabled())
}

func TestOrchestratorSanitizeDefaults(t *testing.T) {
	var cfg OrchestratorConfig
	cfg.Sanitize()

	assert.Equal(t, 2*time.Second, cfg.BatchTick)
	assert.Equal(t, time.Second, cfg.SchedTick)
	assert.Equal(t, time.Second, cfg.TimeWait)
	assert.Equal(t, 10*time.Second, cfg.CostWait)
	assert.Equal(t, 10, cfg.MaxBatchSize)
	assert.Equal(t, 20, cfg.DeviceQueueThreshold)
	assert.Equal(t, 100, cfg.BackpressureHighWater)
	assert.Equal(t, StoreBackendRedis, cfg.Store)
	assert.Equal(t, "hal:events", cfg.EventTopic)
}

func TestOrchestratorSanitizeStoreBackend(t *testing.T) {
	cfg := OrchestratorConfig{Store: " Memory "}
	cfg.Sanitize()
	assert.Equal(t, StoreBackendMemory, cfg.Store)

	cfg = OrchestratorConfig{Store: "bogus"}
	cfg.Sanitize()
	assert.Equal(t, StoreBackendRedis, cfg.Store, "unknown backends fall back to redis")
}

func TestOrchestratorSanitizeBackpressureFloor(t *testing.T) {
	cfg := OrchestratorConfig{
		MaxBatchSize:          10,
		BackpressureHighWater: 5,
	}
	cfg.Sanitize()
	// A high-water mark below the batch size could never fill a batch.
	assert.Equal(t, 100, cfg.BackpressureHighWater)
}

func TestHTTPSanitizeDefaults(t *testing.T) {
	var cfg HTTPConfig
	cfg.Sanitize()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Positive(t, cfg.ReadTimeout)
	assert.Positive(t, cfg.WriteTimeout)
	assert.Positive(t, cfg.ShutdownTimeout)
}
