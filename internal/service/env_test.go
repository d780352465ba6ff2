package service

import (
	"context"
	"sync"
	"testing"

	"github.com/Silverviles/nexar-hal/internal/adapters/memstore"
	"github.com/Silverviles/nexar-hal/internal/adapters/provider/sim"
	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/domain/batch"
	"github.com/Silverviles/nexar-hal/internal/domain/model"
)

// recordingPublisher captures published events for assertions. Setting err
// simulates a broken event bus.
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.LifecycleEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e model.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) statuses() []model.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.JobStatus, len(p.events))
	for i, e := range p.events {
		out[i] = e.Status
	}
	return out
}

func (p *recordingPublisher) last() model.LifecycleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return model.LifecycleEvent{}
	}
	return p.events[len(p.events)-1]
}

// testEnv wires the full service graph against the in-memory store and the
// simulator provider.
type testEnv struct {
	registry  *core.ProviderRegistry
	store     *memstore.JobStore
	queues    *batch.Queues
	publisher *recordingPublisher
	lifecycle *Lifecycle
	dispatch  *DispatchService
	admission *AdmissionService
	tracker   *TrackerService
	sim       *sim.Provider
	cfg       core.OrchestratorConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, core.DefaultOrchestratorConfig())
}

func newTestEnvWithConfig(t *testing.T, cfg core.OrchestratorConfig) *testEnv {
	t.Helper()

	env := &testEnv{
		registry:  core.NewProviderRegistry(),
		store:     memstore.NewJobStore(),
		queues:    batch.NewQueues(),
		publisher: &recordingPublisher{},
		sim:       sim.New(sim.Options{}),
		cfg:       cfg,
	}
	env.registry.Register(env.sim)
	env.lifecycle = NewLifecycle(LifecycleOptions{
		Store:     env.store,
		Publisher: env.publisher,
	})
	env.dispatch = NewDispatchService(DispatchServiceOptions{
		Registry:  env.registry,
		Store:     env.store,
		Lifecycle: env.lifecycle,
	})
	env.admission = NewAdmissionService(AdmissionServiceOptions{
		Registry:   env.registry,
		Store:      env.store,
		Queues:     env.queues,
		Lifecycle:  env.lifecycle,
		Dispatcher: env.dispatch,
		Config:     cfg,
	})
	env.tracker = NewTrackerService(TrackerServiceOptions{
		Registry:  env.registry,
		Store:     env.store,
		Queues:    env.queues,
		Lifecycle: env.lifecycle,
	})
	return env
}

func taskRequest() model.JobRequest {
	return model.JobRequest{
		Provider: "sim",
		Device:   "sim-7q",
		Shots:    100,
		Priority: model.PriorityStandard,
		Strategy: model.StrategyTime,
		Payload:  []byte(`{"circuit":"h 0"}`),
	}
}
