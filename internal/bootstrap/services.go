package bootstrap

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Silverviles/nexar-hal/config"
	"github.com/Silverviles/nexar-hal/internal/adapters/events"
	"github.com/Silverviles/nexar-hal/internal/adapters/memstore"
	"github.com/Silverviles/nexar-hal/internal/adapters/provider/sim"
	"github.com/Silverviles/nexar-hal/internal/adapters/redisstore"
	"github.com/Silverviles/nexar-hal/internal/core"
	"github.com/Silverviles/nexar-hal/internal/domain/batch"
	"github.com/Silverviles/nexar-hal/internal/domain/model"
	"github.com/Silverviles/nexar-hal/internal/observability/statsd"
	"github.com/Silverviles/nexar-hal/internal/service"
)

// ServiceContainer holds all constructed services and shared state.
type ServiceContainer struct {
	Registry  *core.ProviderRegistry
	Store     core.JobStore
	Queues    *batch.Queues
	Publisher core.EventPublisher
	Lifecycle *service.Lifecycle
	Dispatch  *service.DispatchService
	Admission *service.AdmissionService
	Tracker   *service.TrackerService
	Metrics   *statsd.Client
}

// ServiceDeps contains the external dependencies for building services.
type ServiceDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices constructs the full service graph from shared dependencies.
func NewServices(deps *ServiceDeps) *ServiceContainer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	orch := cfg.Orchestrator.Core()

	metrics := buildMetrics(cfg, logger)
	store := buildStore(cfg, deps.RedisClient, logger)
	publisher := buildPublisher(cfg, deps.RedisClient, logger)

	registry := core.NewProviderRegistry()
	registry.Register(sim.New(sim.Options{
		QueueThreshold: orch.DeviceQueueThreshold,
	}))

	queues := batch.NewQueues()
	lifecycle := service.NewLifecycle(service.LifecycleOptions{
		Store:     store,
		Publisher: publisher,
		Logger:    logger,
	})
	dispatch := service.NewDispatchService(service.DispatchServiceOptions{
		Registry:  registry,
		Store:     store,
		Lifecycle: lifecycle,
		Logger:    logger,
		Metrics:   metrics,
	})
	admission := service.NewAdmissionService(service.AdmissionServiceOptions{
		Registry:   registry,
		Store:      store,
		Queues:     queues,
		Lifecycle:  lifecycle,
		Dispatcher: dispatch,
		Config:     orch,
		Logger:     logger,
		Metrics:    metrics,
	})
	tracker := service.NewTrackerService(service.TrackerServiceOptions{
		Registry:  registry,
		Store:     store,
		Queues:    queues,
		Lifecycle: lifecycle,
		Logger:    logger,
	})

	return &ServiceContainer{
		Registry:  registry,
		Store:     store,
		Queues:    queues,
		Publisher: publisher,
		Lifecycle: lifecycle,
		Dispatch:  dispatch,
		Admission: admission,
		Tracker:   tracker,
		Metrics:   metrics,
	}
}

func buildMetrics(cfg *config.AppConfig, logger *slog.Logger) *statsd.Client {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  cfg.Observability.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Warn("statsd client unavailable; metrics disabled", "error", err)
		return nil
	}
	return client
}

//nolint:ireturn // store backend is selected at runtime.
func buildStore(cfg *config.AppConfig, client redis.UniversalClient, logger *slog.Logger) core.JobStore {
	if cfg.Orchestrator.Store == config.StoreBackendRedis && client != nil {
		return redisstore.NewJobStore(client)
	}
	logger.Warn("using in-memory job store; submissions will not survive restart")
	return memstore.NewJobStore()
}

//nolint:ireturn // publisher backend is selected at runtime.
func buildPublisher(cfg *config.AppConfig, client redis.UniversalClient, logger *slog.Logger) core.EventPublisher {
	if client != nil {
		return events.NewRedisPublisher(client, cfg.Orchestrator.EventTopic)
	}
	return events.NewLoggingPublisher(logger)
}

// RestoreQueues rebuilds the in-memory batch queues from the store after a
// restart. Submissions persisted as QUEUED or QUEUED_UNAVAILABLE re-enter
// their queue; everything else is already represented durably.
func RestoreQueues(ctx context.Context, container *ServiceContainer, logger *slog.Logger) error {
	subs, err := container.Store.LoadAll(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for _, sub := range subs {
		switch sub.Status {
		case model.JobStatusQueued, model.JobStatusQueuedUnavailable:
		default:
			continue
		}
		container.Queues.Enqueue(batch.Entry{
			JobID:       sub.ID,
			Key:         sub.Key(),
			Shots:       sub.Request.Shots,
			Strategy:    sub.Request.Strategy,
			SourceCode:  sub.Request.IsSourceCode,
			Unavailable: sub.Status == model.JobStatusQueuedUnavailable,
			EnqueuedAt:  sub.UpdatedAt,
		})
		restored++
	}
	if restored > 0 {
		logger.InfoContext(ctx, "restored batch queues from store", "jobs", restored)
	}
	return nil
}
