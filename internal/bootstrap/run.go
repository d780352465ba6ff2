package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Silverviles/nexar-hal/config"
	"github.com/Silverviles/nexar-hal/internal/adapters/scheduler"
)

// RunServicesWithShutdown starts the enabled services and blocks until a
// termination signal arrives or a service fails.
func RunServicesWithShutdown(ctx context.Context, cfg *config.AppConfig, services *ServiceContainer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)

	if enabled[config.ServiceModeBatchMonitor] {
		runner, err := buildBatchMonitorRunner(cfg, services, logger)
		if err != nil {
			return err
		}
		group.Go(func() error { return runner.Run(groupCtx) })
	}

	if enabled[config.ServiceModeTimeScheduler] {
		runner, err := buildTimeSchedulerRunner(cfg, services, logger)
		if err != nil {
			return err
		}
		group.Go(func() error { return runner.Run(groupCtx) })
	}

	if enabled[config.ServiceModeHTTP] {
		httpServer := StartHTTPServer(cfg, services, logger)
		group.Go(func() error {
			<-groupCtx.Done()
			return ShutdownHTTPServer(context.WithoutCancel(groupCtx), httpServer, cfg, logger)
		})
	}

	if waitErr := group.Wait(); waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	logger.Info("services stopped")
	return nil
}

func buildBatchMonitorRunner(cfg *config.AppConfig, services *ServiceContainer, logger *slog.Logger) (*scheduler.Runner, error) {
	monitor, err := scheduler.NewBatchMonitor(scheduler.BatchMonitorOptions{
		Registry:   services.Registry,
		Store:      services.Store,
		Queues:     services.Queues,
		Lifecycle:  services.Lifecycle,
		Dispatcher: services.Dispatch,
		Config:     cfg.Orchestrator.Core(),
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build batch monitor: %w", err)
	}
	return scheduler.NewRunner(scheduler.RunnerOptions{
		Service:  monitor,
		Interval: cfg.Orchestrator.BatchTick,
		Logger:   logger,
		Metrics:  services.Metrics,
	})
}

func buildTimeSchedulerRunner(cfg *config.AppConfig, services *ServiceContainer, logger *slog.Logger) (*scheduler.Runner, error) {
	timeSched, err := scheduler.NewTimeScheduler(scheduler.TimeSchedulerOptions{
		Store:     services.Store,
		Admission: services.Admission,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build time scheduler: %w", err)
	}
	return scheduler.NewRunner(scheduler.RunnerOptions{
		Service:  timeSched,
		Interval: cfg.Orchestrator.SchedTick,
		Logger:   logger,
		Metrics:  services.Metrics,
	})
}
