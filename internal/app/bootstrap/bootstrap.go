package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	proposalengine "fangov/contexts/governance/proposal-engine"
	"fangov/contexts/governance/proposal-engine/adapters/memory"
	postgresadapter "fangov/contexts/governance/proposal-engine/adapters/postgres"
	"fangov/contexts/governance/proposal-engine/ports"
	eventsv1 "fangov/contracts/events/v1"
	"fangov/internal/platform/config"
	"fangov/internal/platform/db"
	"fangov/internal/platform/httpserver"
	"fangov/internal/platform/messaging"
	"fangov/internal/platform/metrics"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

var lifecycleTopics = []string{
	eventsv1.EventProposalOpened,
	eventsv1.EventProposalClosed,
	eventsv1.EventProposalFinalized,
}

type APIApp struct {
	server    *httpserver.Server
	resources *resources
	embedded  *WorkerApp
	logger    *slog.Logger
}

type WorkerApp struct {
	module           proposalengine.Module
	resources        *resources
	pollInterval     time.Duration
	schedulerEnabled bool
	releaseOnClose   bool
	logger           *slog.Logger
}

// resources owns the process-level resources behind one module instance.
type resources struct {
	module    proposalengine.Module
	database  *db.Database
	streams   *messaging.RedisStreams
	metrics   *metrics.Registry
	publisher ports.EventPublisher
}

// NewLogger builds the JSON process logger at the configured level.
func NewLogger(level string, service string, process string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler).With("service", service, "process", process)
}

func BuildAPI(ctx context.Context, cfg config.Config, logger *slog.Logger) (*APIApp, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt, err := buildResources(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(rt.module, httpserver.Options{
		Addr:        normalizeAddr(cfg.HTTPPort),
		CORSOrigins: cfg.CORSAllowedOrigins,
		Metrics:     rt.metrics.Handler(),
	}, logger)

	app := &APIApp{
		server:    server,
		resources: rt,
		logger:    logger,
	}
	// A memory store is not visible to a separate worker process, so the API
	// drives the lifecycle loop itself.
	if cfg.DatabaseDriver == config.DriverMemory {
		app.embedded = newWorkerApp(cfg, rt, logger)
	}
	return app, nil
}

func BuildWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*WorkerApp, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt, err := buildResources(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	worker := newWorkerApp(cfg, rt, logger)
	worker.releaseOnClose = true
	return worker, nil
}

// OpenRepository connects to the configured SQL database for one-shot
// administrative commands.
func OpenRepository(cfg config.Config, logger *slog.Logger) (*postgresadapter.Repository, func() error, error) {
	if cfg.DatabaseDriver == config.DriverMemory {
		return nil, nil, errors.New("this command needs a SQL database; set DATABASE_DRIVER to postgres or mysql")
	}
	database, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	return postgresadapter.NewRepository(database.DB, logger), database.Close, nil
}

func buildResources(ctx context.Context, cfg config.Config, logger *slog.Logger) (*resources, error) {
	rt := &resources{metrics: metrics.NewRegistry()}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		streams, err := messaging.NewRedisStreams(ctx, cfg.RedisURL, cfg.StreamPrefix, logger)
		if err != nil {
			return nil, err
		}
		rt.streams = streams
		rt.publisher = streams
	} else {
		bus := messaging.NewBus(logger)
		for _, topic := range lifecycleTopics {
			if err := bus.Subscribe(ctx, topic, "governance-lifecycle-log", logLifecycleEvent(logger, topic)); err != nil {
				return nil, err
			}
		}
		rt.publisher = bus
	}

	scheduling := proposalengine.SchedulerOptions{
		BatchSize:         cfg.SchedulerBatchSize,
		AutoFinalize:      cfg.EnableAutoFinalize,
		AutoFinalizeAfter: cfg.AutoFinalizeAfter,
		OutboxBatchSize:   cfg.OutboxBatchSize,
	}

	if cfg.DatabaseDriver == config.DriverMemory {
		store := memory.NewStore()
		rt.module = proposalengine.NewModule(proposalengine.Dependencies{
			Proposals:        store,
			Options:          store,
			Votes:            store,
			Candidates:       store,
			Power:            store,
			Outbox:           store,
			Publisher:        rt.publisher,
			SchedulerMetrics: rt.metrics,
			RelayMetrics:     rt.metrics,
			Clock:            store,
			IDGen:            store,
			Scheduling:       scheduling,
			Logger:           logger,
		})
		rt.module.Store = store
		logger.Warn("using in-memory governance store",
			"event", "bootstrap_memory_store",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		return rt, nil
	}

	database, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		_ = rt.close()
		return nil, err
	}
	rt.database = database

	repo := postgresadapter.NewRepository(database.DB, logger)
	if cfg.AutoMigrate {
		if err := repo.AutoMigrate(ctx); err != nil {
			_ = rt.close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	rt.module = proposalengine.NewModule(proposalengine.Dependencies{
		Proposals:        repo,
		Options:          repo,
		Votes:            repo,
		Candidates:       repo,
		Power:            repo,
		Outbox:           repo,
		Publisher:        rt.publisher,
		SchedulerMetrics: rt.metrics,
		RelayMetrics:     rt.metrics,
		Clock:            postgresadapter.SystemClock{},
		IDGen:            postgresadapter.UUIDGenerator{},
		Scheduling:       scheduling,
		Logger:           logger,
	})
	return rt, nil
}

func (rt *resources) close() error {
	var errs []error
	if rt.streams != nil {
		errs = append(errs, rt.streams.Close())
	}
	if rt.database != nil {
		errs = append(errs, rt.database.Close())
	}
	return errors.Join(errs...)
}

func logLifecycleEvent(logger *slog.Logger, topic string) func(context.Context, ports.EventEnvelope) error {
	return func(_ context.Context, event ports.EventEnvelope) error {
		logger.Info("lifecycle event delivered",
			"event", "bootstrap_lifecycle_event_delivered",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
			"partition_key", event.PartitionKey,
		)
		return nil
	}
}

func newWorkerApp(cfg config.Config, rt *resources, logger *slog.Logger) *WorkerApp {
	return &WorkerApp{
		module:           rt.module,
		resources:        rt,
		pollInterval:     cfg.SchedulerInterval,
		schedulerEnabled: cfg.EnableLifecycleScheduler,
		logger:           logger,
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)

	if a.embedded != nil {
		go func() {
			if err := a.embedded.Run(ctx); err != nil {
				a.logger.Error("embedded worker stopped",
					"event", "bootstrap_embedded_worker_stopped",
					"module", "internal/app/bootstrap",
					"layer", "platform",
					"error", err.Error(),
				)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

func (a *APIApp) Close() error {
	return a.resources.close()
}

// Run sweeps the lifecycle and relays the outbox every poll interval.
// Per-proposal failures are logged and retried on the next tick.
func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"scheduler_enabled", w.schedulerEnabled,
	)

	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) tick(ctx context.Context) {
	if w.schedulerEnabled {
		if err := w.module.Scheduler.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("lifecycle sweep finished with errors",
				"event", "bootstrap_scheduler_sweep_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
	}
	if err := w.module.Relay.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("outbox relay pass failed",
			"event", "bootstrap_outbox_relay_failed",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"error", err.Error(),
		)
	}
}

func (w *WorkerApp) Close() error {
	if !w.releaseOnClose {
		return nil
	}
	return w.resources.close()
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
