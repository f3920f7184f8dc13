package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aatumaykin/nexarchive/internal/app/builders"
	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/config"
	"github.com/aatumaykin/nexarchive/internal/constants"
	"github.com/aatumaykin/nexarchive/internal/export"
	"github.com/aatumaykin/nexarchive/internal/ipc"
	"github.com/aatumaykin/nexarchive/internal/logger"
	"github.com/aatumaykin/nexarchive/internal/mcpserver"
	"github.com/aatumaykin/nexarchive/internal/sink"
	"github.com/aatumaykin/nexarchive/internal/ticks"
	"github.com/aatumaykin/nexarchive/internal/workers"
	"github.com/aatumaykin/nexarchive/internal/workspace"
)

// Initialize builds and starts all components. The scheduler resumes a
// persisted job before the control socket accepts requests.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return errors.New("application already initialized")
	}

	// 1. Application context
	a.ctx, a.cancel = context.WithCancel(ctx)

	// 2. Workspace layout and single instance guard
	ws := workspace.New(a.config.Workspace)
	if err := ws.EnsureLayout(); err != nil {
		return errors.Wrap(err, "failed to prepare workspace")
	}
	if pid, err := ipc.AcquirePID(a.config.PIDPath()); err != nil {
		if pid != 0 {
			return errors.Wrapf(err, "another instance owns %s", a.config.PIDPath())
		}
		return err
	}
	a.closers = append(a.closers, func() error {
		return ipc.Cleanup(a.config.PIDPath(), a.config.SocketPath())
	})

	loc, err := a.config.Location()
	if err != nil {
		return err
	}

	// 3. Archive database and message source
	archiveDB, err := sink.Open(a.config.SinkPath(), a.logger)
	if err != nil {
		return errors.Wrap(err, "failed to open archive database")
	}
	a.archiveDB = archiveDB
	a.closers = append(a.closers, archiveDB.Close)

	src, srcCloser, err := builders.NewSourceBuilder(a.config, a.logger).Build(archiveDB)
	if err != nil {
		return err
	}
	a.source = src
	if srcCloser != nil {
		a.closers = append(a.closers, srcCloser.Close)
	}

	// 4. State store
	store, storeCloser, err := builders.NewStateBuilder(a.config, a.logger).Build(a.ctx)
	if err != nil {
		return err
	}
	a.store = store
	if storeCloser != nil {
		a.closers = append(a.closers, storeCloser.Close)
	}

	// 5. Notifications
	hub, notifyClosers, err := builders.NewNotifyBuilder(a.config, a.logger).Build()
	if err != nil {
		return err
	}
	a.hub = hub
	a.hub.Start(a.ctx)
	a.closers = append(a.closers, notifyClosers...)

	// 6. Metrics
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := archive.InitPrometheusMetrics(constants.MetricsNamespace, a.registry)

	// 7. Worker pool for batch fetches and exports
	a.workerPool = workers.NewPool(a.config.Scheduler.FetchWorkers, a.config.Scheduler.QueueSize, a.logger)
	if err := a.workerPool.RegisterMetrics(constants.MetricsNamespace, a.registry); err != nil {
		return errors.Wrap(err, "failed to register worker metrics")
	}
	a.workerPool.Start()

	// 8. Scheduler
	sched, err := archive.New(archive.Options{
		Source:     a.source,
		Sink:       archiveDB,
		Exporter:   export.New(archiveDB, export.Options{Location: loc, Logger: a.logger}),
		Store:      a.store,
		Notifier:   a.hub,
		Dispatcher: a.workerPool,
		Location:   loc,
		Metrics:    metrics,
		Logger:     a.logger,
		Defaults:   a.config.Archive.Config(),
		QueueMode:  archive.QueueConfigMode(a.config.Scheduler.QueueConfigMode),
		ExportDir:  a.config.ExportDir(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create archive scheduler")
	}
	a.scheduler = sched

	if err := sched.Restore(a.ctx); err != nil {
		a.logger.Error("failed to restore archive job", err)
	}
	if st := sched.Status(); st.State != archive.StateIdle {
		a.logger.Info("archive job restored",
			logger.Field{Key: "chat_id", Value: st.ChatID},
			logger.Field{Key: "state", Value: st.State})
	}

	// 9. Wall-clock ticks
	driver, err := ticks.New(sched, loc, a.logger)
	if err != nil {
		return errors.Wrap(err, "failed to create tick driver")
	}
	if err := driver.Start(a.ctx); err != nil {
		return errors.Wrap(err, "failed to start tick driver")
	}
	a.ticks = driver

	// 10. Control socket and MCP tools
	a.ipcHandler = ipc.NewHandler(sched, a.logger)
	if err := a.ipcHandler.Start(a.ctx, a.config.SocketPath()); err != nil {
		return errors.Wrap(err, "failed to start IPC handler")
	}
	a.mcp = mcpserver.New(sched, archiveDB, a.logger)

	// 11. Metrics endpoint
	if a.config.Metrics.Enabled {
		if err := a.startMetricsServer(); err != nil {
			return err
		}
	}

	// 12. Config hot reload
	if a.configPath != "" {
		w, err := config.Watch(a.configPath, a.reloadConfig, a.logger)
		if err != nil {
			a.logger.Warn("config hot reload disabled", logger.Field{Key: "error", Value: err.Error()})
		} else {
			a.watcher = w
		}
	}

	a.started = true
	return nil
}

func (a *App) startMetricsServer() error {
	ln, err := net.Listen("tcp", a.config.Metrics.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen for metrics on %s", a.config.Metrics.Addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	a.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", err)
		}
	}()
	a.logger.Info("metrics endpoint started", logger.Field{Key: "addr", Value: ln.Addr().String()})
	return nil
}

// reloadConfig applies a changed [archive] section as the new scheduler
// config. Other sections need a restart.
func (a *App) reloadConfig(cfg *config.Config) {
	sched := a.Scheduler()
	if sched == nil {
		return
	}
	view, err := sched.SetConfig(a.ctx, cfg.ArchivePatch())
	if err != nil {
		a.logger.Error("failed to apply reloaded archive config", err)
		return
	}
	a.logger.Info("archive config reloaded",
		logger.Field{Key: "min_delay_ms", Value: view.MinDelayMs},
		logger.Field{Key: "max_delay_ms", Value: view.MaxDelayMs},
		logger.Field{Key: "max_batch_size", Value: view.MaxBatchSize})
}
