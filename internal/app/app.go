// Package app wires the archive daemon together: the message source, the
// archive database, the scheduler and everything that drives or observes it
// (tick driver, worker pool, notifications, metrics, control socket, config
// hot reload).
package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/config"
	"github.com/aatumaykin/nexarchive/internal/ipc"
	"github.com/aatumaykin/nexarchive/internal/logger"
	"github.com/aatumaykin/nexarchive/internal/mcpserver"
	"github.com/aatumaykin/nexarchive/internal/notify"
	"github.com/aatumaykin/nexarchive/internal/sink"
	"github.com/aatumaykin/nexarchive/internal/ticks"
	"github.com/aatumaykin/nexarchive/internal/workers"
)

// App represents the archive daemon.
type App struct {
	config     *config.Config
	configPath string
	logger     *logger.Logger

	// Storage
	archiveDB *sink.SQLite
	source    archive.Source
	store     archive.StateStore

	// Scheduling
	scheduler  *archive.Scheduler
	ticks      *ticks.Driver
	workerPool *workers.WorkerPool

	// Observers
	hub           *notify.Hub
	registry      *prometheus.Registry
	metricsServer *http.Server

	// Control surfaces
	ipcHandler *ipc.Handler
	watcher    *config.Watcher
	mcp        *mcpserver.Server

	// closers release connections opened by the builders, in order
	closers []func() error

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	started bool
}

// New creates an App. configPath is watched for changes when non-empty.
func New(cfg *config.Config, configPath string, log *logger.Logger) *App {
	if log == nil {
		log = logger.Nop()
	}
	return &App{
		config:     cfg,
		configPath: configPath,
		logger:     log,
	}
}

// Run initializes the daemon and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		a.Shutdown()
		return err
	}

	a.logger.Info("archive daemon is running")
	<-ctx.Done()

	return a.Shutdown()
}

// Scheduler returns the archive scheduler, nil before Initialize.
func (a *App) Scheduler() *archive.Scheduler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.scheduler
}

// MCP returns the tool server, nil before Initialize.
func (a *App) MCP() *mcpserver.Server {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mcp
}

// Registry returns the Prometheus registry the daemon reports to.
func (a *App) Registry() *prometheus.Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}
