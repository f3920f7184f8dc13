package app

import (
	"context"
	"time"

	"github.com/aatumaykin/nexarchive/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Shutdown stops all components in reverse start order:
//  1. Stops accepting control requests and config reloads
//  2. Stops the ticks and the scheduler (the persisted record stays)
//  3. Drains the worker pool and the notification hub
//  4. Closes databases, broker connections and the PID file
//
// Calling it more than once is safe.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel == nil {
		return nil
	}

	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			a.logger.Error("failed to stop config watcher", err)
		}
		a.watcher = nil
	}

	if a.ipcHandler != nil {
		if err := a.ipcHandler.Stop(); err != nil {
			a.logger.Error("failed to stop IPC handler", err)
		}
		a.ipcHandler = nil
	}

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.logger.Error("failed to stop metrics server", err)
		}
		cancel()
		a.metricsServer = nil
	}

	if a.ticks != nil {
		a.ticks.Stop()
		a.ticks = nil
	}

	if a.scheduler != nil {
		a.logger.Info("🛑 Stopping archive scheduler")
		a.scheduler.Close()
	}

	if a.workerPool != nil {
		a.workerPool.Stop()
		a.workerPool = nil
	}

	if a.hub != nil {
		a.hub.Close()
		if n := a.hub.Dropped(); n > 0 {
			a.logger.Warn("notifications dropped", logger.Field{Key: "count", Value: n})
		}
		a.hub = nil
	}

	a.cancel()
	a.cancel = nil

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to release resource", err)
		}
	}
	a.closers = nil
	a.started = false

	return nil
}
