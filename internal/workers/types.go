// Package workers provides an async worker pool for background task execution.
// The archive scheduler runs its batch fetches and exports on it, so control
// calls and timers never wait for a batch to finish.
package workers

import (
	"context"
	"time"
)

// Task represents a unit of work to be executed by a worker.
type Task struct {
	ID      string                          // Unique task identifier
	Kind    string                          // Task kind: "fetch" or "export"
	Context context.Context                 // Task-specific context for cancellation
	Run     func(ctx context.Context) error // The work itself
}

// Result represents the outcome of a task execution.
type Result struct {
	TaskID   string        // ID of the executed task
	Kind     string        // Kind of the executed task
	Error    error         // Error if execution failed
	Duration time.Duration // Execution duration
}

// PoolMetrics tracks execution metrics for the worker pool.
type PoolMetrics struct {
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksFailed    uint64
	ResultsDropped uint64
	TotalDuration  time.Duration
}

// Constants for worker pool configuration
const (
	DefaultPoolSize  = 2
	DefaultQueueSize = 16
)
