package workers

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/logger"
)

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("worker pool is stopped")

// WorkerPool manages a pool of goroutine workers for concurrent task execution.
type WorkerPool struct {
	taskQueue chan Task
	resultCh  chan Result
	workers   int
	wg        *taskWaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logger.Logger
	metrics   *PoolMetrics

	stateMu sync.RWMutex
	started bool
	stopped bool
}

// NewPool creates a new worker pool with the specified configuration.
func NewPool(workers int, bufferSize int, log *logger.Logger) *WorkerPool {
	if workers <= 0 {
		workers = DefaultPoolSize
	}
	if bufferSize <= 0 {
		bufferSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		taskQueue: make(chan Task, bufferSize),
		resultCh:  make(chan Result, bufferSize),
		workers:   workers,
		wg:        newTaskWaitGroup(),
		ctx:       ctx,
		cancel:    cancel,
		logger:    log.Component("workers"),
		metrics:   &PoolMetrics{},
	}
}

// Start initializes and starts all worker goroutines.
func (p *WorkerPool) Start() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.logger.Info("starting worker pool",
		logger.Field{Key: "workers", Value: p.workers},
		logger.Field{Key: "buffer_size", Value: cap(p.taskQueue)})

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues a task. It blocks while the queue is full, until ctx is done.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	if task.Run == nil {
		return errors.Newf("task %s has nothing to run", task.ID)
	}

	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	p.logger.DebugCtx(ctx, "task submitted",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "task_kind", Value: task.Kind})

	select {
	case p.taskQueue <- task:
		p.incrementSubmitted()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolStopped
	}
}

// Dispatch queues run as a task. The task context is ctx, so cancelling it
// interrupts the work.
func (p *WorkerPool) Dispatch(ctx context.Context, taskID, kind string, run func(ctx context.Context) error) error {
	return p.Submit(ctx, Task{ID: taskID, Kind: kind, Context: ctx, Run: run})
}

// Results returns a read-only channel for receiving task results.
// Results are dropped when nobody reads them.
func (p *WorkerPool) Results() <-chan Result {
	return p.resultCh
}

// Stop shuts down the worker pool. Running tasks see their pool context
// cancelled; queued tasks are discarded.
func (p *WorkerPool) Stop() {
	// unblocks Submit calls waiting on a full queue
	p.cancel()

	p.stateMu.Lock()
	if p.stopped {
		p.stateMu.Unlock()
		return
	}
	p.stopped = true
	p.stateMu.Unlock()

	p.wg.Wait()

	metrics := p.Metrics()
	p.logger.Info("worker pool stopped",
		logger.Field{Key: "tasks_submitted", Value: metrics.TasksSubmitted},
		logger.Field{Key: "tasks_completed", Value: metrics.TasksCompleted},
		logger.Field{Key: "tasks_failed", Value: metrics.TasksFailed},
		logger.Field{Key: "tasks_discarded", Value: len(p.taskQueue)})

	close(p.resultCh)
}

// WorkerCount returns the number of workers.
func (p *WorkerPool) WorkerCount() int {
	return p.workers
}

// QueueSize returns the current number of tasks waiting in the queue.
func (p *WorkerPool) QueueSize() int {
	return len(p.taskQueue)
}

// taskWaitGroup wraps sync.WaitGroup with thread-safe metrics access.
type taskWaitGroup struct {
	sync.RWMutex
	wg sync.WaitGroup
}

func newTaskWaitGroup() *taskWaitGroup {
	return &taskWaitGroup{}
}

func (twg *taskWaitGroup) Add(delta int) {
	twg.wg.Add(delta)
}

func (twg *taskWaitGroup) Done() {
	twg.wg.Done()
}

func (twg *taskWaitGroup) Wait() {
	twg.wg.Wait()
}
