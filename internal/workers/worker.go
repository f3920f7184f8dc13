package workers

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/logger"
)

// worker is the main worker goroutine that processes tasks from the queue.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", logger.Field{Key: "worker_id", Value: id})

	for {
		select {
		case task := <-p.taskQueue:
			p.processTask(id, task)
		case <-p.ctx.Done():
			p.logger.Debug("worker stopping", logger.Field{Key: "worker_id", Value: id})
			return
		}
	}
}

// processTask handles a single task execution with metrics and error handling.
func (p *WorkerPool) processTask(workerID int, task Task) {
	startTime := time.Now()

	// task context if provided, the pool context always
	execCtx := p.ctx
	if task.Context != nil {
		var cancel context.CancelFunc
		execCtx, cancel = mergeCancel(task.Context, p.ctx)
		defer cancel()
	}

	result := Result{TaskID: task.ID, Kind: task.Kind}
	result.Error = p.run(execCtx, task)
	result.Duration = time.Since(startTime)

	if result.Error != nil {
		p.incrementFailed()
		p.logger.Warn("task failed",
			logger.Field{Key: "worker_id", Value: workerID},
			logger.Field{Key: "task_id", Value: task.ID},
			logger.Field{Key: "task_kind", Value: task.Kind},
			logger.Field{Key: "error", Value: result.Error.Error()})
	} else {
		p.incrementCompleted()
	}
	p.recordDuration(result.Duration)

	select {
	case p.resultCh <- result:
	default:
		p.incrementDropped()
	}

	p.logger.Debug("task processed",
		logger.Field{Key: "worker_id", Value: workerID},
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "duration_ms", Value: result.Duration.Milliseconds()})
}

// run executes the task with panic recovery.
func (p *WorkerPool) run(ctx context.Context, task Task) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic during task execution: %v", r)
			p.logger.Error("task panic recovered", err, logger.Field{Key: "task_id", Value: task.ID})
		}
	}()
	return task.Run(ctx)
}

// mergeCancel returns a context derived from a that is also cancelled with b.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
