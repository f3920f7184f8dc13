package archive

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/aatumaykin/nexarchive/internal/logger"
)

// Start begins archiving chatID. A nil cfg uses the scheduler config.
func (s *Scheduler) Start(ctx context.Context, chatID int64, cfg *JobConfig) error {
	s.mu.Lock()
	defer s.unlock()

	if s.status.State.Active() {
		return errors.Wrapf(ErrAlreadyRunning, "chat %d is %s", s.status.ChatID, s.status.State)
	}

	c := s.config
	if cfg != nil {
		c = *cfg
	}
	return s.startLocked(ctx, chatID, c)
}

func (s *Scheduler) startLocked(ctx context.Context, chatID int64, cfg JobConfig) error {
	if s.source == nil || s.sink == nil {
		return ErrSourceUnavailable
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	info, err := s.source.ChatInfo(ctx, chatID)
	if err != nil {
		s.logger.Warn("chat info unavailable, using defaults",
			logger.Field{Key: "chat_id", Value: chatID},
			logger.Field{Key: "error", Value: err.Error()})
	}
	title := info.Title
	if title == "" {
		title = fmt.Sprintf("Chat %d", chatID)
	}
	total := info.MessageCount
	if total <= 0 {
		total = DefaultTotalEstimate
	}

	s.discardJobLocked()
	jobCtx, cancel := context.WithCancel(s.baseCtx)
	s.job = &job{
		id:     uuid.NewString(),
		gen:    s.gen,
		config: cfg,
		ctx:    jobCtx,
		cancel: cancel,
	}

	now := s.clock.Now()
	s.status = JobStatus{
		State:            s.status.State,
		JobID:            s.job.id,
		ChatID:           chatID,
		ChatTitle:        title,
		TotalEstimate:    total,
		MessagesThisHour: s.status.MessagesThisHour,
		MessagesToday:    s.status.MessagesToday,
		StartTime:        now,
		LastActivityTime: now,
	}
	s.cursor = CursorStart
	s.consecutive = 0
	s.retryCount = 0
	s.pausedForDailyCap = false

	s.logger.Info("archive job started",
		logger.Field{Key: "job_id", Value: s.job.id},
		logger.Field{Key: "chat_id", Value: chatID},
		logger.Field{Key: "chat_title", Value: title},
		logger.Field{Key: "total_estimate", Value: total})

	if cfg.RespectActiveHours && !WithinActiveHours(cfg, now) {
		s.setStateLocked(StateWaitingForActiveHours, "started outside active hours")
	} else {
		s.setStateLocked(StateRunning, "started")
		d, _ := NextDelay(cfg, 0, 0, s.rng)
		s.scheduleLocked(d)
	}

	s.saveLocked()
	return nil
}

// Pause stops the batch timer of a running job.
func (s *Scheduler) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlock()

	if s.status.State != StateRunning {
		return errors.Wrapf(ErrInvalidTransition, "cannot pause in state %s", s.status.State)
	}

	s.stopTimerLocked()
	s.pausedForDailyCap = false
	s.setStateLocked(StatePaused, "paused by operator")
	s.saveLocked()
	return nil
}

// Resume continues a paused or waiting job.
func (s *Scheduler) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlock()

	st := s.status.State
	if (st != StatePaused && st != StateWaitingForActiveHours) || s.job == nil {
		return errors.Wrapf(ErrInvalidTransition, "cannot resume in state %s", st)
	}

	s.resumeLocked("resumed by operator")
	s.saveLocked()
	return nil
}

func (s *Scheduler) resumeLocked(reason string) {
	s.pausedForDailyCap = false
	cfg := s.job.config

	if cfg.RespectActiveHours && !WithinActiveHours(cfg, s.clock.Now()) {
		s.stopTimerLocked()
		s.setStateLocked(StateWaitingForActiveHours, "outside active hours")
		return
	}

	s.setStateLocked(StateRunning, reason)
	if s.fetching {
		// the in-flight batch schedules the next one when it reports back
		return
	}
	d, burst := NextDelay(cfg, s.consecutive, s.status.BatchesCompleted, s.rng)
	if burst {
		s.consecutive = 0
	}
	s.scheduleLocked(d)
}

// Cancel drops the active job, returns to Idle and deletes the persisted
// record. Queued chats stay queued. Cancel always succeeds.
func (s *Scheduler) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.unlock()

	hadJob := s.job != nil
	s.discardJobLocked()

	s.status = JobStatus{
		State:            s.status.State,
		MessagesThisHour: s.status.MessagesThisHour,
		MessagesToday:    s.status.MessagesToday,
	}
	s.cursor = CursorStart
	s.consecutive = 0
	s.retryCount = 0
	s.pausedForDailyCap = false
	s.setStateLocked(StateIdle, "cancelled")

	if s.store != nil {
		if err := s.store.Delete(ctx); err != nil {
			s.logger.Error("failed to delete archive state", err)
		}
	}
	if hadJob {
		s.logger.Info("archive job cancelled")
	}
	return nil
}

// Queue appends chatID to the FIFO queue and starts it right away when no
// job is active. A nil cfg uses the scheduler config.
func (s *Scheduler) Queue(ctx context.Context, chatID int64, cfg *JobConfig) error {
	s.mu.Lock()
	defer s.unlock()

	c := s.config
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if s.status.State.Active() && s.status.ChatID == chatID {
		return errors.Wrapf(ErrAlreadyQueued, "chat %d is the active job", chatID)
	}
	for _, q := range s.queue {
		if q.ChatID == chatID {
			return errors.Wrapf(ErrAlreadyQueued, "chat %d is already queued", chatID)
		}
	}

	s.queue = append(s.queue, QueuedJob{ChatID: chatID, Config: c, QueuedAt: s.clock.Now()})
	s.metrics.setQueueSize(len(s.queue))
	s.emitLocked(EventQueueChanged, fmt.Sprintf("chat %d queued", chatID), nil,
		map[string]any{"queue_size": len(s.queue), "queued_chat_id": chatID})

	if !s.status.State.Active() {
		s.promoteNextLocked(ctx)
	}
	s.saveLocked()
	return nil
}

// ClearQueue removes every pending chat and returns how many were removed.
func (s *Scheduler) ClearQueue(ctx context.Context) int {
	s.mu.Lock()
	defer s.unlock()

	n := len(s.queue)
	s.queue = nil
	s.metrics.setQueueSize(0)
	if n > 0 {
		s.emitLocked(EventQueueChanged, "queue cleared", nil, map[string]any{"removed": n})
		s.saveLocked()
	}
	return n
}

// promoteNextLocked starts queued chats until one starts or the queue is empty.
func (s *Scheduler) promoteNextLocked(ctx context.Context) bool {
	defer func() { s.metrics.setQueueSize(len(s.queue)) }()

	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]

		cfg := next.Config
		if s.queueMode == QueueInherit {
			cfg = s.config
		}
		if err := s.startLocked(ctx, next.ChatID, cfg); err != nil {
			s.logger.Error("failed to start queued chat", err, logger.Field{Key: "chat_id", Value: next.ChatID})
			s.emitLocked(EventWarning, fmt.Sprintf("queued chat %d dropped", next.ChatID), err, nil)
			continue
		}
		return true
	}
	return false
}

// SetConfig applies a partial update to the scheduler config. The running
// job keeps the snapshot it was started with.
func (s *Scheduler) SetConfig(ctx context.Context, patch ConfigPatch) (ConfigView, error) {
	s.mu.Lock()
	defer s.unlock()

	cfg := patch.Apply(s.config)
	if err := cfg.Validate(); err != nil {
		return s.config.View(), err
	}
	s.config = cfg
	s.logger.Info("archive config updated")
	s.saveLocked()
	return cfg.View(), nil
}

// HandleRateLimit reacts to a flood-wait signal for the running job.
func (s *Scheduler) HandleRateLimit(ctx context.Context, wait time.Duration) error {
	s.mu.Lock()
	defer s.unlock()

	if s.status.State != StateRunning || s.job == nil {
		return errors.Wrapf(ErrInvalidTransition, "cannot handle rate limit in state %s", s.status.State)
	}
	s.handleRateLimitLocked(wait)
	s.saveLocked()
	return nil
}

func (s *Scheduler) handleRateLimitLocked(wait time.Duration) {
	secs := int(math.Ceil(wait.Seconds()))
	s.status.RateLimitWaitSeconds = secs
	err := errors.Wrapf(ErrRateLimited, "source asked to wait %ds", secs)
	s.status.LastError = err.Error()
	s.metrics.recordRateLimit()

	s.stopTimerLocked()
	s.setStateLocked(StateRateLimited, "flood wait")
	s.emitLocked(EventRateLimited, "source rate limit", err, map[string]any{"wait_seconds": secs})

	if s.job.config.StopOnRateLimit {
		s.setStateLocked(StatePaused, "stopped on rate limit")
		return
	}
	s.scheduleLocked(wait + rateLimitBuffer)
}
