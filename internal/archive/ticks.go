package archive

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/aatumaykin/nexarchive/internal/logger"
)

// HourTick resets the hourly quota counter. Call it at every hour boundary.
func (s *Scheduler) HourTick() {
	s.mu.Lock()
	defer s.unlock()

	s.status.MessagesThisHour = 0
	s.logger.Debug("hourly quota reset")
	if s.job != nil {
		s.saveLocked()
	}
}

// DayTick resets the daily quota counter and resumes a job that was paused
// by the daily cap. Call it at every day boundary.
func (s *Scheduler) DayTick() {
	s.mu.Lock()
	defer s.unlock()

	s.status.MessagesToday = 0
	s.logger.Debug("daily quota reset")

	if s.job != nil && s.status.State == StatePaused && s.pausedForDailyCap {
		s.status.LastError = ""
		s.resumeLocked("daily quota reset")
	}
	if s.job != nil {
		s.saveLocked()
	}
}

// ActiveHoursTick moves the job in and out of WaitingForActiveHours.
// Call it about once a minute.
func (s *Scheduler) ActiveHoursTick() {
	s.mu.Lock()
	defer s.unlock()

	if s.job == nil || !s.job.config.RespectActiveHours {
		return
	}
	within := WithinActiveHours(s.job.config, s.clock.Now())

	switch {
	case s.status.State == StateRunning && !within:
		s.stopTimerLocked()
		s.setStateLocked(StateWaitingForActiveHours, "active hours ended")
		s.saveLocked()
	case s.status.State == StateWaitingForActiveHours && within:
		s.resumeLocked("active hours started")
		s.saveLocked()
	}
}

// Restore loads the persisted record. A job that was active is restored as
// Paused and needs an explicit Resume.
func (s *Scheduler) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	rec, err := s.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load archive state")
	}
	if rec == nil {
		return nil
	}

	s.mu.Lock()
	defer s.unlock()

	if cfg := rec.Config.Config(); cfg.Validate() == nil {
		s.config = cfg
	} else {
		s.logger.Warn("persisted archive config is invalid, keeping defaults")
	}

	s.discardJobLocked()
	s.queue = s.queue[:0]
	now := s.clock.Now()
	for _, e := range rec.Queue {
		cfg := s.config
		if s.queueMode == QueueSnapshot && e.Config != nil {
			cfg = e.Config.Config()
		}
		queuedAt := parseTime(e.QueuedAt)
		if queuedAt.IsZero() {
			queuedAt = now
		}
		s.queue = append(s.queue, QueuedJob{ChatID: e.ChatID, Config: cfg, QueuedAt: queuedAt})
	}

	status := statusFromView(rec.Status)
	if !status.State.Valid() {
		status.State = StateIdle
	}
	s.status = status
	s.status.NextActionTime = time.Time{}
	s.cursor = rec.Cursor
	s.consecutive = rec.ConsecutiveBatches
	s.retryCount = rec.RetryCount
	// only a job already paused by the daily cap keeps auto-resume,
	// jobs paused by the restart wait for an explicit Resume
	s.pausedForDailyCap = rec.PausedForDailyCap && status.State == StatePaused

	restoredFrom := status.State
	if status.State.Active() {
		jobCfg := s.config
		if rec.JobConfig != nil {
			jobCfg = rec.JobConfig.Config()
		}
		jobID := status.JobID
		if jobID == "" {
			jobID = uuid.NewString()
			s.status.JobID = jobID
		}
		jobCtx, cancel := context.WithCancel(s.baseCtx)
		s.job = &job{id: jobID, gen: s.gen, config: jobCfg, ctx: jobCtx, cancel: cancel}
		s.status.State = StatePaused
	}

	s.metrics.setState(s.status.State)
	s.metrics.setQueueSize(len(s.queue))
	s.logger.Info("archive state restored",
		logger.Field{Key: "chat_id", Value: s.status.ChatID},
		logger.Field{Key: "persisted_state", Value: restoredFrom},
		logger.Field{Key: "state", Value: s.status.State},
		logger.Field{Key: "cursor", Value: s.cursor},
		logger.Field{Key: "queue_size", Value: len(s.queue)})
	if restoredFrom != s.status.State {
		s.emitLocked(EventStateChanged, "restored after restart", nil,
			map[string]any{"from": string(restoredFrom), "to": string(s.status.State)})
	}
	s.saveLocked()
	return nil
}
