package archive

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/logger"
)

func (s *Scheduler) onBatchTimer(gen uint64) {
	s.mu.Lock()
	defer s.unlock()

	if gen != s.gen || s.job == nil || s.fetching {
		return
	}
	switch s.status.State {
	case StateRunning:
	case StateRateLimited:
		s.status.RateLimitWaitSeconds = 0
		s.setStateLocked(StateRunning, "rate limit wait elapsed")
	default:
		return
	}
	s.timer = nil

	cfg := s.job.config
	now := s.clock.Now()

	if cfg.RespectActiveHours && !WithinActiveHours(cfg, now) {
		s.stopTimerLocked()
		s.setStateLocked(StateWaitingForActiveHours, "outside active hours")
		s.saveLocked()
		return
	}

	switch AdmitBatch(s.status, cfg) {
	case WaitUntilHourReset:
		d := UntilNextHour(now) + hourResetGrace
		s.scheduleLocked(d)
		s.metrics.recordQuotaWait("hourly")
		s.emitLocked(EventQuotaWait, "hourly quota reached", ErrHourlyQuotaExceeded,
			map[string]any{"wait_seconds": int(math.Ceil(d.Seconds()))})
		s.saveLocked()
		return
	case PauseUntilDayReset:
		s.stopTimerLocked()
		s.pausedForDailyCap = true
		s.status.LastError = "daily limit reached, will resume after the daily reset"
		s.metrics.recordQuotaWait("daily")
		s.setStateLocked(StatePaused, "daily quota reached")
		s.emitLocked(EventQuotaWait, s.status.LastError, ErrDailyQuotaExceeded, nil)
		s.saveLocked()
		return
	}

	limit := BatchSize(cfg, s.rng)
	if room := QuotaHeadroom(s.status, cfg); room < limit {
		limit = room
	}
	req := FetchRequest{
		ChatID:          s.status.ChatID,
		Cursor:          s.cursor,
		Limit:           limit,
		SimulateReading: cfg.SimulateReading,
		RandomizeOrder:  cfg.RandomizeOrder,
		Seed:            uint64(s.rng.Int64N(math.MaxInt64)),
	}
	s.fetching = true
	s.status.NextActionTime = time.Time{}

	j := s.job
	taskID := fmt.Sprintf("fetch-%s-%d", j.id, s.status.BatchesCompleted+1)
	s.logger.Debug("dispatching batch",
		logger.Field{Key: "chat_id", Value: req.ChatID},
		logger.Field{Key: "cursor", Value: req.Cursor},
		logger.Field{Key: "limit", Value: req.Limit})

	s.deferLocked(func() {
		err := s.dispatcher.Dispatch(j.ctx, taskID, "fetch", func(ctx context.Context) error {
			res := s.runFetch(ctx, req)
			s.onFetchResult(gen, res)
			return res.Err
		})
		if err != nil {
			s.onFetchResult(gen, FetchResult{
				Cursor: req.Cursor,
				Err:    errors.Mark(errors.Wrap(err, "dispatch batch"), ErrFetchFailure),
			})
		}
	})
}

// runFetch turns a panic inside the source or sink into a failed batch,
// so the job keeps its retry budget instead of waiting for a result forever.
func (s *Scheduler) runFetch(ctx context.Context, req FetchRequest) (res FetchResult) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Mark(errors.Newf("batch panicked: %v", r), ErrFetchFailure)
			s.logger.Error("batch panicked", err, logger.Field{Key: "chat_id", Value: req.ChatID})
			res = FetchResult{Cursor: req.Cursor, Err: err}
		}
	}()
	return s.fetcher.Fetch(ctx, req)
}

func (s *Scheduler) onFetchResult(gen uint64, res FetchResult) {
	s.mu.Lock()
	defer s.unlock()

	if gen != s.gen || s.job == nil {
		s.metrics.recordStale()
		s.logger.Debug("discarding stale batch result",
			logger.Field{Key: "archived", Value: res.Archived})
		return
	}
	s.fetching = false
	cfg := s.job.config

	if res.RetryAfter > 0 {
		s.metrics.recordBatch(res, "rate_limited")
		if s.status.State == StateRunning {
			s.handleRateLimitLocked(res.RetryAfter)
		} else {
			s.status.RateLimitWaitSeconds = int(math.Ceil(res.RetryAfter.Seconds()))
		}
		s.saveLocked()
		return
	}

	s.status.ArchivedCount += res.Archived
	s.status.FailedCount += res.Failed
	s.status.MessagesThisHour += res.Archived
	s.status.MessagesToday += res.Archived
	s.status.BytesProcessed += res.Bytes
	s.status.MediaBytes += res.MediaBytes
	if !res.Interrupted {
		s.cursor = res.Cursor
	}

	if res.Interrupted {
		s.metrics.recordBatch(res, "interrupted")
		s.saveLocked()
		return
	}

	switch {
	case res.OK:
		s.retryCount = 0
		s.consecutive++
		s.status.BatchesCompleted++
		s.status.LastActivityTime = s.clock.Now()
		s.metrics.recordBatch(res, "success")

		s.logger.Info("batch archived",
			logger.Field{Key: "chat_id", Value: s.status.ChatID},
			logger.Field{Key: "archived", Value: res.Archived},
			logger.Field{Key: "failed", Value: res.Failed},
			logger.Field{Key: "total_archived", Value: s.status.ArchivedCount},
			logger.Field{Key: "batches", Value: s.status.BatchesCompleted})
		s.emitLocked(EventBatchCompleted, "", nil, map[string]any{
			"archived":          res.Archived,
			"failed":            res.Failed,
			"archived_messages": s.status.ArchivedCount,
			"total_messages":    s.status.TotalEstimate,
		})

		if res.Exhausted() || s.status.ArchivedCount >= s.status.TotalEstimate {
			s.completeLocked()
			break
		}
		if s.status.State == StateRunning {
			d, burst := NextDelay(cfg, s.consecutive, s.status.BatchesCompleted, s.rng)
			if burst {
				s.consecutive = 0
			}
			s.scheduleLocked(d)
		}

	case res.Err == nil && res.Exhausted():
		s.metrics.recordBatch(res, "empty")
		s.completeLocked()

	default:
		s.retryCount++
		err := res.Err
		if err == nil {
			err = errors.Mark(errors.New("batch archived no messages"), ErrFetchFailure)
		}
		s.status.LastError = err.Error()
		s.metrics.recordBatch(res, "failure")

		if s.retryCount >= cfg.MaxRetries {
			s.failLocked(errors.Mark(
				errors.Wrapf(err, "giving up after %d attempts", s.retryCount),
				ErrMaxRetriesExceeded))
			break
		}

		s.logger.Warn("batch failed, will retry",
			logger.Field{Key: "chat_id", Value: s.status.ChatID},
			logger.Field{Key: "retry", Value: s.retryCount},
			logger.Field{Key: "error", Value: err.Error()})
		s.emitLocked(EventWarning, "batch failed", err, map[string]any{"retry": s.retryCount})

		if s.status.State == StateRunning {
			s.scheduleLocked(cfg.MaxDelay * time.Duration(s.retryCount+1))
		}
	}

	s.saveLocked()
}

func (s *Scheduler) completeLocked() {
	j := s.job
	s.stopTimerLocked()
	s.status.LastActivityTime = s.clock.Now()
	s.setStateLocked(StateCompleted, "history archived")

	s.logger.Info("archive job completed",
		logger.Field{Key: "job_id", Value: j.id},
		logger.Field{Key: "chat_id", Value: s.status.ChatID},
		logger.Field{Key: "archived", Value: s.status.ArchivedCount},
		logger.Field{Key: "failed", Value: s.status.FailedCount},
		logger.Field{Key: "bytes", Value: s.status.BytesProcessed})
	s.emitLocked(EventJobCompleted, "archive completed", nil, map[string]any{
		"archived_messages": s.status.ArchivedCount,
		"failed_messages":   s.status.FailedCount,
		"batches_completed": s.status.BatchesCompleted,
		"bytes_processed":   s.status.BytesProcessed,
		"media_bytes":       s.status.MediaBytes,
	})

	if j.config.AutoExportOnComplete {
		s.exportLocked(j.id, s.status.ChatID, s.status.ChatTitle, j.config)
	}

	j.cancel()
	s.job = nil
	s.gen++

	if !s.promoteNextLocked(s.baseCtx) {
		s.setStateLocked(StateIdle, "queue empty")
	}
}

func (s *Scheduler) failLocked(err error) {
	j := s.job
	s.stopTimerLocked()
	s.status.LastError = err.Error()
	s.setStateLocked(StateFailed, "max retries exceeded")

	s.logger.Error("archive job failed", err,
		logger.Field{Key: "job_id", Value: j.id},
		logger.Field{Key: "chat_id", Value: s.status.ChatID})
	s.emitLocked(EventJobFailed, "archive failed", err, nil)

	j.cancel()
	s.job = nil
	s.gen++

	s.promoteNextLocked(s.baseCtx)
}

func (s *Scheduler) exportLocked(jobID string, chatID int64, title string, cfg JobConfig) {
	if s.exporter == nil {
		s.logger.Warn("auto export skipped, no exporter configured", logger.Field{Key: "chat_id", Value: chatID})
		return
	}
	path := cfg.ExportPath
	if path == "" {
		if s.exportDir == "" {
			s.logger.Warn("auto export skipped, no export path", logger.Field{Key: "chat_id", Value: chatID})
			return
		}
		path = filepath.Join(s.exportDir, fmt.Sprintf("%s%d", defaultExportPrefix, chatID))
	}
	format := cfg.ExportFormat

	s.deferLocked(func() {
		err := s.dispatcher.Dispatch(s.baseCtx, "export-"+jobID, "export", func(ctx context.Context) error {
			paths, err := s.exporter.Export(ctx, title, chatID, format, path)
			s.onExportDone(jobID, chatID, paths, err)
			return err
		})
		if err != nil {
			s.onExportDone(jobID, chatID, nil, err)
		}
	})
}

func (s *Scheduler) onExportDone(jobID string, chatID int64, paths []string, err error) {
	s.mu.Lock()
	defer s.unlock()

	fields := map[string]any{"export_chat_id": chatID, "paths": paths}
	if err != nil {
		err = errors.Mark(errors.Wrap(err, "export archived chat"), ErrExportFailure)
		s.metrics.recordExport("failure")
		s.logger.Error("export failed", err, logger.Field{Key: "chat_id", Value: chatID})
		if s.status.JobID == jobID {
			s.status.LastError = err.Error()
			s.saveLocked()
		}
		s.emitLocked(EventExportFailed, "export failed", err, fields)
		return
	}

	s.metrics.recordExport("success")
	s.logger.Info("export written",
		logger.Field{Key: "chat_id", Value: chatID},
		logger.Field{Key: "paths", Value: paths})
	s.emitLocked(EventExportCompleted, "export written", nil, fields)
}
