// Package archive implements the gradual archive scheduler: pacing policy,
// batch fetching, the job state machine with its FIFO queue, and crash-safe
// persistence of scheduler state.
//
// All scheduler state is guarded by one mutex. Batch fetches and exports run
// on a Dispatcher (normally the worker pool) and report back through
// callbacks, so control calls and timers never wait for a batch to finish.
package archive

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/aatumaykin/nexarchive/internal/logger"
)

const (
	rateLimitBuffer     = 5 * time.Second
	hourResetGrace      = time.Second
	defaultSaveTimeout  = 5 * time.Second
	defaultExportPrefix = "chat_"
)

// Options wires the scheduler to its collaborators.
type Options struct {
	Source     Source
	Sink       Sink
	Exporter   Exporter
	Store      StateStore
	Notifier   Notifier
	Dispatcher Dispatcher
	Clock      Clock
	Rand       Rand
	Metrics    *Metrics
	Logger     *logger.Logger

	// Location is the zone of active hours and hour boundaries.
	// Nil keeps the zone of Clock.
	Location *time.Location

	// Defaults is the scheduler config used by start/queue calls without an
	// explicit config. Zero value means DefaultJobConfig().
	Defaults  JobConfig
	QueueMode QueueConfigMode
	// ExportDir is used when a job has no export_path.
	ExportDir string
	// ReadingSleep paces simulated reading inside a batch.
	ReadingSleep func(ctx context.Context, d time.Duration) error
	SaveTimeout  time.Duration
}

type job struct {
	id     string
	gen    uint64
	config JobConfig
	ctx    context.Context
	cancel context.CancelFunc
}

// Scheduler owns the active job, the queue and the batch timer.
type Scheduler struct {
	mu sync.Mutex

	source     Source
	sink       Sink
	exporter   Exporter
	store      StateStore
	notifier   Notifier
	dispatcher Dispatcher
	clock      Clock
	rng        Rand
	metrics    *Metrics
	logger     *logger.Logger
	fetcher    *Fetcher

	queueMode   QueueConfigMode
	exportDir   string
	saveTimeout time.Duration

	config JobConfig
	job    *job
	status JobStatus
	queue  []QueuedJob

	cursor            int64
	consecutive       int
	retryCount        int
	pausedForDailyCap bool

	timer    Timer
	fetching bool
	gen      uint64

	afterUnlock []func()

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New creates a scheduler in the Idle state.
func New(opts Options) (*Scheduler, error) {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	opts.Clock = InLocation(opts.Clock, opts.Location)
	if opts.Rand == nil {
		opts.Rand = NewRand(opts.Clock)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = goDispatcher{}
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}
	if opts.Defaults.MinDelay == 0 && opts.Defaults.MaxDelay == 0 {
		opts.Defaults = DefaultJobConfig()
	}
	if err := opts.Defaults.Validate(); err != nil {
		return nil, errors.Wrap(err, "default archive config")
	}
	mode, err := ParseQueueConfigMode(string(opts.QueueMode))
	if err != nil {
		return nil, err
	}

	log := opts.Logger.Component("archive_scheduler")
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		source:      opts.Source,
		sink:        opts.Sink,
		exporter:    opts.Exporter,
		store:       opts.Store,
		notifier:    opts.Notifier,
		dispatcher:  opts.Dispatcher,
		clock:       opts.Clock,
		rng:         opts.Rand,
		metrics:     opts.Metrics,
		logger:      log,
		fetcher:     NewFetcher(opts.Source, opts.Sink, opts.ReadingSleep, log),
		queueMode:   mode,
		exportDir:   opts.ExportDir,
		saveTimeout: opts.SaveTimeout,
		config:      opts.Defaults,
		status:      JobStatus{State: StateIdle},
		cursor:      CursorStart,
		baseCtx:     ctx,
		baseCancel:  cancel,
	}
	s.metrics.setState(StateIdle)
	return s, nil
}

// Close stops the timers and cancels any in-flight batch. The persisted
// record is left untouched so the job can be restored later.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.unlock()

	s.stopTimerLocked()
	if s.job != nil {
		s.job.cancel()
	}
	s.baseCancel()
	s.logger.Info("archive scheduler stopped")
}

// Status returns the current status projection.
func (s *Scheduler) Status() StatusView {
	s.mu.Lock()
	defer s.unlock()
	return s.statusViewLocked()
}

// Config returns the scheduler config used for new jobs.
func (s *Scheduler) Config() ConfigView {
	s.mu.Lock()
	defer s.unlock()
	return s.config.View()
}

// JobConfig returns the config snapshot of the active job.
func (s *Scheduler) JobConfig() (ConfigView, bool) {
	s.mu.Lock()
	defer s.unlock()
	if s.job == nil {
		return ConfigView{}, false
	}
	return s.job.config.View(), true
}

// QueueMode reports how queued jobs pick their config.
func (s *Scheduler) QueueMode() QueueConfigMode {
	return s.queueMode
}

// Pending returns the queued chats in FIFO order.
func (s *Scheduler) Pending() []QueueEntry {
	s.mu.Lock()
	defer s.unlock()
	return s.queueEntriesLocked()
}

// unlock releases the mutex and then runs work deferred while it was held.
func (s *Scheduler) unlock() {
	pending := s.afterUnlock
	s.afterUnlock = nil
	s.mu.Unlock()
	for _, f := range pending {
		f()
	}
}

func (s *Scheduler) deferLocked(f func()) {
	s.afterUnlock = append(s.afterUnlock, f)
}

func (s *Scheduler) statusViewLocked() StatusView {
	v := s.status.view(s.clock.Now())
	v.RetryCount = s.retryCount
	v.QueueSize = len(s.queue)
	v.QueueConfigMode = string(s.queueMode)
	return v
}

func (s *Scheduler) queueEntriesLocked() []QueueEntry {
	entries := make([]QueueEntry, 0, len(s.queue))
	for _, q := range s.queue {
		e := QueueEntry{ChatID: q.ChatID, QueuedAt: formatTime(q.QueuedAt)}
		if s.queueMode == QueueSnapshot {
			v := q.Config.View()
			e.Config = &v
		}
		entries = append(entries, e)
	}
	return entries
}

func (s *Scheduler) recordLocked() *Record {
	rec := &Record{
		Version:            RecordVersion,
		Status:             s.statusViewLocked(),
		Config:             s.config.View(),
		Cursor:             s.cursor,
		ConsecutiveBatches: s.consecutive,
		RetryCount:         s.retryCount,
		PausedForDailyCap:  s.pausedForDailyCap,
		QueueMode:          s.queueMode,
		Queue:              s.queueEntriesLocked(),
		SavedAt:            s.clock.Now(),
	}
	if s.job != nil {
		v := s.job.config.View()
		rec.JobConfig = &v
	}
	return rec
}

func (s *Scheduler) saveLocked() {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if err := s.store.Save(ctx, s.recordLocked()); err != nil {
		s.logger.Error("failed to persist archive state", err,
			logger.Field{Key: "chat_id", Value: s.status.ChatID},
			logger.Field{Key: "state", Value: s.status.State})
	}
}

func (s *Scheduler) setStateLocked(state State, reason string) {
	prev := s.status.State
	if prev == state {
		return
	}
	s.status.State = state
	s.metrics.setState(state)

	s.logger.Info("archive state changed",
		logger.Field{Key: "chat_id", Value: s.status.ChatID},
		logger.Field{Key: "from", Value: prev},
		logger.Field{Key: "to", Value: state},
		logger.Field{Key: "reason", Value: reason})

	s.emitLocked(EventStateChanged, reason, nil, map[string]any{"from": string(prev), "to": string(state)})
}

func (s *Scheduler) emitLocked(typ EventType, msg string, err error, fields map[string]any) {
	if s.notifier == nil {
		return
	}
	evt := Event{
		ID:      uuid.NewString(),
		Type:    typ,
		JobID:   s.status.JobID,
		ChatID:  s.status.ChatID,
		State:   s.status.State,
		Message: msg,
		Time:    s.clock.Now(),
		Fields:  fields,
	}
	if err != nil {
		evt.Error = err.Error()
		evt.Kind = Kind(err)
	}
	s.notifier.Notify(evt)
}

func (s *Scheduler) scheduleLocked(d time.Duration) {
	s.stopTimerLocked()
	s.status.CurrentDelay = d
	s.status.NextActionTime = s.clock.Now().Add(d)

	gen := s.gen
	s.timer = s.clock.AfterFunc(d, func() { s.onBatchTimer(gen) })
	s.metrics.recordDelay(d)

	s.logger.Debug("next batch scheduled",
		logger.Field{Key: "chat_id", Value: s.status.ChatID},
		logger.Field{Key: "delay_ms", Value: d.Milliseconds()})
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.status.NextActionTime = time.Time{}
}

// discardJobLocked drops the active job. Results of its in-flight batch
// will no longer match the generation and get discarded.
func (s *Scheduler) discardJobLocked() {
	s.stopTimerLocked()
	if s.job != nil {
		s.job.cancel()
		s.job = nil
	}
	s.gen++
	s.fetching = false
}
