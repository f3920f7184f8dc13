// Package archivetest provides deterministic doubles for the archive scheduler:
// a manual clock, an inline dispatcher, in-memory state store and sink, and an
// event recorder.
package archivetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/history"
)

// FakeClock is a manually advanced archive.Clock.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *FakeClock
	when    time.Time
	seq     int
	f       func()
	stopped bool
}

// NewFakeClock returns a clock frozen at now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) archive.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, when: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Pending returns the number of armed timers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Set moves the clock to t without firing timers.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d, firing due timers in order. Timers
// armed by callbacks fire too when they fall inside the window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		next := c.nextDueLocked(target)
		if next == nil {
			break
		}
		next.stopped = true
		c.now = next.when
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// FireNext jumps to the earliest armed timer and fires it. It reports whether
// a timer was fired.
func (c *FakeClock) FireNext() bool {
	c.mu.Lock()
	next := c.nextDueLocked(time.Time{})
	if next == nil {
		c.mu.Unlock()
		return false
	}
	next.stopped = true
	if next.when.After(c.now) {
		c.now = next.when
	}
	c.mu.Unlock()
	next.f()
	return true
}

// NextDue returns the time of the earliest armed timer.
func (c *FakeClock) NextDue() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.nextDueLocked(time.Time{})
	if t == nil {
		return time.Time{}, false
	}
	return t.when, true
}

// nextDueLocked finds the earliest live timer at or before limit (zero limit means any).
func (c *FakeClock) nextDueLocked(limit time.Time) *fakeTimer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].when.Equal(c.timers[j].when) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].when.Before(c.timers[j].when)
	})
	if len(c.timers) == 0 {
		return nil
	}
	first := c.timers[0]
	if !limit.IsZero() && first.when.After(limit) {
		return nil
	}
	return first
}

// InlineDispatcher runs tasks synchronously on the caller's goroutine.
// Hold makes it queue tasks until Release is called.
type InlineDispatcher struct {
	mu      sync.Mutex
	hold    bool
	pending []func()
	Kinds   []string
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, taskID, kind string, run func(context.Context) error) error {
	d.mu.Lock()
	d.Kinds = append(d.Kinds, kind)
	if d.hold {
		d.pending = append(d.pending, func() { _ = run(ctx) })
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()
	_ = run(ctx)
	return nil
}

// Hold makes subsequent dispatches wait for Release.
func (d *InlineDispatcher) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = true
}

// Release runs every held task and stops holding.
func (d *InlineDispatcher) Release() {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.hold = false
	d.mu.Unlock()
	for _, f := range pending {
		f()
	}
}

// MemoryStore is an in-memory archive.StateStore.
type MemoryStore struct {
	mu      sync.Mutex
	rec     *archive.Record
	Saves   int
	Deletes int
}

func (m *MemoryStore) Save(_ context.Context, rec *archive.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.Queue = append([]archive.QueueEntry(nil), rec.Queue...)
	m.rec = &cp
	m.Saves++
	return nil
}

func (m *MemoryStore) Load(_ context.Context) (*archive.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, nil
	}
	cp := *m.rec
	return &cp, nil
}

func (m *MemoryStore) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	m.Deletes++
	return nil
}

// Record returns the stored record or nil.
func (m *MemoryStore) Record() *archive.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec
}

// MemorySink is an idempotent in-memory archive.Sink.
type MemorySink struct {
	mu       sync.Mutex
	messages map[int64]map[int64]history.Message
	// FailIDs makes ArchiveOne fail for the listed message IDs.
	FailIDs map[int64]bool
	// FailAll makes every ArchiveOne call fail.
	FailAll bool
	// PanicNext makes the next n ArchiveOne calls panic.
	PanicNext int
	Calls     int
}

func NewMemorySink() *MemorySink {
	return &MemorySink{messages: make(map[int64]map[int64]history.Message)}
}

func (s *MemorySink) ArchiveOne(_ context.Context, msg history.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.PanicNext > 0 {
		s.PanicNext--
		panic(fmt.Sprintf("sink crashed on message %d", msg.ID))
	}
	if s.FailAll || s.FailIDs[msg.ID] {
		return errors.Newf("cannot store message %d", msg.ID)
	}
	chat, ok := s.messages[msg.ChatID]
	if !ok {
		chat = make(map[int64]history.Message)
		s.messages[msg.ChatID] = chat
	}
	chat[msg.ID] = msg
	return nil
}

func (s *MemorySink) AlreadyArchived(_ context.Context, chatID int64) ([]history.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.Message, 0, len(s.messages[chatID]))
	for _, m := range s.messages[chatID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Count returns the number of stored messages of a chat.
func (s *MemorySink) Count(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[chatID])
}

// SetFailAll toggles failure of every ArchiveOne call.
func (s *MemorySink) SetFailAll(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailAll = v
}

// SetPanicNext makes the next n ArchiveOne calls panic.
func (s *MemorySink) SetPanicNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PanicNext = n
}

// EventRecorder collects events.
type EventRecorder struct {
	mu     sync.Mutex
	events []archive.Event
}

func (r *EventRecorder) Notify(evt archive.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []archive.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]archive.Event(nil), r.events...)
}

// OfType returns the recorded events of one type.
func (r *EventRecorder) OfType(t archive.EventType) []archive.Event {
	var out []archive.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// States returns the sequence of "to" states from state_changed events.
func (r *EventRecorder) States() []archive.State {
	var out []archive.State
	for _, e := range r.OfType(archive.EventStateChanged) {
		if to, ok := e.Fields["to"].(string); ok {
			out = append(out, archive.State(to))
		}
	}
	return out
}

// RecordingExporter records export calls.
type RecordingExporter struct {
	mu    sync.Mutex
	Err   error
	Calls []ExportCall
}

// ExportCall is one recorded export.
type ExportCall struct {
	Title  string
	ChatID int64
	Format archive.ExportFormat
	Path   string
}

func (e *RecordingExporter) Export(_ context.Context, title string, chatID int64, format archive.ExportFormat, path string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, ExportCall{Title: title, ChatID: chatID, Format: format, Path: path})
	if e.Err != nil {
		return nil, e.Err
	}
	return []string{path}, nil
}

// CallCount returns the number of export calls.
func (e *RecordingExporter) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}
