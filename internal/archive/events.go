package archive

import (
	"context"
	"time"
)

// EventType names a scheduler notification.
type EventType string

const (
	EventStateChanged    EventType = "state_changed"
	EventBatchCompleted  EventType = "batch_completed"
	EventJobCompleted    EventType = "job_completed"
	EventJobFailed       EventType = "job_failed"
	EventRateLimited     EventType = "rate_limited"
	EventQuotaWait       EventType = "quota_wait"
	EventExportCompleted EventType = "export_completed"
	EventExportFailed    EventType = "export_failed"
	EventQueueChanged    EventType = "queue_changed"
	EventWarning         EventType = "warning"
)

// Event is pushed to the notifier on every observable outcome.
type Event struct {
	ID      string         `json:"id"`
	Type    EventType      `json:"type"`
	JobID   string         `json:"job_id,omitempty"`
	ChatID  int64          `json:"chat_id,omitempty"`
	State   State          `json:"state"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Kind    string         `json:"kind,omitempty"`
	Time    time.Time      `json:"time"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Notifier receives scheduler events. Notify is called with the scheduler
// lock held and must not block.
type Notifier interface {
	Notify(evt Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(evt Event) { f(evt) }

// Exporter renders a chat's archived messages on completion.
type Exporter interface {
	// Export writes the chat in the given format and returns the written paths.
	Export(ctx context.Context, chatTitle string, chatID int64, format ExportFormat, path string) ([]string, error)
}

// Dispatcher runs work off the scheduler's control path.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskID, kind string, run func(ctx context.Context) error) error
}

type goDispatcher struct{}

func (goDispatcher) Dispatch(ctx context.Context, _ string, _ string, run func(context.Context) error) error {
	go func() { _ = run(ctx) }()
	return nil
}
