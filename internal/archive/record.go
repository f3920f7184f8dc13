package archive

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// RecordVersion is bumped when the persisted layout changes incompatibly.
const RecordVersion = 1

// QueueConfigMode decides which config a queued job runs with.
type QueueConfigMode string

const (
	// QueueSnapshot keeps the config captured when the chat was queued.
	QueueSnapshot QueueConfigMode = "snapshot"
	// QueueInherit runs the queued chat with the scheduler config current at promotion.
	QueueInherit QueueConfigMode = "inherit"
)

// ParseQueueConfigMode maps a config string to a mode. Empty means snapshot.
func ParseQueueConfigMode(s string) (QueueConfigMode, error) {
	switch QueueConfigMode(s) {
	case "", QueueSnapshot:
		return QueueSnapshot, nil
	case QueueInherit:
		return QueueInherit, nil
	default:
		return "", errors.Newf("unknown queue config mode %q (expected snapshot or inherit)", s)
	}
}

// QueuedJob is a chat waiting for the active slot.
type QueuedJob struct {
	ChatID   int64
	Config   JobConfig
	QueuedAt time.Time
}

// QueueEntry is the persisted and projected form of a QueuedJob.
type QueueEntry struct {
	ChatID   int64       `json:"chat_id"`
	QueuedAt string      `json:"queued_at,omitempty"`
	Config   *ConfigView `json:"config,omitempty"`
}

// Record is the durable snapshot written after every state-affecting transition.
type Record struct {
	Version            int             `json:"version"`
	Status             StatusView      `json:"status"`
	Config             ConfigView      `json:"config"`
	JobConfig          *ConfigView     `json:"job_config,omitempty"`
	Cursor             int64           `json:"cursor"`
	ConsecutiveBatches int             `json:"consecutive_batches"`
	RetryCount         int             `json:"retry_count"`
	PausedForDailyCap  bool            `json:"paused_for_daily_cap,omitempty"`
	QueueMode          QueueConfigMode `json:"queue_config_mode"`
	Queue              []QueueEntry    `json:"queue"`
	SavedAt            time.Time       `json:"saved_at"`
}

// StateStore persists the scheduler Record.
type StateStore interface {
	// Save replaces the stored record.
	Save(ctx context.Context, rec *Record) error
	// Load returns nil and no error when nothing is stored.
	Load(ctx context.Context) (*Record, error)
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context) error
}
