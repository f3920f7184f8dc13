package archive

import (
	"math"
	"time"
)

// State of the archive scheduler.
type State string

const (
	StateIdle                  State = "idle"
	StateRunning               State = "running"
	StatePaused                State = "paused"
	StateWaitingForActiveHours State = "waiting_active_hours"
	StateRateLimited           State = "rate_limited"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"
)

// AllStates lists every state in declaration order.
var AllStates = []State{
	StateIdle, StateRunning, StatePaused, StateWaitingForActiveHours,
	StateRateLimited, StateCompleted, StateFailed,
}

// Active reports whether a job in this state occupies the active slot.
func (s State) Active() bool {
	switch s {
	case StateRunning, StatePaused, StateWaitingForActiveHours, StateRateLimited:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, st := range AllStates {
		if st == s {
			return true
		}
	}
	return false
}

// JobStatus is the mutable progress record of the active job.
type JobStatus struct {
	State     State
	JobID     string
	ChatID    int64
	ChatTitle string

	TotalEstimate    int
	ArchivedCount    int
	FailedCount      int
	BatchesCompleted int

	MessagesThisHour int
	MessagesToday    int

	BytesProcessed int64
	MediaBytes     int64

	StartTime        time.Time
	LastActivityTime time.Time
	NextActionTime   time.Time

	CurrentDelay         time.Duration
	RateLimitWaitSeconds int
	LastError            string
}

// StatusView is the read model returned to callers and persisted to disk.
type StatusView struct {
	State                State  `json:"state"`
	JobID                string `json:"job_id,omitempty"`
	ChatID               int64  `json:"chat_id"`
	ChatTitle            string `json:"chat_title"`
	TotalMessages        int    `json:"total_messages"`
	ArchivedMessages     int    `json:"archived_messages"`
	FailedMessages       int    `json:"failed_messages"`
	BatchesCompleted     int    `json:"batches_completed"`
	MessagesToday        int    `json:"messages_today"`
	MessagesThisHour     int    `json:"messages_this_hour"`
	BytesProcessed       int64  `json:"bytes_processed"`
	MediaBytes           int64  `json:"media_bytes"`
	StartTime            string `json:"start_time,omitempty"`
	LastActivity         string `json:"last_activity,omitempty"`
	NextAction           string `json:"next_action,omitempty"`
	NextActionInSeconds  int64  `json:"next_action_in_seconds"`
	CurrentDelayMs       int64  `json:"current_delay_ms"`
	RateLimitWaitSeconds int    `json:"rate_limit_wait_seconds"`
	RetryCount           int    `json:"retry_count"`
	QueueSize            int    `json:"queue_size"`
	QueueConfigMode      string `json:"queue_config_mode,omitempty"`
	LastError            string `json:"last_error,omitempty"`
}

// Progress returns archived/total as a percentage capped at 100.
func (v StatusView) Progress() float64 {
	if v.TotalMessages <= 0 {
		return 0
	}
	return math.Min(100, float64(v.ArchivedMessages)*100/float64(v.TotalMessages))
}

func (s JobStatus) view(now time.Time) StatusView {
	v := StatusView{
		State:                s.State,
		JobID:                s.JobID,
		ChatID:               s.ChatID,
		ChatTitle:            s.ChatTitle,
		TotalMessages:        s.TotalEstimate,
		ArchivedMessages:     s.ArchivedCount,
		FailedMessages:       s.FailedCount,
		BatchesCompleted:     s.BatchesCompleted,
		MessagesToday:        s.MessagesToday,
		MessagesThisHour:     s.MessagesThisHour,
		BytesProcessed:       s.BytesProcessed,
		MediaBytes:           s.MediaBytes,
		StartTime:            formatTime(s.StartTime),
		LastActivity:         formatTime(s.LastActivityTime),
		NextAction:           formatTime(s.NextActionTime),
		CurrentDelayMs:       s.CurrentDelay.Milliseconds(),
		RateLimitWaitSeconds: s.RateLimitWaitSeconds,
		LastError:            s.LastError,
	}
	if !s.NextActionTime.IsZero() {
		if left := s.NextActionTime.Sub(now); left > 0 {
			v.NextActionInSeconds = int64(math.Ceil(left.Seconds()))
		}
	}
	return v
}

func statusFromView(v StatusView) JobStatus {
	return JobStatus{
		State:                v.State,
		JobID:                v.JobID,
		ChatID:               v.ChatID,
		ChatTitle:            v.ChatTitle,
		TotalEstimate:        v.TotalMessages,
		ArchivedCount:        v.ArchivedMessages,
		FailedCount:          v.FailedMessages,
		BatchesCompleted:     v.BatchesCompleted,
		MessagesThisHour:     v.MessagesThisHour,
		MessagesToday:        v.MessagesToday,
		BytesProcessed:       v.BytesProcessed,
		MediaBytes:           v.MediaBytes,
		StartTime:            parseTime(v.StartTime),
		LastActivityTime:     parseTime(v.LastActivity),
		NextActionTime:       parseTime(v.NextAction),
		CurrentDelay:         time.Duration(v.CurrentDelayMs) * time.Millisecond,
		RateLimitWaitSeconds: v.RateLimitWaitSeconds,
		LastError:            v.LastError,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
