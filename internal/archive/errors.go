package archive

import (
	"time"

	"github.com/cockroachdb/errors"
)

// Error taxonomy of the gradual archiver. Only the command errors
// (ErrAlreadyRunning, ErrInvalidConfig, ErrInvalidTransition, ErrSourceUnavailable)
// are returned from the control surface; the rest end up in last_error and events.
var (
	ErrAlreadyRunning      = errors.New("archive job already running")
	ErrSourceUnavailable   = errors.New("message source unavailable")
	ErrFetchFailure        = errors.New("batch fetch failed")
	ErrMaxRetriesExceeded  = errors.New("max retries exceeded")
	ErrHourlyQuotaExceeded = errors.New("hourly message quota reached")
	ErrDailyQuotaExceeded  = errors.New("daily message quota reached")
	ErrRateLimited         = errors.New("rate limited by source")
	ErrExportFailure       = errors.New("export failed")

	ErrInvalidConfig     = errors.New("invalid archive config")
	ErrInvalidTransition = errors.New("operation not allowed in current state")
	ErrAlreadyQueued     = errors.New("chat already active or queued")
)

// Kind returns a short machine-readable name of a taxonomy error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrMaxRetriesExceeded):
		return "max_retries_exceeded"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrFetchFailure):
		return "fetch_failure"
	case errors.Is(err, ErrHourlyQuotaExceeded):
		return "hourly_quota_exceeded"
	case errors.Is(err, ErrDailyQuotaExceeded):
		return "daily_quota_exceeded"
	case errors.Is(err, ErrExportFailure):
		return "export_failure"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrAlreadyQueued):
		return "already_queued"
	default:
		return "internal"
	}
}

// RetryAfterError is implemented by source errors that carry a flood-wait delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// RetryAfter extracts the flood-wait delay from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ra RetryAfterError
	if errors.As(err, &ra) && ra.RetryAfter() > 0 {
		return ra.RetryAfter(), true
	}
	return 0, false
}
