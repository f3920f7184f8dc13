package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Name: "test"}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "timeout text", err: errors.New("Connection Timeout"), want: true},
		{name: "telegram flood", err: errors.New("api: 429 Too Many Requests: retry after 5"), want: true},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "bad gateway", err: errors.New("HTTP 502 Bad Gateway"), want: true},
		{name: "unauthorized", err: errors.New("api: 401 Unauthorized"), want: false},
		{name: "chat not found", err: errors.New("api: 400 Bad Request: chat not found"), want: false},
		{name: "unknown", err: errors.New("something odd"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset by peer")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	cause := errors.New("i/o timeout")
	err := Run(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return cause
	})
	assert.ErrorIs(t, err, cause)
	assert.ErrorContains(t, err, "all 3 attempts failed")
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Run(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return errors.New("403 Forbidden")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_Permanent(t *testing.T) {
	calls := 0
	cause := errors.New("timeout but do not care")
	err := Run(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return Permanent(cause)
	})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Permanent(nil))
}

func TestDo_CustomRetryable(t *testing.T) {
	cfg := fastConfig()
	cfg.Retryable = func(error) bool { return true }
	calls := 0
	_ = Run(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}

	calls := 0
	err := Run(ctx, cfg, func(context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, time.Second, calculateBackoff(0, time.Second, 10*time.Second))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, time.Second, 10*time.Second))
	assert.Equal(t, 10*time.Second, calculateBackoff(5, time.Second, 10*time.Second))
	assert.Equal(t, 10*time.Second, calculateBackoff(70, time.Second, 10*time.Second))
}
