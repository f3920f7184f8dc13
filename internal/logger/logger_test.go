package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WithValidConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json stdout", config: Config{Level: "debug", Format: "json", Output: "stdout"}},
		{name: "text stderr", config: Config{Level: "info", Format: "text", Output: "stderr"}},
		{name: "file output", config: Config{Level: "warn", Format: "json", Output: filepath.Join(t.TempDir(), "logs", "app.log")}},
		{name: "invalid level", config: Config{Level: "verbose", Format: "json", Output: "stdout"}, wantErr: true},
		{name: "invalid format", config: Config{Level: "debug", Format: "xml", Output: "stdout"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, l)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func newBufferLogger(t *testing.T, level slog.Level) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "json", level)
	require.NoError(t, err)
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_FieldsAndError(t *testing.T) {
	l, buf := newBufferLogger(t, slog.LevelDebug)

	l.Info("batch done", Field{Key: "chat_id", Value: 42}, Field{Key: "archived", Value: 10})
	l.Error("fetch failed", errors.New("boom"), Field{Key: "chat_id", Value: 42})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "batch done", lines[0]["msg"])
	assert.EqualValues(t, 42, lines[0]["chat_id"])
	assert.EqualValues(t, 10, lines[0]["archived"])
	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestLogger_ErrorWithNilError(t *testing.T) {
	l, buf := newBufferLogger(t, slog.LevelDebug)
	l.Error("no cause", nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	_, hasErr := lines[0]["error"]
	assert.False(t, hasErr)
}

func TestLogger_CtxVariants(t *testing.T) {
	l, buf := newBufferLogger(t, slog.LevelDebug)
	ctx := context.Background()

	l.DebugCtx(ctx, "d")
	l.InfoCtx(ctx, "i")
	l.WarnCtx(ctx, "w")
	l.ErrorCtx(ctx, "e", errors.New("x"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "DEBUG", lines[0]["level"])
	assert.Equal(t, "INFO", lines[1]["level"])
	assert.Equal(t, "WARN", lines[2]["level"])
	assert.Equal(t, "ERROR", lines[3]["level"])
}

func TestLogger_WithAndComponent(t *testing.T) {
	l, buf := newBufferLogger(t, slog.LevelInfo)

	l.Component("scheduler").With(Field{Key: "job_id", Value: "abc"}).Info("tick")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "scheduler", lines[0]["component"])
	assert.Equal(t, "abc", lines[0]["job_id"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(t, slog.LevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  slog.Level
		valid bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"trace", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	assert.NotPanics(t, func() {
		l.Info("ignored")
		l.Error("ignored", errors.New("x"))
	})
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "text", slog.LevelInfo)
	require.NoError(t, err)

	l.Info("paused", Field{Key: "state", Value: "paused"})
	assert.Contains(t, buf.String(), "msg=paused")
	assert.Contains(t, buf.String(), "state=paused")
}
