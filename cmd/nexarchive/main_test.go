package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/constants"
	"github.com/aatumaykin/nexarchive/internal/ipc"
	"github.com/aatumaykin/nexarchive/internal/sink"
	"github.com/aatumaykin/nexarchive/internal/source"
	"github.com/aatumaykin/nexarchive/internal/state"
)

func TestCommandStructure(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "status", "ctl", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	ctl := map[string]bool{}
	for _, c := range ctlCmd.Commands() {
		ctl[c.Name()] = true
	}
	for _, want := range []string{"start", "queue", "pause", "resume", "cancel", "clear-queue", "queue-list", "get-config", "set-config"} {
		assert.True(t, ctl[want], "missing ctl command %s", want)
	}
}

func TestServeFlags(t *testing.T) {
	serveLogLevel, serveMCP = "", false
	require.NoError(t, serveCmd.ParseFlags([]string{"-l", "debug", "--mcp"}))
	assert.Equal(t, "debug", serveLogLevel)
	assert.True(t, serveMCP)
}

func TestParseChatID(t *testing.T) {
	id, err := parseChatID("-1001234567890")
	require.NoError(t, err)
	assert.Equal(t, int64(-1001234567890), id)

	for _, bad := range []string{"abc", "0", ""} {
		_, err := parseChatID(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseConfigPatch(t *testing.T) {
	patch, err := parseConfigPatch([]string{
		"min_delay_ms=5000", "max_batch_size = 20", "randomize_order=false",
		"export_format=markdown", "export_path=1234", "max_retries=1",
	})
	require.NoError(t, err)
	require.NotNil(t, patch.MinDelayMs)
	assert.Equal(t, int64(5000), *patch.MinDelayMs)
	assert.Equal(t, 20, *patch.MaxBatchSize)
	assert.False(t, *patch.RandomizeOrder)
	assert.Equal(t, "markdown", *patch.ExportFormat)
	assert.Equal(t, "1234", *patch.ExportPath)
	assert.Equal(t, 1, *patch.MaxRetries)
	assert.Nil(t, patch.MaxDelayMs)

	_, err = parseConfigPatch([]string{"speed=fast"})
	assert.ErrorContains(t, err, `unknown config key "speed"`)

	_, err = parseConfigPatch([]string{"min_delay_ms"})
	assert.ErrorContains(t, err, "expected key=value")

	_, err = parseConfigPatch([]string{"min_delay_ms=soon"})
	assert.ErrorContains(t, err, "invalid config value")
}

func TestChatRequest(t *testing.T) {
	req, err := chatRequest(constants.CommandStart, []string{"42"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), req.ChatID)
	assert.Nil(t, req.Config)

	req, err = chatRequest(constants.CommandQueue, []string{"42", "max_messages_per_day=300"})
	require.NoError(t, err)
	require.NotNil(t, req.Config)
	assert.Equal(t, 300, *req.Config.MaxMessagesPerDay)
}

// startDaemon serves a real scheduler on a unix socket and returns its path.
func startDaemon(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "nxc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	archiveDB, err := sink.Open(filepath.Join(dir, "archive.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { archiveDB.Close() })

	mem := source.NewMemory()
	mem.AddChat(42, "Answers", source.Generate(42, 30, time.Now().Add(-time.Hour)))

	cfg := archive.DefaultJobConfig()
	cfg.MinDelay = time.Minute
	cfg.MaxDelay = 2 * time.Minute
	sched, err := archive.New(archive.Options{Source: mem, Sink: archiveDB, Defaults: cfg})
	require.NoError(t, err)
	t.Cleanup(sched.Close)

	socketPath := filepath.Join(dir, constants.SocketFile)
	h := ipc.NewHandler(sched, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.Start(ctx, socketPath))
	t.Cleanup(func() {
		cancel()
		h.Stop()
	})
	return socketPath
}

func TestSendControl(t *testing.T) {
	socketPath := startDaemon(t)
	ctx := context.Background()
	var out bytes.Buffer

	require.NoError(t, sendControl(ctx, &out, socketPath, ipc.Request{Type: constants.CommandStart, ChatID: 42}, false))
	assert.Contains(t, out.String(), "✅")

	out.Reset()
	err := sendControl(ctx, &out, socketPath, ipc.Request{Type: constants.CommandQueue, ChatID: 42}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already_queued")
	assert.Contains(t, out.String(), "❌ queue failed")

	out.Reset()
	require.NoError(t, sendControl(ctx, &out, socketPath, ipc.Request{Type: constants.CommandQueue, ChatID: 43}, false))
	out.Reset()
	require.NoError(t, sendControl(ctx, &out, socketPath, ipc.Request{Type: constants.CommandQueueList}, false))
	assert.Contains(t, out.String(), "1. 43")

	out.Reset()
	require.NoError(t, sendControl(ctx, &out, socketPath, ipc.Request{Type: constants.CommandGetConfig}, false))
	assert.Contains(t, out.String(), `"min_delay_ms": 60000`)

	out.Reset()
	require.NoError(t, sendControl(ctx, &out, socketPath, ipc.Request{Type: constants.CommandStatus}, true))
	assert.Contains(t, out.String(), `"chat_id": 42`)

	out.Reset()
	require.NoError(t, sendControl(ctx, &out, socketPath, ipc.Request{Type: constants.CommandCancel}, false))
}

func TestSendControl_NotRunning(t *testing.T) {
	var out bytes.Buffer
	socketPath := filepath.Join(t.TempDir(), "none.sock")

	err := sendControl(context.Background(), &out, socketPath, ipc.Request{Type: constants.CommandPause}, false)
	assert.ErrorIs(t, err, ipc.ErrNotRunning)
	assert.Contains(t, out.String(), "not running")
}

func TestShowStatus_Online(t *testing.T) {
	socketPath := startDaemon(t)
	var out bytes.Buffer

	require.NoError(t, showStatus(context.Background(), &out, socketPath, nil, false))
	assert.Contains(t, out.String(), "📊 State: idle")
}

func TestShowStatus_Offline(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "none.sock")
	store := state.NewFileStoreAt(filepath.Join(dir, "state.json"), nil)
	ctx := context.Background()
	var out bytes.Buffer

	require.NoError(t, showStatus(ctx, &out, socketPath, store, false))
	assert.Contains(t, out.String(), "showing the saved state")
	assert.Contains(t, out.String(), constants.MsgDaemonNoState)

	require.NoError(t, store.Save(ctx, &archive.Record{
		Version: archive.RecordVersion,
		Status:  archive.StatusView{State: archive.StatePaused, ChatID: 77, ChatTitle: "Saved"},
		Queue:   []archive.QueueEntry{{ChatID: 78}},
	}))

	out.Reset()
	require.NoError(t, showStatus(ctx, &out, socketPath, store, false))
	assert.Contains(t, out.String(), "💬 Chat: Saved (77)")
	assert.Contains(t, out.String(), "1. 78")

	out.Reset()
	require.NoError(t, showStatus(ctx, &out, socketPath, store, true))
	assert.Contains(t, out.String(), `"state": "paused"`)
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "nexarchive "+Version)
	assert.Contains(t, out.String(), "Git Commit:")
}

func TestConfigValidateCmd(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.toml")
	require.NoError(t, os.WriteFile(good, []byte("[workspace]\npath = \""+dir+"\"\n[source]\npath = \""+dir+"/history.db\"\n"), 0o644))
	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[source]\nkind = \"imap\"\n"), 0o644))

	envPath = filepath.Join(dir, "missing.env")
	var out bytes.Buffer
	configValidateCmd.SetOut(&out)

	require.NoError(t, configValidateCmd.RunE(configValidateCmd, []string{good}))
	assert.Contains(t, out.String(), constants.MsgConfigValid)

	out.Reset()
	require.Error(t, configValidateCmd.RunE(configValidateCmd, []string{bad}))
	assert.Contains(t, out.String(), "invalid source.kind")
}
