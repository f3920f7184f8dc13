package ipc

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/archive/archivetest"
	"github.com/aatumaykin/nexarchive/internal/constants"
	"github.com/aatumaykin/nexarchive/internal/source"
)

var epoch = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T) *archive.Scheduler {
	t.Helper()
	src := source.NewMemory()
	src.AddChat(4242, "Fixture chat", source.Generate(4242, 100, epoch))
	src.AddChat(77, "Second", source.Generate(77, 10, epoch))

	s, err := archive.New(archive.Options{
		Source:       src,
		Sink:         archivetest.NewMemorySink(),
		Exporter:     &archivetest.RecordingExporter{},
		Store:        &archivetest.MemoryStore{},
		Dispatcher:   &archivetest.InlineDispatcher{},
		Clock:        archivetest.NewFakeClock(epoch),
		Rand:         rand.New(rand.NewPCG(1, 2)),
		Defaults:     archive.DefaultJobConfig(),
		ExportDir:    t.TempDir(),
		ReadingSleep: func(context.Context, time.Duration) error { return nil },
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func ptr[T any](v T) *T { return &v }

func TestExecute(t *testing.T) {
	s := newScheduler(t)
	ctx := context.Background()

	resp := Execute(ctx, s, Request{Type: constants.CommandStatus})
	require.True(t, resp.Success)
	assert.Equal(t, archive.StateIdle, resp.Status.State)

	resp = Execute(ctx, s, Request{Type: constants.CommandStart})
	assert.False(t, resp.Success)
	assert.Equal(t, "chat_id is required", resp.Error)

	resp = Execute(ctx, s, Request{
		Type: constants.CommandStart, ChatID: 4242,
		Config: &archive.ConfigPatch{MaxBatchSize: ptr(20)},
	})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, archive.StateRunning, resp.Status.State)

	resp = Execute(ctx, s, Request{Type: constants.CommandGetConfig})
	require.True(t, resp.Success)
	require.NotNil(t, resp.JobConfig)
	assert.Equal(t, 20, resp.JobConfig.MaxBatchSize)
	assert.Equal(t, archive.DefaultJobConfig().MaxBatchSize, resp.Config.MaxBatchSize)

	resp = Execute(ctx, s, Request{Type: constants.CommandStart, ChatID: 77})
	assert.False(t, resp.Success)
	assert.Equal(t, "already_running", resp.ErrorKind)

	resp = Execute(ctx, s, Request{Type: constants.CommandQueue, ChatID: 77})
	require.True(t, resp.Success, resp.Error)
	require.Len(t, resp.Queue, 1)
	assert.Equal(t, int64(77), resp.Queue[0].ChatID)

	resp = Execute(ctx, s, Request{Type: constants.CommandQueue, ChatID: 77})
	assert.Equal(t, "already_queued", resp.ErrorKind)

	resp = Execute(ctx, s, Request{Type: constants.CommandQueueList})
	assert.Len(t, resp.Queue, 1)

	resp = Execute(ctx, s, Request{Type: constants.CommandPause})
	require.True(t, resp.Success)
	assert.Equal(t, archive.StatePaused, resp.Status.State)

	resp = Execute(ctx, s, Request{Type: constants.CommandPause})
	assert.Equal(t, "invalid_transition", resp.ErrorKind)

	resp = Execute(ctx, s, Request{Type: constants.CommandResume})
	require.True(t, resp.Success)
	assert.Equal(t, archive.StateRunning, resp.Status.State)

	resp = Execute(ctx, s, Request{Type: constants.CommandClearQueue})
	require.True(t, resp.Success)
	assert.Equal(t, "1 queued chats removed", resp.Message)
	assert.Empty(t, s.Pending())

	resp = Execute(ctx, s, Request{Type: constants.CommandCancel})
	require.True(t, resp.Success)

	resp = Execute(ctx, s, Request{Type: "reboot"})
	assert.Equal(t, "unknown request type: reboot", resp.Error)
}

func TestExecute_SetConfig(t *testing.T) {
	s := newScheduler(t)
	ctx := context.Background()

	resp := Execute(ctx, s, Request{Type: constants.CommandSetConfig})
	assert.False(t, resp.Success)

	resp = Execute(ctx, s, Request{Type: constants.CommandSetConfig, Config: &archive.ConfigPatch{MaxRetries: ptr(5)}})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, 5, resp.Config.MaxRetries)
	assert.Equal(t, 5, s.Config().MaxRetries)

	resp = Execute(ctx, s, Request{Type: constants.CommandSetConfig, Config: &archive.ConfigPatch{MinBatchSize: ptr(0)}})
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid_config", resp.ErrorKind)
	assert.Equal(t, 5, resp.Config.MaxRetries)
}

func TestHandler_RoundTrip(t *testing.T) {
	s := newScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socket := filepath.Join(t.TempDir(), constants.SocketFile)
	h := NewHandler(s, nil)
	require.NoError(t, h.Start(ctx, socket))
	assert.Error(t, h.Start(ctx, socket))

	info, err := os.Stat(socket)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	resp, err := Send(ctx, socket, Request{Type: constants.CommandStart, ChatID: 4242})
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, "Fixture chat", resp.Status.ChatTitle)
	assert.Equal(t, archive.StateRunning, s.Status().State)

	resp, err = Send(ctx, socket, Request{Type: "bogus"})
	require.NoError(t, err)
	assert.False(t, resp.Success)

	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())

	_, err = Send(ctx, socket, Request{Type: constants.CommandStatus})
	assert.True(t, errors.Is(err, ErrNotRunning))
}

func TestPID(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, constants.PIDFile)
	socket := filepath.Join(dir, constants.SocketFile)

	_, err := ReadPID(pidPath)
	assert.True(t, os.IsNotExist(err))

	_, err = AcquirePID(pidPath)
	require.NoError(t, err)
	pid, err := ReadPID(pidPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, IsRunning(pid))
	assert.False(t, IsRunning(0))

	// our own pid does not block a restart
	_, err = AcquirePID(pidPath)
	assert.NoError(t, err)

	require.NoError(t, os.WriteFile(pidPath, []byte("garbage"), 0o600))
	_, err = ReadPID(pidPath)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(socket, nil, 0o600))
	require.NoError(t, Cleanup(pidPath, socket))
	require.NoError(t, Cleanup(pidPath, socket))
	assert.NoFileExists(t, pidPath)
	assert.NoFileExists(t, socket)
}
