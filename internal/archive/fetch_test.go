package archive_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/archive/archivetest"
	"github.com/aatumaykin/nexarchive/internal/history"
	"github.com/aatumaykin/nexarchive/internal/source"
)

const testChat int64 = 4242

var epoch = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func noSleep(context.Context, time.Duration) error { return nil }

func newFetchFixture(t *testing.T, n int) (*source.Memory, *archivetest.MemorySink) {
	t.Helper()
	src := source.NewMemory()
	src.AddChat(testChat, "Fixture chat", source.Generate(testChat, n, epoch))
	return src, archivetest.NewMemorySink()
}

func TestFetch_WalksHistoryNewestFirst(t *testing.T) {
	src, sink := newFetchFixture(t, 100)
	f := archive.NewFetcher(src, sink, noSleep, nil)
	ctx := context.Background()

	res := f.Fetch(ctx, archive.FetchRequest{ChatID: testChat, Cursor: archive.CursorStart, Limit: 50})
	require.NoError(t, res.Err)
	assert.True(t, res.OK)
	assert.Equal(t, 50, res.Archived)
	assert.Equal(t, int64(51), res.Cursor)
	assert.False(t, res.Exhausted())

	res = f.Fetch(ctx, archive.FetchRequest{ChatID: testChat, Cursor: res.Cursor, Limit: 50})
	require.NoError(t, res.Err)
	assert.Equal(t, 50, res.Archived)
	assert.True(t, res.Exhausted())

	res = f.Fetch(ctx, archive.FetchRequest{ChatID: testChat, Cursor: res.Cursor, Limit: 50})
	require.NoError(t, res.Err)
	assert.False(t, res.OK)
	assert.Equal(t, 0, res.Archived)
	assert.True(t, res.Exhausted())

	assert.Equal(t, 100, sink.Count(testChat))
}

func TestFetch_RandomizedOrderArchivesSamePage(t *testing.T) {
	src, sink := newFetchFixture(t, 30)
	f := archive.NewFetcher(src, sink, noSleep, nil)

	res := f.Fetch(context.Background(), archive.FetchRequest{
		ChatID: testChat, Limit: 10, RandomizeOrder: true, Seed: 99,
	})
	require.NoError(t, res.Err)
	assert.Equal(t, 10, res.Archived)
	assert.Equal(t, int64(21), res.Cursor)

	stored, err := sink.AlreadyArchived(context.Background(), testChat)
	require.NoError(t, err)
	require.Len(t, stored, 10)
	assert.Equal(t, int64(21), stored[0].ID)
	assert.Equal(t, int64(30), stored[9].ID)
}

func TestFetch_CountsBytesAndMedia(t *testing.T) {
	src := source.NewMemory()
	src.AddChat(testChat, "Media", []history.Message{
		{ID: 1, Text: "привет", Date: epoch},
		{ID: 2, Text: "", Date: epoch, Media: &history.Media{Kind: history.MediaPhoto}},
		{ID: 3, Text: "doc", Date: epoch, Media: &history.Media{Kind: history.MediaDocument, Size: 2048}},
	})
	f := archive.NewFetcher(src, archivetest.NewMemorySink(), noSleep, nil)

	res := f.Fetch(context.Background(), archive.FetchRequest{ChatID: testChat, Limit: 10})
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Archived)
	assert.Equal(t, int64(12+3), res.Bytes)
	assert.Equal(t, history.PhotoSizeEstimate+2048, res.MediaBytes)
	assert.True(t, res.Exhausted())
}

func TestFetch_PartialFailureStillAdvances(t *testing.T) {
	src, sink := newFetchFixture(t, 10)
	sink.FailIDs = map[int64]bool{9: true, 7: true}
	f := archive.NewFetcher(src, sink, noSleep, nil)

	res := f.Fetch(context.Background(), archive.FetchRequest{ChatID: testChat, Limit: 5})
	require.NoError(t, res.Err)
	assert.True(t, res.OK)
	assert.Equal(t, 3, res.Archived)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, int64(6), res.Cursor)
}

func TestFetch_AllFailedKeepsCursor(t *testing.T) {
	src, sink := newFetchFixture(t, 10)
	sink.SetFailAll(true)
	f := archive.NewFetcher(src, sink, noSleep, nil)

	res := f.Fetch(context.Background(), archive.FetchRequest{ChatID: testChat, Cursor: 8, Limit: 3})
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, archive.ErrFetchFailure))
	assert.False(t, res.OK)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, int64(8), res.Cursor)
}

func TestFetch_FloodWait(t *testing.T) {
	src, sink := newFetchFixture(t, 10)
	src.FailNext(&source.FloodWaitError{Seconds: 30})
	f := archive.NewFetcher(src, sink, noSleep, nil)

	res := f.Fetch(context.Background(), archive.FetchRequest{ChatID: testChat, Cursor: 5, Limit: 3})
	assert.Equal(t, 30*time.Second, res.RetryAfter)
	assert.True(t, errors.Is(res.Err, archive.ErrRateLimited))
	assert.Equal(t, int64(5), res.Cursor)
	assert.Equal(t, 0, sink.Count(testChat))
}

func TestFetch_SourceError(t *testing.T) {
	src, sink := newFetchFixture(t, 10)
	src.FailNext(errors.New("database is locked"))
	f := archive.NewFetcher(src, sink, noSleep, nil)

	res := f.Fetch(context.Background(), archive.FetchRequest{ChatID: testChat, Limit: 3})
	assert.True(t, errors.Is(res.Err, archive.ErrFetchFailure))
	assert.Equal(t, "fetch_failure", archive.Kind(res.Err))
	assert.Zero(t, res.RetryAfter)
}

func TestFetch_MissingCollaborators(t *testing.T) {
	res := archive.NewFetcher(nil, nil, noSleep, nil).Fetch(context.Background(), archive.FetchRequest{ChatID: 1})
	assert.True(t, errors.Is(res.Err, archive.ErrSourceUnavailable))
}

func TestFetch_SimulatedReadingSleepsBetweenMessages(t *testing.T) {
	src, sink := newFetchFixture(t, 10)
	var sleeps []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	f := archive.NewFetcher(src, sink, sleep, nil)

	res := f.Fetch(context.Background(), archive.FetchRequest{ChatID: testChat, Limit: 4, SimulateReading: true})
	require.NoError(t, res.Err)
	require.Len(t, sleeps, 3)
	for _, d := range sleeps {
		assert.Equal(t, time.Second, d)
	}
}

func TestFetch_InterruptedKeepsCursor(t *testing.T) {
	src, sink := newFetchFixture(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	f := archive.NewFetcher(src, sink, sleep, nil)

	res := f.Fetch(ctx, archive.FetchRequest{ChatID: testChat, Cursor: 9, Limit: 5, SimulateReading: true})
	assert.True(t, res.Interrupted)
	assert.Equal(t, 1, res.Archived)
	assert.Equal(t, int64(9), res.Cursor)
	assert.ErrorIs(t, res.Err, context.Canceled)
}
