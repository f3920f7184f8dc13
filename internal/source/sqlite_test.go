package source

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexarchive/internal/history"
)

func openTestHistory(t *testing.T) *SQLite {
	t.Helper()
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "cache", "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestSQLite_PagesNewestFirst(t *testing.T) {
	src := openTestHistory(t)
	ctx := context.Background()

	msgs := Generate(7, 25, testEnd)
	msgs[4].Media = &history.Media{Kind: history.MediaVideo, Path: "v.mp4", Size: 900, Mime: "video/mp4"}
	require.NoError(t, src.Add(ctx, 7, "Seven", msgs))

	info, err := src.ChatInfo(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Seven", info.Title)
	assert.Equal(t, 25, info.MessageCount)

	cursor := history.CursorStart
	var seen []int64
	for cursor != history.CursorExhausted {
		page, next, err := src.NextUnprocessedPage(ctx, 7, cursor, 10)
		require.NoError(t, err)
		require.LessOrEqual(t, len(page), 10)
		for _, m := range page {
			if len(seen) > 0 {
				require.Less(t, m.ID, seen[len(seen)-1])
			}
			seen = append(seen, m.ID)
		}
		cursor = next
	}
	assert.Len(t, seen, 25)
	assert.Equal(t, int64(25), seen[0])
	assert.Equal(t, int64(1), seen[24])
}

func TestSQLite_RowRoundTrip(t *testing.T) {
	src := openTestHistory(t)
	ctx := context.Background()

	in := history.Message{
		ID: 42, UserID: 9, Username: "ann", FirstName: "Ann", LastName: "Lee",
		Text: "hi", HTML: "<b>hi</b>", Date: testEnd, Type: "video", ReplyTo: 41,
		Media: &history.Media{Kind: history.MediaVideo, Path: "v.mp4", Size: 900, Mime: "video/mp4"},
	}
	require.NoError(t, src.Add(ctx, 3, "Three", []history.Message{in}))

	page, next, err := src.NextUnprocessedPage(ctx, 3, history.CursorStart, 5)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, history.CursorExhausted, next)

	in.ChatID = 3
	assert.Equal(t, in, page[0])
}

func TestSQLite_ExactMultipleExhaustsOnLastPage(t *testing.T) {
	src := openTestHistory(t)
	ctx := context.Background()
	require.NoError(t, src.Add(ctx, 1, "One", Generate(1, 10, testEnd)))

	page, next, err := src.NextUnprocessedPage(ctx, 1, 0, 5)
	require.NoError(t, err)
	assert.Len(t, page, 5)
	assert.Equal(t, int64(6), next)

	page, next, err = src.NextUnprocessedPage(ctx, 1, next, 5)
	require.NoError(t, err)
	assert.Len(t, page, 5)
	assert.Equal(t, history.CursorExhausted, next)
}

func TestSQLite_UnknownChat(t *testing.T) {
	src := openTestHistory(t)
	ctx := context.Background()

	_, err := src.ChatInfo(ctx, 404)
	assert.Error(t, err)

	page, next, err := src.NextUnprocessedPage(ctx, 404, 0, 5)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Equal(t, history.CursorExhausted, next)
}
