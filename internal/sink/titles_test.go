package sink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexarchive/internal/history"
	"github.com/aatumaykin/nexarchive/internal/source"
)

func TestWithTitles(t *testing.T) {
	s := openTestSink(t)
	mem := source.NewMemory()
	mem.AddChat(21, "Book club", source.Generate(21, 3, testDate))
	src := WithTitles(mem, s)
	ctx := context.Background()

	info, err := src.ChatInfo(ctx, 21)
	require.NoError(t, err)
	assert.Equal(t, "Book club", info.Title)

	chats, err := s.Chats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "Book club", chats[0].Title)

	// paging is passed through untouched
	page, next, err := src.NextUnprocessedPage(ctx, 21, history.CursorStart, 10)
	require.NoError(t, err)
	assert.Len(t, page, 3)
	assert.Equal(t, history.CursorExhausted, next)
}

func TestWithTitles_LookupError(t *testing.T) {
	s := openTestSink(t)
	src := WithTitles(source.NewMemory(), s)

	_, err := src.ChatInfo(context.Background(), 404)
	assert.Error(t, err)

	chats, err := s.Chats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, chats)
}
