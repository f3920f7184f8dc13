package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/history"
	"github.com/aatumaykin/nexarchive/internal/source"
)

var testDate = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func openTestSink(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "archive.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_ArchiveOneIsIdempotent(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	msg := history.Message{ID: 5, ChatID: 9, FirstName: "Ann", Text: "hello", Date: testDate}
	require.NoError(t, s.ArchiveOne(ctx, msg))
	msg.Text = "edited later"
	require.NoError(t, s.ArchiveOne(ctx, msg))

	n, err := s.Count(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msgs, err := s.AlreadyArchived(ctx, 9)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)

	chats, err := s.Chats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, 1, chats[0].MessageCount)
}

func TestSQLite_AlreadyArchivedIsChronological(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	// archived newest first, the way batches walk a chat
	for i := int64(3); i >= 1; i-- {
		require.NoError(t, s.ArchiveOne(ctx, history.Message{
			ID: i, ChatID: 1, Text: "m", Date: testDate.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.ArchiveOne(ctx, history.Message{ID: 1, ChatID: 2, Text: "other", Date: testDate}))

	msgs, err := s.AlreadyArchived(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(1), msgs[0].ID)
	assert.Equal(t, int64(3), msgs[2].ID)

	empty, err := s.AlreadyArchived(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSQLite_RowRoundTrip(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	in := history.Message{
		ID: 42, ChatID: 3, UserID: 9, Username: "ann", FirstName: "Ann", LastName: "Lee",
		Text: "see attached", HTML: "see <i>attached</i>", Date: testDate, Type: "document", ReplyTo: 41,
		Media: &history.Media{Kind: history.MediaDocument, Path: "files/a.pdf", Size: 2048, Mime: "application/pdf"},
	}
	require.NoError(t, s.ArchiveOne(ctx, in))

	msgs, err := s.AlreadyArchived(ctx, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, in, msgs[0])
}

func TestSQLite_TextIsStoredNormalized(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	require.NoError(t, s.ArchiveOne(ctx, history.Message{ID: 1, ChatID: 1, Text: "e\u0301", Date: testDate}))

	msgs, err := s.AlreadyArchived(ctx, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "\u00e9", msgs[0].Text)
	assert.Equal(t, "text", msgs[0].Type)
}

func TestSQLite_RememberChat(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	require.NoError(t, s.RememberChat(ctx, 7, "Old title"))
	require.NoError(t, s.ArchiveOne(ctx, history.Message{ID: 1, ChatID: 7, Date: testDate}))
	require.NoError(t, s.ArchiveOne(ctx, history.Message{ID: 2, ChatID: 7, Date: testDate}))
	require.NoError(t, s.RememberChat(ctx, 7, "New title"))

	chats, err := s.Chats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, int64(7), chats[0].ChatID)
	assert.Equal(t, "New title", chats[0].Title)
	assert.Equal(t, 2, chats[0].MessageCount)
	assert.False(t, chats[0].LastUpdated.IsZero())
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.ArchiveOne(ctx, history.Message{ID: 1, ChatID: 1, Date: testDate}))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())

	n, err := s.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLite_WithFetcher(t *testing.T) {
	s := openTestSink(t)
	src := source.NewMemory()
	src.AddChat(11, "Eleven", source.Generate(11, 30, testDate))
	f := archive.NewFetcher(src, s, nil, nil)
	ctx := context.Background()

	cursor := archive.CursorStart
	for cursor != archive.CursorExhausted {
		res := f.Fetch(ctx, archive.FetchRequest{ChatID: 11, Cursor: cursor, Limit: 12})
		require.NoError(t, res.Err)
		cursor = res.Cursor
	}
	// a second pass over the same chat stores nothing new
	res := f.Fetch(ctx, archive.FetchRequest{ChatID: 11, Cursor: archive.CursorStart, Limit: 12})
	require.NoError(t, res.Err)

	n, err := s.Count(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, 30, n)
}

func TestSQLite_ArchiveOneError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, nil)
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(int64(1), int64(2), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"hi", sqlmock.AnyArg(), testDate.Unix(), sqlmock.AnyArg(), "text", sqlmock.AnyArg(),
			"", "", int64(0), "", false).
		WillReturnError(assert.AnError)

	err = s.ArchiveOne(context.Background(), history.Message{ID: 1, ChatID: 2, Text: "hi", Date: testDate})
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorContains(t, err, "archive message 1 of chat 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_AlreadyArchivedErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db, nil)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT message_id`).WithArgs(int64(5)).WillReturnError(assert.AnError)
	_, err = s.AlreadyArchived(ctx, 5)
	assert.ErrorIs(t, err, assert.AnError)

	mock.ExpectQuery(`SELECT message_id`).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"message_id"}).AddRow(1))
	_, err = s.AlreadyArchived(ctx, 5)
	assert.ErrorContains(t, err, "scan archived message")

	rows := sqlmock.NewRows([]string{"message_id", "user_id", "username", "first_name", "last_name",
		"content", "html", "timestamp", "message_type", "reply_to", "media_kind", "media_path",
		"media_size", "media_mime"}).
		AddRow(1, nil, nil, nil, nil, "a", nil, testDate.Unix(), "text", nil, nil, nil, nil, nil).
		RowError(0, assert.AnError)
	mock.ExpectQuery(`SELECT message_id`).WithArgs(int64(5)).WillReturnRows(rows)
	_, err = s.AlreadyArchived(ctx, 5)
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_MigrateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS messages`).WillReturnError(assert.AnError)
	err = New(db, nil).Migrate(context.Background())
	assert.ErrorContains(t, err, "initialize archive schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}
