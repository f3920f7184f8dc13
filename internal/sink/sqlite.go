// Package sink stores archived chat messages in a SQLite database.
package sink

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/aatumaykin/nexarchive/internal/history"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id   INTEGER NOT NULL,
	chat_id      INTEGER NOT NULL,
	user_id      INTEGER,
	username     TEXT,
	first_name   TEXT,
	last_name    TEXT,
	content      TEXT,
	html         TEXT,
	timestamp    INTEGER NOT NULL,
	date         TEXT,
	message_type TEXT DEFAULT 'text',
	reply_to     INTEGER,
	media_kind   TEXT,
	media_path   TEXT,
	media_size   INTEGER,
	media_mime   TEXT,
	has_media    BOOLEAN DEFAULT 0,
	archived_at  INTEGER DEFAULT (strftime('%s', 'now')),
	UNIQUE(chat_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_timestamp ON messages(chat_id, timestamp);

CREATE TABLE IF NOT EXISTS chats (
	chat_id       INTEGER PRIMARY KEY,
	title         TEXT,
	message_count INTEGER DEFAULT 0,
	last_updated  INTEGER
);

CREATE TRIGGER IF NOT EXISTS messages_count_ai AFTER INSERT ON messages BEGIN
	INSERT INTO chats (chat_id, message_count, last_updated)
	VALUES (NEW.chat_id, 1, strftime('%s', 'now'))
	ON CONFLICT(chat_id) DO UPDATE SET
		message_count = message_count + 1,
		last_updated = excluded.last_updated;
END;
`

const insertMessage = `INSERT INTO messages (
	message_id, chat_id, user_id, username, first_name, last_name, content, html,
	timestamp, date, message_type, reply_to, media_kind, media_path, media_size, media_mime, has_media
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(chat_id, message_id) DO NOTHING`

const selectArchived = `SELECT message_id, user_id, username, first_name, last_name, content, html,
	timestamp, message_type, reply_to, media_kind, media_path, media_size, media_mime
FROM messages WHERE chat_id = ? ORDER BY timestamp ASC, message_id ASC`

// ChatSummary describes one archived chat.
type ChatSummary struct {
	ChatID       int64     `json:"chat_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

// SQLite is the archive sink.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *logger.Logger
}

// Open opens (and if needed creates) the archive database at path.
func Open(path string, log *logger.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create archive directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open archive database")
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "apply %q", pragma)
		}
	}

	s := New(db, log)
	s.path = path
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database. The schema is not created.
func New(db *sql.DB, log *logger.Logger) *SQLite {
	if log == nil {
		log = logger.Nop()
	}
	return &SQLite{db: db, logger: log.Component("archive_sink")}
}

// Migrate creates missing tables.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "initialize archive schema")
	}
	return nil
}

// Path returns the database file, empty for wrapped databases.
func (s *SQLite) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ArchiveOne stores msg. A message already stored for the chat is left as is.
func (s *SQLite) ArchiveOne(ctx context.Context, msg history.Message) error {
	var kind, path, mime string
	var size int64
	if msg.HasMedia() {
		kind, path, mime, size = string(msg.Media.Kind), msg.Media.Path, msg.Media.Mime, msg.Media.Size
	}
	msgType := msg.Type
	if msgType == "" {
		msgType = "text"
	}

	res, err := s.db.ExecContext(ctx, insertMessage,
		msg.ID, msg.ChatID, msg.UserID, msg.Username, msg.FirstName, msg.LastName,
		msg.NormalizedText(), msg.HTML,
		msg.Date.Unix(), msg.Date.UTC().Format(time.RFC3339), msgType, msg.ReplyTo,
		kind, path, size, mime, msg.HasMedia())
	if err != nil {
		return errors.Wrapf(err, "archive message %d of chat %d", msg.ID, msg.ChatID)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("message already archived",
			logger.Field{Key: "chat_id", Value: msg.ChatID},
			logger.Field{Key: "message_id", Value: msg.ID})
	}
	return nil
}

// AlreadyArchived returns the stored messages of a chat, oldest first.
func (s *SQLite) AlreadyArchived(ctx context.Context, chatID int64) ([]history.Message, error) {
	rows, err := s.db.QueryContext(ctx, selectArchived, chatID)
	if err != nil {
		return nil, errors.Wrapf(err, "query archived messages of chat %d", chatID)
	}
	defer rows.Close()

	var msgs []history.Message
	for rows.Next() {
		var (
			m                      history.Message
			ts                     int64
			username, first, last  sql.NullString
			content, html, msgType sql.NullString
			kind, path, mime       sql.NullString
			userID, replyTo, size  sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &userID, &username, &first, &last, &content, &html,
			&ts, &msgType, &replyTo, &kind, &path, &size, &mime); err != nil {
			return nil, errors.Wrap(err, "scan archived message")
		}
		m.ChatID = chatID
		m.UserID = userID.Int64
		m.Username = username.String
		m.FirstName = first.String
		m.LastName = last.String
		m.Text = content.String
		m.HTML = html.String
		m.Date = time.Unix(ts, 0).UTC()
		m.Type = msgType.String
		m.ReplyTo = replyTo.Int64
		if kind.String != "" {
			m.Media = &history.Media{
				Kind: history.MediaKind(kind.String),
				Path: path.String,
				Size: size.Int64,
				Mime: mime.String,
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read archived messages")
	}
	return msgs, nil
}

// RememberChat stores the chat title. The message count is kept by the schema.
func (s *SQLite) RememberChat(ctx context.Context, chatID int64, title string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO chats (chat_id, title, last_updated)
		VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(chat_id) DO UPDATE SET title = excluded.title`, chatID, title)
	if err != nil {
		return errors.Wrapf(err, "store title of chat %d", chatID)
	}
	return nil
}

// Chats lists the archived chats, most recently updated first.
func (s *SQLite) Chats(ctx context.Context) ([]ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, COALESCE(title, ''), COALESCE(message_count, 0),
		COALESCE(last_updated, 0) FROM chats ORDER BY last_updated DESC, chat_id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "query archived chats")
	}
	defer rows.Close()

	var out []ChatSummary
	for rows.Next() {
		var c ChatSummary
		var updated int64
		if err := rows.Scan(&c.ChatID, &c.Title, &c.MessageCount, &updated); err != nil {
			return nil, errors.Wrap(err, "scan archived chat")
		}
		if updated > 0 {
			c.LastUpdated = time.Unix(updated, 0).UTC()
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read archived chats")
	}
	return out, nil
}

// Count returns the number of archived messages of a chat.
func (s *SQLite) Count(ctx context.Context, chatID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count archived messages of chat %d", chatID)
	}
	return n, nil
}
