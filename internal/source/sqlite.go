package source

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/aatumaykin/nexarchive/internal/history"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS history_chats (
	chat_id INTEGER PRIMARY KEY,
	title   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS history (
	chat_id      INTEGER NOT NULL,
	message_id   INTEGER NOT NULL,
	user_id      INTEGER NOT NULL DEFAULT 0,
	username     TEXT NOT NULL DEFAULT '',
	first_name   TEXT NOT NULL DEFAULT '',
	last_name    TEXT NOT NULL DEFAULT '',
	text         TEXT NOT NULL DEFAULT '',
	html         TEXT NOT NULL DEFAULT '',
	date         INTEGER NOT NULL,
	message_type TEXT NOT NULL DEFAULT 'text',
	reply_to     INTEGER NOT NULL DEFAULT 0,
	media_kind   TEXT NOT NULL DEFAULT '',
	media_path   TEXT NOT NULL DEFAULT '',
	media_size   INTEGER NOT NULL DEFAULT 0,
	media_mime   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (chat_id, message_id)
);
`

const historyColumns = `message_id, user_id, username, first_name, last_name, text, html,
	date, message_type, reply_to, media_kind, media_path, media_size, media_mime`

// SQLite reads a locally cached chat history from a SQLite database.
type SQLite struct {
	db     *sql.DB
	logger *logger.Logger
}

// OpenSQLite opens (and if needed creates) the history database at path.
func OpenSQLite(path string, log *logger.Logger) (*SQLite, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create history directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open history database")
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable WAL mode")
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set busy timeout")
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize history schema")
	}

	return &SQLite{db: db, logger: log.Component("sqlite_source")}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ChatInfo(ctx context.Context, chatID int64) (history.ChatInfo, error) {
	info := history.ChatInfo{ID: chatID}

	err := s.db.QueryRowContext(ctx,
		`SELECT title FROM history_chats WHERE chat_id = ?`, chatID).Scan(&info.Title)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return info, errors.Wrap(err, "query chat title")
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history WHERE chat_id = ?`, chatID).Scan(&info.MessageCount); err != nil {
		return info, errors.Wrap(err, "count chat messages")
	}
	if info.MessageCount == 0 && info.Title == "" {
		return info, errors.Newf("chat %d not found in local history", chatID)
	}
	return info, nil
}

func (s *SQLite) NextUnprocessedPage(ctx context.Context, chatID, cursor int64, limit int) ([]history.Message, int64, error) {
	if cursor == history.CursorExhausted {
		return nil, history.CursorExhausted, nil
	}
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT ` + historyColumns + ` FROM history WHERE chat_id = ?`
	args := []any{chatID}
	if cursor > 0 {
		q += ` AND message_id < ?`
		args = append(args, cursor)
	}
	// one extra row tells whether anything older remains
	q += ` ORDER BY message_id DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if isBusy(err) {
			return nil, cursor, &FloodWaitError{Seconds: 1}
		}
		return nil, cursor, errors.Wrap(err, "query history page")
	}
	defer rows.Close()

	msgs := make([]history.Message, 0, limit+1)
	for rows.Next() {
		m, err := scanHistory(rows, chatID)
		if err != nil {
			return nil, cursor, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, cursor, errors.Wrap(err, "read history page")
	}

	if len(msgs) <= limit {
		return msgs, history.CursorExhausted, nil
	}
	msgs = msgs[:limit]
	return msgs, msgs[len(msgs)-1].ID, nil
}

// Add stores messages of a chat, replacing rows with the same ID.
func (s *SQLite) Add(ctx context.Context, chatID int64, title string, msgs []history.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin history import")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history_chats (chat_id, title) VALUES (?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET title = excluded.title`, chatID, title); err != nil {
		return errors.Wrap(err, "store chat title")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO history (chat_id, `+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare history insert")
	}
	defer stmt.Close()

	for _, m := range msgs {
		var kind, path, mime string
		var size int64
		if m.Media != nil {
			kind, path, mime, size = string(m.Media.Kind), m.Media.Path, m.Media.Mime, m.Media.Size
		}
		if _, err := stmt.ExecContext(ctx, chatID, m.ID, m.UserID, m.Username, m.FirstName, m.LastName,
			m.Text, m.HTML, m.Date.Unix(), m.Type, m.ReplyTo, kind, path, size, mime); err != nil {
			return errors.Wrapf(err, "store message %d", m.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit history import")
	}
	s.logger.Debug("history imported",
		logger.Field{Key: "chat_id", Value: chatID},
		logger.Field{Key: "messages", Value: len(msgs)})
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(r rowScanner, chatID int64) (history.Message, error) {
	var (
		m                history.Message
		date             int64
		kind, path, mime string
		size             int64
	)
	if err := r.Scan(&m.ID, &m.UserID, &m.Username, &m.FirstName, &m.LastName, &m.Text, &m.HTML,
		&date, &m.Type, &m.ReplyTo, &kind, &path, &size, &mime); err != nil {
		return m, errors.Wrap(err, "scan history row")
	}
	m.ChatID = chatID
	m.Date = time.Unix(date, 0).UTC()
	if kind != "" {
		m.Media = &history.Media{Kind: history.MediaKind(kind), Path: path, Size: size, Mime: mime}
	}
	return m, nil
}

// isBusy reports SQLITE_BUSY / SQLITE_LOCKED conditions, which are treated
// as a short flood wait.
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
