package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/history"
)

// Memory is an in-memory source. It is used by tests and by the demo mode
// of the serve command.
type Memory struct {
	mu     sync.Mutex
	chats  map[int64][]history.Message
	titles map[int64]string
	errs   []error
}

// NewMemory creates an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{
		chats:  make(map[int64][]history.Message),
		titles: make(map[int64]string),
	}
}

// AddChat registers a chat and its messages.
func (m *Memory) AddChat(chatID int64, title string, msgs []history.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]history.Message, len(msgs))
	copy(cp, msgs)
	for i := range cp {
		cp[i].ChatID = chatID
	}
	sortNewestFirst(cp)
	m.chats[chatID] = cp
	m.titles[chatID] = title
}

// FailNext makes the next page requests return the given errors in order.
func (m *Memory) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

func (m *Memory) ChatInfo(_ context.Context, chatID int64) (history.ChatInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs, ok := m.chats[chatID]
	if !ok {
		return history.ChatInfo{ID: chatID}, errors.Newf("chat %d not found", chatID)
	}
	return history.ChatInfo{ID: chatID, Title: m.titles[chatID], MessageCount: len(msgs)}, nil
}

func (m *Memory) NextUnprocessedPage(ctx context.Context, chatID, cursor int64, limit int) ([]history.Message, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, cursor, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, cursor, err
		}
	}

	msgs, ok := m.chats[chatID]
	if !ok {
		return nil, cursor, errors.Newf("chat %d not found", chatID)
	}
	out, next := page(msgs, cursor, limit)
	return out, next, nil
}

// Generate builds n text messages with IDs 1..n, one minute apart, ending at end.
func Generate(chatID int64, n int, end time.Time) []history.Message {
	msgs := make([]history.Message, 0, n)
	for i := 1; i <= n; i++ {
		msgs = append(msgs, history.Message{
			ID:        int64(i),
			ChatID:    chatID,
			UserID:    int64(100 + i%3),
			FirstName: []string{"Ann", "Bob", "Eve"}[i%3],
			Text:      fmt.Sprintf("message number %d", i),
			Date:      end.Add(-time.Duration(n-i) * time.Minute),
			Type:      "text",
		})
	}
	return msgs
}
