// Package source provides message sources for the archive scheduler: an
// in-memory history, a reader for Telegram Desktop HTML exports and a
// SQLite-backed local history.
package source

import (
	"fmt"
	"sort"
	"time"

	"github.com/aatumaykin/nexarchive/internal/history"
)

// FloodWaitError reports that the source throttled the caller.
type FloodWaitError struct {
	Seconds int
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry after %ds", e.Seconds)
}

// RetryAfter returns how long to wait before the next request.
func (e *FloodWaitError) RetryAfter() time.Duration {
	return time.Duration(e.Seconds) * time.Second
}

// page selects up to limit messages older than cursor from msgs, which must be
// sorted newest first. It returns the next cursor following the scheduler's
// convention: the last returned ID, or history.CursorExhausted when nothing
// older remains.
func page(msgs []history.Message, cursor int64, limit int) ([]history.Message, int64) {
	start := 0
	if cursor > 0 {
		start = sort.Search(len(msgs), func(i int) bool { return msgs[i].ID < cursor })
	}
	if cursor == history.CursorExhausted || start >= len(msgs) {
		return nil, history.CursorExhausted
	}
	if limit <= 0 {
		limit = len(msgs) - start
	}

	end := min(start+limit, len(msgs))
	out := make([]history.Message, end-start)
	copy(out, msgs[start:end])

	if end >= len(msgs) {
		return out, history.CursorExhausted
	}
	return out, out[len(out)-1].ID
}

func sortNewestFirst(msgs []history.Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ID > msgs[j].ID })
}
