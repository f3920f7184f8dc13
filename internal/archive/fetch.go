package archive

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/history"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

// Cursor sentinels, see history.CursorStart and history.CursorExhausted.
const (
	CursorStart     = history.CursorStart
	CursorExhausted = history.CursorExhausted
)

// Source supplies a chat's history, newest first.
type Source interface {
	// ChatInfo returns what is known locally about the chat.
	ChatInfo(ctx context.Context, chatID int64) (history.ChatInfo, error)
	// NextUnprocessedPage returns up to limit messages strictly older than
	// cursor (or the newest ones for CursorStart), newest first, plus the next
	// cursor. The next cursor is CursorExhausted when no older message remains.
	NextUnprocessedPage(ctx context.Context, chatID, cursor int64, limit int) ([]history.Message, int64, error)
}

// Sink stores archived messages.
type Sink interface {
	// ArchiveOne stores msg. Storing the same message twice keeps one copy.
	ArchiveOne(ctx context.Context, msg history.Message) error
	// AlreadyArchived returns the stored messages of a chat, oldest first.
	AlreadyArchived(ctx context.Context, chatID int64) ([]history.Message, error)
}

// FetchRequest describes one batch.
type FetchRequest struct {
	ChatID          int64
	Cursor          int64
	Limit           int
	SimulateReading bool
	RandomizeOrder  bool
	Seed            uint64
}

// FetchResult is the outcome of one batch.
type FetchResult struct {
	Cursor     int64
	Archived   int
	Failed     int
	Bytes      int64
	MediaBytes int64
	// OK is true when at least one message was archived.
	OK bool
	// Interrupted is set when the batch stopped early; Cursor is then unchanged.
	Interrupted bool
	// RetryAfter is the flood-wait delay reported by the source.
	RetryAfter time.Duration
	Err        error
	Duration   time.Duration
}

// Exhausted reports whether the chat history has been fully walked.
func (r FetchResult) Exhausted() bool {
	return r.Cursor == CursorExhausted
}

// Fetcher runs batches against a source and a sink. It is safe to use from a
// worker goroutine; it never touches scheduler state.
type Fetcher struct {
	source Source
	sink   Sink
	sleep  func(ctx context.Context, d time.Duration) error
	logger *logger.Logger
}

// NewFetcher creates a Fetcher. sleep paces reading delays; nil uses Sleep.
func NewFetcher(source Source, sink Sink, sleep func(context.Context, time.Duration) error, log *logger.Logger) *Fetcher {
	if sleep == nil {
		sleep = Sleep
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Fetcher{source: source, sink: sink, sleep: sleep, logger: log}
}

// Fetch archives one page of messages.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (res FetchResult) {
	started := time.Now()
	res.Cursor = req.Cursor
	defer func() { res.Duration = time.Since(started) }()

	if f.source == nil || f.sink == nil {
		res.Err = ErrSourceUnavailable
		return res
	}

	page, next, err := f.source.NextUnprocessedPage(ctx, req.ChatID, req.Cursor, req.Limit)
	if err != nil {
		if wait, ok := RetryAfter(err); ok {
			res.RetryAfter = wait
			res.Err = errors.Mark(errors.Wrap(err, "source throttled"), ErrRateLimited)
			return res
		}
		res.Err = errors.Mark(errors.Wrap(err, "read history page"), ErrFetchFailure)
		return res
	}

	if len(page) == 0 {
		res.Cursor = CursorExhausted
		return res
	}
	if req.Limit > 0 && len(page) > req.Limit {
		page = page[:req.Limit]
		next = page[len(page)-1].ID
	}

	order := make([]int, len(page))
	for i := range order {
		order[i] = i
	}
	if req.RandomizeOrder {
		r := rand.New(rand.NewPCG(req.Seed, req.Seed>>1|1))
		r.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	processed := 0
	for i, idx := range order {
		if ctx.Err() != nil {
			break
		}
		msg := page[idx]

		if err := f.sink.ArchiveOne(ctx, msg); err != nil {
			res.Failed++
			f.logger.WarnCtx(ctx, "failed to archive message",
				logger.Field{Key: "chat_id", Value: msg.ChatID},
				logger.Field{Key: "message_id", Value: msg.ID},
				logger.Field{Key: "error", Value: err.Error()})
		} else {
			res.Archived++
			res.Bytes += msg.TextBytes()
			res.MediaBytes += msg.MediaBytes()
		}
		processed++

		if req.SimulateReading && i < len(order)-1 {
			if err := f.sleep(ctx, ReadingDelay(msg.TextLength())); err != nil {
				break
			}
		}
	}

	res.OK = res.Archived > 0
	switch {
	case processed < len(page):
		res.Interrupted = true
		res.Err = ctx.Err()
	case !res.OK:
		// cursor stays put so the retry reads the same page
		res.Err = errors.Mark(errors.Newf("all %d messages of the batch failed to archive", res.Failed), ErrFetchFailure)
	default:
		res.Cursor = next
	}
	return res
}
