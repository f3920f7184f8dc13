package sink

import (
	"context"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/history"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

// titleRecorder stores chat titles in the archive as the scheduler looks
// them up, so archive stats show names rather than bare IDs.
type titleRecorder struct {
	archive.Source
	sink   *SQLite
	logger *logger.Logger
}

// WithTitles wraps src so every successful ChatInfo lookup is remembered in s.
func WithTitles(src archive.Source, s *SQLite) archive.Source {
	return &titleRecorder{Source: src, sink: s, logger: s.logger}
}

func (r *titleRecorder) ChatInfo(ctx context.Context, chatID int64) (history.ChatInfo, error) {
	info, err := r.Source.ChatInfo(ctx, chatID)
	if err != nil || info.Title == "" {
		return info, err
	}
	if err := r.sink.RememberChat(ctx, chatID, info.Title); err != nil {
		r.logger.Warn("failed to remember chat title",
			logger.Field{Key: "chat_id", Value: chatID},
			logger.Field{Key: "error", Value: err.Error()})
	}
	return info, nil
}
