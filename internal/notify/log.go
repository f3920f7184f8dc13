package notify

import (
	"context"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

// Log writes events to the structured log.
type Log struct {
	logger *logger.Logger
}

// NewLog creates a log sender.
func NewLog(log *logger.Logger) *Log {
	if log == nil {
		log = logger.Nop()
	}
	return &Log{logger: log.Component("events")}
}

func (*Log) Name() string { return "log" }

func (l *Log) Send(ctx context.Context, evt archive.Event) error {
	fields := []logger.Field{
		{Key: "event", Value: evt.Type},
		{Key: "state", Value: evt.State},
		{Key: "job_id", Value: evt.JobID},
		{Key: "chat_id", Value: evt.ChatID},
	}
	for k, v := range evt.Fields {
		fields = append(fields, logger.Field{Key: k, Value: v})
	}

	switch evt.Type {
	case archive.EventJobFailed, archive.EventExportFailed:
		fields = append(fields, logger.Field{Key: "kind", Value: evt.Kind})
		l.logger.WarnCtx(ctx, evt.Message+": "+evt.Error, fields...)
	case archive.EventBatchCompleted:
		l.logger.DebugCtx(ctx, evt.Message, fields...)
	default:
		l.logger.InfoCtx(ctx, evt.Message, fields...)
	}
	return nil
}
