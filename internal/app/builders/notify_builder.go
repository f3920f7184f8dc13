package builders

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/config"
	"github.com/aatumaykin/nexarchive/internal/logger"
	"github.com/aatumaykin/nexarchive/internal/notify"
	"github.com/aatumaykin/nexarchive/internal/retry"
)

type NotifyBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewNotifyBuilder(cfg *config.Config, log *logger.Logger) *NotifyBuilder {
	return &NotifyBuilder{config: cfg, logger: log}
}

// Build creates the event hub with the log sender and whatever the config
// enables. The returned closers release broker connections.
func (b *NotifyBuilder) Build() (*notify.Hub, []func() error, error) {
	senders := []notify.Sender{notify.NewLog(b.logger)}
	var closers []func() error

	tg := b.config.Notify.Telegram
	if tg.Enabled {
		events := make([]archive.EventType, 0, len(tg.Events))
		for _, e := range tg.Events {
			events = append(events, archive.EventType(e))
		}
		sender, err := notify.DialTelegram(tg.Token, notify.TelegramOptions{
			ChatID:      tg.ChatID,
			MinInterval: time.Duration(tg.MinIntervalSeconds) * time.Second,
			Events:      events,
			Logger:      b.logger,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create telegram notifier")
		}
		senders = append(senders, sender)
		b.logger.Info("telegram notifications enabled", logger.Field{Key: "chat_id", Value: tg.ChatID})
	}

	mq := b.config.Notify.AMQP
	if mq.Enabled {
		sender, err := notify.DialAMQP(mq.URL, notify.AMQPOptions{
			Exchange:   mq.Exchange,
			RoutingKey: mq.RoutingKey,
			Logger:     b.logger,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to connect amqp notifier")
		}
		senders = append(senders, sender)
		closers = append(closers, sender.Close)
		b.logger.Info("amqp notifications enabled", logger.Field{Key: "exchange", Value: mq.Exchange})
	}

	hub := notify.NewHub(notify.HubOptions{
		Buffer: b.config.Notify.BufferSize,
		Retry:  retry.Config{MaxAttempts: 3, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second},
		Logger: b.logger,
	}, senders...)
	return hub, closers, nil
}
