package notify

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mymmrac/telego"
	"golang.org/x/time/rate"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

// DefaultTelegramEvents are the events worth a message to the operator.
var DefaultTelegramEvents = []archive.EventType{
	archive.EventJobCompleted,
	archive.EventJobFailed,
	archive.EventRateLimited,
	archive.EventExportCompleted,
	archive.EventExportFailed,
}

// Bot is the part of the telego API the notifier uses.
type Bot interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// TelegramOptions configures the Telegram notifier.
type TelegramOptions struct {
	ChatID int64
	// MinInterval is the minimum gap between two messages.
	MinInterval time.Duration
	Events      []archive.EventType
	Logger      *logger.Logger
}

// Telegram sends events as HTML messages to one operator chat.
type Telegram struct {
	bot     Bot
	chatID  int64
	events  map[archive.EventType]bool
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewTelegram creates a notifier using bot.
func NewTelegram(bot Bot, opts TelegramOptions) *Telegram {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if len(opts.Events) == 0 {
		opts.Events = DefaultTelegramEvents
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	events := make(map[archive.EventType]bool, len(opts.Events))
	for _, e := range opts.Events {
		events[e] = true
	}
	return &Telegram{
		bot:     bot,
		chatID:  opts.ChatID,
		events:  events,
		limiter: rate.NewLimiter(limit, 1),
		logger:  opts.Logger.Component("telegram_notify"),
	}
}

// DialTelegram creates a telego bot for token.
func DialTelegram(token string, opts TelegramOptions) (*Telegram, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}
	return NewTelegram(bot, opts), nil
}

func (*Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, evt archive.Event) error {
	if !t.events[evt.Type] {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := t.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: t.chatID},
		Text:      FormatTelegram(evt),
		ParseMode: telego.ModeHTML,
	})
	if err != nil {
		return errors.Wrapf(err, "send %s notification", evt.Type)
	}
	t.logger.Debug("notification sent",
		logger.Field{Key: "event", Value: evt.Type},
		logger.Field{Key: "chat_id", Value: t.chatID})
	return nil
}

var eventTitles = map[archive.EventType]string{
	archive.EventJobCompleted:    "✅ Archive completed",
	archive.EventJobFailed:       "❌ Archive failed",
	archive.EventRateLimited:     "⏳ Rate limited",
	archive.EventExportCompleted: "📄 Export written",
	archive.EventExportFailed:    "⚠️ Export failed",
	archive.EventQuotaWait:       "⏸ Quota reached",
	archive.EventStateChanged:    "🔄 State changed",
	archive.EventQueueChanged:    "📋 Queue changed",
	archive.EventBatchCompleted:  "📦 Batch completed",
	archive.EventWarning:         "⚠️ Warning",
}

// FormatTelegram renders evt as Telegram HTML.
func FormatTelegram(evt archive.Event) string {
	title, ok := eventTitles[evt.Type]
	if !ok {
		title = string(evt.Type)
	}

	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(title) + "</b>\n")
	if evt.ChatID != 0 {
		fmt.Fprintf(&b, "Chat: <code>%d</code>\n", evt.ChatID)
	}
	if evt.State != "" {
		b.WriteString("State: " + html.EscapeString(string(evt.State)) + "\n")
	}
	if evt.Message != "" {
		b.WriteString(html.EscapeString(evt.Message) + "\n")
	}
	if evt.Error != "" {
		b.WriteString("Error: <i>" + html.EscapeString(evt.Error) + "</i>\n")
	}

	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", html.EscapeString(k), html.EscapeString(fmt.Sprint(evt.Fields[k])))
	}
	return strings.TrimRight(b.String(), "\n")
}
