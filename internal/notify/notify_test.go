package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/retry"
)

type recordingSender struct {
	mu     sync.Mutex
	events []archive.Event
	fail   int
}

func (*recordingSender) Name() string { return "recording" }

func (r *recordingSender) Send(_ context.Context, evt archive.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("connection reset")
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingSender) types() []archive.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]archive.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestHub_DeliversInOrder(t *testing.T) {
	a, b := &recordingSender{}, &recordingSender{}
	hub := NewHub(HubOptions{Retry: fastRetry()}, a, b)
	hub.Start(context.Background())

	hub.Notify(archive.Event{Type: archive.EventStateChanged})
	hub.Notify(archive.Event{Type: archive.EventBatchCompleted})
	hub.Notify(archive.Event{Type: archive.EventJobCompleted})
	hub.Close()

	want := []archive.EventType{archive.EventStateChanged, archive.EventBatchCompleted, archive.EventJobCompleted}
	assert.Equal(t, want, a.types())
	assert.Equal(t, want, b.types())

	// closed hub ignores events
	hub.Notify(archive.Event{Type: archive.EventWarning})
	hub.Close()
	assert.Len(t, a.types(), 3)
}

func TestHub_RetriesFailedSends(t *testing.T) {
	s := &recordingSender{fail: 2}
	hub := NewHub(HubOptions{Retry: fastRetry()}, s)
	hub.Start(context.Background())
	hub.Notify(archive.Event{Type: archive.EventJobFailed})
	hub.Close()

	assert.Equal(t, []archive.EventType{archive.EventJobFailed}, s.types())
}

func TestHub_DropsWhenFull(t *testing.T) {
	s := &recordingSender{}
	hub := NewHub(HubOptions{Buffer: 2}, s)

	for i := 0; i < 5; i++ {
		hub.Notify(archive.Event{Type: archive.EventBatchCompleted})
	}
	assert.Equal(t, 3, hub.Dropped())

	hub.Start(context.Background())
	hub.Close()
	assert.Len(t, s.types(), 2)
}

func TestHub_ImplementsNotifier(t *testing.T) {
	var _ archive.Notifier = NewHub(HubOptions{})
}

func TestLog_Send(t *testing.T) {
	l := NewLog(nil)
	assert.Equal(t, "log", l.Name())
	for _, typ := range []archive.EventType{archive.EventJobFailed, archive.EventBatchCompleted, archive.EventJobCompleted} {
		assert.NoError(t, l.Send(context.Background(), archive.Event{Type: typ, Fields: map[string]any{"archived": 3}}))
	}
}

type fakeBot struct {
	mu   sync.Mutex
	sent []*telego.SendMessageParams
	err  error
}

func (b *fakeBot) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.sent = append(b.sent, params)
	return &telego.Message{MessageID: len(b.sent)}, nil
}

func TestTelegram_SendsSelectedEvents(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegram(bot, TelegramOptions{ChatID: 777})
	ctx := context.Background()

	require.NoError(t, tg.Send(ctx, archive.Event{Type: archive.EventBatchCompleted}))
	assert.Empty(t, bot.sent)

	evt := archive.Event{
		Type:    archive.EventJobFailed,
		ChatID:  4242,
		State:   archive.StateFailed,
		Message: "archive failed",
		Error:   "source <down>",
		Fields:  map[string]any{"retry": 3, "archived_messages": 10},
	}
	require.NoError(t, tg.Send(ctx, evt))
	require.Len(t, bot.sent, 1)

	p := bot.sent[0]
	assert.Equal(t, int64(777), p.ChatID.ID)
	assert.Equal(t, telego.ModeHTML, p.ParseMode)
	assert.Equal(t, "<b>❌ Archive failed</b>\n"+
		"Chat: <code>4242</code>\n"+
		"State: failed\n"+
		"archive failed\n"+
		"Error: <i>source &lt;down&gt;</i>\n"+
		"archived_messages: 10\n"+
		"retry: 3", p.Text)
}

func TestTelegram_CustomEventsAndErrors(t *testing.T) {
	bot := &fakeBot{err: errors.New("api: 400 Bad Request: chat not found")}
	tg := NewTelegram(bot, TelegramOptions{ChatID: 1, Events: []archive.EventType{archive.EventQueueChanged}})

	err := tg.Send(context.Background(), archive.Event{Type: archive.EventQueueChanged})
	assert.ErrorContains(t, err, "send queue_changed notification")
	assert.NoError(t, tg.Send(context.Background(), archive.Event{Type: archive.EventJobCompleted}))
}

func TestTelegram_Throttles(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegram(bot, TelegramOptions{ChatID: 1, MinInterval: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, tg.Send(ctx, archive.Event{Type: archive.EventJobCompleted}))
	assert.Error(t, tg.Send(ctx, archive.Event{Type: archive.EventJobCompleted}))
	assert.Len(t, bot.sent, 1)
}

type fakePublisher struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.exchange, p.key, p.msg = exchange, key, msg
	return p.err
}

func TestAMQP_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	n := NewAMQP(pub, AMQPOptions{})
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	evt := archive.Event{ID: "e-1", Type: archive.EventJobCompleted, ChatID: 5, State: archive.StateCompleted, Time: at}
	require.NoError(t, n.Send(context.Background(), evt))

	assert.Equal(t, DefaultExchange, pub.exchange)
	assert.Equal(t, "archive.job_completed", pub.key)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)
	assert.Equal(t, "e-1", pub.msg.MessageId)

	var got archive.Event
	require.NoError(t, json.Unmarshal(pub.msg.Body, &got))
	assert.Equal(t, evt, got)
	assert.NoError(t, n.Close())
}

func TestAMQP_PublishError(t *testing.T) {
	n := NewAMQP(&fakePublisher{err: amqp.ErrClosed}, AMQPOptions{Exchange: "x", RoutingKey: "chats"})
	err := n.Send(context.Background(), archive.Event{Type: archive.EventWarning})
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.Equal(t, "chats.warning", n.RoutingKey(archive.Event{Type: archive.EventWarning}))
}
