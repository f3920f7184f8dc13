package notify

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

// DefaultExchange receives archive events when none is configured.
const DefaultExchange = "nexarchive.events"

// Publisher is the part of *amqp.Channel the notifier uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPOptions configures the AMQP notifier.
type AMQPOptions struct {
	Exchange string
	// RoutingKey prefixes the event type: "<prefix>.<event>". Default "archive".
	RoutingKey string
	Logger     *logger.Logger
}

// AMQP publishes every event as JSON to a topic exchange.
type AMQP struct {
	publisher Publisher
	exchange  string
	prefix    string
	logger    *logger.Logger
	closer    func() error
}

// NewAMQP creates a notifier on an open channel.
func NewAMQP(p Publisher, opts AMQPOptions) *AMQP {
	if opts.Exchange == "" {
		opts.Exchange = DefaultExchange
	}
	if opts.RoutingKey == "" {
		opts.RoutingKey = "archive"
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &AMQP{
		publisher: p,
		exchange:  opts.Exchange,
		prefix:    opts.RoutingKey,
		logger:    opts.Logger.Component("amqp_notify"),
	}
}

// DialAMQP connects to url, declares the exchange and returns a notifier
// that owns the connection.
func DialAMQP(url string, opts AMQPOptions) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to RabbitMQ")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open a channel")
	}

	n := NewAMQP(ch, opts)
	if err := ch.ExchangeDeclare(n.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", n.exchange)
	}
	n.closer = func() error {
		ch.Close()
		return conn.Close()
	}
	return n, nil
}

func (*AMQP) Name() string { return "amqp" }

// RoutingKey returns the key evt is published with.
func (a *AMQP) RoutingKey(evt archive.Event) string {
	return a.prefix + "." + string(evt.Type)
}

func (a *AMQP) Send(ctx context.Context, evt archive.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	err = a.publisher.PublishWithContext(ctx, a.exchange, a.RoutingKey(evt), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.ID,
		Timestamp:    evt.Time,
		Type:         string(evt.Type),
		Body:         body,
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s", evt.Type)
	}
	return nil
}

// Close closes the connection opened by DialAMQP.
func (a *AMQP) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}
