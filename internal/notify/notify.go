// Package notify delivers scheduler events to operators. The Hub accepts
// events without blocking and fans them out to senders on its own goroutine.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/logger"
	"github.com/aatumaykin/nexarchive/internal/retry"
)

const defaultBuffer = 256

// Sender delivers one event to one destination.
type Sender interface {
	Name() string
	Send(ctx context.Context, evt archive.Event) error
}

// HubOptions configures a Hub.
type HubOptions struct {
	Buffer      int
	SendTimeout time.Duration
	Retry       retry.Config
	Logger      *logger.Logger
}

// Hub implements archive.Notifier.
type Hub struct {
	senders     []Sender
	events      chan archive.Event
	sendTimeout time.Duration
	retry       retry.Config
	logger      *logger.Logger

	mu      sync.Mutex
	closed  bool
	dropped int

	wg sync.WaitGroup
}

// NewHub creates a hub over senders. Call Start before events are expected.
func NewHub(opts HubOptions, senders ...Sender) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	log := opts.Logger.Component("notify")
	opts.Retry.Logger = log
	return &Hub{
		senders:     senders,
		events:      make(chan archive.Event, opts.Buffer),
		sendTimeout: opts.SendTimeout,
		retry:       opts.Retry,
		logger:      log,
	}
}

// Notify queues evt. It never blocks: when the buffer is full the event is dropped.
func (h *Hub) Notify(evt archive.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped++
		h.logger.Warn("notification dropped, buffer full",
			logger.Field{Key: "event", Value: evt.Type},
			logger.Field{Key: "dropped", Value: h.dropped})
	}
}

// Dropped returns how many events were dropped so far.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Start runs the delivery loop until Close.
func (h *Hub) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for evt := range h.events {
			h.deliver(ctx, evt)
		}
	}()
}

// Close stops accepting events and waits until queued ones are delivered.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.events)
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) deliver(ctx context.Context, evt archive.Event) {
	for _, s := range h.senders {
		cfg := h.retry
		cfg.Name = s.Name()
		err := retry.Run(ctx, cfg, func(ctx context.Context) error {
			sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
			defer cancel()
			return s.Send(sendCtx, evt)
		})
		if err != nil {
			h.logger.Error("failed to deliver notification", err,
				logger.Field{Key: "sender", Value: s.Name()},
				logger.Field{Key: "event", Value: evt.Type})
		}
	}
}
