package bus

import (
	"context"
	"strings"
	"time"
)

// MessageBus carries inbound events from channels to the router.
type MessageBus struct {
	inbound chan *InboundEvent
}

// NewMessageBus creates a bus with the given inbound buffer size.
func NewMessageBus(size int) *MessageBus {
	if size < 0 {
		size = 0
	}
	return &MessageBus{inbound: make(chan *InboundEvent, size)}
}

// PublishInbound stamps missing request ids and timestamps, then enqueues the event.
// It blocks while the buffer is full.
func (b *MessageBus) PublishInbound(evt *InboundEvent) {
	if evt == nil {
		return
	}
	if strings.TrimSpace(evt.RequestID) == "" {
		evt.RequestID = NewRequestID()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.inbound <- evt
}

// PublishInboundContext is PublishInbound that gives up when ctx is done.
func (b *MessageBus) PublishInboundContext(ctx context.Context, evt *InboundEvent) error {
	if evt == nil {
		return nil
	}
	if strings.TrimSpace(evt.RequestID) == "" {
		evt.RequestID = NewRequestID()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case b.inbound <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbound returns the receive side of the inbound queue.
func (b *MessageBus) Inbound() <-chan *InboundEvent {
	return b.inbound
}
