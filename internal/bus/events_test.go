package bus

import (
	"context"
	"testing"
	"time"
)

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Fatalf("expected req-123, got %q", got)
	}

	if got := RequestIDFromContext(WithRequestID(context.Background(), "  ")); got != "" {
		t.Fatalf("expected blank request id to be ignored, got %q", got)
	}
}

func TestMessageBus_PublishInboundStampsEvent(t *testing.T) {
	msgBus := NewMessageBus(1)
	msgBus.PublishInbound(&InboundEvent{Kind: KindText, Text: "AML"})

	select {
	case evt := <-msgBus.Inbound():
		if evt.RequestID == "" {
			t.Fatal("expected request id to be assigned")
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be assigned")
		}
	default:
		t.Fatal("expected inbound event")
	}
}

func TestMessageBus_PublishInboundContextCancelled(t *testing.T) {
	msgBus := NewMessageBus(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := msgBus.PublishInboundContext(ctx, &InboundEvent{Kind: KindText}); err == nil {
		t.Fatal("expected publish to fail when nobody reads and ctx expires")
	}
}
