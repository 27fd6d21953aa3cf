package bus

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type requestIDContextKey struct{}

// EventKind classifies inbound events.
type EventKind string

const (
	// KindText is a plain text message from a user.
	KindText EventKind = "text"
	// KindCommand is a slash command such as /start.
	KindCommand EventKind = "command"
	// KindAction is an approver pressing an actionable choice.
	KindAction EventKind = "action"
)

// Sender identifies the user behind an inbound event.
type Sender struct {
	ID          int64
	DisplayName string
}

// InboundEvent received from a channel
type InboundEvent struct {
	Kind        EventKind
	Channel     string
	ChatID      int64
	Private     bool
	Sender      Sender
	Text        string
	Command     string
	Args        string
	ActionToken string
	CallbackID  string
	MessageID   int
	Timestamp   time.Time
	RequestID   string
}

// NewRequestID creates a request id for tracing.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID adds a request id to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext reads request id from context.
func RequestIDFromContext(ctx context.Context) string {
	v := ctx.Value(requestIDContextKey{})
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
