package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MEKXH/breakbot/internal/bus"
)

// ErrDeliveryFailed matches every error returned by a Notifier.
var ErrDeliveryFailed = errors.New("delivery failed")

// DeliveryError describes a failed outbound call.
type DeliveryError struct {
	Op     string
	Target string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s to %s: %v", e.Op, e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() []error { return []error{ErrDeliveryFailed, e.Err} }

// NewDeliveryError wraps err unless it already is a DeliveryError.
func NewDeliveryError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return err
	}
	return &DeliveryError{Op: op, Target: target, Err: err}
}

// Choice is an actionable button whose press comes back carrying Token.
type Choice struct {
	Label string
	Token string
}

// Options controls how a message is rendered by the transport.
// A zero Options is a plain informational message.
type Options struct {
	// Choices are rows of actionable controls attached to the message.
	Choices [][]Choice
	// Replies are rows of suggested replies shown in place of the keyboard.
	Replies [][]string
	// RemoveKeyboard clears any previously suggested replies.
	RemoveKeyboard bool
}

// Message is outbound text plus rendering options.
type Message struct {
	Text    string
	Options Options
}

// MessageRef identifies a sent message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// IsZero reports whether the ref points at nothing.
func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

// ActionRef identifies an approver's button press awaiting acknowledgement.
type ActionRef struct {
	CallbackID string
	ActorID    int64
	Message    MessageRef
}

// Notifier is the outbound boundary used by intake and approval.
// Every failure is returned to the caller as a DeliveryError.
type Notifier interface {
	NotifyRequester(ctx context.Context, requesterID int64, msg Message) (MessageRef, error)
	NotifyApproverChannel(ctx context.Context, msg Message) (MessageRef, error)
	EditApproverChannelMessage(ctx context.Context, ref MessageRef, msg Message) error
	AcknowledgeAction(ctx context.Context, ref ActionRef, text string, alert bool) error
	Reply(ctx context.Context, chatID int64, msg Message) (MessageRef, error)
}

// Channel interface for chat platforms
type Channel interface {
	Notifier
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// BaseChannel provides common functionality
type BaseChannel struct {
	Bus *bus.MessageBus
}

// PublishInbound sends an event to the bus
func (b *BaseChannel) PublishInbound(ctx context.Context, evt *bus.InboundEvent) error {
	return b.Bus.PublishInboundContext(ctx, evt)
}
