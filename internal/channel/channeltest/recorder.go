// Package channeltest provides an in-memory Notifier for tests.
package channeltest

import (
	"context"
	"errors"
	"sync"

	"github.com/MEKXH/breakbot/internal/channel"
)

// Kinds of recorded calls.
const (
	KindRequester = "requester"
	KindApprovers = "approvers"
	KindEdit      = "edit"
	KindAck       = "ack"
	KindReply     = "reply"
)

// Call is one recorded Notifier invocation.
type Call struct {
	Kind    string
	ChatID  int64
	Ref     channel.MessageRef
	Action  channel.ActionRef
	Message channel.Message
	Alert   bool
}

// Recorder records every call and can be told to fail by kind.
type Recorder struct {
	// ApproverChatID is the chat id reported for approver channel messages.
	ApproverChatID int64

	mu     sync.Mutex
	calls  []Call
	nextID int
	fail   map[string]error
}

var _ channel.Notifier = (*Recorder)(nil)

// NewRecorder creates a recorder whose approver channel is chat -100.
func NewRecorder() *Recorder {
	return &Recorder{ApproverChatID: -100, fail: make(map[string]error)}
}

// FailOn makes every call of kind return err (wrapped as a DeliveryError).
// A nil err clears the failure.
func (r *Recorder) FailOn(kind string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, kind)
		return
	}
	r.fail[kind] = err
}

// Calls returns a copy of all recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsOf returns the recorded calls of one kind.
func (r *Recorder) CallsOf(kind string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Reset drops recorded calls, keeping failure settings.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) NotifyRequester(_ context.Context, requesterID int64, msg channel.Message) (channel.MessageRef, error) {
	return r.record(Call{Kind: KindRequester, ChatID: requesterID, Message: msg})
}

func (r *Recorder) NotifyApproverChannel(_ context.Context, msg channel.Message) (channel.MessageRef, error) {
	return r.record(Call{Kind: KindApprovers, ChatID: r.ApproverChatID, Message: msg})
}

func (r *Recorder) EditApproverChannelMessage(_ context.Context, ref channel.MessageRef, msg channel.Message) error {
	_, err := r.record(Call{Kind: KindEdit, ChatID: ref.ChatID, Ref: ref, Message: msg})
	return err
}

func (r *Recorder) AcknowledgeAction(_ context.Context, ref channel.ActionRef, text string, alert bool) error {
	_, err := r.record(Call{Kind: KindAck, ChatID: ref.ActorID, Action: ref, Message: channel.Message{Text: text}, Alert: alert})
	return err
}

func (r *Recorder) Reply(_ context.Context, chatID int64, msg channel.Message) (channel.MessageRef, error) {
	return r.record(Call{Kind: KindReply, ChatID: chatID, Message: msg})
}

func (r *Recorder) record(c Call) (channel.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[c.Kind]; ok {
		return channel.MessageRef{}, channel.NewDeliveryError(c.Kind, "recorder", err)
	}
	r.nextID++
	ref := channel.MessageRef{ChatID: c.ChatID, MessageID: r.nextID}
	if c.Kind == KindEdit {
		ref = c.Ref
	}
	if c.Ref.IsZero() {
		c.Ref = ref
	}
	r.calls = append(r.calls, c)
	return ref, nil
}

// ErrUnavailable is a convenient failure for FailOn.
var ErrUnavailable = errors.New("transport unavailable")
