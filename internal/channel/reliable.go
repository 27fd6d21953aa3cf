package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MEKXH/breakbot/internal/metrics"
	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
)

// ErrBreakerOpen is returned while the transport breaker rejects calls.
var ErrBreakerOpen = errors.New("channel circuit breaker open")

const defaultMaxConcurrentSends = 16

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying (bad request, unknown chat, ...).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// ReliableOptions tunes the retry and breaker policy.
type ReliableOptions struct {
	RetryAttempts      uint
	RetryDelay         time.Duration
	BreakerFailures    uint32
	BreakerTimeout     time.Duration
	MaxConcurrentSends int
	Metrics            *metrics.RuntimeMetrics
}

// Reliable decorates a Notifier with bounded concurrency, retries and a
// circuit breaker. Errors still reach the caller once retries are exhausted.
type Reliable struct {
	next    Notifier
	opts    ReliableOptions
	cb      *gobreaker.CircuitBreaker
	sendSem chan struct{}
}

var _ Notifier = (*Reliable)(nil)

// NewReliable wraps next.
func NewReliable(next Notifier, opts ReliableOptions) *Reliable {
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 1
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.MaxConcurrentSends <= 0 {
		opts.MaxConcurrentSends = defaultMaxConcurrentSends
	}

	recorder := opts.Metrics
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "channel",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("channel breaker state changed", "name", name, "from", from.String(), "to", to.String())
			recorder.SetBreakerState(breakerGauge(to))
		},
	})

	return &Reliable{
		next:    next,
		opts:    opts,
		cb:      cb,
		sendSem: make(chan struct{}, opts.MaxConcurrentSends),
	}
}

func (r *Reliable) NotifyRequester(ctx context.Context, requesterID int64, msg Message) (MessageRef, error) {
	var ref MessageRef
	err := r.do(ctx, "notify_requester", strconv.FormatInt(requesterID, 10), func(ctx context.Context) error {
		var err error
		ref, err = r.next.NotifyRequester(ctx, requesterID, msg)
		return err
	})
	return ref, err
}

func (r *Reliable) NotifyApproverChannel(ctx context.Context, msg Message) (MessageRef, error) {
	var ref MessageRef
	err := r.do(ctx, "notify_approvers", "approver channel", func(ctx context.Context) error {
		var err error
		ref, err = r.next.NotifyApproverChannel(ctx, msg)
		return err
	})
	return ref, err
}

func (r *Reliable) EditApproverChannelMessage(ctx context.Context, ref MessageRef, msg Message) error {
	target := fmt.Sprintf("message %d in %d", ref.MessageID, ref.ChatID)
	return r.do(ctx, "edit_approvers", target, func(ctx context.Context) error {
		return r.next.EditApproverChannelMessage(ctx, ref, msg)
	})
}

func (r *Reliable) AcknowledgeAction(ctx context.Context, ref ActionRef, text string, alert bool) error {
	return r.do(ctx, "ack_action", "callback "+ref.CallbackID, func(ctx context.Context) error {
		return r.next.AcknowledgeAction(ctx, ref, text, alert)
	})
}

func (r *Reliable) Reply(ctx context.Context, chatID int64, msg Message) (MessageRef, error) {
	var ref MessageRef
	err := r.do(ctx, "reply", strconv.FormatInt(chatID, 10), func(ctx context.Context) error {
		var err error
		ref, err = r.next.Reply(ctx, chatID, msg)
		return err
	})
	return ref, err
}

func (r *Reliable) do(ctx context.Context, op, target string, call func(context.Context) error) error {
	select {
	case r.sendSem <- struct{}{}:
		defer func() { <-r.sendSem }()
	case <-ctx.Done():
		return NewDeliveryError(op, target, ctx.Err())
	}

	started := time.Now()
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, retry.New(
			retry.Context(ctx),
			retry.Attempts(r.opts.RetryAttempts),
			retry.Delay(r.opts.RetryDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool { return !IsPermanent(err) }),
		).Do(func() error {
			return call(ctx)
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}

	snapshot := r.opts.Metrics.RecordChannelSend(op, time.Since(started), err == nil)
	if err != nil {
		slog.Error("send outbound failed",
			"op", op,
			"target", target,
			"error", err,
			"channel_send_attempts", snapshot.Channel.SendAttempts,
			"channel_send_failure_ratio", snapshot.Channel.FailureRatio(),
		)
		return NewDeliveryError(op, target, err)
	}
	return nil
}

func breakerGauge(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}
