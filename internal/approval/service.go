package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MEKXH/breakbot/internal/breakreq"
	"github.com/MEKXH/breakbot/internal/bus"
	"github.com/MEKXH/breakbot/internal/channel"
	"github.com/MEKXH/breakbot/internal/metrics"
	"github.com/MEKXH/breakbot/internal/render"
)

// Options configures a Resolver.
type Options struct {
	Metrics *metrics.RuntimeMetrics
	// OnResolved runs after a request moved out of Pending.
	OnResolved func(req breakreq.Request)
}

// Resolver applies approver decisions to pending break requests.
type Resolver struct {
	store      *breakreq.Store
	notifier   channel.Notifier
	metrics    *metrics.RuntimeMetrics
	onResolved func(req breakreq.Request)
}

// NewResolver creates a resolver over store.
func NewResolver(store *breakreq.Store, notifier channel.Notifier, opts Options) *Resolver {
	return &Resolver{
		store:      store,
		notifier:   notifier,
		metrics:    opts.Metrics,
		onResolved: opts.OnResolved,
	}
}

// ResolveToken parses raw as an action token and resolves it.
func (r *Resolver) ResolveToken(ctx context.Context, raw, approver string, ref channel.ActionRef) Result {
	token, err := breakreq.ParseActionToken(raw)
	if err != nil {
		return r.rejectMalformed(ctx, ref, err)
	}
	return r.Resolve(ctx, token.Action, token.RequesterID, approver, ref)
}

// Resolve moves the requester's Pending record to the status implied by action.
// Exactly one of several concurrent callers for the same requester resolves it;
// the others get OutcomeAlreadyResolved.
func (r *Resolver) Resolve(ctx context.Context, action breakreq.Action, requesterID int64, approver string, ref channel.ActionRef) Result {
	token := breakreq.ActionToken{Action: action, RequesterID: requesterID}
	if err := token.Validate(); err != nil {
		return r.rejectMalformed(ctx, ref, err)
	}

	logger := slog.With(
		"request_id", bus.RequestIDFromContext(ctx),
		"requester_id", requesterID,
		"action", string(action),
		"approver", approver,
	)

	var errs []error
	if err := r.acknowledge(ctx, ref, "", false); err != nil {
		errs = append(errs, err)
	}

	req, err := r.store.CompareAndSetStatus(requesterID, breakreq.StatusPending, action.TargetStatus())
	if err != nil {
		return r.alreadyResolved(ctx, logger, requesterID, ref, err, errs)
	}

	if req.Status == breakreq.StatusApproved {
		r.metrics.RecordResolution(metrics.ResolutionApproved)
	} else {
		r.metrics.RecordResolution(metrics.ResolutionIgnored)
	}
	logger.Info("break request resolved", "outcome", string(req.Status))

	if err := r.updateCard(ctx, ref, render.ResolvedCard(req, approver)); err != nil {
		logger.Error("failed to update approver card", "error", err)
		errs = append(errs, err)
	}

	notice := render.Declined()
	if req.Status == breakreq.StatusApproved {
		notice = render.Approved(req)
	}
	if _, err := r.notifier.NotifyRequester(ctx, requesterID, notice); err != nil {
		logger.Error("failed to notify requester of resolution", "error", err)
		errs = append(errs, fmt.Errorf("notify requester: %w", err))
	}

	if r.onResolved != nil {
		r.onResolved(req)
	}
	return Result{Outcome: OutcomeResolved, Request: req, Err: errors.Join(errs...)}
}

func (r *Resolver) alreadyResolved(ctx context.Context, logger *slog.Logger, requesterID int64, ref channel.ActionRef, casErr error, errs []error) Result {
	r.metrics.RecordResolution(metrics.ResolutionAlreadyResolved)

	var current breakreq.Request
	var mismatch *breakreq.StatusMismatchError
	if errors.As(casErr, &mismatch) {
		current, _ = r.store.Get(requesterID)
	}
	logger.Info("break request no longer pending", "outcome", string(OutcomeAlreadyResolved), "reason", casErr.Error())

	if err := r.updateCard(ctx, ref, render.NoLongerValid()); err != nil {
		logger.Error("failed to send no-longer-valid notice", "error", err)
		errs = append(errs, err)
	}
	return Result{Outcome: OutcomeAlreadyResolved, Request: current, Err: errors.Join(errs...)}
}

func (r *Resolver) rejectMalformed(ctx context.Context, ref channel.ActionRef, cause error) Result {
	r.metrics.RecordResolution(metrics.ResolutionMalformed)
	slog.Warn("rejected approver action",
		"request_id", bus.RequestIDFromContext(ctx),
		"actor_id", ref.ActorID,
		"outcome", string(OutcomeMalformed),
		"error", cause,
	)

	var err error
	if ref.CallbackID != "" {
		err = r.acknowledge(ctx, ref, render.MalformedAction, true)
	} else {
		_, err = r.notifier.Reply(ctx, ref.ActorID, channelText(render.MalformedAction))
	}
	if err != nil {
		slog.Error("failed to notify actor of malformed action", "actor_id", ref.ActorID, "error", err)
	}
	return Result{Outcome: OutcomeMalformed, Err: err}
}

// updateCard edits the approver card the action came from, or posts msg to the
// approver channel when that message is unknown.
func (r *Resolver) updateCard(ctx context.Context, ref channel.ActionRef, msg channel.Message) error {
	if ref.Message.IsZero() {
		if _, err := r.notifier.NotifyApproverChannel(ctx, msg); err != nil {
			return fmt.Errorf("post approver notice: %w", err)
		}
		return nil
	}
	if err := r.notifier.EditApproverChannelMessage(ctx, ref.Message, msg); err != nil {
		return fmt.Errorf("edit approver card: %w", err)
	}
	return nil
}

func (r *Resolver) acknowledge(ctx context.Context, ref channel.ActionRef, text string, alert bool) error {
	if ref.CallbackID == "" {
		return nil
	}
	if err := r.notifier.AcknowledgeAction(ctx, ref, text, alert); err != nil {
		return fmt.Errorf("acknowledge action: %w", err)
	}
	return nil
}

func channelText(text string) channel.Message {
	return channel.Message{Text: text}
}
