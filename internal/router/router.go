// Package router turns inbound channel events into intake and approval work.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MEKXH/breakbot/internal/approval"
	"github.com/MEKXH/breakbot/internal/breakreq"
	"github.com/MEKXH/breakbot/internal/bus"
	"github.com/MEKXH/breakbot/internal/channel"
	"github.com/MEKXH/breakbot/internal/command"
	"github.com/MEKXH/breakbot/internal/metrics"
	"github.com/MEKXH/breakbot/internal/render"
)

// Intake is the intake machine as seen by the router.
type Intake interface {
	command.Intake
	HandleText(ctx context.Context, requesterID int64, text string) error
}

// Resolver applies approver actions.
type Resolver interface {
	ResolveToken(ctx context.Context, raw, approver string, ref channel.ActionRef) approval.Result
}

// Deps are the collaborators of a Router.
type Deps struct {
	Bus      *bus.MessageBus
	Commands *command.Registry
	Intake   Intake
	Resolver Resolver
	Notifier channel.Notifier
	Metrics  *metrics.RuntimeMetrics
}

// Router consumes the bus. Events touching the same requester run one at a
// time in acceptance order; events for different requesters run concurrently.
type Router struct {
	bus        *bus.MessageBus
	commands   *command.Registry
	intake     Intake
	resolver   Resolver
	notifier   channel.Notifier
	metrics    *metrics.RuntimeMetrics
	dispatcher *bus.KeyedDispatcher
}

// New creates a router. A nil command registry gets the default commands.
func New(deps Deps) *Router {
	if deps.Commands == nil {
		deps.Commands = command.NewDefaultRegistry()
	}
	return &Router{
		bus:        deps.Bus,
		commands:   deps.Commands,
		intake:     deps.Intake,
		resolver:   deps.Resolver,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		dispatcher: bus.NewKeyedDispatcher(),
	}
}

// Run dispatches inbound events until ctx is done, then waits for in-flight work.
func (r *Router) Run(ctx context.Context) error {
	slog.Info("router started")
	defer r.dispatcher.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-r.bus.Inbound():
			if !ok {
				return fmt.Errorf("inbound channel closed")
			}
			if evt == nil {
				slog.Warn("received nil inbound event")
				continue
			}
			r.Dispatch(ctx, evt)
		}
	}
}

// Dispatch queues evt behind earlier events for the same requester.
func (r *Router) Dispatch(ctx context.Context, evt *bus.InboundEvent) {
	if strings.TrimSpace(evt.RequestID) == "" {
		evt.RequestID = bus.NewRequestID()
	}
	r.dispatcher.Dispatch(ctx, dispatchKey(evt), func(ctx context.Context) {
		r.Handle(ctx, evt)
	})
}

// Wait blocks until every dispatched event has been handled.
func (r *Router) Wait() {
	r.dispatcher.Wait()
}

// Handle processes a single event synchronously.
func (r *Router) Handle(ctx context.Context, evt *bus.InboundEvent) {
	ctx = bus.WithRequestID(ctx, evt.RequestID)
	logger := slog.With(
		"request_id", evt.RequestID,
		"channel", evt.Channel,
		"chat_id", evt.ChatID,
		"sender_id", evt.Sender.ID,
		"kind", string(evt.Kind),
	)

	var err error
	switch evt.Kind {
	case bus.KindCommand:
		err = r.handleCommand(ctx, evt)
	case bus.KindText:
		if !evt.Private {
			logger.Debug("ignored group text")
			return
		}
		err = r.intake.HandleText(ctx, evt.Sender.ID, evt.Text)
	case bus.KindAction:
		r.handleAction(ctx, evt)
	default:
		logger.Warn("ignored event of unknown kind")
		return
	}
	if err != nil {
		logger.Error("process event failed", "error", err)
	}
}

func (r *Router) handleCommand(ctx context.Context, evt *bus.InboundEvent) error {
	cmd, ok := r.commands.Get(evt.Command)
	if !ok {
		if !evt.Private {
			return nil
		}
		_, err := r.notifier.Reply(ctx, evt.ChatID, render.UnknownCommand())
		return err
	}

	res := cmd.Execute(ctx, evt.Args, command.Env{
		Channel:      evt.Channel,
		ChatID:       evt.ChatID,
		Private:      evt.Private,
		Sender:       evt.Sender,
		Intake:       r.intake,
		Metrics:      r.metrics,
		ListCommands: r.commands.List,
	})
	if res.Err != nil {
		return fmt.Errorf("/%s: %w", cmd.Name(), res.Err)
	}
	if res.Content == "" {
		return nil
	}
	if _, err := r.notifier.Reply(ctx, evt.ChatID, channel.Message{Text: res.Content}); err != nil {
		return fmt.Errorf("reply to /%s: %w", cmd.Name(), err)
	}
	return nil
}

func (r *Router) handleAction(ctx context.Context, evt *bus.InboundEvent) {
	ref := channel.ActionRef{
		CallbackID: evt.CallbackID,
		ActorID:    evt.Sender.ID,
		Message:    channel.MessageRef{ChatID: evt.ChatID, MessageID: evt.MessageID},
	}
	res := r.resolver.ResolveToken(ctx, evt.ActionToken, evt.Sender.DisplayName, ref)
	slog.Info("approver action handled",
		"request_id", evt.RequestID,
		"actor_id", evt.Sender.ID,
		"token", evt.ActionToken,
		"outcome", string(res.Outcome),
	)
	if res.Err != nil {
		slog.Warn("approver action delivered partially", "request_id", evt.RequestID, "error", res.Err)
	}
}

// dispatchKey serializes work on the requester a given event touches. An
// approver action touches the requester named in its token.
func dispatchKey(evt *bus.InboundEvent) string {
	if evt.Kind == bus.KindAction {
		if token, err := breakreq.ParseActionToken(evt.ActionToken); err == nil {
			return "requester:" + strconv.FormatInt(token.RequesterID, 10)
		}
		return "actor:" + strconv.FormatInt(evt.Sender.ID, 10)
	}
	return "requester:" + strconv.FormatInt(evt.Sender.ID, 10)
}
