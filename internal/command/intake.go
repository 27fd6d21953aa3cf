package command

import (
	"context"
	"log/slog"

	"github.com/MEKXH/breakbot/internal/render"
)

// StartCommand implements /start: opens a new break request.
type StartCommand struct{}

func (c *StartCommand) Name() string        { return "start" }
func (c *StartCommand) Description() string { return "Request a break" }

func (c *StartCommand) Execute(ctx context.Context, _ string, env Env) Result {
	if !env.Private {
		return Result{Content: render.PrivateOnly}
	}
	if err := env.Intake.Start(ctx, env.Sender.ID, env.Sender.DisplayName); err != nil {
		slog.Error("start intake", "requester_id", env.Sender.ID, "error", err)
		return Result{Err: err}
	}
	return Result{}
}

// CancelCommand implements /cancel: abandons the request in progress.
type CancelCommand struct{}

func (c *CancelCommand) Name() string        { return "cancel" }
func (c *CancelCommand) Description() string { return "Cancel the break request in progress" }

func (c *CancelCommand) Execute(ctx context.Context, _ string, env Env) Result {
	if !env.Private {
		return Result{Content: render.PrivateOnly}
	}
	if err := env.Intake.Cancel(ctx, env.Sender.ID); err != nil {
		slog.Error("cancel intake", "requester_id", env.Sender.ID, "error", err)
		return Result{Err: err}
	}
	return Result{}
}

// ChatIDCommand implements /getchatid: echoes the id of the current chat.
type ChatIDCommand struct{}

func (c *ChatIDCommand) Name() string        { return "getchatid" }
func (c *ChatIDCommand) Description() string { return "Show the id of this chat" }

func (c *ChatIDCommand) Execute(_ context.Context, _ string, env Env) Result {
	return Result{Content: render.ChatID(env.ChatID).Text}
}
