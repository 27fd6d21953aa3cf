package command

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StatusCommand implements /status: open sessions and runtime counters.
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Show runtime status" }

func (c *StatusCommand) Execute(_ context.Context, _ string, env Env) Result {
	var sb strings.Builder
	sb.WriteString("Breakbot status\n\n")

	if env.Intake != nil {
		sb.WriteString(fmt.Sprintf("- Open sessions: %d\n", env.Intake.ActiveSessions()))
	}

	if env.Metrics == nil {
		sb.WriteString("- Metrics unavailable")
		return Result{Content: sb.String()}
	}
	snap := env.Metrics.Snapshot()
	if !snap.HasData() {
		sb.WriteString("- No activity yet")
		return Result{Content: sb.String()}
	}
	sb.WriteString(fmt.Sprintf("- Updated: %s\n", snap.UpdatedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("- Requests: %d started, %d submitted, %d cancelled, %d timed out\n",
		snap.Intake.Started,
		snap.Intake.Submitted,
		snap.Intake.Cancelled,
		snap.Intake.TimedOut,
	))
	sb.WriteString(fmt.Sprintf("- Decisions: %d approved, %d ignored, %d stale\n",
		snap.Resolution.Approved,
		snap.Resolution.Ignored,
		snap.Resolution.AlreadyResolved,
	))
	sb.WriteString(fmt.Sprintf("- Channel: %d sends, fail=%.1f%%",
		snap.Channel.SendAttempts,
		snap.Channel.FailureRatio()*100,
	))
	return Result{Content: sb.String()}
}
