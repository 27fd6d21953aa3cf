package intake

import (
	"time"

	"github.com/MEKXH/breakbot/internal/breakreq"
)

// Stage is the position of an intake session in its conversation.
type Stage int

const (
	StageAwaitingDepartment Stage = iota
	StageAwaitingDuration
	StageAwaitingApprovalAck
	StageCancelled
	StageTimedOut
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingDepartment:
		return "awaiting_department"
	case StageAwaitingDuration:
		return "awaiting_duration"
	case StageAwaitingApprovalAck:
		return "awaiting_approval_ack"
	case StageCancelled:
		return "cancelled"
	case StageTimedOut:
		return "timed_out"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Collecting reports whether the session still needs input from the requester.
func (s Stage) Collecting() bool {
	return s == StageAwaitingDepartment || s == StageAwaitingDuration
}

// Ended reports whether the session is gone (aborted or failed).
func (s Stage) Ended() bool {
	return s == StageCancelled || s == StageTimedOut || s == StageFailed
}

// Session is the ephemeral per-requester intake state.
type Session struct {
	RequesterID int64
	DisplayName string
	Department  breakreq.Department
	Stage       Stage
	StartedAt   time.Time
	UpdatedAt   time.Time
}
