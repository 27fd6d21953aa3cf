package intake

import (
	"time"

	"github.com/MEKXH/breakbot/internal/breakreq"
)

// Prompt tells the caller which message the requester should see next.
type Prompt int

const (
	PromptNone Prompt = iota
	PromptDepartment
	PromptInvalidDepartment
	PromptDuration
	PromptInvalidDuration
	PromptSubmitted
	PromptCancelled
	PromptTimedOut
)

// Step is the outcome of applying one input to a session.
type Step struct {
	Next    Session
	Changed bool
	Prompt  Prompt
	// Request is set when the duration was accepted and a pending request is ready to store.
	Request *breakreq.Request
}

// Begin opens a fresh session in StageAwaitingDepartment.
func Begin(requesterID int64, displayName string, now time.Time) Step {
	return Step{
		Next: Session{
			RequesterID: requesterID,
			DisplayName: displayName,
			Stage:       StageAwaitingDepartment,
			StartedAt:   now,
			UpdatedAt:   now,
		},
		Changed: true,
		Prompt:  PromptDepartment,
	}
}

// Apply routes text input to the transition for the session's stage.
func Apply(s Session, input string, now time.Time) Step {
	switch s.Stage {
	case StageAwaitingDepartment:
		return SubmitDepartment(s, input, now)
	case StageAwaitingDuration:
		return SubmitDuration(s, input, now)
	default:
		return Step{Next: s, Prompt: PromptNone}
	}
}

// SubmitDepartment accepts one of the fixed departments or re-asks.
func SubmitDepartment(s Session, input string, now time.Time) Step {
	if s.Stage != StageAwaitingDepartment {
		return Step{Next: s}
	}
	dept, err := breakreq.ParseDepartment(input)
	if err != nil {
		return Step{Next: s, Prompt: PromptInvalidDepartment}
	}
	s.Department = dept
	s.Stage = StageAwaitingDuration
	s.UpdatedAt = now
	return Step{Next: s, Changed: true, Prompt: PromptDuration}
}

// SubmitDuration accepts one of the fixed durations, producing a pending request, or re-asks.
func SubmitDuration(s Session, input string, now time.Time) Step {
	if s.Stage != StageAwaitingDuration {
		return Step{Next: s}
	}
	minutes, err := breakreq.ParseDuration(input)
	if err != nil {
		return Step{Next: s, Prompt: PromptInvalidDuration}
	}
	req, err := breakreq.NewPending(s.RequesterID, s.DisplayName, s.Department, minutes, now.UTC())
	if err != nil {
		return Step{Next: s, Prompt: PromptInvalidDuration}
	}
	s.Stage = StageAwaitingApprovalAck
	s.UpdatedAt = now
	return Step{Next: s, Changed: true, Prompt: PromptSubmitted, Request: &req}
}

// Cancel ends the session from any stage.
func Cancel(s Session, now time.Time) Step {
	s.Stage = StageCancelled
	s.UpdatedAt = now
	return Step{Next: s, Changed: true, Prompt: PromptCancelled}
}

// Expire ends a session that saw no transition within the inactivity window.
// Sessions that already submitted end quietly.
func Expire(s Session, now time.Time) Step {
	prompt := PromptTimedOut
	if !s.Stage.Collecting() {
		prompt = PromptNone
	}
	s.Stage = StageTimedOut
	s.UpdatedAt = now
	return Step{Next: s, Changed: true, Prompt: prompt}
}

// Fail ends the session after a delivery failure.
func Fail(s Session, now time.Time) Session {
	s.Stage = StageFailed
	s.UpdatedAt = now
	return s
}
