package approval

import "github.com/MEKXH/breakbot/internal/breakreq"

// Outcome is the result category of an approver action.
type Outcome string

const (
	OutcomeResolved        Outcome = "resolved"
	OutcomeAlreadyResolved Outcome = "already_resolved"
	OutcomeMalformed       Outcome = "malformed"
)

// Result is returned by the resolver for every action.
type Result struct {
	Outcome Outcome
	// Request is the record after the action. For AlreadyResolved it is the
	// record that won, or the zero value when no record exists.
	Request breakreq.Request
	// Err collects delivery failures. A resolved request stays resolved
	// even when Err is set.
	Err error
}
