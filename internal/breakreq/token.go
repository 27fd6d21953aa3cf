package breakreq

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Action is an approver's decision on a pending request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionIgnore  Action = "ignore"
)

// TargetStatus is the status a successful action moves the request to.
func (a Action) TargetStatus() Status {
	if a == ActionApprove {
		return StatusApproved
	}
	return StatusIgnored
}

// ErrMalformedToken is returned when an action token cannot be parsed.
var ErrMalformedToken = errors.New("malformed action token")

var actionTokenRe = regexp.MustCompile(`^(approve|ignore)-(\d+)$`)

// ActionToken binds an approver action to the requester it resolves.
// Its wire form is "<action>-<requesterId>" and rides on interactive choices.
type ActionToken struct {
	Action      Action
	RequesterID int64
}

func (t ActionToken) String() string {
	return fmt.Sprintf("%s-%d", t.Action, t.RequesterID)
}

// Validate checks the token could round-trip through its wire form.
func (t ActionToken) Validate() error {
	if t.Action != ActionApprove && t.Action != ActionIgnore {
		return fmt.Errorf("%w: unknown action %q", ErrMalformedToken, t.Action)
	}
	if t.RequesterID < 0 {
		return fmt.Errorf("%w: negative requester id", ErrMalformedToken)
	}
	return nil
}

// ParseActionToken decodes the wire form produced by ActionToken.String.
func ParseActionToken(raw string) (ActionToken, error) {
	m := actionTokenRe.FindStringSubmatch(raw)
	if m == nil {
		return ActionToken{}, fmt.Errorf("%w: %q", ErrMalformedToken, raw)
	}
	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return ActionToken{}, fmt.Errorf("%w: %q: %v", ErrMalformedToken, raw, err)
	}
	return ActionToken{Action: Action(m[1]), RequesterID: id}, nil
}
