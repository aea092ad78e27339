package navigator

import (
	"errors"
	"fmt"
)

// State is a step of one attempt.
type State int

const (
	StateNavigating State = iota
	StateChallengePending
	StateChallengeSolved
	StateRenderStable
	StateExtracting
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateNavigating:       "NAVIGATING",
	StateChallengePending: "CHALLENGE_PENDING",
	StateChallengeSolved:  "CHALLENGE_SOLVED",
	StateRenderStable:     "RENDER_STABLE",
	StateExtracting:       "EXTRACTING",
	StateDone:             "DONE",
	StateFailed:           "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Attempt failure classes. Every AttemptError unwraps to exactly one of them.
var (
	ErrNavigation        = errors.New("navigation failed")
	ErrChallengeUnsolved = errors.New("challenge unsolved")
	ErrRenderTimeout     = errors.New("detail page did not render")
	ErrExtraction        = errors.New("extraction failed")
)

// errChallengeRejected marks a submission the site answered with a new challenge.
var errChallengeRejected = errors.New("challenge rejected by site")

// AttemptError describes a failed attempt. State is the last state reached
// before failing.
type AttemptError struct {
	ProjectID int
	State     State
	Kind      error
	Err       error
}

func (e *AttemptError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("project %d: %s: %v", e.ProjectID, e.State, e.Kind)
	}
	return fmt.Sprintf("project %d: %s: %v: %v", e.ProjectID, e.State, e.Kind, e.Err)
}

// Unwrap exposes both the failure class and the cause.
func (e *AttemptError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
