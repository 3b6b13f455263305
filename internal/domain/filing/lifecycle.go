package filing

import (
	"fmt"
	"strings"
	"time"
)

// State is a submission lifecycle phase.
type State string

const (
	StateInProgress State = "InProgress"
	StateFiled      State = "Filed"
	StateAccepted   State = "Accepted"
	StateRejected   State = "Rejected"
)

// rank orders states; a submission never moves to a lower rank.
func (s State) rank() int {
	switch s {
	case StateInProgress:
		return 0
	case StateFiled:
		return 1
	case StateAccepted, StateRejected:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the four lifecycle states.
func (s State) Valid() bool {
	return s.rank() >= 0
}

// Terminal reports whether no further automatic progress occurs from s.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateRejected
}

// ParseState maps a stored value back to a State.
func ParseState(value string) (State, error) {
	for _, s := range []State{StateInProgress, StateFiled, StateAccepted, StateRejected} {
		if strings.EqualFold(string(s), strings.TrimSpace(value)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("parse state %q: %w", value, ErrInvalidTransition)
}

// CanTransition reports whether from -> to is a legal move.
//
//	InProgress -> Filed | Rejected
//	Filed      -> Accepted | Rejected
//
// Terminal states accept nothing. Staying in place is allowed and is a no-op.
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case StateInProgress:
		return to == StateFiled || to == StateRejected
	case StateFiled:
		return to == StateAccepted || to == StateRejected
	default:
		return false
	}
}

// Advance moves the submission to the given state.
func (s *FormSubmission) Advance(to State, at time.Time) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%s -> %s: %w", s.State, to, ErrInvalidTransition)
	}
	if s.State == to {
		return nil
	}
	at = at.UTC()
	s.State = to
	s.UpdatedAt = at
	switch {
	case to == StateFiled:
		s.FiledAt = &at
	case to.Terminal():
		s.CompletedAt = &at
	}
	return nil
}

// ResolveAcknowledgement picks the state a Filed submission moves to for an observation.
// Agency errors alongside a terminal acknowledgement mean the filing was rejected.
// ok is false while the acknowledgement is still pending.
func ResolveAcknowledgement(result StatusResult) (state State, ok bool) {
	switch {
	case result.IsRejected():
		return StateRejected, true
	case result.IsAccepted() && len(result.IRSErrors) > 0:
		return StateRejected, true
	case result.IsAccepted():
		return StateAccepted, true
	default:
		return "", false
	}
}

// Observe records a status observation and applies the resulting transition, if any.
func (s *FormSubmission) Observe(result StatusResult, at time.Time) error {
	last := result
	last.IRSErrors = append([]IRSError(nil), result.IRSErrors...)
	s.LastStatus = &last
	s.UpdatedAt = at.UTC()
	if len(result.IRSErrors) > 0 {
		s.IRSErrors = append([]IRSError(nil), result.IRSErrors...)
	}
	next, ok := ResolveAcknowledgement(result)
	if !ok {
		return nil
	}
	return s.Advance(next, at)
}
