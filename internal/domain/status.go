package domain

import "fmt"

// Status is the lifecycle state of a bulk operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusPartial    Status = "partial"
	StatusCancelled  Status = "cancelled"
	StatusTimeout    Status = "timeout"
)

var allowedTransitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusInProgress: {},
		StatusCancelled:  {},
	},
	StatusInProgress: {
		StatusCompleted: {},
		StatusFailed:    {},
		StatusPartial:   {},
		StatusTimeout:   {},
	},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusPartial:   {},
	StatusCancelled: {},
	StatusTimeout:   {},
}

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusInProgress,
		StatusCompleted,
		StatusFailed,
		StatusPartial,
		StatusCancelled,
		StatusTimeout,
	}
}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	next, ok := allowedTransitions[s]
	return ok && len(next) == 0
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid status: %q", raw)
	}
	return s, nil
}

func ValidateTransition(from, to Status) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// TerminalStatusFor derives the terminal status from settled counts.
// It must only be called once every target has settled.
func TerminalStatusFor(successful, failed int) Status {
	switch {
	case failed == 0:
		return StatusCompleted
	case successful == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
