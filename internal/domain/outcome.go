package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome is the settled result of applying a change to one target.
// It is either Success or Failure.
type Outcome interface {
	Kind() OutcomeKind
	outcome()
}

type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

type FailureCode string

const (
	FailureApply     FailureCode = "apply_failed"
	FailureTimeout   FailureCode = "timeout"
	FailureCancelled FailureCode = "cancelled"
	FailureInternal  FailureCode = "internal"
)

type Success struct {
	CommittedRef string
}

func (Success) Kind() OutcomeKind { return OutcomeSuccess }
func (Success) outcome() {}

type Failure struct {
	Code    FailureCode
	Message string
}

func (Failure) Kind() OutcomeKind { return OutcomeFailure }
func (Failure) outcome() {}

// TargetResult is appended once per settled target and never mutated afterwards.
type TargetResult struct {
	Target    string
	Outcome   Outcome
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (r TargetResult) Succeeded() bool {
	_, ok := r.Outcome.(Success)
	return ok
}

// Detail renders a human readable description of the outcome.
func (r TargetResult) Detail() string {
	switch o := r.Outcome.(type) {
	case Success:
		return fmt.Sprintf("committed %s after %d attempt(s)", o.CommittedRef, r.Attempts)
	case Failure:
		return fmt.Sprintf("%s after %d attempt(s): %s", o.Code, r.Attempts, o.Message)
	default:
		return "unknown outcome"
	}
}

type targetResultJSON struct {
	Target       string      `json:"target"`
	Kind         OutcomeKind `json:"kind"`
	CommittedRef string      `json:"committed_ref,omitempty"`
	Code         FailureCode `json:"code,omitempty"`
	Message      string      `json:"message,omitempty"`
	Attempts     int         `json:"attempts"`
	DurationMs   int64       `json:"duration_ms"`
	Timestamp    time.Time   `json:"timestamp"`
}

func (r TargetResult) MarshalJSON() ([]byte, error) {
	rec := targetResultJSON{
		Target:     r.Target,
		Attempts:   r.Attempts,
		DurationMs: r.Duration.Milliseconds(),
		Timestamp:  r.Timestamp,
	}
	switch o := r.Outcome.(type) {
	case Success:
		rec.Kind = OutcomeSuccess
		rec.CommittedRef = o.CommittedRef
	case Failure:
		rec.Kind = OutcomeFailure
		rec.Code = o.Code
		rec.Message = o.Message
	default:
		return nil, fmt.Errorf("target %s: missing outcome", r.Target)
	}
	return json.Marshal(rec)
}

func (r *TargetResult) UnmarshalJSON(data []byte) error {
	var rec targetResultJSON
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	r.Target = rec.Target
	r.Attempts = rec.Attempts
	r.Duration = time.Duration(rec.DurationMs) * time.Millisecond
	r.Timestamp = rec.Timestamp

	switch rec.Kind {
	case OutcomeSuccess:
		r.Outcome = Success{CommittedRef: rec.CommittedRef}
	case OutcomeFailure:
		r.Outcome = Failure{Code: rec.Code, Message: rec.Message}
	default:
		return fmt.Errorf("target %s: unknown outcome kind %q", rec.Target, rec.Kind)
	}
	return nil
}
