package domain

import (
	"fmt"
	"strings"
	"time"
)

// Summary is frozen at the terminal transition.
type Summary struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// ExecutionPolicy is the per-operation execution configuration captured at submit time.
type ExecutionPolicy struct {
	Concurrency int           `json:"concurrency"`
	Retries     int           `json:"retries"`
	RetryDelay  time.Duration `json:"retry_delay"`
}

// Operation is the durable record of one bulk request.
// It is not safe for concurrent use; the orchestrator serializes all mutations.
type Operation struct {
	ID                 string           `json:"id"`
	Type               OperationType    `json:"type"`
	ClientKey          string           `json:"client_key,omitempty"`
	Status             Status           `json:"status"`
	Targets            []string         `json:"targets"`
	Change             ChangeDescriptor `json:"change"`
	Policy             ExecutionPolicy  `json:"policy"`
	TotalTargets       int              `json:"total_targets"`
	SuccessfulCount    int              `json:"successful_count"`
	FailedCount        int              `json:"failed_count"`
	PendingCount       int              `json:"pending_count"`
	ProgressPercentage float64          `json:"progress_percentage"`
	CurrentTarget      string           `json:"current_target,omitempty"`
	Results            []TargetResult   `json:"results"`
	CanRollback        bool             `json:"can_rollback"`
	Degraded           bool             `json:"degraded,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	StartedAt          *time.Time       `json:"started_at,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	Summary            *Summary         `json:"summary,omitempty"`

	settled map[string]bool
}

func NewOperation(id string, opType OperationType, clientKey string, targets []string, change ChangeDescriptor, policy ExecutionPolicy, now time.Time) *Operation {
	ts := make([]string, len(targets))
	copy(ts, targets)

	return &Operation{
		ID:           id,
		Type:         opType,
		ClientKey:    clientKey,
		Status:       StatusPending,
		Targets:      ts,
		Change:       change,
		Policy:       policy,
		TotalTargets: len(ts),
		PendingCount: len(ts),
		Results:      make([]TargetResult, 0, len(ts)),
		CreatedAt:    now.UTC(),
	}
}

// ValidateTargets rejects empty, blank and duplicate target lists.
func ValidateTargets(targets []string) error {
	if len(targets) == 0 {
		return ErrNoTargets
	}

	seen := make(map[string]struct{}, len(targets))
	for i, t := range targets {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: index %d", ErrInvalidTarget, i)
		}
		if _, dup := seen[t]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTarget, t)
		}
		seen[t] = struct{}{}
	}
	return nil
}

func (o *Operation) transition(to Status) error {
	if err := ValidateTransition(o.Status, to); err != nil {
		return err
	}
	o.Status = to
	return nil
}

// Start moves the operation to in_progress and stamps StartedAt.
func (o *Operation) Start(now time.Time) error {
	if o.Status != StatusPending {
		return fmt.Errorf("%w: status %s", ErrAlreadyStarted, o.Status)
	}
	if err := o.transition(StatusInProgress); err != nil {
		return err
	}
	t := now.UTC()
	o.StartedAt = &t
	return nil
}

// Cancel moves a pending operation to cancelled. It reports false for any other status.
func (o *Operation) Cancel(now time.Time) bool {
	if o.Status != StatusPending {
		return false
	}
	if err := o.transition(StatusCancelled); err != nil {
		return false
	}
	t := now.UTC()
	o.CompletedAt = &t
	return true
}

func (o *Operation) index() map[string]bool {
	if o.settled != nil {
		return o.settled
	}
	o.settled = make(map[string]bool, len(o.Targets))
	for _, t := range o.Targets {
		o.settled[t] = false
	}
	for _, r := range o.Results {
		o.settled[r.Target] = true
	}
	return o.settled
}

// Settle records the outcome of one target and recomputes progress.
func (o *Operation) Settle(result TargetResult) error {
	if o.Status != StatusInProgress {
		return fmt.Errorf("%w: cannot settle target in status %s", ErrInvalidTransition, o.Status)
	}

	idx := o.index()
	settled, known := idx[result.Target]
	if !known || settled {
		return fmt.Errorf("%w: %s", ErrTargetNotPending, result.Target)
	}

	switch result.Outcome.(type) {
	case Success:
		o.SuccessfulCount++
	case Failure:
		o.FailedCount++
	default:
		return fmt.Errorf("target %s: missing outcome", result.Target)
	}

	idx[result.Target] = true
	o.PendingCount--
	o.Results = append(o.Results, result)
	o.ProgressPercentage = ComputeProgress(o.TotalTargets, o.PendingCount)
	return nil
}

// PendingTargets returns the targets without a result, in submission order.
func (o *Operation) PendingTargets() []string {
	idx := o.index()
	pending := make([]string, 0, o.PendingCount)
	for _, t := range o.Targets {
		if !idx[t] {
			pending = append(pending, t)
		}
	}
	return pending
}

// Complete computes and applies the terminal status once every target has settled.
// When timedOut is set the terminal status is timeout regardless of counts.
func (o *Operation) Complete(now time.Time, timedOut bool) error {
	if o.PendingCount != 0 {
		return fmt.Errorf("%w: %d targets still pending", ErrInvalidTransition, o.PendingCount)
	}

	next := TerminalStatusFor(o.SuccessfulCount, o.FailedCount)
	if timedOut {
		next = StatusTimeout
	}
	if err := o.transition(next); err != nil {
		return err
	}

	t := now.UTC()
	o.CompletedAt = &t
	o.CurrentTarget = ""
	o.CanRollback = o.SuccessfulCount > 0
	if o.Summary == nil {
		o.Summary = &Summary{
			Total:       o.TotalTargets,
			Successful:  o.SuccessfulCount,
			Failed:      o.FailedCount,
			SuccessRate: successRate(o.SuccessfulCount, o.TotalTargets),
		}
	}
	return nil
}

// CheckInvariant verifies the counter invariant.
func (o *Operation) CheckInvariant() error {
	if o.SuccessfulCount+o.FailedCount+o.PendingCount != o.TotalTargets {
		return fmt.Errorf("counter invariant violated: %d+%d+%d != %d",
			o.SuccessfulCount, o.FailedCount, o.PendingCount, o.TotalTargets)
	}
	return nil
}

// Clone returns a deep copy safe to hand to readers.
func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}

	c := *o
	c.settled = nil
	c.Targets = append([]string(nil), o.Targets...)
	c.Results = append(make([]TargetResult, 0, len(o.Results)), o.Results...)
	c.Change.Files = append([]FileChange(nil), o.Change.Files...)
	if o.Change.Parameters != nil {
		c.Change.Parameters = make(map[string]string, len(o.Change.Parameters))
		for k, v := range o.Change.Parameters {
			c.Change.Parameters[k] = v
		}
	}
	if o.StartedAt != nil {
		t := *o.StartedAt
		c.StartedAt = &t
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	if o.Summary != nil {
		s := *o.Summary
		c.Summary = &s
	}
	return &c
}

// ComputeProgress derives the progress percentage purely from counts.
func ComputeProgress(total, pending int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(total-pending) / float64(total)
}

func successRate(successful, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(successful) / float64(total)
}
