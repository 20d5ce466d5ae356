package stub

import "time"

// SyncRequest mirrors the body the app_sync webhook applier sends.
type SyncRequest struct {
	Target      string            `json:"target" binding:"required"`
	Description string            `json:"description,omitempty"`
	Author      string            `json:"author,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

type SyncResponse struct {
	Ref string `json:"ref"`
}

// Behavior shapes how a run responds to sync calls.
type Behavior struct {
	// FailTargets always fail.
	FailTargets []string `json:"fail_targets,omitempty"`
	// FailFirstAttempts fails the first N calls for every target, which
	// exercises retries.
	FailFirstAttempts int `json:"fail_first_attempts,omitempty"`
	// FailPercent fails a deterministic share of (target, attempt) pairs.
	FailPercent int `json:"fail_percent,omitempty"`
	LatencyMs   int `json:"latency_ms,omitempty"`
}

func (b Behavior) latency() time.Duration {
	return time.Duration(b.LatencyMs) * time.Millisecond
}

type StatsResponse struct {
	RunID     string         `json:"run_id"`
	Calls     int            `json:"calls"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	PerTarget map[string]int `json:"per_target"`
}
