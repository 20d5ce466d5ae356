package stub

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"
	"time"
)

type runState struct {
	behavior  Behavior
	attempts  map[string]int
	succeeded int
	failed    int
}

// RunStorage keeps per-run behavior and call counters.
type RunStorage struct {
	mu   sync.Mutex
	runs map[string]*runState
}

func NewRunStorage() *RunStorage {
	return &RunStorage{runs: make(map[string]*runState)}
}

func (s *RunStorage) Reset(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}

func (s *RunStorage) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[string]*runState)
}

func (s *RunStorage) Configure(runID string, b Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run(runID).behavior = b
}

// Record counts one sync call and decides its outcome. The returned ref is
// empty when the call should fail.
func (s *RunStorage) Record(runID, target string) (ref string, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.run(runID)
	run.attempts[target]++
	attempt := run.attempts[target]

	if shouldFail(run.behavior, runID, target, attempt) {
		run.failed++
		return "", run.behavior.latency()
	}

	run.succeeded++
	return generateRef(runID, target, attempt), run.behavior.latency()
}

func (s *RunStorage) Stats(runID string) StatsResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatsResponse{RunID: runID, PerTarget: map[string]int{}}
	run, ok := s.runs[runID]
	if !ok {
		return resp
	}

	for target, n := range run.attempts {
		resp.PerTarget[target] = n
		resp.Calls += n
	}
	resp.Succeeded = run.succeeded
	resp.Failed = run.failed
	return resp
}

func (s *RunStorage) run(runID string) *runState {
	run, ok := s.runs[runID]
	if !ok {
		run = &runState{attempts: make(map[string]int)}
		s.runs[runID] = run
	}
	return run
}

func shouldFail(b Behavior, runID, target string, attempt int) bool {
	if slices.Contains(b.FailTargets, target) {
		return true
	}
	if attempt <= b.FailFirstAttempts {
		return true
	}
	if b.FailPercent <= 0 {
		return false
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%d", runID, target, attempt)))
	return binary.BigEndian.Uint64(sum[:8])%100 < uint64(b.FailPercent)
}

func generateRef(runID, target string, attempt int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%d", runID, target, attempt)))
	return hex.EncodeToString(hash[:8])
}
