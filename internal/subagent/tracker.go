package subagent

import (
	"sync"
	"time"
)

// RunStatus is the lifecycle state of one tracked subagent run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusError     RunStatus = "error"
)

// RunRecord is a bookkeeping entry for one subagent spawn, for host
// introspection (e.g. a TUI's "active subagents" panel). It carries no
// disk-persistence behavior: durability of this bookkeeping is the host's
// concern, not this module's, per the Non-goals around persistence
// durability guarantees.
type RunRecord struct {
	AgentID    string
	RequesterID string
	AgentType  string
	Task       string
	Status     RunStatus
	Error      string
	StartedAt  time.Time
	EndedAt    time.Time
}

// Duration reports how long the run took once it has ended; zero before
// then.
func (r RunRecord) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Tracker is an in-memory ledger of subagent runs, keyed by agent id.
// Completed entries older than Retention are dropped lazily on the next
// Start call rather than by a background sweeper, since the Runner already
// calls Start for every spawn.
type Tracker struct {
	mu        sync.Mutex
	runs      map[string]*RunRecord
	retention time.Duration
}

// NewTracker builds an empty ledger. retention <= 0 disables pruning
// (entries live until the process exits or Delete is called explicitly).
func NewTracker(retention time.Duration) *Tracker {
	return &Tracker{runs: make(map[string]*RunRecord), retention: retention}
}

// Start records a new run as StatusRunning.
func (t *Tracker) Start(agentID, requesterID, agentType, task string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	t.runs[agentID] = &RunRecord{
		AgentID:     agentID,
		RequesterID: requesterID,
		AgentType:   agentType,
		Task:        task,
		Status:      StatusRunning,
		StartedAt:   time.Now(),
	}
}

// Complete marks a run finished successfully.
func (t *Tracker) Complete(agentID string, result Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.runs[agentID]
	if !ok {
		return
	}
	rec.Status = StatusCompleted
	rec.EndedAt = time.Now()
}

// Fail marks a run finished with an error.
func (t *Tracker) Fail(agentID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.runs[agentID]
	if !ok {
		return
	}
	rec.Status = StatusError
	rec.Error = err.Error()
	rec.EndedAt = time.Now()
}

// Get returns a copy of one run's record.
func (t *Tracker) Get(agentID string) (RunRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.runs[agentID]
	if !ok {
		return RunRecord{}, false
	}
	return *rec, true
}

// ListActive returns every run still in progress.
func (t *Tracker) ListActive() []RunRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []RunRecord
	for _, rec := range t.runs {
		if rec.Status == StatusRunning {
			out = append(out, *rec)
		}
	}
	return out
}

// Delete removes a run's record immediately.
func (t *Tracker) Delete(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, agentID)
}

// pruneLocked drops completed/errored runs older than retention. Caller
// must hold t.mu.
func (t *Tracker) pruneLocked() {
	if t.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-t.retention)
	for id, rec := range t.runs {
		if rec.Status != StatusRunning && rec.EndedAt.Before(cutoff) {
			delete(t.runs, id)
		}
	}
}
