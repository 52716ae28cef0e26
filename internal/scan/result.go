package scan

import "time"

// Status represents a probe's progress through one scan.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Result is the orchestrator-owned record of one probe's execution within one
// scan. Exactly one Result exists per registered probe per scan; a re-scan
// builds an entirely new set.
type Result struct {
	ID         string      `json:"id"`
	Label      string      `json:"label"`
	Status     Status      `json:"status"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Summary    string      `json:"summary,omitempty"`
	Issues     []string    `json:"issues,omitempty"`
	Data       any         `json:"data,omitempty"`
	DataSource *DataSource `json:"data_source,omitempty"`
	Err        string      `json:"error,omitempty"`
}

func newResult(def Definition) Result {
	return Result{ID: def.ID, Label: def.Label, Status: StatusPending}
}

// start moves pending -> running. Starting an already started or settled
// result is a no-op.
func (r *Result) start(now time.Time) {
	if r.Status != StatusPending {
		return
	}
	r.Status = StatusRunning
	r.StartedAt = &now
}

// complete settles the result successfully. Terminal states never change.
func (r *Result) complete(out Outcome, src *DataSource, now time.Time) {
	if r.Status.Terminal() {
		return
	}
	r.Status = StatusComplete
	r.Summary = out.Summary
	r.Issues = append([]string(nil), out.Issues...)
	r.Data = out.Data
	r.DataSource = src
	r.FinishedAt = &now
}

// fail settles the result with a failure reason. Terminal states never change.
func (r *Result) fail(err error, now time.Time) {
	if r.Status.Terminal() {
		return
	}
	r.Status = StatusError
	r.Err = err.Error()
	r.FinishedAt = &now
}

// clone returns a copy that is safe to hand to progress observers while the
// batch is still mutating its own slots. Issue slices are copied; timestamps
// are write-once and can be shared.
func (r Result) clone() Result {
	c := r
	if r.Issues != nil {
		c.Issues = append([]string(nil), r.Issues...)
	}
	return c
}

// Aggregate is the consolidated outcome of one scan batch. It is immutable
// once returned; the next scan of the same domain supersedes it rather than
// merging into it.
type Aggregate struct {
	// Domain is the normalized (trimmed, lower-cased) target.
	Domain    string    `json:"domain"`
	Timestamp time.Time `json:"timestamp"`

	// Probes holds one Result per registered probe, in registry order,
	// regardless of how many probes failed or timed out.
	Probes []Result `json:"probes"`

	// Issues is the order-preserving flattening of every completed probe's
	// issues. Probes that errored, including timeouts, contribute nothing.
	Issues []string `json:"issues"`
}
