package scan

import (
	"context"
	"time"
)

// DataSource attributes a probe's findings to the upstream service that
// produced them, for display next to the result.
type DataSource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Definition is the static metadata a probe carries for its whole lifetime.
// Definitions are registered once at startup and never mutated.
type Definition struct {
	// ID is a stable short identifier, unique across the registry.
	ID          string
	Label       string
	Description string

	// Timeout bounds a single run of this probe. Zero means the
	// orchestrator's default budget applies.
	Timeout time.Duration

	DataSource *DataSource
}

// Outcome is what a probe returns when it completes on its own. An empty
// upstream answer is a successful Outcome with zero issues or a single
// informational one, never an error.
type Outcome struct {
	Summary string
	Issues  []string
	Data    any
}

// Probe is one independent network check against a domain.
//
// Implementations must reserve returned errors for genuine inability to
// complete (network failure, malformed upstream response), must be
// idempotent and free of shared state with other probes, and must sanitize
// the target before building any outbound request from it.
type Probe interface {
	Definition() Definition
	Run(ctx context.Context, domain string) (Outcome, error)
}

// WithTimeout wraps a probe so its definition reports the given timeout
// instead of its own. The orchestrator reads each probe's budget from the
// definition at batch start, so the override applies to every subsequent
// run. The wrapped probe is untouched.
func WithTimeout(p Probe, d time.Duration) Probe {
	return timeoutOverride{Probe: p, timeout: d}
}

type timeoutOverride struct {
	Probe
	timeout time.Duration
}

func (t timeoutOverride) Definition() Definition {
	def := t.Probe.Definition()
	def.Timeout = t.timeout
	return def
}
