// Package gate keeps scans polite: a token-bucket budget on how often scans
// may start, and a short-lived cache of recent aggregates so repeat lookups
// of the same domain do not hit the upstream data sources at all. The
// orchestrator knows nothing about either; callers check the gate first.
package gate

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultScansPerMinute bounds how many scans may start per minute.
	// Each scan fans out to several public services (crt.sh, RDAP, DNS);
	// the budget keeps a busy operator from hammering them.
	DefaultScansPerMinute = 10

	// DefaultBurst allows short bursts above the sustained rate.
	DefaultBurst = 3
)

// Gate applies the scan-start budget.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate builds a gate allowing perMinute sustained scan starts with the
// given burst headroom. Non-positive arguments select the defaults.
func NewGate(perMinute, burst int) *Gate {
	if perMinute <= 0 {
		perMinute = DefaultScansPerMinute
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Gate{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

// Decision reports whether a scan may start now, and if not, how long to
// wait before asking again.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the wait up to whole seconds, the shape wanted
// by Retry-After headers and terminal messages. Zero when allowed.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed || d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// CheckRateLimit consumes one scan slot when available. When the budget is
// exhausted, the reservation is returned unused and the decision carries
// the wait until the next slot frees up.
func (g *Gate) CheckRateLimit() Decision {
	r := g.limiter.Reserve()
	if !r.OK() {
		return Decision{Allowed: false, RetryAfter: time.Minute}
	}
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return Decision{Allowed: false, RetryAfter: delay}
	}
	return Decision{Allowed: true}
}
