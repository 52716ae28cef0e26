package scan

import (
	"errors"
	"fmt"
	"time"
)

// Orchestrator errors
var (
	ErrProbeNotFound   = errors.New("probe not found")
	ErrInvalidTimeout  = errors.New("timeout must be a positive duration")
	ErrInvalidDomain   = errors.New("invalid domain")
	ErrInvalidRegistry = errors.New("invalid probe registry")
)

// TimeoutError reports a probe that did not settle within its budget. The
// message names the probe label and the configured limit so operators can
// tell a slow upstream from a broken probe.
type TimeoutError struct {
	Label string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Label, e.Limit)
}

// DomainError reports a target that failed sanitization.
type DomainError struct {
	Domain string
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("invalid domain %q: %s", e.Domain, e.Reason)
}

// Unwrap ties every DomainError to ErrInvalidDomain so callers can match
// sanitization failures with errors.Is without inspecting the reason.
func (e *DomainError) Unwrap() error {
	return ErrInvalidDomain
}
