// Package interpret turns settled probe results into severities, messages
// and recommendations. Interpretation is pure and deterministic: a result
// maps to the same interpretation whether it came fresh from a scan or was
// loaded from a stored aggregate, and interpreting never mutates the result.
package interpret

import (
	"github.com/domainposture/posture-cli/internal/probes"
	"github.com/domainposture/posture-cli/internal/scan"
)

// Severity grades an interpreted result.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
)

// Rank orders severities worst-first, for sorting and worst-of reduction.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityError:
		return 1
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 3
	default:
		return 4
	}
}

// Interpretation is the human-facing reading of one probe result.
type Interpretation struct {
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// Classifier maps one probe result to an interpretation.
type Classifier func(scan.Result) Interpretation

// Interpreter dispatches results to per-probe classifiers, with a generic
// fallback for probe ids it does not recognize.
type Interpreter struct {
	classifiers map[string]Classifier
	fallback    Classifier
}

// NewInterpreter returns an interpreter covering the built-in probes.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		classifiers: map[string]Classifier{
			probes.IDDNS:          classifyDNS,
			probes.IDEmailAuth:    classifyEmailAuth,
			probes.IDCertificates: classifyCertificates,
			probes.IDRegistration: classifyRegistration,
			probes.IDHeaders:      classifyHeaders,
		},
		fallback: classifyGeneric,
	}
}

// Interpret classifies one result. Errored probes read the same regardless
// of id: the probe could not complete, so the result carries no posture
// signal, only a reason to retry.
func (i *Interpreter) Interpret(r scan.Result) Interpretation {
	if r.Status == scan.StatusError {
		message := r.Err
		if message == "" {
			message = "probe failed"
		}
		return Interpretation{
			Severity:       SeverityError,
			Message:        message,
			Recommendation: "retry the scan; if the failure persists, check connectivity to the probe's data source",
		}
	}
	if classify, ok := i.classifiers[r.ID]; ok {
		return classify(r)
	}
	return i.fallback(r)
}

// Overall reduces a result set to its worst severity. An empty set reads as
// success.
func (i *Interpreter) Overall(results []scan.Result) Severity {
	worst := SeveritySuccess
	for _, r := range results {
		if s := i.Interpret(r).Severity; s.Rank() < worst.Rank() {
			worst = s
		}
	}
	return worst
}
