// Package probes implements the built-in posture checks: DNS hygiene,
// email authentication (SPF/DKIM/DMARC), certificate-transparency exposure,
// domain registration status via RDAP, and HTTP security-header grading.
//
// Each probe satisfies scan.Probe and keeps its upstream specifics to
// itself: the orchestrator only sees Definition metadata and an Outcome.
// Probes treat an empty upstream answer as a successful outcome and reserve
// errors for genuine inability to complete the check.
package probes
