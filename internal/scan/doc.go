// Package scan defines the core posture-cli scanning framework.
//
// Architecture overview:
//
//   - Probes implement the Probe interface (Definition + Run) for one
//     independent check against a domain, such as DNS hygiene or
//     certificate-transparency exposure. Probe implementations live in
//     internal/probes; this package only knows their contract.
//   - Registry holds the fixed probe set in insertion order. It is built
//     once at startup and read-only afterwards, so concurrent scans share
//     it without locking.
//   - Orchestrator drives a batch: it launches every registered probe
//     concurrently, races each one against its timeout, records guarded
//     state transitions (pending -> running -> complete|error), and streams
//     full-registry snapshots to an optional progress callback.
//   - Aggregate is the consolidated outcome of one batch: per-probe results
//     in registry order plus a flattened issue list.
//
// A probe failure or timeout degrades that probe's row to an error result;
// it never aborts the batch or any sibling probe.
package scan
