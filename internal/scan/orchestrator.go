package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultProbeTimeout bounds probes whose Definition carries no Timeout and
// whose orchestrator was built without an explicit default.
const DefaultProbeTimeout = 10 * time.Second

// ProgressFunc receives a snapshot of every probe's state. Snapshots always
// cover the full registry, with unsettled probes shown as running, and are
// delivered serially: once per batch start and once per probe settlement.
type ProgressFunc func(snapshot []Result)

// Config carries orchestrator construction options.
type Config struct {
	// DefaultTimeout applies to probes that do not declare their own
	// budget. Zero selects DefaultProbeTimeout.
	DefaultTimeout time.Duration

	// Logger is optional; nil means no logging.
	Logger *zap.Logger
}

// Orchestrator drives the registered probes through concurrent scans. Two
// concurrent batches share nothing but the read-only registry, so scans of
// different domains, or even the same domain, never interfere.
type Orchestrator struct {
	registry *Registry
	logger   *zap.Logger

	mu             sync.RWMutex
	defaultTimeout time.Duration
}

// NewOrchestrator builds an orchestrator over a registry.
func NewOrchestrator(registry *Registry, cfg Config) *Orchestrator {
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:       registry,
		logger:         logger,
		defaultTimeout: timeout,
	}
}

// Definitions exposes the registry's probe metadata in registry order.
func (o *Orchestrator) Definitions() []Definition {
	return o.registry.Definitions()
}

// DefaultTimeout returns the current fallback probe budget.
func (o *Orchestrator) DefaultTimeout() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.defaultTimeout
}

// SetDefaultTimeout replaces the fallback probe budget. Non-positive values
// are rejected and leave the previous value in effect. Probes with their own
// Timeout are unaffected, and batches already running keep the budget they
// started with.
func (o *Orchestrator) SetDefaultTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidTimeout, d)
	}
	o.mu.Lock()
	o.defaultTimeout = d
	o.mu.Unlock()
	return nil
}

// batch tracks the mutable state of one RunAll invocation. The mutex guards
// the result slots and serializes progress callbacks so observers see
// snapshots in settlement order.
type batch struct {
	mu         sync.Mutex
	results    []Result
	onProgress ProgressFunc
}

func (b *batch) snapshotLocked() []Result {
	snapshot := make([]Result, len(b.results))
	for i, r := range b.results {
		snapshot[i] = r.clone()
	}
	return snapshot
}

func (b *batch) notifyLocked() {
	if b.onProgress == nil {
		return
	}
	b.onProgress(b.snapshotLocked())
}

// RunAll scans a domain with every registered probe concurrently. The raw
// domain is normalized (trimmed, lower-cased) before any probe sees it.
//
// RunAll returns only after every probe has reached a terminal state. Probe
// failures and timeouts are contained at the probe boundary and recorded in
// the aggregate; they never abort the batch or a sibling probe, and RunAll
// itself never fails. onProgress, when non-nil, fires once at batch start
// with every probe running and once per settlement.
func (o *Orchestrator) RunAll(ctx context.Context, domain string, onProgress ProgressFunc) *Aggregate {
	normalized := NormalizeDomain(domain)
	defaultTimeout := o.DefaultTimeout()
	probes := o.registry.Probes()

	o.logger.Debug("starting scan batch",
		zap.String("domain", normalized),
		zap.Int("probes", len(probes)))

	b := &batch{
		results:    make([]Result, len(probes)),
		onProgress: onProgress,
	}

	started := time.Now()
	b.mu.Lock()
	for i, p := range probes {
		b.results[i] = newResult(p.Definition())
		b.results[i].start(started)
	}
	b.notifyLocked()
	b.mu.Unlock()

	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func(slot int, probe Probe) {
			defer wg.Done()
			outcome, err := o.runProbe(ctx, probe, normalized, defaultTimeout)
			settled := time.Now()

			b.mu.Lock()
			if err != nil {
				b.results[slot].fail(err, settled)
			} else {
				b.results[slot].complete(outcome, probe.Definition().DataSource, settled)
			}
			b.notifyLocked()
			b.mu.Unlock()
		}(i, p)
	}
	wg.Wait()

	agg := &Aggregate{
		Domain:    normalized,
		Timestamp: time.Now(),
		Probes:    b.results,
		Issues:    flattenIssues(b.results),
	}

	o.logger.Debug("scan batch finished",
		zap.String("domain", normalized),
		zap.Int("issues", len(agg.Issues)),
		zap.Duration("elapsed", time.Since(started)))

	return agg
}

// RunOne executes a single probe by id outside any batch, with the same
// timeout and failure semantics as RunAll. It returns ErrProbeNotFound when
// the id is not registered; probe failures are data, not errors.
func (o *Orchestrator) RunOne(ctx context.Context, id, domain string) (Result, error) {
	probe, ok := o.registry.Lookup(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrProbeNotFound, id)
	}

	normalized := NormalizeDomain(domain)
	result := newResult(probe.Definition())
	result.start(time.Now())

	outcome, err := o.runProbe(ctx, probe, normalized, o.DefaultTimeout())
	settled := time.Now()
	if err != nil {
		result.fail(err, settled)
	} else {
		result.complete(outcome, probe.Definition().DataSource, settled)
	}
	return result, nil
}

type probeReturn struct {
	outcome Outcome
	err     error
}

// runProbe races one probe against its budget. When the deadline wins, the
// probe's eventual return is abandoned: the goroutine delivers into a
// buffered channel nobody drains, so its outcome stops affecting the batch.
func (o *Orchestrator) runProbe(ctx context.Context, probe Probe, domain string, defaultTimeout time.Duration) (Outcome, error) {
	def := probe.Definition()
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan probeReturn, 1)
	go func() {
		outcome, err := probe.Run(runCtx, domain)
		ch <- probeReturn{outcome: outcome, err: err}
	}()

	select {
	case ret := <-ch:
		if ret.err != nil {
			// A probe that observed the deadline itself still reports
			// as a timeout, not as its own failure.
			if errors.Is(ret.err, context.DeadlineExceeded) && runCtx.Err() != nil {
				return Outcome{}, &TimeoutError{Label: def.Label, Limit: timeout}
			}
			o.logger.Debug("probe failed",
				zap.String("probe", def.ID),
				zap.String("domain", domain),
				zap.Error(ret.err))
			return Outcome{}, ret.err
		}
		return ret.outcome, nil
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			o.logger.Debug("probe timed out",
				zap.String("probe", def.ID),
				zap.String("domain", domain),
				zap.Duration("limit", timeout))
			return Outcome{}, &TimeoutError{Label: def.Label, Limit: timeout}
		}
		return Outcome{}, runCtx.Err()
	}
}

// flattenIssues concatenates completed probes' issues in registry order,
// preserving each probe's own ordering. Errored probes contribute nothing.
func flattenIssues(results []Result) []string {
	issues := []string{}
	for _, r := range results {
		if r.Status != StatusComplete {
			continue
		}
		issues = append(issues, r.Issues...)
	}
	return issues
}
