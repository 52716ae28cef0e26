package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/domainposture/posture-cli/internal/gate"
	"github.com/domainposture/posture-cli/internal/scan"
)

// Scan job lifecycle states.
const (
	ScanStatusPending = "pending"
	ScanStatusRunning = "running"
	ScanStatusDone    = "done"
	ScanStatusError   = "error"
)

const defaultMaxJobs = 100

// ScanJob tracks one asynchronous scan through the API. Progress always
// holds the latest full snapshot, one entry per registered probe.
type ScanJob struct {
	ID         string          `json:"id"`
	Domain     string          `json:"domain"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`
	Progress   []scan.Result   `json:"progress,omitempty"`
	Aggregate  *scan.Aggregate `json:"aggregate,omitempty"`
}

func (j *ScanJob) terminal() bool {
	return j.Status == ScanStatusDone || j.Status == ScanStatusError
}

// ManagerConfig wires the scan manager's collaborators. Store and Cache are
// optional; when set, every finished scan is persisted and cached.
type ManagerConfig struct {
	Store   AggregateStore
	Cache   *gate.Cache
	Logger  *zap.Logger
	MaxJobs int
}

// ScanManager runs scans in the background and retains a bounded window of
// recent jobs for the API to report on. One domain has at most one scan in
// flight; repeated requests return the running job instead of piling up.
type ScanManager struct {
	mu          sync.RWMutex
	jobs        map[string]*ScanJob
	inflight    map[string]string // normalized domain -> job ID
	subscribers map[chan ScanJob]struct{}
	maxJobs     int

	orch   *scan.Orchestrator
	store  AggregateStore
	cache  *gate.Cache
	logger *zap.Logger
}

// NewScanManager returns a manager executing scans through the orchestrator.
func NewScanManager(orch *scan.Orchestrator, cfg ManagerConfig) *ScanManager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = defaultMaxJobs
	}
	return &ScanManager{
		jobs:        make(map[string]*ScanJob),
		inflight:    make(map[string]string),
		subscribers: make(map[chan ScanJob]struct{}),
		maxJobs:     maxJobs,
		orch:        orch,
		store:       cfg.Store,
		cache:       cfg.Cache,
		logger:      logger,
	}
}

// Start launches a background scan of the domain and returns its job. When a
// scan of the same domain is already in flight, that job is returned instead
// of starting another.
func (m *ScanManager) Start(domain string) (*ScanJob, error) {
	normalized, err := scan.SanitizeDomain(domain)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if id, ok := m.inflight[normalized]; ok {
		if job, ok := m.jobs[id]; ok {
			snapshot := *job
			m.mu.Unlock()
			return &snapshot, nil
		}
	}
	job := &ScanJob{
		ID:        newID("scan"),
		Domain:    normalized,
		Status:    ScanStatusPending,
		CreatedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	m.inflight[normalized] = job.ID
	m.pruneLocked()
	m.broadcastLocked(*job)
	snapshot := *job
	m.mu.Unlock()

	go m.run(job.ID, normalized)
	return &snapshot, nil
}

// run executes the scan on a background context so an API client hanging up
// does not abort probes already under way.
func (m *ScanManager) run(id, domain string) {
	started := time.Now()
	m.update(id, func(j *ScanJob) {
		j.Status = ScanStatusRunning
		j.StartedAt = &started
	})

	agg := m.orch.RunAll(context.Background(), domain, func(results []scan.Result) {
		m.update(id, func(j *ScanJob) {
			j.Progress = results
		})
	})

	if m.store != nil {
		if err := m.store.Save(agg); err != nil {
			m.logger.Warn("failed to persist scan aggregate",
				zap.String("domain", domain),
				zap.Error(err))
		}
	}
	if m.cache != nil {
		m.cache.Set(domain, agg)
	}

	finished := time.Now()
	m.update(id, func(j *ScanJob) {
		j.Status = ScanStatusDone
		j.FinishedAt = &finished
		j.Aggregate = agg
	})

	m.mu.Lock()
	delete(m.inflight, domain)
	m.mu.Unlock()
}

// Get returns a copy of the job, or nil when the ID is unknown.
func (m *ScanManager) Get(id string) *ScanJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[id]; ok {
		snapshot := *job
		return &snapshot
	}
	return nil
}

// List returns up to limit jobs, newest first.
func (m *ScanManager) List(limit int) []ScanJob {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]ScanJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

// Subscribe registers for job updates. The returned function unsubscribes
// and closes the channel; it is safe to call more than once.
func (m *ScanManager) Subscribe() (chan ScanJob, func()) {
	ch := make(chan ScanJob, 16)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// update applies a mutation under the lock and broadcasts the new state.
func (m *ScanManager) update(id string, mutate func(*ScanJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	mutate(job)
	m.broadcastLocked(*job)
}

// broadcastLocked sends to every subscriber without blocking; a subscriber
// that cannot keep up misses intermediate snapshots, never final states by
// design of the buffer.
func (m *ScanManager) broadcastLocked(job ScanJob) {
	for ch := range m.subscribers {
		select {
		case ch <- job:
		default:
		}
	}
}

// pruneLocked drops the oldest finished jobs once the retention window is
// exceeded. Jobs still in flight are never pruned.
func (m *ScanManager) pruneLocked() {
	if len(m.jobs) <= m.maxJobs {
		return
	}

	type finishedJob struct {
		id string
		at time.Time
	}
	finished := make([]finishedJob, 0, len(m.jobs))
	for id, job := range m.jobs {
		if !job.terminal() {
			continue
		}
		at := job.CreatedAt
		if job.FinishedAt != nil {
			at = *job.FinishedAt
		}
		finished = append(finished, finishedJob{id: id, at: at})
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].at.Before(finished[j].at)
	})

	excess := len(m.jobs) - m.maxJobs
	for i := 0; i < excess && i < len(finished); i++ {
		delete(m.jobs, finished[i].id)
	}
}

// newID returns a random, non-guessable identifier with a type prefix.
func newID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}
