// Package store persists scan aggregates as JSON files, one per domain.
//
// The layout is deliberately flat: <baseDir>/<domain>.json holds the most
// recent aggregate for that domain and is overwritten wholesale on the next
// scan. A <domain>.json.sha256 sidecar records a checksum of the payload so
// tampering or truncation can be detected before a stale report is trusted.
package store

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/domainposture/posture-cli/internal/scan"
)

var (
	// ErrAggregateNotFound is returned when no stored aggregate exists for
	// the requested domain.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrChecksumMismatch is returned by Verify when the stored payload no
	// longer matches its recorded checksum.
	ErrChecksumMismatch = errors.New("aggregate checksum mismatch")

	// ErrPathEscape is returned when a resolved file path would land
	// outside the store's base directory.
	ErrPathEscape = errors.New("path escapes base directory")
)

const (
	aggregateExt = ".json"
	checksumExt  = ".json.sha256"

	fileMode = 0o644
	dirMode  = 0o755
)

// AggregateStore reads and writes scan aggregates under a single base
// directory. It is safe for concurrent use.
type AggregateStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewAggregateStore creates the base directory if needed and returns a store
// rooted at it.
func NewAggregateStore(baseDir string) (*AggregateStore, error) {
	if baseDir == "" {
		return nil, errors.New("base directory cannot be empty")
	}
	if err := os.MkdirAll(baseDir, dirMode); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &AggregateStore{baseDir: baseDir}, nil
}

// BaseDir returns the directory the store writes into.
func (s *AggregateStore) BaseDir() string {
	return s.baseDir
}

// Save writes the aggregate for its domain, replacing any previous one, and
// refreshes the checksum sidecar.
func (s *AggregateStore) Save(agg *scan.Aggregate) error {
	if agg == nil {
		return errors.New("cannot save nil aggregate")
	}
	domain, err := scan.SanitizeDomain(agg.Domain)
	if err != nil {
		return fmt.Errorf("invalid aggregate domain: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.filePath(domain + aggregateExt)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(toDTO(agg), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling aggregate: %w", err)
	}
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("writing aggregate file: %w", err)
	}
	return s.writeChecksum(domain, data)
}

// Load reads the most recent aggregate stored for the domain. Older files
// written by hand or by earlier versions may omit the probes or issues
// arrays; those load as empty, never as an error.
func (s *AggregateStore) Load(domain string) (*scan.Aggregate, error) {
	clean, err := scan.SanitizeDomain(domain)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.filePath(clean + aggregateExt)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrAggregateNotFound, clean)
		}
		return nil, fmt.Errorf("reading aggregate file: %w", err)
	}

	var dto aggregateDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("parsing aggregate file %s: %w", filepath.Base(path), err)
	}
	return fromDTO(dto)
}

// List returns the domains with a stored aggregate, sorted alphabetically.
func (s *AggregateStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading store directory: %w", err)
	}

	domains := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, checksumExt) || !strings.HasSuffix(name, aggregateExt) {
			continue
		}
		domains = append(domains, strings.TrimSuffix(name, aggregateExt))
	}
	sort.Strings(domains)
	return domains, nil
}

// Delete removes the stored aggregate and its checksum sidecar.
func (s *AggregateStore) Delete(domain string) error {
	clean, err := scan.SanitizeDomain(domain)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.filePath(clean + aggregateExt)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrAggregateNotFound, clean)
		}
		return fmt.Errorf("deleting aggregate file: %w", err)
	}
	if sidecar, err := s.filePath(clean + checksumExt); err == nil {
		_ = os.Remove(sidecar)
	}
	return nil
}

// Verify recomputes the checksum of the stored aggregate and compares it to
// the sidecar. A missing sidecar counts as a mismatch: the payload can no
// longer be vouched for.
func (s *AggregateStore) Verify(domain string) error {
	clean, err := scan.SanitizeDomain(domain)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.filePath(clean + aggregateExt)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrAggregateNotFound, clean)
		}
		return fmt.Errorf("reading aggregate file: %w", err)
	}

	sidecar, err := s.filePath(clean + checksumExt)
	if err != nil {
		return err
	}
	recorded, err := os.ReadFile(sidecar)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: no checksum recorded for %s", ErrChecksumMismatch, clean)
		}
		return fmt.Errorf("reading checksum file: %w", err)
	}

	want, _, _ := strings.Cut(strings.TrimSpace(string(recorded)), " ")
	got := fmt.Sprintf("%x", sha256.Sum256(data))
	if want != got {
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, clean)
	}
	return nil
}

// writeChecksum records the payload's sha256 in shasum's two-space format so
// `sha256sum -c` can verify store files directly. Caller holds the lock.
func (s *AggregateStore) writeChecksum(domain string, data []byte) error {
	path, err := s.filePath(domain + checksumExt)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%x  %s\n", sha256.Sum256(data), domain+aggregateExt)
	if err := os.WriteFile(path, []byte(line), fileMode); err != nil {
		return fmt.Errorf("writing checksum file: %w", err)
	}
	return nil
}

// filePath resolves a store-relative name to an absolute path, rejecting
// anything that would escape the base directory. SanitizeDomain already
// refuses separators in domain names; this guard backstops it for any
// caller-supplied name.
func (s *AggregateStore) filePath(name string) (string, error) {
	base, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("resolving store directory: %w", err)
	}
	target, err := filepath.Abs(filepath.Join(base, name))
	if err != nil {
		return "", fmt.Errorf("resolving file path: %w", err)
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}
	return target, nil
}

// aggregateDTO is the on-disk shape of an aggregate. Timestamps are RFC 3339
// strings and probe data is kept as raw JSON so a stored report round-trips
// byte-for-byte through tools that do not know the probe's concrete types.
type aggregateDTO struct {
	Domain    string      `json:"domain"`
	Timestamp string      `json:"timestamp"`
	Probes    []resultDTO `json:"probes"`
	Issues    []string    `json:"issues"`
}

type resultDTO struct {
	ID         string          `json:"id"`
	Label      string          `json:"label"`
	Status     string          `json:"status"`
	StartedAt  string          `json:"started_at,omitempty"`
	FinishedAt string          `json:"finished_at,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	Issues     []string        `json:"issues,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	DataSource *dataSourceDTO  `json:"data_source,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type dataSourceDTO struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func toDTO(agg *scan.Aggregate) aggregateDTO {
	dto := aggregateDTO{
		Domain:    agg.Domain,
		Timestamp: agg.Timestamp.UTC().Format(time.RFC3339),
		Probes:    make([]resultDTO, 0, len(agg.Probes)),
		Issues:    append([]string{}, agg.Issues...),
	}
	for _, r := range agg.Probes {
		dto.Probes = append(dto.Probes, resultToDTO(r))
	}
	return dto
}

func resultToDTO(r scan.Result) resultDTO {
	dto := resultDTO{
		ID:      r.ID,
		Label:   r.Label,
		Status:  string(r.Status),
		Summary: r.Summary,
		Issues:  append([]string{}, r.Issues...),
		Error:   r.Err,
	}
	if r.StartedAt != nil {
		dto.StartedAt = r.StartedAt.UTC().Format(time.RFC3339)
	}
	if r.FinishedAt != nil {
		dto.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	if r.Data != nil {
		if raw, err := json.Marshal(r.Data); err == nil {
			dto.Data = raw
		}
	}
	if r.DataSource != nil {
		dto.DataSource = &dataSourceDTO{Name: r.DataSource.Name, URL: r.DataSource.URL}
	}
	return dto
}

func fromDTO(dto aggregateDTO) (*scan.Aggregate, error) {
	agg := &scan.Aggregate{
		Domain: dto.Domain,
		Probes: make([]scan.Result, 0, len(dto.Probes)),
		Issues: dto.Issues,
	}
	if agg.Issues == nil {
		agg.Issues = []string{}
	}
	if dto.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, dto.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("parsing aggregate timestamp: %w", err)
		}
		agg.Timestamp = ts
	}
	for _, p := range dto.Probes {
		result, err := resultFromDTO(p)
		if err != nil {
			return nil, err
		}
		agg.Probes = append(agg.Probes, result)
	}
	return agg, nil
}

func resultFromDTO(dto resultDTO) (scan.Result, error) {
	result := scan.Result{
		ID:      dto.ID,
		Label:   dto.Label,
		Status:  scan.Status(dto.Status),
		Summary: dto.Summary,
		Issues:  dto.Issues,
		Err:     dto.Error,
	}
	if result.Issues == nil {
		result.Issues = []string{}
	}
	if dto.StartedAt != "" {
		ts, err := time.Parse(time.RFC3339, dto.StartedAt)
		if err != nil {
			return scan.Result{}, fmt.Errorf("parsing probe %s start time: %w", dto.ID, err)
		}
		result.StartedAt = &ts
	}
	if dto.FinishedAt != "" {
		ts, err := time.Parse(time.RFC3339, dto.FinishedAt)
		if err != nil {
			return scan.Result{}, fmt.Errorf("parsing probe %s finish time: %w", dto.ID, err)
		}
		result.FinishedAt = &ts
	}
	if len(dto.Data) > 0 {
		var data any
		if err := json.Unmarshal(dto.Data, &data); err != nil {
			return scan.Result{}, fmt.Errorf("parsing probe %s data: %w", dto.ID, err)
		}
		result.Data = data
	}
	if dto.DataSource != nil {
		result.DataSource = &scan.DataSource{Name: dto.DataSource.Name, URL: dto.DataSource.URL}
	}
	return result, nil
}
