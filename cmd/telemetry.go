package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/domainposture/posture-cli/internal/scan"
)

type telemetryRecord struct {
	Timestamp          time.Time `json:"timestamp"`
	Command            string    `json:"command"`
	Domain             string    `json:"domain"`
	ProbeCount         int       `json:"probe_count"`
	OKCount            int       `json:"ok_count"`
	ErrorCount         int       `json:"error_count"`
	IssueCount         int       `json:"issue_count"`
	SuccessRate        float64   `json:"success_rate"`
	DurationSeconds    float64   `json:"duration_seconds"`
	AvgSecondsPerProbe float64   `json:"avg_seconds_per_probe"`
}

func recordScanTelemetry(command, domain string, agg *scan.Aggregate, duration time.Duration) error {
	path, err := getTelemetryFilePath()
	if err != nil {
		return err
	}

	okCount, errorCount := summarizeProbeStatuses(agg.Probes)
	total := len(agg.Probes)

	successRate := 0.0
	if total > 0 {
		successRate = (float64(okCount) / float64(total)) * 100
	}

	avgDuration := 0.0
	if total > 0 {
		avgDuration = duration.Seconds() / float64(total)
	}

	record := telemetryRecord{
		Timestamp:          time.Now().UTC(),
		Command:            command,
		Domain:             domain,
		ProbeCount:         total,
		OKCount:            okCount,
		ErrorCount:         errorCount,
		IssueCount:         len(agg.Issues),
		SuccessRate:        successRate,
		DurationSeconds:    duration.Seconds(),
		AvgSecondsPerProbe: avgDuration,
	}

	return appendTelemetry(path, record)
}

func appendTelemetry(path string, record telemetryRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}

	return nil
}

func summarizeProbeStatuses(results []scan.Result) (okCount, errorCount int) {
	for _, r := range results {
		if r.Status == scan.StatusComplete {
			okCount++
		} else {
			errorCount++
		}
	}
	return okCount, errorCount
}

// loadTelemetryHistory returns the most recent records, oldest first. An
// optional domain narrows the history to one target.
func loadTelemetryHistory(domain string, limit int) ([]telemetryRecord, error) {
	path, err := getTelemetryFilePath()
	if err != nil {
		return nil, err
	}
	return loadTelemetryHistoryFrom(path, domain, limit)
}

func loadTelemetryHistoryFrom(path, domain string, limit int) ([]telemetryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	var records []telemetryRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec telemetryRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Skip corrupt lines rather than losing the whole history.
			continue
		}
		if domain != "" && rec.Domain != domain {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read telemetry file: %w", err)
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}
