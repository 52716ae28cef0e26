package cmd

import "fmt"

// WatchlistNotFoundError indicates a watchlist lookup failure.
type WatchlistNotFoundError struct {
	Name string
}

func (e *WatchlistNotFoundError) Error() string {
	return fmt.Sprintf("watchlist %s not found", e.Name)
}

// SeverityExceededError signals that a scan crossed the --fail-on threshold.
type SeverityExceededError struct {
	Domain    string
	Severity  string
	Threshold string
}

func (e *SeverityExceededError) Error() string {
	return fmt.Sprintf("scan of %s reached severity %s (threshold %s)", e.Domain, e.Severity, e.Threshold)
}
