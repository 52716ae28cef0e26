package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// dataDirEnvVar overrides the platform data directory when set. Used by
// tests and containerized deployments.
const dataDirEnvVar = "POSTURE_DATA_DIR"

// getDataDir returns the appropriate data directory for the current OS
// following XDG Base Directory specification on Linux/Unix
func getDataDir() (string, error) {
	if override := os.Getenv(dataDirEnvVar); override != "" {
		if err := os.MkdirAll(override, 0o755); err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
		return override, nil
	}

	var baseDir string

	switch runtime.GOOS {
	case "windows":
		// Windows: %LOCALAPPDATA%\posture-cli
		baseDir = os.Getenv("LOCALAPPDATA")
		if baseDir == "" {
			baseDir = os.Getenv("APPDATA")
		}
		if baseDir == "" {
			return "", fmt.Errorf("could not determine Windows data directory")
		}
		baseDir = filepath.Join(baseDir, "posture-cli")

	case "darwin":
		// macOS: ~/Library/Application Support/posture-cli
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support", "posture-cli")

	default:
		// Linux/Unix: Follow XDG Base Directory specification
		// Priority: $XDG_DATA_HOME/posture-cli > ~/.local/share/posture-cli
		xdgDataHome := os.Getenv("XDG_DATA_HOME")
		if xdgDataHome != "" {
			baseDir = filepath.Join(xdgDataHome, "posture-cli")
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("could not determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".local", "share", "posture-cli")
		}
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return baseDir, nil
}

// getScansDir returns the directory where scan aggregates are persisted.
func getScansDir() (string, error) {
	dataDir, err := getDataDir()
	if err != nil {
		return "", err
	}

	scansDir := filepath.Join(dataDir, "scans")

	// Create directory if it doesn't exist
	if err := os.MkdirAll(scansDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scans directory: %w", err)
	}

	return scansDir, nil
}

// getWatchlistsDir returns the directory where watchlists are stored.
func getWatchlistsDir() (string, error) {
	dataDir, err := getDataDir()
	if err != nil {
		return "", err
	}

	watchDir := filepath.Join(dataDir, "watchlists")

	// Create directory if it doesn't exist
	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create watchlists directory: %w", err)
	}

	return watchDir, nil
}

// getReportsDir returns the directory where generated reports are written.
func getReportsDir() (string, error) {
	dataDir, err := getDataDir()
	if err != nil {
		return "", err
	}

	reportsDir := filepath.Join(dataDir, "reports")

	// Create directory if it doesn't exist
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	return reportsDir, nil
}

// getTelemetryFilePath returns the path to the telemetry log.
func getTelemetryFilePath() (string, error) {
	dataDir, err := getDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "telemetry.jsonl"), nil
}
