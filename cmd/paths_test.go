package cmd

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGetDataDirRespectsOverride(t *testing.T) {
	dir := useTempDataDir(t)

	dataDir, err := getDataDir()
	if err != nil {
		t.Fatalf("getDataDir() failed: %v", err)
	}

	if dataDir != dir {
		t.Errorf("Expected override directory %s, got: %s", dir, dataDir)
	}

	// Verify directory was created
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		t.Errorf("Data directory was not created: %s", dataDir)
	}
}

func TestGetDataDirPlatformDefault(t *testing.T) {
	t.Setenv(dataDirEnvVar, "")

	dataDir, err := getDataDir()
	if err != nil {
		t.Fatalf("getDataDir() failed: %v", err)
	}

	if dataDir == "" {
		t.Error("Expected non-empty data directory")
	}

	// Verify it contains "posture-cli"
	if !strings.Contains(dataDir, "posture-cli") {
		t.Errorf("Expected data directory to contain 'posture-cli', got: %s", dataDir)
	}

	// Verify OS-specific path
	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(dataDir, "posture-cli") {
			t.Errorf("Windows: Expected path to contain posture-cli, got: %s", dataDir)
		}
	case "darwin":
		if !strings.Contains(dataDir, "Library") {
			t.Errorf("macOS: Expected path to contain Library, got: %s", dataDir)
		}
	default: // Linux/Unix
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			if !strings.HasPrefix(dataDir, xdg) {
				t.Errorf("Linux: Expected path under XDG_DATA_HOME %s, got: %s", xdg, dataDir)
			}
		} else {
			homeDir, _ := os.UserHomeDir()
			expectedPrefix := filepath.Join(homeDir, ".local", "share")
			if !strings.HasPrefix(dataDir, expectedPrefix) {
				t.Errorf("Linux: Expected path to start with %s, got: %s", expectedPrefix, dataDir)
			}
		}
	}
}

func TestGetScansDir(t *testing.T) {
	useTempDataDir(t)

	scansDir, err := getScansDir()
	if err != nil {
		t.Fatalf("getScansDir() failed: %v", err)
	}

	if !strings.HasSuffix(scansDir, "scans") {
		t.Errorf("Expected path to end with scans, got: %s", scansDir)
	}

	// Verify directory was created
	if _, err := os.Stat(scansDir); os.IsNotExist(err) {
		t.Errorf("Scans directory was not created: %s", scansDir)
	}
}

func TestGetWatchlistsDir(t *testing.T) {
	useTempDataDir(t)

	watchDir, err := getWatchlistsDir()
	if err != nil {
		t.Fatalf("getWatchlistsDir() failed: %v", err)
	}

	if !strings.HasSuffix(watchDir, "watchlists") {
		t.Errorf("Expected path to end with watchlists, got: %s", watchDir)
	}

	if _, err := os.Stat(watchDir); os.IsNotExist(err) {
		t.Errorf("Watchlists directory was not created: %s", watchDir)
	}
}

func TestGetReportsDir(t *testing.T) {
	useTempDataDir(t)

	reportsDir, err := getReportsDir()
	if err != nil {
		t.Fatalf("getReportsDir() failed: %v", err)
	}

	if !strings.HasSuffix(reportsDir, "reports") {
		t.Errorf("Expected path to end with reports, got: %s", reportsDir)
	}

	if _, err := os.Stat(reportsDir); os.IsNotExist(err) {
		t.Errorf("Reports directory was not created: %s", reportsDir)
	}
}

func TestGetTelemetryFilePath(t *testing.T) {
	dir := useTempDataDir(t)

	path, err := getTelemetryFilePath()
	if err != nil {
		t.Fatalf("getTelemetryFilePath() failed: %v", err)
	}

	if !strings.HasSuffix(path, "telemetry.jsonl") {
		t.Errorf("Expected path to end with telemetry.jsonl, got: %s", path)
	}

	// The file itself is only created on the first write.
	if filepath.Dir(path) != dir {
		t.Errorf("Expected telemetry file under %s, got: %s", dir, path)
	}
	if _, err := os.Stat(path); err == nil {
		t.Errorf("Telemetry file should not be created eagerly: %s", path)
	}
}

func TestDataDirCreation(t *testing.T) {
	useTempDataDir(t)

	dataDir, err := getDataDir()
	if err != nil {
		t.Fatalf("getDataDir() failed: %v", err)
	}

	// Verify it exists and is a directory
	info, err := os.Stat(dataDir)
	if err != nil {
		t.Fatalf("Data directory does not exist: %v", err)
	}

	if !info.IsDir() {
		t.Error("Data directory path is not a directory")
	}

	// Verify permissions (should be readable/writable)
	testFile := filepath.Join(dataDir, "test_write.txt")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		t.Errorf("Cannot write to data directory: %v", err)
	} else {
		_ = os.Remove(testFile) // Clean up
	}
}
