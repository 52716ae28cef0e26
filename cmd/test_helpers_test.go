package cmd

import (
	"bytes"
	"io"
	"os"
	"testing"
)

// useTempDataDir points the data directory at a per-test temp dir so tests
// never touch the operator's real scans or watchlists.
func useTempDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(dataDirEnvVar, dir)
	return dir
}

// captureStdout runs fn with os.Stdout redirected into a pipe and returns
// everything written while it ran.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	original := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	fn()

	if err := w.Close(); err != nil {
		os.Stdout = original
		t.Fatalf("failed to close pipe writer: %v", err)
	}
	os.Stdout = original

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("failed to read captured output: %v", err)
	}
	return buf.String()
}
