package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/domainposture/posture-cli/internal/scan"
	"github.com/domainposture/posture-cli/internal/store"
	"github.com/fatih/color"
)

func seedStoredScan(t *testing.T, domain string) *store.AggregateStore {
	t.Helper()

	scansDir, err := getScansDir()
	if err != nil {
		t.Fatalf("failed to get scans dir: %v", err)
	}
	st, err := store.NewAggregateStore(scansDir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	agg := &scan.Aggregate{
		Domain:    domain,
		Timestamp: time.Now().UTC(),
		Probes:    []scan.Result{{ID: "dns", Label: "DNS", Status: scan.StatusComplete}},
	}
	if err := st.Save(agg); err != nil {
		t.Fatalf("failed to seed stored scan: %v", err)
	}
	return st
}

func TestVerifyCommand_SingleDomain(t *testing.T) {
	useTempDataDir(t)

	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = original })

	seedStoredScan(t, "example.com")

	var buf bytes.Buffer
	verifyCmd.SetOut(&buf)
	verifyCmd.SetErr(&buf)

	if err := verifyCmd.RunE(verifyCmd, []string{"example.com"}); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !strings.Contains(buf.String(), "checksum verified for example.com") {
		t.Fatalf("unexpected verify output: %q", buf.String())
	}
}

func TestVerifyCommand_AllDomains(t *testing.T) {
	useTempDataDir(t)

	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = original })

	seedStoredScan(t, "a.example.com")
	seedStoredScan(t, "b.example.com")

	var buf bytes.Buffer
	verifyCmd.SetOut(&buf)
	verifyCmd.SetErr(&buf)

	if err := verifyCmd.RunE(verifyCmd, nil); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "a.example.com") || !strings.Contains(output, "b.example.com") {
		t.Fatalf("expected both domains in table, got: %q", output)
	}
	if !strings.Contains(output, "all 2 stored scan(s) verified") {
		t.Fatalf("expected verification summary, got: %q", output)
	}
}

func TestVerifyCommand_DetectsTampering(t *testing.T) {
	dir := useTempDataDir(t)

	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = original })

	seedStoredScan(t, "example.com")

	// Flip a byte in the stored file without updating its checksum.
	path := filepath.Join(dir, "scans", "example.com.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read stored scan: %v", err)
	}
	tampered := strings.Replace(string(data), "example.com", "evil.example.com", 1)
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatalf("failed to tamper with stored scan: %v", err)
	}

	var buf bytes.Buffer
	verifyCmd.SetOut(&buf)
	verifyCmd.SetErr(&buf)

	err = verifyCmd.RunE(verifyCmd, []string{"example.com"})
	if err == nil {
		t.Fatal("expected verification to fail after tampering")
	}
	if !strings.Contains(err.Error(), "verification failed for example.com") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyCommand_NoStoredScans(t *testing.T) {
	useTempDataDir(t)

	var buf bytes.Buffer
	verifyCmd.SetOut(&buf)
	verifyCmd.SetErr(&buf)

	if err := verifyCmd.RunE(verifyCmd, nil); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No stored scans to verify.") {
		t.Fatalf("expected empty-state message, got: %q", buf.String())
	}
}
