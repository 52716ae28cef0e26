package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/domainposture/posture-cli/internal/scan"
)

func TestProgressPrinterLifecycle(t *testing.T) {
	printer := newProgressPrinter(0, "example.com")
	if printer.total != 1 {
		t.Fatalf("expected total to be clamped to 1, got %d", printer.total)
	}

	printer = newProgressPrinter(2, "example.com")
	output := captureStdout(t, func() {
		printer.Start()
		printer.Observe([]scan.Result{
			{ID: "dns", Status: scan.StatusComplete},
			{ID: "headers", Status: scan.StatusRunning},
		})
		printer.Observe([]scan.Result{
			{ID: "dns", Status: scan.StatusComplete},
			{ID: "headers", Status: scan.StatusError, Issues: []string{"missing HSTS"}},
		})
		time.Sleep(350 * time.Millisecond) // allow ticker to tick at least once
		printer.Stop()
		time.Sleep(50 * time.Millisecond) // ensure loop goroutine exits
	})

	if !strings.Contains(output, "Probes: 2/2") {
		t.Fatalf("expected summary progress, got %q", output)
	}
	if !strings.Contains(output, "OK:1") || !strings.Contains(output, "Fail:1") {
		t.Fatalf("expected OK/Fail counts in output, got %q", output)
	}
	if !strings.Contains(output, "Issues:1") {
		t.Fatalf("expected issue count in output, got %q", output)
	}
	if !strings.Contains(output, "[example.com]") {
		t.Fatalf("expected domain in output, got %q", output)
	}
}

func TestProgressPrinterRecomputesFromSnapshots(t *testing.T) {
	printer := newProgressPrinter(2, "example.com")

	// Snapshots carry the whole probe set; a later snapshot replaces the
	// counts instead of adding to them.
	printer.Observe([]scan.Result{
		{Status: scan.StatusComplete},
		{Status: scan.StatusComplete},
	})
	printer.Observe([]scan.Result{
		{Status: scan.StatusComplete},
		{Status: scan.StatusError, Issues: []string{"a", "b"}},
	})

	printer.mu.Lock()
	ok, fail, issues := printer.ok, printer.fail, printer.issues
	printer.mu.Unlock()

	if ok != 1 || fail != 1 {
		t.Fatalf("expected counts 1/1, got %d/%d", ok, fail)
	}
	if issues != 2 {
		t.Fatalf("expected 2 issues, got %d", issues)
	}
}

func TestProgressPrinterStopIsIdempotent(t *testing.T) {
	printer := newProgressPrinter(1, "example.com")
	_ = captureStdout(t, func() {
		printer.Start()
		printer.Stop()
		printer.Stop() // second stop must not panic
	})
}
