package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/domainposture/posture-cli/internal/gate"
	"github.com/domainposture/posture-cli/internal/interpret"
	"github.com/domainposture/posture-cli/internal/scan"
	"github.com/domainposture/posture-cli/internal/store"
)

func TestParseSeverityThreshold(t *testing.T) {
	tests := []struct {
		input string
		want  interpret.Severity
	}{
		{input: "critical", want: interpret.SeverityCritical},
		{input: "ERROR", want: interpret.SeverityError},
		{input: " warning ", want: interpret.SeverityWarning},
		{input: "info", want: interpret.SeverityInfo},
	}
	for _, tt := range tests {
		got, err := parseSeverityThreshold(tt.input)
		if err != nil {
			t.Fatalf("parseSeverityThreshold(%q) failed: %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("parseSeverityThreshold(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}

	if _, err := parseSeverityThreshold("fatal"); err == nil {
		t.Fatal("expected error for unsupported severity")
	} else if !strings.Contains(err.Error(), "unsupported severity") {
		t.Fatalf("unexpected error message: %v", err)
	}

	// Success is deliberately not a threshold; scans always reach it.
	if _, err := parseSeverityThreshold("success"); err == nil {
		t.Fatal("expected error for success threshold")
	}
}

func TestParseProbeTimeouts(t *testing.T) {
	got, err := parseProbeTimeouts([]string{"certificates=8s", " dns = 500ms "})
	if err != nil {
		t.Fatalf("parseProbeTimeouts failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 overrides, got %d", len(got))
	}
	if got["certificates"] != 8*time.Second {
		t.Errorf("Expected certificates override 8s, got %s", got["certificates"])
	}
	if got["dns"] != 500*time.Millisecond {
		t.Errorf("Expected dns override 500ms, got %s", got["dns"])
	}

	if got, err := parseProbeTimeouts(nil); err != nil || got != nil {
		t.Fatalf("Expected no overrides for empty input, got %v, %v", got, err)
	}

	for _, bad := range []string{"dns", "=5s", "dns=", "dns=soon", "dns=0s", "dns=-1s"} {
		if _, err := parseProbeTimeouts([]string{bad}); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestCollectRecommendations_WorstFirst(t *testing.T) {
	interp := interpret.NewInterpreter()

	results := []scan.Result{
		{ID: "dns", Label: "DNS", Status: scan.StatusComplete},
		{ID: "certificates", Label: "Certificates", Status: scan.StatusComplete, Issues: []string{"certificate for example.com expires in 12 days"}},
		{ID: "registration", Label: "Registration", Status: scan.StatusError, Err: "rdap lookup failed"},
		{ID: "email-auth", Label: "Email Authentication", Status: scan.StatusComplete, Issues: []string{"no DMARC record published"}},
	}

	recs := collectRecommendations(interp, results)
	if len(recs) != 3 {
		t.Fatalf("expected 3 recommendations, got %d: %v", len(recs), recs)
	}

	// Critical first, then error, then warning. The clean DNS probe
	// contributes nothing.
	if !strings.HasPrefix(recs[0], "Email Authentication: publish a DMARC record") {
		t.Fatalf("expected DMARC advice first, got %q", recs[0])
	}
	if !strings.HasPrefix(recs[1], "Registration: retry the scan") {
		t.Fatalf("expected retry advice second, got %q", recs[1])
	}
	if !strings.HasPrefix(recs[2], "Certificates: renew before the expiry date") {
		t.Fatalf("expected renewal advice third, got %q", recs[2])
	}
}

func TestBuildScanOutput(t *testing.T) {
	interp := interpret.NewInterpreter()
	agg := &scan.Aggregate{
		Domain:    "example.com",
		Timestamp: time.Now().UTC(),
		Probes: []scan.Result{
			{ID: "dns", Label: "DNS", Status: scan.StatusComplete, Summary: "2 NS records"},
			{ID: "headers", Label: "Security Headers", Status: scan.StatusError, Err: "connection refused"},
		},
	}

	out := buildScanOutput(interp, agg, true)
	if !out.Cached {
		t.Fatal("expected cached flag to carry through")
	}
	if len(out.Readings) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(out.Readings))
	}
	if out.Readings[0].Severity != interpret.SeveritySuccess || out.Readings[0].Message != "2 NS records" {
		t.Fatalf("unexpected first reading: %+v", out.Readings[0])
	}
	if out.Readings[1].Severity != interpret.SeverityError || out.Readings[1].Message != "connection refused" {
		t.Fatalf("unexpected second reading: %+v", out.Readings[1])
	}
	if out.Overall != interpret.SeverityError {
		t.Fatalf("expected overall error, got %s", out.Overall)
	}
}

func TestLoadFreshAggregate(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewAggregateStore(dir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	env := &appEnv{store: st}

	t.Cleanup(func() {
		*cliConfig = *newCLIConfig()
	})
	*cliConfig = *newCLIConfig()
	cliConfig.Scan.CacheTTLMinutes = 15

	// No stored scan yet.
	if _, ok := loadFreshAggregate(env, "example.com"); ok {
		t.Fatal("expected miss without a stored scan")
	}

	fresh := &scan.Aggregate{Domain: "example.com", Timestamp: time.Now().UTC()}
	if err := st.Save(fresh); err != nil {
		t.Fatalf("failed to save aggregate: %v", err)
	}

	agg, ok := loadFreshAggregate(env, "example.com")
	if !ok {
		t.Fatal("expected hit for fresh aggregate")
	}
	if agg.Domain != "example.com" {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}

	// --refresh bypasses the stored scan entirely.
	cliConfig.Scan.Refresh = true
	if _, ok := loadFreshAggregate(env, "example.com"); ok {
		t.Fatal("expected refresh to bypass the stored scan")
	}
	cliConfig.Scan.Refresh = false

	// A stale aggregate is ignored.
	stale := &scan.Aggregate{Domain: "example.com", Timestamp: time.Now().Add(-16 * time.Minute).UTC()}
	if err := st.Save(stale); err != nil {
		t.Fatalf("failed to save stale aggregate: %v", err)
	}
	if _, ok := loadFreshAggregate(env, "example.com"); ok {
		t.Fatal("expected stale aggregate to be ignored")
	}
}

func TestWaitForGate_FailsFastWhenNotWaiting(t *testing.T) {
	g := gate.NewGate(1, 1)

	if err := waitForGate(g, "example.com", false); err != nil {
		t.Fatalf("first pass should be allowed: %v", err)
	}

	err := waitForGate(g, "example.com", false)
	if err == nil {
		t.Fatal("expected rate limit error on second pass")
	}
	if !strings.Contains(err.Error(), "rate limit reached") {
		t.Fatalf("unexpected error message: %v", err)
	}
}
