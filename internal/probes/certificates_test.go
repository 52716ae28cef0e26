package probes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newCertificateTestProbe(t *testing.T, handler http.HandlerFunc) *CertificateProbe {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	probe := NewCertificateProbe(srv.Client())
	probe.BaseURL = srv.URL
	return probe
}

func TestCertificateProbeRun(t *testing.T) {
	probe := newCertificateTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "%.example.com" {
			t.Errorf("Expected query for %%.example.com, got %q", got)
		}
		if got := r.URL.Query().Get("output"); got != "json" {
			t.Errorf("Expected output=json, got %q", got)
		}
		fmt.Fprint(w, `[
			{"issuer_name": "C=US, O=Let's Encrypt, CN=R11", "name_value": "example.com\nwww.example.com", "serial_number": "03a1", "not_before": "2026-01-15T09:30:00", "not_after": "2031-01-15T09:30:00"},
			{"issuer_name": "C=US, O=Let's Encrypt, CN=R11", "name_value": "*.example.com", "serial_number": "02b2", "not_before": "2024-03-10T00:00:00", "not_after": "2031-06-10T00:00:00"},
			{"issuer_name": "C=US, O=DigiCert Inc, CN=DigiCert TLS RSA SHA256 2020 CA1", "name_value": "api.example.com", "serial_number": "01c3", "not_before": "2025-05-01T00:00:00", "not_after": "2031-05-01T00:00:00"}
		]`)
	})

	out, err := probe.Run(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out.Issues) != 0 {
		t.Errorf("Expected no issues, got %v", out.Issues)
	}
	if out.Summary != "3 certificates covering 4 hostnames" {
		t.Errorf("Unexpected summary %q", out.Summary)
	}

	report, ok := out.Data.(CertificateReport)
	if !ok {
		t.Fatalf("Expected CertificateReport payload, got %T", out.Data)
	}
	if report.Total != 3 {
		t.Errorf("Expected 3 entries, got %d", report.Total)
	}
	wantHosts := []string{"api.example.com", "example.com", "www.example.com"}
	if len(report.Hosts) != len(wantHosts) {
		t.Fatalf("Expected hosts %v, got %v", wantHosts, report.Hosts)
	}
	for i, host := range wantHosts {
		if report.Hosts[i] != host {
			t.Errorf("Host %d: expected %q, got %q", i, host, report.Hosts[i])
		}
	}
	if len(report.Wildcards) != 1 || report.Wildcards[0] != "*.example.com" {
		t.Errorf("Expected wildcard entry, got %v", report.Wildcards)
	}
	if len(report.Issuers) != 2 {
		t.Errorf("Expected 2 issuers, got %v", report.Issuers)
	}
	if report.Newest == nil {
		t.Fatal("Expected newest certificate to be identified")
	}
	if report.Newest.NotBefore.Year() != 2026 {
		t.Errorf("Expected the 2026 certificate to be newest, got %v", report.Newest.NotBefore)
	}
	if report.Newest.Expired {
		t.Error("Expected newest certificate to be valid")
	}
}

func TestCertificateProbeRun_NoCertificates(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "empty array", body: "[]"},
		{name: "empty body", body: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			probe := newCertificateTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.body)
			})

			out, err := probe.Run(context.Background(), "example.com")
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if out.Summary != "no certificates found" {
				t.Errorf("Unexpected summary %q", out.Summary)
			}
			if len(out.Issues) != 1 || out.Issues[0] != NoCertificatesIssue {
				t.Errorf("Expected the no-certificates finding, got %v", out.Issues)
			}
		})
	}
}

func TestCertificateProbeRun_UpstreamError(t *testing.T) {
	probe := newCertificateTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	})

	_, err := probe.Run(context.Background(), "example.com")
	if err == nil {
		t.Fatal("Expected error for upstream failure")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("Expected error to carry the status code, got %v", err)
	}
}

func TestCertificateProbeRun_Expired(t *testing.T) {
	probe := newCertificateTestProbe(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"issuer_name": "CN=Old CA", "name_value": "example.com", "serial_number": "aa", "not_before": "2019-01-01T00:00:00", "not_after": "2020-01-01T00:00:00"}]`)
	})

	out, err := probe.Run(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out.Issues) != 1 || !strings.Contains(out.Issues[0], "expired") {
		t.Errorf("Expected expired-certificate issue, got %v", out.Issues)
	}
	report := out.Data.(CertificateReport)
	if report.Newest == nil || !report.Newest.Expired {
		t.Errorf("Expected newest certificate to be marked expired, got %+v", report.Newest)
	}
}

func TestBuildCertificateReport_ExpiryWindow(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	entries := []crtShEntry{
		{IssuerName: "CN=Test CA", NameValue: "example.com", NotBefore: "2026-06-01T00:00:00", NotAfter: "2026-09-02T12:00:00"},
	}

	report := buildCertificateReport("example.com", entries, now)
	if report.Newest == nil {
		t.Fatal("Expected newest certificate")
	}
	if report.Newest.DaysUntilExpiry != 10 {
		t.Errorf("Expected 10 days until expiry, got %d", report.Newest.DaysUntilExpiry)
	}

	_, issues := analyzeCertificates("example.com", report)
	if len(issues) != 1 || !strings.Contains(issues[0], "expires in 10 days") {
		t.Errorf("Expected expiry warning, got %v", issues)
	}
}

func TestBuildCertificateReport_IgnoresSubdomainOnlyCerts(t *testing.T) {
	now := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	entries := []crtShEntry{
		{IssuerName: "CN=Test CA", NameValue: "api.example.com", NotBefore: "2026-07-01T00:00:00", NotAfter: "2027-07-01T00:00:00"},
	}

	report := buildCertificateReport("example.com", entries, now)
	if report.Newest != nil {
		t.Errorf("Expected no apex certificate, got %+v", report.Newest)
	}
	if len(report.Hosts) != 1 || report.Hosts[0] != "api.example.com" {
		t.Errorf("Expected subdomain host to be recorded, got %v", report.Hosts)
	}
}

func TestParseCrtShTime(t *testing.T) {
	if _, ok := parseCrtShTime("2026-01-15T09:30:00"); !ok {
		t.Error("Expected crt.sh layout to parse")
	}
	if _, ok := parseCrtShTime("2026-01-15T09:30:00Z"); !ok {
		t.Error("Expected RFC3339 layout to parse")
	}
	if _, ok := parseCrtShTime("not a date"); ok {
		t.Error("Expected garbage to fail parsing")
	}
}
