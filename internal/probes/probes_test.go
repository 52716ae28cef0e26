package probes

import (
	"testing"
	"time"
)

func TestAll_DisplayOrder(t *testing.T) {
	want := []string{IDDNS, IDEmailAuth, IDCertificates, IDRegistration, IDHeaders}

	probes := All(Defaults())
	if len(probes) != len(want) {
		t.Fatalf("Expected %d probes, got %d", len(want), len(probes))
	}
	for i, probe := range probes {
		if probe.Definition().ID != want[i] {
			t.Errorf("Probe %d: expected id %q, got %q", i, want[i], probe.Definition().ID)
		}
	}
}

func TestDefaultRegistry(t *testing.T) {
	registry, err := DefaultRegistry(Defaults())
	if err != nil {
		t.Fatalf("DefaultRegistry failed: %v", err)
	}
	if registry.Len() != 5 {
		t.Errorf("Expected 5 registered probes, got %d", registry.Len())
	}
	if _, ok := registry.Lookup(IDHeaders); !ok {
		t.Error("Expected headers probe to be registered")
	}
}

func TestNewResolver(t *testing.T) {
	r := NewResolver([]string{"127.0.0.1:5353"}, 2*time.Second)
	if len(r.Servers) != 1 || r.Servers[0] != "127.0.0.1:5353" {
		t.Errorf("Expected custom server to be kept, got %v", r.Servers)
	}

	r = NewResolver(nil, 0)
	if len(r.Servers) == 0 {
		t.Error("Expected system or fallback nameservers, got none")
	}
}

func TestNewHTTPClient(t *testing.T) {
	client := NewHTTPClient(0)
	if client.Timeout != defaultHTTPTimeout {
		t.Errorf("Expected default timeout %v, got %v", defaultHTTPTimeout, client.Timeout)
	}
	client = NewHTTPClient(3 * time.Second)
	if client.Timeout != 3*time.Second {
		t.Errorf("Expected 3s timeout, got %v", client.Timeout)
	}
}
