package probes

import (
	"time"

	"github.com/domainposture/posture-cli/internal/scan"
)

// Probe ids, stable across releases. Stored aggregates and interpretation
// rules key off these.
const (
	IDDNS          = "dns"
	IDEmailAuth    = "email-auth"
	IDCertificates = "certificates"
	IDRegistration = "registration"
	IDHeaders      = "headers"
)

// Config carries the upstream settings shared by the built-in probes.
type Config struct {
	// Nameservers override the system resolver configuration. Entries are
	// host:port. Empty means use /etc/resolv.conf with public fallbacks.
	Nameservers []string

	// DNSTimeout bounds a single DNS exchange, not a whole probe.
	DNSTimeout time.Duration

	// HTTPTimeout bounds a single upstream HTTP request.
	HTTPTimeout time.Duration
}

// Defaults returns the standard probe configuration.
func Defaults() Config {
	return Config{
		DNSTimeout:  5 * time.Second,
		HTTPTimeout: 10 * time.Second,
	}
}

// All returns the built-in probe set in display order.
func All(cfg Config) []scan.Probe {
	resolver := NewResolver(cfg.Nameservers, cfg.DNSTimeout)
	client := NewHTTPClient(cfg.HTTPTimeout)

	return []scan.Probe{
		NewDNSProbe(resolver),
		NewEmailAuthProbe(resolver),
		NewCertificateProbe(client),
		NewRegistrationProbe(client),
		NewHeaderProbe(client),
	}
}

// DefaultRegistry builds a registry over the built-in probe set.
func DefaultRegistry(cfg Config) (*scan.Registry, error) {
	return scan.NewRegistry(All(cfg)...)
}
