package probes

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultDNSTimeout = 5 * time.Second
	resolvConfPath    = "/etc/resolv.conf"
)

// fallbackNameservers are used when the system resolver configuration cannot
// be read.
var fallbackNameservers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// Lookuper answers DNS questions. Satisfied by Resolver and by test doubles.
type Lookuper interface {
	Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error)
}

// Resolver issues queries against the configured nameservers in order until
// one of them answers.
type Resolver struct {
	Servers []string
	client  *dns.Client
}

// NewResolver builds a resolver over the given servers (host:port). An empty
// list selects the system configuration with public fallbacks.
func NewResolver(servers []string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}
	if len(servers) == 0 {
		servers = systemNameservers()
	}
	return &Resolver{
		Servers: servers,
		client:  &dns.Client{Timeout: timeout},
	}
}

func systemNameservers() []string {
	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(conf.Servers) == 0 {
		return append([]string(nil), fallbackNameservers...)
	}
	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}
	return servers
}

// Lookup resolves one question. NXDOMAIN and empty answers return no records
// and no error: absent data is a finding for the caller, not a resolver
// failure.
func (r *Resolver) Lookup(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true
	// DNSSEC OK with a large UDP buffer, so DNSKEY answers fit.
	m.SetEdns0(4096, true)

	var lastErr error
	for _, server := range r.Servers {
		in, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		switch in.Rcode {
		case dns.RcodeSuccess, dns.RcodeNameError:
			return in.Answer, nil
		default:
			lastErr = fmt.Errorf("query %s %s: %s", name, dns.TypeToString[qtype], dns.RcodeToString[in.Rcode])
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("query %s: no nameservers available", name)
	}
	return nil, lastErr
}
