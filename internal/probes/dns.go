package probes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/domainposture/posture-cli/internal/scan"
)

// DNSReport is the dns probe's payload.
type DNSReport struct {
	Nameservers []string      `json:"nameservers,omitempty"`
	Addresses   []string      `json:"addresses,omitempty"`
	MailHosts   []string      `json:"mail_hosts,omitempty"`
	CAARecords  []string      `json:"caa_records,omitempty"`
	HasSOA      bool          `json:"has_soa"`
	DNSSEC      bool          `json:"dnssec"`
	WWWTarget   string        `json:"www_target,omitempty"`
	Takeover    *TakeoverRisk `json:"takeover,omitempty"`
}

// TakeoverRisk flags a CNAME pointing at an endpoint that no longer resolves
// and could potentially be claimed by a third party.
type TakeoverRisk struct {
	Host       string `json:"host"`
	Target     string `json:"target"`
	Provider   string `json:"provider,omitempty"`
	Confidence string `json:"confidence"`
}

// takeoverProviders maps CNAME target suffixes to hosting providers whose
// released endpoints are known to be claimable.
var takeoverProviders = map[string]string{
	"github.io":         "GitHub Pages",
	"s3.amazonaws.com":  "Amazon S3",
	"herokuapp.com":     "Heroku",
	"azurewebsites.net": "Azure App Service",
	"cloudapp.net":      "Azure Cloud Service",
	"trafficmanager.net": "Azure Traffic Manager",
	"netlify.app":       "Netlify",
	"vercel.app":        "Vercel",
	"surge.sh":          "Surge",
	"bitbucket.io":      "Bitbucket Pages",
	"ghost.io":          "Ghost",
	"helpscoutdocs.com": "Help Scout",
	"wordpress.com":     "WordPress.com",
	"pantheonsite.io":   "Pantheon",
	"readthedocs.io":    "Read the Docs",
	"myshopify.com":     "Shopify",
}

// DNSProbe inspects a domain's DNS hygiene: nameserver redundancy, CAA
// issuance restrictions, DNSSEC signing, and dangling CNAME exposure on the
// www host.
type DNSProbe struct {
	Resolver Lookuper
}

func NewDNSProbe(resolver Lookuper) *DNSProbe {
	return &DNSProbe{Resolver: resolver}
}

func (p *DNSProbe) Definition() scan.Definition {
	return scan.Definition{
		ID:          IDDNS,
		Label:       "DNS hygiene",
		Description: "Nameserver redundancy, CAA issuance restrictions, DNSSEC and dangling CNAME exposure.",
		Timeout:     8 * time.Second,
	}
}

func (p *DNSProbe) Run(ctx context.Context, domain string) (scan.Outcome, error) {
	target, err := scan.SanitizeDomain(domain)
	if err != nil {
		return scan.Outcome{}, err
	}

	report := DNSReport{}

	nsAnswers, err := p.Resolver.Lookup(ctx, target, dns.TypeNS)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("NS lookup: %w", err)
	}
	for _, rr := range nsAnswers {
		if ns, ok := rr.(*dns.NS); ok {
			report.Nameservers = append(report.Nameservers, strings.TrimSuffix(ns.Ns, "."))
		}
	}
	sort.Strings(report.Nameservers)

	aAnswers, err := p.Resolver.Lookup(ctx, target, dns.TypeA)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("A lookup: %w", err)
	}
	for _, rr := range aAnswers {
		if a, ok := rr.(*dns.A); ok {
			report.Addresses = append(report.Addresses, a.A.String())
		}
	}
	aaaaAnswers, err := p.Resolver.Lookup(ctx, target, dns.TypeAAAA)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("AAAA lookup: %w", err)
	}
	for _, rr := range aaaaAnswers {
		if aaaa, ok := rr.(*dns.AAAA); ok {
			report.Addresses = append(report.Addresses, aaaa.AAAA.String())
		}
	}
	sort.Strings(report.Addresses)

	mxAnswers, err := p.Resolver.Lookup(ctx, target, dns.TypeMX)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("MX lookup: %w", err)
	}
	for _, rr := range mxAnswers {
		if mx, ok := rr.(*dns.MX); ok {
			report.MailHosts = append(report.MailHosts, strings.TrimSuffix(mx.Mx, "."))
		}
	}
	sort.Strings(report.MailHosts)

	caaAnswers, err := p.Resolver.Lookup(ctx, target, dns.TypeCAA)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("CAA lookup: %w", err)
	}
	for _, rr := range caaAnswers {
		if caa, ok := rr.(*dns.CAA); ok {
			report.CAARecords = append(report.CAARecords, fmt.Sprintf("%s %q", caa.Tag, caa.Value))
		}
	}
	sort.Strings(report.CAARecords)

	soaAnswers, err := p.Resolver.Lookup(ctx, target, dns.TypeSOA)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("SOA lookup: %w", err)
	}
	for _, rr := range soaAnswers {
		if _, ok := rr.(*dns.SOA); ok {
			report.HasSOA = true
		}
	}

	keyAnswers, err := p.Resolver.Lookup(ctx, target, dns.TypeDNSKEY)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("DNSKEY lookup: %w", err)
	}
	for _, rr := range keyAnswers {
		if _, ok := rr.(*dns.DNSKEY); ok {
			report.DNSSEC = true
		}
	}

	if err := p.checkWWWTakeover(ctx, target, &report); err != nil {
		return scan.Outcome{}, err
	}

	summary, issues := analyzeDNS(report)
	return scan.Outcome{Summary: summary, Issues: issues, Data: report}, nil
}

// checkWWWTakeover follows the www CNAME, if any, and flags targets that no
// longer resolve. Confidence is high when the target belongs to a provider
// with known claimable endpoints.
func (p *DNSProbe) checkWWWTakeover(ctx context.Context, domain string, report *DNSReport) error {
	host := "www." + domain
	cnameAnswers, err := p.Resolver.Lookup(ctx, host, dns.TypeCNAME)
	if err != nil {
		return fmt.Errorf("CNAME lookup: %w", err)
	}

	var cname string
	for _, rr := range cnameAnswers {
		if c, ok := rr.(*dns.CNAME); ok {
			cname = strings.TrimSuffix(c.Target, ".")
			break
		}
	}
	if cname == "" {
		return nil
	}
	report.WWWTarget = cname

	targetAnswers, err := p.Resolver.Lookup(ctx, cname, dns.TypeA)
	if err != nil {
		return fmt.Errorf("CNAME target lookup: %w", err)
	}
	if len(targetAnswers) > 0 {
		return nil
	}

	provider := detectProvider(cname)
	confidence := "medium"
	if provider != "" {
		confidence = "high"
	}
	report.Takeover = &TakeoverRisk{
		Host:       host,
		Target:     cname,
		Provider:   provider,
		Confidence: confidence,
	}
	return nil
}

func detectProvider(cname string) string {
	host := strings.ToLower(strings.TrimSuffix(cname, "."))
	for suffix, provider := range takeoverProviders {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return provider
		}
	}
	return ""
}

func analyzeDNS(report DNSReport) (string, []string) {
	var issues []string

	if len(report.Nameservers) == 0 && len(report.Addresses) == 0 {
		issues = append(issues, "domain does not resolve: no nameservers or address records found")
	}
	if len(report.Nameservers) == 1 {
		issues = append(issues, "only one authoritative nameserver is configured; at least two are recommended")
	}
	if len(report.CAARecords) == 0 {
		issues = append(issues, "no CAA records found; any certificate authority may issue certificates for this domain")
	}
	if !report.DNSSEC {
		issues = append(issues, "DNSSEC is not enabled; DNS responses for this domain are not cryptographically signed")
	}
	if report.Takeover != nil {
		if report.Takeover.Provider != "" {
			issues = append(issues, fmt.Sprintf("possible subdomain takeover: %s points at unclaimed %s endpoint %s",
				report.Takeover.Host, report.Takeover.Provider, report.Takeover.Target))
		} else {
			issues = append(issues, fmt.Sprintf("possible subdomain takeover: %s points at %s, which does not resolve",
				report.Takeover.Host, report.Takeover.Target))
		}
	}

	summary := fmt.Sprintf("%d nameservers, %d address records", len(report.Nameservers), len(report.Addresses))
	if report.DNSSEC {
		summary += ", DNSSEC enabled"
	}
	if len(report.CAARecords) > 0 {
		summary += fmt.Sprintf(", %d CAA records", len(report.CAARecords))
	}
	return summary, issues
}
