package probes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/domainposture/posture-cli/internal/scan"
)

// DefaultDKIMSelectors are probed when looking for a DKIM key. The list
// covers the selectors the major providers publish under.
var DefaultDKIMSelectors = []string{
	"default", "google", "selector1", "selector2", "k1", "s1", "s2", "dkim", "mail",
}

// EmailAuthReport is the email-auth probe's payload.
type EmailAuthReport struct {
	SPF   AuthRecord `json:"spf"`
	DMARC AuthRecord `json:"dmarc"`
	DKIM  AuthRecord `json:"dkim"`
}

// AuthRecord describes the state of one email-authentication mechanism.
type AuthRecord struct {
	Found    bool   `json:"found"`
	Record   string `json:"record,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// EmailAuthProbe checks the SPF, DMARC and DKIM records that let receivers
// verify mail claiming to come from the domain.
type EmailAuthProbe struct {
	Resolver  Lookuper
	Selectors []string
}

func NewEmailAuthProbe(resolver Lookuper) *EmailAuthProbe {
	return &EmailAuthProbe{
		Resolver:  resolver,
		Selectors: DefaultDKIMSelectors,
	}
}

func (p *EmailAuthProbe) Definition() scan.Definition {
	return scan.Definition{
		ID:          IDEmailAuth,
		Label:       "Email authentication",
		Description: "SPF, DKIM and DMARC records protecting the domain against mail spoofing.",
		Timeout:     8 * time.Second,
	}
}

func (p *EmailAuthProbe) Run(ctx context.Context, domain string) (scan.Outcome, error) {
	target, err := scan.SanitizeDomain(domain)
	if err != nil {
		return scan.Outcome{}, err
	}

	report := EmailAuthReport{}
	var issues []string

	spfRecords, err := p.lookupTXT(ctx, target)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("SPF lookup: %w", err)
	}
	spfRecords = filterPrefix(spfRecords, "v=spf1")
	if len(spfRecords) > 0 {
		report.SPF = AuthRecord{Found: true, Record: spfRecords[0]}
	}
	issues = append(issues, analyzeSPF(spfRecords)...)

	dmarcRecords, err := p.lookupTXT(ctx, "_dmarc."+target)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("DMARC lookup: %w", err)
	}
	dmarcRecords = filterPrefix(dmarcRecords, "v=dmarc1")
	if len(dmarcRecords) > 0 {
		report.DMARC = AuthRecord{Found: true, Record: dmarcRecords[0]}
	}
	issues = append(issues, analyzeDMARC(dmarcRecords)...)

	selectors := p.Selectors
	if len(selectors) == 0 {
		selectors = DefaultDKIMSelectors
	}
	for _, selector := range selectors {
		records, err := p.lookupTXT(ctx, selector+"._domainkey."+target)
		if err != nil {
			return scan.Outcome{}, fmt.Errorf("DKIM lookup (%s): %w", selector, err)
		}
		if record, ok := findDKIMRecord(records); ok {
			report.DKIM = AuthRecord{Found: true, Record: record, Selector: selector}
			break
		}
	}
	if !report.DKIM.Found {
		issues = append(issues, fmt.Sprintf("no DKIM key found under %d common selectors; outgoing mail may be unsigned", len(selectors)))
	}

	return scan.Outcome{
		Summary: emailAuthSummary(report),
		Issues:  issues,
		Data:    report,
	}, nil
}

func (p *EmailAuthProbe) lookupTXT(ctx context.Context, name string) ([]string, error) {
	answers, err := p.Resolver.Lookup(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var records []string
	for _, rr := range answers {
		if txt, ok := rr.(*dns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	return records, nil
}

func filterPrefix(records []string, prefix string) []string {
	var out []string
	for _, r := range records {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(r)), prefix) {
			out = append(out, r)
		}
	}
	return out
}

func findDKIMRecord(records []string) (string, bool) {
	for _, r := range records {
		lower := strings.ToLower(r)
		if strings.Contains(lower, "v=dkim1") || strings.Contains(lower, "k=rsa") || strings.Contains(lower, "p=") {
			return r, true
		}
	}
	return "", false
}

// analyzeSPF derives findings from the published SPF records. Receivers
// reject on multiple records and cap mechanism lookups at 10 (RFC 7208).
func analyzeSPF(records []string) []string {
	if len(records) == 0 {
		return []string{"no SPF record found; receivers cannot verify which hosts send mail for this domain"}
	}

	var issues []string
	if len(records) > 1 {
		issues = append(issues, fmt.Sprintf("%d SPF records published; receivers treat multiple records as a permanent error", len(records)))
	}

	record := records[0]
	switch spfAllQualifier(record) {
	case "+all":
		issues = append(issues, "SPF record ends in +all, authorizing any host on the internet to send mail for this domain")
	case "?all":
		issues = append(issues, "SPF record ends in ?all (neutral), which enforces nothing")
	case "":
		issues = append(issues, "SPF record has no 'all' mechanism; unlisted senders are not restricted")
	}

	if n := spfLookupCount(record); n > 10 {
		issues = append(issues, fmt.Sprintf("SPF record requires %d DNS lookups, over the limit of 10; receivers may permerror", n))
	}
	return issues
}

func spfAllQualifier(record string) string {
	for _, term := range strings.Fields(strings.ToLower(record)) {
		switch term {
		case "all", "+all":
			return "+all"
		case "-all":
			return "-all"
		case "~all":
			return "~all"
		case "?all":
			return "?all"
		}
	}
	return ""
}

// spfLookupCount estimates the DNS lookups a receiver performs to evaluate
// the record: include, redirect, exists, a, mx and ptr terms each cost one.
func spfLookupCount(record string) int {
	count := 0
	for _, term := range strings.Fields(strings.ToLower(record)) {
		term = strings.TrimLeft(term, "+-~?")
		switch {
		case strings.HasPrefix(term, "include:"),
			strings.HasPrefix(term, "redirect="),
			strings.HasPrefix(term, "exists:"),
			term == "a", strings.HasPrefix(term, "a:"),
			term == "mx", strings.HasPrefix(term, "mx:"),
			term == "ptr", strings.HasPrefix(term, "ptr:"):
			count++
		}
	}
	return count
}

func analyzeDMARC(records []string) []string {
	if len(records) == 0 {
		return []string{"no DMARC record found; spoofed mail claiming this domain is not rejected by receivers"}
	}

	var issues []string
	tags := parseDMARCTags(records[0])

	switch tags["p"] {
	case "reject", "quarantine":
	case "none":
		issues = append(issues, "DMARC policy is p=none (monitoring only); spoofed mail is still delivered")
	default:
		issues = append(issues, "DMARC record carries no valid p= policy tag")
	}

	if pct, ok := tags["pct"]; ok && pct != "100" {
		issues = append(issues, fmt.Sprintf("DMARC policy applies to only %s%% of mail", pct))
	}
	if _, ok := tags["rua"]; !ok {
		issues = append(issues, "no DMARC aggregate reporting address (rua) configured; authentication failures go unobserved")
	}
	return issues
}

func parseDMARCTags(record string) map[string]string {
	tags := make(map[string]string)
	for _, part := range strings.Split(record, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		tags[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return tags
}

func emailAuthSummary(report EmailAuthReport) string {
	parts := make([]string, 0, 3)

	if report.SPF.Found {
		if q := spfAllQualifier(report.SPF.Record); q != "" {
			parts = append(parts, "SPF "+q)
		} else {
			parts = append(parts, "SPF present")
		}
	} else {
		parts = append(parts, "SPF missing")
	}

	if report.DMARC.Found {
		if policy := parseDMARCTags(report.DMARC.Record)["p"]; policy != "" {
			parts = append(parts, "DMARC p="+policy)
		} else {
			parts = append(parts, "DMARC present")
		}
	} else {
		parts = append(parts, "DMARC missing")
	}

	if report.DKIM.Found {
		parts = append(parts, fmt.Sprintf("DKIM found (%s)", report.DKIM.Selector))
	} else {
		parts = append(parts, "DKIM not found")
	}

	return strings.Join(parts, ", ")
}
