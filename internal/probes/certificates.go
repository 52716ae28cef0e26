package probes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/domainposture/posture-cli/internal/scan"
)

const (
	crtShBaseURL          = "https://crt.sh"
	crtShTimeLayout       = "2006-01-02T15:04:05"
	certExpiryWarningDays = 30
)

// NoCertificatesIssue is the informational finding emitted when the
// transparency logs hold nothing for a domain. No certificates is a valid
// posture, not a probe failure.
const NoCertificatesIssue = "no certificates found in certificate transparency logs"

// CertificateReport is the certificates probe's payload.
type CertificateReport struct {
	Total     int              `json:"total"`
	Hosts     []string         `json:"hosts,omitempty"`
	Wildcards []string         `json:"wildcards,omitempty"`
	Issuers   []string         `json:"issuers,omitempty"`
	Newest    *CertificateInfo `json:"newest,omitempty"`
}

// CertificateInfo summarizes the most recently issued certificate covering
// the apex domain.
type CertificateInfo struct {
	CommonName      string    `json:"common_name"`
	Issuer          string    `json:"issuer"`
	NotBefore       time.Time `json:"not_before"`
	NotAfter        time.Time `json:"not_after"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	Expired         bool      `json:"expired"`
}

type crtShEntry struct {
	IssuerName   string `json:"issuer_name"`
	NameValue    string `json:"name_value"`
	SerialNumber string `json:"serial_number"`
	NotBefore    string `json:"not_before"`
	NotAfter     string `json:"not_after"`
}

// CertificateProbe queries public certificate-transparency logs for
// certificates issued to the domain and its subdomains.
type CertificateProbe struct {
	BaseURL string
	Client  *http.Client
}

func NewCertificateProbe(client *http.Client) *CertificateProbe {
	return &CertificateProbe{BaseURL: crtShBaseURL, Client: client}
}

func (p *CertificateProbe) Definition() scan.Definition {
	return scan.Definition{
		ID:          IDCertificates,
		Label:       "Certificate transparency",
		Description: "Certificates issued for the domain according to public certificate-transparency logs.",
		Timeout:     15 * time.Second,
		DataSource:  &scan.DataSource{Name: "crt.sh", URL: "https://crt.sh"},
	}
}

func (p *CertificateProbe) Run(ctx context.Context, domain string) (scan.Outcome, error) {
	target, err := scan.SanitizeDomain(domain)
	if err != nil {
		return scan.Outcome{}, err
	}

	query := fmt.Sprintf("%s/?q=%s&output=json", p.BaseURL, url.QueryEscape("%."+target))
	req, err := newRequest(ctx, http.MethodGet, query)
	if err != nil {
		return scan.Outcome{}, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("certificate transparency query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return scan.Outcome{}, fmt.Errorf("certificate transparency query returned status %d", resp.StatusCode)
	}

	body, err := readCapped(resp.Body)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("reading certificate transparency response: %w", err)
	}

	var entries []crtShEntry
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &entries); err != nil {
			return scan.Outcome{}, fmt.Errorf("parsing certificate transparency response: %w", err)
		}
	}

	if len(entries) == 0 {
		return scan.Outcome{
			Summary: "no certificates found",
			Issues:  []string{NoCertificatesIssue},
			Data:    CertificateReport{},
		}, nil
	}

	report := buildCertificateReport(target, entries, time.Now())
	summary, issues := analyzeCertificates(target, report)
	return scan.Outcome{Summary: summary, Issues: issues, Data: report}, nil
}

func buildCertificateReport(domain string, entries []crtShEntry, now time.Time) CertificateReport {
	hosts := make(map[string]struct{})
	wildcards := make(map[string]struct{})
	issuers := make(map[string]struct{})

	var newest *CertificateInfo
	for _, entry := range entries {
		issuers[entry.IssuerName] = struct{}{}

		coversApex := false
		for _, name := range strings.Split(entry.NameValue, "\n") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			if strings.HasPrefix(name, "*.") {
				wildcards[name] = struct{}{}
			} else {
				hosts[name] = struct{}{}
			}
			if name == domain || name == "*."+domain {
				coversApex = true
			}
		}
		if !coversApex {
			continue
		}

		notBefore, okBefore := parseCrtShTime(entry.NotBefore)
		notAfter, okAfter := parseCrtShTime(entry.NotAfter)
		if !okBefore || !okAfter {
			continue
		}
		if newest == nil || notBefore.After(newest.NotBefore) {
			days := int(notAfter.Sub(now).Hours() / 24)
			newest = &CertificateInfo{
				CommonName:      domain,
				Issuer:          entry.IssuerName,
				NotBefore:       notBefore,
				NotAfter:        notAfter,
				DaysUntilExpiry: days,
				Expired:         notAfter.Before(now),
			}
		}
	}

	return CertificateReport{
		Total:     len(entries),
		Hosts:     sortedKeys(hosts),
		Wildcards: sortedKeys(wildcards),
		Issuers:   sortedKeys(issuers),
		Newest:    newest,
	}
}

func parseCrtShTime(value string) (time.Time, bool) {
	if t, err := time.Parse(crtShTimeLayout, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func analyzeCertificates(domain string, report CertificateReport) (string, []string) {
	var issues []string

	if report.Newest != nil {
		switch {
		case report.Newest.Expired:
			issues = append(issues, fmt.Sprintf("most recent certificate for %s expired %d days ago",
				domain, -report.Newest.DaysUntilExpiry))
		case report.Newest.DaysUntilExpiry <= certExpiryWarningDays:
			issues = append(issues, fmt.Sprintf("certificate for %s expires in %d days",
				domain, report.Newest.DaysUntilExpiry))
		}
	}

	summary := fmt.Sprintf("%d certificates covering %d hostnames", report.Total, len(report.Hosts)+len(report.Wildcards))
	return summary, issues
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
