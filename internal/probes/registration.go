package probes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/domainposture/posture-cli/internal/scan"
)

const (
	rdapBaseURL                   = "https://rdap.org"
	registrationExpiryWarningDays = 30
)

// NoRegistrationDataIssue is the informational finding for domains without
// published RDAP data (common for many country-code TLDs).
const NoRegistrationDataIssue = "no registration data found for this domain"

// RegistrationReport is the registration probe's payload.
type RegistrationReport struct {
	Domain     string     `json:"domain"`
	Registrar  string     `json:"registrar,omitempty"`
	Statuses   []string   `json:"statuses,omitempty"`
	Registered *time.Time `json:"registered,omitempty"`
	Updated    *time.Time `json:"updated,omitempty"`
	Expires    *time.Time `json:"expires,omitempty"`
}

type rdapResponse struct {
	LDHName  string       `json:"ldhName"`
	Status   []string     `json:"status"`
	Events   []rdapEvent  `json:"events"`
	Entities []rdapEntity `json:"entities"`
}

type rdapEvent struct {
	Action string `json:"eventAction"`
	Date   string `json:"eventDate"`
}

type rdapEntity struct {
	Roles      []string        `json:"roles"`
	VCardArray json.RawMessage `json:"vcardArray"`
}

// RegistrationProbe looks up a domain's registration state over RDAP, the
// structured successor to WHOIS.
type RegistrationProbe struct {
	BaseURL string
	Client  *http.Client
}

func NewRegistrationProbe(client *http.Client) *RegistrationProbe {
	return &RegistrationProbe{BaseURL: rdapBaseURL, Client: client}
}

func (p *RegistrationProbe) Definition() scan.Definition {
	return scan.Definition{
		ID:          IDRegistration,
		Label:       "Domain registration",
		Description: "Registration lifecycle, registrar and registry lock status from RDAP.",
		Timeout:     10 * time.Second,
		DataSource:  &scan.DataSource{Name: "RDAP", URL: "https://rdap.org"},
	}
}

func (p *RegistrationProbe) Run(ctx context.Context, domain string) (scan.Outcome, error) {
	target, err := scan.SanitizeDomain(domain)
	if err != nil {
		return scan.Outcome{}, err
	}

	req, err := newRequest(ctx, http.MethodGet, p.BaseURL+"/domain/"+url.PathEscape(target))
	if err != nil {
		return scan.Outcome{}, err
	}
	req.Header.Set("Accept", "application/rdap+json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("RDAP query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return scan.Outcome{
			Summary: "no registration data found",
			Issues:  []string{NoRegistrationDataIssue},
			Data:    RegistrationReport{Domain: target},
		}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return scan.Outcome{}, fmt.Errorf("RDAP query returned status %d", resp.StatusCode)
	}

	body, err := readCapped(resp.Body)
	if err != nil {
		return scan.Outcome{}, fmt.Errorf("reading RDAP response: %w", err)
	}
	var rdap rdapResponse
	if err := json.Unmarshal(body, &rdap); err != nil {
		return scan.Outcome{}, fmt.Errorf("parsing RDAP response: %w", err)
	}

	report := buildRegistrationReport(target, rdap)
	summary, issues := analyzeRegistration(report, time.Now())
	return scan.Outcome{Summary: summary, Issues: issues, Data: report}, nil
}

func buildRegistrationReport(domain string, rdap rdapResponse) RegistrationReport {
	report := RegistrationReport{
		Domain:   domain,
		Statuses: append([]string(nil), rdap.Status...),
	}

	for _, event := range rdap.Events {
		date, err := time.Parse(time.RFC3339, event.Date)
		if err != nil {
			continue
		}
		switch strings.ToLower(event.Action) {
		case "registration":
			report.Registered = &date
		case "expiration":
			report.Expires = &date
		case "last changed":
			report.Updated = &date
		}
	}

	for _, entity := range rdap.Entities {
		for _, role := range entity.Roles {
			if strings.EqualFold(role, "registrar") {
				if name := vcardFullName(entity.VCardArray); name != "" {
					report.Registrar = name
				}
			}
		}
	}
	return report
}

// vcardFullName digs the fn property out of a jCard (RFC 7095) structure:
// ["vcard", [["fn", {}, "text", "Example Registrar"], ...]].
func vcardFullName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var card []any
	if err := json.Unmarshal(raw, &card); err != nil || len(card) < 2 {
		return ""
	}
	props, ok := card[1].([]any)
	if !ok {
		return ""
	}
	for _, prop := range props {
		fields, ok := prop.([]any)
		if !ok || len(fields) < 4 {
			continue
		}
		if name, _ := fields[0].(string); name != "fn" {
			continue
		}
		if value, ok := fields[3].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func analyzeRegistration(report RegistrationReport, now time.Time) (string, []string) {
	var issues []string

	hasTransferLock := false
	for _, status := range report.Statuses {
		normalized := strings.ToLower(strings.ReplaceAll(status, " ", ""))
		switch {
		case strings.Contains(normalized, "hold"):
			issues = append(issues, fmt.Sprintf("registry status %q indicates the domain is on hold and not resolving", status))
		case strings.Contains(normalized, "pendingdelete"):
			issues = append(issues, "domain registration is pending deletion")
		case strings.Contains(normalized, "transferprohibited"):
			hasTransferLock = true
		}
	}
	if !hasTransferLock && len(report.Statuses) > 0 {
		issues = append(issues, "no transfer lock is set; the registration can be transferred away without restriction")
	}

	if report.Expires != nil {
		days := int(report.Expires.Sub(now).Hours() / 24)
		switch {
		case days < 0:
			issues = append(issues, fmt.Sprintf("domain registration expired %d days ago", -days))
		case days <= registrationExpiryWarningDays:
			issues = append(issues, fmt.Sprintf("domain registration expires in %d days", days))
		}
	}

	var summary string
	switch {
	case report.Registrar != "" && report.Expires != nil:
		summary = fmt.Sprintf("registered via %s, expires %s", report.Registrar, report.Expires.Format("2006-01-02"))
	case report.Expires != nil:
		summary = fmt.Sprintf("registered, expires %s", report.Expires.Format("2006-01-02"))
	case report.Registrar != "":
		summary = "registered via " + report.Registrar
	default:
		summary = "registration data available"
	}
	return summary, issues
}
