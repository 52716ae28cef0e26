package probes

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/domainposture/posture-cli/internal/scan"
)

const tlsExpiryWarningDays = 14

// HeaderReport is the headers probe's payload.
type HeaderReport struct {
	Grade       string            `json:"grade"`
	Score       int               `json:"score"`
	MaxScore    int               `json:"max_score"`
	Headers     map[string]string `json:"headers,omitempty"`
	Missing     []string          `json:"missing,omitempty"`
	Cookies     []CookieFinding   `json:"cookies,omitempty"`
	CORS        *CORSFindings     `json:"cors,omitempty"`
	CachePolicy []string          `json:"cache_policy,omitempty"`
	TLS         *TLSInfo          `json:"tls,omitempty"`
}

// TLSInfo captures the served certificate's state.
type TLSInfo struct {
	Version         string    `json:"version"`
	Issuer          string    `json:"issuer,omitempty"`
	NotAfter        time.Time `json:"not_after"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
}

// headerSpec describes how one response header is graded.
type headerSpec struct {
	Name     string
	Severity string // high or medium; drives which gaps become issues
	MaxScore int
	Check    func(value string) (int, []string)
}

// gradedHeaders is evaluated in order so issue output is deterministic.
// Scores total 100.
var gradedHeaders = []headerSpec{
	{Name: "Strict-Transport-Security", Severity: "high", MaxScore: 20, Check: checkHSTS},
	{Name: "Content-Security-Policy", Severity: "high", MaxScore: 20, Check: checkCSP},
	{Name: "X-Frame-Options", Severity: "high", MaxScore: 15, Check: checkXFrameOptions},
	{Name: "X-Content-Type-Options", Severity: "high", MaxScore: 15, Check: checkXContentTypeOptions},
	{Name: "Referrer-Policy", Severity: "medium", MaxScore: 10, Check: checkReferrerPolicy},
	{Name: "Permissions-Policy", Severity: "medium", MaxScore: 10, Check: checkPermissionsPolicy},
	{Name: "Cross-Origin-Opener-Policy", Severity: "medium", MaxScore: 5, Check: checkCOOP},
	{Name: "Cross-Origin-Embedder-Policy", Severity: "medium", MaxScore: 5, Check: checkCOEP},
}

// disclosureHeaders leak implementation details when present.
var disclosureHeaders = []string{"Server", "X-Powered-By", "X-AspNet-Version", "X-AspNetMvc-Version"}

// HeaderProbe fetches the domain over HTTPS and grades its security
// headers, cookie flags, CORS posture, cache policy and certificate expiry.
type HeaderProbe struct {
	Client *http.Client
}

func NewHeaderProbe(client *http.Client) *HeaderProbe {
	return &HeaderProbe{Client: client}
}

func (p *HeaderProbe) Definition() scan.Definition {
	return scan.Definition{
		ID:          IDHeaders,
		Label:       "Security headers",
		Description: "HTTPS response headers graded against current browser-security guidance.",
	}
}

func (p *HeaderProbe) Run(ctx context.Context, domain string) (scan.Outcome, error) {
	target, err := scan.SanitizeDomain(domain)
	if err != nil {
		return scan.Outcome{}, err
	}

	resp, err := p.fetch(ctx, "https://"+target+"/")
	if err != nil {
		return scan.Outcome{}, err
	}
	defer resp.Body.Close()
	// Headers are all we need; drain enough to allow connection reuse.
	_, _ = readCapped(resp.Body)

	report, issues := gradeResponse(resp, time.Now())
	summary := fmt.Sprintf("grade %s (%d/%d)", report.Grade, report.Score, report.MaxScore)
	return scan.Outcome{Summary: summary, Issues: issues, Data: report}, nil
}

// fetch tries HEAD first and falls back to GET for servers that reject it.
func (p *HeaderProbe) fetch(ctx context.Context, url string) (*http.Response, error) {
	req, err := newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err == nil && resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusNotImplemented {
		return resp, nil
	}
	if err == nil {
		resp.Body.Close()
	}

	req, err = newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	resp, err = p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	return resp, nil
}

func gradeResponse(resp *http.Response, now time.Time) (HeaderReport, []string) {
	report := HeaderReport{
		Headers:  make(map[string]string),
		MaxScore: 0,
	}
	var issues []string

	score := 0
	for _, spec := range gradedHeaders {
		report.MaxScore += spec.MaxScore
		value := resp.Header.Get(spec.Name)
		if value == "" {
			report.Missing = append(report.Missing, spec.Name)
			if spec.Severity == "high" {
				issues = append(issues, "missing "+spec.Name+" header")
			}
			continue
		}
		report.Headers[spec.Name] = value
		headerScore, headerIssues := spec.Check(value)
		score += headerScore
		for _, issue := range headerIssues {
			issues = append(issues, spec.Name+": "+issue)
		}
	}
	report.Score = score
	report.Grade = scoreGrade(score, report.MaxScore)

	for _, name := range disclosureHeaders {
		if value := resp.Header.Get(name); value != "" {
			issues = append(issues, fmt.Sprintf("%s header exposes implementation details (%q)", name, value))
		}
	}
	if xss := resp.Header.Get("X-XSS-Protection"); xss != "" && xss != "0" {
		issues = append(issues, "X-XSS-Protection is deprecated and can introduce vulnerabilities; set it to 0 or remove it")
	}

	cookieFindings, cookieIssues := analyzeCookies(resp)
	report.Cookies = cookieFindings
	issues = append(issues, cookieIssues...)

	cors, corsIssues := analyzeCORS(resp.Header)
	report.CORS = cors
	issues = append(issues, corsIssues...)

	// Cache findings stay in the report; they are visibility, not posture issues.
	report.CachePolicy = analyzeCachePolicy(resp.Header)

	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		cert := resp.TLS.PeerCertificates[0]
		days := int(cert.NotAfter.Sub(now).Hours() / 24)
		report.TLS = &TLSInfo{
			Version:         tlsVersionName(resp.TLS.Version),
			Issuer:          cert.Issuer.CommonName,
			NotAfter:        cert.NotAfter,
			DaysUntilExpiry: days,
		}
		switch {
		case days < 0:
			issues = append(issues, fmt.Sprintf("served TLS certificate expired %d days ago", -days))
		case days <= tlsExpiryWarningDays:
			issues = append(issues, fmt.Sprintf("served TLS certificate expires in %d days", days))
		}
	}

	return report, issues
}

func scoreGrade(score, maxScore int) string {
	percentage := float64(score) / float64(maxScore) * 100
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	case percentage >= 50:
		return "E"
	default:
		return "F"
	}
}

func tlsVersionName(version uint16) string {
	switch version {
	case 0x0304:
		return "TLS 1.3"
	case 0x0303:
		return "TLS 1.2"
	case 0x0302:
		return "TLS 1.1"
	case 0x0301:
		return "TLS 1.0"
	default:
		return fmt.Sprintf("0x%04x", version)
	}
}

func checkHSTS(value string) (int, []string) {
	var issues []string
	score := 20
	value = strings.ToLower(value)

	switch {
	case !strings.Contains(value, "max-age="):
		issues = append(issues, "missing max-age directive")
		score -= 10
	case strings.Contains(value, "max-age=0"):
		issues = append(issues, "max-age=0 disables HSTS")
		score = 0
	case !strings.Contains(value, "max-age=31536000") && !strings.Contains(value, "max-age=63072000"):
		issues = append(issues, "max-age below one year")
		score -= 3
	}
	if !strings.Contains(value, "includesubdomains") {
		issues = append(issues, "missing includeSubDomains directive")
		score -= 5
	}
	if score < 0 {
		score = 0
	}
	return score, issues
}

func checkCSP(value string) (int, []string) {
	var issues []string
	score := 20
	value = strings.ToLower(value)

	if strings.Contains(value, "'unsafe-inline'") {
		issues = append(issues, "'unsafe-inline' weakens the policy")
		score -= 5
	}
	if strings.Contains(value, "'unsafe-eval'") {
		issues = append(issues, "'unsafe-eval' allows eval() and similar")
		score -= 5
	}
	if !strings.Contains(value, "default-src") {
		issues = append(issues, "missing default-src fallback directive")
		score -= 3
	}
	if score < 0 {
		score = 0
	}
	return score, issues
}

func checkXFrameOptions(value string) (int, []string) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DENY", "SAMEORIGIN":
		return 15, nil
	}
	if strings.HasPrefix(strings.ToUpper(value), "ALLOW-FROM") {
		return 5, []string{"ALLOW-FROM is deprecated; use CSP frame-ancestors"}
	}
	return 0, []string{"invalid value; use DENY or SAMEORIGIN"}
}

func checkXContentTypeOptions(value string) (int, []string) {
	if strings.EqualFold(strings.TrimSpace(value), "nosniff") {
		return 15, nil
	}
	return 0, []string{"invalid value; use nosniff"}
}

func checkReferrerPolicy(value string) (int, []string) {
	value = strings.ToLower(value)
	for _, good := range []string{"no-referrer", "strict-origin", "strict-origin-when-cross-origin", "same-origin"} {
		if strings.Contains(value, good) {
			return 10, nil
		}
	}
	if strings.Contains(value, "unsafe-url") {
		return 3, []string{"unsafe-url leaks full URLs cross-origin"}
	}
	return 7, []string{"weak referrer policy"}
}

func checkPermissionsPolicy(value string) (int, []string) {
	if len(value) < 10 {
		return 7, []string{"policy restricts very little"}
	}
	return 10, nil
}

func checkCOOP(value string) (int, []string) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "same-origin", "same-origin-allow-popups":
		return 5, nil
	case "unsafe-none":
		return 1, []string{"unsafe-none provides no isolation"}
	}
	return 0, []string{"invalid value; use same-origin"}
}

func checkCOEP(value string) (int, []string) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "require-corp", "credentialless":
		return 5, nil
	case "unsafe-none":
		return 1, []string{"unsafe-none provides no isolation"}
	}
	return 0, []string{"invalid value; use require-corp"}
}
