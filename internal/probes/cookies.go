package probes

import (
	"fmt"
	"net/http"
)

// CookieFinding records a cookie set without hardening flags. The raw
// Set-Cookie value is deliberately not retained; reports are persisted
// and must not capture session material.
type CookieFinding struct {
	Name            string `json:"name"`
	MissingSecure   bool   `json:"missing_secure"`
	MissingHTTPOnly bool   `json:"missing_http_only"`
}

// analyzeCookies inspects Set-Cookie headers for missing Secure/HttpOnly flags.
func analyzeCookies(resp *http.Response) ([]CookieFinding, []string) {
	if len(resp.Header["Set-Cookie"]) == 0 {
		return nil, nil
	}

	var findings []CookieFinding
	var issues []string
	for _, cookie := range resp.Cookies() {
		finding := CookieFinding{
			Name:            cookie.Name,
			MissingSecure:   !cookie.Secure,
			MissingHTTPOnly: !cookie.HttpOnly,
		}
		switch {
		case finding.MissingSecure && finding.MissingHTTPOnly:
			issues = append(issues, fmt.Sprintf("cookie %q is missing the Secure and HttpOnly flags", cookie.Name))
		case finding.MissingSecure:
			issues = append(issues, fmt.Sprintf("cookie %q is missing the Secure flag", cookie.Name))
		case finding.MissingHTTPOnly:
			issues = append(issues, fmt.Sprintf("cookie %q is missing the HttpOnly flag", cookie.Name))
		default:
			continue
		}
		findings = append(findings, finding)
	}
	return findings, issues
}
