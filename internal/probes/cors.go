package probes

import (
	"net/http"
	"strings"
)

// CORSFindings captures the cross-origin posture of the scanned page.
type CORSFindings struct {
	AllowOrigin      string `json:"allow_origin"`
	AllowCredentials bool   `json:"allow_credentials"`
	AllowsAnyOrigin  bool   `json:"allows_any_origin"`
	VaryOrigin       bool   `json:"vary_origin"`
}

// analyzeCORS flags risky CORS configurations. Pages that do not send
// Access-Control-Allow-Origin are not participating in CORS and report
// nothing.
func analyzeCORS(h http.Header) (*CORSFindings, []string) {
	allowOrigin := h.Get("Access-Control-Allow-Origin")
	if allowOrigin == "" {
		return nil, nil
	}

	findings := &CORSFindings{
		AllowOrigin:      allowOrigin,
		AllowCredentials: h.Get("Access-Control-Allow-Credentials") == "true",
		AllowsAnyOrigin:  allowOrigin == "*",
		VaryOrigin:       varyIncludesOrigin(h.Values("Vary")),
	}

	var issues []string
	if findings.AllowsAnyOrigin {
		issues = append(issues, "cross-origin requests are allowed from any origin (Access-Control-Allow-Origin: *)")
		if findings.AllowCredentials {
			issues = append(issues, "credentials are allowed together with a wildcard origin")
		}
	}
	if allowHeaders := h.Get("Access-Control-Allow-Headers"); strings.Contains(allowHeaders, "*") {
		issues = append(issues, "Access-Control-Allow-Headers allows any request header")
	}
	if !findings.AllowsAnyOrigin && !findings.VaryOrigin {
		issues = append(issues, "Access-Control-Allow-Origin is set without Vary: Origin; responses may be cached for the wrong origin")
	}
	return findings, issues
}

func varyIncludesOrigin(values []string) bool {
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "origin") {
				return true
			}
		}
	}
	return false
}
