package scan

import (
	"strings"
	"unicode"
)

const maxDomainLength = 253

// NormalizeDomain lowers and trims a raw target so cache keys, store files
// and probe inputs all agree on one canonical form.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// SanitizeDomain normalizes a raw target and validates that the result is a
// bare DNS name safe to embed in outbound queries. Anything that could
// smuggle a path, credential, port or scheme into an upstream request is
// rejected before it reaches a probe.
func SanitizeDomain(domain string) (string, error) {
	normalized := NormalizeDomain(domain)
	if normalized == "" {
		return "", &DomainError{Domain: domain, Reason: "empty domain"}
	}
	if strings.ContainsAny(normalized, "/\\") {
		return "", &DomainError{Domain: domain, Reason: "path separators are not allowed"}
	}
	if strings.ContainsRune(normalized, '@') {
		return "", &DomainError{Domain: domain, Reason: "credentials are not allowed"}
	}
	if strings.ContainsRune(normalized, ':') {
		return "", &DomainError{Domain: domain, Reason: "ports and schemes are not allowed"}
	}
	if strings.IndexFunc(normalized, unicode.IsSpace) >= 0 {
		return "", &DomainError{Domain: domain, Reason: "whitespace is not allowed"}
	}
	if !isValidHostname(normalized) {
		return "", &DomainError{Domain: domain, Reason: "not a valid DNS hostname"}
	}
	return normalized, nil
}

// isValidHostname enforces DNS naming rules: at most 253 characters overall,
// labels of 1-63 characters, alphanumerics and interior hyphens only.
func isValidHostname(hostname string) bool {
	if hostname == "" || len(hostname) > maxDomainLength {
		return false
	}
	hostname = strings.TrimSuffix(hostname, ".")
	if hostname == "" {
		return false
	}
	labels := strings.Split(hostname, ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
				return false
			}
		}
	}
	return true
}
