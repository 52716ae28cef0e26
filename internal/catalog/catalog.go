// Package catalog maps each probe to the standards and references its checks
// are based on, for display alongside findings.
package catalog

import "github.com/domainposture/posture-cli/internal/probes"

// Reference points at a standard or authoritative write-up backing a probe's
// checks.
type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Entry collects the references for one probe.
type Entry struct {
	ProbeID    string      `json:"probe_id"`
	Category   string      `json:"category"`
	References []Reference `json:"references"`
}

// entries is ordered to match the probe display order.
var entries = []Entry{
	{
		ProbeID:  probes.IDDNS,
		Category: "DNS",
		References: []Reference{
			{Title: "RFC 1034: Domain Names - Concepts and Facilities", URL: "https://www.rfc-editor.org/rfc/rfc1034"},
			{Title: "RFC 8659: DNS Certification Authority Authorization (CAA)", URL: "https://www.rfc-editor.org/rfc/rfc8659"},
			{Title: "RFC 4033: DNS Security Introduction and Requirements", URL: "https://www.rfc-editor.org/rfc/rfc4033"},
			{Title: "OWASP: Testing for Subdomain Takeover", URL: "https://owasp.org/www-project-web-security-testing-guide/latest/4-Web_Application_Security_Testing/02-Configuration_and_Deployment_Management_Testing/10-Test_for_Subdomain_Takeover"},
		},
	},
	{
		ProbeID:  probes.IDEmailAuth,
		Category: "Email",
		References: []Reference{
			{Title: "RFC 7208: Sender Policy Framework (SPF)", URL: "https://www.rfc-editor.org/rfc/rfc7208"},
			{Title: "RFC 6376: DomainKeys Identified Mail (DKIM) Signatures", URL: "https://www.rfc-editor.org/rfc/rfc6376"},
			{Title: "RFC 7489: Domain-based Message Authentication, Reporting, and Conformance (DMARC)", URL: "https://www.rfc-editor.org/rfc/rfc7489"},
		},
	},
	{
		ProbeID:  probes.IDCertificates,
		Category: "TLS & PKI",
		References: []Reference{
			{Title: "RFC 6962: Certificate Transparency", URL: "https://www.rfc-editor.org/rfc/rfc6962"},
			{Title: "RFC 5280: Internet X.509 Public Key Infrastructure Certificate Profile", URL: "https://www.rfc-editor.org/rfc/rfc5280"},
			{Title: "crt.sh: Certificate Search", URL: "https://crt.sh"},
		},
	},
	{
		ProbeID:  probes.IDRegistration,
		Category: "Registration",
		References: []Reference{
			{Title: "RFC 9082: Registration Data Access Protocol (RDAP) Query Format", URL: "https://www.rfc-editor.org/rfc/rfc9082"},
			{Title: "RFC 9083: JSON Responses for the Registration Data Access Protocol (RDAP)", URL: "https://www.rfc-editor.org/rfc/rfc9083"},
			{Title: "ICANN: EPP Status Codes", URL: "https://www.icann.org/resources/pages/epp-status-codes-2014-06-16-en"},
		},
	},
	{
		ProbeID:  probes.IDHeaders,
		Category: "Web",
		References: []Reference{
			{Title: "RFC 6797: HTTP Strict Transport Security (HSTS)", URL: "https://www.rfc-editor.org/rfc/rfc6797"},
			{Title: "W3C: Content Security Policy Level 3", URL: "https://www.w3.org/TR/CSP3/"},
			{Title: "OWASP Secure Headers Project", URL: "https://owasp.org/www-project-secure-headers/"},
			{Title: "RFC 6265: HTTP State Management Mechanism (Cookies)", URL: "https://www.rfc-editor.org/rfc/rfc6265"},
		},
	},
}

// Entries returns every catalog entry in probe display order. The result is
// a copy; callers may not mutate the catalog.
func Entries() []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e
		out[i].References = append([]Reference(nil), e.References...)
	}
	return out
}

// ForProbe returns the catalog entry for a probe ID, or nil when the probe
// has no recorded references.
func ForProbe(probeID string) *Entry {
	for _, e := range entries {
		if e.ProbeID == probeID {
			entry := e
			entry.References = append([]Reference(nil), e.References...)
			return &entry
		}
	}
	return nil
}
