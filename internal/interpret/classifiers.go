package interpret

import (
	"fmt"
	"strings"

	"github.com/domainposture/posture-cli/internal/probes"
	"github.com/domainposture/posture-cli/internal/scan"
)

func classifyDNS(r scan.Result) Interpretation {
	if issue, ok := issueContaining(r, "subdomain takeover"); ok {
		return Interpretation{
			Severity:       SeverityCritical,
			Message:        issue,
			Recommendation: "remove the dangling CNAME record or reclaim the endpoint it points at",
		}
	}
	if len(r.Issues) == 0 {
		return success(r, "DNS posture looks healthy")
	}
	return Interpretation{
		Severity:       SeverityWarning,
		Message:        issueMessage(r, "%d DNS hygiene findings"),
		Recommendation: "add a second nameserver, publish CAA records and enable DNSSEC where flagged",
	}
}

func classifyEmailAuth(r scan.Result) Interpretation {
	if issue, ok := issueContaining(r, "no SPF record"); ok {
		return Interpretation{
			Severity:       SeverityCritical,
			Message:        issue,
			Recommendation: "publish an SPF record listing your sending hosts, ending in ~all or -all",
		}
	}
	if issue, ok := issueContaining(r, "no DMARC record"); ok {
		return Interpretation{
			Severity:       SeverityCritical,
			Message:        issue,
			Recommendation: "publish a DMARC record; start at p=none with rua reporting, then move to quarantine or reject",
		}
	}
	if issue, ok := issueContaining(r, "+all"); ok {
		return Interpretation{
			Severity:       SeverityCritical,
			Message:        issue,
			Recommendation: "replace +all with -all or ~all; +all authorizes every host on the internet to send mail as this domain",
		}
	}
	if len(r.Issues) == 0 {
		return success(r, "SPF, DMARC and DKIM are in place")
	}
	return Interpretation{
		Severity:       SeverityWarning,
		Message:        issueMessage(r, "%d email authentication findings"),
		Recommendation: "tighten the DMARC policy and publish DKIM keys for your outbound senders",
	}
}

func classifyCertificates(r scan.Result) Interpretation {
	if onlyIssue(r, probes.NoCertificatesIssue) {
		return Interpretation{
			Severity:       SeverityInfo,
			Message:        probes.NoCertificatesIssue,
			Recommendation: "expected for domains that serve no TLS; otherwise check that your CA logs to certificate transparency",
		}
	}
	if issue, ok := issueContaining(r, "expired"); ok {
		return Interpretation{
			Severity:       SeverityCritical,
			Message:        issue,
			Recommendation: "renew the certificate immediately; clients reject expired certificates",
		}
	}
	if issue, ok := issueContaining(r, "expires in"); ok {
		return Interpretation{
			Severity:       SeverityWarning,
			Message:        issue,
			Recommendation: "renew before the expiry date; automate renewal where possible",
		}
	}
	if len(r.Issues) == 0 {
		return success(r, "certificate inventory looks healthy")
	}
	return Interpretation{
		Severity:       SeverityWarning,
		Message:        issueMessage(r, "%d certificate findings"),
		Recommendation: "review the certificates issued for this domain",
	}
}

func classifyRegistration(r scan.Result) Interpretation {
	if onlyIssue(r, probes.NoRegistrationDataIssue) {
		return Interpretation{
			Severity:       SeverityInfo,
			Message:        probes.NoRegistrationDataIssue,
			Recommendation: "some registries do not publish RDAP; verify the registration with the registrar directly",
		}
	}
	if issue, ok := issueContaining(r, "on hold"); ok {
		return Interpretation{
			Severity:       SeverityCritical,
			Message:        issue,
			Recommendation: "contact the registrar immediately to resolve the hold",
		}
	}
	if issue, ok := issueContaining(r, "pending deletion"); ok {
		return Interpretation{
			Severity:       SeverityCritical,
			Message:        issue,
			Recommendation: "renew immediately; the registration is about to be released",
		}
	}
	if issue, ok := issueContaining(r, "registration expired"); ok {
		return Interpretation{
			Severity:       SeverityCritical,
			Message:        issue,
			Recommendation: "renew immediately; expired registrations can be claimed by anyone once released",
		}
	}
	if len(r.Issues) == 0 {
		return success(r, "registration looks healthy")
	}
	return Interpretation{
		Severity:       SeverityWarning,
		Message:        issueMessage(r, "%d registration findings"),
		Recommendation: "enable the registrar transfer lock and renew well ahead of expiry",
	}
}

func classifyHeaders(r scan.Result) Interpretation {
	if issue, ok := issueContaining(r, "certificate expired"); ok {
		return Interpretation{
			Severity:       SeverityCritical,
			Message:        issue,
			Recommendation: "replace the served certificate immediately; browsers are rejecting it",
		}
	}

	deployRec := "deploy the missing headers, starting with Strict-Transport-Security and Content-Security-Policy"
	switch grade := headerGrade(r); grade {
	case "F":
		return Interpretation{Severity: SeverityCritical, Message: gradeMessage(r, grade), Recommendation: deployRec}
	case "D", "E":
		return Interpretation{Severity: SeverityWarning, Message: gradeMessage(r, grade), Recommendation: deployRec}
	}

	if len(r.Issues) == 0 {
		return success(r, "security headers look healthy")
	}
	return Interpretation{
		Severity:       SeverityWarning,
		Message:        issueMessage(r, "%d security header findings"),
		Recommendation: "address the flagged header, cookie and CORS weaknesses",
	}
}

func classifyGeneric(r scan.Result) Interpretation {
	if len(r.Issues) == 0 {
		return success(r, "no issues found")
	}
	return Interpretation{
		Severity:       SeverityWarning,
		Message:        issueMessage(r, "%d findings"),
		Recommendation: "review the reported findings",
	}
}

// headerGrade digs the letter grade out of the headers result. The payload
// is a HeaderReport fresh from a scan and a plain map after a JSON
// round-trip through the store; the summary carries it as a last resort.
func headerGrade(r scan.Result) string {
	switch data := r.Data.(type) {
	case probes.HeaderReport:
		return data.Grade
	case *probes.HeaderReport:
		if data != nil {
			return data.Grade
		}
	case map[string]any:
		if grade, ok := data["grade"].(string); ok {
			return grade
		}
	}
	if rest, ok := strings.CutPrefix(r.Summary, "grade "); ok && rest != "" {
		return rest[:1]
	}
	return ""
}

func gradeMessage(r scan.Result, grade string) string {
	if r.Summary != "" {
		return r.Summary
	}
	return "security headers graded " + grade
}

func success(r scan.Result, fallback string) Interpretation {
	message := r.Summary
	if message == "" {
		message = fallback
	}
	return Interpretation{Severity: SeveritySuccess, Message: message}
}

// issueMessage quotes a lone issue verbatim and counts larger sets.
func issueMessage(r scan.Result, countFormat string) string {
	if len(r.Issues) == 1 {
		return r.Issues[0]
	}
	return fmt.Sprintf(countFormat, len(r.Issues))
}

func issueContaining(r scan.Result, substr string) (string, bool) {
	for _, issue := range r.Issues {
		if strings.Contains(issue, substr) {
			return issue, true
		}
	}
	return "", false
}

func onlyIssue(r scan.Result, issue string) bool {
	return len(r.Issues) == 1 && r.Issues[0] == issue
}
