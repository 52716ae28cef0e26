package cmd

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"math"
	"os"
	"strings"
	"text/tabwriter"
	texttemplate "text/template"
	"time"

	"github.com/domainposture/posture-cli/internal/catalog"
	"github.com/domainposture/posture-cli/internal/interpret"
	"github.com/domainposture/posture-cli/internal/scan"
	"github.com/domainposture/posture-cli/internal/store"
	"github.com/jung-kurt/gofpdf"
	"github.com/spf13/cobra"
)

const (
	htmlTemplatePath     = "templates/report.html"
	markdownTemplatePath = "templates/report.md"
	statsStaleWindow     = 30 * 24 * time.Hour
)

//go:embed templates/report.html templates/report.md
var reportTemplateFS embed.FS

var (
	htmlTemplateFuncs = htmltemplate.FuncMap{
		"add":            addInts,
		"join":           strings.Join,
		"lower":          strings.ToLower,
		"formatTime":     formatShortTimestamp,
		"formatDuration": formatDurationLabel,
		"formatSuccess":  formatSuccessRate,
		"badgeClass":     severityBadgeClass,
	}

	markdownTemplateFuncs = texttemplate.FuncMap{
		"add":            addInts,
		"join":           strings.Join,
		"formatTime":     formatShortTimestamp,
		"formatDuration": formatDurationLabel,
		"formatSuccess":  formatSuccessRate,
	}

	htmlReportTemplate = htmltemplate.Must(
		htmltemplate.New("report.html").Funcs(htmlTemplateFuncs).ParseFS(reportTemplateFS, htmlTemplatePath),
	)
	markdownReportTemplate = texttemplate.Must(
		texttemplate.New("report.md").Funcs(markdownTemplateFuncs).ParseFS(reportTemplateFS, markdownTemplatePath),
	)
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate posture reports from stored scans",
}

// TemplateData holds the data for HTML/PDF/Markdown template rendering
type TemplateData struct {
	Domain       string
	ScannedAt    string
	GeneratedAt  string
	Overall      string
	ProbeCount   int
	OKCount      int
	ErrorCount   int
	IssueCount   int
	SuccessRate  string
	Probes       []probeSection
	Catalog      []catalog.Entry
	TrendHistory []telemetryRecord
	TrendSummary TrendSummary
	FooterDate   string
}

type probeSection struct {
	ID             string
	Label          string
	Status         string
	Severity       string
	Message        string
	Recommendation string
	Summary        string
	Issues         []string
	Duration       string
	DataSourceName string
	DataSourceURL  string
	Failed         bool
}

// TrendSummary condenses the telemetry history shown in a report.
type TrendSummary struct {
	AverageSuccess  float64
	AverageDuration float64
}

var reportGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a report for a scanned domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		domainFlag, _ := cmd.Flags().GetString("domain")
		format, _ := cmd.Flags().GetString("format")
		outputPath, _ := cmd.Flags().GetString("output")

		if domainFlag == "" {
			return fmt.Errorf("--domain is required")
		}
		domain, err := scan.SanitizeDomain(domainFlag)
		if err != nil {
			return err
		}

		format = strings.ToLower(format)
		if format != "json" && format != "md" && format != "html" && format != "pdf" {
			return fmt.Errorf("invalid format: %s (must be json, md, html, or pdf)", format)
		}

		agg, err := loadStoredAggregate(domain)
		if err != nil {
			return err
		}

		trendHistory, histErr := loadTelemetryHistory(domain, 8)
		if histErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load telemetry history: %v\n", histErr)
		}

		interp := interpret.NewInterpreter()

		var content []byte
		switch format {
		case "json":
			out := buildScanOutput(interp, agg, false)
			payload, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to generate report: %w", err)
			}
			content = payload
		case "md":
			data := buildTemplateData(interp, agg, trendHistory)
			rendered, err := executeMarkdownTemplate(data)
			if err != nil {
				return fmt.Errorf("failed to generate report: %w", err)
			}
			content = []byte(rendered)
		case "html":
			data := buildTemplateData(interp, agg, trendHistory)
			rendered, err := executeHTMLTemplate(data)
			if err != nil {
				return fmt.Errorf("failed to generate report: %w", err)
			}
			content = []byte(rendered)
		case "pdf":
			data := buildTemplateData(interp, agg, trendHistory)
			pdfBytes, err := generatePDFReportBytes(data)
			if err != nil {
				return fmt.Errorf("failed to generate PDF report: %w", err)
			}
			content = pdfBytes
		}

		reportPath := outputPath
		if reportPath == "" {
			reportsDir, err := getReportsDir()
			if err != nil {
				return err
			}
			reportPath = fmt.Sprintf("%s/%s.%s", reportsDir, domain, format)
		}

		if err := os.WriteFile(reportPath, content, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}

		fmt.Printf("Report generated: %s\n", reportPath)
		fmt.Printf("Format: %s\n", format)
		fmt.Printf("Probes: %d | Issues: %d\n", len(agg.Probes), len(agg.Issues))

		return nil
	},
}

// loadStoredAggregate loads the most recent scan of a domain, turning a miss
// into an actionable hint.
func loadStoredAggregate(domain string) (*scan.Aggregate, error) {
	scansDir, err := getScansDir()
	if err != nil {
		return nil, err
	}
	st, err := store.NewAggregateStore(scansDir)
	if err != nil {
		return nil, fmt.Errorf("open aggregate store: %w", err)
	}

	agg, err := st.Load(domain)
	if err != nil {
		if errors.Is(err, store.ErrAggregateNotFound) {
			return nil, fmt.Errorf("no stored scan for %s (run `posture scan %s` first)", domain, domain)
		}
		return nil, err
	}
	return agg, nil
}

func buildTemplateData(interp *interpret.Interpreter, agg *scan.Aggregate, trends []telemetryRecord) TemplateData {
	okCount, errorCount := summarizeProbeStatuses(agg.Probes)
	total := len(agg.Probes)
	successRate := 0.0
	if total > 0 {
		successRate = float64(okCount) / float64(total) * 100
	}

	now := time.Now()
	sections := make([]probeSection, 0, len(agg.Probes))
	for _, r := range agg.Probes {
		reading := interp.Interpret(r)
		section := probeSection{
			ID:             r.ID,
			Label:          r.Label,
			Status:         string(r.Status),
			Severity:       string(reading.Severity),
			Message:        reading.Message,
			Recommendation: reading.Recommendation,
			Summary:        r.Summary,
			Issues:         r.Issues,
			Failed:         r.Status == scan.StatusError,
		}
		if r.StartedAt != nil && r.FinishedAt != nil {
			section.Duration = formatDurationLabel(r.FinishedAt.Sub(*r.StartedAt).Seconds())
		}
		if r.DataSource != nil {
			section.DataSourceName = r.DataSource.Name
			section.DataSourceURL = r.DataSource.URL
		}
		sections = append(sections, section)
	}

	return TemplateData{
		Domain:       agg.Domain,
		ScannedAt:    agg.Timestamp.Format(time.RFC1123),
		GeneratedAt:  now.Format(time.RFC3339),
		Overall:      string(interp.Overall(agg.Probes)),
		ProbeCount:   total,
		OKCount:      okCount,
		ErrorCount:   errorCount,
		IssueCount:   len(agg.Issues),
		SuccessRate:  fmt.Sprintf("%.1f%%", successRate),
		Probes:       sections,
		Catalog:      catalog.Entries(),
		TrendHistory: trends,
		TrendSummary: summarizeTrendHistory(trends),
		FooterDate:   now.Format("2006-01-02 15:04:05"),
	}
}

func summarizeTrendHistory(trends []telemetryRecord) TrendSummary {
	if len(trends) == 0 {
		return TrendSummary{}
	}
	sumSuccess := 0.0
	sumDuration := 0.0
	for _, rec := range trends {
		sumSuccess += rec.SuccessRate
		sumDuration += rec.DurationSeconds
	}
	count := float64(len(trends))
	return TrendSummary{
		AverageSuccess:  sumSuccess / count,
		AverageDuration: sumDuration / count,
	}
}

func executeHTMLTemplate(data TemplateData) (string, error) {
	var buf strings.Builder
	if err := htmlReportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute report.html template: %w", err)
	}
	return buf.String(), nil
}

func executeMarkdownTemplate(data TemplateData) (string, error) {
	var buf strings.Builder
	if err := markdownReportTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute report.md template: %w", err)
	}
	return buf.String(), nil
}

func addInts(a, b int) int {
	return a + b
}

func formatShortTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 02 15:04")
}

func formatDurationLabel(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	min := seconds / 60
	return fmt.Sprintf("%.1f min", min)
}

func formatSuccessRate(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate)
}

func severityBadgeClass(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		return "badge-critical"
	case "error":
		return "badge-error"
	case "warning":
		return "badge-warning"
	case "success":
		return "badge-success"
	default:
		return "badge-info"
	}
}

func generatePDFReportBytes(data TemplateData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, fmt.Sprintf("Domain Posture Report: %s", data.Domain), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	// Metadata section
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Domain: %s", data.Domain), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Scanned: %s", data.ScannedAt), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", data.GeneratedAt), "", 1, "", false, 0, "")
	pdf.Ln(5)

	// Summary section
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Summary", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Overall: %s | Probes: %d | Completed: %d | Failed: %d | Issues: %d",
		strings.ToUpper(data.Overall), data.ProbeCount, data.OKCount, data.ErrorCount, data.IssueCount), "", 1, "", false, 0, "")
	pdf.Ln(5)

	// Trend section (if available)
	if len(data.TrendHistory) > 0 {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Trend Analysis", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, fmt.Sprintf("Average Success: %.1f%%", data.TrendSummary.AverageSuccess), "", 1, "", false, 0, "")
		pdf.CellFormat(0, 6, fmt.Sprintf("Average Duration: %s", formatDurationLabel(data.TrendSummary.AverageDuration)), "", 1, "", false, 0, "")
		pdf.Ln(3)

		for _, rec := range data.TrendHistory {
			pdf.CellFormat(0, 6, fmt.Sprintf("  %s -> %s success, %s",
				formatShortTimestamp(rec.Timestamp),
				formatSuccessRate(rec.SuccessRate),
				formatDurationLabel(rec.DurationSeconds)), "", 1, "", false, 0, "")
		}
		pdf.Ln(5)
	}

	// Probe sections
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Probe Results", "", 1, "", false, 0, "")
	pdf.Ln(2)

	const maxIssuesPerProbe = 50
	for _, section := range data.Probes {
		// Check if we need a new page before adding content
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}

		// Probe header with severity
		pdf.SetFont("Arial", "B", 11)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(0, 7, fmt.Sprintf("%s - %s", section.Label, strings.ToUpper(section.Severity)), "", 1, "", true, 0, "")
		pdf.Ln(1)

		pdf.SetFont("Arial", "", 9)
		statusLine := fmt.Sprintf("Status: %s", section.Status)
		if section.Duration != "" {
			statusLine += fmt.Sprintf(" | Duration: %s", section.Duration)
		}
		if section.DataSourceName != "" {
			statusLine += fmt.Sprintf(" | Source: %s", section.DataSourceName)
		}
		pdf.CellFormat(0, 5, statusLine, "", 1, "", false, 0, "")
		pdf.MultiCell(0, 5, section.Message, "", "", false)

		if len(section.Issues) > 0 {
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(0, 5, fmt.Sprintf("Issues (%d):", len(section.Issues)), "", 1, "", false, 0, "")
			pdf.SetFont("Arial", "", 8)
			for i, issue := range section.Issues {
				if i == maxIssuesPerProbe {
					pdf.SetFont("Arial", "I", 8)
					pdf.CellFormat(0, 4, fmt.Sprintf("  ... %d additional issues omitted ...", len(section.Issues)-maxIssuesPerProbe), "", 1, "", false, 0, "")
					break
				}
				if pdf.GetY() > 270 {
					pdf.AddPage()
				}
				pdf.MultiCell(0, 4, fmt.Sprintf("  - %s", issue), "", "", false)
			}
		}

		if section.Recommendation != "" {
			pdf.SetFont("Arial", "I", 8)
			pdf.MultiCell(0, 4, fmt.Sprintf("Recommendation: %s", section.Recommendation), "", "", false)
		}

		pdf.Ln(3) // Gap between probes
	}

	// Reference catalog
	if len(data.Catalog) > 0 {
		if pdf.GetY() > 240 {
			pdf.AddPage()
		}
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, "Standards & References", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, entry := range data.Catalog {
			for _, ref := range entry.References {
				if pdf.GetY() > 270 {
					pdf.AddPage()
				}
				pdf.MultiCell(0, 5, fmt.Sprintf("%s: %s (%s)", entry.Category, ref.Title, ref.URL), "", "", false)
			}
		}
	}

	// Generate PDF bytes
	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	return buf.Bytes(), nil
}

type postureStatsEntry struct {
	Domain    string `json:"domain"`
	ScannedAt string `json:"scanned_at"`
	Overall   string `json:"overall"`
	Probes    int    `json:"probes"`
	Failures  int    `json:"failures"`
	Issues    int    `json:"issues"`
	Stale     bool   `json:"stale"`
}

type postureStatsSummary struct {
	Domains int                 `json:"domains"`
	Issues  int                 `json:"issues"`
	Worst   string              `json:"worst"`
	Stale   int                 `json:"stale"`
	Results []postureStatsEntry `json:"results"`
}

func summarizePostureStats(interp *interpret.Interpreter, aggregates []*scan.Aggregate) postureStatsSummary {
	summary := postureStatsSummary{
		Worst:   string(interpret.SeveritySuccess),
		Results: make([]postureStatsEntry, 0, len(aggregates)),
	}

	worst := interpret.SeveritySuccess
	for _, agg := range aggregates {
		_, failures := summarizeProbeStatuses(agg.Probes)
		overall := interp.Overall(agg.Probes)
		entry := postureStatsEntry{
			Domain:    agg.Domain,
			ScannedAt: agg.Timestamp.Format(time.RFC3339),
			Overall:   string(overall),
			Probes:    len(agg.Probes),
			Failures:  failures,
			Issues:    len(agg.Issues),
			Stale:     time.Since(agg.Timestamp) > statsStaleWindow,
		}
		summary.Domains++
		summary.Issues += len(agg.Issues)
		if entry.Stale {
			summary.Stale++
		}
		if overall.Rank() < worst.Rank() {
			worst = overall
		}
		summary.Results = append(summary.Results, entry)
	}
	summary.Worst = string(worst)

	return summary
}

func printStatsText(summary postureStatsSummary) {
	fmt.Println(colorInfo("Fleet Summary"))
	fmt.Printf("Domains: %d | Issues: %s | Worst: %s | Stale (>30d): %s\n",
		summary.Domains,
		colorWarn(fmt.Sprintf("%d", summary.Issues)),
		formatSeverityWithColor(summary.Worst),
		colorWarn(fmt.Sprintf("%d", summary.Stale)),
	)
}

func printStatsTable(summary postureStatsSummary) {
	if len(summary.Results) == 0 {
		fmt.Println(colorWarn("No stored scans found."))
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tOVERALL\tPROBES\tFAILED\tISSUES\tSTALE?\tSCANNED")
	for _, entry := range summary.Results {
		staleCol := "no"
		if entry.Stale {
			staleCol = colorWarn("yes")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			entry.Domain,
			formatSeverityWithColor(entry.Overall),
			entry.Probes,
			entry.Failures,
			entry.Issues,
			staleCol,
			entry.ScannedAt,
		)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush stats table: %v\n", err)
	}
}

var reportStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a fleet-wide summary of every stored scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		format = strings.ToLower(strings.TrimSpace(format))
		if format == "" {
			format = "text"
		}

		scansDir, err := getScansDir()
		if err != nil {
			return err
		}
		st, err := store.NewAggregateStore(scansDir)
		if err != nil {
			return fmt.Errorf("open aggregate store: %w", err)
		}

		domains, err := st.List()
		if err != nil {
			return fmt.Errorf("list stored scans: %w", err)
		}

		aggregates := make([]*scan.Aggregate, 0, len(domains))
		for _, domain := range domains {
			agg, err := st.Load(domain)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to load scan of %s: %v\n", domain, err)
				continue
			}
			aggregates = append(aggregates, agg)
		}

		summary := summarizePostureStats(interpret.NewInterpreter(), aggregates)

		switch format {
		case "json":
			payload, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
		case "table":
			printStatsTable(summary)
		case "text":
			printStatsText(summary)
		default:
			return fmt.Errorf("unsupported format %q (use text|table|json)", format)
		}
		return nil
	},
}

func printTelemetryASCII(records []telemetryRecord) {
	const barWidth = 40
	fmt.Println(colorInfo("Telemetry Success Rate Trend"))
	for _, rec := range records {
		barLen := int(math.Round((rec.SuccessRate / 100.0) * barWidth))
		if barLen < 0 {
			barLen = 0
		}
		if barLen > barWidth {
			barLen = barWidth
		}
		if barLen == 0 && rec.SuccessRate > 0 {
			barLen = 1
		}
		bar := strings.Repeat("#", barLen)
		fmt.Printf("%s | %6.2f%% | %-*s | %s (%d probes)\n",
			rec.Timestamp.Format("2006-01-02 15:04"),
			rec.SuccessRate,
			barWidth,
			bar,
			rec.Domain,
			rec.ProbeCount,
		)
	}
}

var reportTelemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Graph scan telemetry success rate trend",
	RunE: func(cmd *cobra.Command, args []string) error {
		domainFlag, _ := cmd.Flags().GetString("domain")
		format, _ := cmd.Flags().GetString("format")
		limit, _ := cmd.Flags().GetInt("limit")

		domain := ""
		if domainFlag != "" {
			var err error
			domain, err = scan.SanitizeDomain(domainFlag)
			if err != nil {
				return err
			}
		}

		history, err := loadTelemetryHistory(domain, limit)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Printf("%s telemetry records found (enable with `posture scan --telemetry`)\n", colorWarn("No"))
			return nil
		}

		switch strings.ToLower(format) {
		case "json":
			out, err := json.MarshalIndent(history, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal telemetry: %w", err)
			}
			fmt.Println(string(out))
		case "ascii":
			printTelemetryASCII(history)
		default:
			return fmt.Errorf("unsupported format %s (use ascii or json)", format)
		}

		return nil
	},
}

func init() {
	reportGenerateCmd.Flags().String("domain", "", "Domain with a stored scan")
	reportGenerateCmd.Flags().String("format", "md", "Output format: json|md|html|pdf")
	reportGenerateCmd.Flags().String("output", "", "Write the report to this path instead of the reports directory")
	reportStatsCmd.Flags().String("format", "text", "Output format: text|table|json")
	reportTelemetryCmd.Flags().String("domain", "", "Only show telemetry for this domain")
	reportTelemetryCmd.Flags().String("format", "ascii", "Output format: ascii|json")
	reportTelemetryCmd.Flags().Int("limit", 10, "Number of recent runs to display")
	reportCmd.AddCommand(reportGenerateCmd)
	reportCmd.AddCommand(reportStatsCmd)
	reportCmd.AddCommand(reportTelemetryCmd)
}
