package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/domainposture/posture-cli/internal/gate"
	"github.com/domainposture/posture-cli/internal/interpret"
	"github.com/domainposture/posture-cli/internal/scan"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan [domain]",
	Short: "Run the full probe suite against a domain",
	Long: `Run every registered probe (DNS, email authentication, certificate
transparency, registration, security headers) against a domain and print the
interpreted posture. Results are persisted and reused while fresh; pass
--refresh to probe upstream again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScanCommand,
}

// scanOutput is the JSON shape emitted with --json.
type scanOutput struct {
	Aggregate *scan.Aggregate    `json:"aggregate"`
	Readings  []probeReading     `json:"readings"`
	Overall   interpret.Severity `json:"overall"`
	Cached    bool               `json:"cached,omitempty"`
}

type probeReading struct {
	ID             string             `json:"id"`
	Label          string             `json:"label"`
	Severity       interpret.Severity `json:"severity"`
	Message        string             `json:"message"`
	Recommendation string             `json:"recommendation,omitempty"`
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	watchlistName, _ := cmd.Flags().GetString("watchlist")

	var threshold interpret.Severity
	if cliConfig.Scan.FailOn != "" {
		var err error
		threshold, err = parseSeverityThreshold(cliConfig.Scan.FailOn)
		if err != nil {
			return err
		}
	}

	var domains []string
	switch {
	case watchlistName != "":
		wl, err := loadWatchlist(watchlistName)
		if err != nil {
			return err
		}
		if len(wl.Domains) == 0 {
			return fmt.Errorf("watchlist %s has no domains", watchlistName)
		}
		domains = wl.Domains
	case len(args) == 1:
		domains = []string{args[0]}
	default:
		return fmt.Errorf("a domain argument or --watchlist is required")
	}

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	interp := interpret.NewInterpreter()

	// Watchlist runs wait out the gate between domains; a single scan that
	// hits the budget fails fast instead.
	waitOnGate := len(domains) > 1

	worst := interpret.SeveritySuccess
	worstDomain := ""

	for i, raw := range domains {
		domain, err := scan.SanitizeDomain(raw)
		if err != nil {
			return err
		}

		if i > 0 && !cliConfig.Scan.JSONOutput {
			fmt.Println()
		}

		agg, cached := loadFreshAggregate(env, domain)
		if !cached {
			if err := waitForGate(env.gate, domain, waitOnGate); err != nil {
				return err
			}

			start := time.Now()
			agg = runProbes(cmd, env, domain)
			elapsed := time.Since(start)

			if err := env.store.Save(agg); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to persist scan of %s: %v\n", domain, err)
			}

			if cliConfig.Scan.TelemetryEnabled {
				if err := recordScanTelemetry("scan", domain, agg, elapsed); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to record telemetry: %v\n", err)
				}
			}
		}

		if err := printScanResult(cmd, interp, agg, cached); err != nil {
			return err
		}

		if s := interp.Overall(agg.Probes); s.Rank() < worst.Rank() {
			worst = s
			worstDomain = domain
		}
	}

	if cliConfig.Scan.FailOn != "" && worst.Rank() <= threshold.Rank() {
		return &SeverityExceededError{
			Domain:    worstDomain,
			Severity:  string(worst),
			Threshold: cliConfig.Scan.FailOn,
		}
	}

	return nil
}

// runProbes executes one full scan, with live progress when enabled.
func runProbes(cmd *cobra.Command, env *appEnv, domain string) *scan.Aggregate {
	if cliConfig.Scan.ProgressEnabled && !cliConfig.Scan.JSONOutput {
		printer := newProgressPrinter(len(env.orch.Definitions()), domain)
		printer.Start()
		agg := env.orch.RunAll(cmd.Context(), domain, printer.Observe)
		printer.Stop()
		return agg
	}
	return env.orch.RunAll(cmd.Context(), domain, nil)
}

// loadFreshAggregate returns a stored aggregate when it is younger than the
// cache TTL. Superseded and stale aggregates are ignored.
func loadFreshAggregate(env *appEnv, domain string) (*scan.Aggregate, bool) {
	if cliConfig.Scan.Refresh {
		return nil, false
	}
	agg, err := env.store.Load(domain)
	if err != nil {
		return nil, false
	}
	ttl := time.Duration(cliConfig.Scan.CacheTTLMinutes) * time.Minute
	if ttl <= 0 || time.Since(agg.Timestamp) > ttl {
		return nil, false
	}
	return agg, true
}

func waitForGate(g *gate.Gate, domain string, wait bool) error {
	for {
		decision := g.CheckRateLimit()
		if decision.Allowed {
			return nil
		}
		if !wait {
			return fmt.Errorf("scan rate limit reached; retry in %d second(s)", decision.RetryAfterSeconds())
		}
		fmt.Printf("%s Rate limit reached before %s, waiting %d second(s)...\n",
			colorWarn("→"), domain, decision.RetryAfterSeconds())
		time.Sleep(decision.RetryAfter)
	}
}

func printScanResult(cmd *cobra.Command, interp *interpret.Interpreter, agg *scan.Aggregate, cached bool) error {
	if cliConfig.Scan.JSONOutput {
		out := buildScanOutput(interp, agg, cached)
		payload, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal scan output: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	printScanText(cmd, interp, agg, cached)
	return nil
}

func buildScanOutput(interp *interpret.Interpreter, agg *scan.Aggregate, cached bool) scanOutput {
	readings := make([]probeReading, 0, len(agg.Probes))
	for _, r := range agg.Probes {
		reading := interp.Interpret(r)
		readings = append(readings, probeReading{
			ID:             r.ID,
			Label:          r.Label,
			Severity:       reading.Severity,
			Message:        reading.Message,
			Recommendation: reading.Recommendation,
		})
	}
	return scanOutput{
		Aggregate: agg,
		Readings:  readings,
		Overall:   interp.Overall(agg.Probes),
		Cached:    cached,
	}
}

func printScanText(cmd *cobra.Command, interp *interpret.Interpreter, agg *scan.Aggregate, cached bool) {
	out := cmd.OutOrStdout()

	header := fmt.Sprintf("Scan of %s at %s", agg.Domain, agg.Timestamp.Local().Format("2006-01-02 15:04:05"))
	if cached {
		header += " " + colorInfo("(cached)")
	}
	fmt.Fprintln(out, header)
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROBE\tSTATUS\tSEVERITY\tSUMMARY")
	for _, r := range agg.Probes {
		reading := interp.Interpret(r)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			r.Label,
			formatStatusWithColor(string(r.Status)),
			formatSeverityWithColor(string(reading.Severity)),
			reading.Message,
		)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush scan table: %v\n", err)
	}

	if len(agg.Issues) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Issues (%d):\n", len(agg.Issues))
		for i, issue := range agg.Issues {
			fmt.Fprintf(out, "  %d. %s\n", i+1, issue)
		}
	}

	recommendations := collectRecommendations(interp, agg.Probes)
	if len(recommendations) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Recommendations:")
		for _, rec := range recommendations {
			fmt.Fprintf(out, "  - %s\n", rec)
		}
	}

	fmt.Fprintln(out)
	overall := interp.Overall(agg.Probes)
	fmt.Fprintf(out, "Overall: %s\n", formatSeverityWithColor(string(overall)))
}

// collectRecommendations gathers actionable advice, worst severities first,
// skipping clean results.
func collectRecommendations(interp *interpret.Interpreter, results []scan.Result) []string {
	type entry struct {
		rank int
		text string
	}
	var entries []entry
	for _, r := range results {
		reading := interp.Interpret(r)
		if reading.Recommendation == "" || reading.Severity == interpret.SeveritySuccess {
			continue
		}
		entries = append(entries, entry{
			rank: reading.Severity.Rank(),
			text: fmt.Sprintf("%s: %s", r.Label, reading.Recommendation),
		})
	}
	// Stable keeps registry order within the same severity.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].rank < entries[j].rank
	})
	recs := make([]string, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, e.text)
	}
	return recs
}

func parseSeverityThreshold(value string) (interpret.Severity, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "critical":
		return interpret.SeverityCritical, nil
	case "error":
		return interpret.SeverityError, nil
	case "warning":
		return interpret.SeverityWarning, nil
	case "info":
		return interpret.SeverityInfo, nil
	}
	return "", fmt.Errorf("unsupported severity %q (use critical, error, warning, or info)", value)
}

// parseProbeTimeouts turns repeated id=duration flag values into a lookup
// table. Ids are validated against the registry later, when the probe set
// is assembled.
func parseProbeTimeouts(entries []string) (map[string]time.Duration, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	overrides := make(map[string]time.Duration, len(entries))
	for _, entry := range entries {
		id, raw, ok := strings.Cut(entry, "=")
		id = strings.TrimSpace(id)
		raw = strings.TrimSpace(raw)
		if !ok || id == "" || raw == "" {
			return nil, fmt.Errorf("invalid probe timeout %q (want id=duration, e.g. certificates=8s)", entry)
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid probe timeout %q: %w", entry, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid probe timeout %q: duration must be positive", entry)
		}
		overrides[id] = d
	}
	return overrides, nil
}

func init() {
	scanCmd.Flags().IntVarP(&cliConfig.Scan.TimeoutSecs, "timeout", "t", cliConfig.Scan.TimeoutSecs, "Per-probe timeout in seconds")
	scanCmd.Flags().IntVar(&cliConfig.Scan.CacheTTLMinutes, "cache-ttl", cliConfig.Scan.CacheTTLMinutes, "Minutes a stored scan stays fresh enough to reuse")
	scanCmd.Flags().IntVar(&cliConfig.Scan.ScansPerMinute, "scans-per-minute", cliConfig.Scan.ScansPerMinute, "Sustained scan starts allowed per minute")
	scanCmd.Flags().IntVar(&cliConfig.Scan.ScanBurst, "scan-burst", cliConfig.Scan.ScanBurst, "Burst headroom above the sustained scan rate")
	scanCmd.Flags().StringSliceVar(&cliConfig.Scan.Nameservers, "nameservers", cliConfig.Scan.Nameservers, "Custom DNS nameservers (e.g., 8.8.8.8:53,1.1.1.1:53)")
	scanCmd.Flags().StringArrayVar(&cliConfig.Scan.ProbeTimeouts, "probe-timeout", cliConfig.Scan.ProbeTimeouts, "Per-probe timeout override as id=duration (repeatable, e.g. certificates=8s)")
	scanCmd.Flags().BoolVar(&cliConfig.Scan.Refresh, "refresh", false, "Ignore stored results and probe upstream again")
	scanCmd.Flags().BoolVar(&cliConfig.Scan.JSONOutput, "json", false, "Emit the aggregate and interpretations as JSON")
	scanCmd.Flags().BoolVar(&cliConfig.Scan.TelemetryEnabled, "telemetry", cliConfig.Scan.TelemetryEnabled, "Record telemetry metrics (durations, success rates)")
	scanCmd.Flags().BoolVar(&cliConfig.Scan.ProgressEnabled, "progress", cliConfig.Scan.ProgressEnabled, "Display live progress while probes run")
	scanCmd.Flags().StringVar(&cliConfig.Scan.FailOn, "fail-on", "", "Exit non-zero when overall severity reaches this level (critical|error|warning|info)")
	scanCmd.Flags().String("watchlist", "", "Scan every domain on the named watchlist")
}
