package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/domainposture/posture-cli/internal/interpret"
	"github.com/domainposture/posture-cli/internal/scan"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe [id] [domain]",
	Short: "Run a single probe against a domain",
	Long: `Run one probe by id against a domain, for diagnosing a single
concern without spending a full scan. See "posture probes" for the ids.`,
	Args: cobra.ExactArgs(2),
	RunE: runProbeCommand,
}

func runProbeCommand(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(args[0])
	jsonOutput, _ := cmd.Flags().GetBool("json")

	env, err := newAppEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	result, err := env.orch.RunOne(cmd.Context(), id, args[1])
	if err != nil {
		if errors.Is(err, scan.ErrProbeNotFound) {
			return fmt.Errorf("unknown probe %q (known probes: %s)", id, strings.Join(probeIDs(env), ", "))
		}
		return err
	}

	interp := interpret.NewInterpreter()
	reading := interp.Interpret(result)

	if jsonOutput {
		payload, err := json.MarshalIndent(struct {
			Result  scan.Result              `json:"result"`
			Reading interpret.Interpretation `json:"reading"`
		}{result, reading}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal probe result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s): %s\n", result.Label, result.ID, formatStatusWithColor(string(result.Status)))
	fmt.Fprintf(out, "Severity: %s\n", formatSeverityWithColor(string(reading.Severity)))
	fmt.Fprintf(out, "Reading:  %s\n", reading.Message)
	if result.Summary != "" && result.Summary != reading.Message {
		fmt.Fprintf(out, "Summary:  %s\n", result.Summary)
	}
	if len(result.Issues) > 0 {
		fmt.Fprintf(out, "Issues (%d):\n", len(result.Issues))
		for i, issue := range result.Issues {
			fmt.Fprintf(out, "  %d. %s\n", i+1, issue)
		}
	}
	if reading.Recommendation != "" {
		fmt.Fprintf(out, "Recommendation: %s\n", reading.Recommendation)
	}
	if result.DataSource != nil {
		fmt.Fprintf(out, "Data source: %s (%s)\n", result.DataSource.Name, result.DataSource.URL)
	}

	return nil
}

func probeIDs(env *appEnv) []string {
	defs := env.orch.Definitions()
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		ids = append(ids, def.ID)
	}
	return ids
}

func init() {
	probeCmd.Flags().IntVarP(&cliConfig.Scan.TimeoutSecs, "timeout", "t", cliConfig.Scan.TimeoutSecs, "Probe timeout in seconds")
	probeCmd.Flags().Bool("json", false, "Emit the result and interpretation as JSON")
}
