package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/domainposture/posture-cli/internal/catalog"
	"github.com/domainposture/posture-cli/internal/probes"
	"github.com/domainposture/posture-cli/internal/scan"
	"github.com/spf13/cobra"
)

var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List the registered probes",
	RunE:  runProbesCommand,
}

type probeListing struct {
	ID          string              `json:"id"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
	Category    string              `json:"category,omitempty"`
	Timeout     string              `json:"timeout"`
	DataSource  *scan.DataSource    `json:"data_source,omitempty"`
	References  []catalog.Reference `json:"references,omitempty"`
}

func runProbesCommand(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	showReferences, _ := cmd.Flags().GetBool("references")

	registry, err := probes.DefaultRegistry(probes.Defaults())
	if err != nil {
		return fmt.Errorf("build probe registry: %w", err)
	}

	defaultTimeout := time.Duration(cliConfig.Scan.TimeoutSecs) * time.Second
	listings := buildProbeListings(registry.Definitions(), defaultTimeout)

	if jsonOutput {
		payload, err := json.MarshalIndent(listings, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal probe listings: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tCATEGORY\tTIMEOUT\tDESCRIPTION")
	for _, l := range listings {
		category := l.Category
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", l.ID, l.Label, category, l.Timeout, l.Description)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush probe table: %v\n", err)
	}

	if showReferences {
		fmt.Fprintln(out)
		for _, l := range listings {
			if len(l.References) == 0 {
				continue
			}
			fmt.Fprintf(out, "%s:\n", colorInfo(l.Label))
			for _, ref := range l.References {
				fmt.Fprintf(out, "  - %s: %s\n", ref.Title, ref.URL)
			}
		}
	}

	return nil
}

func buildProbeListings(defs []scan.Definition, defaultTimeout time.Duration) []probeListing {
	listings := make([]probeListing, 0, len(defs))
	for _, def := range defs {
		timeout := def.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		listing := probeListing{
			ID:          def.ID,
			Label:       def.Label,
			Description: def.Description,
			Timeout:     timeout.String(),
			DataSource:  def.DataSource,
		}
		if entry := catalog.ForProbe(def.ID); entry != nil {
			listing.Category = entry.Category
			listing.References = entry.References
		}
		listings = append(listings, listing)
	}
	return listings
}

func init() {
	probesCmd.Flags().Bool("json", false, "Emit the probe listings as JSON")
	probesCmd.Flags().Bool("references", false, "Show the standards and references behind each probe")
}
