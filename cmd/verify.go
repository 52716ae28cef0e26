package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/domainposture/posture-cli/internal/scan"
	"github.com/domainposture/posture-cli/internal/store"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [domain]",
	Short: "Verify the integrity of stored scan results",
	Long: `Recompute the checksum of stored scan files and compare them with the
checksums recorded at save time. With a domain argument only that scan is
checked; without one every stored scan is.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerifyCommand,
}

func runVerifyCommand(cmd *cobra.Command, args []string) error {
	scansDir, err := getScansDir()
	if err != nil {
		return err
	}
	st, err := store.NewAggregateStore(scansDir)
	if err != nil {
		return fmt.Errorf("open aggregate store: %w", err)
	}

	if len(args) == 1 {
		domain, err := scan.SanitizeDomain(args[0])
		if err != nil {
			return err
		}
		if err := st.Verify(domain); err != nil {
			return fmt.Errorf("verification failed for %s: %w", domain, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s checksum verified for %s\n", colorSuccess("✓"), domain)
		return nil
	}

	domains, err := st.List()
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored scans to verify.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tINTEGRITY")
	failures := 0
	for _, domain := range domains {
		if err := st.Verify(domain); err != nil {
			failures++
			fmt.Fprintf(tw, "%s\t%s\n", domain, colorError(fmt.Sprintf("FAILED (%v)", err)))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", domain, colorSuccess("verified"))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush verify table: %v\n", err)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d stored scan(s) failed verification", failures, len(domains))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s all %d stored scan(s) verified\n", colorSuccess("✓"), len(domains))
	return nil
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
