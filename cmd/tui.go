package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/domainposture/posture-cli/internal/interpret"
	"github.com/domainposture/posture-cli/internal/scan"
	"github.com/domainposture/posture-cli/internal/store"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal UI for browsing stored scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		scansDir, err := getScansDir()
		if err != nil {
			return err
		}
		st, err := store.NewAggregateStore(scansDir)
		if err != nil {
			return fmt.Errorf("open aggregate store: %w", err)
		}
		return runTUI(st)
	},
}

func runTUI(st *store.AggregateStore) error {
	reader := bufio.NewReader(os.Stdin)
	interp := interpret.NewInterpreter()

	for {
		domains, err := st.List()
		if err != nil {
			return fmt.Errorf("list stored scans: %w", err)
		}

		fmt.Println("=== Stored Posture Scans ===")
		if len(domains) == 0 {
			fmt.Println("No stored scans found. Use `posture scan <domain>` to add one.")
		}
		for i, domain := range domains {
			line := fmt.Sprintf("[%d] %s", i+1, domain)
			if agg, err := st.Load(domain); err == nil {
				overall := interp.Overall(agg.Probes)
				line += fmt.Sprintf(" (%s, %d issue(s), scanned %s)",
					formatSeverityWithColor(string(overall)),
					len(agg.Issues),
					agg.Timestamp.Local().Format("2006-01-02 15:04"))
			}
			fmt.Println(line)
		}
		fmt.Println("[d] Delete scan    [r] Refresh    [q] Quit")
		fmt.Print("Select scan: ")
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch strings.ToLower(input) {
		case "q":
			return nil
		case "r", "":
			continue
		case "d":
			if err := handleDeleteScan(reader, st); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			continue
		default:
			index, err := strconv.Atoi(input)
			if err != nil || index < 1 || index > len(domains) {
				fmt.Println("Invalid selection")
				continue
			}
			showScanDetail(reader, st, interp, domains[index-1])
		}
	}
}

func handleDeleteScan(reader *bufio.Reader, st *store.AggregateStore) error {
	fmt.Print("Enter domain to delete: ")
	input, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read domain: %w", err)
	}
	domain := strings.TrimSpace(input)
	if domain == "" {
		return fmt.Errorf("domain required")
	}
	if err := st.Delete(domain); err != nil {
		return err
	}
	fmt.Printf("%s stored scan of %s\n", colorSuccess("Deleted"), domain)
	return nil
}

func showScanDetail(reader *bufio.Reader, st *store.AggregateStore, interp *interpret.Interpreter, domain string) {
	agg, err := st.Load(domain)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	fmt.Println("--------------------------------------------------")
	fmt.Printf("Domain : %s\n", agg.Domain)
	fmt.Printf("Scanned: %s\n", agg.Timestamp.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Overall: %s\n", formatSeverityWithColor(string(interp.Overall(agg.Probes))))
	fmt.Printf("Probes (%d):\n", len(agg.Probes))
	for _, r := range agg.Probes {
		reading := interp.Interpret(r)
		fmt.Printf("  - %-22s %s %s\n",
			r.Label,
			formatStatusWithColor(string(r.Status)),
			reading.Message)
	}
	if len(agg.Issues) > 0 {
		fmt.Printf("Issues (%d):\n", len(agg.Issues))
		for _, issue := range agg.Issues {
			fmt.Printf("  - %s\n", issue)
		}
	}
	if err := verifyStoredScan(st, domain); err != nil {
		fmt.Printf("Integrity: %s (%v)\n", colorWarn("check failed"), err)
	} else {
		fmt.Printf("Integrity: %s\n", colorSuccess("checksum verified"))
	}
	fmt.Println("Press Enter to return...")
	_, _ = reader.ReadString('\n')
}

func verifyStoredScan(st *store.AggregateStore, domain string) error {
	if _, err := scan.SanitizeDomain(domain); err != nil {
		return err
	}
	return st.Verify(domain)
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
