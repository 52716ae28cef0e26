package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show system information and data directory paths",
	Long: `Display posture-cli configuration information including:
  - Data directory locations
  - Configuration file paths
  - Scan and telemetry storage
  - Platform information`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get data directory
		dataDir, err := getDataDir()
		if err != nil {
			return fmt.Errorf("failed to get data directory: %w", err)
		}

		scansDir, err := getScansDir()
		if err != nil {
			return fmt.Errorf("failed to get scans directory: %w", err)
		}

		watchlistsDir, err := getWatchlistsDir()
		if err != nil {
			return fmt.Errorf("failed to get watchlists directory: %w", err)
		}

		telemetryPath, err := getTelemetryFilePath()
		if err != nil {
			return fmt.Errorf("failed to get telemetry path: %w", err)
		}

		// Check if files exist
		telemetryExists := "✗ (not created yet)"
		if _, err := os.Stat(telemetryPath); err == nil {
			telemetryExists = "✓ (exists)"
		}

		configFile := "~/.posture-cli.yaml"
		configExists := "✗ (using defaults)"
		homeDir, _ := os.UserHomeDir()
		configPath := filepath.Join(homeDir, ".posture-cli.yaml")
		if _, err := os.Stat(configPath); err == nil {
			configExists = "✓ (exists)"
		}

		scanCount := countJSONFiles(scansDir)
		watchlistCount := countJSONFiles(watchlistsDir)

		// Get output writer (for testing support)
		out := cmd.OutOrStdout()

		// Print information
		fmt.Fprintln(out, "posture-cli System Information")
		fmt.Fprintln(out, "==============================")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Platform:          %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Data Locations:")
		fmt.Fprintf(out, "  Data Directory:       %s\n", dataDir)
		fmt.Fprintf(out, "  Stored Scans:         %s (%d scan(s))\n", scansDir, scanCount)
		fmt.Fprintf(out, "  Watchlists:           %s (%d list(s))\n", watchlistsDir, watchlistCount)
		fmt.Fprintf(out, "  Telemetry Log:        %s %s\n", telemetryPath, telemetryExists)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Configuration File:     %s %s\n", configFile, configExists)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Defaults:")
		fmt.Fprintf(out, "  Probe timeout:        %ds\n", cliConfig.Scan.TimeoutSecs)
		fmt.Fprintf(out, "  Cache TTL:            %dm\n", cliConfig.Scan.CacheTTLMinutes)
		fmt.Fprintf(out, "  Scans per minute:     %d (burst %d)\n", cliConfig.Scan.ScansPerMinute, cliConfig.Scan.ScanBurst)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "To override defaults, create ~/.posture-cli.yaml with:")
		fmt.Fprintln(out, "  defaults:")
		fmt.Fprintln(out, "    timeout_secs: 15")
		fmt.Fprintln(out, "    cache_ttl_minutes: 30")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "To override the data directory, set %s.\n", dataDirEnvVar)

		return nil
	},
}

func countJSONFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".json" {
			count++
		}
	}
	return count
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
