package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/domainposture/posture-cli/internal/scan"
	"github.com/spf13/cobra"
)

// Watchlist is a named set of domains scanned together. Lists live as one
// JSON file each under the watchlists data directory.
type Watchlist struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Domains   []string  `json:"domains"`
}

func loadWatchlist(name string) (*Watchlist, error) {
	dir, err := getWatchlistsDir()
	if err != nil {
		return nil, err
	}
	path, err := resolveWatchlistPath(dir, name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &WatchlistNotFoundError{Name: name}
		}
		return nil, fmt.Errorf("read watchlist: %w", err)
	}

	var wl Watchlist
	if err := json.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("parse watchlist %s: %w", name, err)
	}
	if wl.Domains == nil {
		wl.Domains = []string{}
	}
	return &wl, nil
}

func saveWatchlist(wl *Watchlist) error {
	dir, err := getWatchlistsDir()
	if err != nil {
		return err
	}
	path, err := resolveWatchlistPath(dir, wl.Name)
	if err != nil {
		return err
	}

	wl.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(wl, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal watchlist: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write watchlist: %w", err)
	}
	return nil
}

func listWatchlistNames() ([]string, error) {
	dir, err := getWatchlistsDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read watchlists directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

var watchlistCmd = &cobra.Command{
	Use:     "watchlist",
	Aliases: []string{"watch"},
	Short:   "Manage watchlists of domains scanned together",
}

var watchlistCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create an empty watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := validateWatchlistName(name); err != nil {
			return err
		}
		if _, err := loadWatchlist(name); err == nil {
			return fmt.Errorf("watchlist %s already exists", name)
		}

		wl := &Watchlist{
			Name:      name,
			CreatedAt: time.Now().UTC(),
			Domains:   []string{},
		}
		if err := saveWatchlist(wl); err != nil {
			return err
		}
		fmt.Printf("%s watchlist %s\n", colorSuccess("Created"), name)
		return nil
	},
}

var watchlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all watchlists",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := listWatchlistNames()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No watchlists found. Use `posture watchlist create <name>` to add one.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tDOMAINS\tUPDATED")
		for _, name := range names {
			wl, err := loadWatchlist(name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to read watchlist %s: %v\n", name, err)
				continue
			}
			updated := "-"
			if !wl.UpdatedAt.IsZero() {
				updated = wl.UpdatedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\n", wl.Name, len(wl.Domains), updated)
		}
		return tw.Flush()
	},
}

var watchlistViewCmd = &cobra.Command{
	Use:   "view [name]",
	Short: "Show one watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wl, err := loadWatchlist(args[0])
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			payload, err := json.MarshalIndent(wl, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal watchlist: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Name   : %s\n", wl.Name)
		fmt.Fprintf(out, "Created: %s\n", wl.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Updated: %s\n", wl.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Domains (%d):\n", len(wl.Domains))
		for _, d := range wl.Domains {
			fmt.Fprintf(out, "  - %s\n", d)
		}
		return nil
	},
}

var watchlistAddCmd = &cobra.Command{
	Use:   "add [name] [domain]...",
	Short: "Add domains to a watchlist",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		wl, err := loadWatchlist(args[0])
		if err != nil {
			return err
		}

		existing := make(map[string]struct{}, len(wl.Domains))
		for _, d := range wl.Domains {
			existing[d] = struct{}{}
		}

		added := 0
		for _, raw := range args[1:] {
			domain, err := scan.SanitizeDomain(raw)
			if err != nil {
				return err
			}
			if _, ok := existing[domain]; ok {
				fmt.Printf("%s %s is already on the list\n", colorWarn("Skipped:"), domain)
				continue
			}
			wl.Domains = append(wl.Domains, domain)
			existing[domain] = struct{}{}
			added++
		}

		if added == 0 {
			return nil
		}
		if err := saveWatchlist(wl); err != nil {
			return err
		}
		fmt.Printf("%s %d domain(s) to %s (%d total)\n", colorSuccess("Added"), added, wl.Name, len(wl.Domains))
		return nil
	},
}

var watchlistRemoveCmd = &cobra.Command{
	Use:   "remove [name] [domain]...",
	Short: "Remove domains from a watchlist",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		wl, err := loadWatchlist(args[0])
		if err != nil {
			return err
		}

		drop := make(map[string]struct{}, len(args)-1)
		for _, raw := range args[1:] {
			drop[scan.NormalizeDomain(raw)] = struct{}{}
		}

		kept := wl.Domains[:0]
		removed := 0
		for _, d := range wl.Domains {
			if _, ok := drop[d]; ok {
				removed++
				continue
			}
			kept = append(kept, d)
		}
		wl.Domains = kept

		if removed == 0 {
			fmt.Printf("%s none of the given domains are on %s\n", colorWarn("Skipped:"), wl.Name)
			return nil
		}
		if err := saveWatchlist(wl); err != nil {
			return err
		}
		fmt.Printf("%s %d domain(s) from %s (%d left)\n", colorSuccess("Removed"), removed, wl.Name, len(wl.Domains))
		return nil
	},
}

var watchlistDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a watchlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := getWatchlistsDir()
		if err != nil {
			return err
		}
		path, err := resolveWatchlistPath(dir, args[0])
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return &WatchlistNotFoundError{Name: args[0]}
			}
			return fmt.Errorf("delete watchlist: %w", err)
		}
		fmt.Printf("%s watchlist %s\n", colorSuccess("Deleted"), filepath.Base(strings.TrimSuffix(path, ".json")))
		return nil
	},
}

func init() {
	watchlistViewCmd.Flags().Bool("json", false, "Emit the watchlist as JSON")
	watchlistCmd.AddCommand(watchlistCreateCmd)
	watchlistCmd.AddCommand(watchlistListCmd)
	watchlistCmd.AddCommand(watchlistViewCmd)
	watchlistCmd.AddCommand(watchlistAddCmd)
	watchlistCmd.AddCommand(watchlistRemoveCmd)
	watchlistCmd.AddCommand(watchlistDeleteCmd)
	rootCmd.AddCommand(watchlistCmd)
}
