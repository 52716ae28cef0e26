package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// validateWatchlistName ensures watchlist names can't be used for path
// traversal. Names are stored inside filenames, so reject separators.
func validateWatchlistName(name string) error {
	switch name {
	case "":
		return errors.New("watchlist name is required")
	case ".", "..":
		return fmt.Errorf("watchlist name %q is reserved", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("watchlist name %q must not contain path separators", name)
	}
	return nil
}

// resolveWatchlistPath joins the watchlist file under the base directory and
// ensures the resulting path never traverses outside of that base.
func resolveWatchlistPath(baseDir, name string) (string, error) {
	if err := validateWatchlistName(name); err != nil {
		return "", err
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}

	target, err := filepath.Abs(filepath.Join(cleanBase, name+".json"))
	if err != nil {
		return "", fmt.Errorf("resolve target path: %w", err)
	}

	rel, err := filepath.Rel(cleanBase, target)
	if err != nil {
		return "", fmt.Errorf("relativize path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("watchlist path %s escapes base directory", target)
	}

	return target, nil
}
