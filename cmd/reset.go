package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facemood/internal/pipeline"
	"github.com/andresmejia3/facemood/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetHistory bool
	resetCache   bool
	resetAsset   bool
	resetYes     bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset local state (capture cache, materialized encodings, history)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no flags are set, default to clearing EVERYTHING
		if !resetHistory && !resetCache && !resetAsset {
			resetHistory = true
			resetCache = true
			resetAsset = true
		}

		var in io.Reader = os.Stdin
		if resetYes {
			in = strings.NewReader(strings.Repeat("y\n", 3))
		}
		reader := bufio.NewReader(in)

		if resetHistory {
			if DB == nil {
				fmt.Println("ℹ️  No database configured, skipping history.")
			} else if confirm(reader, "⚠️  Are you sure you want to DROP the recognition history?") {
				fmt.Println("🗑️  Clearing History...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		if resetCache {
			if confirm(reader, "⚠️  Are you sure you want to delete the cached captures?") {
				fmt.Println("🗑️  Clearing Capture Cache...")
				for _, path := range cachePaths(Cfg.CacheDir) {
					removeFile(path)
				}
			}
		}

		if resetAsset {
			if confirm(reader, "⚠️  Are you sure you want to delete the materialized encodings?") {
				fmt.Println("🗑️  Clearing Encodings...")
				removeFile(filepath.Join(Cfg.FilesDir, Cfg.AssetName))
			}
		}

		fmt.Println("✨ Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetHistory, "history", false, "Clear the PostgreSQL recognition history")
	resetCmd.Flags().BoolVar(&resetCache, "cache", false, "Clear cached captures (raw, corrected, resized)")
	resetCmd.Flags().BoolVar(&resetAsset, "asset", false, "Clear the materialized encodings so the next run copies them again")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

// cachePaths lists the per-capture files a session writes under cacheDir.
func cachePaths(cacheDir string) []string {
	return []string{
		pipeline.CapturePath(cacheDir),
		filepath.Join(cacheDir, pipeline.CorrectedImageName),
		filepath.Join(cacheDir, pipeline.ResizedImageName),
	}
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
