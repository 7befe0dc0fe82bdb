package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/logging"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/db"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/loadtest"
	stachesync "github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/sync"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Measure rebuild and sync latency on a generated site",
	Long: `Generate a synthetic site in a temporary directory and measure:

  1. Full rebuilds of every kind (--runs times)
  2. Concurrent single-file syncs (--workers x --syncs)

Example:
  stache bench --files 5000 --assets 1000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		numFiles, _ := cmd.Flags().GetInt("files")
		numAssets, _ := cmd.Flags().GetInt("assets")
		runs, _ := cmd.Flags().GetInt("runs")
		workers, _ := cmd.Flags().GetInt("workers")
		syncs, _ := cmd.Flags().GetInt("syncs")
		keep, _ := cmd.Flags().GetBool("keep")
		ctx := cmd.Context()

		if numFiles <= 0 || runs <= 0 || workers <= 0 || syncs <= 0 {
			return fmt.Errorf("--files, --runs, --workers and --syncs must be positive")
		}
		if numAssets < 0 {
			numAssets = numFiles / 4
		}

		level := logLevel
		if level == "" {
			level = "warn"
		}
		logger, logs, err := logging.New(logging.Options{Level: level})
		if err != nil {
			return err
		}
		defer logs.Close()

		dir, err := os.MkdirTemp("", "stache-bench-*")
		if err != nil {
			return fmt.Errorf("failed to create bench directory: %w", err)
		}
		if keep {
			fmt.Printf("Site kept at %s\n", dir)
		} else {
			defer os.RemoveAll(dir)
		}

		fmt.Printf("%s Generating %d entries and %d assets...\n", renderAccent("⟳"), numFiles, numAssets)
		site, err := loadtest.CreateTestSite(dir, numFiles, numAssets)
		if err != nil {
			return err
		}

		store, err := db.Open(filepath.Join(dir, "storage", "stache.sqlite"))
		if err != nil {
			return err
		}
		defer store.Close()

		opts := stachesync.DefaultOptions()
		opts.Logger = logger
		engine := site.NewEngine(store, opts)

		fmt.Printf("\n%s Full rebuilds (%d runs)\n", renderAccent("◆"), runs)
		rebuilds, reports, err := site.MeasureRebuilds(ctx, engine, runs)
		if err != nil {
			return err
		}
		printReports(reports)
		rebuilds.PrintStats(os.Stdout)

		fmt.Printf("\n%s Concurrent syncs (%d workers x %d)\n", renderAccent("◆"), workers, syncs)
		syncStats, err := site.RunConcurrentSyncs(ctx, engine, workers, syncs)
		if err != nil {
			return err
		}
		syncStats.PrintStats(os.Stdout)

		if syncStats.Errors > 0 {
			fmt.Printf("\n%s %d syncs failed\n", renderWarn("⚠"), syncStats.Errors)
		} else {
			fmt.Printf("\n%s Benchmark complete\n", renderPass("✓"))
		}
		return nil
	},
}

func init() {
	benchCmd.Flags().Int("files", 1000, "Number of entries to generate")
	benchCmd.Flags().Int("assets", -1, "Number of assets to generate (default: files/4)")
	benchCmd.Flags().Int("runs", 3, "Number of full rebuilds")
	benchCmd.Flags().Int("workers", 8, "Concurrent sync workers")
	benchCmd.Flags().Int("syncs", 25, "Syncs per worker")
	benchCmd.Flags().Bool("keep", false, "Keep the generated site")
	rootCmd.AddCommand(benchCmd)
}
