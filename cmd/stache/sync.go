package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	stachesync "github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/sync"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "cache",
	Short:   "Rebuild stale cache tables from flat files",
	Long: `Bring the cache up to date with the files on disk.

For every record kind the cache is rebuilt when:
  1. The database file is missing or in memory
  2. The kind definitions changed after the cache was written
  3. Any content file is newer than the cache (when watcher is enabled)
  4. The kind's table does not exist

Use --force to rebuild every kind regardless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		ctx := cmd.Context()

		s, err := openSite()
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("%s Syncing %s...\n", renderAccent("⟳"), s.cfg.Root)
		start := time.Now()

		var reports []stachesync.Report
		if force {
			for _, kind := range s.engine.Kinds() {
				report, err := s.engine.Rebuild(ctx, kind)
				if err != nil {
					return err
				}
				reports = append(reports, report)
			}
		} else {
			reports, err = s.engine.Boot(ctx)
			if err != nil {
				return err
			}
		}

		if len(reports) == 0 {
			fmt.Printf("%s Cache is current\n", renderPass("✓"))
			return nil
		}

		printReports(reports)
		fmt.Printf("\n%s Sync complete in %s\n", renderPass("✓"), formatDuration(time.Since(start)))
		fmt.Printf("   Cache: %s\n", s.cfg.DatabasePath())
		return nil
	},
}

func printReports(reports []stachesync.Report) {
	widths := []int{10, 8, 10, 9, 9, 10}
	fmt.Println(renderHeader(widths, "Kind", "Files", "Inserted", "Skipped", "Patched", "Time"))
	for _, r := range reports {
		skipped := fmt.Sprint(r.Skipped)
		if r.Skipped > 0 {
			skipped = renderWarn(skipped)
		}
		fmt.Println(renderRow(widths,
			r.Kind,
			fmt.Sprint(r.Files),
			fmt.Sprint(r.Inserted),
			skipped,
			fmt.Sprint(r.Patched),
			formatDuration(r.Duration),
		))
	}
}

func init() {
	syncCmd.Flags().Bool("force", false, "Rebuild every kind even if the cache is current")
	rootCmd.AddCommand(syncCmd)
}
