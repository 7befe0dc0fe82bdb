package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "cache",
	Short:   "Show cache status",
	Long: `Display the current status of the cache.

Shows:
  - Cache file location and size
  - Number of rows per record kind
  - Whether each kind would be rebuilt, and why`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openSite()
		if err != nil {
			return err
		}
		defer s.Close()

		path := s.cfg.DatabasePath()
		fmt.Printf("\n%s Cache Status\n\n", renderAccent("◆"))
		fmt.Printf("Location: %s\n", path)
		if !s.store.InMemory() {
			info, err := os.Stat(path)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				fmt.Printf("Size: %s\n", renderMuted("not created"))
			case err != nil:
				return fmt.Errorf("failed to check cache: %w", err)
			default:
				fmt.Printf("Size: %s\n", formatSize(info.Size()))
				fmt.Printf("Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			}
		}
		fmt.Println()

		widths := []int{10, 8, 36, 24}
		fmt.Println(renderHeader(widths, "Kind", "Rows", "Roots", "State"))
		for _, kind := range s.engine.Kinds() {
			reason, err := s.engine.Detector().Reason(ctx, kind)
			if err != nil {
				return err
			}

			rows := renderMuted("-")
			if exists, err := s.store.HasTable(ctx, kind.Name()); err != nil {
				return err
			} else if exists {
				n, err := s.engine.Count(ctx, kind.Name())
				if err != nil {
					return err
				}
				rows = fmt.Sprint(n)
			}

			var roots []string
			for _, root := range kind.Roots() {
				roots = append(roots, root.Dir)
			}

			state := renderPass("current")
			if reason != "" {
				state = renderWarn("stale: " + reason)
			}
			fmt.Println(renderRow(widths, kind.Name(), rows, strings.Join(roots, ", "), state))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
