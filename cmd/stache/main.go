// Command stache keeps a SQLite cache in step with a site's flat-file
// content.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootDir    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "stache",
	Short: "SQLite cache over flat-file entries and assets",
	Long: `stache mirrors a site's Markdown entries and asset meta files into a
SQLite cache for fast queries.

The files stay the source of truth. The cache is rebuilt whenever it is
older than the content, and the watch command keeps it current while files
change.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: stache.yaml in the site root)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Site root directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "cache", Title: "Cache Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
