package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/daemon"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/dashboard"
	"github.com/godismyjudge95/statamic-stache-sqlite/internal/stache/notify"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "cache",
	Short:   "Sync the cache, then keep it current as files change",
	Long: `Boot the cache and start the sync daemon in the foreground.

The daemon watches the entry and asset directories, waits for bursts of
changes to settle, and re-syncs each changed file. Removed files drop their
rows; removing an asset's meta file falls back to the binary's statistics.

With --dashboard a WebSocket server broadcasts every change:
  ws://localhost:8080/ws

Message types:
- record_change: Record created, updated, synced, or deleted
- rebuild: A kind's table was rebuilt
- stats: Row counts per kind and change counters`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		ctx := cmd.Context()

		s, err := openSite()
		if err != nil {
			return err
		}
		defer s.Close()

		port := s.cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		unsubscribe := logChanges(s)
		defer unsubscribe()

		if withDashboard {
			server := dashboard.NewServer(&dashboard.Config{
				Addr:   fmt.Sprintf(":%d", port),
				Logger: s.logger,
			})
			handler := dashboard.NewHandler(server, s.engine, s.logger)
			defer subscribeAll(s.bus, handler)()

			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer server.Stop()

			fmt.Printf("%s Dashboard: http://localhost:%d (ws://localhost:%d/ws)\n", renderAccent("◆"), port, port)
		}

		reports, err := s.engine.Boot(ctx)
		if err != nil {
			return err
		}
		if len(reports) > 0 {
			printReports(reports)
		}

		d, err := daemon.NewWithConfig(s.engine, s.cfg.Root, &daemon.Config{
			DebounceInterval: s.cfg.Daemon.Debounce,
			Logger:           s.logger,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s Watching %s\n", renderAccent("⟳"), s.cfg.Root)
		for _, root := range s.engine.Roots() {
			fmt.Printf("   %s\n", root)
		}
		fmt.Printf("   Cache: %s\n", s.cfg.DatabasePath())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("daemon stopped with error: %w", err)
		}

		stats := d.Stats()
		fmt.Printf("\n%s Stopped: %d synced, %d forgotten, %d failed\n",
			renderPass("✓"), stats.Synced, stats.Forgotten, stats.Failed)
		return nil
	},
}

// watchedActions are the events forwarded from the bus.
var watchedActions = []notify.Action{notify.Created, notify.Updated, notify.Deleted, notify.Synced, notify.Rebuilt}

// subscribeAll forwards every watched action on bus to sink and returns a
// function that removes the subscriptions.
func subscribeAll(bus *notify.Bus, sink notify.Sink) func() {
	var unsubscribe []func()
	for _, action := range watchedActions {
		unsubscribe = append(unsubscribe, bus.Subscribe(action, func(ctx context.Context, e notify.Event) error {
			sink.Publish(ctx, e)
			return nil
		}))
	}
	return func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}
}

// logChanges logs record changes at info level.
func logChanges(s *site) func() {
	logger := s.logger.With("component", "watch")
	return subscribeAll(s.bus, sinkFunc(func(_ context.Context, e notify.Event) {
		logger.Info("record "+string(e.Action), "kind", e.Kind, "key", e.Key)
	}))
}

type sinkFunc func(ctx context.Context, e notify.Event)

func (f sinkFunc) Publish(ctx context.Context, e notify.Event) { f(ctx, e) }

func init() {
	watchCmd.Flags().Bool("dashboard", false, "Serve a WebSocket dashboard of changes")
	watchCmd.Flags().IntP("port", "p", 8080, "Dashboard port (default from config)")
	rootCmd.AddCommand(watchCmd)
}
