package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/internal/platform"
	lcadapter "github.com/aretw0/notesync/pkg/adapters/lifecycle"
	"github.com/aretw0/notesync/pkg/syncer"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep syncing until interrupted",
	Long: `Run auto-sync on the configured interval and, in realtime modes, mirror
single note changes as they happen. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		settings, err := loadSettings()
		if err != nil {
			return err
		}
		events := make(chan syncer.Event, 64)
		app, err := platform.Open(settings, platform.WithLogger(slog.Default()), platform.WithEvents(events))
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.EnsureSession(ctx); err != nil {
			return err
		}

		src := lcadapter.NewSource(events)
		if err := src.Start(ctx); err != nil {
			return err
		}

		var sched *syncer.Scheduler
		switch {
		case settings.SyncInterval > 0:
			sched = syncer.NewScheduler(app.Syncer, settings.SyncInterval, nil)
			sched.Enable(ctx)
		case settings.SyncOnStartup:
			app.Syncer.Sync(ctx)
		}

		if err := app.Syncer.InitRealtime(ctx); err != nil {
			return err
		}
		if sched == nil && !app.Syncer.Mode().Realtime() {
			fmt.Println("Nothing to watch: set sync_interval or use a realtime sync mode.")
			return nil
		}

		fmt.Printf("Watching %s (%s). Press Ctrl+C to stop.\n", settings.Vault, app.Syncer.Mode())
		for e := range src.Events() {
			fmt.Println(e)
		}

		if sched != nil {
			sched.Disable()
			sched.Wait()
		}
		fmt.Println("Stopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
