package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/internal/platform"
	"github.com/aretw0/notesync/pkg/core"
)

var syncMode string

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass",
	Long: `Synchronize the vault with the remote note store once.

Modes:
  one-way            pull remote notes into the vault
  one-way-delete     pull, mark the files deleted, then delete them remotely
  two-way            push local changes first, then pull
  realtime-*         same passes as one-way / two-way; use 'watch' to mirror live`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []platform.Option
		if syncMode != "" {
			mode, err := core.ParseSyncMode(syncMode)
			if err != nil {
				return err
			}
			opts = append(opts, platform.WithMode(mode))
		}

		app, err := openApp(opts...)
		if err != nil {
			return err
		}
		defer app.Close()

		fmt.Printf("Syncing (%s)...\n", app.Syncer.Mode())
		res := app.Sync(context.Background())
		if !res.OK {
			msg := core.AsUserMessage(slog.Default(), res.Err, "sync failed, run with -v for details")
			return &core.UserError{Msg: msg, Err: res.Err}
		}
		fmt.Printf("Sync completed: %d pushed, %d pulled.\n", res.Pushed, res.Pulled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncMode, "mode", "", "Override the sync mode for this run")
}
