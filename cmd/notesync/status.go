package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show settings and component state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		// Index the vault so the local store reports real numbers.
		if err := app.Local.Init(cmd.Context()); err != nil {
			return err
		}

		out := map[string]any{
			"config":    app.Settings.Path(),
			"vault":     app.Settings.Vault,
			"signed_in": app.Settings.SignedIn(),
			"email":     app.Settings.Auth.Email,
		}
		for _, c := range app.Components() {
			out[c.ComponentType()] = c.State()
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
