package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/internal/config"
	"github.com/aretw0/notesync/internal/platform"
	"github.com/aretw0/notesync/pkg/core"
)

var (
	verbose    bool
	logFile    string
	configPath string
	vaultPath  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notesync",
	Short: "Sync a markdown vault with a Fleeting Notes style cloud store",
	Long: `notesync keeps a folder of markdown notes in sync with a remote note
store. Notes are matched by the id in their front-matter; remote edits are
rendered through a template, local edits are merged back field by field.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(platform.NewLogger(os.Stderr, verbose, logFile))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, core.AsUserMessage(slog.Default(), err, "unexpected error, run with -v for details"))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a rotating file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default is the user config dir)")
	rootCmd.PersistentFlags().StringVar(&vaultPath, "vault", "", "Vault directory (overrides the vault setting)")
}

func loadSettings() (*config.Settings, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	switch {
	case vaultPath != "":
		settings.Vault = vaultPath
	case settings.Vault == "" || settings.Vault == ".":
		if cwd, err := os.Getwd(); err == nil {
			if root, err := platform.FindRoot(cwd); err == nil {
				settings.Vault = root
			}
		}
	}
	return settings, nil
}

func openApp(opts ...platform.Option) (*platform.App, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return platform.Open(settings, append([]platform.Option{platform.WithLogger(slog.Default())}, opts...)...)
}
