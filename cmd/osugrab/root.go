package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"osugrab/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "osugrab",
	Short: "Download the beatmapsets behind top players' recent osu! plays",
	Long: `osugrab watches a set of osu! accounts and downloads the beatmapsets
behind their recent plays, filtered by difficulty criteria you configure.

Features:
  - Secure credential storage using system keychain
  - Shared OAuth token cache with on-demand refresh
  - Rate limiting shared across all API traffic
  - Per-account filters on game mode, star rating and approach rate
  - Concurrent downloads through a beatmapset mirror
  - Idempotent runs: beatmapsets already on disk are never re-fetched`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.SetQuiet(true)
		}

		if cmd.Name() != "version" && cmd.Name() != "help" && cmd.Name() != "completion" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .osugrab.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show all output")

	// Version template
	rootCmd.SetVersionTemplate(`osugrab {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
