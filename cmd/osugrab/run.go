package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"osugrab/pkg/auth"
	"osugrab/pkg/config"
	"osugrab/pkg/logger"
	"osugrab/pkg/scraper"
	"osugrab/pkg/ui"
)

var (
	// Run command flags
	outputDir    string
	concurrent   int
	rateLimit    int
	scoreLimit   int
	includeFails bool
	mirrorURL    string
	profileName  string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch recent plays and download matching beatmapsets",
	Long: `Run one fetch cycle over every configured account.

Each account's username is resolved to a numeric id first, then its recent
plays are fetched from the osu! v2 API and filtered against the account's
criteria. The beatmapset behind every matching play is downloaded from the
configured mirror, unless a copy is already on disk.

Credentials must be configured either through:
  - Stored credentials (use 'osugrab auth login' to store)
  - Environment variables (OSU_API_V1_KEY, OSU_API_V2_CLIENT_ID,
    OSU_API_V2_CLIENT_SECRET, also read from a .env file)
  - Configuration file`,
	Example: `  # Run with default settings
  osugrab run

  # Download into a specific directory with more parallel downloads
  osugrab run --output ./maps --concurrent 5

  # Use a specific stored credential profile
  osugrab run --profile tournament

  # Fetch only passed plays
  osugrab run --include-fails=false`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runFetch(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for beatmapsets")
	runCmd.Flags().IntVar(&concurrent, "concurrent", 3, "number of concurrent downloads")
	runCmd.Flags().IntVar(&rateLimit, "rate-limit", 500, "scoring API requests per period")
	runCmd.Flags().IntVar(&scoreLimit, "score-limit", 100, "recent scores fetched per account (max 100)")
	runCmd.Flags().BoolVar(&includeFails, "include-fails", true, "include failed plays")
	runCmd.Flags().StringVar(&mirrorURL, "mirror-url", "", "beatmapset mirror base URL")
	runCmd.Flags().StringVarP(&profileName, "profile", "p", "", "use specific stored credential profile")

	// Running without a subcommand does the same thing
	rootCmd.Args = cobra.NoArgs
	rootCmd.RunE = runCmd.RunE
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
}

func runFetch(cmd *cobra.Command, args []string) {
	// Build flags map from command line
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if concurrent != 3 {
		flags["concurrent"] = concurrent
	}
	if rateLimit != 500 {
		flags["rate-limit"] = rateLimit
	}
	if scoreLimit != 100 {
		flags["score-limit"] = scoreLimit
	}
	if !includeFails {
		flags["include-fails"] = false
	}
	if mirrorURL != "" {
		flags["mirror-url"] = mirrorURL
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	// Stored credentials are merged in before validation, so load the
	// config manually and validate at the end
	cfg, err := loadConfigWithCredentials(flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	// Initialize logger
	logger.Initialize(&cfg.Logging)
	logger.WithField("version", version).Info("osugrab starting")

	ui.PrintInfo("Accounts", fmt.Sprintf("%d configured", len(cfg.Accounts)))
	ui.PrintInfo("Output", cfg.Output.Directory)

	s, err := scraper.New(cfg)
	if err != nil {
		ui.PrintError("Failed to initialize", err.Error())
		os.Exit(1)
	}

	if err := s.Run(); err != nil {
		logger.WithError(err).Error("Fetch cycle failed")
		ui.PrintError("FETCH FAILED", err.Error())
		os.Exit(1)
	}

	logger.Info("Fetch cycle completed successfully")
	ui.PrintSuccess("All matching beatmapsets downloaded")
}

// loadConfigWithCredentials loads the configuration and fills in missing
// API credentials from the credential manager before validating.
func loadConfigWithCredentials(flags map[string]interface{}) (*config.Config, error) {
	cfg, err := config.Load(configFile, flags)
	if err == nil && cfg.Osu.APIV1Key != "" && cfg.Osu.ClientID != "" && cfg.Osu.ClientSecret != "" {
		return cfg, nil
	}

	credManager, mgrErr := auth.NewManager()
	if mgrErr != nil {
		if err != nil {
			return nil, err
		}
		return nil, mgrErr
	}

	var creds *auth.Credentials
	if profileName != "" {
		creds, mgrErr = credManager.Retrieve(profileName)
		if mgrErr != nil {
			ui.PrintError("Profile not found", profileName)
			ui.PrintInfo("Stored profiles", "Use 'osugrab auth list' to see them")
			os.Exit(1)
		}
	} else {
		creds, mgrErr = credManager.RetrieveDefault()
	}

	if creds == nil {
		if err != nil {
			ui.PrintError("No osu! API credentials found", "")
			fmt.Println("\nTo store credentials securely, run:")
			fmt.Println("  osugrab auth login")
			fmt.Println("\nOr set environment variables:")
			fmt.Println("  export OSU_API_V1_KEY=your_v1_key")
			fmt.Println("  export OSU_API_V2_CLIENT_ID=your_client_id")
			fmt.Println("  export OSU_API_V2_CLIENT_SECRET=your_client_secret")
			os.Exit(1)
		}
		return cfg, nil
	}

	logger.WithField("profile", creds.Profile).Info("Using stored credentials")

	// Re-run the whole load so validation sees the stored credentials
	os.Setenv("OSU_API_V1_KEY", creds.APIV1Key)
	os.Setenv("OSU_API_V2_CLIENT_ID", creds.ClientID)
	os.Setenv("OSU_API_V2_CLIENT_SECRET", creds.ClientSecret)

	return config.Load(configFile, flags)
}
