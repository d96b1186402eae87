package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"osugrab/pkg/config"
	"osugrab/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage osugrab configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.osugrab.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the current configuration including values from all sources.

Sensitive values like API keys will be masked for security.`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Required fields
  - Value types and ranges
  - Path accessibility`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = ".osugrab.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	exampleConfig := `# osugrab configuration file
#
# Credentials can also come from environment variables or a .env file:
# OSU_API_V1_KEY, OSU_API_V2_CLIENT_ID, OSU_API_V2_CLIENT_SECRET

# osu! API credentials
osu:
  # Legacy v1 API key, used only for username resolution (required)
  # Request one at https://osu.ppy.sh/home/account/edit#legacy-api
  api_v1_key: "YOUR_V1_KEY"

  # OAuth application for the v2 scoring API (required)
  client_id: "YOUR_CLIENT_ID"
  client_secret: "YOUR_CLIENT_SECRET"

# Rate limiting for the v2 scoring API
rate_limit:
  # Requests allowed per period. osu! hard-caps at 1200/min; keep
  # headroom below that.
  requests_per_period: 500
  period: 1m

# Output settings
output:
  # Directory beatmapset archives are saved into
  directory: "beatmapsets"

# Download settings
download:
  # Number of beatmapsets fetched in parallel per account
  concurrent_downloads: 3

  # Timeouts
  download_timeout: 2m
  request_timeout: 30s

  # Recent-scores page: up to 100 scores per account
  score_limit: 100
  score_offset: 0
  include_fails: true

# Beatmapset mirror
mirror:
  base_url: "https://api.chimu.moe/v1/download"

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: "info"
  # Log file path (optional), empty logs to stdout only
  file: ""

# Monitored accounts and their filter criteria.
# star_rating and approach_rate are required; overall_difficulty,
# circle_size, health_points and song_length (seconds) are optional.
accounts:
  - username: "mrekk"
    game_mode: "osu"
    star_rating: { min: 5.0, max: 13.0 }
    approach_rate: { min: 1.0, max: 10.0 }
  - username: "chocomint"
    game_mode: "osu"
    star_rating: { min: 7.0, max: 10.0 }
    approach_rate: { min: 5.0, max: 10.0 }
`

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the file and add your osu! API credentials")
	fmt.Println("2. Run 'osugrab config validate' to check the configuration")
	fmt.Println("3. Start downloading with 'osugrab run'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	// Mask sensitive values for display
	displayCfg := *cfg
	displayCfg.Osu.APIV1Key = maskSecret(displayCfg.Osu.APIV1Key)
	displayCfg.Osu.ClientSecret = maskSecret(displayCfg.Osu.ClientSecret)

	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (incl. .env file)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (not specified)")
	}
	fmt.Println("4. Default values")
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return "***"
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if configFile == "" {
		possiblePaths := []string{
			".osugrab.yaml",
			".osugrab.yml",
			filepath.Join(os.Getenv("HOME"), ".osugrab.yaml"),
			filepath.Join(os.Getenv("HOME"), ".config", "osugrab", "config.yaml"),
		}

		for _, path := range possiblePaths {
			if _, err := os.Stat(path); err == nil {
				configFile = path
				break
			}
		}

		if configFile == "" {
			ui.PrintError("No configuration file found", "Specify a file with --config flag")
			os.Exit(1)
		}
	}

	ui.PrintInfo("Validating configuration", configFile)

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	warnings := []string{}
	errors := []string{}

	if cfg.Osu.APIV1Key == "YOUR_V1_KEY" {
		warnings = append(warnings, "v1 API key still has the placeholder value")
	}
	if cfg.Osu.ClientSecret == "YOUR_CLIENT_SECRET" {
		warnings = append(warnings, "client secret still has the placeholder value")
	}

	if cfg.Output.Directory != "" {
		if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
			errors = append(errors, fmt.Sprintf("Cannot create output directory: %v", err))
		}
	}

	if cfg.Logging.File != "" {
		dir := filepath.Dir(cfg.Logging.File)
		if err := os.MkdirAll(dir, 0755); err != nil {
			errors = append(errors, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}

	if cfg.RateLimit.RequestsPerPeriod > 1200 {
		errors = append(errors, "requests_per_period exceeds the documented 1200/min hard cap")
	}
	if cfg.Download.ConcurrentDownloads > 10 {
		warnings = append(warnings, "more than 10 concurrent downloads may strain the mirror")
	}

	if len(errors) > 0 {
		ui.PrintError("Configuration has errors:", "")
		for _, err := range errors {
			fmt.Printf("  - %s\n", err)
		}
		os.Exit(1)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:", "")
		for _, warn := range warnings {
			fmt.Printf("  - %s\n", warn)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Output directory: %s\n", cfg.Output.Directory)
	fmt.Printf("  Accounts: %d\n", len(cfg.Accounts))
	fmt.Printf("  Concurrent downloads: %d\n", cfg.Download.ConcurrentDownloads)
	fmt.Printf("  Rate limit: %d requests per %s\n", cfg.RateLimit.RequestsPerPeriod, cfg.RateLimit.Period)
	fmt.Printf("  Mirror: %s\n", cfg.Mirror.BaseURL)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}
