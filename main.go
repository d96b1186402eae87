package main

import (
	"flag"
	"os"

	"osugrab/pkg/config"
	"osugrab/pkg/logger"
	"osugrab/pkg/scraper"
	"osugrab/pkg/ui"
)

var (
	configFile   = flag.String("config", "", "Path to configuration file")
	outputDir    = flag.String("output", "", "Output directory for beatmapsets")
	concurrent   = flag.Int("concurrent", 3, "Number of concurrent downloads")
	rateLimit    = flag.Int("rate-limit", 500, "Scoring API requests per period")
	mirrorURL    = flag.String("mirror-url", "", "Beatmapset mirror base URL")
	includeFails = flag.Bool("include-fails", true, "Include failed plays")
)

func main() {
	flag.Parse()

	// Show ASCII logo
	ui.PrintLogo()

	// Build command line flags map
	flags := make(map[string]interface{})
	if *outputDir != "" {
		flags["output"] = *outputDir
	}
	if *concurrent != 3 {
		flags["concurrent"] = *concurrent
	}
	if *rateLimit != 500 {
		flags["rate-limit"] = *rateLimit
	}
	if *mirrorURL != "" {
		flags["mirror-url"] = *mirrorURL
	}
	if !*includeFails {
		flags["include-fails"] = false
	}

	// Load configuration
	cfg, err := config.Load(*configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	// Initialize logger
	logger.Initialize(&cfg.Logging)
	logger.WithField("accounts", len(cfg.Accounts)).Info("osugrab starting")

	ui.PrintInfo("Output Directory", cfg.Output.Directory)

	// Create and run the fetch cycle
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
