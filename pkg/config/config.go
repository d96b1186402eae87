package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for osugrab
type Config struct {
	// osu! API credentials
	Osu OsuConfig `yaml:"osu" json:"osu"`

	// Rate limiting for the v2 scoring API
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Beatmapset mirror settings
	Mirror MirrorConfig `yaml:"mirror" json:"mirror"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Monitored accounts and their filter criteria
	Accounts []AccountFilter `yaml:"accounts" json:"accounts"`
}

// OsuConfig holds osu! API credentials
type OsuConfig struct {
	// APIV1Key authenticates the legacy v1 API, used only for
	// username-to-id resolution
	APIV1Key string `yaml:"api_v1_key" json:"api_v1_key"`

	// ClientID and ClientSecret drive the v2 client-credentials exchange
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerPeriod is kept below the documented 1200/min ceiling so
	// transient overshoot from racing goroutines stays harmless
	RequestsPerPeriod int           `yaml:"requests_per_period" json:"requests_per_period"`
	Period            time.Duration `yaml:"period" json:"period"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
}

// DownloadConfig holds download and score-fetch configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RequestTimeout      time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// Recent-scores page settings
	ScoreLimit   int  `yaml:"score_limit" json:"score_limit"`
	ScoreOffset  int  `yaml:"score_offset" json:"score_offset"`
	IncludeFails bool `yaml:"include_fails" json:"include_fails"`
}

// MirrorConfig holds beatmapset mirror configuration
type MirrorConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Range is an inclusive numeric range used by filter criteria
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v falls inside the range, bounds included
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// AccountFilter describes one monitored account and the criteria a recent
// play must meet for its beatmapset to be downloaded. The optional pointer
// ranges are unconstrained when nil.
type AccountFilter struct {
	Username     string `yaml:"username" json:"username"`
	GameMode     string `yaml:"game_mode" json:"game_mode"`
	StarRating   Range  `yaml:"star_rating" json:"star_rating"`
	ApproachRate Range  `yaml:"approach_rate" json:"approach_rate"`

	OverallDifficulty *Range `yaml:"overall_difficulty,omitempty" json:"overall_difficulty,omitempty"`
	CircleSize        *Range `yaml:"circle_size,omitempty" json:"circle_size,omitempty"`
	HealthPoints      *Range `yaml:"health_points,omitempty" json:"health_points,omitempty"`
	SongLength        *Range `yaml:"song_length,omitempty" json:"song_length,omitempty"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		RateLimit: RateLimitConfig{
			RequestsPerPeriod: 500,
			Period:            time.Minute,
		},
		Output: OutputConfig{
			Directory: "beatmapsets",
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 3,
			DownloadTimeout:     120 * time.Second,
			RequestTimeout:      30 * time.Second,
			ScoreLimit:          100,
			ScoreOffset:         0,
			IncludeFails:        true,
		},
		Mirror: MirrorConfig{
			BaseURL: "https://api.chimu.moe/v1/download",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		Accounts: []AccountFilter{
			{
				Username:     "mrekk",
				GameMode:     "osu",
				StarRating:   Range{Min: 5.0, Max: 13.0},
				ApproachRate: Range{Min: 1.0, Max: 10.0},
			},
			{
				Username:     "Justice",
				GameMode:     "osu",
				StarRating:   Range{Min: 5.0, Max: 10.0},
				ApproachRate: Range{Min: 1.0, Max: 10.0},
			},
			{
				Username:     "mlaw",
				GameMode:     "osu",
				StarRating:   Range{Min: 7.0, Max: 10.0},
				ApproachRate: Range{Min: 5.0, Max: 10.0},
			},
			{
				Username:     "chocomint",
				GameMode:     "osu",
				StarRating:   Range{Min: 7.0, Max: 10.0},
				ApproachRate: Range{Min: 5.0, Max: 10.0},
			},
			{
				Username:     "im a fancy lad",
				GameMode:     "osu",
				StarRating:   Range{Min: 7.0, Max: 10.0},
				ApproachRate: Range{Min: 5.0, Max: 10.0},
			},
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Credential variable names match the original deployment
	if key := os.Getenv("OSU_API_V1_KEY"); key != "" {
		c.Osu.APIV1Key = key
	}
	if id := os.Getenv("OSU_API_V2_CLIENT_ID"); id != "" {
		c.Osu.ClientID = id
	}
	if secret := os.Getenv("OSU_API_V2_CLIENT_SECRET"); secret != "" {
		c.Osu.ClientSecret = secret
	}

	if outputDir := os.Getenv("OSUGRAB_OUTPUT_DIR"); outputDir != "" {
		c.Output.Directory = outputDir
	}

	if rpp := os.Getenv("OSUGRAB_REQUESTS_PER_PERIOD"); rpp != "" {
		var val int
		fmt.Sscanf(rpp, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerPeriod = val
		}
	}

	if concurrent := os.Getenv("OSUGRAB_CONCURRENT_DOWNLOADS"); concurrent != "" {
		var val int
		fmt.Sscanf(concurrent, "%d", &val)
		if val > 0 {
			c.Download.ConcurrentDownloads = val
		}
	}

	if mirrorURL := os.Getenv("OSUGRAB_MIRROR_URL"); mirrorURL != "" {
		c.Mirror.BaseURL = mirrorURL
	}

	if logLevel := os.Getenv("OSUGRAB_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".osugrab.yaml",
		".osugrab.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "osugrab", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "osugrab", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".osugrab.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

var validGameModes = map[string]bool{
	"osu": true, "taiko": true, "fruits": true, "mania": true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Osu.APIV1Key == "" {
		errs = append(errs, errors.New("osu! API v1 key is required"))
	}
	if c.Osu.ClientID == "" {
		errs = append(errs, errors.New("osu! API v2 client ID is required"))
	}
	if c.Osu.ClientSecret == "" {
		errs = append(errs, errors.New("osu! API v2 client secret is required"))
	}

	if c.RateLimit.RequestsPerPeriod <= 0 {
		errs = append(errs, errors.New("requests per period must be positive"))
	}
	if c.RateLimit.Period <= 0 {
		errs = append(errs, errors.New("rate limit period must be positive"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ScoreLimit <= 0 || c.Download.ScoreLimit > 100 {
		errs = append(errs, errors.New("score limit must be between 1 and 100"))
	}
	if c.Download.ScoreOffset < 0 {
		errs = append(errs, errors.New("score offset cannot be negative"))
	}

	if c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Mirror.BaseURL == "" {
		errs = append(errs, errors.New("mirror base URL is required"))
	}

	if len(c.Accounts) == 0 {
		errs = append(errs, errors.New("at least one account filter is required"))
	}
	for i, account := range c.Accounts {
		if account.Username == "" {
			errs = append(errs, fmt.Errorf("account %d: username is required", i))
		}
		if !validGameModes[account.GameMode] {
			errs = append(errs, fmt.Errorf("account %d: invalid game mode %q", i, account.GameMode))
		}
		for name, r := range map[string]Range{
			"star_rating":   account.StarRating,
			"approach_rate": account.ApproachRate,
		} {
			if r.Min > r.Max {
				errs = append(errs, fmt.Errorf("account %d: %s range is inverted", i, name))
			}
		}
		for name, r := range map[string]*Range{
			"overall_difficulty": account.OverallDifficulty,
			"circle_size":        account.CircleSize,
			"health_points":      account.HealthPoints,
			"song_length":        account.SongLength,
		} {
			if r != nil && r.Min > r.Max {
				errs = append(errs, fmt.Errorf("account %d: %s range is inverted", i, name))
			}
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Config may hold API credentials, keep it owner-readable
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.Directory = outputDir
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if rateLimit, ok := flags["rate-limit"].(int); ok && rateLimit > 0 {
		c.RateLimit.RequestsPerPeriod = rateLimit
	}
	if scoreLimit, ok := flags["score-limit"].(int); ok && scoreLimit > 0 {
		c.Download.ScoreLimit = scoreLimit
	}
	if includeFails, ok := flags["include-fails"].(bool); ok {
		c.Download.IncludeFails = includeFails
	}
	if mirrorURL, ok := flags["mirror-url"].(string); ok && mirrorURL != "" {
		c.Mirror.BaseURL = mirrorURL
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".osugrab.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
