package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

const (
	defaultYears        = 3
	defaultOutputDir    = "data"
	defaultPrefix       = "phivolcs_earthquake"
	defaultSourceURL    = "https://earthquake.phivolcs.dost.gov.ph/EQLatest-Monthly"
	defaultTimeout      = 15 * time.Second
	defaultAttempts     = 3
	defaultRequestDelay = 500 * time.Millisecond
	defaultTopN         = 10
	defaultKafkaTopic   = "earthquake-records"

	maxYears    = 50
	maxAttempts = 10
)

// Config holds all scraper settings, populated from environment variables.
type Config struct {
	YearsToScrape int
	OutputDir     string
	ArchivePrefix string

	SourceBaseURL      string
	SourceTimeout      time.Duration
	SourceMaxAttempts  int
	SourceRequestDelay time.Duration
	SourceInsecureTLS  bool

	TopN      int
	LogLevel  string
	LogFormat string

	// Optional sinks; empty disables them.
	PushgatewayURL string
	KafkaBrokers   []string
	KafkaTopic     string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first when
// present; real environment variables take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	years, err := parseInt("YEARS_TO_SCRAPE", defaultYears, 1, maxYears)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDuration("SOURCE_TIMEOUT", defaultTimeout, false)
	if err != nil {
		return nil, err
	}
	attempts, err := parseInt("SOURCE_MAX_ATTEMPTS", defaultAttempts, 1, maxAttempts)
	if err != nil {
		return nil, err
	}
	delay, err := parseDuration("SOURCE_REQUEST_DELAY", defaultRequestDelay, true)
	if err != nil {
		return nil, err
	}
	topN, err := parseInt("TOP_N", defaultTopN, 0, 1000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		YearsToScrape: years,
		OutputDir:     sharedcfg.EnvOrDefault("OUTPUT_DIR", defaultOutputDir),
		ArchivePrefix: sharedcfg.EnvOrDefault("ARCHIVE_PREFIX", defaultPrefix),

		SourceBaseURL:      strings.TrimRight(sharedcfg.EnvOrDefault("SOURCE_BASE_URL", defaultSourceURL), "/"),
		SourceTimeout:      timeout,
		SourceMaxAttempts:  attempts,
		SourceRequestDelay: delay,
		SourceInsecureTLS:  parseBool(os.Getenv("SOURCE_INSECURE_TLS")),

		TopN:      topN,
		LogLevel:  sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),

		PushgatewayURL: strings.TrimSpace(os.Getenv("PUSHGATEWAY_URL")),
		KafkaBrokers:   sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     sharedcfg.EnvOrDefault("KAFKA_TOPIC", defaultKafkaTopic),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that flags may have overridden after Load.
func (c *Config) Validate() error {
	if c.YearsToScrape < 1 || c.YearsToScrape > maxYears {
		return fmt.Errorf("YEARS_TO_SCRAPE must be between 1 and %d", maxYears)
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}
	if c.ArchivePrefix == "" || strings.ContainsAny(c.ArchivePrefix, `/\`) {
		return errors.New("ARCHIVE_PREFIX must be a non-empty file name prefix")
	}
	if !strings.HasPrefix(c.SourceBaseURL, "http://") && !strings.HasPrefix(c.SourceBaseURL, "https://") {
		return errors.New("SOURCE_BASE_URL must be an http(s) URL")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return errors.New("LOG_FORMAT must be json or text")
	}
	return nil
}

// KafkaEnabled reports whether newly archived records are published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseInt(key string, fallback, lo, hi int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}

func parseDuration(key string, fallback time.Duration, allowZero bool) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(s string) bool {
	s = strings.TrimSpace(s)
	return s == "1" || strings.EqualFold(s, "true")
}
