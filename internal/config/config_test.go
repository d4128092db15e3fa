package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.YearsToScrape)
	assert.Equal(t, "data", cfg.OutputDir)
	assert.Equal(t, "phivolcs_earthquake", cfg.ArchivePrefix)
	assert.Equal(t, "https://earthquake.phivolcs.dost.gov.ph/EQLatest-Monthly", cfg.SourceBaseURL)
	assert.Equal(t, 15*time.Second, cfg.SourceTimeout)
	assert.Equal(t, 3, cfg.SourceMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.SourceRequestDelay)
	assert.False(t, cfg.SourceInsecureTLS)
	assert.Equal(t, 10, cfg.TopN)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.PushgatewayURL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "earthquake-records", cfg.KafkaTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("YEARS_TO_SCRAPE", "5")
	t.Setenv("OUTPUT_DIR", "/var/lib/quakes")
	t.Setenv("ARCHIVE_PREFIX", "quakes")
	t.Setenv("SOURCE_BASE_URL", "http://mirror.local/monthly/")
	t.Setenv("SOURCE_TIMEOUT", "30s")
	t.Setenv("SOURCE_MAX_ATTEMPTS", "5")
	t.Setenv("SOURCE_REQUEST_DELAY", "0s")
	t.Setenv("SOURCE_INSECURE_TLS", "true")
	t.Setenv("TOP_N", "20")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("PUSHGATEWAY_URL", "http://pushgateway:9091")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "quakes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.YearsToScrape)
	assert.Equal(t, "/var/lib/quakes", cfg.OutputDir)
	assert.Equal(t, "quakes", cfg.ArchivePrefix)
	assert.Equal(t, "http://mirror.local/monthly", cfg.SourceBaseURL)
	assert.Equal(t, 30*time.Second, cfg.SourceTimeout)
	assert.Equal(t, 5, cfg.SourceMaxAttempts)
	assert.Zero(t, cfg.SourceRequestDelay)
	assert.True(t, cfg.SourceInsecureTLS)
	assert.Equal(t, 20, cfg.TopN)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "http://pushgateway:9091", cfg.PushgatewayURL)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "quakes", cfg.KafkaTopic)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TOP_N=7\nARCHIVE_PREFIX=from_dotenv\n"), 0o600))
	t.Setenv("ARCHIVE_PREFIX", "from_env")
	// godotenv sets variables process-wide; t.Setenv does not track this one.
	t.Cleanup(func() { _ = os.Unsetenv("TOP_N") })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.TopN)
	assert.Equal(t, "from_env", cfg.ArchivePrefix, "real environment wins over .env")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"YEARS_TO_SCRAPE", "0"},
		{"YEARS_TO_SCRAPE", "three"},
		{"YEARS_TO_SCRAPE", "51"},
		{"SOURCE_TIMEOUT", "soon"},
		{"SOURCE_TIMEOUT", "0s"},
		{"SOURCE_MAX_ATTEMPTS", "0"},
		{"SOURCE_MAX_ATTEMPTS", "11"},
		{"SOURCE_REQUEST_DELAY", "-1s"},
		{"TOP_N", "-1"},
		{"LOG_FORMAT", "xml"},
		{"SOURCE_BASE_URL", "ftp://example.com"},
		{"ARCHIVE_PREFIX", "a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate_FlagOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	cfg.YearsToScrape = 0
	require.Error(t, cfg.Validate())

	cfg.YearsToScrape = 4
	cfg.OutputDir = ""
	require.Error(t, cfg.Validate())
}
