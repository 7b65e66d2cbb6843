package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fare-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr())
	assert.Equal(t, "fares.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.RateCardPath)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "fares", cfg.MetricsNamespace)
	assert.Equal(t, 30*time.Second, cfg.RateCardRefresh)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("FARE_PORT", ":9090")
	t.Setenv("FARE_DB_PATH", ":memory:")
	t.Setenv("FARE_LOG_FORMAT", "Console")
	t.Setenv("FARE_RATE_CARD", " ./rates.yaml ")
	t.Setenv("FARE_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("FARE_RATE_CARD_REFRESH", "0s")
	t.Setenv("PORT", "1111") // unprefixed variables are ignored

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr())
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "./rates.yaml", cfg.RateCardPath)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Zero(t, cfg.RateCardRefresh)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FARE_METRICS_NAMESPACE=fares_test\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FARE_METRICS_NAMESPACE") })

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fares_test", cfg.MetricsNamespace)
}

func TestLoad_RejectsBadLogFormat(t *testing.T) {
	t.Setenv("FARE_LOG_FORMAT", "xml")

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestLoad_RejectsBadRefreshInterval(t *testing.T) {
	for _, value := range []string{"soon", "30", "-5s"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("FARE_RATE_CARD_REFRESH", value)

			_, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "FARE_RATE_CARD_REFRESH")
		})
	}
}
