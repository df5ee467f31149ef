package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
environment: test
ingest:
  backend: clickhouse
weather:
  locations:
    - name: berlin
      latitude: 52.52
      longitude: 13.405
  openmeteo:
    enabled: true
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Ingest.PollInterval)
	assert.Equal(t, 15*time.Minute, cfg.Analysis.GridStep)
	assert.Equal(t, 24, cfg.Analysis.MaxLag)
	assert.Equal(t, "aic", cfg.Analysis.OrderSelection)
	assert.Equal(t, 512, cfg.Cache.Capacity)
}

func TestLoadInstallsDefaultPolicies(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	byID := map[string][]WindowConfig{}
	for _, p := range cfg.RateLimit.Policies {
		byID[p.ID] = p.Windows
	}
	require.Contains(t, byID, "weather")
	assert.Equal(t, 50, byID["weather"][0].MaxRequests)
	assert.Equal(t, 60*time.Second, byID["weather"][0].Window)

	// order_placement carries a burst window and a sustained window.
	require.Len(t, byID["order_placement"], 2)
	assert.Equal(t, 500, byID["order_placement"][0].MaxRequests)
	assert.Equal(t, 3000, byID["order_placement"][1].MaxRequests)
	assert.Equal(t, 600*time.Second, byID["order_placement"][1].Window)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
ingest:
  backend: postgres
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.backend")
}

func TestValidateRequiresKeyedProviders(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
ingest:
  backend: clickhouse
weather:
  locations:
    - name: berlin
      latitude: 52.52
      longitude: 13.405
  openweather:
    enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestValidateRequiresLocationsWhenEnabled(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
ingest:
  backend: clickhouse
weather:
  openmeteo:
    enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locations")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("OPENWEATHER_API_KEY", "secret-key")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadWithEnv(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.Weather.OpenWeather.APIKey)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}
