package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TAXBANDITS_CLIENT_ID", "client")
	t.Setenv("TAXBANDITS_CLIENT_SECRET", "secret")
	t.Setenv("TAXBANDITS_USER_TOKEN", "user-token")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Sandbox)
	require.Equal(t, StoreMemory, cfg.StoreBackend)
	require.Equal(t, 10*time.Second, cfg.PollInitialInterval)
	require.Equal(t, time.Minute, cfg.PollLongInterval)
	require.Equal(t, 5*time.Minute, cfg.PollSwitchAfter)
	require.Equal(t, time.Hour, cfg.PollMaxDuration)
	require.Equal(t, DefaultSandboxAPIURL, cfg.SandboxAPIURL)
	require.Equal(t, 1.0, cfg.TelemetrySampleRatio)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TAXBANDITS_SANDBOX", "off")
	t.Setenv("POLL_INITIAL_INTERVAL", "2s")
	t.Setenv("API_KEY_HASHES", " a , ,b ")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "0.25")

	cfg, err := Load()
	require.NoError(t, err)
	require.False(t, cfg.Sandbox)
	require.Equal(t, 2*time.Second, cfg.PollInitialInterval)
	require.Equal(t, []string{"a", "b"}, cfg.APIKeyHashes)
	require.Equal(t, StoreRedis, cfg.StoreBackend)
	require.Equal(t, 0.25, cfg.TelemetrySampleRatio)
}

func TestLoadRequiresCredentials(t *testing.T) {
	t.Setenv("TAXBANDITS_CLIENT_ID", "")
	t.Setenv("TAXBANDITS_CLIENT_SECRET", "secret")
	t.Setenv("TAXBANDITS_USER_TOKEN", "user-token")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateStoreBackend(t *testing.T) {
	cfg := Config{ClientID: "c", ClientSecret: "s", UserToken: "u", PollInitialInterval: time.Second, PollLongInterval: time.Second}

	cfg.StoreBackend = StorePostgres
	require.Error(t, cfg.Validate())

	cfg.DatabaseURL = "postgres://localhost/filing"
	require.NoError(t, cfg.Validate())

	cfg.StoreBackend = "sqlite"
	require.Error(t, cfg.Validate())
}
