package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Fomo.BaseURL)
	assert.Equal(t, "BTC-USD", cfg.Trading.Symbol)
	assert.Equal(t, 25.0, cfg.Trading.QuoteSize)
	assert.Equal(t, 5, cfg.Trading.ShortWindow)
	assert.Equal(t, 20, cfg.Trading.LongWindow)
	assert.Equal(t, 0.01, cfg.Trading.MaxPositionSize)
	assert.Equal(t, 0.02, cfg.Trading.StopLossPct)
	assert.Equal(t, 0.03, cfg.Trading.TakeProfitPct)
	assert.Equal(t, "5s", cfg.Trading.PollInterval().String())
	assert.Equal(t, "30s", cfg.Trading.Cooldown().String())
	assert.True(t, cfg.Trading.DryRun, "Dry-run should be the default")
	assert.False(t, cfg.Trading.ObserveDuringCooldown)
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
trading:
  symbol: ETH-USD
  short_window: 3
  long_window: 10
  cooldown_seconds: 0.5
fomo:
  auth_type: jwt
  websocket:
    enabled: true
logging:
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ETH-USD", cfg.Trading.Symbol)
	assert.Equal(t, 3, cfg.Trading.ShortWindow)
	assert.Equal(t, 10, cfg.Trading.LongWindow)
	assert.Equal(t, "500ms", cfg.Trading.Cooldown().String())
	assert.Equal(t, "jwt", cfg.Fomo.AuthType)
	assert.True(t, cfg.Fomo.WebSocket.Enabled)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 25.0, cfg.Trading.QuoteSize, "Unset keys keep their defaults")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	t.Setenv("FOMO_API_BASE_URL", "https://api.fomo.test")
	t.Setenv("FOMO_API_KEY", "live-key")
	t.Setenv("FOMO_SYMBOL", "SOL-USD")
	t.Setenv("FOMO_QUOTE_SIZE", "50")
	t.Setenv("FOMO_SHORT_WINDOW", "2")
	t.Setenv("FOMO_LONG_WINDOW", "8")
	t.Setenv("FOMO_POLL_INTERVAL", "2.5")
	t.Setenv("FOMO_DRY_RUN", "false")
	t.Setenv("FOMO_IPHONE_TOKEN", "secret-token")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.fomo.test", cfg.Fomo.BaseURL)
	assert.Equal(t, "live-key", cfg.Fomo.APIKey)
	assert.Equal(t, "SOL-USD", cfg.Trading.Symbol)
	assert.Equal(t, 50.0, cfg.Trading.QuoteSize)
	assert.Equal(t, 2, cfg.Trading.ShortWindow)
	assert.Equal(t, 8, cfg.Trading.LongWindow)
	assert.Equal(t, "2.5s", cfg.Trading.PollInterval().String())
	assert.False(t, cfg.Trading.DryRun)
	assert.Equal(t, "secret-token", cfg.Server.Token)
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	t.Setenv("FOMO_TRADING_LONG_WINDOW", "40")
	t.Setenv("FOMO_TRADING_OBSERVE_DURING_COOLDOWN", "true")
	t.Setenv("FOMO_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Trading.LongWindow)
	assert.True(t, cfg.Trading.ObserveDuringCooldown)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Trading.ShortWindow = 20
	cfg.Trading.StopLossPct = 0
	cfg.Trading.QuoteSize = -1

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short_window")
	assert.Contains(t, err.Error(), "stop_loss_pct")
	assert.Contains(t, err.Error(), "quote_size")
}

type mapSecrets map[string]string

func (m mapSecrets) GetSecretWithDefault(ctx context.Context, name, def string) string {
	if v, ok := m[name]; ok {
		return v
	}
	return def
}

func TestApplySecrets(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Fomo.APIKeyName = "from-env"

	applySecrets(context.Background(), cfg, mapSecrets{
		"fomo-api-key":       "secret-key",
		"fomo-api-key-name":  "from-secret",
		"fomo-control-token": "tok",
	})

	assert.Equal(t, "secret-key", cfg.Fomo.APIKey, "Demo key should be replaced")
	assert.Equal(t, "from-env", cfg.Fomo.APIKeyName, "Configured values win over secrets")
	assert.Equal(t, "tok", cfg.Server.Token)
	assert.Equal(t, "", cfg.Fomo.PrivateKeyPEM)
}
