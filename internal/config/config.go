package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gregtusar/fomo-trader/pkg/secrets"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Fomo    FomoConfig    `mapstructure:"fomo"`
	Trading TradingConfig `mapstructure:"trading"`
	Logging LoggingConfig `mapstructure:"logging"`
	GCP     GCPConfig     `mapstructure:"gcp"`
}

type ServerConfig struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Token string `mapstructure:"token"`
}

type FomoConfig struct {
	BaseURL string `mapstructure:"base_url"`

	AuthType      string `mapstructure:"auth_type"` // "api_key" or "jwt"
	APIKey        string `mapstructure:"api_key"`
	APIKeyName    string `mapstructure:"api_key_name"`    // For JWT: key identifier sent as sub/kid
	PrivateKeyPEM string `mapstructure:"private_key_pem"` // For JWT: EC private key in PEM format

	TimeoutSeconds    float64         `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64         `mapstructure:"requests_per_second"`
	WebSocket         WebSocketConfig `mapstructure:"websocket"`
}

type WebSocketConfig struct {
	Enabled               bool    `mapstructure:"enabled"`
	URL                   string  `mapstructure:"url"`
	ReconnectDelaySeconds float64 `mapstructure:"reconnect_delay_seconds"`
	MaxPriceAgeSeconds    float64 `mapstructure:"max_price_age_seconds"`
}

type TradingConfig struct {
	Symbol                string  `mapstructure:"symbol"`
	QuoteSize             float64 `mapstructure:"quote_size"`
	ShortWindow           int     `mapstructure:"short_window"`
	LongWindow            int     `mapstructure:"long_window"`
	MaxPositionSize       float64 `mapstructure:"max_position_size"`
	StopLossPct           float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct         float64 `mapstructure:"take_profit_pct"`
	PollIntervalSeconds   float64 `mapstructure:"poll_interval_seconds"`
	CooldownSeconds       float64 `mapstructure:"cooldown_seconds"`
	DryRun                bool    `mapstructure:"dry_run"`
	ObserveDuringCooldown bool    `mapstructure:"observe_during_cooldown"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names"`
}

func (t TradingConfig) PollInterval() time.Duration {
	return seconds(t.PollIntervalSeconds)
}

func (t TradingConfig) Cooldown() time.Duration {
	return seconds(t.CooldownSeconds)
}

func (f FomoConfig) Timeout() time.Duration {
	return seconds(f.TimeoutSeconds)
}

func (w WebSocketConfig) ReconnectDelay() time.Duration {
	return seconds(w.ReconnectDelaySeconds)
}

func (w WebSocketConfig) MaxPriceAge() time.Duration {
	return seconds(w.MaxPriceAgeSeconds)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// legacyEnv maps config keys to the environment variable names the bot has always used.
var legacyEnv = map[string]string{
	"fomo.base_url":                 "FOMO_API_BASE_URL",
	"fomo.api_key":                  "FOMO_API_KEY",
	"trading.symbol":                "FOMO_SYMBOL",
	"trading.quote_size":            "FOMO_QUOTE_SIZE",
	"trading.short_window":          "FOMO_SHORT_WINDOW",
	"trading.long_window":           "FOMO_LONG_WINDOW",
	"trading.max_position_size":     "FOMO_MAX_POSITION",
	"trading.stop_loss_pct":         "FOMO_STOP_LOSS_PCT",
	"trading.take_profit_pct":       "FOMO_TAKE_PROFIT_PCT",
	"trading.poll_interval_seconds": "FOMO_POLL_INTERVAL",
	"trading.cooldown_seconds":      "FOMO_COOLDOWN_SECONDS",
	"trading.dry_run":               "FOMO_DRY_RUN",
	"server.token":                  "FOMO_IPHONE_TOKEN",
}

func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/fomo-trader")
	}

	// FOMO_TRADING_SYMBOL style variables for every key
	v.SetEnvPrefix("FOMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "FOMO_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.token", "")

	// FOMO API defaults
	v.SetDefault("fomo.base_url", "http://localhost:8000")
	v.SetDefault("fomo.auth_type", "api_key")
	v.SetDefault("fomo.api_key", "demo-key")
	v.SetDefault("fomo.api_key_name", "")
	v.SetDefault("fomo.private_key_pem", "")
	v.SetDefault("fomo.timeout_seconds", 10.0)
	v.SetDefault("fomo.requests_per_second", 5.0)
	v.SetDefault("fomo.websocket.enabled", false)
	v.SetDefault("fomo.websocket.url", "ws://localhost:8000/ws")
	v.SetDefault("fomo.websocket.reconnect_delay_seconds", 5.0)
	v.SetDefault("fomo.websocket.max_price_age_seconds", 10.0)

	// Trading defaults
	v.SetDefault("trading.symbol", "BTC-USD")
	v.SetDefault("trading.quote_size", 25.0)
	v.SetDefault("trading.short_window", 5)
	v.SetDefault("trading.long_window", 20)
	v.SetDefault("trading.max_position_size", 0.01)
	v.SetDefault("trading.stop_loss_pct", 0.02)
	v.SetDefault("trading.take_profit_pct", 0.03)
	v.SetDefault("trading.poll_interval_seconds", 5.0)
	v.SetDefault("trading.cooldown_seconds", 30.0)
	v.SetDefault("trading.dry_run", true)
	v.SetDefault("trading.observe_during_cooldown", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	// GCP defaults
	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.api_key", secretNames.APIKey)
	v.SetDefault("gcp.secret_names.api_key_name", secretNames.APIKeyName)
	v.SetDefault("gcp.secret_names.private_key", secretNames.PrivateKey)
	v.SetDefault("gcp.secret_names.control_token", secretNames.ControlToken)
}

// Validate rejects configurations the trader cannot run with.
func (c *Config) Validate() error {
	var errs []error

	t := c.Trading
	if t.Symbol == "" {
		errs = append(errs, errors.New("trading.symbol is required"))
	}
	if t.QuoteSize <= 0 {
		errs = append(errs, fmt.Errorf("trading.quote_size must be positive, got %v", t.QuoteSize))
	}
	if t.ShortWindow <= 0 || t.ShortWindow >= t.LongWindow {
		errs = append(errs, fmt.Errorf("trading.short_window (%d) must be positive and smaller than trading.long_window (%d)", t.ShortWindow, t.LongWindow))
	}
	if t.MaxPositionSize <= 0 {
		errs = append(errs, fmt.Errorf("trading.max_position_size must be positive, got %v", t.MaxPositionSize))
	}
	if t.StopLossPct <= 0 {
		errs = append(errs, fmt.Errorf("trading.stop_loss_pct must be positive, got %v", t.StopLossPct))
	}
	if t.TakeProfitPct <= 0 {
		errs = append(errs, fmt.Errorf("trading.take_profit_pct must be positive, got %v", t.TakeProfitPct))
	}
	if t.PollIntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("trading.poll_interval_seconds must be positive, got %v", t.PollIntervalSeconds))
	}
	if t.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("trading.cooldown_seconds must not be negative, got %v", t.CooldownSeconds))
	}

	if c.Fomo.BaseURL == "" {
		errs = append(errs, errors.New("fomo.base_url is required"))
	}
	if c.Fomo.WebSocket.Enabled && c.Fomo.WebSocket.URL == "" {
		errs = append(errs, errors.New("fomo.websocket.url is required when the websocket is enabled"))
	}

	return errors.Join(errs...)
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	applySecrets(ctx, config, secretManager)

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}

type secretSource interface {
	GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string
}

// applySecrets fills credentials that neither the file nor the environment provided.
// The API key default is the demo key, so a real secret replaces it.
func applySecrets(ctx context.Context, config *Config, src secretSource) {
	names := config.GCP.SecretNames

	if config.Fomo.APIKey == "" || config.Fomo.APIKey == "demo-key" {
		config.Fomo.APIKey = src.GetSecretWithDefault(ctx, names.APIKey, config.Fomo.APIKey)
	}
	if config.Fomo.APIKeyName == "" {
		config.Fomo.APIKeyName = src.GetSecretWithDefault(ctx, names.APIKeyName, "")
	}
	if config.Fomo.PrivateKeyPEM == "" {
		config.Fomo.PrivateKeyPEM = src.GetSecretWithDefault(ctx, names.PrivateKey, "")
	}
	if config.Server.Token == "" {
		config.Server.Token = src.GetSecretWithDefault(ctx, names.ControlToken, "")
	}
}
