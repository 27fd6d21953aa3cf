package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the root configuration
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram" json:"telegram"`
	Intake   IntakeConfig   `mapstructure:"intake" json:"intake"`
	Delivery DeliveryConfig `mapstructure:"delivery" json:"delivery"`
	Gateway  GatewayConfig  `mapstructure:"gateway" json:"gateway"`
	Log      LogConfig      `mapstructure:"log" json:"log"`
}

// TelegramConfig holds the bot credential and the approver group.
type TelegramConfig struct {
	Token          string `mapstructure:"token" json:"token"`
	ApproverChatID int64  `mapstructure:"approver_chat_id" json:"approver_chat_id"`
	PollTimeout    int    `mapstructure:"poll_timeout" json:"poll_timeout"` // seconds
}

// IntakeConfig tunes intake sessions.
type IntakeConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// Timeout is the inactivity window of an intake session.
func (c IntakeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DeliveryConfig tunes retries and the circuit breaker around the transport.
type DeliveryConfig struct {
	RetryAttempts         int `mapstructure:"retry_attempts" json:"retry_attempts"`
	RetryDelayMs          int `mapstructure:"retry_delay_ms" json:"retry_delay_ms"`
	BreakerFailures       int `mapstructure:"breaker_failures" json:"breaker_failures"`
	BreakerTimeoutSeconds int `mapstructure:"breaker_timeout_seconds" json:"breaker_timeout_seconds"`
	MaxConcurrentSends    int `mapstructure:"max_concurrent_sends" json:"max_concurrent_sends"`
}

func (c DeliveryConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func (c DeliveryConfig) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutSeconds) * time.Second
}

// GatewayConfig is the operational HTTP listener.
type GatewayConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Host    string `mapstructure:"host" json:"host"`
	Port    int    `mapstructure:"port" json:"port"`
}

// Addr is the listen address.
func (c GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig for logging
type LogConfig struct {
	Level string `mapstructure:"level" json:"level"`
	File  string `mapstructure:"file" json:"file"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		Intake: IntakeConfig{
			TimeoutSeconds: 300,
		},
		Delivery: DeliveryConfig{
			RetryAttempts:         3,
			RetryDelayMs:          200,
			BreakerFailures:       5,
			BreakerTimeoutSeconds: 30,
			MaxConcurrentSends:    16,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    18791,
		},
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ConfigDir returns the breakbot config directory
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return filepath.Join(homeDir, ".breakbot")
}

// ConfigPath returns the default config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// legacyEnv maps keys to the variable names the first bot deployment used.
var legacyEnv = map[string]string{
	"telegram.token":            "BOT_TOKEN",
	"telegram.approver_chat_id": "GROUP_CHAT_ID",
}

// Load reads config from path (ConfigPath when empty), layering BREAKBOT_*
// environment variables over the file and the file over defaults. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = ConfigPath()
	}
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("BREAKBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)
	for key, legacy := range legacyEnv {
		envKey := "BREAKBOT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return cfg, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		slog.Debug("config file not found, using defaults and environment", "path", path)
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("telegram.token", cfg.Telegram.Token)
	v.SetDefault("telegram.approver_chat_id", cfg.Telegram.ApproverChatID)
	v.SetDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	v.SetDefault("intake.timeout_seconds", cfg.Intake.TimeoutSeconds)
	v.SetDefault("delivery.retry_attempts", cfg.Delivery.RetryAttempts)
	v.SetDefault("delivery.retry_delay_ms", cfg.Delivery.RetryDelayMs)
	v.SetDefault("delivery.breaker_failures", cfg.Delivery.BreakerFailures)
	v.SetDefault("delivery.breaker_timeout_seconds", cfg.Delivery.BreakerTimeoutSeconds)
	v.SetDefault("delivery.max_concurrent_sends", cfg.Delivery.MaxConcurrentSends)
	v.SetDefault("gateway.enabled", cfg.Gateway.Enabled)
	v.SetDefault("gateway.host", cfg.Gateway.Host)
	v.SetDefault("gateway.port", cfg.Gateway.Port)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save writes cfg to path (ConfigPath when empty).
func Save(path string, cfg *Config) error {
	if strings.TrimSpace(path) == "" {
		path = ConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges
// and fills zero values with defaults.
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.Telegram.PollTimeout < 0 {
		return fmt.Errorf("telegram.poll_timeout must not be negative, got %d", c.Telegram.PollTimeout)
	}
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = def.Telegram.PollTimeout
	}

	if c.Intake.TimeoutSeconds < 0 {
		return fmt.Errorf("intake.timeout_seconds must not be negative, got %d", c.Intake.TimeoutSeconds)
	}
	if c.Intake.TimeoutSeconds == 0 {
		c.Intake.TimeoutSeconds = def.Intake.TimeoutSeconds
	}

	d := &c.Delivery
	if d.RetryAttempts < 0 {
		return fmt.Errorf("delivery.retry_attempts must not be negative, got %d", d.RetryAttempts)
	}
	if d.RetryAttempts == 0 {
		d.RetryAttempts = def.Delivery.RetryAttempts
	}
	if d.RetryDelayMs < 0 {
		return fmt.Errorf("delivery.retry_delay_ms must not be negative, got %d", d.RetryDelayMs)
	}
	if d.BreakerFailures < 0 {
		return fmt.Errorf("delivery.breaker_failures must not be negative, got %d", d.BreakerFailures)
	}
	if d.BreakerFailures == 0 {
		d.BreakerFailures = def.Delivery.BreakerFailures
	}
	if d.BreakerTimeoutSeconds < 0 {
		return fmt.Errorf("delivery.breaker_timeout_seconds must not be negative, got %d", d.BreakerTimeoutSeconds)
	}
	if d.BreakerTimeoutSeconds == 0 {
		d.BreakerTimeoutSeconds = def.Delivery.BreakerTimeoutSeconds
	}
	if d.MaxConcurrentSends < 0 {
		return fmt.Errorf("delivery.max_concurrent_sends must not be negative, got %d", d.MaxConcurrentSends)
	}
	if d.MaxConcurrentSends == 0 {
		d.MaxConcurrentSends = def.Delivery.MaxConcurrentSends
	}

	if c.Gateway.Enabled && (c.Gateway.Port <= 0 || c.Gateway.Port > 65535) {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	return nil
}

// ValidateForRun is Validate plus the settings the bot cannot start without.
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (set BREAKBOT_TELEGRAM_TOKEN or BOT_TOKEN)")
	}
	if c.Telegram.ApproverChatID == 0 {
		return fmt.Errorf("telegram.approver_chat_id is required (set BREAKBOT_TELEGRAM_APPROVER_CHAT_ID or GROUP_CHAT_ID)")
	}
	return nil
}
