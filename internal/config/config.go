// Package config provides YAML-based configuration loading for figlink.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/leonletto/figlink/internal/protocol"
)

// DefaultPort is the port the relay listens on when none is configured.
const DefaultPort = 3055

// Config is the root configuration shared by the relay, gateway and executor.
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Relay    RelayConfig    `mapstructure:"relay" yaml:"relay"`
	Upload   UploadConfig   `mapstructure:"upload" yaml:"upload"`
	Gateway  GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Format: console or json
	Format string `mapstructure:"format" yaml:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs" yaml:"outputs"`

	Rotation    RotationConfig `mapstructure:"rotation" yaml:"rotation"`
	Development bool           `mapstructure:"development" yaml:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable" yaml:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// RelayConfig configures the channel relay process.
type RelayConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// PublicURL is the base URL clients use to fetch uploaded images.
	PublicURL string          `mapstructure:"public_url" yaml:"public_url"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Tailscale TailscaleConfig `mapstructure:"tailscale" yaml:"tailscale"`
}

// RateLimitConfig bounds inbound frames per relay connection.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second" yaml:"messages_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// UploadConfig configures the image upload side-channel.
type UploadConfig struct {
	MaxBytes      int64         `mapstructure:"max_bytes" yaml:"max_bytes"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// GatewayConfig configures the agent-facing command gateway.
type GatewayConfig struct {
	RelayURL string `mapstructure:"relay_url" yaml:"relay_url"`
	// Channel is joined once at startup when set.
	Channel           string                   `mapstructure:"channel" yaml:"channel"`
	Timeout           time.Duration            `mapstructure:"timeout" yaml:"timeout"`
	CommandTimeouts   map[string]time.Duration `mapstructure:"command_timeouts" yaml:"command_timeouts"`
	ReconnectDelay    time.Duration            `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	ProgressExtension time.Duration            `mapstructure:"progress_extension" yaml:"progress_extension"`
}

// ExecutorConfig configures the design-tool side executor stub.
type ExecutorConfig struct {
	RelayURL       string        `mapstructure:"relay_url" yaml:"relay_url"`
	Channel        string        `mapstructure:"channel" yaml:"channel"`
	UploadURL      string        `mapstructure:"upload_url" yaml:"upload_url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Relay: RelayConfig{
			Addr:      fmt.Sprintf("localhost:%d", DefaultPort),
			PublicURL: fmt.Sprintf("http://localhost:%d", DefaultPort),
			RateLimit: RateLimitConfig{
				MessagesPerSecond: 50,
				Burst:             100,
			},
			Tailscale: TailscaleConfig{
				Port: DefaultTailscalePort,
			},
		},
		Upload: UploadConfig{
			MaxBytes:      20 << 20,
			TTL:           time.Hour,
			SweepInterval: time.Hour,
		},
		Gateway: GatewayConfig{
			RelayURL:          fmt.Sprintf("ws://localhost:%d", DefaultPort),
			Timeout:           30 * time.Second,
			CommandTimeouts:   map[string]time.Duration{},
			ReconnectDelay:    2 * time.Second,
			ProgressExtension: 60 * time.Second,
		},
		Executor: ExecutorConfig{
			RelayURL:       fmt.Sprintf("ws://localhost:%d", DefaultPort),
			UploadURL:      fmt.Sprintf("http://localhost:%d", DefaultPort),
			ReconnectDelay: 2 * time.Second,
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise it searches
// common locations. Environment variables use the prefix FIGLINK and `.`/`-`
// are replaced with `_`, e.g. FIGLINK_GATEWAY_TIMEOUT=45s.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FIGLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("relay.addr", cfg.Relay.Addr)
	v.SetDefault("relay.public_url", cfg.Relay.PublicURL)
	v.SetDefault("relay.rate_limit.enabled", cfg.Relay.RateLimit.Enabled)
	v.SetDefault("relay.rate_limit.messages_per_second", cfg.Relay.RateLimit.MessagesPerSecond)
	v.SetDefault("relay.rate_limit.burst", cfg.Relay.RateLimit.Burst)
	v.SetDefault("relay.tailscale.enabled", cfg.Relay.Tailscale.Enabled)
	v.SetDefault("relay.tailscale.hostname", cfg.Relay.Tailscale.Hostname)
	v.SetDefault("relay.tailscale.port", cfg.Relay.Tailscale.Port)
	v.SetDefault("relay.tailscale.state_dir", cfg.Relay.Tailscale.StateDir)
	v.SetDefault("relay.tailscale.control_url", cfg.Relay.Tailscale.ControlURL)
	v.SetDefault("upload.max_bytes", cfg.Upload.MaxBytes)
	v.SetDefault("upload.ttl", cfg.Upload.TTL)
	v.SetDefault("upload.sweep_interval", cfg.Upload.SweepInterval)
	v.SetDefault("gateway.relay_url", cfg.Gateway.RelayURL)
	v.SetDefault("gateway.channel", cfg.Gateway.Channel)
	v.SetDefault("gateway.timeout", cfg.Gateway.Timeout)
	v.SetDefault("gateway.reconnect_delay", cfg.Gateway.ReconnectDelay)
	v.SetDefault("gateway.progress_extension", cfg.Gateway.ProgressExtension)
	v.SetDefault("executor.relay_url", cfg.Executor.RelayURL)
	v.SetDefault("executor.channel", cfg.Executor.Channel)
	v.SetDefault("executor.upload_url", cfg.Executor.UploadURL)
	v.SetDefault("executor.reconnect_delay", cfg.Executor.ReconnectDelay)

	if path == "" {
		if envPath := os.Getenv("FIGLINK_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("figlink")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".figlink"))
		}
	}

	// Missing config file is fine; defaults and env still apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// The auth key is a secret and only ever comes from the environment.
	cfg.Relay.Tailscale.AuthKey = os.Getenv("FIGLINK_TS_AUTHKEY")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive, got %s", c.Gateway.Timeout)
	}
	for name, d := range c.Gateway.CommandTimeouts {
		if _, err := protocol.ParseCommand(name); err != nil {
			return fmt.Errorf("gateway.command_timeouts: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("gateway.command_timeouts.%s must be positive, got %s", name, d)
		}
	}
	if c.Gateway.ReconnectDelay <= 0 {
		return fmt.Errorf("gateway.reconnect_delay must be positive, got %s", c.Gateway.ReconnectDelay)
	}
	if c.Executor.ReconnectDelay <= 0 {
		return fmt.Errorf("executor.reconnect_delay must be positive, got %s", c.Executor.ReconnectDelay)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive, got %d", c.Upload.MaxBytes)
	}
	if c.Relay.RateLimit.Enabled && (c.Relay.RateLimit.MessagesPerSecond <= 0 || c.Relay.RateLimit.Burst <= 0) {
		return fmt.Errorf("relay.rate_limit requires positive messages_per_second and burst")
	}
	return c.Relay.Tailscale.Validate()
}

// CommandTimeoutMap returns the per-command timeout overrides keyed by command.
func (g GatewayConfig) CommandTimeoutMap() map[protocol.Command]time.Duration {
	out := make(map[protocol.Command]time.Duration, len(g.CommandTimeouts))
	for name, d := range g.CommandTimeouts {
		out[protocol.Command(name)] = d
	}
	return out
}
