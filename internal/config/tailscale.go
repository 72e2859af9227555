package config

import "fmt"

// DefaultTailscalePort is the default port for the tailnet relay listener.
const DefaultTailscalePort = 3055

// TailscaleConfig holds configuration for exposing the relay on a tailnet
// through tsnet, so executors on other machines can join without a public port.
type TailscaleConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Hostname   string `mapstructure:"hostname" yaml:"hostname"`       // tsnet hostname (e.g., "figlink-relay")
	Port       int    `mapstructure:"port" yaml:"port"`               // listener port on the tailnet
	StateDir   string `mapstructure:"state_dir" yaml:"state_dir"`     // directory for tsnet state persistence
	ControlURL string `mapstructure:"control_url" yaml:"control_url"` // empty = Tailscale SaaS; set for Headscale

	// AuthKey is loaded from FIGLINK_TS_AUTHKEY, never from the config file.
	AuthKey string `mapstructure:"-" yaml:"-"`
}

// Validate checks that the configuration is usable when enabled.
// Returns nil if disabled.
func (c *TailscaleConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Hostname == "" {
		return fmt.Errorf("relay.tailscale.hostname is required when the tailnet listener is enabled")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("relay.tailscale.port must be between 1 and 65535, got %d", c.Port)
	}

	if c.AuthKey == "" {
		return fmt.Errorf("FIGLINK_TS_AUTHKEY is required when the tailnet listener is enabled")
	}

	return nil
}
