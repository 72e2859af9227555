package config

import (
	"strings"
	"testing"
)

func TestTailscaleConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TailscaleConfig
		wantErr string
	}{
		{
			name: "disabled",
			cfg:  TailscaleConfig{Enabled: false},
		},
		{
			name:    "missing hostname",
			cfg:     TailscaleConfig{Enabled: true, Port: 3055, AuthKey: "tskey-test"},
			wantErr: "hostname",
		},
		{
			name:    "port zero",
			cfg:     TailscaleConfig{Enabled: true, Hostname: "relay", Port: 0, AuthKey: "tskey-test"},
			wantErr: "port",
		},
		{
			name:    "port too large",
			cfg:     TailscaleConfig{Enabled: true, Hostname: "relay", Port: 70000, AuthKey: "tskey-test"},
			wantErr: "port",
		},
		{
			name:    "missing auth key",
			cfg:     TailscaleConfig{Enabled: true, Hostname: "relay", Port: 3055},
			wantErr: "FIGLINK_TS_AUTHKEY",
		},
		{
			name: "valid",
			cfg:  TailscaleConfig{Enabled: true, Hostname: "figlink-relay", Port: 3055, AuthKey: "tskey-test-123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_TailscaleAuthKeyFromEnv(t *testing.T) {
	t.Setenv("FIGLINK_CONFIG", "")
	t.Setenv("FIGLINK_TS_AUTHKEY", "tskey-env")
	t.Setenv("FIGLINK_RELAY_TAILSCALE_ENABLED", "true")
	t.Setenv("FIGLINK_RELAY_TAILSCALE_HOSTNAME", "figlink-relay")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ts := cfg.Relay.Tailscale
	if !ts.Enabled {
		t.Error("expected Enabled=true")
	}
	if ts.Hostname != "figlink-relay" {
		t.Errorf("Hostname = %q, want %q", ts.Hostname, "figlink-relay")
	}
	if ts.Port != DefaultTailscalePort {
		t.Errorf("Port = %d, want %d", ts.Port, DefaultTailscalePort)
	}
	if ts.AuthKey != "tskey-env" {
		t.Errorf("AuthKey = %q, want %q", ts.AuthKey, "tskey-env")
	}
}

func TestLoad_TailscaleEnabledWithoutKey(t *testing.T) {
	t.Setenv("FIGLINK_CONFIG", "")
	t.Setenv("FIGLINK_TS_AUTHKEY", "")
	t.Setenv("FIGLINK_RELAY_TAILSCALE_ENABLED", "true")
	t.Setenv("FIGLINK_RELAY_TAILSCALE_HOSTNAME", "figlink-relay")
	t.Chdir(t.TempDir())

	if _, err := Load(""); err == nil {
		t.Fatal("expected error when auth key is missing")
	}
}
