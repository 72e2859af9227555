package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonletto/figlink/internal/protocol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "figlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FIGLINK_CONFIG", "")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, []string{"stderr"}, cfg.Log.Outputs)
	assert.Equal(t, "localhost:3055", cfg.Relay.Addr)
	assert.Equal(t, "ws://localhost:3055", cfg.Gateway.RelayURL)
	assert.Equal(t, 30*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Gateway.ReconnectDelay)
	assert.Equal(t, 60*time.Second, cfg.Gateway.ProgressExtension)
	assert.Equal(t, int64(20<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, time.Hour, cfg.Upload.TTL)
	assert.False(t, cfg.Relay.RateLimit.Enabled)
	assert.False(t, cfg.Relay.Tailscale.Enabled)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("FIGLINK_CONFIG", "")
	path := writeConfig(t, `
log:
  level: debug
  format: json
relay:
  addr: 0.0.0.0:4000
  rate_limit:
    enabled: true
    messages_per_second: 5
    burst: 10
gateway:
  channel: design-1
  timeout: 45s
  command_timeouts:
    export_node_as_image: 2m
    scan_text_nodes: 90s
executor:
  channel: design-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "0.0.0.0:4000", cfg.Relay.Addr)
	assert.True(t, cfg.Relay.RateLimit.Enabled)
	assert.Equal(t, 10, cfg.Relay.RateLimit.Burst)
	assert.Equal(t, "design-1", cfg.Gateway.Channel)
	assert.Equal(t, 45*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "design-1", cfg.Executor.Channel)

	timeouts := cfg.Gateway.CommandTimeoutMap()
	assert.Equal(t, 2*time.Minute, timeouts[protocol.CmdExportNodeAsImage])
	assert.Equal(t, 90*time.Second, timeouts[protocol.CmdScanTextNodes])
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FIGLINK_CONFIG", "")
	t.Setenv("FIGLINK_GATEWAY_TIMEOUT", "12s")
	t.Setenv("FIGLINK_GATEWAY_CHANNEL", "from-env")
	path := writeConfig(t, "gateway:\n  channel: from-file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "from-env", cfg.Gateway.Channel)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown command timeout", "gateway:\n  command_timeouts:\n    set_corner_radius: 5s\n"},
		{"negative command timeout", "gateway:\n  command_timeouts:\n    get_selection: -1s\n"},
		{"zero timeout", "gateway:\n  timeout: 0s\n"},
		{"bad log level", "log:\n  level: chatty\n"},
		{"rate limit without budget", "relay:\n  rate_limit:\n    enabled: true\n    burst: 0\n"},
		{"zero upload size", "upload:\n  max_bytes: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FIGLINK_CONFIG", "")
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
