package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sparse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	require := require.New(t)
	require.NoError(DefaultRelay().Validate())
	require.NoError(DefaultClient().Validate())
	require.Equal("127.0.0.1:3030", DefaultRelay().Listen)
	require.Equal(OverflowDisconnect, DefaultRelay().OverflowPolicy)
}

func TestLoadRelayWithoutFile(t *testing.T) {
	cfg, err := LoadRelay("")
	require.NoError(t, err)
	require.Equal(t, DefaultRelay(), cfg)
}

func TestLoadRelayMergesOverDefaults(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, `
relay:
  listen: "0.0.0.0:9000"
  overflow_policy: drop_new
  write_timeout: 3s
  mailbox:
    max_entries: 8
`)
	cfg, err := LoadRelay(path)
	require.NoError(err)
	require.Equal("0.0.0.0:9000", cfg.Listen)
	require.Equal(OverflowDropNew, cfg.OverflowPolicy)
	require.Equal(3*time.Second, cfg.WriteTimeout)
	require.Equal(8, cfg.Mailbox.MaxEntries)
	require.True(cfg.Mailbox.Enabled)
	require.Equal(defaultOutboxCapacity, cfg.OutboxCapacity)
	require.Equal("/ws", cfg.WSPath)
}

func TestLoadClientSection(t *testing.T) {
	require := require.New(t)
	path := writeFile(t, `
client:
  relay_url: "wss://relay.example:443/ws"
  name: alice
  handshake_timeout: 2s
`)
	cfg, err := LoadClient(path)
	require.NoError(err)
	require.Equal("wss://relay.example:443/ws", cfg.RelayURL)
	require.Equal("alice", cfg.Name)
	require.Equal(2*time.Second, cfg.HandshakeTimeout)
	require.Equal(defaultDialTimeout, cfg.DialTimeout)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := LoadRelay(writeFile(t, "relay: [unterminated"))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadClient(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverridesFile(t *testing.T) {
	require := require.New(t)
	t.Setenv("SPARSE_RELAY_LISTEN", "127.0.0.1:4040")
	t.Setenv("SPARSE_RELAY_OUTBOX_CAPACITY", "999999")
	t.Setenv("SPARSE_RELAY_MAILBOX", "off")
	t.Setenv("SPARSE_LOG_LEVEL", "debug")
	t.Setenv("SPARSE_RELAY_FRAME_BURST", "not-a-number")

	cfg, err := LoadRelay(writeFile(t, "relay:\n  listen: \"0.0.0.0:1\"\n"))
	require.NoError(err)
	require.Equal("127.0.0.1:4040", cfg.Listen)
	require.Equal(1<<16, cfg.OutboxCapacity)
	require.False(cfg.Mailbox.Enabled)
	require.Equal("debug", cfg.Logging.Level)
	require.Equal(defaultFrameBurst, cfg.FrameBurst)
}

func TestClientEnv(t *testing.T) {
	t.Setenv("SPARSE_NAME", "bob")
	t.Setenv("SPARSE_HANDSHAKE_TIMEOUT", "750ms")
	cfg, err := LoadClient("")
	require.NoError(t, err)
	require.Equal(t, "bob", cfg.Name)
	require.Equal(t, 750*time.Millisecond, cfg.HandshakeTimeout)
}

func TestRelayValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Relay)
	}{
		{"empty listen", func(c *Relay) { c.Listen = " " }},
		{"relative path", func(c *Relay) { c.WSPath = "ws" }},
		{"zero outbox", func(c *Relay) { c.OutboxCapacity = 0 }},
		{"unknown policy", func(c *Relay) { c.OverflowPolicy = "drop_oldest" }},
		{"tiny frames", func(c *Relay) { c.MaxFrameBytes = 10 }},
		{"zero write timeout", func(c *Relay) { c.WriteTimeout = 0 }},
		{"negative rate", func(c *Relay) { c.FramesPerSecond = -1 }},
		{"empty mailbox", func(c *Relay) { c.Mailbox.MaxEntries = 0 }},
		{"metrics path", func(c *Relay) { c.Metrics.Path = "metrics" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultRelay()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestRelayValidateIgnoresDisabledMailbox(t *testing.T) {
	cfg := DefaultRelay()
	cfg.Mailbox = Mailbox{Enabled: false}
	require.NoError(t, cfg.Validate())
}

func TestClientValidate(t *testing.T) {
	require := require.New(t)
	cfg := DefaultClient()
	cfg.RelayURL = "http://127.0.0.1:3030/ws"
	require.Error(cfg.Validate())

	cfg = DefaultClient()
	cfg.HandshakeTimeout = 0
	require.Error(cfg.Validate())

	cfg = DefaultClient()
	cfg.OutboxCapacity = 0
	require.Error(cfg.Validate())
}
