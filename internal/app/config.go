package app

import (
	"time"

	"sparsechat/internal/config"
)

// ClientFlags are command-line values layered over the loaded client
// config. Zero values leave the config untouched.
type ClientFlags struct {
	RelayURL         string
	MailboxURL       string
	Name             string
	LogLevel         string
	HandshakeTimeout time.Duration
}

// Apply overwrites the fields of c that were set on the command line.
func (f ClientFlags) Apply(c *config.Client) {
	if f.RelayURL != "" {
		c.RelayURL = f.RelayURL
	}
	if f.MailboxURL != "" {
		c.MailboxURL = f.MailboxURL
	}
	if f.Name != "" {
		c.Name = f.Name
	}
	if f.LogLevel != "" {
		c.Logging.Level = f.LogLevel
	}
	if f.HandshakeTimeout > 0 {
		c.HandshakeTimeout = f.HandshakeTimeout
	}
}

// RelayFlags are command-line values layered over the loaded relay config.
type RelayFlags struct {
	Listen         string
	OutboxCapacity int
	OverflowPolicy string
	LogLevel       string
	LogFormat      string
	NoMailbox      bool
	NoMetrics      bool
}

// Apply overwrites the fields of c that were set on the command line.
func (f RelayFlags) Apply(c *config.Relay) {
	if f.Listen != "" {
		c.Listen = f.Listen
	}
	if f.OutboxCapacity > 0 {
		c.OutboxCapacity = f.OutboxCapacity
	}
	if f.OverflowPolicy != "" {
		c.OverflowPolicy = config.OverflowPolicy(f.OverflowPolicy)
	}
	if f.LogLevel != "" {
		c.Logging.Level = f.LogLevel
	}
	if f.LogFormat != "" {
		c.Logging.Format = f.LogFormat
	}
	if f.NoMailbox {
		c.Mailbox.Enabled = false
	}
	if f.NoMetrics {
		c.Metrics.Enabled = false
	}
}

// LoadClientConfig reads path (may be empty), applies SPARSE_* variables and
// then flags, and validates the result.
func LoadClientConfig(path string, flags ClientFlags) (config.Client, error) {
	cfg, err := config.LoadClient(path)
	if err != nil {
		return cfg, err
	}
	flags.Apply(&cfg)
	return cfg, cfg.Validate()
}

// LoadRelayConfig is LoadClientConfig for the relay.
func LoadRelayConfig(path string, flags RelayFlags) (config.Relay, error) {
	cfg, err := config.LoadRelay(path)
	if err != nil {
		return cfg, err
	}
	flags.Apply(&cfg)
	return cfg, cfg.Validate()
}
