package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sparsechat/internal/logging"
)

// OverflowPolicy decides what happens when a recipient's outbox is full.
type OverflowPolicy string

const (
	// OverflowDisconnect closes the slow consumer's connection.
	OverflowDisconnect OverflowPolicy = "disconnect"
	// OverflowDropNew drops the frame that did not fit.
	OverflowDropNew OverflowPolicy = "drop_new"
)

const (
	defaultListen          = "127.0.0.1:3030"
	defaultWSPath          = "/ws"
	defaultOutboxCapacity  = 256
	defaultMaxFrameBytes   = 64 << 10
	defaultWriteTimeout    = 10 * time.Second
	defaultPongTimeout     = 60 * time.Second
	defaultFramesPerSecond = 50
	defaultFrameBurst      = 100
	defaultAcceptPerSecond = 5
	defaultAcceptBurst     = 20
	defaultMailboxEntries  = 1024
	defaultMailboxBytes    = 64 << 10
	defaultShutdownGrace   = 5 * time.Second

	defaultRelayURL         = "ws://127.0.0.1:3030/ws"
	defaultMailboxURL       = "http://127.0.0.1:3030"
	defaultHandshakeTimeout = 10 * time.Second
	defaultDialTimeout      = 10 * time.Second
	defaultClientOutbox     = 64
)

// Relay configures the relay server.
type Relay struct {
	Listen         string         `yaml:"listen"`
	WSPath         string         `yaml:"ws_path"`
	OutboxCapacity int            `yaml:"outbox_capacity"`
	OverflowPolicy OverflowPolicy `yaml:"overflow_policy"`
	MaxFrameBytes  int64          `yaml:"max_frame_bytes"`
	WriteTimeout   time.Duration  `yaml:"write_timeout"`
	PongTimeout    time.Duration  `yaml:"pong_timeout"`
	ShutdownGrace  time.Duration  `yaml:"shutdown_grace"`

	FramesPerSecond float64 `yaml:"frames_per_second"`
	FrameBurst      int     `yaml:"frame_burst"`
	AcceptPerSecond float64 `yaml:"accept_per_second"`
	AcceptBurst     int     `yaml:"accept_burst"`

	Mailbox Mailbox        `yaml:"mailbox"`
	Metrics Metrics        `yaml:"metrics"`
	Logging logging.Config `yaml:"logging"`
}

// Mailbox configures the fallback store-and-forward endpoint.
type Mailbox struct {
	Enabled         bool `yaml:"enabled"`
	MaxEntries      int  `yaml:"max_entries"`
	MaxMessageBytes int  `yaml:"max_message_bytes"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Client configures the chat client.
type Client struct {
	RelayURL         string         `yaml:"relay_url"`
	MailboxURL       string         `yaml:"mailbox_url"`
	Name             string         `yaml:"name"`
	HandshakeTimeout time.Duration  `yaml:"handshake_timeout"`
	DialTimeout      time.Duration  `yaml:"dial_timeout"`
	OutboxCapacity   int            `yaml:"outbox_capacity"`
	Logging          logging.Config `yaml:"logging"`
}

// File is the on-disk layout; either section may be absent.
type File struct {
	Relay  *Relay  `yaml:"relay"`
	Client *Client `yaml:"client"`
}

// DefaultRelay returns the built-in relay settings.
func DefaultRelay() Relay {
	return Relay{
		Listen:          defaultListen,
		WSPath:          defaultWSPath,
		OutboxCapacity:  defaultOutboxCapacity,
		OverflowPolicy:  OverflowDisconnect,
		MaxFrameBytes:   defaultMaxFrameBytes,
		WriteTimeout:    defaultWriteTimeout,
		PongTimeout:     defaultPongTimeout,
		ShutdownGrace:   defaultShutdownGrace,
		FramesPerSecond: defaultFramesPerSecond,
		FrameBurst:      defaultFrameBurst,
		AcceptPerSecond: defaultAcceptPerSecond,
		AcceptBurst:     defaultAcceptBurst,
		Mailbox: Mailbox{
			Enabled:         true,
			MaxEntries:      defaultMailboxEntries,
			MaxMessageBytes: defaultMailboxBytes,
		},
		Metrics: Metrics{Enabled: true, Path: "/metrics"},
		Logging: logging.DefaultConfig(),
	}
}

// DefaultClient returns the built-in client settings.
func DefaultClient() Client {
	return Client{
		RelayURL:         defaultRelayURL,
		MailboxURL:       defaultMailboxURL,
		HandshakeTimeout: defaultHandshakeTimeout,
		DialTimeout:      defaultDialTimeout,
		OutboxCapacity:   defaultClientOutbox,
		Logging:          logging.Config{Level: "warning", Format: "text"},
	}
}

// LoadRelay reads path (optional) over the defaults and applies env overrides.
func LoadRelay(path string) (Relay, error) {
	cfg := DefaultRelay()
	f, err := readFile(path)
	if err != nil {
		return cfg, err
	}
	if f.Relay != nil {
		cfg = *f.Relay
	}
	applyRelayEnv(&cfg)
	return cfg, cfg.Validate()
}

// LoadClient reads path (optional) over the defaults and applies env overrides.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	f, err := readFile(path)
	if err != nil {
		return cfg, err
	}
	if f.Client != nil {
		cfg = *f.Client
	}
	applyClientEnv(&cfg)
	return cfg, cfg.Validate()
}

// readFile decodes path into a File whose sections start from the defaults,
// so keys missing from the YAML keep their default values.
func readFile(path string) (File, error) {
	relay, client := DefaultRelay(), DefaultClient()
	f := File{}
	if strings.TrimSpace(path) == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("config: %w", err)
	}

	var probe map[string]yaml.Node
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return f, fmt.Errorf("config: %s: %w", path, err)
	}
	if node, ok := probe["relay"]; ok {
		if err := node.Decode(&relay); err != nil {
			return f, fmt.Errorf("config: %s: relay: %w", path, err)
		}
		f.Relay = &relay
	}
	if node, ok := probe["client"]; ok {
		if err := node.Decode(&client); err != nil {
			return f, fmt.Errorf("config: %s: client: %w", path, err)
		}
		f.Client = &client
	}
	return f, nil
}

// Validate rejects settings the relay cannot run with.
func (c Relay) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		errs = append(errs, fmt.Errorf("ws_path must start with '/': %q", c.WSPath))
	}
	if c.OutboxCapacity < 1 {
		errs = append(errs, fmt.Errorf("outbox_capacity must be positive: %d", c.OutboxCapacity))
	}
	switch c.OverflowPolicy {
	case OverflowDisconnect, OverflowDropNew:
	default:
		errs = append(errs, fmt.Errorf("unknown overflow_policy: %q", c.OverflowPolicy))
	}
	if c.MaxFrameBytes < 512 {
		errs = append(errs, fmt.Errorf("max_frame_bytes too small: %d", c.MaxFrameBytes))
	}
	if c.WriteTimeout <= 0 || c.PongTimeout <= 0 {
		errs = append(errs, errors.New("write_timeout and pong_timeout must be positive"))
	}
	if c.FramesPerSecond < 0 || c.FrameBurst < 0 || c.AcceptPerSecond < 0 || c.AcceptBurst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if c.Mailbox.Enabled && (c.Mailbox.MaxEntries < 1 || c.Mailbox.MaxMessageBytes < 1) {
		errs = append(errs, errors.New("mailbox limits must be positive"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics path must start with '/': %q", c.Metrics.Path))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: relay: %w", errors.Join(errs...))
	}
	return nil
}

// Validate rejects settings the client cannot run with.
func (c Client) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.RelayURL, "ws://") && !strings.HasPrefix(c.RelayURL, "wss://") {
		errs = append(errs, fmt.Errorf("relay_url must be a ws:// or wss:// URL: %q", c.RelayURL))
	}
	if c.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("handshake_timeout must be positive"))
	}
	if c.DialTimeout <= 0 {
		errs = append(errs, errors.New("dial_timeout must be positive"))
	}
	if c.OutboxCapacity < 1 {
		errs = append(errs, fmt.Errorf("outbox_capacity must be positive: %d", c.OutboxCapacity))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: client: %w", errors.Join(errs...))
	}
	return nil
}
