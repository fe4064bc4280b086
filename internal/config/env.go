package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "SPARSE_"

func applyRelayEnv(c *Relay) {
	c.Listen = envStringWithFallback("RELAY_LISTEN", c.Listen)
	c.WSPath = envStringWithFallback("RELAY_WS_PATH", c.WSPath)
	c.OutboxCapacity = envBoundedIntWithFallback("RELAY_OUTBOX_CAPACITY", c.OutboxCapacity, 1, 1<<16)
	c.OverflowPolicy = OverflowPolicy(envStringWithFallback("RELAY_OVERFLOW_POLICY", string(c.OverflowPolicy)))
	c.MaxFrameBytes = int64(envIntWithFallback("RELAY_MAX_FRAME_BYTES", int(c.MaxFrameBytes)))
	c.FramesPerSecond = envFloatWithFallback("RELAY_FRAMES_PER_SECOND", c.FramesPerSecond)
	c.FrameBurst = envIntWithFallback("RELAY_FRAME_BURST", c.FrameBurst)
	c.Mailbox.Enabled = envBoolWithFallback("RELAY_MAILBOX", c.Mailbox.Enabled)
	c.Metrics.Enabled = envBoolWithFallback("RELAY_METRICS", c.Metrics.Enabled)
	c.Logging.Level = envStringWithFallback("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envStringWithFallback("LOG_FORMAT", c.Logging.Format)
}

func applyClientEnv(c *Client) {
	c.RelayURL = envStringWithFallback("RELAY_URL", c.RelayURL)
	c.MailboxURL = envStringWithFallback("MAILBOX_URL", c.MailboxURL)
	c.Name = envStringWithFallback("NAME", c.Name)
	c.HandshakeTimeout = envDurationWithFallback("HANDSHAKE_TIMEOUT", c.HandshakeTimeout)
	c.Logging.Level = envStringWithFallback("LOG_LEVEL", c.Logging.Level)
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}

func envStringWithFallback(key, fallback string) string {
	if v := envString(key); v != "" {
		return v
	}
	return fallback
}

func envBoolWithFallback(key string, fallback bool) bool {
	switch strings.ToLower(envString(key)) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envIntWithFallback(key string, fallback int) int {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBoundedIntWithFallback(key string, fallback, min, max int) int {
	value := envIntWithFallback(key, fallback)
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func envFloatWithFallback(key string, fallback float64) float64 {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDurationWithFallback(key string, fallback time.Duration) time.Duration {
	raw := envString(key)
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
