package realtime

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// GatewayConfig holds the transport knobs of WSGateway.
type GatewayConfig struct {
	// DevInsecure disables websocket.Accept origin verification. Dev only.
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	// ReadIdleTimeout ends a session whose ping went unanswered after this long without
	// any frame or pong. A peer that answers pings is never idled out.
	ReadIdleTimeout  time.Duration
	WriteTimeout     time.Duration
	SendQueueSize    int
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
	HandshakeTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultGatewayConfig returns the secure defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   wsDefaultOriginRequired,
		AllowedOrigins:   splitCSV(wsDefaultAllowedOrigins),
		WriteTimeout:     wsDefaultWriteTimeout,
		ReadIdleTimeout:  wsDefaultReadIdle,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		HandshakeTimeout: handshakeTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// LoadGatewayConfigFromEnv reads UNIFREE_WS_* on top of DefaultGatewayConfig.
// Invalid values fall back to defaults.
func LoadGatewayConfigFromEnv() GatewayConfig {
	def := DefaultGatewayConfig()

	return GatewayConfig{
		DevInsecure:      envBoolWS("UNIFREE_WS_DEV_INSECURE", false),
		OriginRequired:   envBoolWS("UNIFREE_WS_ORIGIN_REQUIRED", def.OriginRequired),
		AllowedOrigins:   envCSVWS("UNIFREE_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins),
		WriteTimeout:     envDurationWS("UNIFREE_WS_WRITE_TIMEOUT", def.WriteTimeout),
		ReadIdleTimeout:  envDurationWS("UNIFREE_WS_READ_IDLE_TIMEOUT", def.ReadIdleTimeout),
		SendQueueSize:    envIntWS("UNIFREE_WS_SEND_QUEUE", def.SendQueueSize),
		HeartbeatEvery:   envDurationWS("UNIFREE_WS_HEARTBEAT_INTERVAL", def.HeartbeatEvery),
		HeartbeatTimeout: envDurationWS("UNIFREE_WS_HEARTBEAT_TIMEOUT", def.HeartbeatTimeout),
		HandshakeTimeout: envDurationWS("UNIFREE_WS_HANDSHAKE_TIMEOUT", def.HandshakeTimeout),
		RateEvents:       envIntWS("UNIFREE_WS_RATE_EVENTS", def.RateEvents),
		RateWindow:       envDurationWS("UNIFREE_WS_RATE_WINDOW", def.RateWindow),
	}
}

// normalized replaces zero or out-of-range values with defaults.
func (c GatewayConfig) normalized() GatewayConfig {
	def := DefaultGatewayConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = def.ReadIdleTimeout
	}
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = def.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = def.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = def.RateWindow
	}
	return c
}

// ---- env helpers ----

// envWS returns def unless key is set and parses into a value accepted by ok.
func envWS[T any](key string, def T, parse func(string) (T, error), ok func(T) bool) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil || (ok != nil && !ok(v)) {
		return def
	}
	return v
}

func envBoolWS(key string, def bool) bool {
	return envWS(key, def, strconv.ParseBool, nil)
}

func envIntWS(key string, def int) int {
	return envWS(key, def, strconv.Atoi, func(n int) bool { return n > 0 })
}

func envDurationWS(key string, def time.Duration) time.Duration {
	return envWS(key, def, time.ParseDuration, func(d time.Duration) bool { return d > 0 })
}

func envCSVWS(key string, def string) []string {
	return splitCSV(envWS(key, def, func(s string) (string, error) { return s, nil }, nil))
}

// splitCSV splits a comma list, trimming entries and dropping empty ones.
func splitCSV(raw string) []string {
	parts := lo.Map(strings.Split(raw, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Compact(parts)
}
