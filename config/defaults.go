package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// Shared by the CLI flags, the environment loader and Default().

const (
	// DefaultHost binds every interface.
	DefaultHost = ""

	// DefaultPort is the framed TCP protocol port.
	DefaultPort = 12345

	// DefaultMaxFrame is the largest message accepted from a client.
	DefaultMaxFrame = 64 << 10

	// MinMaxFrame is the smallest --max-frame that still fits a
	// placement request.
	MinMaxFrame = 256

	// MaxMaxFrame is the largest --max-frame; a peer may make the
	// server buffer this much per message.
	MaxMaxFrame = 16 << 20

	// Match phase limits.  A player who leaves the game open but idle
	// is dropped after these.
	DefaultPlacementTimeout = 10 * time.Minute
	DefaultTurnTimeout      = 5 * time.Minute
	DefaultRematchTimeout   = 2 * time.Minute

	// DefaultWriteTimeout bounds a single outbound message.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultRegistryTTL expires registry entries left by a crashed
	// server.
	DefaultRegistryTTL = 2 * time.Hour

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultKeepAliveInterval is the SSH keepalive interval in seconds.
	DefaultKeepAliveInterval = 30

	// DefaultConnTimeout is the SSH gateway connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultGracePeriod is how long shutdown waits for the HTTP server.
	DefaultGracePeriod = 5 * time.Second
)
