// Package config defines the runtime configuration for the salvo
// server and the helpers that parse and validate it.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperr "salvo/internal/errors"
	"salvo/util"
)

// Config holds every tuneable for one server process.
type Config struct {
	// ── Listeners ────────────────────────────────────────────────────
	Host         string
	Port         int      // framed TCP protocol
	HTTPPort     int      // WebSocket, /health and /stats; 0 disables
	AllowOrigins []string // CORS and WebSocket origin allow-list; empty allows all
	MaxFrame     int      // largest accepted message, bytes

	// ── Match ────────────────────────────────────────────────────────
	StrictFleet      bool
	PlacementTimeout time.Duration
	TurnTimeout      time.Duration
	RematchTimeout   time.Duration
	WriteTimeout     time.Duration

	// ── Registry ─────────────────────────────────────────────────────
	RedisURL    string // empty disables the live-match registry
	RegistryTTL time.Duration

	// ── SSH exposure ─────────────────────────────────────────────────
	ExposeSpec        string // raw [user@]host[:port] from --expose
	ExposeEnabled     bool
	ExposeUser        string
	ExposeHost        string
	ExposePort        int
	RemotePort        int
	RemoteBindAddress string
	SSHKeyPath        string
	SSHPassword       bool // true → prompt interactively
	UseSSHAgent       bool
	StrictHostKey     bool
	KnownHostsPath    string
	KeepAliveInterval int // seconds; 0 disables
	AutoReconnect     bool

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	DryRun  bool
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		MaxFrame:          DefaultMaxFrame,
		PlacementTimeout:  DefaultPlacementTimeout,
		TurnTimeout:       DefaultTurnTimeout,
		RematchTimeout:    DefaultRematchTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		RegistryTTL:       DefaultRegistryTTL,
		KeepAliveInterval: DefaultKeepAliveInterval,
	}
}

// ListenAddr is the framed TCP listen address.
func (c *Config) ListenAddr() string { return util.FormatAddr(c.Host, c.Port) }

// HTTPAddr is the HTTP listen address, or "" when HTTP is disabled.
func (c *Config) HTTPAddr() string {
	if c.HTTPPort == 0 {
		return ""
	}
	return util.FormatAddr(c.Host, c.HTTPPort)
}

// ── Expose-spec parser ───────────────────────────────────────────────

var userRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ParseExposeSpec extracts user, host and port from a string such as
// "deploy@bastion.example.com:2222".  Port defaults to 22.
func ParseExposeSpec(spec string) (user, host string, port int, err error) {
	rest := spec
	if i := strings.LastIndex(spec, "@"); i >= 0 {
		user, rest = spec[:i], spec[i+1:]
		if !userRe.MatchString(user) {
			return "", "", 0, fmt.Errorf("invalid user %q in expose spec %q", user, spec)
		}
	}
	host, port, err = util.SplitHostPort(rest, DefaultSSHPort)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid expose spec %q – expected [user@]host[:port]: %w", spec, err)
	}
	return user, host, port, nil
}

// ApplyExposeSpec parses ExposeSpec, if set, into the Expose fields.
func (c *Config) ApplyExposeSpec() error {
	if c.ExposeSpec == "" {
		return nil
	}
	user, host, port, err := ParseExposeSpec(c.ExposeSpec)
	if err != nil {
		return &apperr.ConfigError{
			Field:   "expose",
			Value:   c.ExposeSpec,
			Message: err.Error(),
			Hint:    "example: --expose deploy@bastion.example.com:2222 --remote-port 12345",
		}
	}
	c.ExposeEnabled = true
	c.ExposeUser, c.ExposeHost, c.ExposePort = user, host, port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent and
// returns the first problem as a *errors.ConfigError.
func (c *Config) Validate() error {
	if err := checkPort("port", c.Port, false); err != nil {
		return err
	}
	if err := checkPort("http-port", c.HTTPPort, true); err != nil {
		return err
	}
	if c.HTTPPort != 0 && c.HTTPPort == c.Port {
		return &apperr.ConfigError{
			Field:   "http-port",
			Value:   c.HTTPPort,
			Message: "must differ from --port",
			Hint:    "the framed TCP protocol and HTTP cannot share a port",
		}
	}
	if len(c.AllowOrigins) > 0 && c.HTTPPort == 0 {
		return &apperr.ConfigError{
			Field:   "allow-origin",
			Message: "has no effect without an HTTP listener",
			Hint:    "add --http-port <port>",
		}
	}
	if c.MaxFrame < MinMaxFrame {
		return &apperr.ConfigError{
			Field:   "max-frame",
			Value:   c.MaxFrame,
			Message: fmt.Sprintf("must be at least %d bytes", MinMaxFrame),
		}
	}
	if c.MaxFrame > MaxMaxFrame {
		return &apperr.ConfigError{
			Field:   "max-frame",
			Value:   c.MaxFrame,
			Message: fmt.Sprintf("must be at most %d bytes", MaxMaxFrame),
			Hint:    "every peer can make the server buffer one frame of this size",
		}
	}

	for _, d := range []struct {
		field string
		v     time.Duration
	}{
		{"placement-timeout", c.PlacementTimeout},
		{"turn-timeout", c.TurnTimeout},
		{"rematch-timeout", c.RematchTimeout},
		{"write-timeout", c.WriteTimeout},
		{"registry-ttl", c.RegistryTTL},
	} {
		if d.v < 0 {
			return &apperr.ConfigError{
				Field:   d.field,
				Value:   d.v,
				Message: "must not be negative",
				Hint:    "use 0 to disable the limit",
			}
		}
	}

	if c.RedisURL != "" && !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		return &apperr.ConfigError{
			Field:   "redis-url",
			Value:   c.RedisURL,
			Message: "must be a redis:// or rediss:// URL",
			Hint:    "example: redis://localhost:6379/0",
		}
	}

	if c.ExposeEnabled {
		if c.ExposeHost == "" {
			return &apperr.ConfigError{Field: "expose", Message: "gateway host is required"}
		}
		if c.RemotePort < 1 || c.RemotePort > 65535 {
			return &apperr.ConfigError{
				Field:   "remote-port",
				Value:   c.RemotePort,
				Message: "is required with --expose",
				Hint:    "the port players connect to on the gateway, e.g. --remote-port 12345",
			}
		}
		if c.KeepAliveInterval < 0 {
			return &apperr.ConfigError{Field: "keep-alive", Value: c.KeepAliveInterval, Message: "must not be negative"}
		}
	} else if c.RemotePort != 0 || c.AutoReconnect {
		return &apperr.ConfigError{
			Field:   "remote-port",
			Message: "SSH exposure options need --expose",
			Hint:    "add --expose [user@]host[:port]",
		}
	}

	return nil
}

func checkPort(field string, port int, optional bool) error {
	if optional && port == 0 {
		return nil
	}
	if port < 1 || port > 65535 {
		return &apperr.ConfigError{
			Field:   field,
			Value:   port,
			Message: "out of range 1-65535",
		}
	}
	return nil
}
