package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the SALVO_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("90s", "5m") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty,
// parseable values override the existing value.  Call it BEFORE CLI
// flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	// Listeners
	if v, ok := os.LookupEnv("SALVO_HOST"); ok {
		cfg.Host = v
	}
	if v := envInt("SALVO_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := envInt("SALVO_HTTP_PORT"); v > 0 {
		cfg.HTTPPort = v
	}
	if v := os.Getenv("SALVO_ALLOW_ORIGINS"); v != "" {
		cfg.AllowOrigins = splitList(v)
	}
	if v := envInt("SALVO_MAX_FRAME"); v > 0 {
		cfg.MaxFrame = v
	}

	// Match
	if envBool("SALVO_STRICT_FLEET") {
		cfg.StrictFleet = true
	}
	if d, ok := envDuration("SALVO_PLACEMENT_TIMEOUT"); ok {
		cfg.PlacementTimeout = d
	}
	if d, ok := envDuration("SALVO_TURN_TIMEOUT"); ok {
		cfg.TurnTimeout = d
	}
	if d, ok := envDuration("SALVO_REMATCH_TIMEOUT"); ok {
		cfg.RematchTimeout = d
	}
	if d, ok := envDuration("SALVO_WRITE_TIMEOUT"); ok {
		cfg.WriteTimeout = d
	}

	// Registry
	if v := os.Getenv("SALVO_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if d, ok := envDuration("SALVO_REGISTRY_TTL"); ok {
		cfg.RegistryTTL = d
	}

	// SSH exposure
	if v := os.Getenv("SALVO_EXPOSE"); v != "" {
		cfg.ExposeSpec = v
	}
	if v := envInt("SALVO_REMOTE_PORT"); v > 0 {
		cfg.RemotePort = v
	}
	if v := os.Getenv("SALVO_REMOTE_BIND_ADDRESS"); v != "" {
		cfg.RemoteBindAddress = v
	}
	if v := os.Getenv("SALVO_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("SALVO_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("SALVO_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("SALVO_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("SALVO_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := envInt("SALVO_KEEP_ALIVE"); v > 0 {
		cfg.KeepAliveInterval = v
	}
	if envBool("SALVO_AUTO_RECONNECT") {
		cfg.AutoReconnect = true
	}

	// Output
	if v := envInt("SALVO_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, true
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
