package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Listeners(t *testing.T) {
	t.Setenv("SALVO_HOST", "127.0.0.1")
	t.Setenv("SALVO_PORT", "4000")
	t.Setenv("SALVO_HTTP_PORT", "8080")
	t.Setenv("SALVO_ALLOW_ORIGINS", "https://a.example, https://b.example,,")
	t.Setenv("SALVO_MAX_FRAME", "4096")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.Host != "127.0.0.1" || cfg.Port != 4000 || cfg.HTTPPort != 8080 || cfg.MaxFrame != 4096 {
		t.Errorf("got %+v", cfg)
	}
	if len(cfg.AllowOrigins) != 2 || cfg.AllowOrigins[1] != "https://b.example" {
		t.Errorf("AllowOrigins = %q", cfg.AllowOrigins)
	}
}

func TestLoadFromEnv_Durations(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"90", 90 * time.Second},
		{"90s", 90 * time.Second},
		{"2m30s", 150 * time.Second},
		{"0", 0},
		{"soon", DefaultTurnTimeout}, // unparseable: keep existing
		{"-5s", DefaultTurnTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("SALVO_TURN_TIMEOUT", tt.value)
			cfg := Default()
			LoadFromEnv(cfg)
			if cfg.TurnTimeout != tt.want {
				t.Errorf("TurnTimeout = %v, want %v", cfg.TurnTimeout, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	tests := []struct {
		key    string
		values []string
		get    func(*Config) bool
	}{
		{"SALVO_STRICT_FLEET", []string{"1", "true", "yes", "TRUE", "Yes"}, func(c *Config) bool { return c.StrictFleet }},
		{"SALVO_SSH_AGENT", []string{"1", "true"}, func(c *Config) bool { return c.UseSSHAgent }},
		{"SALVO_STRICT_HOSTKEY", []string{"true"}, func(c *Config) bool { return c.StrictHostKey }},
		{"SALVO_AUTO_RECONNECT", []string{"1"}, func(c *Config) bool { return c.AutoReconnect }},
		{"SALVO_SSH_PASSWORD", []string{"yes"}, func(c *Config) bool { return c.SSHPassword }},
	}

	for _, tt := range tests {
		for _, v := range tt.values {
			t.Run(tt.key+"="+v, func(t *testing.T) {
				t.Setenv(tt.key, v)
				cfg := Default()
				LoadFromEnv(cfg)
				if !tt.get(cfg) {
					t.Errorf("%s=%s should enable the option", tt.key, v)
				}
			})
		}
	}
}

func TestLoadFromEnv_FalsyBooleans(t *testing.T) {
	for _, v := range []string{"0", "false", "no", "off", ""} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("SALVO_STRICT_FLEET", v)
			cfg := Default()
			LoadFromEnv(cfg)
			if cfg.StrictFleet {
				t.Errorf("SALVO_STRICT_FLEET=%q enabled strict fleet", v)
			}
		})
	}
}

func TestLoadFromEnv_Expose(t *testing.T) {
	t.Setenv("SALVO_EXPOSE", "deploy@gw:2222")
	t.Setenv("SALVO_REMOTE_PORT", "12345")
	t.Setenv("SALVO_REMOTE_BIND_ADDRESS", "0.0.0.0")
	t.Setenv("SALVO_SSH_KEY", "/keys/id_ed25519")
	t.Setenv("SALVO_KNOWN_HOSTS", "/keys/known_hosts")
	t.Setenv("SALVO_KEEP_ALIVE", "15")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.ExposeSpec != "deploy@gw:2222" || cfg.RemotePort != 12345 || cfg.RemoteBindAddress != "0.0.0.0" {
		t.Errorf("expose = %q %d %q", cfg.ExposeSpec, cfg.RemotePort, cfg.RemoteBindAddress)
	}
	if cfg.SSHKeyPath != "/keys/id_ed25519" || cfg.KnownHostsPath != "/keys/known_hosts" {
		t.Errorf("ssh paths = %q %q", cfg.SSHKeyPath, cfg.KnownHostsPath)
	}
	if cfg.KeepAliveInterval != 15 {
		t.Errorf("KeepAliveInterval = %d", cfg.KeepAliveInterval)
	}
	// The spec is only stored; ApplyExposeSpec parses it.
	if cfg.ExposeEnabled {
		t.Error("ExposeEnabled should be set by ApplyExposeSpec, not the loader")
	}
}

func TestLoadFromEnv_RegistryAndVerbose(t *testing.T) {
	t.Setenv("SALVO_REDIS_URL", "redis://cache:6379/2")
	t.Setenv("SALVO_REGISTRY_TTL", "30m")
	t.Setenv("SALVO_VERBOSE", "2")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.RedisURL != "redis://cache:6379/2" || cfg.RegistryTTL != 30*time.Minute {
		t.Errorf("registry = %q %v", cfg.RedisURL, cfg.RegistryTTL)
	}
	if cfg.Verbose != 2 {
		t.Errorf("Verbose = %d", cfg.Verbose)
	}
}

func TestLoadFromEnv_IgnoresGarbage(t *testing.T) {
	t.Setenv("SALVO_PORT", "not-a-number")
	t.Setenv("SALVO_KEEP_ALIVE", "-3")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default", cfg.Port)
	}
	if cfg.KeepAliveInterval != DefaultKeepAliveInterval {
		t.Errorf("KeepAliveInterval = %d, want default", cfg.KeepAliveInterval)
	}
}
