// Package cmd wires up the CLI flags and starts the match server.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"salvo/config"
	"salvo/internal/server"
	"salvo/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X salvo/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --version, --help and --dry-run output.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute parses args and runs the server until ctx is done.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("salvo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bindFlags(fs, cfg)

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w (use --help for usage)", err)
	}
	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "salvo %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	// ── expose spec ──────────────────────────────────────────────
	if err := cfg.ApplyExposeSpec(); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.DryRun {
		printConfig(stdout, cfg)
		return nil
	}

	logger := util.NewLogger(cfg.Verbose)
	return server.New(cfg, logger).Run(ctx)
}

// bindFlags registers every flag against cfg.  Flag defaults are the
// values already in cfg, so environment variables act as defaults and
// explicit flags win.
func bindFlags(fs *flag.FlagSet, cfg *config.Config) {
	// ── listeners ────────────────────────────────────────────────
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind address (all interfaces if empty)")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Framed TCP port")
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "HTTP port for /ws, /health and /stats (0 disables)")
	fs.StringArrayVar(&cfg.AllowOrigins, "allow-origin", cfg.AllowOrigins, "Allowed browser origin (repeatable)")
	fs.IntVar(&cfg.MaxFrame, "max-frame", cfg.MaxFrame, "Largest accepted message in bytes")

	// ── match ────────────────────────────────────────────────────
	fs.BoolVar(&cfg.StrictFleet, "strict-fleet", cfg.StrictFleet, "Require the standard fleet lengths")
	fs.DurationVar(&cfg.PlacementTimeout, "placement-timeout", cfg.PlacementTimeout, "Placement phase limit (0 disables)")
	fs.DurationVar(&cfg.TurnTimeout, "turn-timeout", cfg.TurnTimeout, "Per-turn limit (0 disables)")
	fs.DurationVar(&cfg.RematchTimeout, "rematch-timeout", cfg.RematchTimeout, "Rematch vote limit (0 disables)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Outbound message limit (0 disables)")

	// ── registry ─────────────────────────────────────────────────
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Publish live matches to redis://host:port/db")
	fs.DurationVar(&cfg.RegistryTTL, "registry-ttl", cfg.RegistryTTL, "Expiry of registry entries")

	// ── SSH exposure ─────────────────────────────────────────────
	fs.StringVarP(&cfg.ExposeSpec, "expose", "E", cfg.ExposeSpec, "Expose through an SSH gateway [user@]host[:port]")
	fs.IntVar(&cfg.RemotePort, "remote-port", cfg.RemotePort, "Port players connect to on the gateway (required with --expose)")
	fs.StringVar(&cfg.RemoteBindAddress, "remote-bind", cfg.RemoteBindAddress, "Bind address on the gateway")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	fs.IntVar(&cfg.KeepAliveInterval, "keep-alive", cfg.KeepAliveInterval, "SSH keepalive interval in seconds (0 disables)")
	fs.BoolVar(&cfg.AutoReconnect, "auto-reconnect", cfg.AutoReconnect, "Re-establish a lost gateway connection")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate and print the configuration, then exit")
}

// ── helpers ──────────────────────────────────────────────────────────

func printConfig(w io.Writer, cfg *config.Config) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k string, v interface{}) { fmt.Fprintf(tw, "%s\t%v\n", k, v) }

	row("tcp", cfg.ListenAddr())
	if addr := cfg.HTTPAddr(); addr != "" {
		row("http", addr)
		if len(cfg.AllowOrigins) > 0 {
			row("origins", strings.Join(cfg.AllowOrigins, ", "))
		}
	}
	row("max-frame", cfg.MaxFrame)
	row("strict-fleet", cfg.StrictFleet)
	row("timeouts", fmt.Sprintf("placement=%s turn=%s rematch=%s write=%s",
		cfg.PlacementTimeout, cfg.TurnTimeout, cfg.RematchTimeout, cfg.WriteTimeout))
	if cfg.RedisURL != "" {
		row("registry", fmt.Sprintf("%s (ttl %s)", cfg.RedisURL, cfg.RegistryTTL))
	}
	if cfg.ExposeEnabled {
		user := cfg.ExposeUser
		if user == "" {
			user = "$USER"
		}
		row("expose", fmt.Sprintf("%s@%s -> remote port %d",
			user, util.FormatAddr(cfg.ExposeHost, cfg.ExposePort), cfg.RemotePort))
		row("auto-reconnect", cfg.AutoReconnect)
	}
	tw.Flush() //nolint:errcheck
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stdout, `Salvo – two-player naval combat server v%s

Players connect over framed TCP or WebSocket, wait in the lobby and are
paired in arrival order.

Usage:
  salvo [options]

Options:
`, version)
	fs.SetOutput(stdout)
	fs.PrintDefaults()
	fmt.Fprintf(stdout, `
Environment:
  Most options can also be set as SALVO_<NAME>, e.g. SALVO_PORT=4000.
  Flags take precedence.

Examples:
  salvo                                     Listen on :%d
  salvo -p 4000 --http-port 8080            Also serve browsers on 8080
  salvo --redis-url redis://cache:6379/0    Publish live matches
  salvo -E deploy@gw.example --remote-port 9000 --auto-reconnect
`, config.DefaultPort)
}
