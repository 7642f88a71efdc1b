// Package tunnel exposes the game server through an SSH gateway.
//
// Expose asks the gateway for a remote port forward (the equivalent of
// ssh -R) and returns a net.Listener whose connections are the players
// arriving on the gateway's port.  The lobby serves it like any other
// listener.  Keepalives detect a dead gateway connection and, with
// AutoReconnect, Accept re-establishes the forward with exponential
// backoff instead of failing.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	apperr "salvo/internal/errors"
	"salvo/util"
)

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
}

func (c *SSHConfig) addr() string { return util.FormatAddr(c.Host, c.Port) }

func (c *SSHConfig) user() string {
	if c.User != "" {
		return c.User
	}
	return os.Getenv("USER")
}

// Dial establishes an authenticated SSH connection to the gateway.
// Authentication failures wrap ErrAuthFailed.
func Dial(ctx context.Context, cfg *SSHConfig, logger *util.Logger) (*ssh.Client, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}

	authMethods, err := BuildAuthMethods(cfg)
	if err != nil {
		return nil, apperr.WrapSSH("auth", cfg.Host, cfg.Port, fmt.Errorf("%w: %v", apperr.ErrAuthFailed, err))
	}
	hkCb, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, apperr.WrapSSH("hostkey", cfg.Host, cfg.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.user(),
		Auth:            authMethods,
		HostKeyCallback: hkCb,
		Timeout:         cfg.ConnTimeout,
		// Gateways commonly print the public address in their banner.
		BannerCallback: func(message string) error {
			logger.Info("%s", strings.TrimSpace(message))
			return nil
		},
	}

	addr := cfg.addr()
	logger.Debug("SSH: dialing %s as %s", addr, sshCfg.User)

	dialer := net.Dialer{Timeout: cfg.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, apperr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			err = fmt.Errorf("%w: %v", apperr.ErrAuthFailed, err)
		}
		return nil, apperr.WrapSSH("handshake", cfg.Host, cfg.Port, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}
