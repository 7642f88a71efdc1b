// Package errors provides domain-specific error types for salvo.
//
// These types carry structured context (operation, address, phase,
// player) so that callers can decide whether a failure is an ordinary
// peer departure or something worth reporting, and so that logs say
// where in a match things went wrong.
package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrMalformed      = errors.New("malformed message")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
	ErrPhaseTimeout   = errors.New("phase timed out")
	ErrSessionClosed  = errors.New("session is closed")
	ErrLobbyClosed    = errors.New("lobby is closed")
	ErrNotConnected   = errors.New("not connected")
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrAuthFailed     = errors.New("authentication failed")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "listen", "accept", "read", "write", "dial"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError ties a failure to the match phase and seat it happened
// in.  Player is -1 when the failure is not specific to one seat.
type ProtocolError struct {
	Phase  string
	Player int
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Player < 0 {
		return fmt.Sprintf("%s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("%s: player %d: %v", e.Phase, e.Player, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "forward", "keepalive"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// InPhase creates a ProtocolError.
func InPhase(phase string, player int, err error) *ProtocolError {
	return &ProtocolError{Phase: phase, Player: player, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsDisconnect reports whether err is an ordinary peer departure: EOF,
// a closed connection, or a reset.  Such aborts are logged quietly.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	return errors.Is(err, ErrSessionClosed)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }
