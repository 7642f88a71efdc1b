// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a match server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for the server.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	lobbyWaiting      atomic.Int64

	sessionsActive  atomic.Int64
	sessionsTotal   atomic.Int64
	sessionsAborted atomic.Int64
	roundsPlayed    atomic.Int64
	rematches       atomic.Int64

	shotsFired atomic.Int64
	shotsHit   atomic.Int64

	tunnelReconnects atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// SetWaiting records the lobby queue length.
func (c *Collector) SetWaiting(n int) {
	if c == nil {
		return
	}
	c.lobbyWaiting.Store(int64(n))
}

// Waiting returns the last recorded lobby queue length.
func (c *Collector) Waiting() int64 {
	if c == nil {
		return 0
	}
	return c.lobbyWaiting.Load()
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionStarted records a newly paired match.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionEnded records the end of a match.  aborted is true when the
// session ended on an error rather than a declined rematch.
func (c *Collector) SessionEnded(aborted bool) {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
	if aborted {
		c.sessionsAborted.Add(1)
	}
}

// ActiveSessions returns the number of matches in progress.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime match count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// AbortedSessions returns how many matches ended on an error.
func (c *Collector) AbortedSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsAborted.Load()
}

// RoundPlayed records a round that reached game over.
func (c *Collector) RoundPlayed() {
	if c == nil {
		return
	}
	c.roundsPlayed.Add(1)
}

// Rounds returns the number of completed rounds.
func (c *Collector) Rounds() int64 {
	if c == nil {
		return 0
	}
	return c.roundsPlayed.Load()
}

// Rematch records an agreed rematch.
func (c *Collector) Rematch() {
	if c == nil {
		return
	}
	c.rematches.Add(1)
}

// Rematches returns the number of agreed rematches.
func (c *Collector) Rematches() int64 {
	if c == nil {
		return 0
	}
	return c.rematches.Load()
}

// ShotFired records a resolved shot.
func (c *Collector) ShotFired(hit bool) {
	if c == nil {
		return
	}
	c.shotsFired.Add(1)
	if hit {
		c.shotsHit.Add(1)
	}
}

// Shots returns total shots and how many of them hit.
func (c *Collector) Shots() (fired, hit int64) {
	if c == nil {
		return 0, 0
	}
	return c.shotsFired.Load(), c.shotsHit.Load()
}

// ── Tunnel metrics ───────────────────────────────────────────────────

// TunnelReconnect records an SSH exposure reconnection.
func (c *Collector) TunnelReconnect() {
	if c == nil {
		return
	}
	c.tunnelReconnects.Add(1)
}

// TunnelReconnects returns the total reconnection count.
func (c *Collector) TunnelReconnects() int64 {
	if c == nil {
		return 0
	}
	return c.tunnelReconnects.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	LobbyWaiting      int64  `json:"lobby_waiting"`
	SessionsActive    int64  `json:"sessions_active"`
	SessionsTotal     int64  `json:"sessions_total"`
	SessionsAborted   int64  `json:"sessions_aborted"`
	RoundsPlayed      int64  `json:"rounds_played"`
	Rematches         int64  `json:"rematches"`
	ShotsFired        int64  `json:"shots_fired"`
	ShotsHit          int64  `json:"shots_hit"`
	TunnelReconnects  int64  `json:"tunnel_reconnects"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		LobbyWaiting:      c.lobbyWaiting.Load(),
		SessionsActive:    c.sessionsActive.Load(),
		SessionsTotal:     c.sessionsTotal.Load(),
		SessionsAborted:   c.sessionsAborted.Load(),
		RoundsPlayed:      c.roundsPlayed.Load(),
		Rematches:         c.rematches.Load(),
		ShotsFired:        c.shotsFired.Load(),
		ShotsHit:          c.shotsHit.Load(),
		TunnelReconnects:  c.tunnelReconnects.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
