// Package registry publishes the set of live matches and their
// lifecycle events so that operators (or a dashboard) can see what the
// server is doing.  It records only matches in progress; a match's
// entry is removed when its session ends.
package registry

import (
	"context"
	"time"
)

// Event kinds published on the events channel.
const (
	EventStarted = "started"
	EventPhase   = "phase"
	EventEnded   = "ended"
)

// Match describes one live session.
type Match struct {
	ID        string    `json:"id"`
	Players   [2]string `json:"players"`
	Phase     string    `json:"phase"`
	Round     int       `json:"round"`
	StartedAt time.Time `json:"startedAt"`
}

// Event is a lifecycle notification for one match.
type Event struct {
	Kind    string    `json:"kind"`
	MatchID string    `json:"matchId"`
	Phase   string    `json:"phase,omitempty"`
	Round   int       `json:"round,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// Registry is notified by sessions as they progress.  Implementations
// must be safe for concurrent use.  Failures are reported to the caller
// but never affect the match itself.
type Registry interface {
	Started(ctx context.Context, m Match) error
	PhaseChanged(ctx context.Context, id, phase string, round int) error
	Ended(ctx context.Context, id, reason string) error
	Live(ctx context.Context) ([]Match, error)
	Close() error
}

// Nop discards everything.  It is used when no Redis URL is configured.
type Nop struct{}

func (Nop) Started(context.Context, Match) error                     { return nil }
func (Nop) PhaseChanged(context.Context, string, string, int) error { return nil }
func (Nop) Ended(context.Context, string, string) error             { return nil }
func (Nop) Live(context.Context) ([]Match, error)                   { return nil, nil }
func (Nop) Close() error                                            { return nil }
