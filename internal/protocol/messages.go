// Package protocol defines the messages exchanged between a match
// server and its two clients, the JSON envelope that carries them, and
// the Conn contract every transport implements.
//
// Every message travels as
//
//	{"type": "<tag>", "payload": {...}}
//
// where the tag selects the concrete payload type.
package protocol

import "salvo/internal/game"

// Type is a message tag.
type Type string

const (
	TypeWelcome         Type = "welcome"
	TypeMatchFound      Type = "match_found"
	TypePlaceShip       Type = "place_ship"
	TypePlaceShipResult Type = "place_ship_result"
	TypeReady           Type = "ready"
	TypeFire            Type = "fire"
	TypeFireResult      Type = "fire_result"
	TypeTurn            Type = "turn"
	TypeGameOver        Type = "game_over"
	TypeRematch         Type = "rematch"
	TypeRematchStatus   Type = "rematch_status"
)

// WelcomeMarker is the fixed handshake greeting.
const WelcomeMarker = "WELCOME"

// Message is implemented by every payload type.
type Message interface {
	Type() Type
}

// ── Server → client ──────────────────────────────────────────────────

// Welcome opens every round.
type Welcome struct {
	Marker string `json:"marker"`
}

// MatchFound tells a client which seat it holds.
type MatchFound struct {
	PlayerID int `json:"playerId"`
}

// PlaceShipResponse reports whether the last placement was accepted.
type PlaceShipResponse struct {
	Success bool `json:"success"`
}

// FireResponse is broadcast to both players after every shot.
type FireResponse struct {
	Position game.Position `json:"position"`
	Result   game.Cell     `json:"result"`
}

// TurnMessage tells the receiver whether it is now the attacker.
type TurnMessage struct {
	YourTurn bool `json:"yourTurn"`
}

// GameOverMessage announces the winner of the round.
type GameOverMessage struct {
	Winner int `json:"winner"`
}

// RematchStatus is broadcast once both rematch votes are in.
type RematchStatus struct {
	BothAgreed bool `json:"bothAgreed"`
}

// ── Client → server ──────────────────────────────────────────────────

// PlaceShipRequest asks to put a ship on the sender's own board.  The
// PlayerID is informational; the server uses the connection's seat.
type PlaceShipRequest struct {
	PlayerID int       `json:"playerId"`
	Ship     game.Ship `json:"ship"`
}

// ReadyRequest ends the sender's placement.
type ReadyRequest struct {
	PlayerID int `json:"playerId"`
}

// FireRequest is a shot at the opponent's board.
type FireRequest struct {
	Position game.Position `json:"position"`
}

// RematchRequest is a vote for another round.
type RematchRequest struct {
	PlayerID int `json:"playerId"`
}

func (Welcome) Type() Type           { return TypeWelcome }
func (MatchFound) Type() Type        { return TypeMatchFound }
func (PlaceShipRequest) Type() Type  { return TypePlaceShip }
func (PlaceShipResponse) Type() Type { return TypePlaceShipResult }
func (ReadyRequest) Type() Type      { return TypeReady }
func (FireRequest) Type() Type       { return TypeFire }
func (FireResponse) Type() Type      { return TypeFireResult }
func (TurnMessage) Type() Type       { return TypeTurn }
func (GameOverMessage) Type() Type   { return TypeGameOver }
func (RematchRequest) Type() Type    { return TypeRematch }
func (RematchStatus) Type() Type     { return TypeRematchStatus }

// newPayload returns a pointer to a zero payload for tag, or nil when
// the tag is unknown.
func newPayload(t Type) Message {
	switch t {
	case TypeWelcome:
		return &Welcome{}
	case TypeMatchFound:
		return &MatchFound{}
	case TypePlaceShip:
		return &PlaceShipRequest{}
	case TypePlaceShipResult:
		return &PlaceShipResponse{}
	case TypeReady:
		return &ReadyRequest{}
	case TypeFire:
		return &FireRequest{}
	case TypeFireResult:
		return &FireResponse{}
	case TypeTurn:
		return &TurnMessage{}
	case TypeGameOver:
		return &GameOverMessage{}
	case TypeRematch:
		return &RematchRequest{}
	case TypeRematchStatus:
		return &RematchStatus{}
	}
	return nil
}
