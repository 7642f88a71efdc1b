package protocol

import (
	"encoding/json"
	"testing"

	apperr "salvo/internal/errors"
	"salvo/internal/game"
)

func TestEncode_Envelope(t *testing.T) {
	data, err := Encode(FireResponse{Position: game.Position{Row: 3, Col: 4}, Result: game.Hit})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"fire_result","payload":{"position":{"row":3,"col":4},"result":"HIT"}}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}
}

// TestDecode_ClientMessages feeds hand-written client frames through
// Decode, the way a non-Go client would produce them.
func TestDecode_ClientMessages(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Message
	}{
		{
			name: "place ship",
			in:   `{"type":"place_ship","payload":{"playerId":1,"ship":{"start":{"row":0,"col":0},"end":{"row":0,"col":4}}}}`,
			want: PlaceShipRequest{PlayerID: 1, Ship: game.Ship{Start: game.Position{}, End: game.Position{Row: 0, Col: 4}}},
		},
		{
			name: "ready",
			in:   `{"type":"ready","payload":{"playerId":0}}`,
			want: ReadyRequest{PlayerID: 0},
		},
		{
			name: "fire",
			in:   `{"type":"fire","payload":{"position":{"row":9,"col":2}}}`,
			want: FireRequest{Position: game.Position{Row: 9, Col: 2}},
		},
		{
			name: "rematch",
			in:   `{"type":"rematch","payload":{"playerId":1}}`,
			want: RematchRequest{PlayerID: 1},
		},
		{
			name: "missing payload",
			in:   `{"type":"ready"}`,
			want: ReadyRequest{},
		},
		{
			name: "unknown fields ignored",
			in:   `{"type":"turn","payload":{"yourTurn":true,"extra":1},"seq":7}`,
			want: TurnMessage{YourTurn: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecode_ReturnsValues(t *testing.T) {
	data, err := Encode(GameOverMessage{Winner: 1})
	if err != nil {
		t.Fatal(err)
	}
	m, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	switch v := m.(type) {
	case GameOverMessage:
		if v.Winner != 1 {
			t.Errorf("winner = %d", v.Winner)
		}
	default:
		t.Errorf("got %T, want GameOverMessage", m)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"not json", `hello`, apperr.ErrMalformed},
		{"truncated", `{"type":"fire","payload":{`, apperr.ErrMalformed},
		{"no type", `{"payload":{}}`, apperr.ErrMalformed},
		{"bad payload", `{"type":"fire","payload":{"position":"A5"}}`, apperr.ErrMalformed},
		{"bad cell", `{"type":"fire_result","payload":{"result":"SUNK"}}`, apperr.ErrMalformed},
		{"unknown tag", `{"type":"chat","payload":{"text":"hi"}}`, apperr.ErrUnknownMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			if !apperr.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEveryTypeHasPayload(t *testing.T) {
	types := []Type{
		TypeWelcome, TypeMatchFound, TypePlaceShip, TypePlaceShipResult,
		TypeReady, TypeFire, TypeFireResult, TypeTurn, TypeGameOver,
		TypeRematch, TypeRematchStatus,
	}
	for _, typ := range types {
		p := newPayload(typ)
		if p == nil {
			t.Errorf("%s: no payload", typ)
			continue
		}
		if p.Type() != typ {
			t.Errorf("%s: payload reports %s", typ, p.Type())
		}
		raw, _ := json.Marshal(Envelope{Type: typ, Payload: json.RawMessage(`{}`)})
		if _, err := Decode(raw); err != nil {
			t.Errorf("%s: %v", typ, err)
		}
	}
}
