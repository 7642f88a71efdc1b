package protocol

import (
	"encoding/json"
	"fmt"

	apperr "salvo/internal/errors"
)

// Envelope is the wire shape of every message.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps m in an envelope and marshals it.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Type(), err)
	}
	return json.Marshal(Envelope{Type: m.Type(), Payload: payload})
}

// Decode parses an envelope and returns its payload as a value type
// (Welcome, FireRequest, ...), never a pointer.
//
// Errors wrap ErrMalformed for bad JSON and ErrUnknownMessage for a tag
// outside the vocabulary.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", apperr.ErrMalformed)
	}
	ptr := newPayload(env.Type)
	if ptr == nil {
		return nil, fmt.Errorf("%w: %q", apperr.ErrUnknownMessage, env.Type)
	}
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, ptr); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", apperr.ErrMalformed, env.Type, err)
		}
	}
	return deref(ptr), nil
}

func deref(m Message) Message {
	switch p := m.(type) {
	case *Welcome:
		return *p
	case *MatchFound:
		return *p
	case *PlaceShipRequest:
		return *p
	case *PlaceShipResponse:
		return *p
	case *ReadyRequest:
		return *p
	case *FireRequest:
		return *p
	case *FireResponse:
		return *p
	case *TurnMessage:
		return *p
	case *GameOverMessage:
		return *p
	case *RematchRequest:
		return *p
	case *RematchStatus:
		return *p
	}
	return m
}
