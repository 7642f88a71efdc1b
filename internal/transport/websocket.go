package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperr "salvo/internal/errors"
	"salvo/internal/protocol"
	"salvo/util"
)

// WSConn carries one JSON envelope per WebSocket text message.
type WSConn struct {
	ws     *websocket.Conn
	id     string
	remote string

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWSConn wraps an established WebSocket.  Messages larger than
// maxFrame are rejected by the read side.
func NewWSConn(ws *websocket.Conn, maxFrame int) *WSConn {
	maxFrame = frameLimit(maxFrame)
	ws.SetReadLimit(int64(maxFrame))
	return &WSConn{
		ws:     ws,
		id:     uuid.NewString(),
		remote: ws.RemoteAddr().String(),
	}
}

// ReadMessage reads the next data message and decodes it.
func (w *WSConn) ReadMessage() (protocol.Message, error) {
	_, data, err := w.ws.ReadMessage()
	if err != nil {
		if errors.Is(err, websocket.ErrReadLimit) {
			return nil, fmt.Errorf("%w: %w", apperr.ErrMalformed, apperr.ErrFrameTooLarge)
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, apperr.Wrap("read", w.remote, fmt.Errorf("%w: %v", apperr.ErrSessionClosed, err))
		}
		return nil, apperr.Wrap("read", w.remote, err)
	}
	return protocol.Decode(data)
}

// WriteMessage sends m as a text message.
func (w *WSConn) WriteMessage(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err := w.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return apperr.Wrap("write", w.remote, err)
	}
	return nil
}

func (w *WSConn) SetReadDeadline(t time.Time) error  { return w.ws.SetReadDeadline(t) }
func (w *WSConn) SetWriteDeadline(t time.Time) error { return w.ws.SetWriteDeadline(t) }

// Close sends a best-effort close frame and closes the socket.
func (w *WSConn) Close() error {
	w.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		w.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) //nolint:errcheck
		w.closeErr = w.ws.Close()
	})
	return w.closeErr
}

func (w *WSConn) RemoteAddr() string { return w.remote }
func (w *WSConn) ID() string         { return w.id }

// ── Server side ──────────────────────────────────────────────────────

// NewUpgrader returns an upgrader that accepts browser origins in
// allowed.  An empty list accepts every origin.  Requests without an
// Origin header (non-browser clients) are always accepted.
func NewUpgrader(allowed []string) *websocket.Upgrader {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(set) == 0 {
				return true
			}
			return set[origin] || set["*"]
		},
	}
}

// WSHandler upgrades each request and hands the connection to admit.
func WSHandler(up *websocket.Upgrader, maxFrame int, admit func(protocol.Conn), logger *util.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written an HTTP error.
			logger.Verbose("websocket upgrade from %s: %v", r.RemoteAddr, err)
			return
		}
		c := NewWSConn(ws, maxFrame)
		logger.Verbose("websocket connection from %s (%s)", c.RemoteAddr(), c.ID())
		admit(c)
	})
}

// ── Client side ──────────────────────────────────────────────────────

// DialWS connects to a match server's WebSocket endpoint.
func DialWS(ctx context.Context, url string, maxFrame int) (*WSConn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, apperr.Wrap("dial", url, err)
	}
	return NewWSConn(ws, maxFrame), nil
}
