package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"salvo/config"
	apperr "salvo/internal/errors"
	"salvo/internal/protocol"
	"salvo/internal/transport"
	"salvo/util"
)

// ── harness ──────────────────────────────────────────────────────────

func testConfig(t *testing.T, withHTTP bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	if withHTTP {
		port, err := util.FindFreePort()
		if err != nil {
			t.Fatal(err)
		}
		cfg.HTTPPort = port
	}
	return cfg
}

type running struct {
	srv    *Server
	cancel context.CancelFunc
	errc   chan error
}

func start(t *testing.T, cfg *config.Config) *running {
	t.Helper()
	srv := New(cfg, util.NewLogger(0))
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{srv: srv, cancel: cancel, errc: make(chan error, 1)}
	go func() { r.errc <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-r.errc:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	select {
	case <-srv.Ready():
	case err := <-r.errc:
		t.Fatalf("Run() = %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}
	return r
}

func (r *running) dialTCP(t *testing.T) *transport.FramedConn {
	t.Helper()
	c, err := transport.DialFramed(context.Background(), &transport.TCPDialer{Timeout: time.Second}, r.srv.Addr().String(), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func (r *running) dialWS(t *testing.T) *transport.WSConn {
	t.Helper()
	c, err := transport.DialWS(context.Background(), fmt.Sprintf("ws://%s/ws", r.srv.HTTPAddr()), 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func (r *running) waitWaiting(t *testing.T, n int64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for r.srv.Metrics().Waiting() != n {
		if time.Now().After(deadline) {
			t.Fatalf("waiting = %d, want %d", r.srv.Metrics().Waiting(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (r *running) stats(t *testing.T) Stats {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://%s/stats", r.srv.HTTPAddr()))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	return st
}

// expectMatch reads Welcome and MatchFound and returns the seat.
func expectMatch(t *testing.T, c protocol.Conn) int {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck
	m, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.(protocol.Welcome); !ok {
		t.Fatalf("got %T, want Welcome", m)
	}
	m, err = c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	mf, ok := m.(protocol.MatchFound)
	if !ok {
		t.Fatalf("got %T, want MatchFound", m)
	}
	return mf.PlayerID
}

// ── tests ────────────────────────────────────────────────────────────

func TestServer_PairsTCPPlayers(t *testing.T) {
	r := start(t, testConfig(t, true))

	a := r.dialTCP(t)
	r.waitWaiting(t, 1)
	b := r.dialTCP(t)

	if seat := expectMatch(t, a); seat != 0 {
		t.Errorf("first player seat = %d", seat)
	}
	if seat := expectMatch(t, b); seat != 1 {
		t.Errorf("second player seat = %d", seat)
	}

	st := r.stats(t)
	if st.SessionsActive != 1 || st.ConnectionsActive != 2 || st.LobbyWaiting != 0 {
		t.Errorf("stats = %+v", st)
	}
	if st.Matches == nil || len(st.Matches) != 0 {
		t.Errorf("matches without a registry = %v, want []", st.Matches)
	}
}

func TestServer_PairsAcrossTransports(t *testing.T) {
	r := start(t, testConfig(t, true))

	ws := r.dialWS(t)
	r.waitWaiting(t, 1)
	tcp := r.dialTCP(t)

	if seat := expectMatch(t, ws); seat != 0 {
		t.Errorf("websocket player seat = %d", seat)
	}
	if seat := expectMatch(t, tcp); seat != 1 {
		t.Errorf("tcp player seat = %d", seat)
	}

	// Placement works the same over both transports.
	ship := protocol.PlaceShipRequest{PlayerID: 0}
	ship.Ship.End.Col = 4
	if err := ws.WriteMessage(ship); err != nil {
		t.Fatal(err)
	}
	m, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if res, ok := m.(protocol.PlaceShipResponse); !ok || !res.Success {
		t.Errorf("got %+v", m)
	}
}

func TestServer_RegistryListsLiveMatches(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, true)
	cfg.RedisURL = "redis://" + mr.Addr()
	r := start(t, cfg)

	a := r.dialTCP(t)
	r.waitWaiting(t, 1)
	b := r.dialTCP(t)
	expectMatch(t, a)
	expectMatch(t, b)

	st := r.stats(t)
	if st.RegistryError != "" {
		t.Fatalf("registry error: %s", st.RegistryError)
	}
	if len(st.Matches) != 1 {
		t.Fatalf("matches = %+v, want 1", st.Matches)
	}
	if st.Matches[0].Players[0] == "" {
		t.Errorf("match = %+v", st.Matches[0])
	}

	// A departure aborts the match and removes it.
	a.Close()
	deadline := time.Now().Add(3 * time.Second)
	for len(r.stats(t).Matches) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("match still listed after abort")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestServer_ShutdownClosesPlayers(t *testing.T) {
	r := start(t, testConfig(t, false))
	if r.srv.HTTPAddr() != nil {
		t.Errorf("HTTP should be disabled, bound %v", r.srv.HTTPAddr())
	}

	waiting := r.dialTCP(t)
	r.waitWaiting(t, 1)

	r.cancel()
	select {
	case err := <-r.errc:
		if err != nil {
			t.Errorf("Run() = %v, want nil on shutdown", err)
		}
		r.errc <- err // for the cleanup
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	waiting.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := waiting.ReadMessage(); !apperr.IsDisconnect(err) {
		t.Errorf("read = %v, want a closed connection", err)
	}
}

func TestServer_ListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	cfg := testConfig(t, false)
	cfg.Port = busy.Addr().(*net.TCPAddr).Port

	err = New(cfg, util.NewLogger(0)).Run(context.Background())
	var ne *apperr.NetworkError
	if !errors.As(err, &ne) || ne.Op != "listen" {
		t.Fatalf("Run() = %v, want a listen NetworkError", err)
	}
}

func TestHandler_HealthAndCORS(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.AllowOrigins = []string{"https://play.example"}
	ts := httptest.NewServer(New(cfg, util.NewLogger(0)).Handler())
	defer ts.Close()

	tests := []struct {
		origin string
		want   string
	}{
		{"https://play.example", "https://play.example"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
		req.Header.Set("Origin", tt.origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body) //nolint:errcheck
		resp.Body.Close()

		if body["status"] != "ok" {
			t.Errorf("health = %v", body)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: allow-origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := config.Default()
	cfg.StrictFleet = true
	cfg.TurnTimeout = time.Minute
	sc := New(cfg, util.NewLogger(0)).SessionConfig()

	if !sc.Rules.StrictFleet || sc.Rules.GridSize != 10 || len(sc.Rules.ShipSizes) != 5 {
		t.Errorf("rules = %+v", sc.Rules)
	}
	if sc.TurnTimeout != time.Minute || sc.PlacementTimeout != config.DefaultPlacementTimeout {
		t.Errorf("timeouts = %+v", sc)
	}
}
