package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/cors"

	"salvo/internal/metrics"
	"salvo/internal/protocol"
	"salvo/internal/registry"
	"salvo/internal/transport"
)

// Stats is the /stats response body.
type Stats struct {
	metrics.Snapshot
	Matches       []registry.Match `json:"matches"`
	RegistryError string           `json:"registry_error,omitempty"`
}

// Handler returns the HTTP surface: /ws, /health and /stats, behind
// CORS restricted to the configured origins.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	up := transport.NewUpgrader(s.cfg.AllowOrigins)
	mux.Handle("/ws", transport.WSHandler(up, s.cfg.MaxFrame, s.admit, s.logger))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		st := Stats{Snapshot: s.metrics.Snapshot(), Matches: []registry.Match{}}
		live, err := s.registry.Live(ctx)
		if err != nil {
			st.RegistryError = err.Error()
		} else if live != nil {
			st.Matches = live
		}
		writeJSON(w, st)
	})

	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(mux)
}

func (s *Server) admit(c protocol.Conn) {
	if err := s.lobby.Admit(c); err != nil {
		s.logger.Verbose("websocket %s: %v", c.RemoteAddr(), err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
