// Package httpapi is the Captain's HTTP ingress: read endpoints for crew
// and chores, write endpoints for submission, cancellation, sailor
// preregistration, user administration, and sailor heartbeats.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hugodecasta/captain/internal/captain"
)

type Server struct {
	state *captain.State
}

func NewServer(state *captain.State) *Server {
	return &Server{state: state}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /crew", s.handleCrewList)
	mux.HandleFunc("GET /api/crew/", s.handleCrewList)

	mux.HandleFunc("GET /api/chores/", s.handleChoreList)
	mux.HandleFunc("GET /me/chores", s.handleMyChores)

	mux.HandleFunc("POST /chore", s.handleChoreSubmit)
	mux.HandleFunc("POST /cancel", s.handleChoreCancel)
	mux.HandleFunc("POST /prereg", s.handlePrereg)
	mux.HandleFunc("POST /heartbeat", s.handleHeartbeat)

	mux.HandleFunc("GET /users", s.handleUserList)
	mux.HandleFunc("POST /user-set", s.handleUserSet)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return withCORS(mux)
}

func withCORS(next http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	}))
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func now() int64 {
	return time.Now().Unix()
}
