package httpapi

import (
	"net/http"
	"time"

	"github.com/hugodecasta/captain/internal/crew"
	"github.com/hugodecasta/captain/internal/duration"
)

func (s *Server) handleCrewList(w http.ResponseWriter, r *http.Request) {
	doc := s.state.Crew.Load()
	views := crew.Views(doc, time.Now(), s.state.Config.HeartbeatDeadline)
	writeJSON(w, http.StatusOK, views)
}

type preregRequest struct {
	Name     string   `json:"name"`
	IP       string   `json:"ip"`
	Port     int      `json:"port"`
	Services []string `json:"services"`
	MaxTime  string   `json:"max_time,omitempty"`
}

func (s *Server) handlePrereg(w http.ResponseWriter, r *http.Request) {
	var req preregRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Name == "" || req.IP == "" {
		writeError(w, http.StatusBadRequest, "name and ip are required")
		return
	}
	if req.MaxTime != "" {
		if _, _, err := duration.Parse(req.MaxTime); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	err := s.state.Crew.WithLock(func(doc *crew.Document) error {
		*doc = crew.Preregister(*doc, req.Name, req.IP, req.Port, req.Services, req.MaxTime)
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persistence failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
