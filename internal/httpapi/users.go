package httpapi

import (
	"net/http"
	"sort"

	"github.com/hugodecasta/captain/internal/users"
)

func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	doc := s.state.Users.Load()
	out := make([]users.User, 0, len(doc))
	for _, u := range doc {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	writeJSON(w, http.StatusOK, out)
}

type userSetRequest struct {
	UID         string  `json:"uid"`
	Name        *string `json:"name,omitempty"`
	ChoresLimit *int    `json:"chores_limit,omitempty"`
	TimeLimit   *string `json:"time_limit,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

func (s *Server) handleUserSet(w http.ResponseWriter, r *http.Request) {
	var req userSetRequest
	if err := decodeJSON(r, &req); err != nil || req.UID == "" {
		writeError(w, http.StatusBadRequest, "uid is required")
		return
	}

	var validationErr error
	err := s.state.Users.WithLock(func(doc *users.Document) error {
		if err := users.Set(*doc, req.UID, users.Fields{
			Name:        req.Name,
			ChoresLimit: req.ChoresLimit,
			TimeLimit:   req.TimeLimit,
			Notes:       req.Notes,
		}); err != nil {
			validationErr = err
			return err
		}
		return nil
	})
	if validationErr != nil {
		writeError(w, http.StatusBadRequest, validationErr.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persistence failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
