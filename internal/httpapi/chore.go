package httpapi

import (
	"net/http"
	"sort"

	"github.com/hugodecasta/captain/internal/chore"
	"github.com/hugodecasta/captain/internal/users"
)

func (s *Server) handleChoreList(w http.ResponseWriter, r *http.Request) {
	doc := s.state.Chores.Load()
	writeJSON(w, http.StatusOK, sortedChores(doc))
}

func (s *Server) handleMyChores(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	doc := s.state.Chores.Load()
	all := sortedChores(doc)
	if owner == "" {
		writeJSON(w, http.StatusOK, all)
		return
	}
	var mine []chore.Chore
	for _, c := range all {
		if c.Owner == owner {
			mine = append(mine, c)
		}
	}
	writeJSON(w, http.StatusOK, mine)
}

func sortedChores(doc chore.Document) []chore.Chore {
	out := make([]chore.Chore, 0, len(doc))
	for _, c := range doc {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChoreID < out[j].ChoreID })
	return out
}

type choreSubmitRequest struct {
	Owner         string             `json:"owner"`
	Script        string             `json:"script"`
	Configuration chore.Configuration `json:"configuration"`
}

type choreSubmitResponse struct {
	ChoreID int64 `json:"chore_id"`
}

func (s *Server) handleChoreSubmit(w http.ResponseWriter, r *http.Request) {
	var req choreSubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Owner == "" || req.Script == "" {
		writeError(w, http.StatusBadRequest, "owner and script are required")
		return
	}
	if req.Configuration.CPUs < 0 || req.Configuration.GPUs < 0 {
		writeError(w, http.StatusBadRequest, "cpus and gpus must be >= 0")
		return
	}

	var choreID int64
	submitTime := now()
	quotaExceeded := false
	err := s.state.Chores.WithLock(func(doc *chore.Document) error {
		activeCount := 0
		for _, c := range *doc {
			if c.Owner == req.Owner && chore.IsActive(c.Status) {
				activeCount++
			}
		}
		usersDoc := s.state.Users.Load()
		if !users.CheckSubmit(usersDoc, req.Owner, activeCount) {
			quotaExceeded = true
			return nil
		}
		choreID = chore.NextID(*doc)
		(*doc)[choreID] = chore.Chore{
			ChoreID:       choreID,
			Owner:         req.Owner,
			Script:        req.Script,
			Configuration: req.Configuration,
			Status:        chore.StatusPending,
			Reason:        chore.ReasonNoSailor,
			SubmitTime:    &submitTime,
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persistence failure")
		return
	}
	if quotaExceeded {
		writeError(w, http.StatusForbidden, "chores_limit exceeded")
		return
	}
	writeJSON(w, http.StatusOK, choreSubmitResponse{ChoreID: choreID})
}

type choreCancelRequest struct {
	ChoreID int64  `json:"chore_id"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleChoreCancel(w http.ResponseWriter, r *http.Request) {
	var req choreCancelRequest
	if err := decodeJSON(r, &req); err != nil || req.ChoreID == 0 {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Reason == "" {
		req.Reason = chore.ReasonCanceledByUser
	}

	var sailorName string
	var hadSailor bool
	var status int

	err := s.state.Chores.WithLock(func(doc *chore.Document) error {
		c, ok := (*doc)[req.ChoreID]
		if !ok {
			status = http.StatusNotFound
			return nil
		}
		if !chore.IsActive(c.Status) {
			status = http.StatusConflict
			return nil
		}
		if c.Sailor != nil {
			sailorName, hadSailor = *c.Sailor, true
		}
		if err := chore.Transition(&c, chore.StatusCanceled); err != nil {
			status = http.StatusConflict
			return nil
		}
		c.Reason = req.Reason
		end := now()
		c.EndTime = &end
		(*doc)[req.ChoreID] = c
		status = http.StatusOK
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persistence failure")
		return
	}
	if status != http.StatusOK {
		msg := "unknown chore"
		if status == http.StatusConflict {
			msg = "chore already terminal"
		}
		writeError(w, status, msg)
		return
	}

	if hadSailor {
		s.notifySailorCancel(r.Context(), sailorName, req.ChoreID, req.Reason)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
