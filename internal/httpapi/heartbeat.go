package httpapi

import (
	"net/http"
	"time"

	"github.com/hugodecasta/captain/internal/chore"
	"github.com/hugodecasta/captain/internal/crew"
)

type runningReport struct {
	ChoreID int64  `json:"chore_id"`
	PID     int    `json:"pid"`
	Status  string `json:"status"`
	Infos   string `json:"infos,omitempty"`
	Exit    *int   `json:"exit,omitempty"`
}

type heartbeatRequest struct {
	Name     string          `json:"name"`
	CPUs     int             `json:"cpus"`
	GPUs     int             `json:"gpus"`
	RAM      int             `json:"ram"`
	UsedCPUs int             `json:"used_cpus"`
	UsedGPUs int             `json:"used_gpus"`
	Running  []runningReport `json:"running"`
}

type choreOut = chore.Chore

type heartbeatResponse struct {
	Assign []choreOut `json:"assign"`
	Cancel []int64    `json:"cancel"`
}

// handleHeartbeat is the Sailor's inbound liveness and state report. The
// reply lists every chore currently ASSIGNED to the sailor and every
// CANCELED chore attributed to it. A chore only becomes ASSIGNED after the
// control loop's direct assign RPC to the sailor succeeded, so the reply
// repeats dispatches rather than replacing that RPC; cancel instructions
// reach the sailor through the reply even when a direct cancel RPC failed.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "malformed heartbeat body")
		return
	}

	t := time.Now()

	err := s.state.Crew.WithLock(func(doc *crew.Document) error {
		return crew.Heartbeat(*doc, t, crew.HeartbeatReport{
			Name: req.Name, CPUs: req.CPUs, GPUs: req.GPUs, RAM: req.RAM,
			UsedCPUs: req.UsedCPUs, UsedGPUs: req.UsedGPUs,
		})
	})
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown sailor")
		return
	}

	var assign []chore.Chore
	var cancelIDs []int64

	err = s.state.Chores.WithLock(func(doc *chore.Document) error {
		for _, rep := range req.Running {
			c, ok := (*doc)[rep.ChoreID]
			if !ok || c.Sailor == nil || *c.Sailor != req.Name {
				continue
			}
			applyRunningReport(&c, rep, t.Unix())
			(*doc)[rep.ChoreID] = c
		}

		for id, c := range *doc {
			if c.Sailor == nil || *c.Sailor != req.Name {
				continue
			}
			switch c.Status {
			case chore.StatusAssigned:
				assign = append(assign, c)
			case chore.StatusCanceled:
				cancelIDs = append(cancelIDs, id)
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "persistence failure")
		return
	}

	writeJSON(w, http.StatusOK, heartbeatResponse{Assign: assign, Cancel: cancelIDs})
}

// applyRunningReport mutates c in place according to the transition
// table, driven by what the sailor reported for one running chore.
// Usage bookkeeping is left to the report's used_cpus/used_gpus fields,
// already applied as the sailor's authoritative values by crew.Heartbeat
// above; a terminal chore here releases its capacity on the sailor's next
// report, not by a separate deduction here.
func applyRunningReport(c *chore.Chore, rep runningReport, nowUnix int64) {
	if c.Status == chore.StatusAssigned && rep.PID != 0 {
		pid := rep.PID
		c.PID = &pid
		c.StartTime = &nowUnix
		_ = chore.Transition(c, chore.StatusRunning)
	}
	if rep.Infos != "" {
		c.Infos = rep.Infos
	}
	if rep.Exit == nil {
		return
	}
	if chore.IsActive(c.Status) {
		to := chore.StatusCompleted
		if *rep.Exit != 0 {
			to = chore.StatusFailed
			if rep.Infos != "" {
				c.Reason = rep.Infos
			}
		}
		if err := chore.Transition(c, to); err == nil {
			c.EndTime = &nowUnix
		}
	}
}
