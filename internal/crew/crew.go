// Package crew owns the sailor table: static capacity, live usage, and
// the pure function that derives a sailor's current status from heartbeat
// age and usage.
package crew

import (
	"fmt"
	"sort"
	"time"
)

// Status is a sailor's derived, never-persisted state.
type Status string

const (
	StatusReady   Status = "READY"
	StatusWorking Status = "WORKING"
	StatusFull    Status = "FULL"
	StatusDown    Status = "DOWN"
)

// Sailor is the persisted record for one worker host.
type Sailor struct {
	Name     string   `json:"name"`
	IP       string   `json:"ip"`
	Port     int      `json:"port"`
	Services []string `json:"services"`
	CPUs     int      `json:"cpus"`
	GPUs     int      `json:"gpus"`
	UsedCPUs int      `json:"used_cpus"`
	UsedGPUs int      `json:"used_gpus"`
	RAM      int      `json:"ram"`
	LastSeen int64    `json:"last_seen"`
	MaxTime  string   `json:"max_time,omitempty"`
}

// View is a Sailor plus the derived status, shaped for HTTP responses.
type View struct {
	Sailor
	DerivedStatus Status `json:"derived_status"`
}

// Document is the on-disk shape of crew.json: sailors keyed by name.
type Document map[string]Sailor

// Request describes what a chore asks for when matching against sailors.
type Request struct {
	Service    string
	SailorName string
	CPUs       int
	GPUs       int
}

// DeriveStatus is the pure function that ranks DOWN above FULL above
// WORKING above READY.
func DeriveStatus(s Sailor, now time.Time, deadline time.Duration) Status {
	if now.Sub(time.Unix(s.LastSeen, 0)) > deadline {
		return StatusDown
	}
	if s.CPUs > 0 || s.GPUs > 0 {
		if s.UsedCPUs >= s.CPUs && s.UsedGPUs >= s.GPUs {
			return StatusFull
		}
	}
	if s.UsedCPUs > 0 || s.UsedGPUs > 0 {
		return StatusWorking
	}
	return StatusReady
}

// Fit reports whether s can currently accept req.
func Fit(s Sailor, req Request, now time.Time, deadline time.Duration) bool {
	if DeriveStatus(s, now, deadline) == StatusDown {
		return false
	}
	if req.SailorName != "" && req.SailorName != s.Name {
		return false
	}
	if req.Service != "" && !hasService(s.Services, req.Service) {
		return false
	}
	if s.CPUs-s.UsedCPUs < req.CPUs {
		return false
	}
	if s.GPUs-s.UsedGPUs < req.GPUs {
		return false
	}
	return true
}

func hasService(services []string, want string) bool {
	for _, s := range services {
		if s == want {
			return true
		}
	}
	return false
}

// Preregister creates or replaces a sailor's static fields. Capacity
// fields are left untouched if the sailor already exists (they come from
// heartbeats), and default to 0 for a brand-new sailor.
func Preregister(doc Document, name, ip string, port int, services []string, maxTime string) Document {
	existing, had := doc[name]
	s := Sailor{
		Name:     name,
		IP:       ip,
		Port:     port,
		Services: services,
		MaxTime:  maxTime,
	}
	if had {
		s.CPUs, s.GPUs = existing.CPUs, existing.GPUs
		s.UsedCPUs, s.UsedGPUs = existing.UsedCPUs, existing.UsedGPUs
		s.RAM = existing.RAM
		s.LastSeen = existing.LastSeen
	}
	doc[name] = s
	return doc
}

// Remove deletes a sailor by name. Removal is an admin action; it does
// not touch the chore table.
func Remove(doc Document, name string) {
	delete(doc, name)
}

// RunningChore is one entry in a heartbeat's running-chore list.
type RunningChore struct {
	ChoreID int64
	PID     int
	Status  string
	Infos   string
	Exit    *int
}

// HeartbeatReport is the capacity/usage snapshot a sailor reports on each
// inbound heartbeat.
type HeartbeatReport struct {
	Name     string
	CPUs     int
	GPUs     int
	RAM      int
	UsedCPUs int
	UsedGPUs int
	Running  []RunningChore
}

// Heartbeat applies a report to the document, returning an error if the
// sailor was never preregistered.
func Heartbeat(doc Document, now time.Time, r HeartbeatReport) error {
	s, ok := doc[r.Name]
	if !ok {
		return fmt.Errorf("crew: unknown sailor %q", r.Name)
	}
	s.CPUs = r.CPUs
	s.GPUs = r.GPUs
	s.RAM = r.RAM
	s.UsedCPUs = r.UsedCPUs
	s.UsedGPUs = r.UsedGPUs
	s.LastSeen = now.Unix()
	doc[r.Name] = s
	return nil
}

// Views returns all sailors with derived status, sorted by ascending name
// (the same order the control loop's match pass walks sailors in).
func Views(doc Document, now time.Time, deadline time.Duration) []View {
	names := make([]string, 0, len(doc))
	for n := range doc {
		names = append(names, n)
	}
	sort.Strings(names)

	views := make([]View, 0, len(names))
	for _, n := range names {
		s := doc[n]
		views = append(views, View{Sailor: s, DerivedStatus: DeriveStatus(s, now, deadline)})
	}
	return views
}
