// Package scheduler is the Captain's control loop: the periodic driver
// that probes sailor liveness, enforces time limits, matches pending
// chores to eligible sailors, and commits the result. One Loop runs a
// single worker. Cancel RPCs within a tick fan out concurrently; assign
// RPCs in the match pass are issued one at a time, in chore order, so a
// slow sailor delays the assignments that follow it in the same tick.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hugodecasta/captain/internal/captain"
	"github.com/hugodecasta/captain/internal/chore"
	"github.com/hugodecasta/captain/internal/crew"
	"github.com/hugodecasta/captain/internal/duration"
	"github.com/hugodecasta/captain/internal/metrics"
	"github.com/hugodecasta/captain/internal/sailorclient"
	"github.com/hugodecasta/captain/internal/users"
)

type Loop struct {
	state *captain.State
}

func New(state *captain.State) *Loop {
	return &Loop{state: state}
}

// Run ticks every interval until ctx is canceled.
func (l *Loop) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				log.Printf("scheduler: tick error: %v", err)
			}
		}
	}
}

// choreDecision is the outcome of one pass over the chore snapshot: the
// new status to commit, and the side effects to apply.
type choreDecision struct {
	id       int64
	to       chore.Status
	reason   string
	sailor   *string
	infos    string
	endNow   bool
	sendCancel bool
	cancelSailor string
}

// usageDelta is a bookkeeping adjustment to a sailor's used_cpus/used_gpus,
// applied optimistically; the next heartbeat is the authoritative source.
type usageDelta struct {
	sailor   string
	cpuDelta int
	gpuDelta int
}

// Tick runs one full pass: liveness sweep, sailor time-limit sweep, user
// time-limit sweep, match pass, commit.
func (l *Loop) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	cfg := l.state.Config
	now := time.Now()
	nowUnix := now.Unix()

	crewDoc := l.state.Crew.Load()
	choresDoc := l.state.Chores.Load()
	usersDoc := l.state.Users.Load()

	var decisions []choreDecision
	var deltas []usageDelta
	decided := map[int64]bool{}

	decide := func(d choreDecision) {
		if decided[d.id] {
			return
		}
		decided[d.id] = true
		decisions = append(decisions, d)
	}

	// 1. Liveness sweep.
	for name, s := range crewDoc {
		if crew.DeriveStatus(s, now, cfg.HeartbeatDeadline) != crew.StatusDown {
			continue
		}
		for id, c := range choresDoc {
			if !chore.IsActive(c.Status) || c.Sailor == nil || *c.Sailor != name {
				continue
			}
			decide(choreDecision{id: id, to: chore.StatusFailed, reason: chore.ReasonSailorLost, endNow: true})
		}
	}

	// 2. Sailor time-limit sweep.
	for id, c := range choresDoc {
		if !chore.IsActive(c.Status) || c.Sailor == nil {
			continue
		}
		s, ok := crewDoc[*c.Sailor]
		if !ok || s.MaxTime == "" {
			continue
		}
		limit, limited, err := duration.Parse(s.MaxTime)
		if err != nil || !limited {
			continue
		}
		ref := c.SubmitTime
		if c.StartTime != nil {
			ref = c.StartTime
		}
		if ref == nil || nowUnix-*ref <= limit {
			continue
		}
		decide(choreDecision{
			id: id, to: chore.StatusCanceled, reason: chore.ReasonExceededTimeLimit,
			endNow: true, sendCancel: true, cancelSailor: *c.Sailor,
		})
	}

	// 3. User time-limit sweep.
	var active []chore.Chore
	for _, c := range choresDoc {
		if chore.IsActive(c.Status) {
			active = append(active, c)
		}
	}
	for uid := range usersDoc {
		excess := users.ExcessByTime(usersDoc, uid, active, nowUnix)
		for _, c := range excess {
			if decided[c.ChoreID] {
				continue
			}
			d := choreDecision{id: c.ChoreID, to: chore.StatusCanceled, reason: chore.ReasonExceededUserTime, endNow: true}
			if c.Sailor != nil {
				d.sendCancel = true
				d.cancelSailor = *c.Sailor
			}
			decide(d)
		}
	}

	// Deduct usage for everything canceled/failed above, since those
	// sailors no longer hold the chore.
	for _, d := range decisions {
		c := choresDoc[d.id]
		if c.Sailor != nil {
			deltas = append(deltas, usageDelta{sailor: *c.Sailor, cpuDelta: -c.Configuration.CPUs, gpuDelta: -c.Configuration.GPUs})
		}
	}

	// Fire best-effort cancel RPCs concurrently; failures are logged only.
	l.fanOutCancels(ctx, decisions, crewDoc)

	// 4. Match pass: PENDING chores in ascending chore_id order, sailors
	// in ascending name order, first fit wins.
	var pending []chore.Chore
	for id, c := range choresDoc {
		if c.Status == chore.StatusPending && !decided[id] {
			pending = append(pending, c)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ChoreID < pending[j].ChoreID })

	names := make([]string, 0, len(crewDoc))
	for n := range crewDoc {
		names = append(names, n)
	}
	sort.Strings(names)

	usage := map[string][2]int{} // name -> [used_cpus, used_gpus], live working copy
	for _, n := range names {
		s := crewDoc[n]
		usage[n] = [2]int{s.UsedCPUs, s.UsedGPUs}
	}
	for _, d := range deltas {
		u := usage[d.sailor]
		u[0] += d.cpuDelta
		u[1] += d.gpuDelta
		usage[d.sailor] = u
	}

	assignments := l.matchPass(ctx, pending, names, crewDoc, usage)
	decisions = append(decisions, assignments.decisions...)
	deltas = append(deltas, assignments.deltas...)

	// 5. Commit.
	if err := l.commitChores(decisions); err != nil {
		return fmt.Errorf("scheduler: commit chores: %w", err)
	}
	if err := l.commitUsage(deltas); err != nil {
		return fmt.Errorf("scheduler: commit usage: %w", err)
	}

	l.observeMetrics(crewDoc, choresDoc, now, cfg.HeartbeatDeadline)
	return l.pruneTerminal(now)
}

func (l *Loop) fanOutCancels(ctx context.Context, decisions []choreDecision, crewDoc crew.Document) {
	var wg sync.WaitGroup
	for _, d := range decisions {
		if !d.sendCancel {
			continue
		}
		s, ok := crewDoc[d.cancelSailor]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(d choreDecision, s crew.Sailor) {
			defer wg.Done()
			rctx, cancel := context.WithTimeout(ctx, l.state.Config.SailorRPCTimeout)
			defer cancel()
			err := l.state.Sailor.Cancel(rctx, baseURL(s), sailorclient.CancelRequest{
				ChoreID: d.id, Reason: d.reason, CorrelationID: uuid.NewString(),
			})
			if err != nil {
				log.Printf("scheduler: cancel chore %d on %s: %v", d.id, s.Name, err)
			}
		}(d, s)
	}
	wg.Wait()
}

type matchResult struct {
	decisions []choreDecision
	deltas    []usageDelta
}

func (l *Loop) matchPass(ctx context.Context, pending []chore.Chore, names []string, crewDoc crew.Document, usage map[string][2]int) matchResult {
	var result matchResult
	now := time.Now()
	deadline := l.state.Config.HeartbeatDeadline

	for _, c := range pending {
		req := crew.Request{
			Service:    c.Configuration.Service,
			SailorName: c.Configuration.SailorName,
			CPUs:       c.Configuration.CPUs,
			GPUs:       c.Configuration.GPUs,
		}
		for _, name := range names {
			s := crewDoc[name]
			u := usage[name]
			s.UsedCPUs, s.UsedGPUs = u[0], u[1]
			if !crew.Fit(s, req, now, deadline) {
				continue
			}

			rctx, cancel := context.WithTimeout(ctx, l.state.Config.SailorRPCTimeout)
			res, err := l.state.Sailor.Assign(rctx, baseURL(s), sailorclient.AssignRequest{
				ChoreID: c.ChoreID, Script: c.Script,
				CPUs: c.Configuration.CPUs, GPUs: c.Configuration.GPUs,
				Out: c.Configuration.Out, WD: c.Configuration.WD,
				CorrelationID: uuid.NewString(),
			})
			cancel()
			if err != nil {
				metrics.AssignFailures.Inc()
				log.Printf("scheduler: assign chore %d to %s: %v", c.ChoreID, name, err)
				continue // leave PENDING, try next sailor or next tick
			}
			if !res.OK {
				metrics.AssignFailures.Inc()
				result.decisions = append(result.decisions, choreDecision{
					id: c.ChoreID, to: chore.StatusFailed, reason: res.Body, endNow: true,
				})
				break
			}

			sailorName := name
			result.decisions = append(result.decisions, choreDecision{
				id: c.ChoreID, to: chore.StatusAssigned, reason: "", sailor: &sailorName,
			})
			result.deltas = append(result.deltas, usageDelta{sailor: name, cpuDelta: c.Configuration.CPUs, gpuDelta: c.Configuration.GPUs})
			usage[name] = [2]int{u[0] + c.Configuration.CPUs, u[1] + c.Configuration.GPUs}
			break
		}
	}
	return result
}

// commitChores re-applies each decision to the live document under lock,
// never overwriting with a stale full snapshot.
func (l *Loop) commitChores(decisions []choreDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	return l.state.Chores.WithLock(func(doc *chore.Document) error {
		for _, d := range decisions {
			c, ok := (*doc)[d.id]
			if !ok {
				continue
			}
			if err := chore.Transition(&c, d.to); err != nil {
				log.Printf("scheduler: %v", err)
				continue
			}
			if d.reason != "" || d.to == chore.StatusAssigned {
				c.Reason = d.reason
			}
			if d.sailor != nil {
				c.Sailor = d.sailor
			}
			if d.endNow {
				now := time.Now().Unix()
				c.EndTime = &now
			}
			(*doc)[d.id] = c
		}
		return nil
	})
}

func (l *Loop) commitUsage(deltas []usageDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	agg := map[string][2]int{}
	for _, d := range deltas {
		u := agg[d.sailor]
		u[0] += d.cpuDelta
		u[1] += d.gpuDelta
		agg[d.sailor] = u
	}
	return l.state.Crew.WithLock(func(doc *crew.Document) error {
		for name, u := range agg {
			s, ok := (*doc)[name]
			if !ok {
				continue
			}
			s.UsedCPUs += u[0]
			s.UsedGPUs += u[1]
			if s.UsedCPUs < 0 {
				s.UsedCPUs = 0
			}
			if s.UsedGPUs < 0 {
				s.UsedGPUs = 0
			}
			(*doc)[name] = s
		}
		return nil
	})
}

// pruneTerminal removes terminal chores older than the configured
// retention window. A zero window disables pruning, keeping every
// terminal chore for historical listing indefinitely.
func (l *Loop) pruneTerminal(now time.Time) error {
	ttl := l.state.Config.RetentionTTL
	if ttl <= 0 {
		return nil
	}
	cutoff := now.Add(-ttl).Unix()
	return l.state.Chores.WithLock(func(doc *chore.Document) error {
		for id, c := range *doc {
			if c.EndTime != nil && *c.EndTime < cutoff {
				delete(*doc, id)
			}
		}
		return nil
	})
}

func (l *Loop) observeMetrics(crewDoc crew.Document, choresDoc chore.Document, now time.Time, deadline time.Duration) {
	counts := map[crew.Status]int{}
	for _, s := range crewDoc {
		counts[crew.DeriveStatus(s, now, deadline)]++
	}
	for _, st := range []crew.Status{crew.StatusReady, crew.StatusWorking, crew.StatusFull, crew.StatusDown} {
		metrics.CrewByStatus.WithLabelValues(string(st)).Set(float64(counts[st]))
	}

	choreCounts := map[chore.Status]int{}
	for _, c := range choresDoc {
		choreCounts[c.Status]++
	}
	for _, st := range []chore.Status{chore.StatusPending, chore.StatusAssigned, chore.StatusRunning, chore.StatusCompleted, chore.StatusFailed, chore.StatusCanceled} {
		metrics.ChoresByStatus.WithLabelValues(string(st)).Set(float64(choreCounts[st]))
	}
}

func baseURL(s crew.Sailor) string {
	return fmt.Sprintf("http://%s:%d", s.IP, s.Port)
}
