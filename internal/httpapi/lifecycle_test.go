package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hugodecasta/captain/internal/captain"
	"github.com/hugodecasta/captain/internal/chore"
	"github.com/hugodecasta/captain/internal/config"
	"github.com/hugodecasta/captain/internal/crew"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Addr:              ":0",
		DataDir:           t.TempDir(),
		TickInterval:      time.Second,
		HeartbeatDeadline: 60 * time.Second,
		SailorRPCTimeout:  time.Second,
	}
	state, err := captain.New(cfg)
	if err != nil {
		t.Fatalf("captain.New: %v", err)
	}
	return NewServer(state)
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	return rr
}

func TestChoreLifecycleHappyPath(t *testing.T) {
	s := newTestServer(t)

	if rr := postJSON(t, s, "/prereg", preregRequest{Name: "bob", IP: "10.0.0.1", Port: 9000, Services: []string{"GPU"}}); rr.Code != 200 {
		t.Fatalf("prereg: %d %s", rr.Code, rr.Body.String())
	}

	if rr := postJSON(t, s, "/heartbeat", heartbeatRequest{Name: "bob", CPUs: 8, GPUs: 2}); rr.Code != 200 {
		t.Fatalf("heartbeat: %d %s", rr.Code, rr.Body.String())
	}

	rr := postJSON(t, s, "/chore", choreSubmitRequest{
		Owner: "1000", Script: "/x.sh",
		Configuration: chore.Configuration{Service: "GPU", CPUs: 2, GPUs: 1},
	})
	if rr.Code != 200 {
		t.Fatalf("submit: %d %s", rr.Code, rr.Body.String())
	}
	var sub choreSubmitResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	if sub.ChoreID != 100000000 {
		t.Errorf("expected first chore_id 100000000, got %d", sub.ChoreID)
	}

	doc := s.state.Chores.Load()
	c := doc[sub.ChoreID]
	if c.Status != chore.StatusPending || c.Reason != chore.ReasonNoSailor {
		t.Errorf("expected fresh PENDING chore with no-sailor reason, got %+v", c)
	}

	// Simulate the sailor picking it up directly via a second heartbeat
	// reporting a pid for the now-ASSIGNED chore (assignment itself would
	// normally come from the control loop's match pass, not exercised
	// here).
	_ = s.state.Chores.WithLock(func(doc *chore.Document) error {
		c := (*doc)[sub.ChoreID]
		_ = chore.Transition(&c, chore.StatusAssigned)
		name := "bob"
		c.Sailor = &name
		(*doc)[sub.ChoreID] = c
		return nil
	})

	rr = postJSON(t, s, "/heartbeat", heartbeatRequest{
		Name: "bob", CPUs: 8, GPUs: 2, UsedCPUs: 2, UsedGPUs: 1,
		Running: []runningReport{{ChoreID: sub.ChoreID, PID: 4242, Status: "RUNNING"}},
	})
	if rr.Code != 200 {
		t.Fatalf("heartbeat pid report: %d %s", rr.Code, rr.Body.String())
	}
	doc = s.state.Chores.Load()
	c = doc[sub.ChoreID]
	if c.Status != chore.StatusRunning || c.PID == nil || *c.PID != 4242 {
		t.Errorf("expected RUNNING with pid 4242, got %+v", c)
	}

	exit := 0
	rr = postJSON(t, s, "/heartbeat", heartbeatRequest{
		Name: "bob", CPUs: 8, GPUs: 2,
		Running: []runningReport{{ChoreID: sub.ChoreID, PID: 4242, Exit: &exit}},
	})
	if rr.Code != 200 {
		t.Fatalf("heartbeat exit report: %d %s", rr.Code, rr.Body.String())
	}
	doc = s.state.Chores.Load()
	c = doc[sub.ChoreID]
	if c.Status != chore.StatusCompleted || c.EndTime == nil {
		t.Errorf("expected COMPLETED with end_time set, got %+v", c)
	}
}

func TestChoreSubmitQuotaRejection(t *testing.T) {
	s := newTestServer(t)
	limit := 1
	if rr := postJSON(t, s, "/user-set", userSetRequest{UID: "1000", ChoresLimit: &limit}); rr.Code != 200 {
		t.Fatalf("user-set: %d", rr.Code)
	}

	req := choreSubmitRequest{Owner: "1000", Script: "/x.sh", Configuration: chore.Configuration{CPUs: 1}}
	if rr := postJSON(t, s, "/chore", req); rr.Code != 200 {
		t.Fatalf("first submit: %d", rr.Code)
	}
	rr := postJSON(t, s, "/chore", req)
	if rr.Code != 403 {
		t.Errorf("expected 403 on quota-exceeding submit, got %d", rr.Code)
	}
}

func TestChoreSubmitQuotaHoldsUnderConcurrentSubmits(t *testing.T) {
	s := newTestServer(t)
	limit := 1
	if rr := postJSON(t, s, "/user-set", userSetRequest{UID: "1000", ChoresLimit: &limit}); rr.Code != 200 {
		t.Fatalf("user-set: %d", rr.Code)
	}

	req := choreSubmitRequest{Owner: "1000", Script: "/x.sh", Configuration: chore.Configuration{CPUs: 1}}

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = postJSON(t, s, "/chore", req).Code
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, c := range codes {
		if c == 200 {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("expected exactly 1 of 8 concurrent submits to be accepted under chores_limit=1, got %d", accepted)
	}

	doc := s.state.Chores.Load()
	active := 0
	for _, c := range doc {
		if c.Owner == "1000" && chore.IsActive(c.Status) {
			active++
		}
	}
	if active != 1 {
		t.Errorf("expected exactly 1 active chore on disk, got %d", active)
	}
}

func TestChoreCancelRejectsTerminalChore(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s, "/chore", choreSubmitRequest{Owner: "1000", Script: "/x.sh"})
	var sub choreSubmitResponse
	json.Unmarshal(rr.Body.Bytes(), &sub)

	if rr := postJSON(t, s, "/cancel", choreCancelRequest{ChoreID: sub.ChoreID}); rr.Code != 200 {
		t.Fatalf("first cancel: %d %s", rr.Code, rr.Body.String())
	}
	if rr := postJSON(t, s, "/cancel", choreCancelRequest{ChoreID: sub.ChoreID}); rr.Code != 409 {
		t.Errorf("expected 409 re-canceling a terminal chore, got %d", rr.Code)
	}
}

func TestHeartbeatUnknownSailorRejected(t *testing.T) {
	s := newTestServer(t)
	rr := postJSON(t, s, "/heartbeat", heartbeatRequest{Name: "ghost"})
	if rr.Code != 404 {
		t.Errorf("expected 404 for unregistered sailor heartbeat, got %d", rr.Code)
	}
}

func TestCrewListReportsDerivedStatus(t *testing.T) {
	s := newTestServer(t)
	postJSON(t, s, "/prereg", preregRequest{Name: "bob", IP: "10.0.0.1", Port: 9000})

	req := httptest.NewRequest("GET", "/crew", nil)
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("crew list: %d", rr.Code)
	}
	var views []crew.View
	if err := json.Unmarshal(rr.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 1 || views[0].DerivedStatus != crew.StatusDown {
		t.Errorf("expected one sailor DOWN (never heartbeated), got %+v", views)
	}
}
