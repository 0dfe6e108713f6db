package crew

import (
	"testing"
	"time"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	deadline := 60 * time.Second

	cases := []struct {
		name string
		s    Sailor
		want Status
	}{
		{"down", Sailor{LastSeen: now.Add(-2 * time.Minute).Unix(), CPUs: 4}, StatusDown},
		{"full", Sailor{LastSeen: now.Unix(), CPUs: 4, GPUs: 1, UsedCPUs: 4, UsedGPUs: 1}, StatusFull},
		{"working", Sailor{LastSeen: now.Unix(), CPUs: 4, UsedCPUs: 1}, StatusWorking},
		{"ready", Sailor{LastSeen: now.Unix(), CPUs: 4}, StatusReady},
	}
	for _, c := range cases {
		if got := DeriveStatus(c.s, now, deadline); got != c.want {
			t.Errorf("%s: DeriveStatus = %s, want %s", c.name, got, c.want)
		}
	}
}

func TestFit(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	deadline := 60 * time.Second
	s := Sailor{Name: "bob", Services: []string{"GPU"}, LastSeen: now.Unix(), CPUs: 8, GPUs: 2}

	if !Fit(s, Request{Service: "GPU", CPUs: 2, GPUs: 1}, now, deadline) {
		t.Error("expected fit")
	}
	if Fit(s, Request{Service: "TPU", CPUs: 1}, now, deadline) {
		t.Error("expected no fit: missing service")
	}
	if Fit(s, Request{SailorName: "alice"}, now, deadline) {
		t.Error("expected no fit: explicit sailor mismatch")
	}
	if Fit(s, Request{CPUs: 9}, now, deadline) {
		t.Error("expected no fit: insufficient cpus")
	}
	down := Sailor{Name: "bob", LastSeen: now.Add(-time.Hour).Unix(), CPUs: 8}
	if Fit(down, Request{}, now, deadline) {
		t.Error("expected no fit: down sailor")
	}
}

func TestPreregisterPreservesUsage(t *testing.T) {
	doc := Document{"bob": {Name: "bob", CPUs: 8, UsedCPUs: 2}}
	doc = Preregister(doc, "bob", "10.0.0.1", 9000, []string{"GPU"}, "")
	if doc["bob"].CPUs != 8 || doc["bob"].UsedCPUs != 2 {
		t.Errorf("expected capacity/usage preserved across reprereg, got %+v", doc["bob"])
	}
	if doc["bob"].IP != "10.0.0.1" {
		t.Errorf("expected ip updated, got %+v", doc["bob"])
	}
}

func TestHeartbeatUnknownSailor(t *testing.T) {
	doc := Document{}
	if err := Heartbeat(doc, time.Now(), HeartbeatReport{Name: "ghost"}); err == nil {
		t.Error("expected error for unregistered sailor")
	}
}
