// Package users owns per-user quota records and the pure functions that
// check submission eligibility and select excess-duration chores for
// cancellation. It has no notion of a chore beyond what callers pass in:
// the chore and crew registries remain the source of truth for chore
// state.
package users

import (
	"fmt"
	"sort"

	"github.com/hugodecasta/captain/internal/chore"
	"github.com/hugodecasta/captain/internal/duration"
)

// User is the persisted quota record for one owner UID. Absence of a
// record implies unlimited defaults.
type User struct {
	UID         string `json:"uid"`
	Name        string `json:"name,omitempty"`
	ChoresLimit int    `json:"chores_limit"`
	TimeLimit   string `json:"time_limit,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Document is the on-disk shape of users.json: users keyed by UID.
type Document map[string]User

// Fields is the subset of User settable via upsert.
type Fields struct {
	Name        *string
	ChoresLimit *int
	TimeLimit   *string
	Notes       *string
}

// Set upserts a user record, validating any supplied time_limit string and
// requiring chores_limit >= 0.
func Set(doc Document, uid string, f Fields) error {
	if f.ChoresLimit != nil && *f.ChoresLimit < 0 {
		return fmt.Errorf("users: chores_limit must be >= 0")
	}
	if f.TimeLimit != nil && *f.TimeLimit != "" {
		if _, _, err := duration.Parse(*f.TimeLimit); err != nil {
			return fmt.Errorf("users: %w", err)
		}
	}
	u := doc[uid]
	u.UID = uid
	if f.Name != nil {
		u.Name = *f.Name
	}
	if f.ChoresLimit != nil {
		u.ChoresLimit = *f.ChoresLimit
	}
	if f.TimeLimit != nil {
		u.TimeLimit = *f.TimeLimit
	}
	if f.Notes != nil {
		u.Notes = *f.Notes
	}
	doc[uid] = u
	return nil
}

// CheckSubmit reports whether uid may submit one more chore, given the
// count of its currently active chores. Absence of a user record means
// unlimited.
func CheckSubmit(doc Document, uid string, activeCount int) bool {
	u, ok := doc[uid]
	if !ok || u.ChoresLimit == 0 {
		return true
	}
	return activeCount < u.ChoresLimit
}

// ExcessByTime accumulates active chores oldest-submitted first, and
// once the running total exceeds the user's time_limit, every chore from
// that point on (the newest-submitted ones) is a cancellation candidate.
func ExcessByTime(doc Document, uid string, active []chore.Chore, now int64) []chore.Chore {
	u, ok := doc[uid]
	if !ok || u.TimeLimit == "" {
		return nil
	}
	limit, limited, err := duration.Parse(u.TimeLimit)
	if err != nil || !limited {
		return nil
	}

	own := make([]chore.Chore, 0, len(active))
	for _, c := range active {
		if c.Owner == uid {
			own = append(own, c)
		}
	}
	sort.Slice(own, func(i, j int) bool {
		return own[i].ChoreID < own[j].ChoreID
	})

	var total int64
	for _, c := range own {
		ref := c.SubmitTime
		if c.StartTime != nil {
			ref = c.StartTime
		}
		if ref != nil {
			total += now - *ref
		}
	}

	if total <= limit {
		return nil
	}

	var excess []chore.Chore
	for i := len(own) - 1; i >= 0 && total > limit; i-- {
		c := own[i]
		ref := c.SubmitTime
		if c.StartTime != nil {
			ref = c.StartTime
		}
		var d int64
		if ref != nil {
			d = now - *ref
		}
		excess = append(excess, c)
		total -= d
	}
	return excess
}
