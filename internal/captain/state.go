// Package captain wires together the persistent store, the three
// registries, and the outbound Sailor client into the shared dependency
// container that both the HTTP ingress and the control loop operate on.
package captain

import (
	"github.com/hugodecasta/captain/internal/chore"
	"github.com/hugodecasta/captain/internal/config"
	"github.com/hugodecasta/captain/internal/crew"
	"github.com/hugodecasta/captain/internal/sailorclient"
	"github.com/hugodecasta/captain/internal/store"
	"github.com/hugodecasta/captain/internal/users"
)

// State is the Captain's process-wide shared state: the three documents
// and the client used to reach sailors. Apart from the config loader and
// the discovery file, no other component touches the filesystem, and
// outbound Sailor RPCs all go through this client.
type State struct {
	Crew   *store.Document[crew.Document]
	Chores *store.Document[chore.Document]
	Users  *store.Document[users.Document]
	Sailor *sailorclient.Client
	Config *config.Config
}

// New opens the three documents under cfg.DataDir and seeds cfg.Users
// into the user document.
func New(cfg *config.Config) (*State, error) {
	s := &State{
		Crew:   store.NewDocument(cfg.DataDir, "crew.json", func() crew.Document { return crew.Document{} }),
		Chores: store.NewDocument(cfg.DataDir, "chores.json", func() chore.Document { return chore.Document{} }),
		Users:  store.NewDocument(cfg.DataDir, "users.json", func() users.Document { return users.Document{} }),
		Sailor: sailorclient.New(cfg.SailorRPCTimeout),
		Config: cfg,
	}

	if len(cfg.Users) > 0 {
		err := s.Users.WithLock(func(doc *users.Document) error {
			for _, u := range cfg.Users {
				name, limit, tl, notes := u.Name, u.ChoresLimit, u.TimeLimit, u.Notes
				if err := users.Set(*doc, u.UID, users.Fields{
					Name:        &name,
					ChoresLimit: &limit,
					TimeLimit:   &tl,
					Notes:       &notes,
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}
