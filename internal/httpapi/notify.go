package httpapi

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/hugodecasta/captain/internal/sailorclient"
)

// notifySailorCancel fires after the cancel handler has already committed
// CANCELED locally; a failure here is only logged, since the sailor will
// also see the chore in its next heartbeat's cancel list.
func (s *Server) notifySailorCancel(ctx context.Context, sailorName string, choreID int64, reason string) {
	crewDoc := s.state.Crew.Load()
	sailor, ok := crewDoc[sailorName]
	if !ok {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, s.state.Config.SailorRPCTimeout)
	defer cancel()
	base := fmt.Sprintf("http://%s:%d", sailor.IP, sailor.Port)
	req := sailorclient.CancelRequest{ChoreID: choreID, Reason: reason, CorrelationID: uuid.NewString()}
	if err := s.state.Sailor.Cancel(rctx, base, req); err != nil {
		log.Printf("httpapi: notify cancel chore %d on %s: %v", choreID, sailorName, err)
	}
}
