// Package sailorclient is the outbound half of the Sailor contract: short
// per-call-timeout POSTs to a sailor's /chore and /cancel endpoints. The
// inbound half (heartbeat) lives in the HTTP ingress and the crew registry; this
// package only ever speaks outward, and every call is best-effort — a
// network failure here just means the next control-loop tick retries.
package sailorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	httpClient *http.Client
}

func New(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// AssignRequest is the body posted to a sailor's /chore endpoint.
type AssignRequest struct {
	ChoreID    int64  `json:"chore_id"`
	Script     string `json:"script"`
	CPUs       int    `json:"cpus"`
	GPUs       int    `json:"gpus"`
	Out        string `json:"out,omitempty"`
	WD         string `json:"wd,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

// AssignResult is what a sailor's /chore endpoint answered.
type AssignResult struct {
	OK   bool
	Body string // present on a non-2xx response; becomes the chore's reason
}

// Assign posts a chore to a sailor. A transport-level error (network,
// timeout) is returned as err so the caller leaves the chore PENDING for
// retry; a non-2xx HTTP response is reported via AssignResult.Body instead
// of err, since the sailor was reachable and gave a definitive answer.
func (c *Client) Assign(ctx context.Context, baseURL string, req AssignRequest) (AssignResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return AssignResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chore", bytes.NewReader(body))
	if err != nil {
		return AssignResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return AssignResult{}, fmt.Errorf("sailorclient: assign chore %d: %w", req.ChoreID, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AssignResult{OK: false, Body: string(respBody)}, nil
	}
	return AssignResult{OK: true}, nil
}

// CancelRequest is the body posted to a sailor's /cancel endpoint.
type CancelRequest struct {
	ChoreID       int64  `json:"chore_id"`
	Reason        string `json:"reason"`
	CorrelationID string `json:"correlation_id"`
}

// Cancel asks a sailor to terminate a chore. Idempotent and safe to
// re-send; failures are left for the caller to log, never propagated as a
// reason to change chore state.
func (c *Client) Cancel(ctx context.Context, baseURL string, req CancelRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/cancel", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sailorclient: cancel chore %d: %w", req.ChoreID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
