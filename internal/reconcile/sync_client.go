package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotAuthenticated is the server's explicit "Not authenticated" answer on
// the sync endpoints, as opposed to a transport failure.
var ErrNotAuthenticated = errors.New("not authenticated")

// notAuthenticatedMessage is the error string the sync endpoints use.
const notAuthenticatedMessage = "Not authenticated"

// SyncClient talks to the verification endpoints (GET/POST /api/auth/sync).
type SyncClient struct {
	baseURL string
	http    *http.Client
	token   func() string
}

// NewSyncClient creates a client for the given API base URL. token supplies
// the current bearer token and may be nil.
func NewSyncClient(baseURL string, token func() string) *SyncClient {
	return &SyncClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		token:   token,
	}
}

type syncResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Project json.RawMessage `json:"project,omitempty"`
}

// VerifySession asks the server whether the current session is valid. A
// "Not authenticated" answer is a successful check with a false result.
func (c *SyncClient) VerifySession(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/sync", nil)
	if err != nil {
		return false, err
	}
	c.authorize(req)

	payload, err := c.do(req)
	if err != nil {
		return false, err
	}
	return payload.Success, nil
}

// SyncProject asks the server to guarantee a project record for the current
// user. The explicit "Not authenticated" answer maps to ErrNotAuthenticated so
// callers can refresh and retry.
func (c *SyncClient) SyncProject(ctx context.Context, projectID string) (bool, error) {
	body, err := json.Marshal(map[string]string{"projectId": projectID})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/sync", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	payload, err := c.do(req)
	if err != nil {
		return false, err
	}
	if payload.Success {
		return true, nil
	}
	if payload.Error == notAuthenticatedMessage {
		return false, ErrNotAuthenticated
	}
	return false, fmt.Errorf("sync project: %s", payload.Error)
}

func (c *SyncClient) do(req *http.Request) (syncResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return syncResponse{}, fmt.Errorf("sync request: %w", err)
	}
	defer resp.Body.Close()

	var payload syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return syncResponse{}, fmt.Errorf("decode sync response: %w", err)
	}
	return payload, nil
}

func (c *SyncClient) authorize(req *http.Request) {
	if c.token == nil {
		return
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
