// Package backingstore is the client for the backing-store identity service
// (the /api/auth endpoints of this API).
package backingstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"seomax/api/internal/identity"
)

// ErrNoSession indicates the backing store has no active session.
var ErrNoSession = errors.New("no backing-store session")

// Client talks to the identity endpoints and holds the issued tokens.
type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// New creates a client for the given API base URL (no trailing slash).
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// AccessToken returns the current bearer token, empty when signed out.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// SetAccessToken installs a token obtained elsewhere (e.g. restored from the
// dashboard session).
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

type sessionEnvelope struct {
	Session *struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"user"`
	} `json:"session"`
}

// Session fetches the current session. Returns ErrNoSession when the store
// reports none.
func (c *Client) Session(ctx context.Context) (identity.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/session", nil)
	if err != nil {
		return identity.Record{}, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return identity.Record{}, fmt.Errorf("fetch session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return identity.Record{}, fmt.Errorf("fetch session: unexpected status %d", resp.StatusCode)
	}

	var envelope sessionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return identity.Record{}, fmt.Errorf("decode session: %w", err)
	}
	if envelope.Session == nil {
		return identity.Record{}, ErrNoSession
	}

	return identity.Record{
		ID:     envelope.Session.User.ID,
		Email:  envelope.Session.User.Email,
		Name:   envelope.Session.User.Name,
		Origin: identity.OriginBackingStore,
	}, nil
}

// SignInWithPassword authenticates against the identity service and stores the
// issued tokens on the client.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (identity.Record, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return identity.Record{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/signin", bytes.NewReader(body))
	if err != nil {
		return identity.Record{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return identity.Record{}, fmt.Errorf("sign in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return identity.Record{}, fmt.Errorf("sign in: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		UserID       string `json:"userId"`
		Email        string `json:"email"`
		UserName     string `json:"userName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return identity.Record{}, fmt.Errorf("decode sign-in response: %w", err)
	}

	c.mu.Lock()
	c.accessToken = payload.AccessToken
	c.refreshToken = payload.RefreshToken
	c.mu.Unlock()

	return identity.Record{
		ID:     payload.UserID,
		Email:  payload.Email,
		Name:   payload.UserName,
		Origin: identity.OriginBackingStore,
	}, nil
}

// SignOut revokes the session server-side and drops the local tokens. The
// local tokens are cleared even when the request fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()

	body, _ := json.Marshal(map[string]string{"refreshToken": refresh})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/signout", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)

	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sign out: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
