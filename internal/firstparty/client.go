// Package firstparty resolves the dashboard's cookie-based session through the
// configured OIDC provider.
package firstparty

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"seomax/api/internal/identity"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// SessionCookie is the cookie the dashboard stores the raw ID token in.
const SessionCookie = "seomax_session"

// ErrNoSession indicates no first-party session is present.
var ErrNoSession = errors.New("no first-party session")

// Config holds OIDC provider settings.
type Config struct {
	ProviderURL  string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Client verifies first-party session tokens. When no provider is configured
// the client is disabled and reports no session.
type Client struct {
	provider *oidc.Provider
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
	enabled  bool
}

// New initializes the OIDC provider. A missing provider URL or an unreachable
// provider disables first-party sessions instead of failing startup.
func New(ctx context.Context, cfg Config) *Client {
	if cfg.ProviderURL == "" {
		log.Println("OIDC provider not set, first-party sessions disabled")
		return &Client{}
	}

	provider, err := oidc.NewProvider(ctx, cfg.ProviderURL)
	if err != nil {
		log.Printf("failed to init OIDC provider: %v", err)
		return &Client{}
	}

	conf := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	return &Client{
		provider: provider,
		oauth:    conf,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		enabled:  true,
	}
}

// Enabled reports whether a provider is configured.
func (c *Client) Enabled() bool {
	return c.enabled
}

// AuthCodeURL returns the provider login URL for the given CSRF state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token and returns the raw ID
// token to be stored in the session cookie.
func (c *Client) Exchange(ctx context.Context, code string) (string, error) {
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", errors.New("no id_token in token response")
	}
	return rawIDToken, nil
}

// Session verifies a raw ID token and maps its claims to a user record.
func (c *Client) Session(ctx context.Context, rawIDToken string) (identity.Record, error) {
	if !c.enabled {
		return identity.Record{}, ErrNoSession
	}
	if rawIDToken == "" {
		return identity.Record{}, ErrNoSession
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return identity.Record{}, fmt.Errorf("verify id token: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return identity.Record{}, fmt.Errorf("decode claims: %w", err)
	}

	return recordFromClaims(idToken.Subject, claims.Email, claims.Name), nil
}

// SessionFromRequest pulls the session cookie off a request and verifies it.
func (c *Client) SessionFromRequest(r *http.Request) (identity.Record, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return identity.Record{}, ErrNoSession
	}
	return c.Session(r.Context(), cookie.Value)
}

func recordFromClaims(subject, email, name string) identity.Record {
	return identity.Record{
		ID:     subject,
		Email:  email,
		Name:   name,
		Origin: identity.OriginFirstParty,
	}
}
