package backingstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"seomax/api/internal/identity"
)

func TestSessionReturnsUser(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/session" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session": map[string]any{
				"user": map[string]any{"id": "user-1", "email": "a@seomax.com"},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL)
	client.SetAccessToken("tok-123")

	rec, err := client.Session(context.Background())
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if rec.ID != "user-1" || rec.Email != "a@seomax.com" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Origin != identity.OriginBackingStore {
		t.Fatalf("expected backing-store origin, got %q", rec.Origin)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("expected bearer token to be forwarded, got %q", gotAuth)
	}
}

func TestSessionNull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"session": nil})
	}))
	defer server.Close()

	_, err := New(server.URL).Session(context.Background())
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestSignInStoresTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/signin" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["email"] != "a@seomax.com" {
			t.Fatalf("expected email in body, got %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken":  "access-1",
			"refreshToken": "refresh-1",
			"userId":       "user-1",
			"email":        "a@seomax.com",
		})
	}))
	defer server.Close()

	client := New(server.URL)
	rec, err := client.SignInWithPassword(context.Background(), "a@seomax.com", "hunter22")
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if rec.ID != "user-1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if client.AccessToken() != "access-1" {
		t.Fatalf("expected access token to be stored, got %q", client.AccessToken())
	}
}

func TestSignInRejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := New(server.URL).SignInWithPassword(context.Background(), "a@seomax.com", "wrong")
	if err == nil {
		t.Fatalf("expected error for rejected credentials")
	}
}

func TestSignOutClearsTokensEvenOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL)
	client.SetAccessToken("tok-1")

	if err := client.SignOut(context.Background()); err == nil {
		t.Fatalf("expected error from failed sign-out")
	}
	if client.AccessToken() != "" {
		t.Fatalf("expected local token cleared after sign-out attempt")
	}
}
