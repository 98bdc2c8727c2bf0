package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"seomax/api/internal/identity"
)

func TestVerifySession(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/sync" || r.Method != http.MethodGet {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer server.Close()

	client := NewSyncClient(server.URL, func() string { return "tok-1" })
	ok, err := client.VerifySession(context.Background())
	if err != nil {
		t.Fatalf("VerifySession failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid session")
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("expected bearer token forwarded, got %q", gotAuth)
	}
}

func TestVerifySessionRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Not authenticated"})
	}))
	defer server.Close()

	ok, err := NewSyncClient(server.URL, nil).VerifySession(context.Background())
	if err != nil {
		t.Fatalf("VerifySession failed: %v", err)
	}
	if ok {
		t.Fatalf("expected invalid session")
	}
}

func TestSyncProjectSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["projectId"] != "p1" {
			t.Fatalf("expected projectId in body, got %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"project": map[string]any{"id": "p1", "name": "Untitled project"},
		})
	}))
	defer server.Close()

	ok, err := NewSyncClient(server.URL, nil).SyncProject(context.Background(), "p1")
	if err != nil {
		t.Fatalf("SyncProject failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected success")
	}
}

func TestSyncProjectNotAuthenticated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Not authenticated"})
	}))
	defer server.Close()

	_, err := NewSyncClient(server.URL, nil).SyncProject(context.Background(), "p1")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSyncProjectOtherError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Failed to verify project"})
	}))
	defer server.Close()

	_, err := NewSyncClient(server.URL, nil).SyncProject(context.Background(), "p1")
	if err == nil || errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected a distinct error, got %v", err)
	}
}

// End to end: a server that rejects the first project sync and accepts the
// second, with the reconciler refreshing in between.
func TestCheckProjectAccessAgainstServer(t *testing.T) {
	var posts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/sync" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
			return
		}
		if posts.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Not authenticated"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer server.Close()

	first := &fakeSource{rec: identity.Record{ID: "fp-1", Email: "a@other.com"}}
	client := NewSyncClient(server.URL, nil)
	r := New(first, nil, &fakeSnapshots{}, client, "seomax.com")

	if !r.CheckProjectAccess(context.Background(), "missing-project") {
		t.Fatalf("expected access after refresh and retry")
	}
	if got := posts.Load(); got != 2 {
		t.Fatalf("expected two project sync attempts, got %d", got)
	}
}
