package firstparty

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"seomax/api/internal/identity"
)

func TestDisabledClientReportsNoSession(t *testing.T) {
	client := New(context.Background(), Config{})
	if client.Enabled() {
		t.Fatalf("expected client without provider URL to be disabled")
	}

	_, err := client.Session(context.Background(), "some-token")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestSessionFromRequestWithoutCookie(t *testing.T) {
	client := New(context.Background(), Config{})
	req := httptest.NewRequest("GET", "/dashboard", nil)

	_, err := client.SessionFromRequest(req)
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestRecordFromClaims(t *testing.T) {
	rec := recordFromClaims("oidc-sub-1", "a@seomax.com", "Avery")
	if rec.ID != "oidc-sub-1" {
		t.Fatalf("expected subject as id, got %q", rec.ID)
	}
	if rec.Origin != identity.OriginFirstParty {
		t.Fatalf("expected first-party origin, got %q", rec.Origin)
	}
	if !rec.Valid() {
		t.Fatalf("expected valid record")
	}
}

func TestRecordFromClaimsEmptySubjectIsInvalid(t *testing.T) {
	rec := recordFromClaims("", "a@seomax.com", "Avery")
	if rec.Valid() {
		t.Fatalf("expected record without subject to be invalid")
	}
}
