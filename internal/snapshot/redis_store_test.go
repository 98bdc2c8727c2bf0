package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"seomax/api/internal/identity"
	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), time.Hour)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	user := identity.Record{ID: "user-123", Email: "a@seomax.com", Origin: identity.OriginFirstParty}

	if err := store.Save(ctx, "sess-1", user, true); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snap, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if snap.User.ID != "user-123" {
		t.Errorf("expected user ID user-123, got %s", snap.User.ID)
	}
	if !snap.IsAdmin {
		t.Errorf("expected admin flag to survive the round trip")
	}
	if snap.SavedAt.IsZero() {
		t.Errorf("expected SavedAt to be set")
	}
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "sess-1", identity.Record{ID: "first"}, false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, "sess-1", identity.Record{ID: "second"}, false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snap, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.User.ID != "second" {
		t.Errorf("expected latest write to win, got %s", snap.User.ID)
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	_, err := store.Load(context.Background(), "no-such-session")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClearSnapshot(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "sess-1", identity.Record{ID: "user-1"}, false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Clear(ctx, "sess-1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := store.Load(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestSnapshotExpires(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://"+s.Addr(), time.Second)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "sess-1", identity.Record{ID: "user-1"}, false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(2 * time.Second)

	if _, err := store.Load(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired snapshot to be gone, got %v", err)
	}
}

func TestBoundStore(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	bound := store.Bind("sess-9")

	if err := bound.Save(ctx, identity.Record{ID: "user-9"}, false); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	snap, err := bound.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.User.ID != "user-9" {
		t.Errorf("expected user-9, got %s", snap.User.ID)
	}
	if err := bound.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := bound.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}
