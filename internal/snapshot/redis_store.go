// Package snapshot persists the reconciled session snapshot per dashboard session.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"seomax/api/internal/identity"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no snapshot exists for a session key.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is the data stored for each dashboard session
type Snapshot struct {
	User    identity.Record `json:"user"`
	IsAdmin bool            `json:"is_admin"`
	SavedAt time.Time       `json:"saved_at"`
}

// RedisStore implements snapshot storage using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed snapshot store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "snapshot:",
		ttl:    ttl,
	}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "snapshot:",
		ttl:    ttl,
	}
}

// key generates the Redis key for a session
func (s *RedisStore) key(sessionKey string) string {
	return s.prefix + sessionKey
}

// Save overwrites the snapshot for a session. Invalid records are the caller's
// problem; Save stores what it is given.
func (s *RedisStore) Save(ctx context.Context, sessionKey string, user identity.Record, isAdmin bool) error {
	data := Snapshot{
		User:    user,
		IsAdmin: isAdmin,
		SavedAt: time.Now(),
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	ttl := s.ttl
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour // Default 30 days
	}

	if err := s.client.Set(ctx, s.key(sessionKey), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return nil
}

// Load retrieves the last saved snapshot for a session
func (s *RedisStore) Load(ctx context.Context, sessionKey string) (Snapshot, error) {
	jsonData, err := s.client.Get(ctx, s.key(sessionKey)).Result()
	if err == redis.Nil {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	var data Snapshot
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	if data.User.Origin == "" {
		data.User.Origin = identity.OriginUnknown
	}

	return data, nil
}

// Clear deletes the snapshot for a session
func (s *RedisStore) Clear(ctx context.Context, sessionKey string) error {
	if err := s.client.Del(ctx, s.key(sessionKey)).Err(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Bound is a store fixed to one session key, matching the reconciler's view of
// "the storage adapter" for the session it serves.
type Bound struct {
	store      *RedisStore
	sessionKey string
}

// Bind returns a store scoped to a single session key.
func (s *RedisStore) Bind(sessionKey string) *Bound {
	return &Bound{store: s, sessionKey: sessionKey}
}

func (b *Bound) Save(ctx context.Context, user identity.Record, isAdmin bool) error {
	return b.store.Save(ctx, b.sessionKey, user, isAdmin)
}

func (b *Bound) Load(ctx context.Context) (Snapshot, error) {
	return b.store.Load(ctx, b.sessionKey)
}

func (b *Bound) Clear(ctx context.Context) error {
	return b.store.Clear(ctx, b.sessionKey)
}
