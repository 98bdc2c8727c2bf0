// Package project guarantees that a project record exists for an
// authenticated user, surviving concurrent creation races on the same id.
package project

import (
	"context"
	"errors"
	"fmt"
	"log"

	"seomax/api/internal/store"
)

// DefaultName is used when a project is created on first access.
const DefaultName = "Untitled project"

// Store is the subset of the persistence layer the ensure flow needs. The
// owner-scoped read is the fast path; the unscoped read and the owner update
// only run during conflict recovery.
type Store interface {
	GetProjectForOwner(ctx context.Context, projectID, ownerUserID string) (store.Project, error)
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	InsertProject(ctx context.Context, item store.Project) error
	UpdateProjectOwner(ctx context.Context, projectID, ownerUserID string) error
}

type Service struct {
	store Store
}

func NewService(s Store) *Service {
	return &Service{store: s}
}

// Ensure returns the project with the given id owned by the user, creating it
// when absent. When the insert loses a duplicate-key race the record is
// re-fetched without the owner scope and, if another user won the race,
// ownership is reassigned to the caller (last writer wins).
func (s *Service) Ensure(ctx context.Context, projectID, userID, name string) (store.Project, error) {
	if projectID == "" || userID == "" {
		return store.Project{}, errors.New("project: id and user id are required")
	}
	if name == "" {
		name = DefaultName
	}

	existing, err := s.store.GetProjectForOwner(ctx, projectID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Project{}, fmt.Errorf("project: fetch %s: %w", projectID, err)
	}

	item := store.Project{ID: projectID, OwnerUserID: userID, Name: name}
	err = s.store.InsertProject(ctx, item)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return store.Project{}, fmt.Errorf("project: create %s: %w", projectID, err)
	}

	return s.recover(ctx, projectID, userID)
}

// recover resolves a lost insert race. The winner's record is fetched without
// the owner filter; a re-fetch failure here is propagated because the record
// must exist for the conflict to have fired.
func (s *Service) recover(ctx context.Context, projectID, userID string) (store.Project, error) {
	winner, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, fmt.Errorf("project: refetch %s after conflict: %w", projectID, err)
	}

	if winner.OwnerUserID == userID {
		return winner, nil
	}

	log.Printf("project: reassigning %s from %s to %s after creation race", projectID, winner.OwnerUserID, userID)
	if err := s.store.UpdateProjectOwner(ctx, projectID, userID); err != nil {
		return store.Project{}, fmt.Errorf("project: reassign %s: %w", projectID, err)
	}
	winner.OwnerUserID = userID
	return winner, nil
}
