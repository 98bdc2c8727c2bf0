package report

import (
	"context"
	"fmt"
	"time"

	"seomax/api/internal/store"
)

// DownloadTTL is how long a presigned report link stays valid.
const DownloadTTL = 15 * time.Minute

// DataStore defines the data access the report flow needs.
type DataStore interface {
	GetProjectForOwner(ctx context.Context, projectID, ownerUserID string) (store.Project, error)
	ListKeywords(ctx context.Context, projectID string) ([]store.Keyword, error)
}

// Result describes a finished report artifact.
type Result struct {
	Key         string `json:"key"`
	DownloadURL string `json:"downloadUrl"`
	Rows        int    `json:"rows"`
}

// Service builds keyword reports and uploads them to object storage.
type Service struct {
	store   DataStore
	storage Storage
	now     func() time.Time
}

func NewService(store DataStore, storage Storage) *Service {
	return &Service{store: store, storage: storage, now: time.Now}
}

// Enabled reports whether an object store is configured.
func (s *Service) Enabled() bool {
	return s.storage != nil
}

// Generate builds the CSV for a project the user owns, uploads it and returns
// a presigned download link.
func (s *Service) Generate(ctx context.Context, projectID, userID string) (Result, error) {
	if !s.Enabled() {
		return Result{}, fmt.Errorf("report storage not configured")
	}

	project, err := s.store.GetProjectForOwner(ctx, projectID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("report project: %w", err)
	}

	keywords, err := s.store.ListKeywords(ctx, projectID)
	if err != nil {
		return Result{}, fmt.Errorf("report keywords: %w", err)
	}

	data, err := BuildCSV(project, keywords)
	if err != nil {
		return Result{}, err
	}

	key := ObjectKey(projectID, s.now())
	if err := s.storage.Put(ctx, key, data, "text/csv"); err != nil {
		return Result{}, err
	}

	downloadURL, err := s.storage.PresignGet(ctx, key, DownloadTTL)
	if err != nil {
		return Result{}, err
	}

	return Result{Key: key, DownloadURL: downloadURL, Rows: len(keywords)}, nil
}
