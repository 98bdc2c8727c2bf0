package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"seomax/api/internal/auth"
	"seomax/api/internal/authpw"
	"seomax/api/internal/config"
	"seomax/api/internal/email"
	"seomax/api/internal/identity"
	"seomax/api/internal/project"
	"seomax/api/internal/rbac"
	"seomax/api/internal/report"
	"seomax/api/internal/search"
	"seomax/api/internal/store"
	"seomax/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// IsAdmin reports whether the session user is on the organizational domain.
func (s Session) IsAdmin(orgDomain string) bool {
	return identity.IsAdminEmail(s.Email, orgDomain)
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	MarkEmailVerified(context.Context, string) (store.User, error)
	SetResetToken(context.Context, string, string, time.Time) error
	ResetPassword(context.Context, string, string) (store.User, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	GetProjectForOwner(context.Context, string, string) (store.Project, error)
	ListProjects(context.Context, string) ([]store.Project, error)
	ListAllProjects(context.Context) ([]store.Project, error)
	UpdateProject(context.Context, string, string, string, string) error
	DeleteProject(context.Context, string, string) error
	ListKeywords(context.Context, string) ([]store.Keyword, error)
	InsertKeyword(context.Context, store.Keyword) error
	DeleteKeyword(context.Context, string, string) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	authpw   *authpw.Service
	email    *email.Service
	search   *search.Service
	projects *project.Service
	reports  *report.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, projects *project.Service, authSvc *authpw.Service, emailSvc *email.Service, searchSvc *search.Service, reportSvc *report.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		authpw:   authSvc,
		email:    emailSvc,
		search:   searchSvc,
		projects: projects,
		reports:  reportSvc,
	}
}

// AuthPasswordService exposes the email/password flow to the HTTP layer.
func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// SMTPConfigured reports whether outbound email is available.
func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// SendVerificationEmail delivers the verify link when SMTP is configured.
func (s *Service) SendVerificationEmail(to, userName, token string) error {
	if !s.SMTPConfigured() {
		return nil
	}
	url := fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(s.cfg.CORSOrigin, "/"), token)
	return s.email.SendVerificationEmail(to, userName, url)
}

// SendPasswordResetEmail delivers the reset link when SMTP is configured.
func (s *Service) SendPasswordResetEmail(to, userName, token string) error {
	if !s.SMTPConfigured() {
		return nil
	}
	url := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.cfg.CORSOrigin, "/"), token)
	return s.email.SendPasswordResetEmail(to, userName, url)
}

// CreateSession issues tokens for an already-authenticated user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.store.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// effectiveRole applies the org-domain admin rule at session issue time.
func (s *Service) effectiveRole(user store.User) string {
	if identity.IsAdminEmail(user.Email, s.cfg.OrgDomain) {
		return string(rbac.RoleAdmin)
	}
	return string(rbac.Normalize(user.Role))
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	role := s.effectiveRole(user)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.store.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		UserName:     user.Name,
		Role:         role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		UserName:  user.Name,
		Role:      s.effectiveRole(user),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.store.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// OrgDomain is the email domain whose users get the admin role.
func (s *Service) OrgDomain() string {
	return s.cfg.OrgDomain
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// EnsureProject guarantees a project record for the user, creating or
// reassigning as needed. Used by the sync endpoint.
func (s *Service) EnsureProject(ctx context.Context, projectID, userID string) (map[string]any, error) {
	item, err := s.projects.Ensure(ctx, projectID, userID, project.DefaultName)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexProject(search.ProjectRecord{ID: item.ID, Name: item.Name, SiteURL: item.SiteURL})
	}
	return projectPayload(item), nil
}

// ListProjects returns the caller's projects; admins see every project.
func (s *Service) ListProjects(ctx context.Context, session Session) ([]map[string]any, error) {
	var items []store.Project
	var err error
	if s.Can(session.Role, rbac.ActionAdmin) {
		items, err = s.store.ListAllProjects(ctx)
	} else {
		items, err = s.store.ListProjects(ctx, session.UserID)
	}
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, projectPayload(item))
	}
	return payload, nil
}

func (s *Service) GetProject(ctx context.Context, projectID, userID string) (map[string]any, error) {
	item, err := s.store.GetProjectForOwner(ctx, projectID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
	}
	if err != nil {
		return nil, err
	}
	return projectPayload(item), nil
}

func (s *Service) CreateProject(ctx context.Context, userID, name, siteURL string) (map[string]any, error) {
	if strings.TrimSpace(name) == "" {
		name = project.DefaultName
	}
	item, err := s.projects.Ensure(ctx, util.NewID("prj"), userID, name)
	if err != nil {
		return nil, err
	}
	if siteURL != "" {
		if err := s.store.UpdateProject(ctx, item.ID, userID, name, siteURL); err != nil {
			return nil, err
		}
		item.SiteURL = siteURL
	}
	if s.search != nil {
		s.search.IndexProject(search.ProjectRecord{ID: item.ID, Name: item.Name, SiteURL: item.SiteURL})
	}
	return projectPayload(item), nil
}

func (s *Service) UpdateProject(ctx context.Context, projectID, userID, name, siteURL string) (map[string]any, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	err := s.store.UpdateProject(ctx, projectID, userID, name, siteURL)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
	}
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexProject(search.ProjectRecord{ID: projectID, Name: name, SiteURL: siteURL})
	}
	return map[string]any{"ok": true, "id": projectID}, nil
}

func (s *Service) DeleteProject(ctx context.Context, projectID, userID string) error {
	err := s.store.DeleteProject(ctx, projectID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
	}
	if err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteProject(projectID)
	}
	return nil
}

func (s *Service) ListKeywords(ctx context.Context, projectID, userID string) ([]map[string]any, error) {
	if _, err := s.store.GetProjectForOwner(ctx, projectID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
		}
		return nil, err
	}
	items, err := s.store.ListKeywords(ctx, projectID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, keywordPayload(item))
	}
	return payload, nil
}

func (s *Service) AddKeyword(ctx context.Context, projectID, userID, phrase, country string) (map[string]any, error) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "phrase is required", nil)
	}
	if country == "" {
		country = "us"
	}
	if _, err := s.store.GetProjectForOwner(ctx, projectID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
		}
		return nil, err
	}

	item := store.Keyword{
		ID:        util.NewID("kw"),
		ProjectID: projectID,
		Phrase:    phrase,
		Country:   strings.ToLower(country),
	}
	err := s.store.InsertKeyword(ctx, item)
	if errors.Is(err, store.ErrConflict) {
		return nil, domainError(http.StatusConflict, "KEYWORD_EXISTS", "Keyword already tracked for this project", nil)
	}
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexKeyword(search.KeywordRecord{ID: item.ID, Phrase: item.Phrase, ProjectID: item.ProjectID, Country: item.Country})
	}
	return keywordPayload(item), nil
}

func (s *Service) DeleteKeyword(ctx context.Context, projectID, userID, keywordID string) error {
	if _, err := s.store.GetProjectForOwner(ctx, projectID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
		}
		return err
	}
	err := s.store.DeleteKeyword(ctx, keywordID, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Keyword not found", nil)
	}
	if err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteKeyword(keywordID)
	}
	return nil
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// GenerateReport builds and uploads a keyword CSV for the project.
func (s *Service) GenerateReport(ctx context.Context, projectID, userID string) (report.Result, error) {
	if s.reports == nil || !s.reports.Enabled() {
		return report.Result{}, domainError(http.StatusServiceUnavailable, "REPORTS_UNAVAILABLE", "Report storage not configured", nil)
	}
	result, err := s.reports.Generate(ctx, projectID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return report.Result{}, domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
	}
	return result, err
}

func projectPayload(item store.Project) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"ownerId":   item.OwnerUserID,
		"name":      item.Name,
		"siteUrl":   item.SiteURL,
		"createdAt": item.CreatedAt,
		"updatedAt": item.UpdatedAt,
	}
}

func keywordPayload(item store.Keyword) map[string]any {
	return map[string]any{
		"id":               item.ID,
		"projectId":        item.ProjectID,
		"phrase":           item.Phrase,
		"country":          item.Country,
		"volume":           item.Volume,
		"position":         item.Position,
		"previousPosition": item.PreviousPosition,
		"createdAt":        item.CreatedAt,
	}
}
