package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when an insert loses a unique-key race.
	ErrConflict = errors.New("store: conflict")
)

// isUniqueViolation reports whether err is the Postgres duplicate-key error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, role, verification_token, verification_expires_at)
		VALUES ($1, LOWER($2), $3, $4, $5, NULLIF($6, ''), $7)
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.Role, user.VerificationToken, user.VerificationExpiresAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.getUser(ctx, `WHERE id=$1`, userID)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, `WHERE email=LOWER($1)`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (User, error) {
	query := `
		SELECT id, email, display_name, password_hash, role, is_email_verified,
			COALESCE(verification_token, ''), verification_expires_at,
			COALESCE(reset_token, ''), reset_expires_at,
			created_at, updated_at
		FROM users ` + where
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&user.IsEmailVerified,
		&user.VerificationToken,
		&user.VerificationExpiresAt,
		&user.ResetToken,
		&user.ResetExpiresAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) MarkEmailVerified(ctx context.Context, token string) (User, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
		RETURNING id
	`, token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("verify email: %w", err)
	}
	return s.GetUserByID(ctx, userID)
}

func (s *PostgresStore) SetResetToken(ctx context.Context, email, token string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET reset_token=$2, reset_expires_at=$3, updated_at=NOW()
		WHERE email=LOWER($1)
	`, email, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set reset token rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResetPassword(ctx context.Context, token, passwordHash string) (User, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET password_hash=$2, reset_token=NULL, reset_expires_at=NULL, updated_at=NOW()
		WHERE reset_token=$1 AND reset_expires_at > NOW()
		RETURNING id
	`, token, passwordHash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("reset password: %w", err)
	}
	return s.GetUserByID(ctx, userID)
}

// ---- refresh sessions / token revocation ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.display_name, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Email, &user.Name, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- projects ----

const projectColumns = `id, owner_user_id, display_name, COALESCE(site_url, ''), created_at, updated_at`

func (s *PostgresStore) scanProject(row *sql.Row) (Project, error) {
	var item Project
	err := row.Scan(&item.ID, &item.OwnerUserID, &item.Name, &item.SiteURL, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("scan project: %w", err)
	}
	return item, nil
}

// GetProjectForOwner is the owner-scoped read used on the request path.
func (s *PostgresStore) GetProjectForOwner(ctx context.Context, projectID, ownerUserID string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE id=$1 AND owner_user_id=$2
	`, projectID, ownerUserID)
	return s.scanProject(row)
}

// GetProject reads a project regardless of owner. Reserved for conflict
// recovery after a lost insert race.
func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE id=$1
	`, projectID)
	return s.scanProject(row)
}

func (s *PostgresStore) InsertProject(ctx context.Context, item Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_user_id, display_name, site_url)
		VALUES ($1, $2, $3, NULLIF($4, ''))
	`, item.ID, item.OwnerUserID, item.Name, item.SiteURL)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProjectOwner(ctx context.Context, projectID, ownerUserID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET owner_user_id=$2, updated_at=NOW() WHERE id=$1
	`, projectID, ownerUserID)
	if err != nil {
		return fmt.Errorf("update project owner: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project owner rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, ownerUserID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE owner_user_id=$1
		ORDER BY created_at DESC
	`, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.OwnerUserID, &item.Name, &item.SiteURL, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

// ListAllProjects is the admin read across every owner.
func (s *PostgresStore) ListAllProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.OwnerUserID, &item.Name, &item.SiteURL, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, projectID, ownerUserID, name, siteURL string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET display_name=$3, site_url=NULLIF($4, ''), updated_at=NOW()
		WHERE id=$1 AND owner_user_id=$2
	`, projectID, ownerUserID, name, siteURL)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID, ownerUserID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM projects WHERE id=$1 AND owner_user_id=$2
	`, projectID, ownerUserID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- keywords ----

func (s *PostgresStore) ListKeywords(ctx context.Context, projectID string) ([]Keyword, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, phrase, country, volume, position, previous_position, created_at, updated_at
		FROM keywords
		WHERE project_id=$1
		ORDER BY created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	items := make([]Keyword, 0)
	for rows.Next() {
		var item Keyword
		if err := rows.Scan(
			&item.ID,
			&item.ProjectID,
			&item.Phrase,
			&item.Country,
			&item.Volume,
			&item.Position,
			&item.PreviousPosition,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keywords: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertKeyword(ctx context.Context, item Keyword) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keywords (id, project_id, phrase, country, volume, position, previous_position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.ProjectID, item.Phrase, item.Country, item.Volume, item.Position, item.PreviousPosition)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert keyword: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateKeywordPosition(ctx context.Context, keywordID string, position int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE keywords
		SET previous_position=position, position=$2, updated_at=NOW()
		WHERE id=$1
	`, keywordID, position)
	if err != nil {
		return fmt.Errorf("update keyword position: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteKeyword(ctx context.Context, keywordID, projectID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM keywords WHERE id=$1 AND project_id=$2
	`, keywordID, projectID)
	if err != nil {
		return fmt.Errorf("delete keyword: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete keyword rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
