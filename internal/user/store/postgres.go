package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ali/internal/user/models"
	"ali/internal/user/ports"
	id "ali/pkg/domain"
	"ali/pkg/platform/sentinel"
)

// Postgres persists users in PostgreSQL. Pure I/O; registration rules and
// role checks belong in the service.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the users table if it does not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin users schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire users schema lock: %w", err)
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	role TEXT NOT NULL,
	status TEXT NOT NULL,
	permissions TEXT[] NOT NULL DEFAULT '{}',
	preferences JSONB NOT NULL DEFAULT '{}'::jsonb,
	profile JSONB NOT NULL DEFAULT '{}'::jsonb,
	is_verified BOOLEAN NOT NULL DEFAULT FALSE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	last_login TIMESTAMPTZ,
	login_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_status ON users(status);
CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute users schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit users schema tx: %w", err)
	}
	return nil
}

const userColumns = `id, email, hashed_password, role, status, permissions, preferences, profile, is_verified, is_active, last_login, login_count, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, user *models.User) (*models.User, error) {
	preferences, profile, err := marshalUserDocs(user)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO users (email, hashed_password, role, status, permissions, preferences, profile, is_verified, is_active, last_login, login_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + userColumns
	created, err := scanUser(s.db.QueryRowContext(ctx, query,
		user.Email,
		user.HashedPassword,
		string(user.Role),
		string(user.Status),
		pq.Array(user.Permissions),
		preferences,
		profile,
		user.IsVerified,
		user.IsActive,
		user.LastLogin,
		user.LoginCount,
		user.CreatedAt,
		user.UpdatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (s *Postgres) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, int64(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return user, nil
}

func (s *Postgres) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

func (s *Postgres) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists by email: %w", err)
	}
	return exists, nil
}

func (s *Postgres) Update(ctx context.Context, user *models.User) (*models.User, error) {
	preferences, profile, err := marshalUserDocs(user)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE users
		SET email = $2,
			hashed_password = $3,
			role = $4,
			status = $5,
			permissions = $6,
			preferences = $7,
			profile = $8,
			is_verified = $9,
			is_active = $10,
			last_login = $11,
			login_count = $12,
			updated_at = $13
		WHERE id = $1
		RETURNING ` + userColumns
	updated, err := scanUser(s.db.QueryRowContext(ctx, query,
		int64(user.ID),
		user.Email,
		user.HashedPassword,
		string(user.Role),
		string(user.Status),
		pq.Array(user.Permissions),
		preferences,
		profile,
		user.IsVerified,
		user.IsActive,
		user.LastLogin,
		user.LoginCount,
		user.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return updated, nil
}

func (s *Postgres) Delete(ctx context.Context, userID id.UserID) error {
	query := `
		UPDATE users
		SET status = $2, is_active = FALSE, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, int64(userID), string(models.StatusDeleted))
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, filter ports.Filter) ([]*models.User, error) {
	where, args := buildUserFilter(filter)
	query := `SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY created_at DESC, id DESC`
	query, args = appendPagination(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *Postgres) Count(ctx context.Context, filter ports.Filter) (int, error) {
	where, args := buildUserFilter(filter)
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (s *Postgres) Search(ctx context.Context, query string, limit, offset int) ([]*models.User, error) {
	where, args := buildUserFilter(ports.Filter{Query: query})
	sqlQuery := `SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY created_at DESC, id DESC`
	sqlQuery, args = appendPagination(sqlQuery, args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *Postgres) FindUnverified(ctx context.Context, createdBefore time.Time, limit int) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE is_verified = FALSE AND created_at < $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{createdBefore}
	query, args = appendPagination(query, args, limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find unverified users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *Postgres) BulkUpdateStatus(ctx context.Context, userIDs []id.UserID, status models.Status) (int, error) {
	ids := make([]int64, len(userIDs))
	for i, userID := range userIDs {
		ids[i] = int64(userID)
	}

	query := `
		UPDATE users
		SET status = $1, is_active = ($1 = 'active'), updated_at = NOW()
		WHERE id = ANY($2)
	`
	result, err := s.db.ExecContext(ctx, query, string(status), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("bulk update user status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk update user status rows affected: %w", err)
	}
	return int(rows), nil
}

func (s *Postgres) Statistics(ctx context.Context) (*ports.Statistics, error) {
	stats := &ports.Statistics{
		ByStatus: make(map[models.Status]int),
		ByRole:   make(map[models.Role]int),
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_verified) FROM users`,
	).Scan(&stats.TotalUsers, &stats.VerifiedUsers)
	if err != nil {
		return nil, fmt.Errorf("user totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, role, COUNT(*) FROM users GROUP BY status, role`)
	if err != nil {
		return nil, fmt.Errorf("user breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, role string
		var count int
		if err := rows.Scan(&status, &role, &count); err != nil {
			return nil, fmt.Errorf("scan user breakdown: %w", err)
		}
		stats.ByStatus[models.Status(status)] += count
		stats.ByRole[models.Role(role)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user breakdown: %w", err)
	}
	return stats, nil
}

func buildUserFilter(filter ports.Filter) (string, []any) {
	var conditions []string
	var args []any

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Role != nil {
		args = append(args, string(*filter.Role))
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.IsVerified != nil {
		args = append(args, *filter.IsVerified)
		conditions = append(conditions, fmt.Sprintf("is_verified = $%d", len(args)))
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(email ILIKE $%d OR profile->>'first_name' ILIKE $%d OR profile->>'last_name' ILIKE $%d)", n, n, n))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	where := " WHERE " + conditions[0]
	for _, condition := range conditions[1:] {
		where += " AND " + condition
	}
	return where, args
}

func appendPagination(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func marshalUserDocs(user *models.User) (preferences, profile []byte, err error) {
	preferences, err = json.Marshal(user.Preferences)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal user preferences: %w", err)
	}
	profile, err = json.Marshal(user.Profile)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal user profile: %w", err)
	}
	return preferences, profile, nil
}

type userRow interface {
	Scan(dest ...any) error
}

func scanUser(row userRow) (*models.User, error) {
	var user models.User
	var userID int64
	var role, status string
	var preferences, profile []byte
	var lastLogin sql.NullTime

	err := row.Scan(
		&userID,
		&user.Email,
		&user.HashedPassword,
		&role,
		&status,
		pq.Array(&user.Permissions),
		&preferences,
		&profile,
		&user.IsVerified,
		&user.IsActive,
		&lastLogin,
		&user.LoginCount,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.ID = id.UserID(userID)
	user.Role = models.Role(role)
	user.Status = models.Status(status)
	if err := json.Unmarshal(preferences, &user.Preferences); err != nil {
		return nil, fmt.Errorf("unmarshal user preferences: %w", err)
	}
	if err := json.Unmarshal(profile, &user.Profile); err != nil {
		return nil, fmt.Errorf("unmarshal user profile: %w", err)
	}
	if lastLogin.Valid {
		user.LastLogin = &lastLogin.Time
	}
	return &user, nil
}

func collectUsers(rows *sql.Rows) ([]*models.User, error) {
	users := []*models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
