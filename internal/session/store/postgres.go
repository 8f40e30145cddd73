package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ali/internal/session/models"
	"ali/internal/session/ports"
	id "ali/pkg/domain"
	"ali/pkg/platform/sentinel"
)

// Postgres persists sessions in PostgreSQL. Usage counters live in their own
// columns so RecordMessage can fold activity in with a single atomic update.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the sessions table if it does not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sessions schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082502)); err != nil {
		return fmt.Errorf("acquire sessions schema lock: %w", err)
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	id UUID PRIMARY KEY,
	user_id BIGINT NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	message_count INTEGER NOT NULL DEFAULT 0,
	total_tokens_used INTEGER NOT NULL DEFAULT 0,
	avg_response_time DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_activity TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute sessions schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sessions schema tx: %w", err)
	}
	return nil
}

const sessionColumns = `id, user_id, name, type, status, metadata, message_count, total_tokens_used, avg_response_time, last_activity, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal session metadata: %w", err)
	}

	query := `
		INSERT INTO sessions (id, user_id, name, type, status, metadata, message_count, total_tokens_used, avg_response_time, last_activity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + sessionColumns
	created, err := scanSession(s.db.QueryRowContext(ctx, query,
		uuid.UUID(session.ID),
		int64(session.UserID),
		session.Name,
		string(session.Type),
		string(session.Status),
		metadata,
		session.Stats.MessageCount,
		session.Stats.TotalTokensUsed,
		session.Stats.AvgResponseTime,
		session.Stats.LastActivity,
		session.CreatedAt,
		session.UpdatedAt,
	))
	if err != nil {
		if isSessionUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return created, nil
}

func (s *Postgres) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	session, err := scanSession(s.db.QueryRowContext(ctx, query, uuid.UUID(sessionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return session, nil
}

func (s *Postgres) Update(ctx context.Context, session *models.Session) (*models.Session, error) {
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal session metadata: %w", err)
	}

	query := `
		UPDATE sessions
		SET user_id = $2,
			name = $3,
			type = $4,
			status = $5,
			metadata = $6,
			message_count = $7,
			total_tokens_used = $8,
			avg_response_time = $9,
			last_activity = $10,
			updated_at = $11
		WHERE id = $1
		RETURNING ` + sessionColumns
	updated, err := scanSession(s.db.QueryRowContext(ctx, query,
		uuid.UUID(session.ID),
		int64(session.UserID),
		session.Name,
		string(session.Type),
		string(session.Status),
		metadata,
		session.Stats.MessageCount,
		session.Stats.TotalTokensUsed,
		session.Stats.AvgResponseTime,
		session.Stats.LastActivity,
		session.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update session: %w", err)
	}
	return updated, nil
}

func (s *Postgres) Delete(ctx context.Context, sessionID id.SessionID) error {
	query := `
		UPDATE sessions
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, uuid.UUID(sessionID), string(models.StatusDeleted))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, filter ports.Filter) ([]*models.Session, error) {
	where, args := buildSessionFilter(filter)
	query := `SELECT ` + sessionColumns + ` FROM sessions` + where + ` ORDER BY created_at DESC, id DESC`
	query, args = appendSessionPagination(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (s *Postgres) Count(ctx context.Context, filter ports.Filter) (int, error) {
	where, args := buildSessionFilter(filter)
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func (s *Postgres) Search(ctx context.Context, query string, userID *id.UserID, limit, offset int) ([]*models.Session, error) {
	args := []any{"%" + query + "%", string(models.StatusDeleted)}
	sqlQuery := `SELECT ` + sessionColumns + ` FROM sessions WHERE name ILIKE $1 AND status <> $2`
	if userID != nil {
		args = append(args, int64(*userID))
		sqlQuery += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	sqlQuery += ` ORDER BY created_at DESC, id DESC`
	sqlQuery, args = appendSessionPagination(sqlQuery, args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (s *Postgres) FindInactive(ctx context.Context, inactiveSince time.Time, limit int) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE status = $1 AND COALESCE(last_activity, updated_at) < $2
		ORDER BY created_at DESC, id DESC
	`
	args := []any{string(models.StatusActive), inactiveSince}
	query, args = appendSessionPagination(query, args, limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find inactive sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// RecordMessage folds one message into the counters with an incremental
// average, all in a single atomic update.
func (s *Postgres) RecordMessage(ctx context.Context, sessionID id.SessionID, tokensUsed int, responseTime float64) error {
	query := `
		UPDATE sessions
		SET message_count = message_count + 1,
			total_tokens_used = total_tokens_used + $2,
			avg_response_time = avg_response_time + ($3 - avg_response_time) / (message_count + 1),
			last_activity = NOW(),
			updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, uuid.UUID(sessionID), tokensUsed, responseTime)
	if err != nil {
		return fmt.Errorf("record session message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record session message rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) BulkUpdateStatus(ctx context.Context, sessionIDs []id.SessionID, status models.Status) (int, error) {
	ids := make([]uuid.UUID, len(sessionIDs))
	for i, sessionID := range sessionIDs {
		ids[i] = uuid.UUID(sessionID)
	}

	query := `
		UPDATE sessions
		SET status = $1, updated_at = NOW()
		WHERE id = ANY($2)
	`
	result, err := s.db.ExecContext(ctx, query, string(status), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("bulk update session status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk update session status rows affected: %w", err)
	}
	return int(rows), nil
}

func (s *Postgres) Statistics(ctx context.Context, userID *id.UserID, from, to *time.Time) (*ports.Statistics, error) {
	var conditions []string
	var args []any
	if userID != nil {
		args = append(args, int64(*userID))
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if from != nil {
		args = append(args, *from)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	where := ""
	for i, condition := range conditions {
		if i == 0 {
			where = " WHERE " + condition
		} else {
			where += " AND " + condition
		}
	}

	stats := &ports.Statistics{ByType: make(map[models.Type]int)}
	totalsQuery := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'archived'),
			COALESCE(SUM(message_count), 0),
			COALESCE(SUM(total_tokens_used), 0),
			COALESCE(AVG(avg_response_time) FILTER (WHERE avg_response_time > 0), 0)
		FROM sessions` + where
	err := s.db.QueryRowContext(ctx, totalsQuery, args...).Scan(
		&stats.TotalSessions,
		&stats.ActiveSessions,
		&stats.ArchivedSessions,
		&stats.TotalMessages,
		&stats.TotalTokens,
		&stats.AvgResponseTime,
	)
	if err != nil {
		return nil, fmt.Errorf("session totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM sessions`+where+` GROUP BY type`, args...)
	if err != nil {
		return nil, fmt.Errorf("session type breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sessionType string
		var count int
		if err := rows.Scan(&sessionType, &count); err != nil {
			return nil, fmt.Errorf("scan session type breakdown: %w", err)
		}
		stats.ByType[models.Type(sessionType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session type breakdown: %w", err)
	}
	return stats, nil
}

func (s *Postgres) CleanupDeleted(ctx context.Context, deletedBefore time.Time) (int, error) {
	query := `DELETE FROM sessions WHERE status = $1 AND updated_at < $2`
	result, err := s.db.ExecContext(ctx, query, string(models.StatusDeleted), deletedBefore)
	if err != nil {
		return 0, fmt.Errorf("cleanup deleted sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup deleted sessions rows affected: %w", err)
	}
	return int(rows), nil
}

func buildSessionFilter(filter ports.Filter) (string, []any) {
	var conditions []string
	var args []any

	if filter.UserID != nil {
		args = append(args, int64(*filter.UserID))
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
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

func appendSessionPagination(query string, args []any, limit, offset int) (string, []any) {
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

type sessionRow interface {
	Scan(dest ...any) error
}

func scanSession(row sessionRow) (*models.Session, error) {
	var session models.Session
	var sessionID uuid.UUID
	var userID int64
	var sessionType, status string
	var metadata []byte
	var lastActivity sql.NullTime

	err := row.Scan(
		&sessionID,
		&userID,
		&session.Name,
		&sessionType,
		&status,
		&metadata,
		&session.Stats.MessageCount,
		&session.Stats.TotalTokensUsed,
		&session.Stats.AvgResponseTime,
		&lastActivity,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.ID = id.SessionID(sessionID)
	session.UserID = id.UserID(userID)
	session.Type = models.Type(sessionType)
	session.Status = models.Status(status)
	if err := json.Unmarshal(metadata, &session.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal session metadata: %w", err)
	}
	if lastActivity.Valid {
		session.Stats.LastActivity = &lastActivity.Time
	}
	return &session, nil
}

func collectSessions(rows *sql.Rows) ([]*models.Session, error) {
	sessions := []*models.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func isSessionUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
