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

	"ali/internal/message/models"
	"ali/internal/message/ports"
	id "ali/pkg/domain"
	"ali/pkg/platform/sentinel"
)

// Postgres persists messages in PostgreSQL. Metadata rides along as JSONB;
// the aggregate queries read tokens_used out of it directly.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed message store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the messages table if it does not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin messages schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082503)); err != nil {
		return fmt.Errorf("acquire messages schema lock: %w", err)
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS messages (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL,
	user_id BIGINT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	status TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	error_details TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_user_id ON messages(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);
`
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute messages schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit messages schema tx: %w", err)
	}
	return nil
}

const messageColumns = `id, session_id, user_id, role, content, status, metadata, error_details, retry_count, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, message *models.Message) (*models.Message, error) {
	metadata, err := json.Marshal(message.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal message metadata: %w", err)
	}

	query := `
		INSERT INTO messages (id, session_id, user_id, role, content, status, metadata, error_details, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + messageColumns
	created, err := scanMessage(s.db.QueryRowContext(ctx, query,
		uuid.UUID(message.ID),
		uuid.UUID(message.SessionID),
		int64(message.UserID),
		string(message.Role),
		message.Content,
		string(message.Status),
		metadata,
		message.ErrorDetails,
		message.RetryCount,
		message.CreatedAt,
		message.UpdatedAt,
	))
	if err != nil {
		if isMessageUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("create message: %w", err)
	}
	return created, nil
}

func (s *Postgres) FindByID(ctx context.Context, messageID id.MessageID) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	message, err := scanMessage(s.db.QueryRowContext(ctx, query, uuid.UUID(messageID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find message by id: %w", err)
	}
	return message, nil
}

func (s *Postgres) Update(ctx context.Context, message *models.Message) (*models.Message, error) {
	metadata, err := json.Marshal(message.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal message metadata: %w", err)
	}

	query := `
		UPDATE messages
		SET content = $2,
			status = $3,
			metadata = $4,
			error_details = $5,
			retry_count = $6,
			updated_at = $7
		WHERE id = $1
		RETURNING ` + messageColumns
	updated, err := scanMessage(s.db.QueryRowContext(ctx, query,
		uuid.UUID(message.ID),
		message.Content,
		string(message.Status),
		metadata,
		message.ErrorDetails,
		message.RetryCount,
		message.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return updated, nil
}

func (s *Postgres) Delete(ctx context.Context, messageID id.MessageID) error {
	query := `
		UPDATE messages
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, uuid.UUID(messageID), string(models.StatusDeleted))
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListBySession(ctx context.Context, sessionID id.SessionID, filter ports.Filter) ([]*models.Message, error) {
	args := []any{uuid.UUID(sessionID)}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE session_id = $1`
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	} else {
		args = append(args, string(models.StatusDeleted))
		query += fmt.Sprintf(" AND status <> $%d", len(args))
	}
	if filter.Role != nil {
		args = append(args, string(*filter.Role))
		query += fmt.Sprintf(" AND role = $%d", len(args))
	}
	if filter.NewestFirst {
		query += ` ORDER BY created_at DESC, id DESC`
	} else {
		query += ` ORDER BY created_at ASC, id ASC`
	}
	query, args = appendMessagePagination(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *Postgres) CountBySession(ctx context.Context, sessionID id.SessionID, filter ports.Filter) (int, error) {
	args := []any{uuid.UUID(sessionID)}
	query := `SELECT COUNT(*) FROM messages WHERE session_id = $1`
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	} else {
		args = append(args, string(models.StatusDeleted))
		query += fmt.Sprintf(" AND status <> $%d", len(args))
	}
	if filter.Role != nil {
		args = append(args, string(*filter.Role))
		query += fmt.Sprintf(" AND role = $%d", len(args))
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count session messages: %w", err)
	}
	return count, nil
}

func (s *Postgres) ListByUser(ctx context.Context, userID id.UserID, from, to *time.Time, limit, offset int) ([]*models.Message, error) {
	args := []any{int64(userID), string(models.StatusDeleted)}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE user_id = $1 AND status <> $2`
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	query, args = appendMessagePagination(query, args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list user messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *Postgres) CountByUserSince(ctx context.Context, userID id.UserID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE user_id = $1 AND role = $2 AND status <> $3 AND created_at >= $4
	`
	var count int
	err := s.db.QueryRowContext(ctx, query, int64(userID), string(models.RoleUser), string(models.StatusDeleted), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count user messages since: %w", err)
	}
	return count, nil
}

func (s *Postgres) Search(ctx context.Context, query string, sessionID *id.SessionID, userID *id.UserID, limit, offset int) ([]*models.Message, error) {
	args := []any{"%" + query + "%", string(models.StatusDeleted)}
	sqlQuery := `SELECT ` + messageColumns + ` FROM messages WHERE content ILIKE $1 AND status <> $2`
	if sessionID != nil {
		args = append(args, uuid.UUID(*sessionID))
		sqlQuery += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if userID != nil {
		args = append(args, int64(*userID))
		sqlQuery += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	sqlQuery += ` ORDER BY created_at DESC, id DESC`
	sqlQuery, args = appendMessagePagination(sqlQuery, args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *Postgres) ConversationContext(ctx context.Context, sessionID id.SessionID, beforeMessageID *id.MessageID, size int) ([]*models.Message, error) {
	args := []any{uuid.UUID(sessionID), string(models.StatusCompleted)}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE session_id = $1 AND status = $2`

	if beforeMessageID != nil {
		var anchorCreatedAt time.Time
		err := s.db.QueryRowContext(ctx, `SELECT created_at FROM messages WHERE id = $1`, uuid.UUID(*beforeMessageID)).Scan(&anchorCreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, sentinel.ErrNotFound
			}
			return nil, fmt.Errorf("find context anchor: %w", err)
		}
		args = append(args, anchorCreatedAt)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	// Newest window first, then flipped so the caller gets oldest first.
	query += ` ORDER BY created_at DESC, id DESC`
	if size > 0 {
		args = append(args, size)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation context: %w", err)
	}
	defer rows.Close()
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Postgres) Statistics(ctx context.Context, userID *id.UserID, sessionID *id.SessionID, from, to *time.Time) (*ports.Statistics, error) {
	var conditions []string
	var args []any
	if userID != nil {
		args = append(args, int64(*userID))
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if sessionID != nil {
		args = append(args, uuid.UUID(*sessionID))
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)))
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

	stats := &ports.Statistics{
		ByRole:   make(map[models.Role]int),
		ByStatus: make(map[models.Status]int),
	}
	totalsQuery := `
		SELECT COUNT(*),
			COALESCE(SUM((metadata->>'tokens_used')::int), 0),
			COUNT(*) FILTER (WHERE status = 'error'),
			COALESCE(AVG((metadata->>'processing_time')::float) FILTER (WHERE (metadata->>'processing_time')::float > 0), 0)
		FROM messages` + where
	err := s.db.QueryRowContext(ctx, totalsQuery, args...).Scan(
		&stats.TotalMessages,
		&stats.TotalTokens,
		&stats.ErrorCount,
		&stats.AvgResponseTime,
	)
	if err != nil {
		return nil, fmt.Errorf("message totals: %w", err)
	}
	if stats.TotalMessages > 0 {
		stats.AvgTokensPerMsg = float64(stats.TotalTokens) / float64(stats.TotalMessages)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT role, status, COUNT(*) FROM messages`+where+` GROUP BY role, status`, args...)
	if err != nil {
		return nil, fmt.Errorf("message breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role, status string
		var count int
		if err := rows.Scan(&role, &status, &count); err != nil {
			return nil, fmt.Errorf("scan message breakdown: %w", err)
		}
		stats.ByRole[models.Role(role)] += count
		stats.ByStatus[models.Status(status)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message breakdown: %w", err)
	}
	return stats, nil
}

func (s *Postgres) BulkUpdateStatus(ctx context.Context, messageIDs []id.MessageID, status models.Status) (int, error) {
	ids := make([]uuid.UUID, len(messageIDs))
	for i, messageID := range messageIDs {
		ids[i] = uuid.UUID(messageID)
	}

	query := `
		UPDATE messages
		SET status = $1, updated_at = NOW()
		WHERE id = ANY($2)
	`
	result, err := s.db.ExecContext(ctx, query, string(status), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("bulk update message status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk update message status rows affected: %w", err)
	}
	return int(rows), nil
}

func (s *Postgres) TokenUsageByDay(ctx context.Context, userID *id.UserID, from, to time.Time) ([]ports.TokenUsage, error) {
	args := []any{string(models.StatusDeleted), from, to}
	query := `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COALESCE(SUM((metadata->>'tokens_used')::int), 0),
			COUNT(*)
		FROM messages
		WHERE status <> $1 AND created_at >= $2 AND created_at <= $3
	`
	if userID != nil {
		args = append(args, int64(*userID))
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	query += ` GROUP BY day ORDER BY day ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("token usage by day: %w", err)
	}
	defer rows.Close()

	usage := []ports.TokenUsage{}
	for rows.Next() {
		var bucket ports.TokenUsage
		if err := rows.Scan(&bucket.Period, &bucket.Tokens, &bucket.Messages); err != nil {
			return nil, fmt.Errorf("scan token usage: %w", err)
		}
		usage = append(usage, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token usage: %w", err)
	}
	return usage, nil
}

func (s *Postgres) FindErrors(ctx context.Context, limit int) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE status = $1 ORDER BY created_at DESC, id DESC`
	args := []any{string(models.StatusError)}
	query, args = appendMessagePagination(query, args, limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find errored messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *Postgres) FindHighTokenUsage(ctx context.Context, threshold int, limit int) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE status = $1 AND (metadata->>'tokens_used')::int >= $2
		ORDER BY (metadata->>'tokens_used')::int DESC
	`
	args := []any{string(models.StatusCompleted), threshold}
	query, args = appendMessagePagination(query, args, limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find high token usage: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (s *Postgres) ArchiveOld(ctx context.Context, createdBefore time.Time, excludeSessionIDs []id.SessionID) (int, error) {
	excluded := make([]uuid.UUID, len(excludeSessionIDs))
	for i, sessionID := range excludeSessionIDs {
		excluded[i] = uuid.UUID(sessionID)
	}

	query := `
		UPDATE messages
		SET status = $1, updated_at = NOW()
		WHERE status <> $1 AND created_at < $2 AND NOT (session_id = ANY($3))
	`
	result, err := s.db.ExecContext(ctx, query, string(models.StatusDeleted), createdBefore, pq.Array(excluded))
	if err != nil {
		return 0, fmt.Errorf("archive old messages: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive old messages rows affected: %w", err)
	}
	return int(rows), nil
}

func (s *Postgres) CleanupDeleted(ctx context.Context, deletedBefore time.Time) (int, error) {
	query := `DELETE FROM messages WHERE status = $1 AND updated_at < $2`
	result, err := s.db.ExecContext(ctx, query, string(models.StatusDeleted), deletedBefore)
	if err != nil {
		return 0, fmt.Errorf("cleanup deleted messages: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup deleted messages rows affected: %w", err)
	}
	return int(rows), nil
}

func appendMessagePagination(query string, args []any, limit, offset int) (string, []any) {
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

type messageRow interface {
	Scan(dest ...any) error
}

func scanMessage(row messageRow) (*models.Message, error) {
	var message models.Message
	var messageID, sessionID uuid.UUID
	var userID int64
	var role, status string
	var metadata []byte

	err := row.Scan(
		&messageID,
		&sessionID,
		&userID,
		&role,
		&message.Content,
		&status,
		&metadata,
		&message.ErrorDetails,
		&message.RetryCount,
		&message.CreatedAt,
		&message.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	message.ID = id.MessageID(messageID)
	message.SessionID = id.SessionID(sessionID)
	message.UserID = id.UserID(userID)
	message.Role = models.Role(role)
	message.Status = models.Status(status)
	if err := json.Unmarshal(metadata, &message.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal message metadata: %w", err)
	}
	return &message, nil
}

func collectMessages(rows *sql.Rows) ([]*models.Message, error) {
	messages := []*models.Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func isMessageUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
