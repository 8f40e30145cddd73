package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ali/internal/document/models"
	"ali/internal/document/ports"
	id "ali/pkg/domain"
	"ali/pkg/platform/sentinel"
)

// Postgres persists documents in PostgreSQL. Tags are a native text array so
// tag aggregation can unnest server side.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the documents table if it does not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin documents schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082504)); err != nil {
		return fmt.Errorf("acquire documents schema lock: %w", err)
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	user_id BIGINT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	raw_text TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	category TEXT NOT NULL,
	status TEXT NOT NULL,
	tags TEXT[] NOT NULL DEFAULT '{}',
	is_public BOOLEAN NOT NULL DEFAULT FALSE,
	source_url TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	word_count INTEGER NOT NULL DEFAULT 0,
	character_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_user_id ON documents(user_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_content_hash ON documents(content_hash);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute documents schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit documents schema tx: %w", err)
	}
	return nil
}

const documentColumns = `id, user_id, title, description, raw_text, type, category, status, tags, is_public, source_url, file_name, content_hash, word_count, character_count, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, document *models.Document) (*models.Document, error) {
	query := `
		INSERT INTO documents (id, user_id, title, description, raw_text, type, category, status, tags, is_public, source_url, file_name, content_hash, word_count, character_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING ` + documentColumns
	created, err := scanDocument(s.db.QueryRowContext(ctx, query,
		uuid.UUID(document.ID),
		int64(document.UserID),
		document.Title,
		document.Description,
		document.RawText,
		string(document.Type),
		string(document.Category),
		string(document.Status),
		pq.Array(document.Tags),
		document.IsPublic,
		document.SourceURL,
		document.FileName,
		document.ContentHash,
		document.WordCount,
		document.CharacterCount,
		document.CreatedAt,
		document.UpdatedAt,
	))
	if err != nil {
		if isDocumentUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("create document: %w", err)
	}
	return created, nil
}

func (s *Postgres) FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	document, err := scanDocument(s.db.QueryRowContext(ctx, query, uuid.UUID(documentID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document by id: %w", err)
	}
	return document, nil
}

func (s *Postgres) Update(ctx context.Context, document *models.Document) (*models.Document, error) {
	query := `
		UPDATE documents
		SET title = $2,
			description = $3,
			raw_text = $4,
			type = $5,
			category = $6,
			status = $7,
			tags = $8,
			is_public = $9,
			source_url = $10,
			file_name = $11,
			content_hash = $12,
			word_count = $13,
			character_count = $14,
			updated_at = $15
		WHERE id = $1
		RETURNING ` + documentColumns
	updated, err := scanDocument(s.db.QueryRowContext(ctx, query,
		uuid.UUID(document.ID),
		document.Title,
		document.Description,
		document.RawText,
		string(document.Type),
		string(document.Category),
		string(document.Status),
		pq.Array(document.Tags),
		document.IsPublic,
		document.SourceURL,
		document.FileName,
		document.ContentHash,
		document.WordCount,
		document.CharacterCount,
		document.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("update document: %w", err)
	}
	return updated, nil
}

func (s *Postgres) Delete(ctx context.Context, documentID id.DocumentID) error {
	query := `
		UPDATE documents
		SET status = $2, is_public = FALSE, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, uuid.UUID(documentID), string(models.StatusDeleted))
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, filter ports.Filter) ([]*models.Document, error) {
	where, args := buildDocumentFilter(filter)
	query := `SELECT ` + documentColumns + ` FROM documents` + where + ` ORDER BY created_at DESC, id DESC`
	query, args = appendDocumentPagination(query, args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (s *Postgres) Count(ctx context.Context, filter ports.Filter) (int, error) {
	where, args := buildDocumentFilter(filter)
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func (s *Postgres) Search(ctx context.Context, query string, userID *id.UserID, limit, offset int) ([]*models.Document, error) {
	// Searchable means active or archived with non-blank text.
	args := []any{"%" + query + "%"}
	sqlQuery := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status IN ('active', 'archived')
		  AND btrim(raw_text) <> ''
		  AND (title ILIKE $1 OR description ILIKE $1 OR raw_text ILIKE $1
			OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag LIKE lower($1)))
	`
	if userID != nil {
		args = append(args, int64(*userID))
		sqlQuery += fmt.Sprintf(" AND (user_id = $%d OR is_public)", len(args))
	}
	sqlQuery += ` ORDER BY created_at DESC, id DESC`
	sqlQuery, args = appendDocumentPagination(sqlQuery, args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (s *Postgres) FindByHash(ctx context.Context, contentHash string, userID *id.UserID) ([]*models.Document, error) {
	args := []any{contentHash, string(models.StatusDeleted)}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE content_hash = $1 AND status <> $2`
	if userID != nil {
		args = append(args, int64(*userID))
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find documents by hash: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (s *Postgres) BulkUpdateStatus(ctx context.Context, documentIDs []id.DocumentID, status models.Status) (int, error) {
	ids := make([]uuid.UUID, len(documentIDs))
	for i, documentID := range documentIDs {
		ids[i] = uuid.UUID(documentID)
	}

	query := `
		UPDATE documents
		SET status = $1, updated_at = NOW()
		WHERE id = ANY($2)
	`
	result, err := s.db.ExecContext(ctx, query, string(status), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("bulk update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk update document status rows affected: %w", err)
	}
	return int(rows), nil
}

func (s *Postgres) FindOld(ctx context.Context, createdBefore time.Time, excludeUserIDs []id.UserID, limit int) ([]*models.Document, error) {
	excluded := make([]int64, len(excludeUserIDs))
	for i, userID := range excludeUserIDs {
		excluded[i] = int64(userID)
	}

	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status NOT IN ($1, $2) AND created_at < $3 AND NOT (user_id = ANY($4))
		ORDER BY created_at DESC, id DESC
	`
	args := []any{string(models.StatusDeleted), string(models.StatusArchived), createdBefore, pq.Array(excluded)}
	query, args = appendDocumentPagination(query, args, limit, 0)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find old documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (s *Postgres) Statistics(ctx context.Context, userID *id.UserID) (*ports.Statistics, error) {
	where := ""
	var args []any
	if userID != nil {
		args = append(args, int64(*userID))
		where = " WHERE user_id = $1"
	}

	stats := &ports.Statistics{
		ByStatus:   make(map[models.Status]int),
		ByType:     make(map[models.Type]int),
		ByCategory: make(map[models.Category]int),
	}
	totalsQuery := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_public),
			COUNT(*) FILTER (WHERE status = 'error'),
			COALESCE(SUM(word_count), 0),
			COALESCE(SUM(octet_length(raw_text)), 0)
		FROM documents` + where
	err := s.db.QueryRowContext(ctx, totalsQuery, args...).Scan(
		&stats.TotalDocuments,
		&stats.PublicDocuments,
		&stats.ErrorCount,
		&stats.TotalWords,
		&stats.TotalBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("document totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, type, category, COUNT(*) FROM documents`+where+` GROUP BY status, type, category`, args...)
	if err != nil {
		return nil, fmt.Errorf("document breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, docType, category string
		var count int
		if err := rows.Scan(&status, &docType, &category, &count); err != nil {
			return nil, fmt.Errorf("scan document breakdown: %w", err)
		}
		stats.ByStatus[models.Status(status)] += count
		stats.ByType[models.Type(docType)] += count
		stats.ByCategory[models.Category(category)] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document breakdown: %w", err)
	}
	return stats, nil
}

func (s *Postgres) AllTags(ctx context.Context, minUsage int) ([]ports.TagCount, error) {
	query := `
		SELECT tag, COUNT(*) AS usage
		FROM documents, unnest(tags) AS tag
		WHERE status <> $1
		GROUP BY tag
		HAVING COUNT(*) >= $2
		ORDER BY usage DESC, tag ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(models.StatusDeleted), minUsage)
	if err != nil {
		return nil, fmt.Errorf("all tags: %w", err)
	}
	defer rows.Close()

	var tags []ports.TagCount
	for rows.Next() {
		var tag ports.TagCount
		if err := rows.Scan(&tag.Tag, &tag.Count); err != nil {
			return nil, fmt.Errorf("scan tag count: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag counts: %w", err)
	}
	return tags, nil
}

func (s *Postgres) CleanupDeleted(ctx context.Context, deletedBefore time.Time) (int, error) {
	query := `DELETE FROM documents WHERE status = $1 AND updated_at < $2`
	result, err := s.db.ExecContext(ctx, query, string(models.StatusDeleted), deletedBefore)
	if err != nil {
		return 0, fmt.Errorf("cleanup deleted documents: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup deleted documents rows affected: %w", err)
	}
	return int(rows), nil
}

func buildDocumentFilter(filter ports.Filter) (string, []any) {
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
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.IsPublic != nil {
		args = append(args, *filter.IsPublic)
		conditions = append(conditions, fmt.Sprintf("is_public = $%d", len(args)))
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

func appendDocumentPagination(query string, args []any, limit, offset int) (string, []any) {
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

type documentRow interface {
	Scan(dest ...any) error
}

func scanDocument(row documentRow) (*models.Document, error) {
	var document models.Document
	var documentID uuid.UUID
	var userID int64
	var docType, category, status string

	err := row.Scan(
		&documentID,
		&userID,
		&document.Title,
		&document.Description,
		&document.RawText,
		&docType,
		&category,
		&status,
		pq.Array(&document.Tags),
		&document.IsPublic,
		&document.SourceURL,
		&document.FileName,
		&document.ContentHash,
		&document.WordCount,
		&document.CharacterCount,
		&document.CreatedAt,
		&document.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	document.ID = id.DocumentID(documentID)
	document.UserID = id.UserID(userID)
	document.Type = models.Type(docType)
	document.Category = models.Category(category)
	document.Status = models.Status(status)
	return &document, nil
}

func collectDocuments(rows *sql.Rows) ([]*models.Document, error) {
	documents := []*models.Document{}
	for rows.Next() {
		document, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, document)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return documents, nil
}

func isDocumentUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
