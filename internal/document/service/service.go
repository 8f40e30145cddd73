// Package service implements the document domain rules: upload limits,
// visibility, deduplication, and archive maintenance.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ali/internal/document/metrics"
	"ali/internal/document/models"
	"ali/internal/document/ports"
	usermodels "ali/internal/user/models"
	id "ali/pkg/domain"
	dErrors "ali/pkg/domain-errors"
	"ali/pkg/platform/audit"
	"ali/pkg/platform/sentinel"
)

// Type aliases for shared interfaces.
type (
	Store          = ports.Store
	UserReader     = ports.UserReader
	AuditPublisher = ports.AuditPublisher
)

// maxDocumentSizeMB caps the raw text size in megabytes per role.
var maxDocumentSizeMB = map[usermodels.Role]int{
	usermodels.RoleAdmin:  100,
	usermodels.RoleEditor: 50,
	usermodels.RoleViewer: 10,
	usermodels.RoleGuest:  5,
}

const defaultSizeCapMB = 5

// allowedDocumentTypes lists the types each role may create. Admins may
// create any type.
var allowedDocumentTypes = map[usermodels.Role][]models.Type{
	usermodels.RoleEditor: {models.TypePDF, models.TypeDOCX, models.TypeTXT, models.TypeManual, models.TypeUpload},
	usermodels.RoleViewer: {models.TypeTXT, models.TypeManual},
	usermodels.RoleGuest:  {models.TypeTXT, models.TypeManual},
}

// maxActiveDocuments caps active documents per role.
var maxActiveDocuments = map[usermodels.Role]int{
	usermodels.RoleAdmin:  10000,
	usermodels.RoleEditor: 1000,
	usermodels.RoleViewer: 100,
	usermodels.RoleGuest:  10,
}

const defaultDocumentQuota = 10

const archiveRetentionDays = 365

type Service struct {
	store          Store
	users          UserReader
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	clock          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(store Store, users UserReader, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user reader is required")
	}

	svc := &Service{
		store:  store,
		users:  users,
		logger: slog.Default(),
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// CreateParams carries the inputs for Create.
type CreateParams struct {
	UserID      id.UserID
	Title       string
	RawText     string
	Type        models.Type
	Category    models.Category
	Description string
	Tags        []string
	SourceURL   string
	FileName    string
}

// Create stores a new draft document after the role checks: size cap,
// allowed type, active-document quota, and per-user duplicate content. The
// quota check reads the current count and the create writes separately; two
// concurrent uploads can both pass the check.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Document, error) {
	user, err := s.getUser(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, dErrors.New(dErrors.CodeBusinessRuleViolation, "inactive users cannot create documents")
	}

	if err := checkSize(user.Role, len(params.RawText)); err != nil {
		s.metrics.IncrementIngestRejection("size")
		return nil, err
	}
	if err := checkType(user.Role, params.Type); err != nil {
		s.metrics.IncrementIngestRejection("type")
		return nil, err
	}
	if err := s.checkQuota(ctx, user); err != nil {
		s.metrics.IncrementIngestRejection("quota")
		return nil, err
	}
	if err := s.checkDuplicate(ctx, params.UserID, models.HashContent(params.RawText)); err != nil {
		s.metrics.IncrementIngestRejection("duplicate")
		return nil, err
	}

	now := s.clock().UTC()
	document, err := models.NewDocument(params.UserID, params.Title, params.RawText, params.Type, params.Category, now)
	if err != nil {
		return nil, err
	}
	if params.Description != "" {
		if err := document.SetDescription(params.Description, now); err != nil {
			return nil, err
		}
	}
	if len(params.Tags) > 0 {
		if err := document.SetTags(params.Tags, now); err != nil {
			return nil, err
		}
	}
	document.SourceURL = params.SourceURL
	document.FileName = params.FileName

	created, err := s.store.Create(ctx, document)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "create document")
	}

	s.metrics.ObserveIngest(string(created.Type), len(created.RawText))
	return created, nil
}

// Get returns a document the caller may access.
func (s *Service) Get(ctx context.Context, documentID id.DocumentID, userID id.UserID) (*models.Document, error) {
	document, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !document.CanBeAccessedBy(userID, string(user.Role)) {
		return nil, dErrors.Newf(dErrors.CodeDocumentAccessDenied, "user %d cannot access document %s", userID, documentID)
	}
	return document, nil
}

// List returns documents matching the filter.
func (s *Service) List(ctx context.Context, filter ports.Filter) ([]*models.Document, error) {
	documents, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "list documents")
	}
	return documents, nil
}

// UpdateContent replaces the raw text. The size cap and the per-user
// duplicate check apply as on create.
func (s *Service) UpdateContent(ctx context.Context, documentID id.DocumentID, userID id.UserID, rawText string) (*models.Document, error) {
	document, user, err := s.getEditableDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	if err := checkSize(user.Role, len(rawText)); err != nil {
		return nil, err
	}
	newHash := models.HashContent(rawText)
	if newHash != document.ContentHash {
		if err := s.checkDuplicate(ctx, document.UserID, newHash); err != nil {
			return nil, err
		}
	}

	document.UpdateContent(rawText, s.clock().UTC())

	updated, err := s.store.Update(ctx, document)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "update document content")
	}
	return updated, nil
}

// MetadataUpdate carries field-wise document changes. Nil fields are untouched.
type MetadataUpdate struct {
	Title       *string
	Description *string
	Tags        []string
}

// UpdateMetadata applies title, description, and tag changes.
func (s *Service) UpdateMetadata(ctx context.Context, documentID id.DocumentID, userID id.UserID, update MetadataUpdate) (*models.Document, error) {
	document, _, err := s.getEditableDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	if update.Title != nil {
		if err := document.Rename(*update.Title, now); err != nil {
			return nil, err
		}
	}
	if update.Description != nil {
		if err := document.SetDescription(*update.Description, now); err != nil {
			return nil, err
		}
	}
	if update.Tags != nil {
		if err := document.SetTags(update.Tags, now); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.Update(ctx, document)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "update document metadata")
	}
	return updated, nil
}

// Publish makes a document active and public.
func (s *Service) Publish(ctx context.Context, documentID id.DocumentID, userID id.UserID) (*models.Document, error) {
	document, _, err := s.getEditableDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	if err := document.Publish(s.clock().UTC()); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, document)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "publish document")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  string(audit.EventDocumentPublished),
		UserID:  userID,
		Subject: documentID.String(),
	})

	return updated, nil
}

// Unpublish withdraws a document from public access.
func (s *Service) Unpublish(ctx context.Context, documentID id.DocumentID, userID id.UserID) (*models.Document, error) {
	document, _, err := s.getEditableDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	document.Unpublish(s.clock().UTC())

	updated, err := s.store.Update(ctx, document)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "unpublish document")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  string(audit.EventDocumentUnpublished),
		UserID:  userID,
		Subject: documentID.String(),
	})

	return updated, nil
}

// Archive moves a document to the archived state.
func (s *Service) Archive(ctx context.Context, documentID id.DocumentID, userID id.UserID) (*models.Document, error) {
	document, _, err := s.getEditableDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	document.Archive(s.clock().UTC())

	updated, err := s.store.Update(ctx, document)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "archive document")
	}
	return updated, nil
}

// Delete soft deletes a document.
func (s *Service) Delete(ctx context.Context, documentID id.DocumentID, userID id.UserID) error {
	document, _, err := s.getEditableDocument(ctx, documentID, userID)
	if err != nil {
		return err
	}

	document.MarkDeleted(s.clock().UTC())
	if _, err := s.store.Update(ctx, document); err != nil {
		return dErrors.Wrap(err, dErrors.CodeRepository, "delete document")
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:  string(audit.EventDocumentDeleted),
		UserID:  userID,
		Subject: documentID.String(),
	})

	return nil
}

// Categorize sets the category and merges its automatic tags.
func (s *Service) Categorize(ctx context.Context, documentID id.DocumentID, userID id.UserID, category models.Category) (*models.Document, error) {
	if !category.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid document category: %s", category)
	}

	document, _, err := s.getEditableDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	document.Category = category
	if err := document.AddTags(category.AutoTags(), now); err != nil {
		return nil, err
	}
	document.UpdatedAt = now

	updated, err := s.store.Update(ctx, document)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "categorize document")
	}
	return updated, nil
}

// Search matches searchable documents. Admins search everything; other
// callers see their own documents plus public ones. Results are re-checked
// against the caller's access before being returned.
func (s *Service) Search(ctx context.Context, query string, userID id.UserID, limit, offset int) ([]*models.Document, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var scope *id.UserID
	if user.Role != usermodels.RoleAdmin {
		scope = &userID
	}

	start := s.clock()
	documents, err := s.store.Search(ctx, query, scope, limit, offset)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "search documents")
	}
	s.metrics.ObserveSearchLatency(time.Since(start))

	accessible := make([]*models.Document, 0, len(documents))
	for _, document := range documents {
		if document.CanBeAccessedBy(userID, string(user.Role)) {
			accessible = append(accessible, document)
		}
	}
	return accessible, nil
}

// DuplicateGroup is a set of documents sharing identical content.
type DuplicateGroup struct {
	ContentHash string          `json:"content_hash"`
	DocumentIDs []id.DocumentID `json:"document_ids"`
}

// DetectDuplicates groups non-deleted documents by content hash, optionally
// scoped to one user, and returns the groups with more than one member.
func (s *Service) DetectDuplicates(ctx context.Context, userID *id.UserID) ([]DuplicateGroup, error) {
	documents, err := s.store.List(ctx, ports.Filter{UserID: userID})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "list documents")
	}

	byHash := make(map[string][]id.DocumentID)
	for _, document := range documents {
		if document.Status == models.StatusDeleted || document.ContentHash == "" {
			continue
		}
		byHash[document.ContentHash] = append(byHash[document.ContentHash], document.ID)
	}

	var groups []DuplicateGroup
	for hash, ids := range byHash {
		if len(ids) > 1 {
			groups = append(groups, DuplicateGroup{ContentHash: hash, DocumentIDs: ids})
		}
	}
	return groups, nil
}

// BulkResult reports per-id outcomes of a bulk operation.
type BulkResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// BulkUpdateStatus applies a status change to many documents, best effort.
// Each document is checked against the caller's edit rights; failures are
// recorded and the remaining documents are still processed.
func (s *Service) BulkUpdateStatus(ctx context.Context, documentIDs []id.DocumentID, status models.Status, userID id.UserID) (*BulkResult, error) {
	if !status.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid document status: %s", status)
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	now := s.clock().UTC()

	for _, documentID := range documentIDs {
		document, ok := s.editableForBulk(ctx, documentID, user, result)
		if !ok {
			continue
		}

		switch status {
		case models.StatusArchived:
			document.Archive(now)
		case models.StatusDeleted:
			document.MarkDeleted(now)
		default:
			document.Status = status
			document.UpdatedAt = now
		}

		if _, err := s.store.Update(ctx, document); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("document %s: %v", documentID, err))
			continue
		}
		result.Success++
	}

	if status == models.StatusArchived && result.Success > 0 {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			Action: string(audit.EventDocumentsArchived),
			UserID: userID,
		}, "count", result.Success)
	}

	return result, nil
}

// BulkUpdateCategory recategorizes many documents, best effort, merging each
// category's automatic tags as Categorize does.
func (s *Service) BulkUpdateCategory(ctx context.Context, documentIDs []id.DocumentID, category models.Category, userID id.UserID) (*BulkResult, error) {
	if !category.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid document category: %s", category)
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	now := s.clock().UTC()

	for _, documentID := range documentIDs {
		document, ok := s.editableForBulk(ctx, documentID, user, result)
		if !ok {
			continue
		}

		document.Category = category
		if err := document.AddTags(category.AutoTags(), now); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("document %s: %v", documentID, err))
			continue
		}
		document.UpdatedAt = now

		if _, err := s.store.Update(ctx, document); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("document %s: %v", documentID, err))
			continue
		}
		result.Success++
	}

	return result, nil
}

// editableForBulk loads one document for a bulk operation, tallying lookup
// and permission failures on the result instead of aborting the batch.
func (s *Service) editableForBulk(ctx context.Context, documentID id.DocumentID, user *usermodels.User, result *BulkResult) (*models.Document, bool) {
	document, err := s.store.FindByID(ctx, documentID)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("document %s not found", documentID))
		return nil, false
	}
	if !document.CanBeEditedBy(user.ID, string(user.Role)) {
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("no edit access to document %s", documentID))
		return nil, false
	}
	return document, true
}

// ArchiveOldDocuments archives documents older than a year, skipping the
// excluded users.
func (s *Service) ArchiveOldDocuments(ctx context.Context, excludeUserIDs []id.UserID) (int, error) {
	cutoff := s.clock().UTC().AddDate(0, 0, -archiveRetentionDays)

	old, err := s.store.FindOld(ctx, cutoff, excludeUserIDs, 1000)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeRepository, "find old documents")
	}

	documentIDs := make([]id.DocumentID, 0, len(old))
	for _, document := range old {
		documentIDs = append(documentIDs, document.ID)
	}

	count, err := s.store.BulkUpdateStatus(ctx, documentIDs, models.StatusArchived)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeRepository, "archive old documents")
	}

	if count > 0 {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			Action: string(audit.EventDocumentsArchived),
		}, "count", count)
	}
	return count, nil
}

// Tags returns tags used at least minUsage times.
func (s *Service) Tags(ctx context.Context, minUsage int) ([]ports.TagCount, error) {
	if minUsage < 1 {
		minUsage = 1
	}
	tags, err := s.store.AllTags(ctx, minUsage)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "list tags")
	}
	return tags, nil
}

// Health bands for the document error rate.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// Analytics combines raw statistics with derived health signals.
type Analytics struct {
	ports.Statistics
	ContentHealth string `json:"content_health"`
}

// GetAnalytics aggregates statistics and classifies content health: an error
// rate under 1% is healthy, under 5% warning, otherwise critical.
func (s *Service) GetAnalytics(ctx context.Context, userID *id.UserID) (*Analytics, error) {
	stats, err := s.store.Statistics(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "document statistics")
	}

	health := HealthHealthy
	if stats.TotalDocuments > 0 {
		errorRate := float64(stats.ErrorCount) / float64(stats.TotalDocuments)
		switch {
		case errorRate < 0.01:
			health = HealthHealthy
		case errorRate < 0.05:
			health = HealthWarning
		default:
			health = HealthCritical
		}
	}

	return &Analytics{Statistics: *stats, ContentHealth: health}, nil
}

func checkSize(role usermodels.Role, sizeBytes int) error {
	capMB, ok := maxDocumentSizeMB[role]
	if !ok {
		capMB = defaultSizeCapMB
	}
	if sizeBytes > capMB*1024*1024 {
		return dErrors.Newf(dErrors.CodeDocumentTooLarge, "document exceeds %d MB limit", capMB)
	}
	return nil
}

func checkType(role usermodels.Role, docType models.Type) error {
	if !docType.Valid() {
		return dErrors.Newf(dErrors.CodeUnsupportedDocumentType, "invalid document type: %s", docType)
	}
	if role == usermodels.RoleAdmin {
		return nil
	}
	for _, allowed := range allowedDocumentTypes[role] {
		if docType == allowed {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeUnsupportedDocumentType, "role %s cannot create %s documents", role, docType)
}

func (s *Service) checkQuota(ctx context.Context, user *usermodels.User) error {
	quota, ok := maxActiveDocuments[user.Role]
	if !ok {
		quota = defaultDocumentQuota
	}

	status := models.StatusActive
	active, err := s.store.Count(ctx, ports.Filter{UserID: &user.ID, Status: &status})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeRepository, "count active documents")
	}
	if active >= quota {
		return dErrors.Newf(dErrors.CodeQuotaExceeded, "document quota exceeded: %d", quota)
	}
	return nil
}

func (s *Service) checkDuplicate(ctx context.Context, userID id.UserID, contentHash string) error {
	existing, err := s.store.FindByHash(ctx, contentHash, &userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeRepository, "check duplicate content")
	}
	if len(existing) > 0 {
		return dErrors.Newf(dErrors.CodeBusinessRuleViolation, "duplicate content: document %s has the same content", existing[0].ID)
	}
	return nil
}

func (s *Service) getEditableDocument(ctx context.Context, documentID id.DocumentID, userID id.UserID) (*models.Document, *usermodels.User, error) {
	document, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !document.CanBeEditedBy(userID, string(user.Role)) {
		return nil, nil, dErrors.Newf(dErrors.CodeDocumentAccessDenied, "user %d cannot edit document %s", userID, documentID)
	}
	return document, user, nil
}

func (s *Service) getDocument(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	document, err := s.store.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeDocumentNotFound, "document %s not found", documentID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "find document")
	}
	return document, nil
}

func (s *Service) getUser(ctx context.Context, userID id.UserID) (*usermodels.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeUserNotFound, "user %d not found", userID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeRepository, "find user")
	}
	return user, nil
}
