// Package store provides document persistence adapters.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ali/internal/document/models"
	"ali/internal/document/ports"
	id "ali/pkg/domain"
	"ali/pkg/platform/sentinel"
)

// Memory is an in-memory document store. Safe for concurrent use; entities
// are copied on the way in and out.
type Memory struct {
	mu        sync.RWMutex
	documents map[id.DocumentID]*models.Document
	clock     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		documents: make(map[id.DocumentID]*models.Document),
		clock:     time.Now,
	}
}

func (s *Memory) Create(_ context.Context, document *models.Document) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[document.ID]; exists {
		return nil, sentinel.ErrConflict
	}
	stored := cloneDocument(document)
	s.documents[document.ID] = stored
	return cloneDocument(stored), nil
}

func (s *Memory) FindByID(_ context.Context, documentID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	document, ok := s.documents[documentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneDocument(document), nil
}

func (s *Memory) Update(_ context.Context, document *models.Document) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[document.ID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	stored := cloneDocument(document)
	s.documents[document.ID] = stored
	return cloneDocument(stored), nil
}

func (s *Memory) Delete(_ context.Context, documentID id.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	document, ok := s.documents[documentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	document.MarkDeleted(s.clock().UTC())
	return nil
}

func (s *Memory) List(_ context.Context, filter ports.Filter) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.match(filter)
	return paginateDocuments(matched, filter.Limit, filter.Offset), nil
}

func (s *Memory) Count(_ context.Context, filter ports.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.match(filter)), nil
}

func (s *Memory) Search(_ context.Context, query string, userID *id.UserID, limit, offset int) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(query)
	var matched []*models.Document
	for _, document := range s.documents {
		if !document.IsSearchable() {
			continue
		}
		if userID != nil && document.UserID != *userID && !document.IsPublic {
			continue
		}
		if !documentMatchesQuery(document, query) {
			continue
		}
		matched = append(matched, document)
	}
	sortDocumentsNewestFirst(matched)
	return paginateDocuments(matched, limit, offset), nil
}

func (s *Memory) FindByHash(_ context.Context, contentHash string, userID *id.UserID) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Document
	for _, document := range s.documents {
		if document.Status == models.StatusDeleted {
			continue
		}
		if document.ContentHash != contentHash {
			continue
		}
		if userID != nil && document.UserID != *userID {
			continue
		}
		matched = append(matched, document)
	}
	sortDocumentsNewestFirst(matched)
	return paginateDocuments(matched, 0, 0), nil
}

func (s *Memory) BulkUpdateStatus(_ context.Context, documentIDs []id.DocumentID, status models.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	now := s.clock().UTC()
	for _, documentID := range documentIDs {
		document, ok := s.documents[documentID]
		if !ok {
			continue
		}
		document.Status = status
		if status == models.StatusArchived || status == models.StatusDeleted {
			document.IsPublic = false
		}
		document.UpdatedAt = now
		updated++
	}
	return updated, nil
}

func (s *Memory) FindOld(_ context.Context, createdBefore time.Time, excludeUserIDs []id.UserID, limit int) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	excluded := make(map[id.UserID]struct{}, len(excludeUserIDs))
	for _, userID := range excludeUserIDs {
		excluded[userID] = struct{}{}
	}

	var matched []*models.Document
	for _, document := range s.documents {
		if document.Status == models.StatusDeleted || document.Status == models.StatusArchived {
			continue
		}
		if !document.CreatedAt.Before(createdBefore) {
			continue
		}
		if _, skip := excluded[document.UserID]; skip {
			continue
		}
		matched = append(matched, document)
	}
	sortDocumentsNewestFirst(matched)
	return paginateDocuments(matched, limit, 0), nil
}

func (s *Memory) Statistics(_ context.Context, userID *id.UserID) (*ports.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ports.Statistics{
		ByStatus:   make(map[models.Status]int),
		ByType:     make(map[models.Type]int),
		ByCategory: make(map[models.Category]int),
	}
	for _, document := range s.documents {
		if userID != nil && document.UserID != *userID {
			continue
		}
		stats.TotalDocuments++
		stats.ByStatus[document.Status]++
		stats.ByType[document.Type]++
		stats.ByCategory[document.Category]++
		stats.TotalWords += document.WordCount
		stats.TotalBytes += document.SizeBytes()
		if document.IsPublic {
			stats.PublicDocuments++
		}
		if document.Status == models.StatusError {
			stats.ErrorCount++
		}
	}
	return stats, nil
}

func (s *Memory) AllTags(_ context.Context, minUsage int) ([]ports.TagCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, document := range s.documents {
		if document.Status == models.StatusDeleted {
			continue
		}
		for _, tag := range document.Tags {
			counts[tag]++
		}
	}

	var tags []ports.TagCount
	for tag, count := range counts {
		if count >= minUsage {
			tags = append(tags, ports.TagCount{Tag: tag, Count: count})
		}
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count == tags[j].Count {
			return tags[i].Tag < tags[j].Tag
		}
		return tags[i].Count > tags[j].Count
	})
	return tags, nil
}

func (s *Memory) CleanupDeleted(_ context.Context, deletedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for documentID, document := range s.documents {
		if document.Status == models.StatusDeleted && document.UpdatedAt.Before(deletedBefore) {
			delete(s.documents, documentID)
			removed++
		}
	}
	return removed, nil
}

func (s *Memory) match(filter ports.Filter) []*models.Document {
	var matched []*models.Document
	for _, document := range s.documents {
		if filter.UserID != nil && document.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && document.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && document.Type != *filter.Type {
			continue
		}
		if filter.Category != nil && document.Category != *filter.Category {
			continue
		}
		if filter.IsPublic != nil && document.IsPublic != *filter.IsPublic {
			continue
		}
		matched = append(matched, document)
	}
	sortDocumentsNewestFirst(matched)
	return matched
}

func documentMatchesQuery(document *models.Document, query string) bool {
	if strings.Contains(strings.ToLower(document.Title), query) {
		return true
	}
	if strings.Contains(strings.ToLower(document.Description), query) {
		return true
	}
	for _, tag := range document.Tags {
		if strings.Contains(tag, query) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(document.RawText), query)
}

func sortDocumentsNewestFirst(documents []*models.Document) {
	sort.Slice(documents, func(i, j int) bool {
		if documents[i].CreatedAt.Equal(documents[j].CreatedAt) {
			return documents[i].ID.String() > documents[j].ID.String()
		}
		return documents[i].CreatedAt.After(documents[j].CreatedAt)
	})
}

func paginateDocuments(documents []*models.Document, limit, offset int) []*models.Document {
	if offset >= len(documents) {
		return []*models.Document{}
	}
	documents = documents[offset:]
	if limit > 0 && limit < len(documents) {
		documents = documents[:limit]
	}
	out := make([]*models.Document, len(documents))
	for i, document := range documents {
		out[i] = cloneDocument(document)
	}
	return out
}

func cloneDocument(document *models.Document) *models.Document {
	clone := *document
	clone.Tags = append([]string(nil), document.Tags...)
	return &clone
}
