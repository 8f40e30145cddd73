// Package store provides message persistence adapters.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ali/internal/message/models"
	"ali/internal/message/ports"
	id "ali/pkg/domain"
	"ali/pkg/platform/sentinel"
)

// Memory is an in-memory message store. Safe for concurrent use; entities
// are copied on the way in and out.
type Memory struct {
	mu       sync.RWMutex
	messages map[id.MessageID]*models.Message
	clock    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		messages: make(map[id.MessageID]*models.Message),
		clock:    time.Now,
	}
}

func (s *Memory) Create(_ context.Context, message *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[message.ID]; exists {
		return nil, sentinel.ErrConflict
	}
	stored := cloneMessage(message)
	s.messages[message.ID] = stored
	return cloneMessage(stored), nil
}

func (s *Memory) FindByID(_ context.Context, messageID id.MessageID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	message, ok := s.messages[messageID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneMessage(message), nil
}

func (s *Memory) Update(_ context.Context, message *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[message.ID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	stored := cloneMessage(message)
	s.messages[message.ID] = stored
	return cloneMessage(stored), nil
}

func (s *Memory) Delete(_ context.Context, messageID id.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[messageID]
	if !ok {
		return sentinel.ErrNotFound
	}
	message.MarkDeleted(s.clock().UTC())
	return nil
}

func (s *Memory) ListBySession(_ context.Context, sessionID id.SessionID, filter ports.Filter) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchSession(sessionID, filter)
	return paginateMessages(matched, filter.Limit, filter.Offset), nil
}

func (s *Memory) CountBySession(_ context.Context, sessionID id.SessionID, filter ports.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.matchSession(sessionID, filter)), nil
}

func (s *Memory) ListByUser(_ context.Context, userID id.UserID, from, to *time.Time, limit, offset int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Message
	for _, message := range s.messages {
		if message.UserID != userID || message.IsDeleted() {
			continue
		}
		if from != nil && message.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && message.CreatedAt.After(*to) {
			continue
		}
		matched = append(matched, message)
	}
	sortMessages(matched, true)
	return paginateMessages(matched, limit, offset), nil
}

func (s *Memory) CountByUserSince(_ context.Context, userID id.UserID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, message := range s.messages {
		if message.UserID != userID || message.Role != models.RoleUser || message.IsDeleted() {
			continue
		}
		if message.CreatedAt.Before(since) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *Memory) Search(_ context.Context, query string, sessionID *id.SessionID, userID *id.UserID, limit, offset int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(query)
	var matched []*models.Message
	for _, message := range s.messages {
		if message.IsDeleted() {
			continue
		}
		if sessionID != nil && message.SessionID != *sessionID {
			continue
		}
		if userID != nil && message.UserID != *userID {
			continue
		}
		if !strings.Contains(strings.ToLower(message.Content), query) {
			continue
		}
		matched = append(matched, message)
	}
	sortMessages(matched, true)
	return paginateMessages(matched, limit, offset), nil
}

func (s *Memory) ConversationContext(_ context.Context, sessionID id.SessionID, beforeMessageID *id.MessageID, size int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cutoff *time.Time
	if beforeMessageID != nil {
		anchor, ok := s.messages[*beforeMessageID]
		if !ok {
			return nil, sentinel.ErrNotFound
		}
		t := anchor.CreatedAt
		cutoff = &t
	}

	var matched []*models.Message
	for _, message := range s.messages {
		if message.SessionID != sessionID || message.Status != models.StatusCompleted {
			continue
		}
		if cutoff != nil && !message.CreatedAt.Before(*cutoff) {
			continue
		}
		matched = append(matched, message)
	}
	sortMessages(matched, true)
	if size > 0 && size < len(matched) {
		matched = matched[:size]
	}
	sortMessages(matched, false)
	return paginateMessages(matched, 0, 0), nil
}

func (s *Memory) Statistics(_ context.Context, userID *id.UserID, sessionID *id.SessionID, from, to *time.Time) (*ports.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ports.Statistics{
		ByRole:   make(map[models.Role]int),
		ByStatus: make(map[models.Status]int),
	}
	var responseTimeSum float64
	var responseTimeCount int
	for _, message := range s.messages {
		if userID != nil && message.UserID != *userID {
			continue
		}
		if sessionID != nil && message.SessionID != *sessionID {
			continue
		}
		if from != nil && message.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && message.CreatedAt.After(*to) {
			continue
		}
		stats.TotalMessages++
		stats.ByRole[message.Role]++
		stats.ByStatus[message.Status]++
		stats.TotalTokens += message.Metadata.TokensUsed
		if message.Status == models.StatusError {
			stats.ErrorCount++
		}
		if message.Metadata.ProcessingTime > 0 {
			responseTimeSum += message.Metadata.ProcessingTime
			responseTimeCount++
		}
	}
	if stats.TotalMessages > 0 {
		stats.AvgTokensPerMsg = float64(stats.TotalTokens) / float64(stats.TotalMessages)
	}
	if responseTimeCount > 0 {
		stats.AvgResponseTime = responseTimeSum / float64(responseTimeCount)
	}
	return stats, nil
}

func (s *Memory) BulkUpdateStatus(_ context.Context, messageIDs []id.MessageID, status models.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	now := s.clock().UTC()
	for _, messageID := range messageIDs {
		message, ok := s.messages[messageID]
		if !ok {
			continue
		}
		message.Status = status
		message.UpdatedAt = now
		updated++
	}
	return updated, nil
}

func (s *Memory) TokenUsageByDay(_ context.Context, userID *id.UserID, from, to time.Time) ([]ports.TokenUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[string]*ports.TokenUsage)
	for _, message := range s.messages {
		if userID != nil && message.UserID != *userID {
			continue
		}
		if message.IsDeleted() || message.CreatedAt.Before(from) || message.CreatedAt.After(to) {
			continue
		}
		day := message.CreatedAt.UTC().Format("2006-01-02")
		bucket, ok := buckets[day]
		if !ok {
			bucket = &ports.TokenUsage{Period: day}
			buckets[day] = bucket
		}
		bucket.Tokens += message.Metadata.TokensUsed
		bucket.Messages++
	}

	usage := make([]ports.TokenUsage, 0, len(buckets))
	for _, bucket := range buckets {
		usage = append(usage, *bucket)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].Period < usage[j].Period })
	return usage, nil
}

func (s *Memory) FindErrors(_ context.Context, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Message
	for _, message := range s.messages {
		if message.Status == models.StatusError {
			matched = append(matched, message)
		}
	}
	sortMessages(matched, true)
	return paginateMessages(matched, limit, 0), nil
}

func (s *Memory) FindHighTokenUsage(_ context.Context, threshold int, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Message
	for _, message := range s.messages {
		if message.Status == models.StatusCompleted && message.Metadata.TokensUsed >= threshold {
			matched = append(matched, message)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Metadata.TokensUsed > matched[j].Metadata.TokensUsed
	})
	return paginateMessages(matched, limit, 0), nil
}

func (s *Memory) ArchiveOld(_ context.Context, createdBefore time.Time, excludeSessionIDs []id.SessionID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	excluded := make(map[id.SessionID]struct{}, len(excludeSessionIDs))
	for _, sessionID := range excludeSessionIDs {
		excluded[sessionID] = struct{}{}
	}

	archived := 0
	now := s.clock().UTC()
	for _, message := range s.messages {
		if message.IsDeleted() || !message.CreatedAt.Before(createdBefore) {
			continue
		}
		if _, skip := excluded[message.SessionID]; skip {
			continue
		}
		message.MarkDeleted(now)
		archived++
	}
	return archived, nil
}

func (s *Memory) CleanupDeleted(_ context.Context, deletedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for messageID, message := range s.messages {
		if message.IsDeleted() && message.UpdatedAt.Before(deletedBefore) {
			delete(s.messages, messageID)
			removed++
		}
	}
	return removed, nil
}

func (s *Memory) matchSession(sessionID id.SessionID, filter ports.Filter) []*models.Message {
	var matched []*models.Message
	for _, message := range s.messages {
		if message.SessionID != sessionID {
			continue
		}
		if filter.Status == nil && message.IsDeleted() {
			continue
		}
		if filter.Role != nil && message.Role != *filter.Role {
			continue
		}
		if filter.Status != nil && message.Status != *filter.Status {
			continue
		}
		matched = append(matched, message)
	}
	sortMessages(matched, filter.NewestFirst)
	return matched
}

func sortMessages(messages []*models.Message, newestFirst bool) {
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			if newestFirst {
				return messages[i].ID.String() > messages[j].ID.String()
			}
			return messages[i].ID.String() < messages[j].ID.String()
		}
		if newestFirst {
			return messages[i].CreatedAt.After(messages[j].CreatedAt)
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

func paginateMessages(messages []*models.Message, limit, offset int) []*models.Message {
	if offset >= len(messages) {
		return []*models.Message{}
	}
	messages = messages[offset:]
	if limit > 0 && limit < len(messages) {
		messages = messages[:limit]
	}
	out := make([]*models.Message, len(messages))
	for i, message := range messages {
		out[i] = cloneMessage(message)
	}
	return out
}

func cloneMessage(message *models.Message) *models.Message {
	clone := *message
	clone.Metadata.ContextDocuments = append([]string(nil), message.Metadata.ContextDocuments...)
	if message.Metadata.Confidence != nil {
		c := *message.Metadata.Confidence
		clone.Metadata.Confidence = &c
	}
	return &clone
}
