// Package store provides session persistence adapters.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ali/internal/session/models"
	"ali/internal/session/ports"
	id "ali/pkg/domain"
	"ali/pkg/platform/sentinel"
)

// Memory is an in-memory session store. Safe for concurrent use; entities
// are copied on the way in and out.
type Memory struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
	clock    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[id.SessionID]*models.Session),
		clock:    time.Now,
	}
}

func (s *Memory) Create(_ context.Context, session *models.Session) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return nil, sentinel.ErrConflict
	}
	stored := cloneSession(session)
	s.sessions[session.ID] = stored
	return cloneSession(stored), nil
}

func (s *Memory) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *Memory) Update(_ context.Context, session *models.Session) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	stored := cloneSession(session)
	s.sessions[session.ID] = stored
	return cloneSession(stored), nil
}

func (s *Memory) Delete(_ context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	session.MarkDeleted(s.clock().UTC())
	return nil
}

func (s *Memory) List(_ context.Context, filter ports.Filter) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.match(filter)
	return paginateSessions(matched, filter.Limit, filter.Offset), nil
}

func (s *Memory) Count(_ context.Context, filter ports.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.match(filter)), nil
}

func (s *Memory) Search(_ context.Context, query string, userID *id.UserID, limit, offset int) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(query)
	var matched []*models.Session
	for _, session := range s.sessions {
		if userID != nil && session.UserID != *userID {
			continue
		}
		if session.Status == models.StatusDeleted {
			continue
		}
		if !strings.Contains(strings.ToLower(session.Name), query) {
			continue
		}
		matched = append(matched, session)
	}
	sortSessionsNewestFirst(matched)
	return paginateSessions(matched, limit, offset), nil
}

func (s *Memory) FindInactive(_ context.Context, inactiveSince time.Time, limit int) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Session
	for _, session := range s.sessions {
		if session.Status != models.StatusActive {
			continue
		}
		last := session.UpdatedAt
		if session.Stats.LastActivity != nil {
			last = *session.Stats.LastActivity
		}
		if last.Before(inactiveSince) {
			matched = append(matched, session)
		}
	}
	sortSessionsNewestFirst(matched)
	return paginateSessions(matched, limit, 0), nil
}

func (s *Memory) RecordMessage(_ context.Context, sessionID id.SessionID, tokensUsed int, responseTime float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	session.RecordMessage(tokensUsed, responseTime, s.clock().UTC())
	return nil
}

func (s *Memory) BulkUpdateStatus(_ context.Context, sessionIDs []id.SessionID, status models.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	now := s.clock().UTC()
	for _, sessionID := range sessionIDs {
		session, ok := s.sessions[sessionID]
		if !ok {
			continue
		}
		session.Status = status
		session.UpdatedAt = now
		updated++
	}
	return updated, nil
}

func (s *Memory) Statistics(_ context.Context, userID *id.UserID, from, to *time.Time) (*ports.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ports.Statistics{ByType: make(map[models.Type]int)}
	var responseTimeSum float64
	var responseTimeCount int
	for _, session := range s.sessions {
		if userID != nil && session.UserID != *userID {
			continue
		}
		if from != nil && session.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && session.CreatedAt.After(*to) {
			continue
		}
		stats.TotalSessions++
		stats.ByType[session.Type]++
		stats.TotalMessages += session.Stats.MessageCount
		stats.TotalTokens += session.Stats.TotalTokensUsed
		switch session.Status {
		case models.StatusActive:
			stats.ActiveSessions++
		case models.StatusArchived:
			stats.ArchivedSessions++
		}
		if session.Stats.AvgResponseTime > 0 {
			responseTimeSum += session.Stats.AvgResponseTime
			responseTimeCount++
		}
	}
	if responseTimeCount > 0 {
		stats.AvgResponseTime = responseTimeSum / float64(responseTimeCount)
	}
	return stats, nil
}

func (s *Memory) CleanupDeleted(_ context.Context, deletedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sessionID, session := range s.sessions {
		if session.Status == models.StatusDeleted && session.UpdatedAt.Before(deletedBefore) {
			delete(s.sessions, sessionID)
			removed++
		}
	}
	return removed, nil
}

func (s *Memory) match(filter ports.Filter) []*models.Session {
	var matched []*models.Session
	for _, session := range s.sessions {
		if filter.UserID != nil && session.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && session.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && session.Type != *filter.Type {
			continue
		}
		matched = append(matched, session)
	}
	sortSessionsNewestFirst(matched)
	return matched
}

func sortSessionsNewestFirst(sessions []*models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID.String() > sessions[j].ID.String()
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}

func paginateSessions(sessions []*models.Session, limit, offset int) []*models.Session {
	if offset >= len(sessions) {
		return []*models.Session{}
	}
	sessions = sessions[offset:]
	if limit > 0 && limit < len(sessions) {
		sessions = sessions[:limit]
	}
	out := make([]*models.Session, len(sessions))
	for i, session := range sessions {
		out[i] = cloneSession(session)
	}
	return out
}

func cloneSession(session *models.Session) *models.Session {
	clone := *session
	if session.Stats.LastActivity != nil {
		t := *session.Stats.LastActivity
		clone.Stats.LastActivity = &t
	}
	return &clone
}
