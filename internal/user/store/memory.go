// Package store provides user persistence adapters.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ali/internal/user/models"
	"ali/internal/user/ports"
	id "ali/pkg/domain"
	"ali/pkg/platform/sentinel"
)

// Memory is an in-memory user store. Safe for concurrent use; entities are
// copied on the way in and out so callers cannot alias internal state.
type Memory struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
	nextID  int64
}

func NewMemory() *Memory {
	return &Memory{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
		nextID:  1,
	}
}

func (s *Memory) Create(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return nil, sentinel.ErrConflict
	}

	stored := cloneUser(user)
	stored.ID = id.UserID(s.nextID)
	s.nextID++
	s.users[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID
	return cloneUser(stored), nil
}

func (s *Memory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(user), nil
}

func (s *Memory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byEmail[email]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(s.users[userID]), nil
}

func (s *Memory) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *Memory) Update(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if existing.Email != user.Email {
		if _, taken := s.byEmail[user.Email]; taken {
			return nil, sentinel.ErrConflict
		}
		delete(s.byEmail, existing.Email)
		s.byEmail[user.Email] = user.ID
	}
	stored := cloneUser(user)
	s.users[user.ID] = stored
	return cloneUser(stored), nil
}

func (s *Memory) Delete(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	user.Status = models.StatusDeleted
	user.IsActive = false
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Memory) List(_ context.Context, filter ports.Filter) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.match(filter)
	return paginateUsers(matched, filter.Limit, filter.Offset), nil
}

func (s *Memory) Count(_ context.Context, filter ports.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.match(filter)), nil
}

func (s *Memory) Search(_ context.Context, query string, limit, offset int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.match(ports.Filter{Query: query})
	return paginateUsers(matched, limit, offset), nil
}

func (s *Memory) FindUnverified(_ context.Context, createdBefore time.Time, limit int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.User
	for _, user := range s.users {
		if !user.IsVerified && user.CreatedAt.Before(createdBefore) {
			matched = append(matched, user)
		}
	}
	sortUsersNewestFirst(matched)
	return paginateUsers(matched, limit, 0), nil
}

func (s *Memory) BulkUpdateStatus(_ context.Context, userIDs []id.UserID, status models.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	now := time.Now().UTC()
	for _, userID := range userIDs {
		user, ok := s.users[userID]
		if !ok {
			continue
		}
		user.Status = status
		user.IsActive = status == models.StatusActive
		user.UpdatedAt = now
		updated++
	}
	return updated, nil
}

func (s *Memory) Statistics(_ context.Context) (*ports.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ports.Statistics{
		ByStatus: make(map[models.Status]int),
		ByRole:   make(map[models.Role]int),
	}
	for _, user := range s.users {
		stats.TotalUsers++
		stats.ByStatus[user.Status]++
		stats.ByRole[user.Role]++
		if user.IsVerified {
			stats.VerifiedUsers++
		}
	}
	return stats, nil
}

// match applies the filter under a held read lock.
func (s *Memory) match(filter ports.Filter) []*models.User {
	query := strings.ToLower(filter.Query)
	var matched []*models.User
	for _, user := range s.users {
		if filter.Status != nil && user.Status != *filter.Status {
			continue
		}
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.IsVerified != nil && user.IsVerified != *filter.IsVerified {
			continue
		}
		if query != "" && !userMatchesQuery(user, query) {
			continue
		}
		matched = append(matched, user)
	}
	sortUsersNewestFirst(matched)
	return matched
}

func userMatchesQuery(user *models.User, query string) bool {
	return strings.Contains(strings.ToLower(user.Email), query) ||
		strings.Contains(strings.ToLower(user.Profile.FirstName), query) ||
		strings.Contains(strings.ToLower(user.Profile.LastName), query)
}

func sortUsersNewestFirst(users []*models.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID > users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
}

func paginateUsers(users []*models.User, limit, offset int) []*models.User {
	if offset >= len(users) {
		return []*models.User{}
	}
	users = users[offset:]
	if limit > 0 && limit < len(users) {
		users = users[:limit]
	}
	out := make([]*models.User, len(users))
	for i, u := range users {
		out[i] = cloneUser(u)
	}
	return out
}

func cloneUser(user *models.User) *models.User {
	clone := *user
	clone.Permissions = append([]string(nil), user.Permissions...)
	if user.LastLogin != nil {
		t := *user.LastLogin
		clone.LastLogin = &t
	}
	return &clone
}
