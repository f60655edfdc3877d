package account

import (
	"context"
	"sort"
	"sync"
	"time"

	"staffdesk.org/internal/auth"
)

// InMemory is a Store backed by a map. Used by the memory backend and tests.
type InMemory struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[string]Profile)}
}

func (s *InMemory) UpsertProfile(ctx context.Context, p Profile) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.profiles[p.UID]; ok && !existing.CreatedAt.IsZero() {
		p.CreatedAt = existing.CreatedAt
	}
	s.profiles[p.UID] = p
	return p, nil
}

func (s *InMemory) GetProfile(ctx context.Context, uid string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[uid]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	return p, nil
}

func (s *InMemory) UpdateProfile(ctx context.Context, uid string, upd ProfileUpdate, at time.Time) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	p.FirstName = upd.FirstName
	p.LastName = upd.LastName
	p.PhotoURL = upd.PhotoURL
	p.UpdatedAt = at
	s.profiles[uid] = p
	return p, nil
}

func (s *InMemory) SetProfileRole(ctx context.Context, uid string, role auth.Role, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[uid]
	if !ok {
		return ErrProfileNotFound
	}
	p.Role = role
	p.UpdatedAt = at
	s.profiles[uid] = p
	return nil
}

func (s *InMemory) ListProfilesByRole(ctx context.Context, role auth.Role) ([]Profile, error) {
	all, err := s.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(all))
	for _, p := range all {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemory) ListProfiles(ctx context.Context) ([]Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UID < out[j].UID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
