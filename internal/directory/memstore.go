package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemStore is an in-memory Store used by tests and local development.
// It enforces the same uniqueness constraints as the Mongo implementation.
type MemStore struct {
	mu      sync.Mutex
	users   map[string]User // keyed by external id
	deleted map[string]bool // deletion tombstones
}

// NewMemStore returns an empty in-memory directory.
func NewMemStore() *MemStore {
	return &MemStore{
		users:   make(map[string]User),
		deleted: make(map[string]bool),
	}
}

func (s *MemStore) FindByExternalID(_ context.Context, externalID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) Insert(_ context.Context, u User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ExternalID]; ok {
		return nil, ErrDuplicateExternalID
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return nil, ErrDuplicateEmail
		}
	}

	if u.Role == "" {
		u.Role = RoleCustomer
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.ID = bson.NewObjectID()
	s.users[u.ExternalID] = u
	return &u, nil
}

func (s *MemStore) Rekey(_ context.Context, oldExternalID, newExternalID string, overrides ProfileOverrides) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.users[oldExternalID]
	if !ok {
		if cur, ok := s.users[newExternalID]; ok {
			return &cur, nil
		}
		return nil, ErrNotFound
	}

	merged := old
	merged.ExternalID = newExternalID
	overrides.Apply(&merged)

	delete(s.users, oldExternalID)
	s.users[newExternalID] = merged
	return &merged, nil
}

func (s *MemStore) UpdateProfile(_ context.Context, externalID string, patch ProfilePatch) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Email != nil && *patch.Email != "" {
		// Same uniqueness constraint the Mongo index enforces.
		for id, other := range s.users {
			if id != externalID && other.Email == *patch.Email {
				return nil, ErrDuplicateEmail
			}
		}
	}
	patch.Apply(&u)
	s.users[externalID] = u
	return &u, nil
}

func (s *MemStore) Delete(_ context.Context, externalID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.users, externalID)
	return &u, nil
}

func (s *MemStore) List(_ context.Context, f ListFilter) ([]User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []User
	for _, u := range s.users {
		if f.ExternalID != "" && u.ExternalID != f.ExternalID {
			continue
		}
		if f.Email != "" && u.Email != f.Email {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if f.Skip > 0 {
		if f.Skip >= total {
			return nil, total, nil
		}
		matched = matched[f.Skip:]
	}
	if int64(len(matched)) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *MemStore) MarkDeleted(_ context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[externalID] = true
	return nil
}

func (s *MemStore) WasDeleted(_ context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted[externalID], nil
}

// Count reports how many users the store holds.
func (s *MemStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}
