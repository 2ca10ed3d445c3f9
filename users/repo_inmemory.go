package users

import (
	"context"
	"sync"

	"github.com/idphub/identity-gateway/internal/errors"
)

// InMemoryRepo is a map-backed Repo used by tests and the zero-config dev mode.
type InMemoryRepo struct {
	mu    sync.RWMutex
	byID  map[string]*User
	byExt map[string]string // external id -> internal id
}

// NewInMemoryRepo creates an empty in-memory user store.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		byID:  make(map[string]*User),
		byExt: make(map[string]string),
	}
}

func (r *InMemoryRepo) Upsert(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *user
	r.byID[user.ID] = &copied
	r.byExt[user.ExternalID] = user.ID
	return nil
}

func (r *InMemoryRepo) GetByExternalID(_ context.Context, externalID string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byExt[externalID]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	copied := *r.byID[id]
	return &copied, nil
}

func (r *InMemoryRepo) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *InMemoryRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.byID {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, errors.ErrUserNotFound
}
