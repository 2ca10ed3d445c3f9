package users

import "context"

// Repo is the external user store consulted during login and refresh.
type Repo interface {
	Upsert(ctx context.Context, user *User) error
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
