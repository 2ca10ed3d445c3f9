package users

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	ierrors "github.com/idphub/identity-gateway/internal/errors"
)

// BunRepo is the bun-backed user store.
type BunRepo struct {
	db *bun.DB
}

// NewBunRepo creates a user store on the given database handle.
func NewBunRepo(db *bun.DB) *BunRepo {
	return &BunRepo{db: db}
}

func (r *BunRepo) Upsert(ctx context.Context, user *User) error {
	_, err := r.db.NewInsert().
		Model(user).
		On("CONFLICT (external_id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("display_name = EXCLUDED.display_name").
		Set("last_seen_at = EXCLUDED.last_seen_at").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "BunRepo.Upsert")
	}
	return nil
}

func (r *BunRepo) GetByExternalID(ctx context.Context, externalID string) (*User, error) {
	return r.getWhere(ctx, "external_id = ?", externalID)
}

func (r *BunRepo) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getWhere(ctx, "id = ?", id)
}

func (r *BunRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getWhere(ctx, "email = ?", email)
}

func (r *BunRepo) getWhere(ctx context.Context, clause string, arg any) (*User, error) {
	user := new(User)
	err := r.db.NewSelect().Model(user).Where(clause, arg).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ierrors.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "BunRepo.getWhere")
	}
	return user, nil
}
