package storage

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/idphub/identity-gateway/audit"
	"github.com/idphub/identity-gateway/users"
)

// Open opens the SQLite-backed bun handle at the given DSN and ensures the
// gateway's tables exist.
func Open(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "storage.Open")
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func createTables(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*users.User)(nil),
		(*audit.Record)(nil),
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return errors.Wrap(err, "storage.createTables")
		}
	}
	return nil
}
