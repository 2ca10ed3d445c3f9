package audit

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// BunStore is the bun-backed audit store.
type BunStore struct {
	db *bun.DB
}

// NewBunStore creates an audit store on the given database handle.
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// Save writes the record in its own transaction. The triggering business
// operation's transaction, if any, is never touched: a rollback there cannot
// erase the record, and a failure here cannot roll back the business work.
func (s *BunStore) Save(ctx context.Context, rec *Record) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(rec).Exec(ctx)
		return err
	})
	if err != nil {
		return errors.Wrap(err, "BunStore.Save")
	}
	return nil
}

func (s *BunStore) Query(ctx context.Context, f Filter) (*Page, error) {
	f = f.Normalize()

	q := s.db.NewSelect().Model((*Record)(nil))
	q = applyFilter(q, f)

	total, err := q.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "BunStore.Query count")
	}

	var records []*Record
	q = s.db.NewSelect().Model(&records)
	q = applyFilter(q, f)
	err = q.Order("initiated_at DESC").
		Limit(f.Size).
		Offset((f.Page - 1) * f.Size).
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "BunStore.Query scan")
	}

	return NewPage(records, f, total), nil
}

func applyFilter(q *bun.SelectQuery, f Filter) *bun.SelectQuery {
	if f.ActorEmail != "" {
		q = q.Where("lower(actor_email) LIKE lower(?)", "%"+f.ActorEmail+"%")
	}
	if f.ActorName != "" {
		q = q.Where("lower(actor_name) LIKE lower(?)", "%"+f.ActorName+"%")
	}
	if f.Action != "" {
		q = q.Where("action_type = ?", f.Action)
	}
	if f.Resource != "" {
		q = q.Where("resource_type = ?", f.Resource)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if !f.From.IsZero() {
		q = q.Where("initiated_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("initiated_at <= ?", f.To)
	}
	if f.Search != "" {
		q = q.Where("lower(description) LIKE lower(?)", "%"+f.Search+"%")
	}
	return q
}
