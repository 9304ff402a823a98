package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCouponCodeTaken reports a coupon insert that collided with an existing
// code. Lookup and state errors come from the invoicing package.
var ErrCouponCodeTaken = errors.New("coupon code already taken")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func nullString(val string) interface{} {
	if val == "" {
		return nil
	}
	return val
}

func nullIntPtr(val *int) interface{} {
	if val == nil {
		return nil
	}
	return *val
}

func nullTimePtr(val *time.Time) interface{} {
	if val == nil {
		return nil
	}
	return *val
}

func nullTimeToPtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time
	return &t
}

func nullInt32ToIntPtr(val sql.NullInt32) *int {
	if !val.Valid {
		return nil
	}
	value := int(val.Int32)
	return &value
}
