package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"topdivers/backend/internal/invoicing"
	"topdivers/backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func (r *Repository) CreateCoupon(ctx context.Context, in models.CouponInput) (models.Coupon, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO coupons (code, activity, discount_percentage, can_used_up_to, user_limit, is_active, expire_date)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, code, activity, discount_percentage, can_used_up_to, user_limit, used_count, is_active, expire_date, created_at, updated_at;`,
		strings.ToUpper(strings.TrimSpace(in.Code)),
		strings.ToLower(strings.TrimSpace(in.Activity)),
		in.DiscountPercentage,
		in.CanUsedUpTo,
		in.UserLimit,
		in.IsActive,
		nullTimePtr(in.ExpireDate),
	)
	coupon, err := scanCoupon(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Coupon{}, ErrCouponCodeTaken
		}
		return models.Coupon{}, err
	}
	return coupon, nil
}

func (r *Repository) CouponByID(ctx context.Context, id int64) (models.Coupon, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, code, activity, discount_percentage, can_used_up_to, user_limit, used_count, is_active, expire_date, created_at, updated_at
FROM coupons
WHERE id = $1;`, id)
	coupon, err := scanCoupon(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Coupon{}, invoicing.ErrCouponNotFound
	}
	return coupon, err
}

func (r *Repository) CouponByCode(ctx context.Context, code string) (models.Coupon, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, code, activity, discount_percentage, can_used_up_to, user_limit, used_count, is_active, expire_date, created_at, updated_at
FROM coupons
WHERE lower(code) = lower($1);`, strings.TrimSpace(code))
	coupon, err := scanCoupon(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Coupon{}, invoicing.ErrCouponNotFound
	}
	return coupon, err
}

func (r *Repository) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, code, activity, discount_percentage, can_used_up_to, user_limit, used_count, is_active, expire_date, created_at, updated_at
FROM coupons
ORDER BY created_at DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.Coupon, 0)
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, coupon)
	}
	return items, rows.Err()
}

func (r *Repository) UpdateCoupon(ctx context.Context, id int64, patch models.CouponPatch) (models.Coupon, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE coupons
SET activity = COALESCE($2, activity),
	discount_percentage = COALESCE($3, discount_percentage),
	can_used_up_to = COALESCE($4, can_used_up_to),
	user_limit = COALESCE($5, user_limit),
	is_active = COALESCE($6, is_active),
	expire_date = COALESCE($7, expire_date),
	updated_at = now()
WHERE id = $1
RETURNING id, code, activity, discount_percentage, can_used_up_to, user_limit, used_count, is_active, expire_date, created_at, updated_at;`,
		id,
		lowerPtrOrNil(patch.Activity),
		patch.DiscountPercentage,
		nullIntPtr(patch.CanUsedUpTo),
		nullIntPtr(patch.UserLimit),
		patch.IsActive,
		nullTimePtr(patch.ExpireDate),
	)
	coupon, err := scanCoupon(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Coupon{}, invoicing.ErrCouponNotFound
	}
	return coupon, err
}

func (r *Repository) DeleteCoupon(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return invoicing.ErrCouponNotFound
	}
	return nil
}

// CouponUserUsageCount reports how many times the user has consumed the
// coupon. Missing rows count as zero.
func (r *Repository) CouponUserUsageCount(ctx context.Context, couponID, userID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
SELECT used_count
FROM coupon_usages
WHERE coupon_id = $1 AND user_id = $2;`, couponID, userID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) CouponStats(ctx context.Context, id int64) (models.CouponStats, error) {
	coupon, err := r.CouponByID(ctx, id)
	if err != nil {
		return models.CouponStats{}, err
	}

	rows, err := r.pool.Query(ctx, `
SELECT coupon_id, user_id, used_count, updated_at
FROM coupon_usages
WHERE coupon_id = $1
ORDER BY updated_at DESC;`, id)
	if err != nil {
		return models.CouponStats{}, err
	}
	defer rows.Close()

	users := make([]models.CouponUserUsage, 0)
	for rows.Next() {
		var usage models.CouponUserUsage
		if err := rows.Scan(&usage.CouponID, &usage.UserID, &usage.UsageCount, &usage.LastUsedAt); err != nil {
			return models.CouponStats{}, err
		}
		users = append(users, usage)
	}
	if err := rows.Err(); err != nil {
		return models.CouponStats{}, err
	}

	return models.CouponStats{
		Coupon:    coupon,
		Remaining: coupon.Remaining(),
		Users:     users,
	}, nil
}

func scanCoupon(row pgx.Row) (models.Coupon, error) {
	var out models.Coupon
	var expireDate sql.NullTime
	if err := row.Scan(
		&out.ID,
		&out.Code,
		&out.Activity,
		&out.DiscountPercentage,
		&out.CanUsedUpTo,
		&out.UserLimit,
		&out.UsedCount,
		&out.IsActive,
		&expireDate,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return out, err
	}
	out.ExpireDate = nullTimeToPtr(expireDate)
	return out, nil
}

func lowerPtrOrNil(val *string) interface{} {
	if val == nil {
		return nil
	}
	return strings.ToLower(strings.TrimSpace(*val))
}

func isUniqueViolation(err error) bool {
	pgErr, ok := err.(*pgconn.PgError)
	return ok && pgErr.Code == "23505"
}
