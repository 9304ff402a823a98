package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"topdivers/backend/internal/invoicing"
	"topdivers/backend/internal/models"
	"topdivers/backend/internal/pricing"

	"github.com/jackc/pgx/v5"
)

func (r *Repository) CreateInvoice(ctx context.Context, params models.CreateInvoiceParams) (models.Invoice, error) {
	var out models.Invoice
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		return r.createInvoiceTx(ctx, tx, params, &out)
	})
	if err != nil {
		return models.Invoice{}, err
	}
	return out, nil
}

func (r *Repository) createInvoiceTx(ctx context.Context, tx pgx.Tx, params models.CreateInvoiceParams, out *models.Invoice) error {
	invoice := params.Invoice

	if params.ConsumeCoupon && invoice.CouponCode != "" {
		if err := consumeCouponTx(ctx, tx, invoice.CouponCode, invoice.Activity, invoice.UserID); err != nil {
			return err
		}
	}

	var detailsRaw interface{}
	if invoice.ActivityDetails != nil {
		encoded, err := json.Marshal(invoice.ActivityDetails)
		if err != nil {
			return err
		}
		detailsRaw = encoded
	}
	var breakdownRaw interface{}
	if invoice.DiscountBreakdown != nil {
		encoded, err := json.Marshal(invoice.DiscountBreakdown)
		if err != nil {
			return err
		}
		breakdownRaw = encoded
	}

	row := tx.QueryRow(ctx, `
INSERT INTO invoices (
	user_id, buyer_name, buyer_email, buyer_phone, description, activity, activity_details,
	amount, currency, coupon_code, discount_amount, discount_breakdown, invoice_type,
	status, pay_url, payment_method, customer_reference, easykash_reference, picked_up
) VALUES (
	$1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12::jsonb, $13, $14, $15, $16, $17, $18, $19
)
RETURNING id, user_id, buyer_name, buyer_email, buyer_phone, description, activity, activity_details, amount, currency, coupon_code, discount_amount, discount_breakdown, invoice_type, status, pay_url, payment_method, customer_reference, easykash_reference, picked_up, created_at, updated_at;`,
		invoice.UserID,
		invoice.BuyerName,
		invoice.BuyerEmail,
		invoice.BuyerPhone,
		nullString(invoice.Description),
		invoice.Activity,
		detailsRaw,
		invoice.Amount,
		invoice.Currency,
		nullString(strings.ToUpper(strings.TrimSpace(invoice.CouponCode))),
		invoice.DiscountAmount,
		breakdownRaw,
		invoice.InvoiceType,
		invoice.Status,
		nullString(invoice.PayURL),
		nullString(invoice.PaymentMethod),
		nullString(invoice.CustomerReference),
		nullString(invoice.EasykashReference),
		invoice.PickedUp,
	)
	created, err := scanInvoice(row)
	if err != nil {
		return err
	}

	if params.Job != nil {
		job := *params.Job
		job.InvoiceID = &created.ID
		if _, err := createNotificationJobTx(ctx, tx, job); err != nil {
			return err
		}
	}

	*out = created
	return nil
}

// consumeCouponTx re-validates the coupon under lock and advances its
// counters. Rolling back the surrounding transaction releases the use.
func consumeCouponTx(ctx context.Context, tx pgx.Tx, code, activity string, userID int64) error {
	row := tx.QueryRow(ctx, `
SELECT id, code, activity, discount_percentage, can_used_up_to, user_limit, used_count, is_active, expire_date, created_at, updated_at
FROM coupons
WHERE lower(code) = lower($1)
FOR UPDATE;`, strings.TrimSpace(code))
	coupon, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invoicing.ErrCouponNotFound
		}
		return err
	}

	var userUsage int
	err = tx.QueryRow(ctx, `
SELECT used_count
FROM coupon_usages
WHERE coupon_id = $1 AND user_id = $2
FOR UPDATE;`, coupon.ID, userID).Scan(&userUsage)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	if err := pricing.ValidateCoupon(coupon, activity, userUsage, time.Now().UTC()); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
UPDATE coupons
SET used_count = used_count + 1, updated_at = now()
WHERE id = $1;`, coupon.ID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO coupon_usages (coupon_id, user_id, used_count)
VALUES ($1, $2, 1)
ON CONFLICT (coupon_id, user_id) DO UPDATE SET
	used_count = coupon_usages.used_count + 1,
	updated_at = now();`, coupon.ID, userID)
	return err
}

func (r *Repository) InvoiceByID(ctx context.Context, id int64) (models.Invoice, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, buyer_name, buyer_email, buyer_phone, description, activity, activity_details, amount, currency, coupon_code, discount_amount, discount_breakdown, invoice_type, status, pay_url, payment_method, customer_reference, easykash_reference, picked_up, created_at, updated_at
FROM invoices
WHERE id = $1;`, id)
	invoice, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Invoice{}, invoicing.ErrInvoiceNotFound
	}
	return invoice, err
}

func (r *Repository) InvoiceByCustomerReference(ctx context.Context, reference string) (models.Invoice, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, buyer_name, buyer_email, buyer_phone, description, activity, activity_details, amount, currency, coupon_code, discount_amount, discount_breakdown, invoice_type, status, pay_url, payment_method, customer_reference, easykash_reference, picked_up, created_at, updated_at
FROM invoices
WHERE customer_reference = $1;`, strings.TrimSpace(reference))
	invoice, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Invoice{}, invoicing.ErrInvoiceNotFound
	}
	return invoice, err
}

func (r *Repository) LastInvoiceForUser(ctx context.Context, userID int64) (models.Invoice, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, buyer_name, buyer_email, buyer_phone, description, activity, activity_details, amount, currency, coupon_code, discount_amount, discount_breakdown, invoice_type, status, pay_url, payment_method, customer_reference, easykash_reference, picked_up, created_at, updated_at
FROM invoices
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT 1;`, userID)
	invoice, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Invoice{}, invoicing.ErrInvoiceNotFound
	}
	return invoice, err
}

func (r *Repository) ListInvoices(ctx context.Context, filter models.InvoiceListFilter) ([]models.Invoice, int, error) {
	status := strings.ToUpper(strings.TrimSpace(filter.Status))
	search := strings.TrimSpace(filter.Search)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	skip := filter.Skip
	if skip < 0 {
		skip = 0
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
SELECT count(*)
FROM invoices
WHERE ($1::bigint IS NULL OR user_id = $1)
	AND ($2::text = '' OR status = $2)
	AND ($3::text = '' OR buyer_name ILIKE '%' || $3 || '%' OR buyer_email ILIKE '%' || $3 || '%' OR customer_reference ILIKE '%' || $3 || '%');`,
		filter.UserID, status, search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, buyer_name, buyer_email, buyer_phone, description, activity, activity_details, amount, currency, coupon_code, discount_amount, discount_breakdown, invoice_type, status, pay_url, payment_method, customer_reference, easykash_reference, picked_up, created_at, updated_at
FROM invoices
WHERE ($1::bigint IS NULL OR user_id = $1)
	AND ($2::text = '' OR status = $2)
	AND ($3::text = '' OR buyer_name ILIKE '%' || $3 || '%' OR buyer_email ILIKE '%' || $3 || '%' OR customer_reference ILIKE '%' || $3 || '%')
ORDER BY created_at DESC
LIMIT $4 OFFSET $5;`, filter.UserID, status, search, limit, skip)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]models.Invoice, 0)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SettleInvoice moves a pending invoice to a terminal status with a single
// compare-and-set, so concurrent webhook deliveries settle at most once.
func (r *Repository) SettleInvoice(ctx context.Context, params models.SettleInvoiceParams) (models.Invoice, error) {
	status, ok := invoicing.ParseStatus(params.Status)
	if !ok || !invoicing.StatusPending.CanTransitionTo(status) {
		return models.Invoice{}, invoicing.ErrInvoiceStateNotAllowed
	}

	var out models.Invoice
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
UPDATE invoices
SET status = $2,
	easykash_reference = COALESCE(NULLIF($3, ''), easykash_reference),
	payment_method = COALESCE(NULLIF($4, ''), payment_method),
	updated_at = now()
WHERE id = $1 AND status = $5
RETURNING id, user_id, buyer_name, buyer_email, buyer_phone, description, activity, activity_details, amount, currency, coupon_code, discount_amount, discount_breakdown, invoice_type, status, pay_url, payment_method, customer_reference, easykash_reference, picked_up, created_at, updated_at;`,
			params.InvoiceID,
			string(status),
			strings.TrimSpace(params.EasykashReference),
			strings.TrimSpace(params.PaymentMethod),
			string(invoicing.StatusPending),
		)
		updated, err := scanInvoice(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				var exists bool
				if checkErr := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM invoices WHERE id = $1)`, params.InvoiceID).Scan(&exists); checkErr != nil {
					return checkErr
				}
				if !exists {
					return invoicing.ErrInvoiceNotFound
				}
				return invoicing.ErrInvoiceStateNotAllowed
			}
			return err
		}

		if params.Job != nil {
			job := *params.Job
			job.InvoiceID = &updated.ID
			if _, err := createNotificationJobTx(ctx, tx, job); err != nil {
				return err
			}
		}

		out = updated
		return nil
	})
	if err != nil {
		return models.Invoice{}, err
	}
	return out, nil
}

func (r *Repository) UpdateInvoiceAdmin(ctx context.Context, id int64, patch models.InvoiceAdminPatch) (models.Invoice, error) {
	var out models.Invoice
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var currentRaw string
		var detailsJSON []byte
		if err := tx.QueryRow(ctx, `
SELECT status, activity_details
FROM invoices
WHERE id = $1
FOR UPDATE;`, id).Scan(&currentRaw, &detailsJSON); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return invoicing.ErrInvoiceNotFound
			}
			return err
		}

		var nextStatus interface{}
		if patch.Status != nil {
			current, ok := invoicing.ParseStatus(currentRaw)
			if !ok {
				return invoicing.ErrInvoiceStateNotAllowed
			}
			next, ok := invoicing.ParseStatus(*patch.Status)
			if !ok {
				return invoicing.ErrInvoiceStateNotAllowed
			}
			if next != current {
				if !current.CanTransitionTo(next) {
					return invoicing.ErrInvoiceStateNotAllowed
				}
				nextStatus = string(next)
			}
		}

		var detailsRaw interface{}
		if patch.PickupLocation != nil || patch.PickupTime != nil {
			var details models.ActivityDetails
			if len(detailsJSON) > 0 {
				_ = json.Unmarshal(detailsJSON, &details)
			}
			if patch.PickupLocation != nil {
				details.PickupLocation = *patch.PickupLocation
			}
			if patch.PickupTime != nil {
				details.PickupTime = *patch.PickupTime
			}
			encoded, err := json.Marshal(details)
			if err != nil {
				return err
			}
			detailsRaw = encoded
		}

		row := tx.QueryRow(ctx, `
UPDATE invoices
SET buyer_name = COALESCE($2, buyer_name),
	buyer_email = COALESCE($3, buyer_email),
	buyer_phone = COALESCE($4, buyer_phone),
	description = COALESCE($5, description),
	payment_method = COALESCE($6, payment_method),
	status = COALESCE($7, status),
	picked_up = COALESCE($8, picked_up),
	activity_details = COALESCE($9::jsonb, activity_details),
	updated_at = now()
WHERE id = $1
RETURNING id, user_id, buyer_name, buyer_email, buyer_phone, description, activity, activity_details, amount, currency, coupon_code, discount_amount, discount_breakdown, invoice_type, status, pay_url, payment_method, customer_reference, easykash_reference, picked_up, created_at, updated_at;`,
			id,
			patch.BuyerName,
			patch.BuyerEmail,
			patch.BuyerPhone,
			patch.Description,
			patch.PaymentMethod,
			nextStatus,
			patch.PickedUp,
			detailsRaw,
		)
		updated, err := scanInvoice(row)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return models.Invoice{}, err
	}
	return out, nil
}

func (r *Repository) SetInvoicePickedUp(ctx context.Context, id int64, pickedUp bool) (models.Invoice, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE invoices
SET picked_up = $2, updated_at = now()
WHERE id = $1
RETURNING id, user_id, buyer_name, buyer_email, buyer_phone, description, activity, activity_details, amount, currency, coupon_code, discount_amount, discount_breakdown, invoice_type, status, pay_url, payment_method, customer_reference, easykash_reference, picked_up, created_at, updated_at;`, id, pickedUp)
	invoice, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Invoice{}, invoicing.ErrInvoiceNotFound
	}
	return invoice, err
}

func (r *Repository) DeleteInvoice(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return invoicing.ErrInvoiceNotFound
	}
	return nil
}

// InvoiceSummary aggregates counts and amounts across all invoices, or a
// single user's when userID is set.
func (r *Repository) InvoiceSummary(ctx context.Context, userID *int64) (models.InvoiceSummary, error) {
	rows, err := r.pool.Query(ctx, `
SELECT status, amount
FROM invoices
WHERE ($1::bigint IS NULL OR user_id = $1);`, userID)
	if err != nil {
		return models.InvoiceSummary{}, err
	}
	defer rows.Close()

	summaryRows := make([]invoicing.SummaryRow, 0)
	for rows.Next() {
		var row invoicing.SummaryRow
		if err := rows.Scan(&row.Status, &row.Amount); err != nil {
			return models.InvoiceSummary{}, err
		}
		summaryRows = append(summaryRows, row)
	}
	if err := rows.Err(); err != nil {
		return models.InvoiceSummary{}, err
	}

	return invoicing.AggregateSummary(summaryRows), nil
}

func scanInvoice(row pgx.Row) (models.Invoice, error) {
	var out models.Invoice
	var description sql.NullString
	var detailsRaw []byte
	var couponCode sql.NullString
	var breakdownRaw []byte
	var payURL sql.NullString
	var paymentMethod sql.NullString
	var customerRef sql.NullString
	var easykashRef sql.NullString
	if err := row.Scan(
		&out.ID,
		&out.UserID,
		&out.BuyerName,
		&out.BuyerEmail,
		&out.BuyerPhone,
		&description,
		&out.Activity,
		&detailsRaw,
		&out.Amount,
		&out.Currency,
		&couponCode,
		&out.DiscountAmount,
		&breakdownRaw,
		&out.InvoiceType,
		&out.Status,
		&payURL,
		&paymentMethod,
		&customerRef,
		&easykashRef,
		&out.PickedUp,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return out, err
	}
	if description.Valid {
		out.Description = description.String
	}
	if len(detailsRaw) > 0 {
		var details models.ActivityDetails
		_ = json.Unmarshal(detailsRaw, &details)
		out.ActivityDetails = &details
	}
	if couponCode.Valid {
		out.CouponCode = couponCode.String
	}
	if len(breakdownRaw) > 0 {
		var breakdown models.DiscountBreakdown
		_ = json.Unmarshal(breakdownRaw, &breakdown)
		out.DiscountBreakdown = &breakdown
	}
	if payURL.Valid {
		out.PayURL = payURL.String
	}
	if paymentMethod.Valid {
		out.PaymentMethod = paymentMethod.String
	}
	if customerRef.Valid {
		out.CustomerReference = customerRef.String
	}
	if easykashRef.Valid {
		out.EasykashReference = easykashRef.String
	}
	return out, nil
}
