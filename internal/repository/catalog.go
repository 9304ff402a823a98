package repository

import (
	"context"
	"database/sql"
	"errors"

	"topdivers/backend/internal/invoicing"
	"topdivers/backend/internal/models"

	"github.com/jackc/pgx/v5"
)

func (r *Repository) ListTrips(ctx context.Context) ([]models.Trip, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, name, description, adult_price, child_price, child_allowed, max_people,
	has_discount, discount_always_available, discount_requires_min_people, discount_min_people,
	discount_percentage, duration, duration_unit, created_at, updated_at
FROM trips
ORDER BY created_at DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.Trip, 0)
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, trip)
	}
	return items, rows.Err()
}

func (r *Repository) TripByID(ctx context.Context, id int64) (models.Trip, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, name, description, adult_price, child_price, child_allowed, max_people,
	has_discount, discount_always_available, discount_requires_min_people, discount_min_people,
	discount_percentage, duration, duration_unit, created_at, updated_at
FROM trips
WHERE id = $1;`, id)
	trip, err := scanTrip(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Trip{}, invoicing.ErrTripNotFound
	}
	return trip, err
}

func (r *Repository) ListCourses(ctx context.Context) ([]models.Course, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, name, description, price_available, price, level, type, provider,
	duration, duration_unit, has_discount, discount_always_available,
	discount_requires_min_people, discount_min_people, discount_percentage, created_at, updated_at
FROM courses
ORDER BY created_at DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.Course, 0)
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, course)
	}
	return items, rows.Err()
}

func (r *Repository) CourseByID(ctx context.Context, id int64) (models.Course, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, name, description, price_available, price, level, type, provider,
	duration, duration_unit, has_discount, discount_always_available,
	discount_requires_min_people, discount_min_people, discount_percentage, created_at, updated_at
FROM courses
WHERE id = $1;`, id)
	course, err := scanCourse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Course{}, invoicing.ErrCourseNotFound
	}
	return course, err
}

func scanTrip(row pgx.Row) (models.Trip, error) {
	var out models.Trip
	var description sql.NullString
	var minPeople sql.NullInt32
	var duration sql.NullInt32
	var durationUnit sql.NullString
	if err := row.Scan(
		&out.ID,
		&out.Name,
		&description,
		&out.AdultPrice,
		&out.ChildPrice,
		&out.ChildAllowed,
		&out.MaxPeople,
		&out.HasDiscount,
		&out.DiscountAlwaysAvailable,
		&out.DiscountRequiresMinPeople,
		&minPeople,
		&out.DiscountPercentage,
		&duration,
		&durationUnit,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return out, err
	}
	if description.Valid {
		out.Description = description.String
	}
	out.DiscountMinPeople = nullInt32ToIntPtr(minPeople)
	out.Duration = nullInt32ToIntPtr(duration)
	if durationUnit.Valid {
		out.DurationUnit = durationUnit.String
	}
	return out, nil
}

func scanCourse(row pgx.Row) (models.Course, error) {
	var out models.Course
	var description sql.NullString
	var level sql.NullString
	var courseType sql.NullString
	var provider sql.NullString
	var duration sql.NullInt32
	var durationUnit sql.NullString
	var minPeople sql.NullInt32
	if err := row.Scan(
		&out.ID,
		&out.Name,
		&description,
		&out.PriceAvailable,
		&out.Price,
		&level,
		&courseType,
		&provider,
		&duration,
		&durationUnit,
		&out.HasDiscount,
		&out.DiscountAlwaysAvailable,
		&out.DiscountRequiresMinPeople,
		&minPeople,
		&out.DiscountPercentage,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return out, err
	}
	if description.Valid {
		out.Description = description.String
	}
	if level.Valid {
		out.Level = level.String
	}
	if courseType.Valid {
		out.Type = courseType.String
	}
	if provider.Valid {
		out.Provider = provider.String
	}
	out.Duration = nullInt32ToIntPtr(duration)
	if durationUnit.Valid {
		out.DurationUnit = durationUnit.String
	}
	out.DiscountMinPeople = nullInt32ToIntPtr(minPeople)
	return out, nil
}
