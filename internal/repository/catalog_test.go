package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"topdivers/backend/internal/db"
	"topdivers/backend/internal/invoicing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TestTripByID verifies trip lookup behavior including nullable fields.
func TestTripByID(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}
	defer pool.Close()

	repo := New(pool)
	tripID, err := insertCatalogTestTrip(ctx, pool)
	if err != nil {
		t.Fatalf("insert trip: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM trips WHERE id = $1`, tripID)
	})

	trip, err := repo.TripByID(ctx, tripID)
	if err != nil {
		t.Fatalf("TripByID(): %v", err)
	}
	if trip.Name != "Catalog Test Trip" {
		t.Fatalf("expected fixture trip, got %s", trip.Name)
	}
	if !trip.AdultPrice.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("expected adult price 250, got %s", trip.AdultPrice)
	}
	if trip.DiscountMinPeople == nil || *trip.DiscountMinPeople != 4 {
		t.Fatalf("expected discount_min_people=4, got %v", trip.DiscountMinPeople)
	}
	if trip.Duration != nil {
		t.Fatalf("expected nil duration, got %v", trip.Duration)
	}

	trips, err := repo.ListTrips(ctx)
	if err != nil {
		t.Fatalf("ListTrips(): %v", err)
	}
	var listed bool
	for _, item := range trips {
		if item.ID == tripID {
			listed = true
		}
	}
	if !listed {
		t.Fatal("fixture trip missing from list")
	}

	if _, err := repo.TripByID(ctx, -1); !errors.Is(err, invoicing.ErrTripNotFound) {
		t.Fatalf("expected ErrTripNotFound, got %v", err)
	}
}

// TestCourseByID verifies course lookup behavior including nullable fields.
func TestCourseByID(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}
	defer pool.Close()

	repo := New(pool)
	courseID, err := insertCatalogTestCourse(ctx, pool)
	if err != nil {
		t.Fatalf("insert course: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM courses WHERE id = $1`, courseID)
	})

	course, err := repo.CourseByID(ctx, courseID)
	if err != nil {
		t.Fatalf("CourseByID(): %v", err)
	}
	if course.Name != "Catalog Test Course" {
		t.Fatalf("expected fixture course, got %s", course.Name)
	}
	if !course.Price.Equal(decimal.NewFromInt(3500)) {
		t.Fatalf("expected price 3500, got %s", course.Price)
	}
	if course.Level != "beginner" || course.Provider != "PADI" {
		t.Fatalf("course metadata not round-tripped: %+v", course)
	}
	if course.Duration == nil || *course.Duration != 3 {
		t.Fatalf("expected duration 3, got %v", course.Duration)
	}

	if _, err := repo.CourseByID(ctx, -1); !errors.Is(err, invoicing.ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
}

func insertCatalogTestTrip(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var id int64
	err := pool.QueryRow(ctx, `
INSERT INTO trips (name, description, adult_price, child_price, child_allowed, max_people,
	has_discount, discount_always_available, discount_requires_min_people, discount_min_people, discount_percentage)
VALUES ('Catalog Test Trip', 'Two dives at Ras Mohammed', 250, 125, true, 20, true, false, true, 4, 10)
RETURNING id;`).Scan(&id)
	return id, err
}

func insertCatalogTestCourse(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var id int64
	err := pool.QueryRow(ctx, `
INSERT INTO courses (name, description, price_available, price, level, type, provider, duration, duration_unit,
	has_discount, discount_always_available, discount_requires_min_people, discount_min_people, discount_percentage)
VALUES ('Catalog Test Course', 'Open water certification', true, 3500, 'beginner', 'certification', 'PADI', 3, 'days',
	false, false, false, NULL, 0)
RETURNING id;`).Scan(&id)
	return id, err
}
