package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"topdivers/backend/internal/models"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", value, err)
	}
	return d
}

// TestQuoteTripSequentialDiscounts verifies that the coupon percentage
// applies to the remainder after the group discount, not to the base price.
func TestQuoteTripSequentialDiscounts(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	trip := models.Trip{
		Name:                    "Ras Mohammed",
		AdultPrice:              dec(t, "50"),
		ChildPrice:              dec(t, "20"),
		ChildAllowed:            true,
		MaxPeople:               10,
		HasDiscount:             true,
		DiscountAlwaysAvailable: true,
		DiscountPercentage:      dec(t, "10"),
	}
	coupon := models.Coupon{
		Code:               "SAVE10",
		Activity:           models.ActivityTrip,
		DiscountPercentage: dec(t, "10"),
		CanUsedUpTo:        100,
		IsActive:           true,
	}

	quote, err := QuoteTrip(trip, TripBooking{Adults: 2, Children: 1}, &coupon, 0, now)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if !quote.Breakdown.BasePrice.Equal(dec(t, "120")) {
		t.Fatalf("expected base 120, got %s", quote.Breakdown.BasePrice)
	}
	if quote.Breakdown.GroupDiscount == nil || !quote.Breakdown.GroupDiscount.Amount.Equal(dec(t, "12")) {
		t.Fatalf("expected group discount 12, got %+v", quote.Breakdown.GroupDiscount)
	}
	if quote.Breakdown.CouponDiscount == nil || !quote.Breakdown.CouponDiscount.Amount.Equal(dec(t, "10.8")) {
		t.Fatalf("expected coupon discount 10.8, got %+v", quote.Breakdown.CouponDiscount)
	}
	if !quote.FinalPrice.Equal(dec(t, "97.2")) {
		t.Fatalf("expected final 97.2, got %s", quote.FinalPrice)
	}
	if !quote.TotalDiscount.Equal(dec(t, "22.8")) {
		t.Fatalf("expected total discount 22.8, got %s", quote.TotalDiscount)
	}
	if !AmountWithinTolerance(dec(t, "97"), quote.FinalPrice, dec(t, "1.0")) {
		t.Fatal("submitted 97 must pass the tolerance check against 97.2")
	}
}

// TestQuoteTripTenPlusTenIsEightyOne verifies the sequential rule on a
// 100-unit base: 10% then 10% leaves 81, not 80.
func TestQuoteTripTenPlusTenIsEightyOne(t *testing.T) {
	trip := models.Trip{
		Name:                    "Blue Hole",
		AdultPrice:              dec(t, "100"),
		ChildPrice:              dec(t, "0"),
		MaxPeople:               4,
		HasDiscount:             true,
		DiscountAlwaysAvailable: true,
		DiscountPercentage:      dec(t, "10"),
	}
	coupon := models.Coupon{
		Code:               "DIVE10",
		Activity:           models.ActivityAll,
		DiscountPercentage: dec(t, "10"),
		CanUsedUpTo:        5,
		IsActive:           true,
	}
	quote, err := QuoteTrip(trip, TripBooking{Adults: 1}, &coupon, 0, time.Now().UTC())
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if !quote.FinalPrice.Equal(dec(t, "81")) {
		t.Fatalf("expected final 81, got %s", quote.FinalPrice)
	}
}

func TestQuoteTripParticipantRules(t *testing.T) {
	trip := models.Trip{
		Name:         "Thistlegorm",
		AdultPrice:   dec(t, "80"),
		ChildPrice:   dec(t, "40"),
		ChildAllowed: false,
		MaxPeople:    3,
	}

	cases := []struct {
		name    string
		booking TripBooking
		reason  string
	}{
		{"no adults", TripBooking{Adults: 0, Children: 1}, ReasonAdultsRequired},
		{"negative children", TripBooking{Adults: 1, Children: -1}, ReasonInvalidParticipants},
		{"children on adult-only trip", TripBooking{Adults: 1, Children: 1}, ReasonChildrenNotAllowed},
		{"over capacity", TripBooking{Adults: 4}, ReasonCapacityExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := QuoteTrip(trip, tc.booking, nil, 0, time.Now().UTC())
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("expected pricing error, got %v", err)
			}
			if perr.Reason != tc.reason {
				t.Fatalf("expected reason %s, got %s", tc.reason, perr.Reason)
			}
		})
	}
}

// TestQuoteTripFloorsAtZero verifies the final price never goes negative.
func TestQuoteTripFloorsAtZero(t *testing.T) {
	trip := models.Trip{
		Name:       "House Reef",
		AdultPrice: dec(t, "30"),
		ChildPrice: dec(t, "0"),
		MaxPeople:  2,
	}
	coupon := models.Coupon{
		Code:               "FREEDIVE",
		Activity:           models.ActivityTrip,
		DiscountPercentage: dec(t, "100"),
		CanUsedUpTo:        1,
		IsActive:           true,
	}
	quote, err := QuoteTrip(trip, TripBooking{Adults: 1}, &coupon, 0, time.Now().UTC())
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if !quote.FinalPrice.Equal(decimal.Zero) {
		t.Fatalf("expected final 0, got %s", quote.FinalPrice)
	}
	if !quote.TotalDiscount.Equal(dec(t, "30")) {
		t.Fatalf("expected total discount 30, got %s", quote.TotalDiscount)
	}
}

// TestQuoteBoundsHold verifies 0 <= final <= base across discount shapes.
func TestQuoteBoundsHold(t *testing.T) {
	now := time.Now().UTC()
	minPeople := 4
	trips := []models.Trip{
		{Name: "plain", AdultPrice: dec(t, "55.5"), ChildPrice: dec(t, "25"), ChildAllowed: true, MaxPeople: 12},
		{Name: "always", AdultPrice: dec(t, "55.5"), ChildPrice: dec(t, "25"), ChildAllowed: true, MaxPeople: 12, HasDiscount: true, DiscountAlwaysAvailable: true, DiscountPercentage: dec(t, "15")},
		{Name: "min-people", AdultPrice: dec(t, "55.5"), ChildPrice: dec(t, "25"), ChildAllowed: true, MaxPeople: 12, HasDiscount: true, DiscountRequiresMinPeople: true, DiscountMinPeople: &minPeople, DiscountPercentage: dec(t, "20")},
	}
	coupon := models.Coupon{
		Code:               "REEF5",
		Activity:           models.ActivityAll,
		DiscountPercentage: dec(t, "5.5"),
		CanUsedUpTo:        50,
		IsActive:           true,
	}
	bookings := []TripBooking{{Adults: 1}, {Adults: 2, Children: 2}, {Adults: 5, Children: 3}}

	for _, trip := range trips {
		for _, booking := range bookings {
			for _, withCoupon := range []bool{false, true} {
				var c *models.Coupon
				if withCoupon {
					c = &coupon
				}
				quote, err := QuoteTrip(trip, booking, c, 0, now)
				if err != nil {
					t.Fatalf("quote %s %+v: %v", trip.Name, booking, err)
				}
				if quote.FinalPrice.IsNegative() {
					t.Fatalf("final price negative: %s", quote.FinalPrice)
				}
				if quote.FinalPrice.GreaterThan(quote.Breakdown.BasePrice) {
					t.Fatalf("final %s exceeds base %s", quote.FinalPrice, quote.Breakdown.BasePrice)
				}
				if !quote.TotalDiscount.Equal(quote.Breakdown.BasePrice.Sub(quote.FinalPrice)) {
					t.Fatalf("discount %s != base - final", quote.TotalDiscount)
				}
			}
		}
	}
}

// TestQuoteTripMinPeopleGate verifies the min-people discount only applies
// from the threshold up.
func TestQuoteTripMinPeopleGate(t *testing.T) {
	minPeople := 4
	trip := models.Trip{
		Name:                      "Tiran Island",
		AdultPrice:                dec(t, "100"),
		ChildPrice:                dec(t, "50"),
		ChildAllowed:              true,
		MaxPeople:                 10,
		HasDiscount:               true,
		DiscountRequiresMinPeople: true,
		DiscountMinPeople:         &minPeople,
		DiscountPercentage:        dec(t, "10"),
	}

	below, err := QuoteTrip(trip, TripBooking{Adults: 3}, nil, 0, time.Now().UTC())
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if below.Breakdown.GroupDiscount != nil {
		t.Fatal("expected no group discount below the threshold")
	}
	at, err := QuoteTrip(trip, TripBooking{Adults: 2, Children: 2}, nil, 0, time.Now().UTC())
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	if at.Breakdown.GroupDiscount == nil || !at.FinalPrice.Equal(dec(t, "270")) {
		t.Fatalf("expected discounted 270 at threshold, got %s", at.FinalPrice)
	}
}

func TestQuoteCourseRequiresAvailablePrice(t *testing.T) {
	course := models.Course{Name: "Open Water", Price: dec(t, "350"), PriceAvailable: false}
	_, err := QuoteCourse(course, nil, 0, time.Now().UTC())
	var perr *Error
	if !errors.As(err, &perr) || perr.Reason != ReasonPriceUnavailable {
		t.Fatalf("expected %s, got %v", ReasonPriceUnavailable, err)
	}
}

func TestQuoteCourseAppliesDiscounts(t *testing.T) {
	course := models.Course{
		Name:                      "Advanced Open Water",
		Price:                     dec(t, "300"),
		PriceAvailable:            true,
		HasDiscount:               true,
		DiscountRequiresMinPeople: true,
		DiscountPercentage:        dec(t, "10"),
	}
	coupon := models.Coupon{
		Code:               "COURSE20",
		Activity:           models.ActivityCourse,
		DiscountPercentage: dec(t, "20"),
		CanUsedUpTo:        10,
		IsActive:           true,
	}
	quote, err := QuoteCourse(course, &coupon, 0, time.Now().UTC())
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	// 300 - 10% = 270, 270 - 20% = 216
	if !quote.FinalPrice.Equal(dec(t, "216")) {
		t.Fatalf("expected 216, got %s", quote.FinalPrice)
	}
}

// TestAmountWithinTolerance verifies the inclusive boundary: a deviation of
// exactly the tolerance passes, anything beyond is rejected.
func TestAmountWithinTolerance(t *testing.T) {
	computed := dec(t, "97.2")
	tolerance := dec(t, "1.0")

	cases := []struct {
		submitted string
		want      bool
	}{
		{"97.2", true},
		{"97", true},
		{"98.2", true},
		{"96.2", true},
		{"98.21", false},
		{"96.19", false},
	}
	for _, tc := range cases {
		if got := AmountWithinTolerance(dec(t, tc.submitted), computed, tolerance); got != tc.want {
			t.Fatalf("AmountWithinTolerance(%s) = %v, want %v", tc.submitted, got, tc.want)
		}
	}
}
