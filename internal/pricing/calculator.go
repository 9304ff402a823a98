package pricing

import (
	"time"

	"topdivers/backend/internal/models"

	"github.com/shopspring/decimal"
)

const (
	ReasonAdultsRequired      = "adults_required"
	ReasonInvalidParticipants = "invalid_participants"
	ReasonChildrenNotAllowed  = "children_not_allowed"
	ReasonCapacityExceeded    = "capacity_exceeded"
	ReasonPriceUnavailable    = "price_unavailable"
)

var hundred = decimal.NewFromInt(100)

type TripBooking struct {
	Adults   int
	Children int
}

// Quote is the authoritative price for a booking. FinalPrice is never
// negative and never exceeds Breakdown.BasePrice; TotalDiscount is always
// BasePrice - FinalPrice.
type Quote struct {
	FinalPrice    decimal.Decimal
	TotalDiscount decimal.Decimal
	Breakdown     models.DiscountBreakdown
	Coupon        *models.Coupon
}

// QuoteTrip prices a trip booking. An optional coupon is validated for the
// trip scope before it is applied; discounts are sequential, the coupon
// percentage applies to the remainder after the trip's own group discount.
func QuoteTrip(trip models.Trip, booking TripBooking, coupon *models.Coupon, couponUserUsage int, now time.Time) (Quote, error) {
	if booking.Adults < 1 {
		return Quote{}, newError(ReasonAdultsRequired, "at least one adult is required")
	}
	if booking.Children < 0 {
		return Quote{}, newError(ReasonInvalidParticipants, "children count cannot be negative")
	}
	if booking.Children > 0 && !trip.ChildAllowed {
		return Quote{}, newError(ReasonChildrenNotAllowed, "trip %s does not allow children", trip.Name)
	}
	people := booking.Adults + booking.Children
	if trip.MaxPeople > 0 && people > trip.MaxPeople {
		return Quote{}, newError(ReasonCapacityExceeded, "trip %s takes at most %d participants", trip.Name, trip.MaxPeople)
	}

	base := decimal.NewFromInt(int64(booking.Adults)).Mul(trip.AdultPrice).
		Add(decimal.NewFromInt(int64(booking.Children)).Mul(trip.ChildPrice))
	groupPct, hasGroup := tripGroupDiscount(trip, people)
	return buildQuote(base, groupPct, hasGroup, coupon, models.ActivityTrip, couponUserUsage, now)
}

// QuoteCourse prices a course booking. Courses have a flat price and no
// participant validation; pricing must be explicitly available.
func QuoteCourse(course models.Course, coupon *models.Coupon, couponUserUsage int, now time.Time) (Quote, error) {
	if !course.PriceAvailable {
		return Quote{}, newError(ReasonPriceUnavailable, "course %s has no online price", course.Name)
	}
	groupPct, hasGroup := courseGroupDiscount(course)
	return buildQuote(course.Price, groupPct, hasGroup, coupon, models.ActivityCourse, couponUserUsage, now)
}

// AmountWithinTolerance reports whether a client-submitted amount matches the
// computed price within the configured tolerance (inclusive).
func AmountWithinTolerance(submitted, computed, tolerance decimal.Decimal) bool {
	return submitted.Sub(computed).Abs().LessThanOrEqual(tolerance)
}

func tripGroupDiscount(trip models.Trip, people int) (decimal.Decimal, bool) {
	if !trip.HasDiscount || !trip.DiscountPercentage.IsPositive() {
		return decimal.Zero, false
	}
	if trip.DiscountAlwaysAvailable {
		return trip.DiscountPercentage, true
	}
	if trip.DiscountRequiresMinPeople && trip.DiscountMinPeople != nil && *trip.DiscountMinPeople > 0 && people >= *trip.DiscountMinPeople {
		return trip.DiscountPercentage, true
	}
	return decimal.Zero, false
}

// courseGroupDiscount treats a min-people requirement as met: a course
// booking carries no participant count to evaluate it against.
func courseGroupDiscount(course models.Course) (decimal.Decimal, bool) {
	if !course.HasDiscount || !course.DiscountPercentage.IsPositive() {
		return decimal.Zero, false
	}
	if course.DiscountAlwaysAvailable || course.DiscountRequiresMinPeople {
		return course.DiscountPercentage, true
	}
	return decimal.Zero, false
}

func buildQuote(base decimal.Decimal, groupPct decimal.Decimal, hasGroup bool, coupon *models.Coupon, scope string, couponUserUsage int, now time.Time) (Quote, error) {
	breakdown := models.DiscountBreakdown{BasePrice: base}
	remaining := base

	if hasGroup {
		amount := base.Mul(groupPct).Div(hundred)
		breakdown.GroupDiscount = &models.DiscountPortion{Percentage: groupPct, Amount: amount}
		remaining = remaining.Sub(amount)
	}
	if coupon != nil {
		if err := ValidateCoupon(*coupon, scope, couponUserUsage, now); err != nil {
			return Quote{}, err
		}
		amount := remaining.Mul(coupon.DiscountPercentage).Div(hundred)
		breakdown.CouponDiscount = &models.CouponPortion{
			Code:       coupon.Code,
			Percentage: coupon.DiscountPercentage,
			Amount:     amount,
		}
		remaining = remaining.Sub(amount)
	}
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	breakdown.FinalPrice = remaining

	return Quote{
		FinalPrice:    remaining,
		TotalDiscount: base.Sub(remaining),
		Breakdown:     breakdown,
		Coupon:        coupon,
	}, nil
}
