package pricing

import (
	"fmt"
	"strings"
	"time"

	"topdivers/backend/internal/models"

	"github.com/shopspring/decimal"
)

const (
	ReasonCouponInactive  = "coupon_inactive"
	ReasonCouponExhausted = "coupon_exhausted"
	ReasonCouponExpired   = "coupon_expired"
	ReasonCouponScope     = "coupon_wrong_activity"
	ReasonCouponUserLimit = "coupon_user_limit_reached"
)

// Error is a pricing or coupon validation failure with a stable reason code.
type Error struct {
	Reason  string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(reason, format string, args ...interface{}) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ValidateCoupon applies the read-only usability rules for a coupon against
// an activity scope. It never mutates usage counters; consumption is a
// separate step taken only after the invoice row is durable. userUsage is how
// many times the acting user has already consumed this coupon.
func ValidateCoupon(coupon models.Coupon, activity string, userUsage int, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if !coupon.IsActive {
		return newError(ReasonCouponInactive, "coupon %s is not active", coupon.Code)
	}
	if coupon.CanUsedUpTo > 0 && coupon.UsedCount >= coupon.CanUsedUpTo {
		return newError(ReasonCouponExhausted, "coupon %s usage limit reached", coupon.Code)
	}
	if coupon.ExpireDate != nil && now.After(coupon.ExpireDate.UTC()) {
		return newError(ReasonCouponExpired, "coupon %s has expired", coupon.Code)
	}
	scope := strings.ToLower(strings.TrimSpace(coupon.Activity))
	if scope != models.ActivityAll && scope != strings.ToLower(strings.TrimSpace(activity)) {
		return newError(ReasonCouponScope, "coupon %s is not valid for %s bookings", coupon.Code, activity)
	}
	if coupon.UserLimit > 0 && userUsage >= coupon.UserLimit {
		return newError(ReasonCouponUserLimit, "coupon %s already used the maximum number of times", coupon.Code)
	}
	return nil
}

// PreviewCoupon validates a coupon and applies its percentage to an arbitrary
// amount, returning the discount and the remaining total. It backs the
// checkout preview and consumes nothing.
func PreviewCoupon(amount decimal.Decimal, coupon models.Coupon, activity string, userUsage int, now time.Time) (decimal.Decimal, decimal.Decimal, error) {
	if err := ValidateCoupon(coupon, activity, userUsage, now); err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, err
	}
	discount := amount.Mul(coupon.DiscountPercentage).Div(hundred)
	final := amount.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return discount, final, nil
}
