package invoicing

import "errors"

var (
	ErrTripNotFound           = errors.New("trip not found")
	ErrCourseNotFound         = errors.New("course not found")
	ErrCouponNotFound         = errors.New("coupon not found")
	ErrInvoiceNotFound        = errors.New("invoice not found")
	ErrInvoiceStateNotAllowed = errors.New("invoice state not allowed")

	ErrUnsupportedActivity    = errors.New("unsupported activity")
	ErrUnsupportedInvoiceType = errors.New("unsupported invoice type")
	ErrAmountMismatch         = errors.New("submitted amount does not match computed price")
	ErrSignatureMismatch      = errors.New("callback signature mismatch")
	ErrNotInvoiceOwner        = errors.New("invoice belongs to another user")
	ErrPaymentSessionFailed   = errors.New("payment session failed")
)
