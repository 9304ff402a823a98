package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Activity scopes used by trips, courses and coupons.
const (
	ActivityTrip   = "trip"
	ActivityCourse = "course"
	ActivityAll    = "all"
)

type Trip struct {
	ID                        int64           `json:"id"`
	Name                      string          `json:"name"`
	Description               string          `json:"description,omitempty"`
	AdultPrice                decimal.Decimal `json:"adultPrice"`
	ChildPrice                decimal.Decimal `json:"childPrice"`
	ChildAllowed              bool            `json:"childAllowed"`
	MaxPeople                 int             `json:"maxPeople"`
	HasDiscount               bool            `json:"hasDiscount"`
	DiscountAlwaysAvailable   bool            `json:"discountAlwaysAvailable"`
	DiscountRequiresMinPeople bool            `json:"discountRequiresMinPeople"`
	DiscountMinPeople         *int            `json:"discountMinPeople,omitempty"`
	DiscountPercentage        decimal.Decimal `json:"discountPercentage"`
	Duration                  *int            `json:"duration,omitempty"`
	DurationUnit              string          `json:"durationUnit,omitempty"`
	CreatedAt                 time.Time       `json:"createdAt"`
	UpdatedAt                 time.Time       `json:"updatedAt"`
}

type Course struct {
	ID                        int64           `json:"id"`
	Name                      string          `json:"name"`
	Description               string          `json:"description,omitempty"`
	PriceAvailable            bool            `json:"priceAvailable"`
	Price                     decimal.Decimal `json:"price"`
	Level                     string          `json:"level,omitempty"`
	Type                      string          `json:"type,omitempty"`
	Provider                  string          `json:"provider,omitempty"`
	Duration                  *int            `json:"duration,omitempty"`
	DurationUnit              string          `json:"durationUnit,omitempty"`
	HasDiscount               bool            `json:"hasDiscount"`
	DiscountAlwaysAvailable   bool            `json:"discountAlwaysAvailable"`
	DiscountRequiresMinPeople bool            `json:"discountRequiresMinPeople"`
	DiscountMinPeople         *int            `json:"discountMinPeople,omitempty"`
	DiscountPercentage        decimal.Decimal `json:"discountPercentage"`
	CreatedAt                 time.Time       `json:"createdAt"`
	UpdatedAt                 time.Time       `json:"updatedAt"`
}

type Coupon struct {
	ID                 int64           `json:"id"`
	Code               string          `json:"code"`
	Activity           string          `json:"activity"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	CanUsedUpTo        int             `json:"canUsedUpTo"`
	UserLimit          int             `json:"userLimit"`
	UsedCount          int             `json:"usedCount"`
	IsActive           bool            `json:"isActive"`
	ExpireDate         *time.Time      `json:"expireDate,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// Remaining reports how many global uses are left on the coupon.
func (c Coupon) Remaining() int {
	remaining := c.CanUsedUpTo - c.UsedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

type CouponInput struct {
	Code               string          `json:"code"`
	Activity           string          `json:"activity"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	CanUsedUpTo        int             `json:"canUsedUpTo"`
	UserLimit          int             `json:"userLimit"`
	IsActive           bool            `json:"isActive"`
	ExpireDate         *time.Time      `json:"expireDate,omitempty"`
}

type CouponPatch struct {
	Activity           *string          `json:"activity,omitempty"`
	DiscountPercentage *decimal.Decimal `json:"discountPercentage,omitempty"`
	CanUsedUpTo        *int             `json:"canUsedUpTo,omitempty"`
	UserLimit          *int             `json:"userLimit,omitempty"`
	IsActive           *bool            `json:"isActive,omitempty"`
	ExpireDate         *time.Time       `json:"expireDate,omitempty"`
}

// CouponUserUsage is one user's consumption record for a coupon.
type CouponUserUsage struct {
	CouponID   int64     `json:"couponId"`
	UserID     int64     `json:"userId"`
	UsageCount int       `json:"usageCount"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

type CouponStats struct {
	Coupon    Coupon            `json:"coupon"`
	Remaining int               `json:"remaining"`
	Users     []CouponUserUsage `json:"users"`
}
