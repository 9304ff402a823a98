package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	InvoiceTypeOnline = "online"
	InvoiceTypeCash   = "cash"
)

// ActivityDetails carries the booking-specific part of an invoice.
type ActivityDetails struct {
	TripID         *int64 `json:"tripId,omitempty"`
	CourseID       *int64 `json:"courseId,omitempty"`
	Date           string `json:"date,omitempty"`
	Adults         int    `json:"adults,omitempty"`
	Children       int    `json:"children,omitempty"`
	PickupLocation string `json:"pickupLocation,omitempty"`
	PickupTime     string `json:"pickupTime,omitempty"`
}

type DiscountPortion struct {
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

type CouponPortion struct {
	Code       string          `json:"code"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

// DiscountBreakdown itemizes how the final price was derived. BasePrice and
// FinalPrice are always present, the discount portions only when applied.
type DiscountBreakdown struct {
	BasePrice      decimal.Decimal  `json:"basePrice"`
	GroupDiscount  *DiscountPortion `json:"groupDiscount,omitempty"`
	CouponDiscount *CouponPortion   `json:"couponDiscount,omitempty"`
	FinalPrice     decimal.Decimal  `json:"finalPrice"`
}

type Invoice struct {
	ID                int64              `json:"id"`
	UserID            int64              `json:"userId"`
	BuyerName         string             `json:"buyerName"`
	BuyerEmail        string             `json:"buyerEmail"`
	BuyerPhone        string             `json:"buyerPhone"`
	Description       string             `json:"description,omitempty"`
	Activity          string             `json:"activity"`
	ActivityDetails   *ActivityDetails   `json:"activityDetails,omitempty"`
	Amount            decimal.Decimal    `json:"amount"`
	Currency          string             `json:"currency"`
	CouponCode        string             `json:"couponCode,omitempty"`
	DiscountAmount    decimal.Decimal    `json:"discountAmount"`
	DiscountBreakdown *DiscountBreakdown `json:"discountBreakdown,omitempty"`
	InvoiceType       string             `json:"invoiceType"`
	PayURL            string             `json:"payUrl,omitempty"`
	PaymentMethod     string             `json:"paymentMethod,omitempty"`
	Status            string             `json:"status"`
	CustomerReference string             `json:"customerReference,omitempty"`
	EasykashReference string             `json:"easykashReference,omitempty"`
	PickedUp          bool               `json:"pickedUp"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// InvoiceAdminPatch updates invoice fields an operator may edit. A nil field
// keeps the stored value. Status changes go through the transition rules.
type InvoiceAdminPatch struct {
	BuyerName      *string `json:"buyerName,omitempty"`
	BuyerEmail     *string `json:"buyerEmail,omitempty"`
	BuyerPhone     *string `json:"buyerPhone,omitempty"`
	Description    *string `json:"description,omitempty"`
	PaymentMethod  *string `json:"paymentMethod,omitempty"`
	Status         *string `json:"status,omitempty"`
	PickedUp       *bool   `json:"pickedUp,omitempty"`
	PickupLocation *string `json:"pickupLocation,omitempty"`
	PickupTime     *string `json:"pickupTime,omitempty"`
}

// InvoiceListFilter narrows invoice listings. Zero values mean no
// constraint; the repository caps Limit.
type InvoiceListFilter struct {
	UserID *int64 `json:"userId,omitempty"`
	Status string `json:"status,omitempty"`
	Search string `json:"search,omitempty"`
	Skip   int    `json:"skip"`
	Limit  int    `json:"limit"`
}

// InvoiceSummary aggregates invoice counts and amounts per status bucket.
// The failed bucket is the union of FAILED, CANCELLED and EXPIRED.
type InvoiceSummary struct {
	TotalCount    int             `json:"totalCount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaidCount     int             `json:"paidCount"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	PendingCount  int             `json:"pendingCount"`
	PendingAmount decimal.Decimal `json:"pendingAmount"`
	FailedCount   int             `json:"failedCount"`
	FailedAmount  decimal.Decimal `json:"failedAmount"`
}

// CreateInvoiceParams inserts a new invoice. When ConsumeCoupon is set the
// coupon named on the invoice is re-validated under lock and its counters
// advanced in the same transaction, so a failed insert never burns a use.
type CreateInvoiceParams struct {
	Invoice       Invoice
	ConsumeCoupon bool
	Job           *NotificationJob
}

// SettleInvoiceParams moves a pending invoice into a terminal status.
// Job, when set, is enqueued in the same transaction.
type SettleInvoiceParams struct {
	InvoiceID         int64
	Status            string
	EasykashReference string
	PaymentMethod     string
	Job               *NotificationJob
}

// NotificationJob is one outbox row delivered by the worker.
type NotificationJob struct {
	ID        int64                  `json:"id"`
	Kind      string                 `json:"kind"`
	InvoiceID *int64                 `json:"invoiceId,omitempty"`
	RunAt     time.Time              `json:"runAt"`
	Payload   map[string]interface{} `json:"payload"`
	Status    string                 `json:"status"`
	Attempts  int                    `json:"attempts"`
	LastError string                 `json:"lastError,omitempty"`
}

const (
	NotificationInvoiceCreated = "invoice_created"
	NotificationInvoicePaid    = "invoice_paid"
)
