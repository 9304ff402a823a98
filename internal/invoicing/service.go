package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"topdivers/backend/internal/integrations/easykash"
	"topdivers/backend/internal/models"
	"topdivers/backend/internal/pricing"

	"github.com/shopspring/decimal"
)

// Store is the persistence surface the service needs. *repository.Repository
// satisfies it.
type Store interface {
	TripByID(ctx context.Context, id int64) (models.Trip, error)
	CourseByID(ctx context.Context, id int64) (models.Course, error)
	CouponByCode(ctx context.Context, code string) (models.Coupon, error)
	CouponUserUsageCount(ctx context.Context, couponID, userID int64) (int, error)
	CreateInvoice(ctx context.Context, params models.CreateInvoiceParams) (models.Invoice, error)
	InvoiceByID(ctx context.Context, id int64) (models.Invoice, error)
	InvoiceByCustomerReference(ctx context.Context, reference string) (models.Invoice, error)
	LastInvoiceForUser(ctx context.Context, userID int64) (models.Invoice, error)
	SettleInvoice(ctx context.Context, params models.SettleInvoiceParams) (models.Invoice, error)
}

// Gateway is the payment provider the service opens sessions with and asks
// for authoritative payment statuses.
type Gateway interface {
	CreateDirectPayment(ctx context.Context, in easykash.PaymentRequest) (easykash.PaymentSession, error)
	Inquire(ctx context.Context, customerReference string) (easykash.InquiryResult, error)
}

type Config struct {
	Currency        string
	AmountTolerance decimal.Decimal
	WebhookSecret   string
}

type Service struct {
	store     Store
	gateway   Gateway
	logger    *slog.Logger
	currency  string
	tolerance decimal.Decimal
	secret    string
}

func NewService(store Store, gateway Gateway, cfg Config, logger *slog.Logger) *Service {
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "EGP"
	}
	tolerance := cfg.AmountTolerance
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		gateway:   gateway,
		logger:    logger,
		currency:  currency,
		tolerance: tolerance,
		secret:    cfg.WebhookSecret,
	}
}

// CreateInvoiceInput is a priced booking request. SubmittedAmount is what the
// client believes the total is; the stored amount is always server-computed.
type CreateInvoiceInput struct {
	UserID          int64
	BuyerName       string
	BuyerEmail      string
	BuyerPhone      string
	Description     string
	Activity        string
	TripID          *int64
	CourseID        *int64
	Date            string
	Adults          int
	Children        int
	PickupLocation  string
	PickupTime      string
	CouponCode      string
	SubmittedAmount decimal.Decimal
	InvoiceType     string
}

// CreateInvoice prices the booking, checks the submitted amount against the
// computed total, opens a payment session for online invoices and persists
// the invoice with its coupon consumption and created-notification in one
// transaction. Nothing is written when the gateway call fails.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (models.Invoice, error) {
	activity := strings.ToLower(strings.TrimSpace(in.Activity))
	invoiceType := strings.ToLower(strings.TrimSpace(in.InvoiceType))
	if invoiceType == "" {
		invoiceType = models.InvoiceTypeOnline
	}
	if invoiceType != models.InvoiceTypeOnline && invoiceType != models.InvoiceTypeCash {
		return models.Invoice{}, ErrUnsupportedInvoiceType
	}

	quote, details, activityName, err := s.quoteActivity(ctx, activity, in)
	if err != nil {
		return models.Invoice{}, err
	}

	if !pricing.AmountWithinTolerance(in.SubmittedAmount, quote.FinalPrice, s.tolerance) {
		s.logger.Warn("invoice_amount_mismatch",
			"user_id", in.UserID,
			"submitted", in.SubmittedAmount.String(),
			"computed", quote.FinalPrice.String(),
		)
		return models.Invoice{}, ErrAmountMismatch
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = fmt.Sprintf("%s booking: %s", activity, activityName)
	}

	invoice := models.Invoice{
		UserID:            in.UserID,
		BuyerName:         strings.TrimSpace(in.BuyerName),
		BuyerEmail:        strings.TrimSpace(in.BuyerEmail),
		BuyerPhone:        strings.TrimSpace(in.BuyerPhone),
		Description:       description,
		Activity:          activity,
		ActivityDetails:   details,
		Amount:            quote.FinalPrice,
		Currency:          s.currency,
		DiscountAmount:    quote.TotalDiscount,
		DiscountBreakdown: &quote.Breakdown,
		InvoiceType:       invoiceType,
		Status:            string(StatusPending),
	}
	if quote.Coupon != nil {
		invoice.CouponCode = quote.Coupon.Code
	}

	if invoiceType == models.InvoiceTypeOnline {
		session, err := s.gateway.CreateDirectPayment(ctx, easykash.PaymentRequest{
			UserID:     in.UserID,
			Amount:     quote.FinalPrice,
			Currency:   s.currency,
			BuyerName:  invoice.BuyerName,
			BuyerEmail: invoice.BuyerEmail,
			BuyerPhone: invoice.BuyerPhone,
		})
		if err != nil {
			return models.Invoice{}, fmt.Errorf("%w: %v", ErrPaymentSessionFailed, err)
		}
		invoice.PayURL = session.PayURL
		invoice.CustomerReference = session.CustomerReference
		invoice.EasykashReference = session.EasykashReference
	} else {
		// Cash invoices never touch the gateway but still need a reference
		// so pickups can be looked up the same way online payments are.
		reference, err := easykash.NewCustomerReference(in.UserID)
		if err != nil {
			return models.Invoice{}, fmt.Errorf("customer reference: %w", err)
		}
		invoice.CustomerReference = reference
	}

	created, err := s.store.CreateInvoice(ctx, models.CreateInvoiceParams{
		Invoice:       invoice,
		ConsumeCoupon: quote.Coupon != nil,
		Job: &models.NotificationJob{
			Kind: models.NotificationInvoiceCreated,
			Payload: map[string]interface{}{
				"buyerName":         invoice.BuyerName,
				"activity":          activity,
				"activityName":      activityName,
				"amount":            quote.FinalPrice.StringFixed(2),
				"currency":          s.currency,
				"invoiceType":       invoiceType,
				"customerReference": invoice.CustomerReference,
			},
		},
	})
	if err != nil {
		return models.Invoice{}, err
	}

	s.logger.Info("invoice_created",
		"invoice_id", created.ID,
		"user_id", created.UserID,
		"activity", created.Activity,
		"amount", created.Amount.String(),
		"type", created.InvoiceType,
	)
	return created, nil
}

// CouponPreview is the result of applying a coupon to an amount without
// consuming it.
type CouponPreview struct {
	Code           string          `json:"code"`
	Percentage     decimal.Decimal `json:"percentage"`
	OriginalAmount decimal.Decimal `json:"originalAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalAmount    decimal.Decimal `json:"finalAmount"`
}

// ApplyCoupon previews a coupon against an amount for the checkout page.
// Nothing is consumed; the invoice-creation transaction does that.
func (s *Service) ApplyCoupon(ctx context.Context, userID int64, code, activity string, amount decimal.Decimal) (CouponPreview, error) {
	coupon, usage, err := s.resolveCoupon(ctx, code, userID)
	if err != nil {
		return CouponPreview{}, err
	}
	if coupon == nil {
		return CouponPreview{}, ErrCouponNotFound
	}
	activity = strings.ToLower(strings.TrimSpace(activity))
	discount, final, err := pricing.PreviewCoupon(amount, *coupon, activity, usage, time.Now().UTC())
	if err != nil {
		return CouponPreview{}, err
	}
	return CouponPreview{
		Code:           coupon.Code,
		Percentage:     coupon.DiscountPercentage,
		OriginalAmount: amount,
		DiscountAmount: discount,
		FinalAmount:    final,
	}, nil
}

func (s *Service) quoteActivity(ctx context.Context, activity string, in CreateInvoiceInput) (pricing.Quote, *models.ActivityDetails, string, error) {
	coupon, usage, err := s.resolveCoupon(ctx, in.CouponCode, in.UserID)
	if err != nil {
		return pricing.Quote{}, nil, "", err
	}
	now := time.Now().UTC()

	switch activity {
	case models.ActivityTrip:
		if in.TripID == nil {
			return pricing.Quote{}, nil, "", ErrTripNotFound
		}
		trip, err := s.store.TripByID(ctx, *in.TripID)
		if err != nil {
			return pricing.Quote{}, nil, "", err
		}
		quote, err := pricing.QuoteTrip(trip, pricing.TripBooking{Adults: in.Adults, Children: in.Children}, coupon, usage, now)
		if err != nil {
			return pricing.Quote{}, nil, "", err
		}
		details := &models.ActivityDetails{
			TripID:         in.TripID,
			Date:           strings.TrimSpace(in.Date),
			Adults:         in.Adults,
			Children:       in.Children,
			PickupLocation: strings.TrimSpace(in.PickupLocation),
			PickupTime:     strings.TrimSpace(in.PickupTime),
		}
		return quote, details, trip.Name, nil

	case models.ActivityCourse:
		if in.CourseID == nil {
			return pricing.Quote{}, nil, "", ErrCourseNotFound
		}
		course, err := s.store.CourseByID(ctx, *in.CourseID)
		if err != nil {
			return pricing.Quote{}, nil, "", err
		}
		quote, err := pricing.QuoteCourse(course, coupon, usage, now)
		if err != nil {
			return pricing.Quote{}, nil, "", err
		}
		details := &models.ActivityDetails{
			CourseID:       in.CourseID,
			Date:           strings.TrimSpace(in.Date),
			PickupLocation: strings.TrimSpace(in.PickupLocation),
			PickupTime:     strings.TrimSpace(in.PickupTime),
		}
		return quote, details, course.Name, nil

	default:
		return pricing.Quote{}, nil, "", ErrUnsupportedActivity
	}
}

func (s *Service) resolveCoupon(ctx context.Context, code string, userID int64) (*models.Coupon, int, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, 0, nil
	}
	coupon, err := s.store.CouponByCode(ctx, code)
	if err != nil {
		return nil, 0, err
	}
	usage, err := s.store.CouponUserUsageCount(ctx, coupon.ID, userID)
	if err != nil {
		return nil, 0, err
	}
	return &coupon, usage, nil
}

// ProcessCallback handles a gateway webhook delivery. The signature gate is
// the only trust boundary: a verified payload settles the referenced invoice,
// replays and unknown statuses are acknowledged without changing anything.
func (s *Service) ProcessCallback(ctx context.Context, payload easykash.CallbackPayload) (models.Invoice, error) {
	if !easykash.VerifyCallback(s.secret, payload) {
		return models.Invoice{}, ErrSignatureMismatch
	}

	invoice, err := s.store.InvoiceByCustomerReference(ctx, payload.CustomerReference)
	if err != nil {
		return models.Invoice{}, err
	}

	return s.applyGatewayStatus(ctx, invoice, payload.Status, payload.EasykashRef, payload.PaymentMethod, true)
}

// Reconcile asks the gateway for the authoritative status of a pending
// invoice and settles it when a terminal status comes back. Invoices already
// terminal, and invoices without a payment session, are returned unchanged
// without contacting the gateway. Inquiry failures keep the stored state.
func (s *Service) Reconcile(ctx context.Context, invoice models.Invoice) (models.Invoice, error) {
	if status, ok := ParseStatus(invoice.Status); ok && status.IsTerminal() {
		return invoice, nil
	}
	if strings.TrimSpace(invoice.CustomerReference) == "" {
		return invoice, nil
	}

	result, err := s.gateway.Inquire(ctx, invoice.CustomerReference)
	if err != nil {
		s.logger.Warn("payment_inquiry_failed", "invoice_id", invoice.ID, "error", err)
		return invoice, nil
	}

	return s.applyGatewayStatus(ctx, invoice, result.Status, result.EasykashReference, "", false)
}

// InvoiceForUser returns one of the user's invoices, refreshed against the
// gateway when it is still pending.
func (s *Service) InvoiceForUser(ctx context.Context, userID, invoiceID int64) (models.Invoice, error) {
	invoice, err := s.store.InvoiceByID(ctx, invoiceID)
	if err != nil {
		return models.Invoice{}, err
	}
	if invoice.UserID != userID {
		return models.Invoice{}, ErrNotInvoiceOwner
	}
	return s.Reconcile(ctx, invoice)
}

// LastInvoiceForUser returns the user's most recent invoice, refreshed
// against the gateway when pending.
func (s *Service) LastInvoiceForUser(ctx context.Context, userID int64) (models.Invoice, error) {
	invoice, err := s.store.LastInvoiceForUser(ctx, userID)
	if err != nil {
		return models.Invoice{}, err
	}
	return s.Reconcile(ctx, invoice)
}

// InvoiceByReference serves the public payment-status check keyed by the
// gateway customer reference.
func (s *Service) InvoiceByReference(ctx context.Context, reference string) (models.Invoice, error) {
	invoice, err := s.store.InvoiceByCustomerReference(ctx, reference)
	if err != nil {
		return models.Invoice{}, err
	}
	return s.Reconcile(ctx, invoice)
}

// Invoice returns an invoice by id, refreshed against the gateway when
// pending. Callers enforce who may see it.
func (s *Service) Invoice(ctx context.Context, invoiceID int64) (models.Invoice, error) {
	invoice, err := s.store.InvoiceByID(ctx, invoiceID)
	if err != nil {
		return models.Invoice{}, err
	}
	return s.Reconcile(ctx, invoice)
}

func (s *Service) applyGatewayStatus(ctx context.Context, invoice models.Invoice, rawStatus, easykashRef, paymentMethod string, notify bool) (models.Invoice, error) {
	next, ok := ParseStatus(rawStatus)
	if !ok || next == StatusPending {
		// Unknown or still-pending gateway statuses are acknowledged
		// without touching the invoice.
		if !ok {
			s.logger.Warn("gateway_status_ignored", "invoice_id", invoice.ID, "status", rawStatus)
		}
		return invoice, nil
	}

	if current, ok := ParseStatus(invoice.Status); ok && current.IsTerminal() {
		if current != next {
			s.logger.Warn("gateway_status_after_settlement",
				"invoice_id", invoice.ID,
				"current", current.String(),
				"incoming", next.String(),
			)
		}
		return invoice, nil
	}

	var job *models.NotificationJob
	if notify && next == StatusPaid {
		job = &models.NotificationJob{
			Kind: models.NotificationInvoicePaid,
			Payload: map[string]interface{}{
				"buyerName":         invoice.BuyerName,
				"activity":          invoice.Activity,
				"amount":            invoice.Amount.StringFixed(2),
				"currency":          invoice.Currency,
				"customerReference": invoice.CustomerReference,
				"easykashReference": easykashRef,
				"paymentMethod":     paymentMethod,
			},
		}
	}

	settled, err := s.store.SettleInvoice(ctx, models.SettleInvoiceParams{
		InvoiceID:         invoice.ID,
		Status:            string(next),
		EasykashReference: easykashRef,
		PaymentMethod:     paymentMethod,
		Job:               job,
	})
	if err != nil {
		if errors.Is(err, ErrInvoiceStateNotAllowed) {
			// Lost the race to a concurrent delivery. Serve the settled row.
			fresh, freshErr := s.store.InvoiceByID(ctx, invoice.ID)
			if freshErr != nil {
				return models.Invoice{}, freshErr
			}
			return fresh, nil
		}
		return models.Invoice{}, err
	}

	s.logger.Info("invoice_settled",
		"invoice_id", settled.ID,
		"previous_status", invoice.Status,
		"status", settled.Status,
		"easykash_reference", settled.EasykashReference,
	)
	return settled, nil
}
