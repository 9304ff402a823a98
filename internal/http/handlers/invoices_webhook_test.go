package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"topdivers/backend/internal/config"
	"topdivers/backend/internal/integrations/easykash"
	"topdivers/backend/internal/invoicing"
	"topdivers/backend/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const callbackSecret = "0123456789abcdef0123456789abcdef"

// stubStore backs the invoicing service in handler tests that do not need a
// database.
type stubStore struct {
	coupons  map[string]models.Coupon
	invoices map[int64]models.Invoice
	byRef    map[string]models.Invoice
	settles  []models.SettleInvoiceParams
}

func newStubStore() *stubStore {
	return &stubStore{
		coupons:  make(map[string]models.Coupon),
		invoices: make(map[int64]models.Invoice),
		byRef:    make(map[string]models.Invoice),
	}
}

func (s *stubStore) add(invoice models.Invoice) {
	s.invoices[invoice.ID] = invoice
	s.byRef[invoice.CustomerReference] = invoice
}

func (s *stubStore) TripByID(ctx context.Context, id int64) (models.Trip, error) {
	return models.Trip{}, invoicing.ErrTripNotFound
}

func (s *stubStore) CourseByID(ctx context.Context, id int64) (models.Course, error) {
	return models.Course{}, invoicing.ErrCourseNotFound
}

func (s *stubStore) CouponByCode(ctx context.Context, code string) (models.Coupon, error) {
	coupon, ok := s.coupons[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return models.Coupon{}, invoicing.ErrCouponNotFound
	}
	return coupon, nil
}

func (s *stubStore) CouponUserUsageCount(ctx context.Context, couponID, userID int64) (int, error) {
	return 0, nil
}

func (s *stubStore) CreateInvoice(ctx context.Context, params models.CreateInvoiceParams) (models.Invoice, error) {
	return params.Invoice, nil
}

func (s *stubStore) InvoiceByID(ctx context.Context, id int64) (models.Invoice, error) {
	invoice, ok := s.invoices[id]
	if !ok {
		return models.Invoice{}, invoicing.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *stubStore) InvoiceByCustomerReference(ctx context.Context, reference string) (models.Invoice, error) {
	invoice, ok := s.byRef[reference]
	if !ok {
		return models.Invoice{}, invoicing.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *stubStore) LastInvoiceForUser(ctx context.Context, userID int64) (models.Invoice, error) {
	return models.Invoice{}, invoicing.ErrInvoiceNotFound
}

func (s *stubStore) SettleInvoice(ctx context.Context, params models.SettleInvoiceParams) (models.Invoice, error) {
	invoice, ok := s.invoices[params.InvoiceID]
	if !ok {
		return models.Invoice{}, invoicing.ErrInvoiceNotFound
	}
	s.settles = append(s.settles, params)
	invoice.Status = params.Status
	if params.EasykashReference != "" {
		invoice.EasykashReference = params.EasykashReference
	}
	if params.PaymentMethod != "" {
		invoice.PaymentMethod = params.PaymentMethod
	}
	s.add(invoice)
	return invoice, nil
}

// stubGateway fails every call; none of these handler paths may reach the
// gateway.
type stubGateway struct{}

func (stubGateway) CreateDirectPayment(ctx context.Context, in easykash.PaymentRequest) (easykash.PaymentSession, error) {
	return easykash.PaymentSession{}, errors.New("unexpected gateway call")
}

func (stubGateway) Inquire(ctx context.Context, reference string) (easykash.InquiryResult, error) {
	return easykash.InquiryResult{}, errors.New("unexpected gateway call")
}

func stubHandler(store *stubStore) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := invoicing.NewService(store, stubGateway{}, invoicing.Config{
		Currency:        "EGP",
		AmountTolerance: decimal.NewFromInt(1),
		WebhookSecret:   callbackSecret,
	}, logger)
	return New(nil, svc, &config.Config{JWTSecret: "test-secret"}, logger)
}

func callbackRouter(store *stubStore) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/invoices/webhook/easykash-callback", stubHandler(store).EasyKashCallback)
	return r
}

func signedCallback(reference, status string) easykash.CallbackPayload {
	payload := easykash.CallbackPayload{
		ProductCode:       "EDV4471",
		Amount:            "225.00",
		ProductType:       "Direct Pay",
		PaymentMethod:     "Card",
		Status:            status,
		EasykashRef:       "2911105009",
		CustomerReference: reference,
	}
	mac := hmac.New(sha512.New, []byte(callbackSecret))
	for _, field := range []string{
		payload.ProductCode,
		payload.Amount,
		payload.ProductType,
		payload.PaymentMethod,
		payload.Status,
		payload.EasykashRef,
		payload.CustomerReference,
	} {
		mac.Write([]byte(field))
	}
	payload.SignatureHash = hex.EncodeToString(mac.Sum(nil))
	return payload
}

func pendingCallbackInvoice(id int64, reference string) models.Invoice {
	return models.Invoice{
		ID:                id,
		UserID:            14,
		BuyerName:         "Dana Adel",
		Activity:          models.ActivityTrip,
		Amount:            decimal.NewFromInt(225),
		Currency:          "EGP",
		InvoiceType:       models.InvoiceTypeOnline,
		Status:            string(invoicing.StatusPending),
		CustomerReference: reference,
	}
}

func postCallback(t *testing.T, router *chi.Mux, payload easykash.CallbackPayload) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/invoices/webhook/easykash-callback", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestEasyKashCallbackSettlesInvoice(t *testing.T) {
	store := newStubStore()
	store.add(pendingCallbackInvoice(9, "533211433011"))
	router := callbackRouter(store)

	resp := postCallback(t, router, signedCallback("533211433011", "PAID"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"status":"PAID"`) {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
	if len(store.settles) != 1 {
		t.Fatalf("expected one settle, got %d", len(store.settles))
	}
	if store.settles[0].Job == nil || store.settles[0].Job.Kind != models.NotificationInvoicePaid {
		t.Fatalf("expected paid notification job, got %+v", store.settles[0].Job)
	}
	if got := store.invoices[9]; got.Status != string(invoicing.StatusPaid) || got.EasykashReference != "2911105009" {
		t.Fatalf("invoice not settled: %+v", got)
	}
}

func TestEasyKashCallbackRejectsTamperedPayload(t *testing.T) {
	store := newStubStore()
	store.add(pendingCallbackInvoice(9, "533211433011"))
	router := callbackRouter(store)

	payload := signedCallback("533211433011", "PAID")
	payload.Amount = "1.00"
	resp := postCallback(t, router, payload)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
	if len(store.settles) != 0 {
		t.Fatalf("tampered callback settled the invoice")
	}
}

func TestEasyKashCallbackUnknownReference(t *testing.T) {
	router := callbackRouter(newStubStore())

	resp := postCallback(t, router, signedCallback("999999999999", "PAID"))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestEasyKashCallbackIgnoresUnknownStatus(t *testing.T) {
	store := newStubStore()
	store.add(pendingCallbackInvoice(9, "533211433011"))
	router := callbackRouter(store)

	resp := postCallback(t, router, signedCallback("533211433011", "REFUNDED"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(store.settles) != 0 {
		t.Fatalf("unknown status settled the invoice")
	}
	if !strings.Contains(resp.Body.String(), `"status":"PENDING"`) {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestEasyKashCallbackRejectsInvalidJSON(t *testing.T) {
	router := callbackRouter(newStubStore())

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/webhook/easykash-callback", strings.NewReader("{"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
