package easykash

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL = "https://back.easykash.net"
	directPayPath  = "/api/directpayv1/pay"
	inquirePath    = "/api/cash-api/inquire"

	defaultCashExpiryDays = 3
)

// paymentOptions are the gateway method codes enabled for hosted sessions
// (cards, wallets, Fawry, kiosk).
var paymentOptions = []int{2, 4, 6, 31}

type Config struct {
	BaseURL     string
	PrivateKey  string
	SecretKey   string
	RedirectURL string
	CashExpiry  int
}

type Client struct {
	baseURL     string
	privateKey  string
	secretKey   string
	redirectURL string
	cashExpiry  int
	httpClient  *http.Client
	logger      *slog.Logger
}

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("easykash api status %d: %s", e.StatusCode, e.Body)
}

// PaymentRequest describes a hosted payment session to open. The customer
// reference is generated locally before the gateway is contacted.
type PaymentRequest struct {
	UserID     int64
	Amount     decimal.Decimal
	Currency   string
	BuyerName  string
	BuyerEmail string
	BuyerPhone string
}

type PaymentSession struct {
	CustomerReference string
	PayURL            string
	EasykashReference string
}

type InquiryResult struct {
	Status            string `json:"status"`
	EasykashReference string `json:"easykashReference"`
}

type directPayRequest struct {
	Amount            json.Number `json:"amount"`
	Currency          string      `json:"currency"`
	PaymentOptions    []int       `json:"paymentOptions"`
	CashExpiry        int         `json:"cashExpiry"`
	Name              string      `json:"name"`
	Email             string      `json:"email"`
	Mobile            string      `json:"mobile"`
	RedirectURL       string      `json:"redirectUrl"`
	CustomerReference string      `json:"customerReference"`
}

type directPayResponse struct {
	RedirectURL       string `json:"redirectUrl"`
	EasykashReference string `json:"easykashReference"`
}

type inquireRequest struct {
	CustomerReference string `json:"customerReference"`
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	cashExpiry := cfg.CashExpiry
	if cashExpiry <= 0 {
		cashExpiry = defaultCashExpiryDays
	}
	return &Client{
		baseURL:     baseURL,
		privateKey:  strings.TrimSpace(cfg.PrivateKey),
		secretKey:   strings.TrimSpace(cfg.SecretKey),
		redirectURL: strings.TrimSpace(cfg.RedirectURL),
		cashExpiry:  cashExpiry,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// SecretKey exposes the webhook signing secret for callback verification.
func (c *Client) SecretKey() string {
	return c.secretKey
}

// CreateDirectPayment opens a hosted payment session and returns the pay URL
// together with both correlation identifiers. The customer reference is
// generated before the remote call so it is known even when the call fails.
func (c *Client) CreateDirectPayment(ctx context.Context, in PaymentRequest) (PaymentSession, error) {
	ref, err := NewCustomerReference(in.UserID)
	if err != nil {
		return PaymentSession{}, err
	}
	payload := directPayRequest{
		Amount:            json.Number(in.Amount.StringFixed(2)),
		Currency:          in.Currency,
		PaymentOptions:    paymentOptions,
		CashExpiry:        c.cashExpiry,
		Name:              in.BuyerName,
		Email:             in.BuyerEmail,
		Mobile:            in.BuyerPhone,
		RedirectURL:       c.redirectURL,
		CustomerReference: ref,
	}
	body, err := c.do(ctx, directPayPath, payload)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("easykash_direct_pay_failed", "customer_reference", ref, "error", err)
		}
		return PaymentSession{}, err
	}
	var resp directPayResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return PaymentSession{}, fmt.Errorf("decode direct pay response: %w", err)
	}
	if strings.TrimSpace(resp.RedirectURL) == "" {
		return PaymentSession{}, fmt.Errorf("direct pay response missing redirectUrl")
	}
	return PaymentSession{
		CustomerReference: ref,
		PayURL:            resp.RedirectURL,
		EasykashReference: resp.EasykashReference,
	}, nil
}

// Inquire asks the gateway for the current status of a session. It performs
// a single request; retrying is the caller's decision.
func (c *Client) Inquire(ctx context.Context, customerReference string) (InquiryResult, error) {
	customerReference = strings.TrimSpace(customerReference)
	if customerReference == "" {
		return InquiryResult{}, fmt.Errorf("customer reference is required")
	}
	body, err := c.do(ctx, inquirePath, inquireRequest{CustomerReference: customerReference})
	if err != nil {
		return InquiryResult{}, err
	}
	var resp InquiryResult
	if err := json.Unmarshal(body, &resp); err != nil {
		return InquiryResult{}, fmt.Errorf("decode inquire response: %w", err)
	}
	return resp, nil
}

// NewCustomerReference builds the local correlation id for one payment
// attempt: five random digits, the user id, five more random digits.
func NewCustomerReference(userID int64) (string, error) {
	first, err := randomBlock()
	if err != nil {
		return "", err
	}
	second, err := randomBlock()
	if err != nil {
		return "", err
	}
	return first + strconv.FormatInt(userID, 10) + second, nil
}

var blockSpan = big.NewInt(90000)

func randomBlock() (string, error) {
	n, err := rand.Int(rand.Reader, blockSpan)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+10000, 10), nil
}

func (c *Client) do(ctx context.Context, pathPart string, payload interface{}) ([]byte, error) {
	if c.privateKey == "" {
		return nil, fmt.Errorf("easykash private key is required")
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathPart, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("authorization", c.privateKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if c.logger != nil {
		c.logger.Debug("easykash_api_response", "path", pathPart, "status", resp.StatusCode)
	}
	return body, nil
}
