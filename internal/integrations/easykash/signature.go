package easykash

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// CallbackPayload is the body EasyKash posts to the payment webhook. The
// first seven fields are the ones covered by the signature; buyer and
// voucher metadata ride along unsigned.
type CallbackPayload struct {
	ProductCode       string `json:"ProductCode"`
	Amount            string `json:"Amount"`
	ProductType       string `json:"ProductType"`
	PaymentMethod     string `json:"PaymentMethod"`
	Status            string `json:"status"`
	EasykashRef       string `json:"easykashRef"`
	CustomerReference string `json:"customerReference"`
	SignatureHash     string `json:"signatureHash"`

	BuyerName   string `json:"BuyerName,omitempty"`
	BuyerEmail  string `json:"BuyerEmail,omitempty"`
	BuyerMobile string `json:"BuyerMobile,omitempty"`
	Voucher     string `json:"voucher,omitempty"`
	VoucherData string `json:"VoucherData,omitempty"`
	Timestamp   string `json:"Timestamp,omitempty"`
}

// VerifyCallback recomputes HMAC-SHA512 over the signed fields concatenated
// in their documented order and compares the hex digest against
// signatureHash in constant time. Any missing signed field fails closed.
func VerifyCallback(secretKey string, payload CallbackPayload) bool {
	if secretKey == "" || payload.SignatureHash == "" {
		return false
	}
	signed := []string{
		payload.ProductCode,
		payload.Amount,
		payload.ProductType,
		payload.PaymentMethod,
		payload.Status,
		payload.EasykashRef,
		payload.CustomerReference,
	}
	mac := hmac.New(sha512.New, []byte(secretKey))
	for _, field := range signed {
		if field == "" {
			return false
		}
		mac.Write([]byte(field))
	}
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(payload.SignatureHash)) == 1
}
