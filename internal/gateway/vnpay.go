package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndlong/eshop-checkout/internal/checkout"
	"github.com/ndlong/eshop-checkout/internal/checkout/domain"
)

const (
	vnpVersion    = "2.1.0"
	vnpCommand    = "pay"
	vnpPrefix     = "vnp_"
	hashParam     = "vnp_SecureHash"
	hashTypeParam = "vnp_SecureHashType"

	// The provider reports success with response code "00".
	responseCodeSuccess = "00"
)

// VNPayConfig carries the merchant credentials and endpoints. Injected
// explicitly; never process-wide globals.
type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string

	// AmountMultiplier converts the order total to the provider's minor
	// unit integer. 100 when totals are already in VND.
	AmountMultiplier int64

	Locale    string // defaults to "vn"
	CurrCode  string // defaults to "VND"
	OrderType string // defaults to "other"
}

// VNPay is the redirect-based gateway: Initiate builds a signed payment URL
// the customer is sent to, VerifyCallback authenticates the provider's
// return call and drives the order to Paid or Failed.
type VNPay struct {
	cfg       VNPayConfig
	finalizer Finalizer
	now       func() time.Time
}

func NewVNPay(cfg VNPayConfig, f Finalizer) *VNPay {
	if cfg.AmountMultiplier <= 0 {
		cfg.AmountMultiplier = 100
	}
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	if cfg.CurrCode == "" {
		cfg.CurrCode = "VND"
	}
	if cfg.OrderType == "" {
		cfg.OrderType = "other"
	}
	return &VNPay{cfg: cfg, finalizer: f, now: time.Now}
}

var _ Method = (*VNPay)(nil)

func (v *VNPay) Name() domain.PaymentMethod {
	return domain.MethodVNPay
}

// Initiate serializes the provider request, signs it and returns the
// redirect URL. Control leaves the system here; the result arrives later on
// the return endpoint as a callback.
func (v *VNPay) Initiate(ctx context.Context, order *domain.Order) (*InitiateResult, error) {
	clientIP := order.IP
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}

	params := url.Values{}
	params.Set("vnp_Version", vnpVersion)
	params.Set("vnp_Command", vnpCommand)
	params.Set("vnp_TmnCode", v.cfg.TmnCode)
	params.Set("vnp_Amount", v.minorUnits(order.OrderTotal))
	params.Set("vnp_CreateDate", v.now().UTC().Format("20060102150405"))
	params.Set("vnp_CurrCode", v.cfg.CurrCode)
	params.Set("vnp_IpAddr", clientIP)
	params.Set("vnp_Locale", v.cfg.Locale)
	params.Set("vnp_OrderInfo", "Payment for order "+order.OrderNumber)
	params.Set("vnp_OrderType", v.cfg.OrderType)
	params.Set("vnp_ReturnUrl", v.cfg.ReturnURL)
	params.Set("vnp_TxnRef", order.OrderNumber)
	params.Set(hashParam, v.Sign(params))

	return &InitiateResult{RedirectURL: v.cfg.PayURL + "?" + params.Encode()}, nil
}

// VerifyCallback authenticates a provider callback and finalizes or fails
// the referenced order.
//
// The MAC is recomputed over every vnp_-prefixed parameter except the hash
// fields themselves, in the same lexicographic order the request was signed
// with, and compared in constant time. A mismatch never touches the order.
// Replayed callbacks are absorbed by finalize's idempotency check.
func (v *VNPay) VerifyCallback(ctx context.Context, params url.Values) (*checkout.Result, error) {
	supplied := params.Get(hashParam)
	if supplied == "" {
		return nil, ErrSignatureInvalid
	}
	expected := v.Sign(params)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(supplied))) {
		return nil, ErrSignatureInvalid
	}

	orderNumber := params.Get("vnp_TxnRef")
	if orderNumber == "" {
		return nil, fmt.Errorf("gateway: callback missing vnp_TxnRef")
	}

	if code := params.Get("vnp_ResponseCode"); code != responseCodeSuccess {
		declined := &DeclinedError{Code: code}
		if err := v.finalizer.MarkFailed(ctx, orderNumber, declined.Error()); err != nil {
			return nil, err
		}
		return nil, declined
	}

	paymentID := params.Get("vnp_TransactionNo")
	if paymentID == "" {
		paymentID = "VNPAY-" + orderNumber
	}
	return v.finalizer.Finalize(ctx, orderNumber, checkout.PaymentProof{
		PaymentID: paymentID,
		Method:    domain.MethodVNPay,
	})
}

// Sign computes the hex HMAC-SHA512 over the canonical string of params.
// It is the same MAC for outbound requests and callback verification.
func (v *VNPay) Sign(params url.Values) string {
	mac := hmac.New(sha512.New, []byte(v.cfg.HashSecret))
	mac.Write([]byte(canonicalString(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalString concatenates the vnp_ parameters as k=v pairs joined by
// '&', keys sorted lexicographically, values URL-escaped. The ordering is
// part of the wire contract: signer and verifier must produce the exact
// same byte sequence.
func canonicalString(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if !strings.HasPrefix(k, vnpPrefix) || k == hashParam || k == hashTypeParam {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(k)))
	}
	return b.String()
}

func (v *VNPay) minorUnits(total decimal.Decimal) string {
	minor := total.Mul(decimal.NewFromInt(v.cfg.AmountMultiplier))
	return strconv.FormatInt(minor.IntPart(), 10)
}
