package gateway

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndlong/eshop-checkout/internal/checkout"
	"github.com/ndlong/eshop-checkout/internal/checkout/domain"
)

type fakeFinalizer struct {
	finalized  []checkout.PaymentProof
	failed     []string
	lastNumber string

	finalizeErr error
}

func (f *fakeFinalizer) Finalize(_ context.Context, orderNumber string, proof checkout.PaymentProof) (*checkout.Result, error) {
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	f.finalized = append(f.finalized, proof)
	f.lastNumber = orderNumber
	return &checkout.Result{
		Order: &domain.Order{
			OrderNumber: orderNumber,
			Owner:       "cust-1",
			Status:      domain.StatusPaid,
			IsOrdered:   true,
			OrderTotal:  decimal.RequireFromString("219"),
			PaymentID:   proof.PaymentID,
		},
	}, nil
}

func (f *fakeFinalizer) MarkFailed(_ context.Context, orderNumber, _ string) error {
	f.failed = append(f.failed, orderNumber)
	return nil
}

func testVNPay(f Finalizer) *VNPay {
	v := NewVNPay(VNPayConfig{
		TmnCode:    "TESTTMN",
		HashSecret: "topsecret",
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "http://localhost:8080/orders/payment-return",
	}, f)
	v.now = func() time.Time {
		return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	}
	return v
}

func TestVNPayInitiate(t *testing.T) {
	v := testVNPay(&fakeFinalizer{})
	order := &domain.Order{
		OrderNumber: "20260314150926",
		OrderTotal:  decimal.RequireFromString("219"),
		IP:          "203.0.113.9",
	}

	res, err := v.Initiate(context.Background(), order)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if !strings.HasPrefix(res.RedirectURL, "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?") {
		t.Fatalf("redirect url = %q", res.RedirectURL)
	}

	u, err := url.Parse(res.RedirectURL)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	q := u.Query()

	// 219 at the default multiplier of 100.
	if got := q.Get("vnp_Amount"); got != "21900" {
		t.Errorf("vnp_Amount = %q, want 21900", got)
	}
	if got := q.Get("vnp_TxnRef"); got != order.OrderNumber {
		t.Errorf("vnp_TxnRef = %q", got)
	}
	if got := q.Get("vnp_CreateDate"); got != "20260314150926" {
		t.Errorf("vnp_CreateDate = %q", got)
	}
	if got := q.Get("vnp_IpAddr"); got != "203.0.113.9" {
		t.Errorf("vnp_IpAddr = %q", got)
	}
	if got := q.Get("vnp_CurrCode"); got != "VND" {
		t.Errorf("vnp_CurrCode = %q", got)
	}

	// The embedded signature verifies against the same params.
	if got, want := q.Get("vnp_SecureHash"), v.Sign(q); got != want {
		t.Errorf("vnp_SecureHash = %q, want %q", got, want)
	}
}

func signedCallback(v *VNPay, orderNumber, responseCode string) url.Values {
	params := url.Values{}
	params.Set("vnp_TmnCode", "TESTTMN")
	params.Set("vnp_Amount", "21900")
	params.Set("vnp_TxnRef", orderNumber)
	params.Set("vnp_ResponseCode", responseCode)
	params.Set("vnp_TransactionNo", "14422574")
	params.Set("vnp_BankCode", "NCB")
	params.Set("vnp_SecureHash", v.Sign(params))
	return params
}

func TestVNPayVerifyCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("valid success callback finalizes the order", func(t *testing.T) {
		f := &fakeFinalizer{}
		v := testVNPay(f)

		res, err := v.VerifyCallback(ctx, signedCallback(v, "20260314150926", "00"))
		if err != nil {
			t.Fatalf("VerifyCallback: %v", err)
		}
		if res.Order.OrderNumber != "20260314150926" {
			t.Errorf("order number = %q", res.Order.OrderNumber)
		}
		if len(f.finalized) != 1 {
			t.Fatalf("finalized = %d, want 1", len(f.finalized))
		}
		if f.finalized[0].PaymentID != "14422574" {
			t.Errorf("payment id = %q, want the provider transaction no", f.finalized[0].PaymentID)
		}
		if f.finalized[0].Method != domain.MethodVNPay {
			t.Errorf("method = %s", f.finalized[0].Method)
		}
	})

	t.Run("tampered amount is rejected before any state change", func(t *testing.T) {
		f := &fakeFinalizer{}
		v := testVNPay(f)

		params := signedCallback(v, "20260314150926", "00")
		params.Set("vnp_Amount", "1")

		_, err := v.VerifyCallback(ctx, params)
		if !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("err = %v, want ErrSignatureInvalid", err)
		}
		if len(f.finalized) != 0 || len(f.failed) != 0 {
			t.Error("finalizer must not be touched on a bad signature")
		}
	})

	t.Run("missing signature is rejected", func(t *testing.T) {
		f := &fakeFinalizer{}
		v := testVNPay(f)

		params := signedCallback(v, "20260314150926", "00")
		params.Del("vnp_SecureHash")

		if _, err := v.VerifyCallback(ctx, params); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("err = %v, want ErrSignatureInvalid", err)
		}
	})

	t.Run("uppercase signature from the provider still verifies", func(t *testing.T) {
		f := &fakeFinalizer{}
		v := testVNPay(f)

		params := signedCallback(v, "20260314150926", "00")
		params.Set("vnp_SecureHash", strings.ToUpper(params.Get("vnp_SecureHash")))

		if _, err := v.VerifyCallback(ctx, params); err != nil {
			t.Fatalf("VerifyCallback: %v", err)
		}
	})

	t.Run("declined code marks the order failed", func(t *testing.T) {
		f := &fakeFinalizer{}
		v := testVNPay(f)

		_, err := v.VerifyCallback(ctx, signedCallback(v, "20260314150926", "24"))
		var declined *DeclinedError
		if !errors.As(err, &declined) {
			t.Fatalf("err = %v, want DeclinedError", err)
		}
		if declined.Code != "24" {
			t.Errorf("code = %q", declined.Code)
		}
		if len(f.failed) != 1 || f.failed[0] != "20260314150926" {
			t.Errorf("failed orders = %v", f.failed)
		}
		if len(f.finalized) != 0 {
			t.Error("declined callback must not finalize")
		}
	})

	t.Run("missing txn ref", func(t *testing.T) {
		f := &fakeFinalizer{}
		v := testVNPay(f)

		params := url.Values{}
		params.Set("vnp_ResponseCode", "00")
		params.Set("vnp_SecureHash", v.Sign(params))

		if _, err := v.VerifyCallback(ctx, params); err == nil {
			t.Fatal("callback without vnp_TxnRef must fail")
		}
		if len(f.finalized) != 0 {
			t.Error("finalizer must not be touched")
		}
	})

	t.Run("callback without transaction no falls back to a synthetic id", func(t *testing.T) {
		f := &fakeFinalizer{}
		v := testVNPay(f)

		params := signedCallback(v, "20260314150926", "00")
		params.Del("vnp_TransactionNo")
		params.Set("vnp_SecureHash", v.Sign(params))

		if _, err := v.VerifyCallback(ctx, params); err != nil {
			t.Fatalf("VerifyCallback: %v", err)
		}
		if got, want := f.finalized[0].PaymentID, "VNPAY-20260314150926"; got != want {
			t.Errorf("payment id = %q, want %q", got, want)
		}
	})
}

func TestCanonicalString(t *testing.T) {
	params := url.Values{}
	params.Set("vnp_TxnRef", "123")
	params.Set("vnp_Amount", "21900")
	params.Set("vnp_OrderInfo", "Payment for order 123")
	params.Set("vnp_SecureHash", "deadbeef")
	params.Set("vnp_SecureHashType", "HmacSHA512")
	params.Set("other", "ignored")

	got := canonicalString(params)
	want := "vnp_Amount=21900&vnp_OrderInfo=Payment+for+order+123&vnp_TxnRef=123"
	if got != want {
		t.Errorf("canonicalString = %q, want %q", got, want)
	}
}

func TestMinorUnits(t *testing.T) {
	v := testVNPay(&fakeFinalizer{})
	cases := []struct {
		total string
		want  string
	}{
		{"219", "21900"},
		{"25.54", "2554"},
		{"0", "0"},
	}
	for _, tc := range cases {
		if got := v.minorUnits(decimal.RequireFromString(tc.total)); got != tc.want {
			t.Errorf("minorUnits(%s) = %q, want %q", tc.total, got, tc.want)
		}
	}
}
