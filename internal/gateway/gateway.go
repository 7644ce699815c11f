// Package gateway implements the payment methods an order can be captured
// with. Each method is polymorphic over the same capability: initiate a
// payment for a pending order, and (for redirect-based providers) verify
// the signed callback that reports the result.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/ndlong/eshop-checkout/internal/checkout"
	"github.com/ndlong/eshop-checkout/internal/checkout/domain"
)

// Finalizer is the slice of the checkout orchestrator payment methods
// drive: turning a proof into a Paid order, or closing a declined one.
type Finalizer interface {
	Finalize(ctx context.Context, orderNumber string, proof checkout.PaymentProof) (*checkout.Result, error)
	MarkFailed(ctx context.Context, orderNumber, reason string) error
}

// InitiateResult is what starting a payment yields. Redirect methods fill
// RedirectURL and leave Result nil until the callback arrives; synchronous
// methods (COD) fill Result immediately.
type InitiateResult struct {
	RedirectURL string
	PaymentID   string
	Result      *checkout.Result
}

// Method is one way of paying for an order.
type Method interface {
	Name() domain.PaymentMethod
	Initiate(ctx context.Context, order *domain.Order) (*InitiateResult, error)
}

// ErrSignatureInvalid means a callback's MAC did not match. The order must
// not be finalized: this is a potential forgery and goes to the audit log.
var ErrSignatureInvalid = errors.New("gateway: callback signature mismatch")

// DeclinedError reports a validly signed callback carrying a non-success
// response code.
type DeclinedError struct {
	Code string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("gateway: payment declined by provider (code %s)", e.Code)
}
