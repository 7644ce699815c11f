// Package domain holds the order aggregate: the order itself, its line
// items, the payment record, and the lifecycle states they move through.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order. Pending is the only
// non-terminal state; an order never transitions out of Paid, Failed or
// Cancelled.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusPaid      OrderStatus = "PAID"
	StatusFailed    OrderStatus = "FAILED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether s is an absorbing state.
func (s OrderStatus) Terminal() bool {
	return s != StatusPending
}

// PaymentMethod identifies how an order is captured.
type PaymentMethod string

const (
	MethodCOD   PaymentMethod = "COD"
	MethodVNPay PaymentMethod = "VNPAY"
)

// PaymentStatus is the state of a payment record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// LineItem is a cart entry: one product, a quantity, and the unit price at
// the time the item was added. The price travels with the item so a later
// catalog price change cannot alter what the customer pays.
type LineItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Billing carries the customer-entered billing details captured at checkout.
type Billing struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
	Address   string
	City      string
	Country   string
	OrderNote string
}

// Order is the aggregate root. Invariant: IsOrdered == true iff
// Status == StatusPaid, and OrderTotal is computed once at creation and
// never recomputed after payment.
type Order struct {
	ID               string
	OrderNumber      string
	Owner            string // user id or anonymous session id
	Status           OrderStatus
	IsOrdered        bool
	OrderTotal       decimal.Decimal
	Tax              decimal.Decimal
	ShippingHandling decimal.Decimal
	Billing          Billing
	PaymentID        string // empty until the order is paid
	IP               string
	CreatedAt        time.Time
}

// OrderProduct is a line item copied into the order at finalize time.
// ProductPrice is the price-at-purchase snapshot, not a catalog reference.
type OrderProduct struct {
	OrderID      string
	PaymentID    string
	Owner        string
	ProductID    string
	Quantity     int
	ProductPrice decimal.Decimal
	Ordered      bool
}

// Payment is created exactly once, inside the Pending→Paid transition.
type Payment struct {
	ID         string // surrogate row id
	PaymentID  string // gateway transaction id or synthetic COD id
	Method     PaymentMethod
	Status     PaymentStatus
	AmountPaid decimal.Decimal
	Owner      string
	CreatedAt  time.Time
}

var (
	// TaxRate is applied to the cart subtotal.
	TaxRate = decimal.NewFromFloat(0.02)
	// HandlingFee is the fixed shipping and handling charge per order.
	HandlingFee = decimal.NewFromInt(15)
)

// Totals is the price breakdown of an order at creation time.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Handling decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals prices a cart: subtotal, 2% tax rounded to cents, and the
// fixed handling fee.
func ComputeTotals(items []LineItem) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Subtotal())
	}
	tax := subtotal.Mul(TaxRate).Round(2)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Handling: HandlingFee,
		Total:    subtotal.Add(tax).Add(HandlingFee),
	}
}

// NewOrderNumber derives the order number from the wall clock plus a
// sequence suffix, e.g. "202609011430050001". The timestamp alone is only
// second-granular; the suffix keeps two checkouts landing in the same
// second from colliding on the unique order_number index.
func NewOrderNumber(now time.Time, seq uint64) string {
	return now.UTC().Format("20060102150405") + fmt.Sprintf("%04d", seq%10000)
}

// NewPendingOrder builds a Pending order from the given cart snapshot,
// pricing it once.
func NewPendingOrder(owner string, billing Billing, ip string, items []LineItem, now time.Time, seq uint64) *Order {
	t := ComputeTotals(items)
	return &Order{
		ID:               uuid.NewString(),
		OrderNumber:      NewOrderNumber(now, seq),
		Owner:            owner,
		Status:           StatusPending,
		OrderTotal:       t.Total,
		Tax:              t.Tax,
		ShippingHandling: t.Handling,
		Billing:          billing,
		IP:               ip,
		CreatedAt:        now.UTC(),
	}
}
