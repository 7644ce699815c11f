// Package ports defines the interfaces the checkout orchestrator depends on.
// The orchestrator talks to these abstractions, not to SQLite directly, so
// the store can be swapped for in-memory implementations in tests.
package ports

import (
	"context"
	"errors"

	"github.com/ndlong/eshop-checkout/internal/checkout/domain"
)

// ErrOrderNotFound is returned by order lookups when no order exists for the
// given order number.
var ErrOrderNotFound = errors.New("order not found")

// CartReader exposes the active cart snapshot of an owner (user id or
// anonymous session id). The cart itself is maintained by the storefront's
// cart layer; checkout only reads and, on finalize, clears it.
type CartReader interface {
	ActiveItems(ctx context.Context, owner string) ([]domain.LineItem, error)
}

// StockReader reads the authoritative available quantity of a product.
// Unknown products report zero stock.
type StockReader interface {
	Available(ctx context.Context, productID string) (int, error)
}

// OrderRepository persists orders outside the finalize transaction.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	ByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	SetStatus(ctx context.Context, orderNumber string, status domain.OrderStatus) error
	Products(ctx context.Context, orderNumber string) ([]domain.OrderProduct, error)
}

// FinalizeTx is the write set available inside the finalize transaction.
// Every read through it observes the transaction's snapshot, so the stock
// re-validation and the decrements that follow cannot be interleaved with
// another finalize.
type FinalizeTx interface {
	StockReader
	CartReader

	OrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	CreatePayment(ctx context.Context, p *domain.Payment) error
	InsertOrderProduct(ctx context.Context, op *domain.OrderProduct) error
	// DecrementStock lowers the available quantity, clamping at zero, and
	// returns the new value.
	DecrementStock(ctx context.Context, productID string, quantity int) (int, error)
	MarkOrderPaid(ctx context.Context, orderNumber, paymentID string) error
	ClearCart(ctx context.Context, owner string) error
}

// UnitOfWork runs fn inside a single transaction: commit when fn returns
// nil, roll back every write otherwise.
type UnitOfWork interface {
	RunFinalize(ctx context.Context, fn func(tx FinalizeTx) error) error
}
