// Package checkout drives the order state machine: a cart snapshot becomes
// a Pending order, and a payment proof turns it into a Paid one inside a
// single atomic finalize step.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ndlong/eshop-checkout/internal/checkout/auditlog"
	"github.com/ndlong/eshop-checkout/internal/checkout/domain"
	"github.com/ndlong/eshop-checkout/internal/checkout/ports"
	"github.com/ndlong/eshop-checkout/internal/pkg/events"
	"github.com/ndlong/eshop-checkout/internal/pkg/metrics"
)

// PaymentProof is what a payment method presents to finalize an order: the
// gateway transaction id (or synthetic COD id) and the method it came from.
type PaymentProof struct {
	PaymentID string
	Method    domain.PaymentMethod
}

// Result is the outcome of a successful finalize. AlreadyFinalized marks a
// replay: the order was paid by an earlier call and nothing was written.
type Result struct {
	Order            *domain.Order
	AlreadyFinalized bool
}

// Orchestrator coordinates the stock ledger, the order repository, the cart
// snapshot and the audit trail. audit, publisher and m may be nil — the
// corresponding side effects are skipped.
type Orchestrator struct {
	orders    ports.OrderRepository
	cart      ports.CartReader
	stock     ports.StockReader
	uow       ports.UnitOfWork
	audit     auditlog.Repository
	publisher *events.Publisher
	metrics   *metrics.CheckoutMetrics

	now func() time.Time

	// seq disambiguates order numbers created within the same second.
	seq atomic.Uint64
}

func New(
	orders ports.OrderRepository,
	cart ports.CartReader,
	stock ports.StockReader,
	uow ports.UnitOfWork,
	audit auditlog.Repository,
	publisher *events.Publisher,
	m *metrics.CheckoutMetrics,
) *Orchestrator {
	return &Orchestrator{
		orders:    orders,
		cart:      cart,
		stock:     stock,
		uow:       uow,
		audit:     audit,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
	}
}

// CheckAvailability validates every line item against current stock. It
// fails when a product is out of stock or the requested quantity exceeds
// what is available, reporting all shortages at once.
func CheckAvailability(ctx context.Context, stock ports.StockReader, items []domain.LineItem) error {
	var shortages []StockShortage
	for _, it := range items {
		available, err := stock.Available(ctx, it.ProductID)
		if err != nil {
			return fmt.Errorf("checkout: read stock for %q: %w", it.ProductID, err)
		}
		if available == 0 || it.Quantity > available {
			shortages = append(shortages, StockShortage{
				ProductID: it.ProductID,
				Available: available,
				Requested: it.Quantity,
			})
		}
	}
	if len(shortages) > 0 {
		return &InsufficientStockError{Shortages: shortages}
	}
	return nil
}

// BeginCheckout turns the owner's active cart into a Pending order. Stock is
// pre-checked here, and checked again inside Finalize: stock may change
// between the checkout page and the payment callback.
func (o *Orchestrator) BeginCheckout(ctx context.Context, owner string, billing domain.Billing, ip string) (*domain.Order, error) {
	items, err := o.cart.ActiveItems(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("checkout: read cart for %q: %w", owner, err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if err := CheckAvailability(ctx, o.stock, items); err != nil {
		return nil, err
	}

	order := domain.NewPendingOrder(owner, billing, ip, items, o.now(), o.seq.Add(1))
	if err := o.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("checkout: create order: %w", err)
	}

	o.logAudit(ctx, order.OrderNumber, auditlog.StatusStarted, "begin_checkout", "")
	o.metrics.IncCheckoutStarted()
	slog.InfoContext(ctx, "checkout started",
		"order_number", order.OrderNumber,
		"owner", owner,
		"order_total", order.OrderTotal.String(),
	)
	return order, nil
}

// Finalize transitions an order from Pending to Paid. Inside one
// transaction it re-validates stock against the owner's current cart,
// creates the payment, snapshots the line items into order products,
// decrements the stock ledger and clears the cart. Any failure rolls the
// whole step back.
//
// Finalize is idempotent on the order number: a second call for a paid
// order returns the existing order without touching stock or payments,
// which also absorbs replayed gateway callbacks.
func (o *Orchestrator) Finalize(ctx context.Context, orderNumber string, proof PaymentProof) (*Result, error) {
	start := time.Now()
	var result Result

	err := o.uow.RunFinalize(ctx, func(tx ports.FinalizeTx) error {
		order, err := tx.OrderByNumber(ctx, orderNumber)
		if err != nil {
			return err
		}
		if order.IsOrdered {
			result = Result{Order: order, AlreadyFinalized: true}
			return nil
		}
		if order.Status.Terminal() {
			return ErrOrderClosed
		}

		items, err := tx.ActiveItems(ctx, order.Owner)
		if err != nil {
			return fmt.Errorf("checkout: read cart for %q: %w", order.Owner, err)
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}
		if err := CheckAvailability(ctx, tx, items); err != nil {
			return err
		}

		payment := &domain.Payment{
			ID:         uuid.NewString(),
			PaymentID:  proof.PaymentID,
			Method:     proof.Method,
			Status:     domain.PaymentCompleted,
			AmountPaid: order.OrderTotal,
			Owner:      order.Owner,
			CreatedAt:  o.now().UTC(),
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("checkout: create payment: %w", err)
		}

		for _, it := range items {
			op := &domain.OrderProduct{
				OrderID:      order.ID,
				PaymentID:    payment.PaymentID,
				Owner:        order.Owner,
				ProductID:    it.ProductID,
				Quantity:     it.Quantity,
				ProductPrice: it.UnitPrice,
				Ordered:      true,
			}
			if err := tx.InsertOrderProduct(ctx, op); err != nil {
				return fmt.Errorf("checkout: insert order product: %w", err)
			}
			if _, err := tx.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				return fmt.Errorf("checkout: decrement stock for %q: %w", it.ProductID, err)
			}
		}

		if err := tx.MarkOrderPaid(ctx, orderNumber, payment.PaymentID); err != nil {
			return fmt.Errorf("checkout: mark order paid: %w", err)
		}
		if err := tx.ClearCart(ctx, order.Owner); err != nil {
			return fmt.Errorf("checkout: clear cart: %w", err)
		}

		order.Status = domain.StatusPaid
		order.IsOrdered = true
		order.PaymentID = payment.PaymentID
		result = Result{Order: order}
		return nil
	})

	if err != nil {
		// Validation failures close the order for audit; the rolled-back
		// transaction leaves stock and cart untouched. Unexpected errors
		// leave the order Pending so a retried callback can still succeed.
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) || errors.Is(err, ErrEmptyCart) {
			o.failOrder(ctx, orderNumber, err.Error())
		}
		o.metrics.ObserveFinalize(string(proof.Method), "failed", time.Since(start))
		return nil, err
	}

	if result.AlreadyFinalized {
		o.metrics.ObserveFinalize(string(proof.Method), "replayed", time.Since(start))
		slog.InfoContext(ctx, "finalize replay detected",
			"order_number", orderNumber,
			"payment_id", result.Order.PaymentID,
		)
		return &result, nil
	}

	o.logAudit(ctx, orderNumber, auditlog.StatusFinalized, "finalize", string(proof.Method))
	o.metrics.ObserveFinalize(string(proof.Method), "paid", time.Since(start))
	if err := o.publisher.PublishOrderPaid(ctx, events.OrderPaid{
		OrderNumber: orderNumber,
		Owner:       result.Order.Owner,
		PaymentID:   result.Order.PaymentID,
		Method:      string(proof.Method),
		Amount:      result.Order.OrderTotal.String(),
		OccurredAt:  o.now().UTC(),
	}); err != nil {
		slog.WarnContext(ctx, "order.paid event not published", "order_number", orderNumber, "error", err)
	}
	slog.InfoContext(ctx, "order finalized",
		"order_number", orderNumber,
		"payment_id", result.Order.PaymentID,
		"method", string(proof.Method),
	)
	return &result, nil
}

// MarkFailed moves a Pending order to Failed after the provider declined
// the payment. The audit trail records the transition as DECLINED, which
// keeps it distinguishable from the FAILED entries a validation failure
// writes. Terminal orders are left untouched so the transition stays
// one-way.
func (o *Orchestrator) MarkFailed(ctx context.Context, orderNumber, reason string) error {
	order, err := o.orders.ByNumber(ctx, orderNumber)
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return nil
	}
	if err := o.orders.SetStatus(ctx, orderNumber, domain.StatusFailed); err != nil {
		return fmt.Errorf("checkout: mark order failed: %w", err)
	}
	o.logAudit(ctx, orderNumber, auditlog.StatusDeclined, "mark_failed", reason)
	slog.WarnContext(ctx, "order marked failed", "order_number", orderNumber, "reason", reason)
	return nil
}

// Order returns the order for an order number.
func (o *Orchestrator) Order(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return o.orders.ByNumber(ctx, orderNumber)
}

// OrderProducts returns the line item snapshots of a finalized order.
func (o *Orchestrator) OrderProducts(ctx context.Context, orderNumber string) ([]domain.OrderProduct, error) {
	return o.orders.Products(ctx, orderNumber)
}

func (o *Orchestrator) failOrder(ctx context.Context, orderNumber, reason string) {
	if err := o.orders.SetStatus(ctx, orderNumber, domain.StatusFailed); err != nil {
		slog.ErrorContext(ctx, "CRITICAL: failed to close order after finalize failure",
			"order_number", orderNumber,
			"error", err,
		)
		return
	}
	o.logAudit(ctx, orderNumber, auditlog.StatusFailed, "finalize", reason)
}

func (o *Orchestrator) logAudit(ctx context.Context, orderNumber string, status auditlog.Status, stage, detail string) {
	if o.audit == nil {
		return
	}
	entry := auditlog.NewEntry(ctx, orderNumber, status, stage, detail)
	if err := o.audit.Save(ctx, entry); err != nil {
		slog.WarnContext(ctx, "audit entry not saved", "order_number", orderNumber, "error", err)
	}
}
