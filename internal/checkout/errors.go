package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyCart is returned when checkout or finalize finds no active
	// line items for the owner.
	ErrEmptyCart = errors.New("checkout: cart is empty")

	// ErrOrderClosed is returned when finalize is attempted on an order
	// already in a terminal non-paid state.
	ErrOrderClosed = errors.New("checkout: order is already closed")
)

// StockShortage describes one line item that cannot be fulfilled.
type StockShortage struct {
	ProductID string
	Available int
	Requested int
}

// Message renders the customer-facing text for this shortage.
func (s StockShortage) Message() string {
	if s.Available == 0 {
		return fmt.Sprintf("%s is out of stock, please remove it from your cart to continue", s.ProductID)
	}
	return fmt.Sprintf("%s: only %d left, please adjust the quantity", s.ProductID, s.Available)
}

// InsufficientStockError reports every offending line item at once, so the
// customer can fix the whole cart in one pass.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	msgs := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		msgs[i] = s.Message()
	}
	return "checkout: insufficient stock: " + strings.Join(msgs, "; ")
}
