package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func item(productID string, qty int, price string) LineItem {
	return LineItem{
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}

func TestComputeTotals(t *testing.T) {
	t.Run("two items", func(t *testing.T) {
		totals := ComputeTotals([]LineItem{
			item("p1", 2, "100"),
		})

		if got, want := totals.Subtotal.String(), "200"; got != want {
			t.Errorf("subtotal = %s, want %s", got, want)
		}
		if got, want := totals.Tax.String(), "4"; got != want {
			t.Errorf("tax = %s, want %s", got, want)
		}
		if got, want := totals.Handling.String(), "15"; got != want {
			t.Errorf("handling = %s, want %s", got, want)
		}
		if got, want := totals.Total.String(), "219"; got != want {
			t.Errorf("total = %s, want %s", got, want)
		}
	})

	t.Run("tax rounds to two decimals", func(t *testing.T) {
		// subtotal 10.33 -> raw tax 0.2066, rounds to 0.21
		totals := ComputeTotals([]LineItem{item("p1", 1, "10.33")})

		if got, want := totals.Tax.String(), "0.21"; got != want {
			t.Errorf("tax = %s, want %s", got, want)
		}
		if got, want := totals.Total.String(), "25.54"; got != want {
			t.Errorf("total = %s, want %s", got, want)
		}
	})

	t.Run("empty cart still carries the handling fee", func(t *testing.T) {
		totals := ComputeTotals(nil)
		if !totals.Subtotal.IsZero() {
			t.Errorf("subtotal = %s, want 0", totals.Subtotal)
		}
		if got, want := totals.Total.String(), "15"; got != want {
			t.Errorf("total = %s, want %s", got, want)
		}
	})
}

func TestNewOrderNumber(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	if got, want := NewOrderNumber(at, 1), "202603141509260001"; got != want {
		t.Errorf("NewOrderNumber = %q, want %q", got, want)
	}

	// Local times normalize to UTC.
	loc := time.FixedZone("ICT", 7*3600)
	local := time.Date(2026, 3, 14, 22, 9, 26, 0, loc)
	if got := NewOrderNumber(local, 1); got != "202603141509260001" {
		t.Errorf("NewOrderNumber(local) = %q, want UTC-based %q", got, "202603141509260001")
	}

	// The same second yields distinct numbers for distinct sequences.
	if NewOrderNumber(at, 1) == NewOrderNumber(at, 2) {
		t.Error("consecutive sequences within one second must not collide")
	}
	if got, want := NewOrderNumber(at, 42), "202603141509260042"; got != want {
		t.Errorf("NewOrderNumber = %q, want zero-padded %q", got, want)
	}
}

func TestNewPendingOrder(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	items := []LineItem{item("p1", 2, "100")}
	billing := Billing{FirstName: "Linh", LastName: "Tran", Email: "linh@example.com"}

	o := NewPendingOrder("cust-1", billing, "203.0.113.9", items, now, 1)

	if o.Status != StatusPending {
		t.Errorf("status = %s, want %s", o.Status, StatusPending)
	}
	if o.IsOrdered {
		t.Error("new order must not be marked ordered")
	}
	if o.OrderNumber != "202603141509260001" {
		t.Errorf("order number = %q", o.OrderNumber)
	}
	if o.Owner != "cust-1" {
		t.Errorf("owner = %q", o.Owner)
	}
	if got, want := o.OrderTotal.String(), "219"; got != want {
		t.Errorf("order total = %s, want %s", got, want)
	}
	if o.ID == "" {
		t.Error("order id must be set")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	cases := []struct {
		status   OrderStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusPaid, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}
