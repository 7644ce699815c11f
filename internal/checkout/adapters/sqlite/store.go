// Package sqlite provides the SQLite-backed store for orders, payments,
// order products, the stock ledger and cart snapshots.
//
// The database is opened with one writer connection and WAL mode. With a
// single connection every finalize transaction is serialized, so the
// stock re-check and the decrements that follow can never interleave with
// another finalize — which is exactly the atomicity the checkout state
// machine needs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ndlong/eshop-checkout/internal/checkout/domain"
	"github.com/ndlong/eshop-checkout/internal/checkout/ports"

	// Register the pure-Go SQLite driver. No CGO, so the service builds
	// the same way everywhere, containers included.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id                 TEXT PRIMARY KEY,

    -- Business identifier derived from the checkout timestamp.
    order_number       TEXT    NOT NULL UNIQUE,

    -- User id or anonymous session id owning the order.
    owner              TEXT    NOT NULL,

    -- PENDING / PAID / FAILED / CANCELLED.
    status             TEXT    NOT NULL,

    -- Invariant: is_ordered = 1 iff status = 'PAID'.
    is_ordered         INTEGER NOT NULL DEFAULT 0,

    -- Money stored as decimal TEXT; computed once at creation.
    order_total        TEXT    NOT NULL,
    tax                TEXT    NOT NULL,
    shipping_handling  TEXT    NOT NULL,

    -- Billing block captured at checkout.
    first_name         TEXT    NOT NULL DEFAULT '',
    last_name          TEXT    NOT NULL DEFAULT '',
    phone              TEXT    NOT NULL DEFAULT '',
    email              TEXT    NOT NULL DEFAULT '',
    address            TEXT    NOT NULL DEFAULT '',
    city               TEXT    NOT NULL DEFAULT '',
    country            TEXT    NOT NULL DEFAULT '',
    order_note         TEXT    NOT NULL DEFAULT '',

    -- Gateway transaction id; NULL until the order is paid.
    payment_id         TEXT,

    -- Client IP captured at checkout, forwarded to the gateway request.
    ip                 TEXT    NOT NULL DEFAULT '',

    -- RFC3339 stored as TEXT, SQLite idiom.
    created_at         TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_owner ON orders(owner, status);

CREATE TABLE IF NOT EXISTS order_products (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id       TEXT    NOT NULL,
    payment_id     TEXT    NOT NULL,
    owner          TEXT    NOT NULL,
    product_id     TEXT    NOT NULL,
    quantity       INTEGER NOT NULL,

    -- Price-at-purchase snapshot; survives later catalog price changes.
    product_price  TEXT    NOT NULL,
    ordered        INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_order_products_order ON order_products(order_id);

CREATE TABLE IF NOT EXISTS payments (
    id           TEXT PRIMARY KEY,
    payment_id   TEXT NOT NULL UNIQUE,
    method       TEXT NOT NULL,
    status       TEXT NOT NULL,
    amount_paid  TEXT NOT NULL,
    owner        TEXT NOT NULL,
    created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_ledger (
    product_id  TEXT PRIMARY KEY,

    -- Never negative: decrements clamp at zero, the CHECK is a backstop.
    available   INTEGER NOT NULL CHECK (available >= 0)
);

CREATE TABLE IF NOT EXISTS cart_items (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    owner       TEXT    NOT NULL,
    product_id  TEXT    NOT NULL,
    quantity    INTEGER NOT NULL,
    unit_price  TEXT    NOT NULL,
    UNIQUE(owner, product_id)
);
`

// Store implements the checkout ports on SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ ports.OrderRepository = (*Store)(nil)
	_ ports.CartReader      = (*Store)(nil)
	_ ports.StockReader     = (*Store)(nil)
	_ ports.UnitOfWork      = (*Store)(nil)
)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// Single writer connection serializes finalize transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ── OrderRepository ─────────────────────────────────────────────────────

// Create persists a new Pending order.
func (s *Store) Create(ctx context.Context, o *domain.Order) error {
	const q = `
		INSERT INTO orders
			(id, order_number, owner, status, is_ordered,
			 order_total, tax, shipping_handling,
			 first_name, last_name, phone, email, address, city, country, order_note,
			 payment_id, ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		o.ID, o.OrderNumber, o.Owner, string(o.Status), boolToInt(o.IsOrdered),
		o.OrderTotal.String(), o.Tax.String(), o.ShippingHandling.String(),
		o.Billing.FirstName, o.Billing.LastName, o.Billing.Phone, o.Billing.Email,
		o.Billing.Address, o.Billing.City, o.Billing.Country, o.Billing.OrderNote,
		nullableString(o.PaymentID), o.IP, formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create order %q: %w", o.OrderNumber, err)
	}
	return nil
}

// ByNumber loads an order by its order number.
func (s *Store) ByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return scanOrder(s.db.QueryRowContext(ctx, orderSelect+` WHERE order_number = ?`, orderNumber), orderNumber)
}

// SetStatus updates only the lifecycle state. Guarding against illegal
// transitions is the orchestrator's job; the store stays dumb.
func (s *Store) SetStatus(ctx context.Context, orderNumber string, status domain.OrderStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE order_number = ?`,
		string(status), orderNumber,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set status of %q: %w", orderNumber, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: order %q: %w", orderNumber, ports.ErrOrderNotFound)
	}
	return nil
}

// Products returns the order product snapshots of an order.
func (s *Store) Products(ctx context.Context, orderNumber string) ([]domain.OrderProduct, error) {
	const q = `
		SELECT op.order_id, op.payment_id, op.owner, op.product_id,
		       op.quantity, op.product_price, op.ordered
		FROM   order_products op
		JOIN   orders o ON o.id = op.order_id
		WHERE  o.order_number = ?
		ORDER  BY op.id`

	rows, err := s.db.QueryContext(ctx, q, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("sqlite: products of %q: %w", orderNumber, err)
	}
	defer rows.Close()

	var out []domain.OrderProduct
	for rows.Next() {
		var op domain.OrderProduct
		var price string
		var ordered int
		if err := rows.Scan(&op.OrderID, &op.PaymentID, &op.Owner, &op.ProductID, &op.Quantity, &price, &ordered); err != nil {
			return nil, fmt.Errorf("sqlite: scan order product: %w", err)
		}
		if op.ProductPrice, err = parseDecimal(price); err != nil {
			return nil, err
		}
		op.Ordered = ordered != 0
		out = append(out, op)
	}
	return out, rows.Err()
}

// ── CartReader / StockReader ────────────────────────────────────────────

// ActiveItems returns the owner's current cart snapshot.
func (s *Store) ActiveItems(ctx context.Context, owner string) ([]domain.LineItem, error) {
	return activeItems(ctx, s.db, owner)
}

// Available reports the stock of a product; unknown products read as zero.
func (s *Store) Available(ctx context.Context, productID string) (int, error) {
	return available(ctx, s.db, productID)
}

// ── collaborator write side ─────────────────────────────────────────────
//
// The catalog and cart layers live outside this service but share the
// store. These methods are their write surface (and the test fixture
// surface).

// SetStock upserts the available quantity of a product.
func (s *Store) SetStock(ctx context.Context, productID string, available int) error {
	const q = `
		INSERT INTO stock_ledger (product_id, available) VALUES (?, ?)
		ON CONFLICT(product_id) DO UPDATE SET available = excluded.available`
	if _, err := s.db.ExecContext(ctx, q, productID, available); err != nil {
		return fmt.Errorf("sqlite: set stock of %q: %w", productID, err)
	}
	return nil
}

// AddCartItem upserts a line item in the owner's cart, accumulating the
// quantity and refreshing the price-at-add.
func (s *Store) AddCartItem(ctx context.Context, owner string, item domain.LineItem) error {
	const q = `
		INSERT INTO cart_items (owner, product_id, quantity, unit_price)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner, product_id) DO UPDATE SET
			quantity   = quantity + excluded.quantity,
			unit_price = excluded.unit_price`
	if _, err := s.db.ExecContext(ctx, q, owner, item.ProductID, item.Quantity, item.UnitPrice.String()); err != nil {
		return fmt.Errorf("sqlite: add cart item for %q: %w", owner, err)
	}
	return nil
}

// ── UnitOfWork ──────────────────────────────────────────────────────────

// RunFinalize executes fn inside one transaction. Commit on nil, rollback
// on error.
func (s *Store) RunFinalize(ctx context.Context, fn func(tx ports.FinalizeTx) error) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin finalize tx: %w", err)
	}

	if err := fn(&finalizeTx{tx: dbtx}); err != nil {
		_ = dbtx.Rollback()
		return err
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit finalize tx: %w", err)
	}
	return nil
}

// finalizeTx routes the finalize write set through an open transaction.
type finalizeTx struct {
	tx *sql.Tx
}

var _ ports.FinalizeTx = (*finalizeTx)(nil)

func (f *finalizeTx) OrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return scanOrder(f.tx.QueryRowContext(ctx, orderSelect+` WHERE order_number = ?`, orderNumber), orderNumber)
}

func (f *finalizeTx) ActiveItems(ctx context.Context, owner string) ([]domain.LineItem, error) {
	return activeItems(ctx, f.tx, owner)
}

func (f *finalizeTx) Available(ctx context.Context, productID string) (int, error) {
	return available(ctx, f.tx, productID)
}

func (f *finalizeTx) CreatePayment(ctx context.Context, p *domain.Payment) error {
	const q = `
		INSERT INTO payments (id, payment_id, method, status, amount_paid, owner, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := f.tx.ExecContext(ctx, q,
		p.ID, p.PaymentID, string(p.Method), string(p.Status),
		p.AmountPaid.String(), p.Owner, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create payment %q: %w", p.PaymentID, err)
	}
	return nil
}

func (f *finalizeTx) InsertOrderProduct(ctx context.Context, op *domain.OrderProduct) error {
	const q = `
		INSERT INTO order_products (order_id, payment_id, owner, product_id, quantity, product_price, ordered)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := f.tx.ExecContext(ctx, q,
		op.OrderID, op.PaymentID, op.Owner, op.ProductID, op.Quantity,
		op.ProductPrice.String(), boolToInt(op.Ordered),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert order product %q: %w", op.ProductID, err)
	}
	return nil
}

func (f *finalizeTx) DecrementStock(ctx context.Context, productID string, quantity int) (int, error) {
	// MAX(..., 0) clamps at the zero floor. Oversell is prevented by the
	// availability check that runs in this same transaction; the clamp is
	// the backstop, not the safeguard.
	const q = `UPDATE stock_ledger SET available = MAX(available - ?, 0) WHERE product_id = ?`
	if _, err := f.tx.ExecContext(ctx, q, quantity, productID); err != nil {
		return 0, fmt.Errorf("sqlite: decrement stock of %q: %w", productID, err)
	}
	return available(ctx, f.tx, productID)
}

func (f *finalizeTx) MarkOrderPaid(ctx context.Context, orderNumber, paymentID string) error {
	const q = `
		UPDATE orders
		SET    status = ?, is_ordered = 1, payment_id = ?
		WHERE  order_number = ?`
	res, err := f.tx.ExecContext(ctx, q, string(domain.StatusPaid), paymentID, orderNumber)
	if err != nil {
		return fmt.Errorf("sqlite: mark order %q paid: %w", orderNumber, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: order %q: %w", orderNumber, ports.ErrOrderNotFound)
	}
	return nil
}

func (f *finalizeTx) ClearCart(ctx context.Context, owner string) error {
	if _, err := f.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("sqlite: clear cart of %q: %w", owner, err)
	}
	return nil
}

// ── shared query helpers ────────────────────────────────────────────────

// querier is the common surface of *sql.DB and *sql.Tx the helpers need.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const orderSelect = `
	SELECT id, order_number, owner, status, is_ordered,
	       order_total, tax, shipping_handling,
	       first_name, last_name, phone, email, address, city, country, order_note,
	       COALESCE(payment_id, ''), ip, created_at
	FROM   orders`

func scanOrder(row *sql.Row, orderNumber string) (*domain.Order, error) {
	var o domain.Order
	var status string
	var isOrdered int
	var total, tax, handling, createdAt string

	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.Owner, &status, &isOrdered,
		&total, &tax, &handling,
		&o.Billing.FirstName, &o.Billing.LastName, &o.Billing.Phone, &o.Billing.Email,
		&o.Billing.Address, &o.Billing.City, &o.Billing.Country, &o.Billing.OrderNote,
		&o.PaymentID, &o.IP, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sqlite: order %q: %w", orderNumber, ports.ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan order %q: %w", orderNumber, err)
	}

	o.Status = domain.OrderStatus(status)
	o.IsOrdered = isOrdered != 0
	if o.OrderTotal, err = parseDecimal(total); err != nil {
		return nil, err
	}
	if o.Tax, err = parseDecimal(tax); err != nil {
		return nil, err
	}
	if o.ShippingHandling, err = parseDecimal(handling); err != nil {
		return nil, err
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func activeItems(ctx context.Context, q querier, owner string) ([]domain.LineItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT product_id, quantity, unit_price FROM cart_items WHERE owner = ? ORDER BY id`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: cart items of %q: %w", owner, err)
	}
	defer rows.Close()

	var items []domain.LineItem
	for rows.Next() {
		var it domain.LineItem
		var price string
		if err := rows.Scan(&it.ProductID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("sqlite: scan cart item: %w", err)
		}
		if it.UnitPrice, err = parseDecimal(price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func available(ctx context.Context, q querier, productID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT available FROM stock_ledger WHERE product_id = ?`, productID,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: stock of %q: %w", productID, err)
	}
	return n, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sqlite: parse decimal %q: %w", s, err)
	}
	return d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
