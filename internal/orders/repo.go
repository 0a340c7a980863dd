package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrOrderNumberTaken  = errors.New("order number already used")
	ErrReferenceConflict = errors.New("paystack reference already attached to an order")
)

const pgUniqueViolation = "23505"

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id::text, order_number, customer_name, email, total_amount::text, status,
	COALESCE(payment_status, ''), items_count, COALESCE(shipping_address, ''), COALESCE(paystack_ref, ''),
	COALESCE(gateway, ''), paid_at, created_at, updated_at`

// Same list qualified with "o." for UPDATE ... FROM, where bare names are ambiguous.
const orderColumnsO = `o.id::text, o.order_number, o.customer_name, o.email, o.total_amount::text, o.status,
	COALESCE(o.payment_status, ''), o.items_count, COALESCE(o.shipping_address, ''), COALESCE(o.paystack_ref, ''),
	COALESCE(o.gateway, ''), o.paid_at, o.created_at, o.updated_at`

// scanOrder reads orderColumns; extra destinations, if any, come first in the row.
func scanOrder(row pgx.Row, extra ...any) (Order, error) {
	var (
		o      Order
		total  string
		status string
		pay    string
	)
	dest := append(extra, &o.ID, &o.OrderNumber, &o.CustomerName, &o.Email, &total, &status,
		&pay, &o.ItemsCount, &o.ShippingAddress, &o.PaystackRef,
		&o.Gateway, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return Order{}, fmt.Errorf("total_amount %q: %w", total, err)
	}
	o.TotalAmount = Amount{d}
	o.Fulfillment = Fulfillment(status)
	o.Payment = Payment(pay)
	return o, nil
}

const itemColumns = `id::text, order_id::text, COALESCE(product_id, ''), product_name, COALESCE(sku, ''),
	unit_price, quantity, COALESCE(color, ''), COALESCE(size, ''), subtotal`

func scanItems(rows pgx.Rows) ([]OrderItem, error) {
	defer rows.Close()
	out := []OrderItem{}
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.SKU,
			&it.UnitPrice, &it.Quantity, &it.Color, &it.Size, &it.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateWithItems writes the header and every line in one transaction: either
// all rows land or none do. A clash on order_number surfaces as
// ErrOrderNumberTaken so the caller can retry with a fresh number.
func (r *Repo) CreateWithItems(ctx context.Context, o Order, items []OrderItem) (Order, []OrderItem, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO orders(order_number, customer_name, email, total_amount, status, items_count, shipping_address, paystack_ref)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
		RETURNING `+orderColumns,
		o.OrderNumber, o.CustomerName, o.Email, o.TotalAmount.String(), string(StatusPending),
		o.ItemsCount, nullIfEmpty(o.ShippingAddress), nullIfEmpty(o.PaystackRef),
	)
	saved, err := scanOrder(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			switch pgErr.ConstraintName {
			case "orders_order_number_key":
				return Order{}, nil, ErrOrderNumberTaken
			case "orders_paystack_ref_key":
				return Order{}, nil, ErrReferenceConflict
			}
		}
		return Order{}, nil, fmt.Errorf("insert order: %w", err)
	}

	out := make([]OrderItem, 0, len(items))
	for _, it := range items {
		it.OrderID = saved.ID
		it.Subtotal = it.UnitPrice * int64(it.Quantity)
		err := tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, sku, unit_price, quantity, color, size, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id::text`,
			saved.ID, nullIfEmpty(it.ProductID), it.ProductName, nullIfEmpty(it.SKU),
			it.UnitPrice, it.Quantity, nullIfEmpty(it.Color), nullIfEmpty(it.Size), it.Subtotal,
		).Scan(&it.ID)
		if err != nil {
			return Order{}, nil, fmt.Errorf("insert order item %q: %w", it.ProductName, err)
		}
		out = append(out, it)
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, nil, err
	}
	return saved, out, nil
}

func (r *Repo) FindByReference(ctx context.Context, ref string) (Order, []OrderItem, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE paystack_ref=$1`, ref))
	if err != nil {
		return Order{}, nil, err
	}
	items, err := r.Items(ctx, o.ID)
	if err != nil {
		return Order{}, nil, err
	}
	return o, items, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id::text=$1`, id))
}

func (r *Repo) GetByNumber(ctx context.Context, number string) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number=$1`, number))
}

func (r *Repo) Items(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id::text=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

// List returns orders newest first; an empty status means all.
func (r *Repo) List(ctx context.Context, status Fulfillment, limit int) ([]Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders`
	args := []any{}
	if status != "" {
		q += ` WHERE status=$1`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateFulfillment touches only the fulfillment axis.
func (r *Repo) UpdateFulfillment(ctx context.Context, id string, status Fulfillment) (Order, error) {
	return scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders SET status=$2, updated_at=now()
		WHERE id::text=$1
		RETURNING `+orderColumns, id, string(status)))
}

// PaidUpdate carries what the gateway reported for a successful charge.
type PaidUpdate struct {
	Reference string
	PaidAt    time.Time
	Gateway   string
	Amount    *Amount // nil keeps the stored total
	RawEvent  []byte
}

// MarkPaid touches only the payment axis. It assigns (never adds) the amount
// and keeps the first paid_at, so replays converge on the same row.
// wasPaid reports the payment status before this call.
func (r *Repo) MarkPaid(ctx context.Context, u PaidUpdate) (o Order, wasPaid bool, err error) {
	var amount any
	if u.Amount != nil {
		amount = u.Amount.String()
	}
	var raw any
	if len(u.RawEvent) > 0 {
		raw = json.RawMessage(u.RawEvent)
	}

	var prev string
	row := r.DB.QueryRow(ctx, `
		WITH prev AS (
			SELECT id, COALESCE(payment_status, '') AS payment_status
			FROM orders WHERE paystack_ref=$1 FOR UPDATE
		)
		UPDATE orders o SET
			payment_status='PAID',
			paid_at=COALESCE(o.paid_at, $2),
			gateway=$3,
			total_amount=COALESCE($4::numeric, o.total_amount),
			raw_event=$5,
			updated_at=now()
		FROM prev WHERE o.id = prev.id
		RETURNING prev.payment_status, `+orderColumnsO,
		u.Reference, u.PaidAt, u.Gateway, amount, raw)

	o, err = scanOrder(row, &prev)
	if err != nil {
		return Order{}, false, err
	}
	return o, Payment(prev) == PaymentPaid, nil
}

// MarkFailed records a failed charge when the payment transition table allows
// it. changed is false when the order was already paid; o is the order as it
// stands after the call either way.
func (r *Repo) MarkFailed(ctx context.Context, ref string, rawEvent []byte) (o Order, changed bool, err error) {
	var raw any
	if len(rawEvent) > 0 {
		raw = json.RawMessage(rawEvent)
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return Order{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err = scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE paystack_ref=$1 FOR UPDATE`, ref))
	if err != nil {
		return Order{}, false, err
	}
	if !CanTransition(o.Payment, PaymentFailed) {
		return o, false, nil
	}

	o, err = scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET payment_status='FAILED', raw_event=$2, updated_at=now()
		WHERE id=$1::uuid
		RETURNING `+orderColumns, o.ID, raw))
	if err != nil {
		return Order{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Order{}, false, err
	}
	return o, true, nil
}

// Stats feeds the admin dashboard.
type Stats struct {
	TotalOrders  int     `json:"totalOrders"`
	TotalRevenue Amount  `json:"totalRevenue"`
	Recent       []Order `json:"recentOrders"`
}

func (r *Repo) Stats(ctx context.Context, recent int) (Stats, error) {
	var s Stats
	var revenue string
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total_amount), 0)::text FROM orders`).Scan(&s.TotalOrders, &revenue); err != nil {
		return Stats{}, err
	}
	d, err := decimal.NewFromString(revenue)
	if err != nil {
		return Stats{}, err
	}
	s.TotalRevenue = Amount{d}
	s.Recent, err = r.List(ctx, "", recent)
	return s, err
}
