package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("inventory item not found")
	ErrNothingToUpdate = errors.New("nothing to update")
	ErrNegative        = errors.New("quantity and minStock must not be negative")
)

// Record maps the inventory table; min_stock <-> minStock.
type Record struct {
	ID          string    `json:"id"`
	ProductName string    `json:"productName"`
	SKU         string    `json:"sku"`
	Size        string    `json:"size"`
	Color       string    `json:"color"`
	Quantity    int       `json:"quantity"`
	MinStock    int       `json:"minStock"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LowStock is inclusive: sitting exactly on the threshold counts as low.
func (r Record) LowStock() bool { return r.Quantity <= r.MinStock }

// View is the API row; lowStock is derived on read and never stored.
type View struct {
	Record
	LowStock bool `json:"lowStock"`
}

func ToView(r Record) View { return View{Record: r, LowStock: r.LowStock()} }

func ToViews(rs []Record) []View {
	out := make([]View, 0, len(rs))
	for _, r := range rs {
		out = append(out, ToView(r))
	}
	return out
}

// Patch is a partial update; nil fields are left alone.
type Patch struct {
	Quantity *int `json:"quantity,omitempty"`
	MinStock *int `json:"minStock,omitempty"`
}

func (p Patch) Validate() error {
	if p.Quantity == nil && p.MinStock == nil {
		return ErrNothingToUpdate
	}
	if (p.Quantity != nil && *p.Quantity < 0) || (p.MinStock != nil && *p.MinStock < 0) {
		return ErrNegative
	}
	return nil
}

// Apply is what an optimistic view does locally before the store confirms.
func (p Patch) Apply(r Record) Record {
	if p.Quantity != nil {
		r.Quantity = *p.Quantity
	}
	if p.MinStock != nil {
		r.MinStock = *p.MinStock
	}
	return r
}

type Repo struct{ DB *pgxpool.Pool }

const columns = `id::text, product_name, sku, size, color, quantity, min_stock, created_at`

func scan(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.ProductName, &r.SKU, &r.Size, &r.Color, &r.Quantity, &r.MinStock, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

func (r *Repo) list(ctx context.Context, q string) ([]Record, error) {
	rows, err := r.DB.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repo) List(ctx context.Context) ([]Record, error) {
	return r.list(ctx, `SELECT `+columns+` FROM inventory ORDER BY product_name, sku, size, color`)
}

func (r *Repo) ListLow(ctx context.Context) ([]Record, error) {
	return r.list(ctx, `SELECT `+columns+` FROM inventory WHERE quantity <= min_stock ORDER BY quantity`)
}

func (r *Repo) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.Quantity < 0 || rec.MinStock < 0 {
		return Record{}, ErrNegative
	}
	return scan(r.DB.QueryRow(ctx, `
		INSERT INTO inventory(product_name, sku, size, color, quantity, min_stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+columns,
		rec.ProductName, rec.SKU, rec.Size, rec.Color, rec.Quantity, rec.MinStock))
}

func (r *Repo) Update(ctx context.Context, id string, p Patch) (Record, error) {
	if err := p.Validate(); err != nil {
		return Record{}, err
	}
	rec, err := scan(r.DB.QueryRow(ctx, `
		UPDATE inventory SET
			quantity  = COALESCE($2, quantity),
			min_stock = COALESCE($3, min_stock),
			updated_at = now()
		WHERE id::text=$1
		RETURNING `+columns, id, p.Quantity, p.MinStock))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Record{}, fmt.Errorf("update inventory %s: %w", id, err)
	}
	return rec, err
}
