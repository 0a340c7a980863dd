package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/imagery"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound   = errors.New("product not found")
	ErrValidation = errors.New("invalid product")
	ErrSKUTaken   = errors.New("sku already used")
)

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	Category    string    `json:"category"`
	SKU         string    `json:"sku"`
	Colors      []string  `json:"colors"`
	Sizes       []string  `json:"sizes"`
	Description string    `json:"description"`
	ImageKey    string    `json:"imageKey"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Input is the editable part of a product, as sent by the admin editor.
type Input struct {
	Name        string   `json:"name"`
	Price       int64    `json:"price"`
	Category    string   `json:"category"`
	SKU         string   `json:"sku"`
	Colors      []string `json:"colors"`
	Sizes       []string `json:"sizes"`
	Description string   `json:"description"`
	ImageKey    string   `json:"imageKey"`
	Stock       int      `json:"stock"`
}

func (in *Input) Normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.TrimSpace(in.SKU)
	in.Category = strings.TrimSpace(in.Category)
	in.Colors = compact(in.Colors)
	in.Sizes = compact(in.Sizes)
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrValidation)
	case in.SKU == "":
		return fmt.Errorf("%w: sku is required", ErrValidation)
	case in.Price < 0:
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	case in.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrValidation)
	}
	return nil
}

// compact trims entries and drops blanks; the editor sends comma-split text.
func compact(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}

// View is a product as the storefront renders it.
type View struct {
	Product
	ImageCandidates []string `json:"imageCandidates"`
}

type Presenter struct {
	StorageURL string
	Width      int
	Quality    int
}

func (p Presenter) View(prod Product) View {
	w, q := p.Width, p.Quality
	if w == 0 {
		w = imagery.DefaultWidth
	}
	if q == 0 {
		q = imagery.DefaultQuality
	}
	return View{Product: prod, ImageCandidates: imagery.Candidates(p.StorageURL, prod.ImageKey, prod.Name, w, q)}
}

func (p Presenter) Views(ps []Product) []View {
	out := make([]View, 0, len(ps))
	for _, prod := range ps {
		out = append(out, p.View(prod))
	}
	return out
}

type Repo struct{ DB *pgxpool.Pool }

const columns = `id::text, name, price, category, sku, colors, sizes, description, image_key, stock, created_at, updated_at`

func scan(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.SKU, &p.Colors, &p.Sizes,
		&p.Description, &p.ImageKey, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrSKUTaken
	}
	return err
}

// List returns products newest first; an empty category means all.
func (r *Repo) List(ctx context.Context, category string) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+columns+` FROM products
		WHERE ($1 = '' OR category = $1)
		ORDER BY created_at DESC`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id string) (Product, error) {
	return scan(r.DB.QueryRow(ctx, `SELECT `+columns+` FROM products WHERE id::text=$1`, id))
}

func (r *Repo) Create(ctx context.Context, in Input) (Product, error) {
	if err := in.Normalize(); err != nil {
		return Product{}, err
	}
	p, err := scan(r.DB.QueryRow(ctx, `
		INSERT INTO products(name, price, category, sku, colors, sizes, description, image_key, stock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+columns,
		in.Name, in.Price, in.Category, in.SKU, in.Colors, in.Sizes, in.Description, in.ImageKey, in.Stock))
	return p, mapWriteErr(err)
}

// Update replaces every editable field of product id.
func (r *Repo) Update(ctx context.Context, id string, in Input) (Product, error) {
	if err := in.Normalize(); err != nil {
		return Product{}, err
	}
	p, err := scan(r.DB.QueryRow(ctx, `
		UPDATE products SET
			name=$2, price=$3, category=$4, sku=$5, colors=$6, sizes=$7,
			description=$8, image_key=$9, stock=$10, updated_at=now()
		WHERE id::text=$1
		RETURNING `+columns,
		id, in.Name, in.Price, in.Category, in.SKU, in.Colors, in.Sizes, in.Description, in.ImageKey, in.Stock))
	return p, mapWriteErr(err)
}

// SetImageKey points the product at an uploaded object without touching other fields.
func (r *Repo) SetImageKey(ctx context.Context, id, key string) (Product, error) {
	return scan(r.DB.QueryRow(ctx, `
		UPDATE products SET image_key=$2, updated_at=now()
		WHERE id::text=$1
		RETURNING `+columns, id, key))
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	tag, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id::text=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	return n, err
}
