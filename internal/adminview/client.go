package adminview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/catalog"
	"github.com/ariefcatur/dbs-storefront/internal/inventory"
	"github.com/ariefcatur/dbs-storefront/internal/orders"
	"github.com/ariefcatur/dbs-storefront/internal/telemetry"
)

var errIndex = errors.New("row index out of range")

// APIError carries the {"error": ...} body of a failed admin call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

type Dashboard struct {
	TotalProducts int              `json:"totalProducts"`
	TotalOrders   int              `json:"totalOrders"`
	TotalRevenue  orders.Amount    `json:"totalRevenue"`
	RecentOrders  []orders.Summary `json:"recentOrders"`
	LowStock      []inventory.View `json:"lowStock"`
}

// Client talks to /api/admin.
type Client struct {
	base  string
	token string
	http  *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/") + "/api/admin",
		token: token,
		http:  telemetry.Client(&http.Client{Timeout: 10 * time.Second}),
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	err := c.do(ctx, http.MethodGet, "/dashboard", nil, &d)
	return d, err
}

func (c *Client) Products(ctx context.Context) ([]catalog.Product, error) {
	var ps []catalog.Product
	err := c.do(ctx, http.MethodGet, "/products", nil, &ps)
	return ps, err
}

// Product always reads from the server, never from a cached list row.
func (c *Client) Product(ctx context.Context, id string) (catalog.Product, error) {
	var p catalog.Product
	err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &p)
	return p, err
}

func (c *Client) CreateProduct(ctx context.Context, in catalog.Input) (catalog.Product, error) {
	var p catalog.Product
	err := c.do(ctx, http.MethodPost, "/products", in, &p)
	return p, err
}

func (c *Client) UpdateProduct(ctx context.Context, id string, in catalog.Input) (catalog.Product, error) {
	var p catalog.Product
	err := c.do(ctx, http.MethodPut, "/products/"+url.PathEscape(id), in, &p)
	return p, err
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/products/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Inventory(ctx context.Context) ([]inventory.View, error) {
	var rs []inventory.View
	err := c.do(ctx, http.MethodGet, "/inventory", nil, &rs)
	return rs, err
}

func (c *Client) PatchInventory(ctx context.Context, id string, p inventory.Patch) (inventory.View, error) {
	var v inventory.View
	err := c.do(ctx, http.MethodPatch, "/inventory/"+url.PathEscape(id), p, &v)
	return v, err
}

// Orders lists order rows; an empty status lists all.
func (c *Client) Orders(ctx context.Context, status orders.Fulfillment) ([]orders.Summary, error) {
	path := "/orders"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var rows []orders.Summary
	err := c.do(ctx, http.MethodGet, path, nil, &rows)
	return rows, err
}

func (c *Client) Order(ctx context.Context, id string) (orders.Detail, error) {
	var d orders.Detail
	err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &d)
	return d, err
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status orders.Fulfillment) (orders.Order, error) {
	var o orders.Order
	err := c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(id), map[string]string{"status": string(status)}, &o)
	return o, err
}

func (c *Client) Reconciliation(ctx context.Context) ([]orders.PaymentUnmatchedPayload, error) {
	var out []orders.PaymentUnmatchedPayload
	err := c.do(ctx, http.MethodGet, "/reconciliation", nil, &out)
	return out, err
}

// ResolveUnmatched closes one reconciliation anomaly.
func (c *Client) ResolveUnmatched(ctx context.Context, reference string) error {
	return c.do(ctx, http.MethodDelete, "/reconciliation/"+url.PathEscape(reference), nil, nil)
}

// UploadProductImage sends data as the multipart "file" part and returns the
// product with its new image key.
func (c *Client) UploadProductImage(ctx context.Context, id, filename string, data io.Reader) (catalog.Product, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return catalog.Product{}, err
	}
	if _, err := io.Copy(part, data); err != nil {
		return catalog.Product{}, err
	}
	if err := mw.Close(); err != nil {
		return catalog.Product{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/products/"+url.PathEscape(id)+"/image", &buf)
	if err != nil {
		return catalog.Product{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var p catalog.Product
	err = c.send(req, &p)
	return p, err
}
