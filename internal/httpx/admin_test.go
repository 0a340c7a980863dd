package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/adminview"
	"github.com/ariefcatur/dbs-storefront/internal/catalog"
	"github.com/ariefcatur/dbs-storefront/internal/inventory"
	"github.com/ariefcatur/dbs-storefront/internal/orders"
	"github.com/ariefcatur/dbs-storefront/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInventory struct {
	rows map[string]inventory.Record
	err  error
}

func (f *fakeInventory) List(context.Context) ([]inventory.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []inventory.Record{}
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeInventory) ListLow(ctx context.Context) ([]inventory.Record, error) {
	all, err := f.List(ctx)
	var out []inventory.Record
	for _, r := range all {
		if r.LowStock() {
			out = append(out, r)
		}
	}
	return out, err
}

func (f *fakeInventory) Update(_ context.Context, id string, p inventory.Patch) (inventory.Record, error) {
	if err := p.Validate(); err != nil {
		return inventory.Record{}, err
	}
	r, ok := f.rows[id]
	if !ok {
		return inventory.Record{}, inventory.ErrNotFound
	}
	r = p.Apply(r)
	f.rows[id] = r
	return r, nil
}

type fakeOrders struct {
	byID map[string]orders.Order
}

func (f *fakeOrders) List(_ context.Context, status orders.Fulfillment, _ int) ([]orders.Order, error) {
	out := []orders.Order{}
	for _, o := range f.byID {
		if status == "" || o.Fulfillment == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) Get(_ context.Context, id string) (orders.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) Items(_ context.Context, id string) ([]orders.OrderItem, error) {
	return []orders.OrderItem{{ID: "i1", OrderID: id, ProductName: "Tracksuit", UnitPrice: 170000, Quantity: 1, Subtotal: 170000}}, nil
}

func (f *fakeOrders) Stats(ctx context.Context, recent int) (orders.Stats, error) {
	list, _ := f.List(ctx, "", recent)
	total := orders.NewAmount(0)
	for _, o := range list {
		total = orders.Amount{Decimal: total.Add(o.TotalAmount.Decimal)}
	}
	return orders.Stats{TotalOrders: len(f.byID), TotalRevenue: total, Recent: list}, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id, status, _ string) (orders.Order, error) {
	s, err := orders.ParseFulfillment(status)
	if err != nil {
		return orders.Order{}, err
	}
	o, ok := f.byID[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	o.Fulfillment = s
	f.byID[id] = o
	return o, nil
}

type fakeImages struct {
	keys  []string
	types []string
	err   error
}

func (f *fakeImages) Upload(_ context.Context, key, contentType string, body io.Reader) error {
	if f.err != nil {
		return f.err
	}
	_, _ = io.Copy(io.Discard, body)
	f.keys = append(f.keys, key)
	f.types = append(f.types, contentType)
	return nil
}

type adminFixture struct {
	srv       *httptest.Server
	h         *AdminHandler
	products  *fakeProducts
	inv       *fakeInventory
	ords      *fakeOrders
	images    *fakeImages
	unmatched map[string]bool
}

func newAdmin(t *testing.T, token string) *adminFixture {
	t.Helper()
	f := &adminFixture{
		inv: &fakeInventory{rows: map[string]inventory.Record{
			"inv-1": {ID: "inv-1", ProductName: "Crop top", SKU: "DBS-005", Quantity: 3, MinStock: 5},
			"inv-2": {ID: "inv-2", ProductName: "Tracksuit", SKU: "DBS-001", Quantity: 40, MinStock: 5},
		}},
		ords: &fakeOrders{byID: map[string]orders.Order{
			"o1": {ID: "o1", OrderNumber: "DBS-2025-000001", TotalAmount: orders.NewAmount(182750), ItemsCount: 1,
				CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
				State:     orders.State{Fulfillment: orders.StatusPending, Payment: orders.PaymentPaid}},
		}},
	}
	f.products = newFakeProducts(catalog.Product{ID: "1", Name: "Tracksuit", Price: 170000, SKU: "DBS-001"})
	f.images = &fakeImages{}
	f.unmatched = map[string]bool{"ghost": true}
	f.h = &AdminHandler{
		Products:  f.products,
		Inventory: f.inv,
		Orders:    f.ords,
		Status:    f.ords,
		Unmatched: func(context.Context) ([]orders.PaymentUnmatchedPayload, error) {
			return []orders.PaymentUnmatchedPayload{{Reference: "ghost", Event: "charge.success", AmountKobo: 500}}, nil
		},
		Resolve: func(_ context.Context, ref string) (bool, error) {
			ok := f.unmatched[ref]
			delete(f.unmatched, ref)
			return ok, nil
		},
		Images: f.images,
		Token:  token,
		Log:    zap.NewNop(),
	}
	r := NewRouter(zap.NewNop())
	f.h.Register(r)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func send(t *testing.T, method, url, token, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestAdmin_Token(t *testing.T) {
	f := newAdmin(t, "s3cret")
	code, body := send(t, http.MethodGet, f.srv.URL+"/api/admin/inventory", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Unauthorized", body["error"])

	code, _ = send(t, http.MethodGet, f.srv.URL+"/api/admin/inventory", "s3cret", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestAdmin_InventoryPatch(t *testing.T) {
	f := newAdmin(t, "")
	base := f.srv.URL + "/api/admin/inventory/"

	code, body := send(t, http.MethodPatch, base+"inv-2", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Nothing to update", body["error"])

	code, body = send(t, http.MethodPatch, base+"inv-2", "", `{"quantity":5}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["lowStock"], "5/5 is low")
	assert.Equal(t, float64(5), body["minStock"])

	code, _ = send(t, http.MethodPatch, base+"inv-2", "", `{"minStock":-1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = send(t, http.MethodPatch, base+"nope", "", `{"quantity":1}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdmin_Orders(t *testing.T) {
	f := newAdmin(t, "")
	base := f.srv.URL + "/api/admin/orders"

	code, _ := send(t, http.MethodGet, base+"?status=bogus", "", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := send(t, http.MethodGet, base+"/missing", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Order not found", body["error"])

	code, body = send(t, http.MethodGet, base+"/o1", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["orderItems"], 1)

	code, body = send(t, http.MethodPatch, base+"/o1", "", `{"status":"cancelled"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid status", body["error"])

	code, body = send(t, http.MethodPatch, base+"/o1", "", `{"status":"shipped"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "shipped", body["status"])
	assert.Equal(t, "PAID", body["paymentStatus"], "fulfillment writes leave payment alone")
}

func TestAdmin_ProductsCRUD(t *testing.T) {
	f := newAdmin(t, "")
	base := f.srv.URL + "/api/admin/products"

	code, _ := send(t, http.MethodPost, base, "", `{"name":"","sku":"X"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := send(t, http.MethodPost, base, "", `{"name":"Hoodie","sku":"DBS-009","price":25000}`)
	require.Equal(t, http.StatusCreated, code)
	id := body["id"].(string)

	code, body = send(t, http.MethodPut, base+"/"+id, "", `{"name":"Hoodie v2","sku":"DBS-009","price":26000}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Hoodie v2", body["name"])

	code, _ = send(t, http.MethodDelete, base+"/"+id, "", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = send(t, http.MethodGet, base+"/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, code)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// upload posts one multipart "file" part; an empty ctype lets the writer pick octet-stream.
func upload(t *testing.T, url, filename, ctype string, data []byte) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	var part io.Writer
	var err error
	if ctype == "" {
		part, err = mw.CreateFormFile("file", filename)
	} else {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		hdr.Set("Content-Type", ctype)
		part, err = mw.CreatePart(hdr)
	}
	require.NoError(t, err)
	_, _ = part.Write(data)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestAdmin_ImageUpload(t *testing.T) {
	f := newAdmin(t, "")
	base := f.srv.URL + "/api/admin/products/"

	code, body := upload(t, base+"1/image", "front.png", "", pngHeader)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, f.images.keys, 1)
	assert.Regexp(t, `^products/1-\d+\.png$`, f.images.keys[0])
	assert.Equal(t, "image/png", f.images.types[0], "octet-stream parts are sniffed")
	assert.Equal(t, f.images.keys[0], body["imageKey"])
	assert.Equal(t, f.images.keys[0], f.products.items["1"].ImageKey)

	code, body = upload(t, base+"1/image", "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "File must be an image", body["error"])

	code, _ = upload(t, base+"missing/image", "a.png", "image/png", pngHeader)
	assert.Equal(t, http.StatusNotFound, code)

	f.images.err = errors.New("bucket offline")
	code, body = upload(t, base+"1/image", "a.png", "image/png", pngHeader)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "Image upload failed", body["error"])
	assert.Len(t, f.images.keys, 1, "failed uploads leave the product alone")

	f.h.Images = nil
	code, _ = upload(t, base+"1/image", "a.png", "image/png", pngHeader)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestAdmin_ImageUploadToStorage(t *testing.T) {
	var gotPath, gotAuth string
	bucket := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(bucket.Close)

	f := newAdmin(t, "")
	f.h.Images = storage.NewUploader(bucket.URL, "service-key")

	code, body := upload(t, f.srv.URL+"/api/admin/products/1/image", "side.jpg", "image/jpeg", []byte{0xff, 0xd8, 0xff})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "/storage/v1/object/product-images/"+body["imageKey"].(string), gotPath)
}

func TestAdmin_ResolveUnmatched(t *testing.T) {
	f := newAdmin(t, "")
	url := f.srv.URL + "/api/admin/reconciliation/ghost"

	code, _ := send(t, http.MethodDelete, url, "", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, body := send(t, http.MethodDelete, url, "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Reference not found", body["error"])
}

// The admin client and the handlers agree on every shape.
func TestAdmin_WithClient(t *testing.T) {
	f := newAdmin(t, "tok")
	c := adminview.NewClient(f.srv.URL, "tok")
	ctx := context.Background()

	d, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalProducts)
	assert.Equal(t, 1, d.TotalOrders)
	assert.Equal(t, "182750", d.TotalRevenue.String())
	require.Len(t, d.LowStock, 1)
	assert.Equal(t, "inv-1", d.LowStock[0].ID)
	require.Len(t, d.RecentOrders, 1)
	assert.Equal(t, orders.PaymentPaid, d.RecentOrders[0].Payment)

	list, err := c.Orders(ctx, orders.StatusPending)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	detail, err := c.Order(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "DBS-2025-000001", detail.Order.OrderNumber)

	rec, err := c.Reconciliation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ghost", rec[0].Reference)

	p := adminview.NewPanels(c)
	require.NoError(t, p.Mount(ctx))
	require.NoError(t, p.SetOrderStatus(ctx, 0, orders.StatusDelivered))
	assert.Equal(t, orders.StatusDelivered, f.ords.byID["o1"].Fulfillment)

	_, err = c.Product(ctx, "missing")
	var apiErr *adminview.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Product not found", apiErr.Message)
}
