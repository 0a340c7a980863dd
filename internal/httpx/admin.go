package httpx

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/catalog"
	"github.com/ariefcatur/dbs-storefront/internal/inventory"
	"github.com/ariefcatur/dbs-storefront/internal/orders"
	"github.com/ariefcatur/dbs-storefront/internal/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductStore interface {
	ProductReader
	Create(ctx context.Context, in catalog.Input) (catalog.Product, error)
	Update(ctx context.Context, id string, in catalog.Input) (catalog.Product, error)
	SetImageKey(ctx context.Context, id, key string) (catalog.Product, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type InventoryStore interface {
	List(ctx context.Context) ([]inventory.Record, error)
	ListLow(ctx context.Context) ([]inventory.Record, error)
	Update(ctx context.Context, id string, p inventory.Patch) (inventory.Record, error)
}

type OrderReader interface {
	List(ctx context.Context, status orders.Fulfillment, limit int) ([]orders.Order, error)
	Get(ctx context.Context, id string) (orders.Order, error)
	Items(ctx context.Context, orderID string) ([]orders.OrderItem, error)
	Stats(ctx context.Context, recent int) (orders.Stats, error)
}

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id, status, traceID string) (orders.Order, error)
}

type ImageUploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) error
}

type AdminHandler struct {
	Products  ProductStore
	Inventory InventoryStore
	Orders    OrderReader
	Status    StatusUpdater
	// Unmatched lists webhook references that matched no order.
	Unmatched func(ctx context.Context) ([]orders.PaymentUnmatchedPayload, error)
	// Resolve forgets one unmatched reference; false means it was not recorded.
	Resolve func(ctx context.Context, reference string) (bool, error)
	Images  ImageUploader // nil disables image upload

	Token string // empty disables the bearer check
	Log   *zap.Logger
}

const (
	recentOrders  = 5
	orderListMax  = 200
	maxImageBytes = 5 << 20
)

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.requireToken)

		r.Get("/dashboard", h.dashboard)

		r.Get("/products", h.listProducts)
		r.Post("/products", h.createProduct)
		r.Get("/products/{id}", h.getProduct)
		r.Put("/products/{id}", h.updateProduct)
		r.Delete("/products/{id}", h.deleteProduct)
		r.Post("/products/{id}/image", h.uploadImage)

		r.Get("/inventory", h.listInventory)
		r.Patch("/inventory/{id}", h.patchInventory)

		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Patch("/orders/{id}", h.updateOrder)

		r.Get("/reconciliation", h.reconciliation)
		r.Delete("/reconciliation/{reference}", h.resolveUnmatched)
	})
}

func (h *AdminHandler) log() *zap.Logger { return nopIfNil(h.Log) }

func (h *AdminHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(h.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type dashboardResp struct {
	TotalProducts int              `json:"totalProducts"`
	TotalOrders   int              `json:"totalOrders"`
	TotalRevenue  orders.Amount    `json:"totalRevenue"`
	RecentOrders  []orders.Summary `json:"recentOrders"`
	LowStock      []inventory.View `json:"lowStock"`
}

func summaries(list []orders.Order) []orders.Summary {
	out := make([]orders.Summary, 0, len(list))
	for _, o := range list {
		out = append(out, o.Summary())
	}
	return out
}

func (h *AdminHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := h.Products.Count(ctx)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	st, err := h.Orders.Stats(ctx, recentOrders)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	low, err := h.Inventory.ListLow(ctx)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResp{
		TotalProducts: n,
		TotalOrders:   st.TotalOrders,
		TotalRevenue:  st.TotalRevenue,
		RecentOrders:  summaries(st.Recent),
		LowStock:      inventory.ToViews(low),
	})
}

func (h *AdminHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	ps, err := h.Products.List(ctx, r.URL.Query().Get("category"))
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *AdminHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	p, err := h.Products.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	p, err := h.Products.Create(ctx, in)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	h.log().Info("product created", zap.String("product_id", p.ID), zap.String("sku", p.SKU))
	writeJSON(w, http.StatusCreated, p)
}

func (h *AdminHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	p, err := h.Products.Update(ctx, chi.URLParam(r, "id"), in)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id := chi.URLParam(r, "id")
	if err := h.Products.Delete(ctx, id); err != nil {
		fail(w, r, h.log(), err)
		return
	}
	h.log().Info("product deleted", zap.String("product_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// uploadImage stores the multipart "file" part in the image bucket and points
// the product at it.
func (h *AdminHandler) uploadImage(w http.ResponseWriter, r *http.Request) {
	if h.Images == nil {
		fail(w, r, h.log(), storage.ErrNotConfigured)
		return
	}
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file")
		return
	}
	defer file.Close()

	ctype := hdr.Header.Get("Content-Type")
	if !strings.HasPrefix(ctype, "image/") {
		head := make([]byte, 512)
		n, _ := io.ReadFull(file, head)
		ctype = http.DetectContentType(head[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			fail(w, r, h.log(), err)
			return
		}
	}
	if !strings.HasPrefix(ctype, "image/") {
		writeError(w, http.StatusBadRequest, "File must be an image")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if _, err := h.Products.Get(ctx, id); err != nil {
		fail(w, r, h.log(), err)
		return
	}
	key := storage.ObjectKey(id, hdr.Filename, time.Now())
	if err := h.Images.Upload(ctx, key, ctype, file); err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			fail(w, r, h.log(), err)
			return
		}
		h.log().Error("image upload failed", zap.String("product_id", id), zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Image upload failed")
		return
	}
	p, err := h.Products.SetImageKey(ctx, id, key)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	h.log().Info("product image uploaded", zap.String("product_id", id), zap.String("key", key))
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) listInventory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	rs, err := h.Inventory.List(ctx)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, inventory.ToViews(rs))
}

func (h *AdminHandler) patchInventory(w http.ResponseWriter, r *http.Request) {
	var p inventory.Patch
	if !decodeJSON(w, r, &p) {
		return
	}
	if err := p.Validate(); err != nil {
		fail(w, r, h.log(), err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	rec, err := h.Inventory.Update(ctx, chi.URLParam(r, "id"), p)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, inventory.ToView(rec))
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	var status orders.Fulfillment
	if s := r.URL.Query().Get("status"); s != "" && s != "all" {
		f, err := orders.ParseFulfillment(s)
		if err != nil {
			fail(w, r, h.log(), err)
			return
		}
		status = f
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	list, err := h.Orders.List(ctx, status, orderListMax)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, summaries(list))
}

func (h *AdminHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	o, err := h.Orders.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	items, err := h.Orders.Items(ctx, o.ID)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, orders.Detail{Order: o, OrderItems: items})
}

func (h *AdminHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	o, err := h.Status.UpdateStatus(ctx, chi.URLParam(r, "id"), body.Status, traceID(r))
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	h.log().Info("order status updated", zap.String("order_id", o.ID), zap.String("status", string(o.Fulfillment)))
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) reconciliation(w http.ResponseWriter, r *http.Request) {
	if h.Unmatched == nil {
		writeJSON(w, http.StatusOK, []orders.PaymentUnmatchedPayload{})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	list, err := h.Unmatched(ctx)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) resolveUnmatched(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")
	if h.Resolve == nil {
		writeError(w, http.StatusNotFound, "Reference not found")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	ok, err := h.Resolve(ctx, ref)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Reference not found")
		return
	}
	h.log().Info("unmatched payment resolved", zap.String("reference", ref))
	w.WriteHeader(http.StatusNoContent)
}
