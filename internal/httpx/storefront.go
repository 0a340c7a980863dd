package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/cart"
	"github.com/ariefcatur/dbs-storefront/internal/catalog"
	"github.com/ariefcatur/dbs-storefront/internal/orders"
	"github.com/ariefcatur/dbs-storefront/internal/paystack"
	"github.com/ariefcatur/dbs-storefront/internal/pricing"
	"github.com/ariefcatur/dbs-storefront/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	SessionHeader = "X-Cart-Session"
	SessionCookie = "dbs_cart"
)

type ProductReader interface {
	List(ctx context.Context, category string) ([]catalog.Product, error)
	Get(ctx context.Context, id string) (catalog.Product, error)
}

// CartOpener hydrates the cart of one session.
type CartOpener func(ctx context.Context, session string) (*cart.Store, error)

type OrderSubmitter interface {
	Submit(ctx context.Context, req orders.SubmitRequest, traceID string) (orders.SubmitResult, error)
}

type OrderLookup interface {
	GetByNumber(ctx context.Context, number string) (orders.Order, error)
}

type CheckoutGateway interface {
	Initialize(ctx context.Context, in paystack.InitializeRequest) (paystack.Authorization, error)
}

type StorefrontHandler struct {
	Products  ProductReader
	Presenter catalog.Presenter
	Carts     CartOpener
	Orders    OrderSubmitter
	Lookup    OrderLookup
	Gateway   CheckoutGateway
	Webhook   http.Handler
	Redis     *redis.Client // order status cache; nil disables it

	PublicKey   string
	Currency    string
	CallbackURL string
	// Settings is served verbatim at /api/config; it must hold client-safe values only.
	Settings any
	Log         *zap.Logger
}

func (h *StorefrontHandler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.settings)
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)

		r.Get("/cart", h.getCart)
		r.Delete("/cart", h.clearCart)
		r.Post("/cart/items", h.addItem)
		r.Patch("/cart/items/{productId}", h.setQuantity)
		r.Delete("/cart/items/{productId}", h.removeItem)
		r.Post("/cart/coupon", h.applyCoupon)
		r.Delete("/cart/coupon", h.removeCoupon)

		r.Post("/checkout/initialize", h.initializeCheckout)
		r.Post("/checkout/order", h.submitOrder)
		r.Post("/orders", h.submitOrder)
		r.Get("/orders/{orderNumber}/status", h.orderStatus)

		if h.Webhook != nil {
			r.Method(http.MethodPost, "/paystack/webhook", h.Webhook)
		}
	})
}

func (h *StorefrontHandler) log() *zap.Logger { return nopIfNil(h.Log) }

func (h *StorefrontHandler) settings(w http.ResponseWriter, _ *http.Request) {
	if h.Settings == nil {
		writeJSON(w, http.StatusOK, map[string]string{"paystackPublicKey": h.PublicKey, "currency": h.Currency})
		return
	}
	writeJSON(w, http.StatusOK, h.Settings)
}

func (h *StorefrontHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.List(ctx, r.URL.Query().Get("category"))
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, h.Presenter.Views(ps))
}

func (h *StorefrontHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Products.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, h.Presenter.View(p))
}

// session reads the cart session, issuing a new one when create is set.
func session(w http.ResponseWriter, r *http.Request, create bool) string {
	if s := strings.TrimSpace(r.Header.Get(SessionHeader)); s != "" {
		return s
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if !create {
		return ""
	}
	s := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
	})
	w.Header().Set(SessionHeader, s)
	return s
}

type CartView struct {
	Session string            `json:"session"`
	Items   []cart.Item       `json:"items"`
	Coupon  string            `json:"coupon,omitempty"`
	Count   int               `json:"count"`
	Quote   pricing.Breakdown `json:"quote"`
}

func cartView(sess string, c *cart.Store) CartView {
	return CartView{Session: sess, Items: c.Items(), Coupon: c.Coupon(), Count: c.Count(), Quote: c.Quote()}
}

// withCart opens the session cart, runs fn and answers with the resulting cart.
func (h *StorefrontHandler) withCart(w http.ResponseWriter, r *http.Request, fn func(context.Context, *cart.Store) error) {
	sess := session(w, r, true)
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Carts(ctx, sess)
	if err != nil {
		fail(w, r, h.log(), fmt.Errorf("open cart: %w", err))
		return
	}
	if fn != nil {
		if err := fn(ctx, c); err != nil {
			fail(w, r, h.log(), err)
			return
		}
	}
	writeJSON(w, http.StatusOK, cartView(sess, c))
}

func (h *StorefrontHandler) getCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, nil)
}

func (h *StorefrontHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(ctx context.Context, c *cart.Store) error { return c.Clear(ctx) })
}

func (h *StorefrontHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var it cart.Item
	if !decodeJSON(w, r, &it) {
		return
	}
	h.withCart(w, r, func(ctx context.Context, c *cart.Store) error {
		if h.Products != nil && it.ProductID != "" {
			// the catalog owns name and price; the client only picks the variant
			p, err := h.Products.Get(ctx, it.ProductID)
			if err != nil {
				return err
			}
			it.Name, it.SKU, it.UnitPrice, it.ImageKey = p.Name, p.SKU, p.Price, p.ImageKey
		}
		return c.Add(ctx, it)
	})
}

func variant(r *http.Request) cart.Options {
	q := r.URL.Query()
	return cart.Options{Color: q.Get("color"), Size: q.Get("size")}
}

func (h *StorefrontHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity *int `json:"quantity"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Quantity == nil {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}
	id := chi.URLParam(r, "productId")
	h.withCart(w, r, func(ctx context.Context, c *cart.Store) error {
		return c.SetQuantity(ctx, id, *body.Quantity, variant(r))
	})
}

func (h *StorefrontHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productId")
	h.withCart(w, r, func(ctx context.Context, c *cart.Store) error {
		return c.Remove(ctx, id, variant(r))
	})
}

func (h *StorefrontHandler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	h.withCart(w, r, func(ctx context.Context, c *cart.Store) error { return c.ApplyCoupon(ctx, body.Code) })
}

func (h *StorefrontHandler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(ctx context.Context, c *cart.Store) error { return c.RemoveCoupon(ctx) })
}

type initializeReq struct {
	Email        string `json:"email"`
	CustomerName string `json:"customerName"`
}

type initializeResp struct {
	AuthorizationURL string            `json:"authorizationUrl"`
	AccessCode       string            `json:"accessCode"`
	Reference        string            `json:"reference"`
	PublicKey        string            `json:"publicKey,omitempty"`
	AmountKobo       int64             `json:"amountKobo"`
	Quote            pricing.Breakdown `json:"quote"`
}

// initializeCheckout prices the session cart and opens a Paystack checkout for its total.
func (h *StorefrontHandler) initializeCheckout(w http.ResponseWriter, r *http.Request) {
	var req initializeReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	sess := session(w, r, false)
	if sess == "" || h.Gateway == nil {
		writeError(w, http.StatusBadRequest, "Cart is empty")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	c, err := h.Carts(ctx, sess)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	if c.Count() == 0 {
		writeError(w, http.StatusBadRequest, "Cart is empty")
		return
	}
	q := c.Quote()
	ref := "DBS-" + uuid.NewString()
	auth, err := h.Gateway.Initialize(ctx, paystack.InitializeRequest{
		Email:       req.Email,
		AmountKobo:  q.Total * 100,
		Reference:   ref,
		Currency:    h.Currency,
		CallbackURL: h.CallbackURL,
		Metadata:    map[string]string{"cart_session": sess, "customer_name": req.CustomerName},
	})
	if err != nil {
		h.log().Error("paystack initialize failed", zap.String("reference", ref), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Payment initialization failed")
		return
	}
	if auth.Reference != "" {
		ref = auth.Reference
	}
	writeJSON(w, http.StatusOK, initializeResp{
		AuthorizationURL: auth.AuthorizationURL,
		AccessCode:       auth.AccessCode,
		Reference:        ref,
		PublicKey:        h.PublicKey,
		AmountKobo:       q.Total * 100,
		Quote:            q,
	})
}

func (h *StorefrontHandler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CartSession == "" {
		req.CartSession = session(w, r, false)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Orders.Submit(ctx, req, traceID(r))
	if err != nil {
		if errors.Is(err, orders.ErrValidation) {
			writeError(w, http.StatusBadRequest, "Missing required fields")
			return
		}
		h.log().Error("order submission failed", zap.String("reference", req.PaystackReference), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create order")
		return
	}
	h.cacheStatus(ctx, res.Order)

	code := http.StatusCreated
	if res.Existing {
		code = http.StatusOK
	}
	writeJSON(w, code, orders.Detail{Order: res.Order, OrderItems: res.OrderItems})
}

type statusResp struct {
	OrderNumber   string             `json:"orderNumber"`
	Status        orders.Fulfillment `json:"status"`
	PaymentStatus orders.Payment     `json:"paymentStatus"`
}

func (h *StorefrontHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	b, _ := json.Marshal(statusResp{OrderNumber: o.OrderNumber, Status: o.Fulfillment, PaymentStatus: o.Payment})
	_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, o.OrderNumber), b, redisx.TTLStatusCache).Err()
}

func (h *StorefrontHandler) orderStatus(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "orderNumber")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, number)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) database
	o, err := h.Lookup.GetByNumber(ctx, number)
	if err != nil {
		fail(w, r, h.log(), err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, statusResp{OrderNumber: o.OrderNumber, Status: o.Fulfillment, PaymentStatus: o.Payment})
}
