package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/cart"
	"github.com/ariefcatur/dbs-storefront/internal/catalog"
	"github.com/ariefcatur/dbs-storefront/internal/inventory"
	"github.com/ariefcatur/dbs-storefront/internal/logging"
	"github.com/ariefcatur/dbs-storefront/internal/orders"
	"github.com/ariefcatur/dbs-storefront/internal/pricing"
	"github.com/ariefcatur/dbs-storefront/internal/storage"
	"github.com/ariefcatur/dbs-storefront/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.RequestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// statusOf maps domain errors to a status and a client-safe message.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, pricing.ErrInvalidCoupon):
		return http.StatusBadRequest, "Invalid coupon code"
	case errors.Is(err, inventory.ErrNothingToUpdate):
		return http.StatusBadRequest, "Nothing to update"
	case errors.Is(err, orders.ErrValidation):
		return http.StatusBadRequest, "Missing required fields"
	case errors.Is(err, orders.ErrInvalidStatus):
		return http.StatusBadRequest, "Invalid status"
	case errors.Is(err, catalog.ErrValidation),
		errors.Is(err, inventory.ErrNegative),
		errors.Is(err, cart.ErrInvalidItem),
		errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, catalog.ErrSKUTaken):
		return http.StatusConflict, err.Error()
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound, "Inventory item not found"
	case errors.Is(err, storage.ErrNotConfigured):
		return http.StatusServiceUnavailable, "Image storage not configured"
	}
	return http.StatusInternalServerError, "internal error"
}

// fail writes err; server-side failures are logged with their cause.
func fail(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	code, msg := statusOf(err)
	if code >= 500 {
		log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeError(w, code, msg)
}

// traceID prefers the otel trace id and falls back to chi's request id.
func traceID(r *http.Request) string {
	if id := telemetry.TraceID(r.Context()); id != "" {
		return id
	}
	return middleware.GetReqID(r.Context())
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
