package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/orders"
	"github.com/ariefcatur/dbs-storefront/internal/paystack"
	"github.com/ariefcatur/dbs-storefront/internal/redisx"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	maxBody = 1 << 20
	gateway = "PAYSTACK"

	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

var (
	ErrMisconfigured    = errors.New("server misconfigured")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrMissingReference = errors.New("missing reference")
	ErrPayloadTooLarge  = errors.New("payload too large")
)

// Event is the part of a Paystack webhook the reconciler reads.
type Event struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"` // kobo
		PaidAt    string `json:"paid_at"`
	} `json:"data"`
}

// Store is the payment axis of the orders repository.
type Store interface {
	MarkPaid(ctx context.Context, u orders.PaidUpdate) (orders.Order, bool, error)
	MarkFailed(ctx context.Context, ref string, rawEvent []byte) (orders.Order, bool, error)
}

// Deduper claims a key once; later claims of the same key return false.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
}

type RedisDeduper struct {
	RDB *redis.Client
	TTL time.Duration
}

func (d RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ttl := d.TTL
	if ttl == 0 {
		ttl = redisx.TTLDedup
	}
	return redisx.Claim(ctx, d.RDB, fmt.Sprintf(redisx.KeyDedup, "webhook", key), ttl)
}

// Outcome is what the webhook acknowledges back to Paystack.
type Outcome struct {
	Received   bool   `json:"received"`
	OrderFound *bool  `json:"orderFound,omitempty"`
	OrderID    string `json:"-"`
}

// Reconciler is the only writer of an order's payment status.
type Reconciler struct {
	Secret    string
	Store     Store
	Publisher orders.Publisher
	Dedup     Deduper // optional
	Producer  string
	Log       *zap.Logger
	Now       func() time.Time
}

func (rc *Reconciler) log() *zap.Logger {
	if rc.Log == nil {
		return zap.NewNop()
	}
	return rc.Log
}

func (rc *Reconciler) now() time.Time {
	if rc.Now != nil {
		return rc.Now()
	}
	return time.Now().UTC()
}

// Handle verifies, parses and applies one webhook delivery. body must be the
// exact bytes received.
func (rc *Reconciler) Handle(ctx context.Context, body []byte, signature, traceID string) (Outcome, error) {
	if rc.Secret == "" {
		rc.log().Error("webhook secret is not configured")
		return Outcome{}, ErrMisconfigured
	}
	if !paystack.VerifySignature(rc.Secret, body, signature) {
		rc.log().Warn("webhook signature mismatch", zap.Int("body_bytes", len(body)), zap.Bool("header_present", signature != ""))
		return Outcome{}, ErrInvalidSignature
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	ref := ev.Data.Reference
	if ref == "" {
		return Outcome{}, ErrMissingReference
	}
	log := rc.log().With(zap.String("event", ev.Event), zap.String("reference", ref))

	switch {
	case ev.Event == EventChargeSuccess && ev.Data.Status == "success":
		return rc.paid(ctx, log, ev, body, traceID)
	case ev.Event == EventChargeFailed:
		return rc.failed(ctx, log, ev, body, traceID)
	default:
		log.Debug("webhook event ignored")
		return Outcome{Received: true}, nil
	}
}

func (rc *Reconciler) paid(ctx context.Context, log *zap.Logger, ev Event, body []byte, traceID string) (Outcome, error) {
	paidAt := rc.now()
	if t, err := time.Parse(time.RFC3339, ev.Data.PaidAt); err == nil {
		paidAt = t
	}
	u := orders.PaidUpdate{
		Reference: ev.Data.Reference,
		PaidAt:    paidAt,
		Gateway:   gateway,
		RawEvent:  body,
	}
	if ev.Data.Amount > 0 {
		a := orders.AmountFromMinor(ev.Data.Amount)
		u.Amount = &a
	}

	o, wasPaid, err := rc.Store.MarkPaid(ctx, u)
	if errors.Is(err, orders.ErrNotFound) {
		return rc.unmatched(log, ev, traceID), nil
	}
	if err != nil {
		log.Error("mark paid failed", zap.Error(err))
		return Outcome{}, fmt.Errorf("mark paid %s: %w", ev.Data.Reference, err)
	}

	found := true
	out := Outcome{Received: true, OrderFound: &found, OrderID: o.ID}
	if wasPaid {
		log.Info("payment replay, order already paid", zap.String("order_id", o.ID))
		return out, nil
	}
	if !rc.claim(ctx, log, "paid:"+ev.Data.Reference) {
		return out, nil
	}
	log.Info("order paid", zap.String("order_id", o.ID), zap.String("amount", o.TotalAmount.String()))
	if o.PaidAt != nil {
		paidAt = *o.PaidAt
	}
	orders.Emit(rc.Publisher, rc.Producer, orders.TopicOrderPaid, orders.EventOrderPaid, o.ID, traceID, orders.OrderPaidPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Reference:   o.PaystackRef,
		TotalAmount: o.TotalAmount.String(),
		PaidAt:      paidAt,
	})
	return out, nil
}

func (rc *Reconciler) failed(ctx context.Context, log *zap.Logger, ev Event, body []byte, traceID string) (Outcome, error) {
	o, changed, err := rc.Store.MarkFailed(ctx, ev.Data.Reference, body)
	if errors.Is(err, orders.ErrNotFound) {
		return rc.unmatched(log, ev, traceID), nil
	}
	if err != nil {
		log.Error("mark failed failed", zap.Error(err))
		return Outcome{}, fmt.Errorf("mark failed %s: %w", ev.Data.Reference, err)
	}
	found := true
	if !changed {
		log.Info("charge.failed ignored, order already paid")
		return Outcome{Received: true, OrderFound: &found}, nil
	}
	orders.Emit(rc.Publisher, rc.Producer, orders.TopicPaymentFailed, orders.EventPaymentFailed, o.ID, traceID,
		orders.PaymentFailedPayload{OrderID: o.ID, OrderNumber: o.OrderNumber, Reference: ev.Data.Reference})
	return Outcome{Received: true, OrderFound: &found, OrderID: o.ID}, nil
}

func (rc *Reconciler) unmatched(log *zap.Logger, ev Event, traceID string) Outcome {
	log.Warn("webhook reference matches no order", zap.Int64("amount_kobo", ev.Data.Amount))
	orders.Emit(rc.Publisher, rc.Producer, orders.TopicPaymentUnmatched, orders.EventPaymentUnmatched, ev.Data.Reference, traceID,
		orders.PaymentUnmatchedPayload{
			Reference:  ev.Data.Reference,
			Event:      ev.Event,
			AmountKobo: ev.Data.Amount,
			ReceivedAt: rc.now(),
		})
	found := false
	return Outcome{Received: true, OrderFound: &found}
}

// claim returns true when this call is the first to see key. A dedup store
// outage is logged and does not block the event.
func (rc *Reconciler) claim(ctx context.Context, log *zap.Logger, key string) bool {
	if rc.Dedup == nil {
		return true
	}
	ok, err := rc.Dedup.Claim(ctx, key)
	if err != nil {
		log.Warn("dedup claim failed", zap.Error(err))
		return true
	}
	return ok
}

// ServeHTTP reads the raw body and maps Handle's errors onto status codes.
func (rc *Reconciler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": ErrPayloadTooLarge.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	out, err := rc.Handle(ctx, body, r.Header.Get(paystack.SignatureHeader), middleware.GetReqID(r.Context()))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, ErrInvalidSignature):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
	case errors.Is(err, ErrMalformedPayload):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
	case errors.Is(err, ErrMissingReference):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing reference"})
	case errors.Is(err, ErrMisconfigured):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Server misconfigured"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update order"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
