package redisx

import "time"

const (
	// Cart snapshot per browser session: cart:{session} -> JSON {items, coupon}
	KeyCart = "cart:%s"

	// Cache status order: order_status:{order_number} -> {"status": "...", "paymentStatus": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id or webhook body digest)
	KeyDedup = "dedup:%s:%s"

	// Paystack references the webhook could not match to an order (hash ref -> JSON anomaly).
	KeyUnmatchedPayments = "reconcile:unmatched"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
