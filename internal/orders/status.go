package orders

import "errors"

var ErrInvalidStatus = errors.New("invalid status value")

// Fulfillment is written only by the admin panel.
type Fulfillment string

const (
	StatusPending    Fulfillment = "pending"
	StatusProcessing Fulfillment = "processing"
	StatusShipped    Fulfillment = "shipped"
	StatusDelivered  Fulfillment = "delivered"
)

// Payment is written only by the payment webhook.
type Payment string

const (
	PaymentNone   Payment = ""
	PaymentPaid   Payment = "PAID"
	PaymentFailed Payment = "FAILED"
)

// State pairs the two independent axes of an order.
type State struct {
	Fulfillment Fulfillment `json:"status"`
	Payment     Payment     `json:"paymentStatus,omitempty"`
}

var fulfillments = map[Fulfillment]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusShipped:    true,
	StatusDelivered:  true,
}

func ParseFulfillment(s string) (Fulfillment, error) {
	f := Fulfillment(s)
	if !fulfillments[f] {
		return "", ErrInvalidStatus
	}
	return f, nil
}

// PAID is terminal; re-entering it is allowed so webhook replays stay no-ops.
var validNext = map[Payment]map[Payment]bool{
	PaymentNone:   {PaymentPaid: true, PaymentFailed: true},
	PaymentFailed: {PaymentPaid: true, PaymentFailed: true},
	PaymentPaid:   {PaymentPaid: true},
}

func CanTransition(from, to Payment) bool {
	return validNext[from][to]
}
