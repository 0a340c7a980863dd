package orders

import (
	"encoding/json"
	"time"

	kafkax "github.com/ariefcatur/dbs-storefront/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderPaid          = "OrderPaid"
	EventPaymentFailed      = "PaymentFailed"
	EventPaymentUnmatched   = "PaymentUnmatched"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id or paystack reference
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Reference   string `json:"reference,omitempty"`
	CartSession string `json:"cart_session,omitempty"`
	ItemsCount  int    `json:"items_count"`
	TotalAmount string `json:"total_amount"`
}

type OrderPaidPayload struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Reference   string    `json:"reference"`
	TotalAmount string    `json:"total_amount"`
	PaidAt      time.Time `json:"paid_at"`
}

type PaymentFailedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Reference   string `json:"reference"`
}

type PaymentUnmatchedPayload struct {
	Reference  string    `json:"reference"`
	Event      string    `json:"event"`
	AmountKobo int64     `json:"amount_kobo"`
	ReceivedAt time.Time `json:"received_at"`
}

type OrderStatusChangedPayload struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	Status      Fulfillment `json:"status"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Emit wraps payload in a v1 envelope and hands it to pub, keyed by correlationID.
func Emit(pub Publisher, producer, topic, eventType, correlationID, traceID string, payload any) Envelope {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	if pub == nil {
		return ev
	}
	pub.Publish(topic, PartitionKey(correlationID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return ev
}
