package orders

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFulfillment(t *testing.T) {
	for _, s := range []string{"pending", "processing", "shipped", "delivered"} {
		f, err := ParseFulfillment(s)
		require.NoError(t, err)
		assert.Equal(t, Fulfillment(s), f)
	}
	for _, s := range []string{"", "PAID", "Shipped", "cancelled"} {
		_, err := ParseFulfillment(s)
		assert.ErrorIs(t, err, ErrInvalidStatus, s)
	}
}

func TestCanTransition_Payment(t *testing.T) {
	assert.True(t, CanTransition(PaymentNone, PaymentPaid))
	assert.True(t, CanTransition(PaymentNone, PaymentFailed))
	assert.True(t, CanTransition(PaymentFailed, PaymentPaid))
	assert.True(t, CanTransition(PaymentPaid, PaymentPaid))
	assert.False(t, CanTransition(PaymentPaid, PaymentFailed))
	assert.False(t, CanTransition(PaymentPaid, PaymentNone))
}

func TestOrderJSON_FlattensStatePair(t *testing.T) {
	o := Order{
		ID:          "o1",
		OrderNumber: "DBS-2025-000001",
		TotalAmount: AmountFromMinor(18275050),
		State:       State{Fulfillment: StatusProcessing, Payment: PaymentPaid},
	}
	b, err := json.Marshal(o)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "processing", m["status"])
	assert.Equal(t, "PAID", m["paymentStatus"])
	assert.Equal(t, 182750.5, m["totalAmount"])
}

func TestAmount_DecodesNumbersAndStrings(t *testing.T) {
	var req SubmitRequest
	require.NoError(t, json.Unmarshal([]byte(`{"totalAmount": 172000}`), &req))
	assert.Equal(t, "172000", req.TotalAmount.String())

	require.NoError(t, json.Unmarshal([]byte(`{"totalAmount": "1500.25"}`), &req))
	assert.Equal(t, "1500.25", req.TotalAmount.String())
}

func TestSummary(t *testing.T) {
	o := Order{ID: "x", OrderNumber: "DBS-2025-123456", ItemsCount: 3, TotalAmount: NewAmount(100), State: State{Fulfillment: StatusPending}}
	s := o.Summary()
	assert.Equal(t, 3, s.Items)
	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, "100", s.Total.String())
}
