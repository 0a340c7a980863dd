package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock Repository
type mockRepo struct {
	mu       sync.Mutex
	orders   map[string]Order
	items    map[string][]OrderItem
	taken    map[string]bool
	failItem error
	seq      int
}

func newMockRepo() *mockRepo {
	return &mockRepo{orders: map[string]Order{}, items: map[string][]OrderItem{}, taken: map[string]bool{}}
}

func (m *mockRepo) FindByReference(_ context.Context, ref string) (Order, []OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaystackRef == ref {
			return o, m.items[o.ID], nil
		}
	}
	return Order{}, nil, ErrNotFound
}

// CreateWithItems mimics the transaction: nothing is kept unless every item lands.
func (m *mockRepo) CreateWithItems(_ context.Context, o Order, items []OrderItem) (Order, []OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.taken[o.OrderNumber] {
		return Order{}, nil, ErrOrderNumberTaken
	}
	if m.failItem != nil {
		return Order{}, nil, m.failItem
	}
	m.seq++
	o.ID = fmt.Sprintf("ord-%d", m.seq)
	o.CreatedAt = time.Now()
	out := make([]OrderItem, 0, len(items))
	for i, it := range items {
		it.ID = fmt.Sprintf("%s-item-%d", o.ID, i)
		it.OrderID = o.ID
		it.Subtotal = it.UnitPrice * int64(it.Quantity)
		out = append(out, it)
	}
	m.orders[o.ID] = o
	m.items[o.ID] = out
	m.taken[o.OrderNumber] = true
	return o, out, nil
}

func (m *mockRepo) UpdateFulfillment(_ context.Context, id string, status Fulfillment) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.Fulfillment = status
	m.orders[id] = o
	return o, nil
}

type recordedMsg struct {
	topic string
	key   string
	env   Envelope
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []recordedMsg
}

func (p *mockPublisher) Publish(topic string, key, value []byte, _ ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var env Envelope
	_ = json.Unmarshal(value, &env)
	p.msgs = append(p.msgs, recordedMsg{topic: topic, key: string(key), env: env})
}

type mockVerifier struct{ err error }

func (v mockVerifier) Confirm(context.Context, string) error { return v.err }

func validRequest() SubmitRequest {
	return SubmitRequest{
		PaystackReference: "1733412345678",
		Email:             "ada@example.com",
		CustomerName:      "Ada Obi",
		ShippingAddress:   "12 Allen Ave, Ikeja, Lagos",
		TotalAmount:       NewAmount(342000),
		Items: []ItemInput{
			{ProductID: "1", Name: "DBS Sublimated Tracksuits", SKU: "DBS-001", UnitPrice: 170000, Quantity: 1, Color: "Black", Size: "M"},
			{ProductID: "5", Name: "Soweto ladies CropTops", UnitPrice: 50000, Quantity: 3},
		},
		CartSession: "sess-9",
	}
}

func fixedService(repo Repository, pub Publisher) *Service {
	return &Service{
		Repo:      repo,
		Publisher: pub,
		Producer:  "test",
		Now:       func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) },
		Random:    func() int { return 42 },
	}
}

func TestSubmit_Success(t *testing.T) {
	repo := newMockRepo()
	pub := &mockPublisher{}
	svc := fixedService(repo, pub)

	res, err := svc.Submit(context.Background(), validRequest(), "trace-1")
	require.NoError(t, err)

	assert.Equal(t, "DBS-2025-000042", res.Order.OrderNumber)
	assert.Equal(t, 4, res.Order.ItemsCount)
	assert.Equal(t, StatusPending, res.Order.Fulfillment)
	assert.Equal(t, PaymentNone, res.Order.Payment)
	require.Len(t, res.OrderItems, 2)
	assert.Equal(t, int64(170000), res.OrderItems[0].Subtotal)
	assert.Equal(t, int64(150000), res.OrderItems[1].Subtotal)
	for _, it := range res.OrderItems {
		assert.Equal(t, res.Order.ID, it.OrderID)
	}

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, TopicOrderCreated, pub.msgs[0].topic)
	assert.Equal(t, res.Order.ID, pub.msgs[0].key)
	assert.Equal(t, EventOrderCreated, pub.msgs[0].env.EventType)
	assert.Contains(t, string(pub.msgs[0].env.Payload), `"cart_session":"sess-9"`)
}

func TestSubmit_Validation(t *testing.T) {
	cases := map[string]func(*SubmitRequest){
		"no email":       func(r *SubmitRequest) { r.Email = "" },
		"no name":        func(r *SubmitRequest) { r.CustomerName = "  " },
		"no total":       func(r *SubmitRequest) { r.TotalAmount = Amount{} },
		"empty items":    func(r *SubmitRequest) { r.Items = nil },
		"zero quantity":  func(r *SubmitRequest) { r.Items[0].Quantity = 0 },
		"unnamed item":   func(r *SubmitRequest) { r.Items[1].Name = "" },
		"negative price": func(r *SubmitRequest) { r.Items[1].UnitPrice = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			repo := newMockRepo()
			pub := &mockPublisher{}
			req := validRequest()
			mutate(&req)

			_, err := fixedService(repo, pub).Submit(context.Background(), req, "")
			assert.ErrorIs(t, err, ErrValidation)
			assert.Empty(t, repo.orders)
			assert.Empty(t, pub.msgs)
		})
	}
}

func TestSubmit_RetriesOrderNumberCollision(t *testing.T) {
	repo := newMockRepo()
	repo.taken["DBS-2025-000001"] = true
	repo.taken["DBS-2025-000002"] = true

	n := 0
	svc := fixedService(repo, nil)
	svc.Random = func() int { n++; return n }

	res, err := svc.Submit(context.Background(), validRequest(), "")
	require.NoError(t, err)
	assert.Equal(t, "DBS-2025-000003", res.Order.OrderNumber)
}

func TestSubmit_GivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := newMockRepo()
	repo.taken["DBS-2025-000042"] = true

	_, err := fixedService(repo, nil).Submit(context.Background(), validRequest(), "")
	assert.ErrorIs(t, err, ErrOrderNumberTaken)
}

func TestSubmit_ItemFailureLeavesNothing(t *testing.T) {
	repo := newMockRepo()
	repo.failItem = errors.New("insert order item: boom")
	pub := &mockPublisher{}

	_, err := fixedService(repo, pub).Submit(context.Background(), validRequest(), "")
	require.Error(t, err)
	assert.Empty(t, repo.orders)
	assert.Empty(t, pub.msgs)
}

func TestSubmit_SameReferenceReturnsExisting(t *testing.T) {
	repo := newMockRepo()
	pub := &mockPublisher{}
	n := 0
	svc := fixedService(repo, pub)
	svc.Random = func() int { n++; return n }

	first, err := svc.Submit(context.Background(), validRequest(), "")
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), validRequest(), "")
	require.NoError(t, err)

	assert.True(t, second.Existing)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Len(t, repo.orders, 1)
	assert.Len(t, pub.msgs, 1)
}

func TestSubmit_VerifierRejects(t *testing.T) {
	repo := newMockRepo()
	svc := fixedService(repo, nil)
	svc.Verifier = mockVerifier{err: errors.New("charge abandoned")}

	_, err := svc.Submit(context.Background(), validRequest(), "")
	require.Error(t, err)
	assert.Empty(t, repo.orders)
}

func TestSubmit_NoReferenceSkipsVerifier(t *testing.T) {
	repo := newMockRepo()
	svc := fixedService(repo, nil)
	svc.Verifier = mockVerifier{err: errors.New("should not be called")}
	req := validRequest()
	req.PaystackReference = ""

	_, err := svc.Submit(context.Background(), req, "")
	require.NoError(t, err)
}

func TestOrderNumber_Format(t *testing.T) {
	re := regexp.MustCompile(`^DBS-\d{4}-\d{6}$`)
	now := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	for _, n := range []int{0, 7, 999999} {
		assert.Regexp(t, re, OrderNumber(now, n))
	}
	assert.Equal(t, "DBS-2025-000007", OrderNumber(now, 7))
}

func TestUpdateStatus(t *testing.T) {
	repo := newMockRepo()
	pub := &mockPublisher{}
	svc := fixedService(repo, pub)
	res, err := svc.Submit(context.Background(), validRequest(), "")
	require.NoError(t, err)

	o, err := svc.UpdateStatus(context.Background(), res.Order.ID, "shipped", "")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, o.Fulfillment)
	assert.Equal(t, TopicOrderStatusChanged, pub.msgs[len(pub.msgs)-1].topic)

	_, err = svc.UpdateStatus(context.Background(), res.Order.ID, "cancelled", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.UpdateStatus(context.Background(), "missing", "shipped", "")
	assert.ErrorIs(t, err, ErrNotFound)
}
