package orders

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrValidation = errors.New("missing required order fields")

const maxNumberAttempts = 5

type ItemInput struct {
	ProductID string `json:"productId,omitempty"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
}

type SubmitRequest struct {
	PaystackReference string      `json:"paystackReference,omitempty"`
	Email             string      `json:"email"`
	CustomerName      string      `json:"customerName"`
	ShippingAddress   string      `json:"shippingAddress"`
	TotalAmount       Amount      `json:"totalAmount"`
	Items             []ItemInput `json:"items"`
	// CartSession lets the follow-up worker clear the shopper's cart once the order exists.
	CartSession string `json:"cartSession,omitempty"`
}

func (r SubmitRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || strings.TrimSpace(r.CustomerName) == "" ||
		r.TotalAmount.IsZero() || len(r.Items) == 0 {
		return ErrValidation
	}
	for i, it := range r.Items {
		if strings.TrimSpace(it.Name) == "" || it.Quantity <= 0 || it.UnitPrice < 0 {
			return fmt.Errorf("%w: item %d", ErrValidation, i)
		}
	}
	return nil
}

type SubmitResult struct {
	Order      Order       `json:"order"`
	OrderItems []OrderItem `json:"orderItems"`
	// Existing is true when the reference had already produced an order.
	Existing bool `json:"existing,omitempty"`
}

// Repository is the slice of *Repo the service needs.
type Repository interface {
	FindByReference(ctx context.Context, ref string) (Order, []OrderItem, error)
	CreateWithItems(ctx context.Context, o Order, items []OrderItem) (Order, []OrderItem, error)
	UpdateFulfillment(ctx context.Context, id string, status Fulfillment) (Order, error)
}

// ReferenceVerifier confirms with the gateway that a reference is a settled charge.
type ReferenceVerifier interface {
	Confirm(ctx context.Context, reference string) error
}

type Service struct {
	Repo      Repository
	Publisher Publisher
	Verifier  ReferenceVerifier // optional
	Producer  string
	Log       *zap.Logger

	Now    func() time.Time
	Random func() int // 0..999999
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) random() int {
	if s.Random != nil {
		return s.Random()
	}
	return rand.IntN(1_000_000)
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// OrderNumber formats DBS-<yyyy>-<6 digits>.
func OrderNumber(t time.Time, n int) string {
	return fmt.Sprintf("DBS-%04d-%06d", t.Year(), n%1_000_000)
}

// Submit persists a confirmed cart as one order. A reference that already has
// an order returns that order instead of creating a second one.
func (s *Service) Submit(ctx context.Context, req SubmitRequest, traceID string) (SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return SubmitResult{}, err
	}

	if req.PaystackReference != "" {
		o, items, err := s.Repo.FindByReference(ctx, req.PaystackReference)
		switch {
		case err == nil:
			return SubmitResult{Order: o, OrderItems: items, Existing: true}, nil
		case !errors.Is(err, ErrNotFound):
			return SubmitResult{}, fmt.Errorf("lookup reference: %w", err)
		}
		if s.Verifier != nil {
			if err := s.Verifier.Confirm(ctx, req.PaystackReference); err != nil {
				return SubmitResult{}, fmt.Errorf("verify reference: %w", err)
			}
		}
	}

	header := Order{
		CustomerName:    strings.TrimSpace(req.CustomerName),
		Email:           strings.TrimSpace(req.Email),
		TotalAmount:     req.TotalAmount,
		ShippingAddress: req.ShippingAddress,
		PaystackRef:     req.PaystackReference,
		State:           State{Fulfillment: StatusPending},
	}
	items := make([]OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		header.ItemsCount += it.Quantity
		items = append(items, OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.Name,
			SKU:         it.SKU,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Color:       it.Color,
			Size:        it.Size,
			Subtotal:    it.UnitPrice * int64(it.Quantity),
		})
	}

	var (
		saved      Order
		savedItems []OrderItem
		err        error
	)
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		header.OrderNumber = OrderNumber(s.now(), s.random())
		saved, savedItems, err = s.Repo.CreateWithItems(ctx, header, items)
		if !errors.Is(err, ErrOrderNumberTaken) {
			break
		}
		s.log().Warn("order number collision, retrying",
			zap.String("order_number", header.OrderNumber), zap.Int("attempt", attempt))
	}
	if errors.Is(err, ErrReferenceConflict) {
		// lost a race with a concurrent submit of the same reference
		o, items, ferr := s.Repo.FindByReference(ctx, req.PaystackReference)
		if ferr == nil {
			return SubmitResult{Order: o, OrderItems: items, Existing: true}, nil
		}
	}
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create order: %w", err)
	}

	s.log().Info("order created",
		zap.String("order_id", saved.ID),
		zap.String("order_number", saved.OrderNumber),
		zap.String("reference", saved.PaystackRef),
		zap.Int("items", saved.ItemsCount))

	Emit(s.Publisher, s.Producer, TopicOrderCreated, EventOrderCreated, saved.ID, traceID, OrderCreatedPayload{
		OrderID:     saved.ID,
		OrderNumber: saved.OrderNumber,
		Reference:   saved.PaystackRef,
		CartSession: req.CartSession,
		ItemsCount:  saved.ItemsCount,
		TotalAmount: saved.TotalAmount.String(),
	})

	return SubmitResult{Order: saved, OrderItems: savedItems}, nil
}

// UpdateStatus validates and applies an admin fulfillment change.
func (s *Service) UpdateStatus(ctx context.Context, id, status, traceID string) (Order, error) {
	f, err := ParseFulfillment(status)
	if err != nil {
		return Order{}, err
	}
	o, err := s.Repo.UpdateFulfillment(ctx, id, f)
	if err != nil {
		return Order{}, err
	}
	Emit(s.Publisher, s.Producer, TopicOrderStatusChanged, EventOrderStatusChanged, o.ID, traceID,
		OrderStatusChangedPayload{OrderID: o.ID, OrderNumber: o.OrderNumber, Status: f})
	return o, nil
}
