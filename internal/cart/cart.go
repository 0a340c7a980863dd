// Package cart holds the pre-checkout cart for one session. The Store is the
// only writer of its snapshot and writes through its Persister on every mutation.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ariefcatur/dbs-storefront/internal/pricing"
	"go.uber.org/zap"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidItem     = errors.New("item requires productId and name")
)

type Item struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	SKU       string `json:"sku,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
	ImageKey  string `json:"imageKey,omitempty"`
}

// Options narrows an item by variant.
type Options struct {
	Color string
	Size  string
}

// Key is the identity of a cart line.
type Key struct {
	ProductID string
	Color     string
	Size      string
}

func (it Item) Key() Key { return Key{ProductID: it.ProductID, Color: it.Color, Size: it.Size} }

func keyOf(productID string, o Options) Key {
	return Key{ProductID: productID, Color: o.Color, Size: o.Size}
}

// Snapshot is what gets persisted.
type Snapshot struct {
	Items  []Item `json:"items"`
	Coupon string `json:"coupon,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{Coupon: s.Coupon, Items: make([]Item, len(s.Items))}
	copy(out.Items, s.Items)
	return out
}

type Store struct {
	mu    sync.Mutex
	p     Persister
	rules pricing.Rules
	log   *zap.Logger
	snap  Snapshot
}

// Load hydrates a store from p. Stored data that cannot be decoded yields an
// empty cart; only transport errors from p are returned.
func Load(ctx context.Context, p Persister, rules pricing.Rules, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	snap, err := p.Read(ctx)
	switch {
	case errors.Is(err, ErrCorrupt):
		log.Warn("cart: discarding unreadable snapshot", zap.Error(err))
		snap = Snapshot{}
	case err != nil:
		return nil, fmt.Errorf("read cart: %w", err)
	}
	snap = sanitize(snap)
	return &Store{p: p, rules: rules, log: log, snap: snap}, nil
}

// sanitize drops rows that could only come from a foreign writer.
func sanitize(s Snapshot) Snapshot {
	out := Snapshot{Coupon: s.Coupon, Items: make([]Item, 0, len(s.Items))}
	for _, it := range s.Items {
		if it.Quantity > 0 && it.ProductID != "" {
			out.Items = append(out.Items, it)
		}
	}
	return out
}

// mutate applies fn to a copy, persists it, and only then makes it visible.
func (s *Store) mutate(ctx context.Context, fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.p.Write(ctx, next); err != nil {
		return fmt.Errorf("write cart: %w", err)
	}
	s.snap = next
	return nil
}

func (s *Store) Add(ctx context.Context, item Item) error {
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if item.ProductID == "" || item.Name == "" {
		return ErrInvalidItem
	}
	return s.mutate(ctx, func(sn *Snapshot) error {
		for i := range sn.Items {
			if sn.Items[i].Key() == item.Key() {
				sn.Items[i].Quantity += item.Quantity
				return nil
			}
		}
		sn.Items = append(sn.Items, item)
		return nil
	})
}

func (s *Store) Remove(ctx context.Context, productID string, opts Options) error {
	k := keyOf(productID, opts)
	return s.mutate(ctx, func(sn *Snapshot) error {
		sn.Items = filter(sn.Items, func(it Item) bool { return it.Key() != k })
		return nil
	})
}

// SetQuantity overwrites the quantity of a line; qty <= 0 removes it.
func (s *Store) SetQuantity(ctx context.Context, productID string, qty int, opts Options) error {
	k := keyOf(productID, opts)
	return s.mutate(ctx, func(sn *Snapshot) error {
		for i := range sn.Items {
			if sn.Items[i].Key() == k {
				sn.Items[i].Quantity = qty
			}
		}
		sn.Items = filter(sn.Items, func(it Item) bool { return it.Quantity > 0 })
		return nil
	})
}

func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func(sn *Snapshot) error {
		*sn = Snapshot{Items: []Item{}}
		return nil
	})
}

func (s *Store) ApplyCoupon(ctx context.Context, code string) error {
	c, err := s.rules.ValidateCoupon(code)
	if err != nil {
		return err
	}
	return s.mutate(ctx, func(sn *Snapshot) error {
		sn.Coupon = c
		return nil
	})
}

func (s *Store) RemoveCoupon(ctx context.Context) error {
	return s.mutate(ctx, func(sn *Snapshot) error {
		sn.Coupon = ""
		return nil
	})
}

func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone().Items
}

func (s *Store) Coupon() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Coupon
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.snap.Items {
		n += it.Quantity
	}
	return n
}

func (s *Store) Subtotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.Subtotal(lines(s.snap.Items))
}

func (s *Store) Quote() pricing.Breakdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules.Quote(lines(s.snap.Items), s.snap.Coupon)
}

func lines(items []Item) []pricing.Line {
	out := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		out = append(out, pricing.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	return out
}

func filter(items []Item, keep func(Item) bool) []Item {
	out := items[:0]
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
