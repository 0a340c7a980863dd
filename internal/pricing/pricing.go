// Package pricing computes cart totals. All figures are integers in the store
// currency's major unit and every division floors.
package pricing

import (
	"errors"
	"strings"
)

var ErrInvalidCoupon = errors.New("invalid coupon code")

// Line is the minimum a priced line needs.
type Line struct {
	UnitPrice int64
	Quantity  int
}

type Breakdown struct {
	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Shipping int64  `json:"shipping"`
	Tax      int64  `json:"tax"`
	Total    int64  `json:"total"`
	Coupon   string `json:"coupon,omitempty"`
}

type Rules struct {
	// FreeShippingOver: shipping is free when subtotal is strictly greater.
	FreeShippingOver int64
	FlatShipping     int64
	// TaxPerMille is the tax rate in thousandths (75 = 7.5%).
	TaxPerMille int64
	// Coupons maps lower-case code -> percent off.
	Coupons map[string]int64
}

func DefaultRules() Rules {
	return Rules{
		FreeShippingOver: 50000,
		FlatShipping:     2000,
		TaxPerMille:      75,
		Coupons: map[string]int64{
			"dbs10":    10,
			"welcome5": 10,
		},
	}
}

// WithCoupons swaps the allow-list; nil keeps the current one.
func (r Rules) WithCoupons(c map[string]int64) Rules {
	if c != nil {
		r.Coupons = c
	}
	return r
}

func NormalizeCoupon(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// ValidateCoupon returns the normalized code when it is on the allow-list.
func (r Rules) ValidateCoupon(code string) (string, error) {
	c := NormalizeCoupon(code)
	if _, ok := r.Coupons[c]; !ok || c == "" {
		return "", ErrInvalidCoupon
	}
	return c, nil
}

func Subtotal(lines []Line) int64 {
	var s int64
	for _, l := range lines {
		s += l.UnitPrice * int64(l.Quantity)
	}
	return s
}

// Quote prices the lines. An unknown coupon is ignored here; callers validate
// with ValidateCoupon at apply time. The discount is always derived from the
// current subtotal, never snapshotted.
func (r Rules) Quote(lines []Line, coupon string) Breakdown {
	b := Breakdown{Subtotal: Subtotal(lines)}

	if c := NormalizeCoupon(coupon); c != "" {
		if pct, ok := r.Coupons[c]; ok {
			b.Coupon = c
			b.Discount = b.Subtotal * pct / 100
		}
	}

	if len(lines) > 0 && b.Subtotal <= r.FreeShippingOver {
		b.Shipping = r.FlatShipping
	}

	b.Tax = (b.Subtotal - b.Discount) * r.TaxPerMille / 1000
	b.Total = b.Subtotal - b.Discount + b.Shipping + b.Tax
	return b
}
