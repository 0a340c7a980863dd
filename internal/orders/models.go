package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Amount is a major-unit money value backed by a numeric column. It encodes
// as a bare JSON number.
type Amount struct{ decimal.Decimal }

func NewAmount(v int64) Amount { return Amount{decimal.NewFromInt(v)} }

// AmountFromMinor converts kobo (or any 1/100 unit) to the major unit.
func AmountFromMinor(minor int64) Amount { return Amount{decimal.New(minor, -2)} }

func (a Amount) MarshalJSON() ([]byte, error) { return []byte(a.String()), nil }

type Order struct {
	ID              string     `json:"id"`
	OrderNumber     string     `json:"orderNumber"`
	CustomerName    string     `json:"customerName"`
	Email           string     `json:"email"`
	TotalAmount     Amount     `json:"totalAmount"`
	ItemsCount      int        `json:"itemsCount"`
	ShippingAddress string     `json:"shippingAddress,omitempty"`
	PaystackRef     string     `json:"paystackReference,omitempty"`
	Gateway         string     `json:"gateway,omitempty"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	State
}

type OrderItem struct {
	ID          string `json:"id"`
	OrderID     string `json:"orderId"`
	ProductID   string `json:"productId,omitempty"`
	ProductName string `json:"productName"`
	SKU         string `json:"sku,omitempty"`
	UnitPrice   int64  `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	Color       string `json:"color,omitempty"`
	Size        string `json:"size,omitempty"`
	Subtotal    int64  `json:"subtotal"`
}

// Summary is the admin list row; field names follow the admin table.
type Summary struct {
	ID           string      `json:"id"`
	OrderNumber  string      `json:"orderNumber"`
	CustomerName string      `json:"customerName"`
	Email        string      `json:"email"`
	Total        Amount      `json:"total"`
	Status       Fulfillment `json:"status"`
	Payment      Payment     `json:"paymentStatus,omitempty"`
	Items        int         `json:"items"`
	Date         time.Time   `json:"date"`
}

func (o Order) Summary() Summary {
	return Summary{
		ID:           o.ID,
		OrderNumber:  o.OrderNumber,
		CustomerName: o.CustomerName,
		Email:        o.Email,
		Total:        o.TotalAmount,
		Status:       o.Fulfillment,
		Payment:      o.Payment,
		Items:        o.ItemsCount,
		Date:         o.CreatedAt,
	}
}

// Detail is one order with its lines, as the admin detail page shows it.
type Detail struct {
	Order      Order       `json:"order"`
	OrderItems []OrderItem `json:"orderItems"`
}
