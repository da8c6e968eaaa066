package models

import (
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderOnHold     OrderStatus = "on-hold"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
	OrderFailed     OrderStatus = "failed"
)

var orderStatuses = map[OrderStatus]bool{
	OrderPending:    true,
	OrderProcessing: true,
	OrderOnHold:     true,
	OrderCompleted:  true,
	OrderCancelled:  true,
	OrderRefunded:   true,
	OrderFailed:     true,
}

// ParseOrderStatus accepts both "completed" and the prefixed "wc-completed" forms.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "wc-"))
	return s, orderStatuses[s]
}

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (a Address) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

type LineItem struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	SKU       string  `json:"sku,omitempty"`
	Quantity  int     `json:"quantity"`
	Total     float64 `json:"total"`
}

type ShippingLine struct {
	MethodID    string  `json:"method_id"`
	MethodTitle string  `json:"method_title"`
	Total       float64 `json:"total"`
}

type Order struct {
	ID                 int64             `json:"id"`
	Number             string            `json:"number,omitempty"`
	Status             OrderStatus       `json:"status"`
	CreatedAt          time.Time         `json:"created_at"`
	Billing            Address           `json:"billing"`
	Shipping           Address           `json:"shipping"`
	PaymentMethod      string            `json:"payment_method"`
	PaymentMethodTitle string            `json:"payment_method_title"`
	LineItems          []LineItem        `json:"line_items"`
	ShippingLines      []ShippingLine    `json:"shipping_lines"`
	CartTax            float64           `json:"cart_tax"`
	Total              float64           `json:"total"`
	Meta               map[string]string `json:"meta,omitempty"`
}

// ShippingMethod returns the title of the first shipping line, if any.
func (o Order) ShippingMethod() string {
	if len(o.ShippingLines) == 0 {
		return ""
	}
	return o.ShippingLines[0].MethodTitle
}

// OrderFilter narrows order listings. Zero values match everything.
type OrderFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Statuses []OrderStatus
}

func (f OrderFilter) Matches(o Order) bool {
	if f.DateFrom != nil && o.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && !o.CreatedAt.Before(*f.DateTo) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == o.Status {
			return true
		}
	}
	return false
}
