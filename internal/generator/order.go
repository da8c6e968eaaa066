package generator

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stanstork/bulkgen/internal/models"
)

// AgedOrderThreshold separates settled orders from recent ones when picking a status.
const AgedOrderThreshold = 7 * 24 * time.Hour

var (
	agedStatusWeights = []Weighted[models.OrderStatus]{
		{models.OrderCompleted, 70},
		{models.OrderProcessing, 20},
		{models.OrderRefunded, 5},
		{models.OrderCancelled, 5},
	}
	recentStatusWeights = []Weighted[models.OrderStatus]{
		{models.OrderCompleted, 30},
		{models.OrderProcessing, 40},
		{models.OrderOnHold, 15},
		{models.OrderPending, 15},
	}
)

// StatusWeights returns the status table for an order of the given age.
func StatusWeights(age time.Duration) []Weighted[models.OrderStatus] {
	if age > AgedOrderThreshold {
		return agedStatusWeights
	}
	return recentStatusWeights
}

func OrderStatus(r Rand, age time.Duration) models.OrderStatus {
	return DrawWeighted(r, StatusWeights(age))
}

type shippingMethod struct {
	ID       string
	Title    string
	Min, Max int
}

var shippingMethods = []shippingMethod{
	{"flat_rate", "Flat Rate", 5, 15},
	{"free_shipping", "Free Shipping", 0, 0},
	{"express", "Express Shipping", 15, 30},
}

type paymentMethod struct {
	ID    string
	Title string
}

var paymentMethods = []paymentMethod{
	{"bacs", "Direct Bank Transfer"},
	{"cheque", "Check Payments"},
	{"cod", "Cash on Delivery"},
	{"paypal", "PayPal"},
}

var (
	countries = []string{"US", "GB", "CA", "AU"}
	states    = map[string][]string{
		"US": {"NY", "CA", "TX", "FL", "IL"},
		"GB": {"LND", "BKM", "ESX", "KNT"},
		"CA": {"ON", "BC", "QC", "AB"},
		"AU": {"NSW", "VIC", "QLD", "WA"},
	}
	taxableCountries = map[string]bool{"US": true, "GB": true, "CA": true, "AU": true}

	firstNames = []string{"John", "Jane", "Michael", "Sarah", "David", "Emma"}
	lastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia"}
	streets    = []string{"Main St", "Oak Ave", "Market St"}
	cities     = []string{"New York", "Los Angeles", "Chicago", "Houston"}
)

// OrderParams bounds one synthesized order.
type OrderParams struct {
	DateRangeDays int
	MaxLineItems  int
}

// Customer synthesizes a billing address in the given country.
func Customer(r Rand, country string) models.Address {
	first := pick(r, firstNames)
	last := pick(r, lastNames)
	addr := models.Address{
		FirstName: first,
		LastName:  last,
		Address1:  fmt.Sprintf("%d %s", Between(r, 100, 9999), pick(r, streets)),
		City:      pick(r, cities),
		State:     pick(r, states[country]),
		Postcode:  fmt.Sprintf("%05d", Between(r, 10000, 99999)),
		Country:   country,
		Email:     strings.ToLower(fmt.Sprintf("%s.%s%d@example.com", first, last, Between(r, 100, 999))),
		Phone:     fmt.Sprintf("(%d) %d-%d", Between(r, 200, 999), Between(r, 200, 999), Between(r, 1000, 9999)),
	}
	if Chance(r, 50) {
		addr.Address2 = fmt.Sprintf("Apt %d", Between(r, 100, 999))
	}
	return addr
}

// BuildOrder synthesizes an unsaved order from a catalog snapshot.
func BuildOrder(r Rand, now time.Time, catalog []models.Product, p OrderParams) models.Order {
	created := now.AddDate(0, 0, -Between(r, 0, p.DateRangeDays))
	country := pick(r, countries)
	customer := Customer(r, country)

	order := models.Order{
		CreatedAt: created,
		Status:    OrderStatus(r, now.Sub(created)),
		Billing:   customer,
		Shipping:  customer,
	}
	order.Shipping.Email = ""
	order.Shipping.Phone = ""

	maxItems := p.MaxLineItems
	if maxItems < 1 {
		maxItems = 1
	}
	var total float64
	for _, product := range Sample(r, catalog, Between(r, 1, maxItems)) {
		price := product.Price()
		if price <= 0 {
			continue
		}
		qty := Between(r, 1, 5)
		lineTotal := Round2(price * float64(qty))
		order.LineItems = append(order.LineItems, models.LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			SKU:       product.SKU,
			Quantity:  qty,
			Total:     lineTotal,
		})
		total += lineTotal
	}

	if total > 0 {
		method := pick(r, shippingMethods)
		cost := float64(Between(r, method.Min, method.Max))
		order.ShippingLines = append(order.ShippingLines, models.ShippingLine{
			MethodID:    method.ID,
			MethodTitle: method.Title,
			Total:       cost,
		})
		if taxableCountries[country] {
			order.CartTax = Round2(total * float64(Between(r, 5, 20)) / 100)
		}
		total += cost
	}

	payment := pick(r, paymentMethods)
	order.PaymentMethod = payment.ID
	order.PaymentMethodTitle = payment.Title
	order.Total = Round2(total + order.CartTax)
	return order
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
