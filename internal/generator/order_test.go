package generator

import (
	"math/rand/v2"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/bulkgen/internal/models"
)

func testCatalog() []models.Product {
	return []models.Product{
		{ID: 1, Name: "Widget", SKU: "W-1", Type: models.ProductSimple, RegularPrice: 10},
		{ID: 2, Name: "Gadget", SKU: "G-1", Type: models.ProductSimple, RegularPrice: 20, SalePrice: 15},
		{ID: 3, Name: "Freebie", SKU: "F-1", Type: models.ProductSimple},
	}
}

func TestBuildOrder_Invariants(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 9))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	emailPattern := regexp.MustCompile(`^[a-z]+\.[a-z]+[1-9]\d{2}@example\.com$`)
	phonePattern := regexp.MustCompile(`^\([2-9]\d{2}\) [2-9]\d{2}-\d{4}$`)
	aptPattern := regexp.MustCompile(`^Apt [1-9]\d{2}$`)

	for i := 0; i < 500; i++ {
		order := BuildOrder(r, now, testCatalog(), OrderParams{DateRangeDays: 90, MaxLineItems: 5})

		assert.False(t, order.CreatedAt.After(now))
		assert.False(t, order.CreatedAt.Before(now.AddDate(0, 0, -90)))
		assert.Contains(t, states, order.Billing.Country)
		assert.Contains(t, states[order.Billing.Country], order.Billing.State)
		assert.Regexp(t, emailPattern, order.Billing.Email)
		assert.Regexp(t, phonePattern, order.Billing.Phone)
		assert.Len(t, order.Billing.Postcode, 5)
		if order.Billing.Address2 != "" {
			assert.Regexp(t, aptPattern, order.Billing.Address2)
		}
		assert.LessOrEqual(t, len(order.LineItems), 3)

		var items float64
		for _, item := range order.LineItems {
			assert.NotEqual(t, int64(3), item.ProductID, "zero-price products are skipped")
			assert.GreaterOrEqual(t, item.Quantity, 1)
			assert.LessOrEqual(t, item.Quantity, 5)
			items += item.Total
		}

		if items > 0 {
			require.Len(t, order.ShippingLines, 1)
			assert.InDelta(t, items*0.05, order.CartTax, items*0.15+0.01)
		} else {
			assert.Empty(t, order.ShippingLines)
			assert.Zero(t, order.CartTax)
		}
		assert.NotEmpty(t, order.PaymentMethod)
	}
}

func TestBuildOrder_ShippingCostWithinMethodRange(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	now := time.Now()

	for i := 0; i < 300; i++ {
		order := BuildOrder(r, now, testCatalog()[:1], OrderParams{DateRangeDays: 10, MaxLineItems: 1})
		require.Len(t, order.ShippingLines, 1)
		line := order.ShippingLines[0]
		switch line.MethodID {
		case "flat_rate":
			assert.True(t, line.Total >= 5 && line.Total <= 15)
		case "free_shipping":
			assert.Zero(t, line.Total)
		case "express":
			assert.True(t, line.Total >= 15 && line.Total <= 30)
		default:
			t.Fatalf("unexpected shipping method %q", line.MethodID)
		}
	}
}

func TestBuildOrder_RecentOrdersUseRecentStatuses(t *testing.T) {
	r := rand.New(rand.NewPCG(8, 1))
	now := time.Now()

	for i := 0; i < 200; i++ {
		order := BuildOrder(r, now, testCatalog(), OrderParams{DateRangeDays: 0, MaxLineItems: 2})
		assert.NotEqual(t, models.OrderRefunded, order.Status)
		assert.NotEqual(t, models.OrderCancelled, order.Status)
	}
}
