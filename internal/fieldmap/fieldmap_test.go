package fieldmap

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/bulkgen/internal/models"
)

func TestHeaders(t *testing.T) {
	assert.Len(t, OrderHeader, 8)
	assert.Len(t, ProductHeader, 46)
	assert.Equal(t, "ID", ProductHeader[0])
	assert.Equal(t, "Meta fields", ProductHeader[len(ProductHeader)-1])
}

func TestReadRows_NormalizesHeaderAndSkipsBlankLines(t *testing.T) {
	src := "\ufeffOrder ID , Status\n1001,completed\n\n1002,pending\n"

	rows, err := ReadRows(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1001", rows[0]["order id"])
	assert.Equal(t, "pending", rows[1]["status"])
}

func TestReadRows_EmptyFile(t *testing.T) {
	_, err := ReadRows(strings.NewReader(""))
	assert.Error(t, err)
}

func TestOrderRoundTrip(t *testing.T) {
	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	order := models.Order{
		ID:                 42,
		Status:             models.OrderCompleted,
		CreatedAt:          created,
		Total:              123.4,
		Billing:            models.Address{FirstName: "Jane", LastName: "Van Smith", Email: "jane@example.com"},
		ShippingLines:      []models.ShippingLine{{MethodID: "express", MethodTitle: "Express Shipping", Total: 20}},
		PaymentMethod:      "cod",
		PaymentMethodTitle: "Cash on Delivery",
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRows(&buf, OrderHeader, [][]string{OrderRow(order)}))

	rows, err := ReadRows(&buf)
	require.NoError(t, err)
	records := GroupOrders(rows)
	require.Len(t, records, 1)

	got, err := BuildOrder(records[0])
	require.NoError(t, err)
	assert.Equal(t, "42", got.Number)
	assert.Equal(t, "42", got.Meta["_order_number"])
	assert.Equal(t, models.OrderCompleted, got.Status)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, 123.4, got.Total)
	assert.Equal(t, "Jane", got.Billing.FirstName)
	assert.Equal(t, "Van Smith", got.Billing.LastName)
	assert.Equal(t, "express", got.ShippingLines[0].MethodID)
	assert.Equal(t, "cod", got.PaymentMethod)
}

func TestGroupOrders_MultiRowLineItems(t *testing.T) {
	src := "Order ID,Status,Total,Item Name,Item SKU,Item Quantity,Item Total,Billing Country\n" +
		"A-1,processing,30,Widget,W-1,2,20,GB\n" +
		"A-2,pending,5,Gadget,G-1,1,5,US\n" +
		"A-1,,,Kit,K-1,1,10,\n"

	rows, err := ReadRows(strings.NewReader(src))
	require.NoError(t, err)
	records := GroupOrders(rows)
	require.Len(t, records, 2)
	assert.Equal(t, "A-1", records[0].Number)
	assert.Len(t, records[0].Rows, 2)

	order, err := BuildOrder(records[0])
	require.NoError(t, err)
	require.Len(t, order.LineItems, 2)
	assert.Equal(t, "W-1", order.LineItems[0].SKU)
	assert.Equal(t, 2, order.LineItems[0].Quantity)
	assert.Equal(t, "Kit", order.LineItems[1].Name)
	assert.Equal(t, "GB", order.Billing.Country)
	assert.Equal(t, models.OrderProcessing, order.Status)
}

func TestBuildOrder_Errors(t *testing.T) {
	_, err := BuildOrder(OrderRecord{Rows: []Row{{"status": "completed"}}})
	assert.EqualError(t, err, "missing order id")

	_, err = BuildOrder(OrderRecord{Number: "7", Rows: []Row{{"order id": "7", "status": "shipped"}}})
	assert.Error(t, err)

	_, err = BuildOrder(OrderRecord{Number: "8", Rows: []Row{{"order id": "8", "total": "abc"}}})
	assert.Error(t, err)
}

func TestProductRoundTrip(t *testing.T) {
	stock := 7
	saleFrom := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	product := models.Product{
		ID:                9,
		Type:              models.ProductVariable,
		SKU:               "TEST-KIT-1234",
		Name:              "Smart Kit Pro",
		Status:            "publish",
		Featured:          true,
		CatalogVisibility: "visible",
		Description:       "Discover the power of smart kit pro.",
		SaleFrom:          &saleFrom,
		TaxStatus:         "taxable",
		StockStatus:       "instock",
		ManageStock:       true,
		StockQuantity:     &stock,
		Backorders:        "no",
		Weight:            "2.5",
		RegularPrice:      19.99,
		SalePrice:         15,
		Categories:        []string{"Tools", "Garden"},
		Tags:              []string{"new"},
		Images:            []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.png"},
		Attributes: []models.Attribute{
			{Name: "Color", Options: []string{"Red", "Blue"}, Visible: true},
			{Name: "Size", Options: []string{"S", "M"}, Visible: false, Global: true},
		},
		DefaultAttributes: map[string]string{"Color": "Red"},
		VariationIDs:      []int64{10, 11},
		Brand:             "Acme",
		Meta:              map[string]string{"origin": "test", "batch": "3"},
	}

	row := ProductRow(product)
	require.Len(t, row, len(ProductHeader))

	var buf bytes.Buffer
	require.NoError(t, WriteRows(&buf, ProductHeader, [][]string{row}))
	rows, err := ReadRows(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got, err := BuildProduct(rows[0])
	require.NoError(t, err)
	assert.Equal(t, models.ProductVariable, got.Type)
	assert.Equal(t, product.SKU, got.SKU)
	assert.Equal(t, product.Name, got.Name)
	assert.Equal(t, "publish", got.Status)
	assert.True(t, got.Featured)
	assert.Equal(t, 19.99, got.RegularPrice)
	assert.Equal(t, 15.0, got.SalePrice)
	assert.Equal(t, 7, *got.StockQuantity)
	assert.Equal(t, product.Categories, got.Categories)
	assert.Equal(t, product.Images, got.Images)
	assert.True(t, saleFrom.Equal(*got.SaleFrom))
	require.Len(t, got.Attributes, 2)
	assert.Equal(t, []string{"Red", "Blue"}, got.Attributes[0].Options)
	assert.False(t, got.Attributes[1].Visible)
	assert.True(t, got.Attributes[1].Global)
	assert.Equal(t, "Red", got.DefaultAttributes["Color"])
	assert.Equal(t, "Acme", got.Brand)
	assert.Equal(t, "test", got.Meta["origin"])
	assert.Equal(t, "9", got.Meta[SourceIDMeta])
	assert.Empty(t, got.VariationIDs)
}

func TestBuildProduct_CommaSeparatedListsAndDefaults(t *testing.T) {
	got, err := BuildProduct(Row{"name": "Basic Tool", "categories": "Tools, Garden", "published": "0"})
	require.NoError(t, err)
	assert.Equal(t, models.ProductSimple, got.Type)
	assert.Equal(t, []string{"Tools", "Garden"}, got.Categories)
	assert.Equal(t, "draft", got.Status)
	assert.Equal(t, "instock", got.StockStatus)
}

func TestBuildProduct_Errors(t *testing.T) {
	_, err := BuildProduct(Row{"sku": "X"})
	assert.EqualError(t, err, "missing product name")

	_, err = BuildProduct(Row{"name": "Child", "type": "variation"})
	assert.Error(t, err)

	_, err = BuildProduct(Row{"name": "Broken", "regular price": "ten"})
	assert.Error(t, err)
}

func TestDedupKey(t *testing.T) {
	sku, source := DedupKey(models.Product{SKU: "A"})
	assert.Equal(t, "A", sku)
	assert.Empty(t, source)

	sku, source = DedupKey(models.Product{Meta: map[string]string{SourceIDMeta: "12"}})
	assert.Empty(t, sku)
	assert.Equal(t, "12", source)
}
