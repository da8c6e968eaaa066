package fieldmap

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/stanstork/bulkgen/internal/models"
)

// OrderHeader is the order export header.
var OrderHeader = []string{
	"Order ID",
	"Date",
	"Status",
	"Total",
	"Customer Name",
	"Customer Email",
	"Shipping Method",
	"Payment Method",
}

// OrderRow serializes one order in OrderHeader column order.
func OrderRow(o models.Order) []string {
	return []string{
		strconv.FormatInt(o.ID, 10),
		o.CreatedAt.Format(dateTimeLayout),
		string(o.Status),
		formatMoney(o.Total),
		o.Billing.FullName(),
		o.Billing.Email,
		o.ShippingMethod(),
		o.PaymentMethodTitle,
	}
}

// OrderRecord is one logical order grouped from one or more CSV rows.
type OrderRecord struct {
	Number string
	Rows   []Row
}

const orderIDColumn = "order id"

// GroupOrders groups rows sharing an order id, keeping first-seen order.
// Rows without an order id each form their own record.
func GroupOrders(rows []Row) []OrderRecord {
	var records []OrderRecord
	index := make(map[string]int)
	for _, row := range rows {
		number := row[orderIDColumn]
		if number == "" {
			records = append(records, OrderRecord{Rows: []Row{row}})
			continue
		}
		if i, ok := index[number]; ok {
			records[i].Rows = append(records[i].Rows, row)
			continue
		}
		index[number] = len(records)
		records = append(records, OrderRecord{Number: number, Rows: []Row{row}})
	}
	return records
}

type orderSetter func(o *models.Order, v string) error

var orderSetters = map[string]orderSetter{
	"order id": func(o *models.Order, v string) error {
		o.Number = v
		return nil
	},
	"date": func(o *models.Order, v string) error {
		t, err := parseTime(v)
		if err != nil {
			return err
		}
		if t != nil {
			o.CreatedAt = *t
		}
		return nil
	},
	"status": func(o *models.Order, v string) error {
		if v == "" {
			return nil
		}
		status, ok := models.ParseOrderStatus(v)
		if !ok {
			return errors.Errorf("unknown order status %q", v)
		}
		o.Status = status
		return nil
	},
	"total": func(o *models.Order, v string) (err error) {
		o.Total, err = parseMoney(v)
		return err
	},
	"customer name": func(o *models.Order, v string) error {
		first, last, _ := strings.Cut(strings.TrimSpace(v), " ")
		o.Billing.FirstName = first
		o.Billing.LastName = strings.TrimSpace(last)
		return nil
	},
	"customer email": func(o *models.Order, v string) error {
		o.Billing.Email = v
		return nil
	},
	"shipping method": func(o *models.Order, v string) error {
		if v != "" {
			o.ShippingLines = []models.ShippingLine{{MethodID: shippingMethodID(v), MethodTitle: v}}
		}
		return nil
	},
	"payment method": func(o *models.Order, v string) error {
		if v != "" {
			o.PaymentMethod = paymentMethodID(v)
			o.PaymentMethodTitle = v
		}
		return nil
	},
}

type addressSetter func(a *models.Address, v string)

var addressSetters = map[string]addressSetter{
	"first name": func(a *models.Address, v string) { a.FirstName = v },
	"last name":  func(a *models.Address, v string) { a.LastName = v },
	"company":    func(a *models.Address, v string) { a.Company = v },
	"address 1":  func(a *models.Address, v string) { a.Address1 = v },
	"address 2":  func(a *models.Address, v string) { a.Address2 = v },
	"city":       func(a *models.Address, v string) { a.City = v },
	"state":      func(a *models.Address, v string) { a.State = v },
	"postcode":   func(a *models.Address, v string) { a.Postcode = v },
	"country":    func(a *models.Address, v string) { a.Country = v },
	"email":      func(a *models.Address, v string) { a.Email = v },
	"phone":      func(a *models.Address, v string) { a.Phone = v },
}

type lineItemSetter func(item *models.LineItem, v string) error

var lineItemSetters = map[string]lineItemSetter{
	"item name": func(item *models.LineItem, v string) error {
		item.Name = v
		return nil
	},
	"item sku": func(item *models.LineItem, v string) error {
		item.SKU = v
		return nil
	},
	"item quantity": func(item *models.LineItem, v string) (err error) {
		item.Quantity, err = parseInt(v)
		return err
	},
	"item total": func(item *models.LineItem, v string) (err error) {
		item.Total, err = parseMoney(v)
		return err
	},
}

// BuildOrder constructs an unsaved order from a grouped record. Columns
// with no registered setter are ignored. The first row supplies order
// level fields; every row with item columns contributes a line item.
func BuildOrder(rec OrderRecord) (models.Order, error) {
	if rec.Number == "" {
		return models.Order{}, errors.New("missing order id")
	}
	order := models.Order{Status: models.OrderPending}
	first := rec.Rows[0]
	for column, value := range first {
		if set, ok := orderSetters[column]; ok {
			if err := set(&order, value); err != nil {
				return models.Order{}, errors.Wrapf(err, "column %q", column)
			}
		}
	}
	// Explicit address columns override the split customer name.
	for column, value := range first {
		applyAddress(&order, column, value)
	}

	for _, row := range rec.Rows {
		item, ok, err := lineItem(row)
		if err != nil {
			return models.Order{}, err
		}
		if ok {
			order.LineItems = append(order.LineItems, item)
		}
	}
	if order.Meta == nil {
		order.Meta = make(map[string]string)
	}
	order.Meta["_order_number"] = order.Number
	return order, nil
}

func applyAddress(o *models.Order, column, value string) {
	if field, ok := strings.CutPrefix(column, "billing "); ok {
		if set, ok := addressSetters[field]; ok {
			set(&o.Billing, value)
		}
		return
	}
	if field, ok := strings.CutPrefix(column, "shipping "); ok {
		if set, ok := addressSetters[field]; ok {
			set(&o.Shipping, value)
		}
	}
}

func lineItem(row Row) (models.LineItem, bool, error) {
	var item models.LineItem
	present := false
	for column, set := range lineItemSetters {
		value, ok := row[column]
		if !ok || value == "" {
			continue
		}
		present = true
		if err := set(&item, value); err != nil {
			return models.LineItem{}, false, errors.Wrapf(err, "column %q", column)
		}
	}
	if present && item.Quantity == 0 {
		item.Quantity = 1
	}
	return item, present, nil
}

var knownShippingMethods = map[string]string{
	"flat rate":        "flat_rate",
	"free shipping":    "free_shipping",
	"express shipping": "express",
}

func shippingMethodID(title string) string {
	if id, ok := knownShippingMethods[strings.ToLower(title)]; ok {
		return id
	}
	return strings.ReplaceAll(strings.ToLower(title), " ", "_")
}

var knownPaymentMethods = map[string]string{
	"direct bank transfer": "bacs",
	"check payments":       "cheque",
	"cash on delivery":     "cod",
	"paypal":               "paypal",
}

func paymentMethodID(title string) string {
	if id, ok := knownPaymentMethods[strings.ToLower(title)]; ok {
		return id
	}
	return title
}
