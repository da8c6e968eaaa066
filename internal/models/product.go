package models

import (
	"strings"
	"time"
)

type ProductType string

const (
	ProductSimple    ProductType = "simple"
	ProductVariable  ProductType = "variable"
	ProductGrouped   ProductType = "grouped"
	ProductExternal  ProductType = "external"
	ProductVariation ProductType = "variation"
)

func ParseProductType(raw string) ProductType {
	switch t := ProductType(strings.ToLower(strings.TrimSpace(raw))); t {
	case ProductVariable, ProductGrouped, ProductExternal, ProductVariation:
		return t
	default:
		return ProductSimple
	}
}

type Attribute struct {
	Name      string   `json:"name"`
	Options   []string `json:"options"`
	Visible   bool     `json:"visible"`
	Global    bool     `json:"global"`
	Variation bool     `json:"variation"`
}

type Product struct {
	ID                int64             `json:"id"`
	ParentID          int64             `json:"parent_id"`
	Type              ProductType       `json:"type"`
	SKU               string            `json:"sku"`
	Name              string            `json:"name"`
	Status            string            `json:"status"`
	Featured          bool              `json:"featured"`
	CatalogVisibility string            `json:"catalog_visibility"`
	ShortDescription  string            `json:"short_description"`
	Description       string            `json:"description"`
	SaleFrom          *time.Time        `json:"date_on_sale_from,omitempty"`
	SaleTo            *time.Time        `json:"date_on_sale_to,omitempty"`
	TaxStatus         string            `json:"tax_status"`
	TaxClass          string            `json:"tax_class"`
	StockStatus       string            `json:"stock_status"`
	ManageStock       bool              `json:"manage_stock"`
	StockQuantity     *int              `json:"stock_quantity,omitempty"`
	Backorders        string            `json:"backorders"`
	SoldIndividually  bool              `json:"sold_individually"`
	Weight            string            `json:"weight"`
	Length            string            `json:"length"`
	Width             string            `json:"width"`
	Height            string            `json:"height"`
	ReviewsAllowed    bool              `json:"reviews_allowed"`
	PurchaseNote      string            `json:"purchase_note"`
	RegularPrice      float64           `json:"regular_price"`
	SalePrice         float64           `json:"sale_price,omitempty"`
	Categories        []string          `json:"categories"`
	Tags              []string          `json:"tags"`
	ShippingClass     string            `json:"shipping_class"`
	Images            []string          `json:"images"`
	DownloadLimit     int               `json:"download_limit"`
	DownloadExpiry    int               `json:"download_expiry"`
	GroupedIDs        []int64           `json:"grouped_products,omitempty"`
	UpsellIDs         []int64           `json:"upsell_ids,omitempty"`
	CrossSellIDs      []int64           `json:"cross_sell_ids,omitempty"`
	ExternalURL       string            `json:"product_url,omitempty"`
	ButtonText        string            `json:"button_text,omitempty"`
	MenuOrder         int               `json:"menu_order"`
	Attributes        []Attribute       `json:"attributes,omitempty"`
	DefaultAttributes map[string]string `json:"default_attributes,omitempty"`
	VariationIDs      []int64           `json:"variations,omitempty"`
	Brand             string            `json:"brand,omitempty"`
	Meta              map[string]string `json:"meta,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Price is the amount a customer pays: the sale price when one is set.
func (p Product) Price() float64 {
	if p.SalePrice > 0 {
		return p.SalePrice
	}
	return p.RegularPrice
}

func (p Product) Published() bool {
	return p.Status == "" || p.Status == "publish"
}

// ProductFilter narrows top-level product listings. Zero values match everything.
type ProductFilter struct {
	Types      []ProductType
	Categories []string
	Tags       []string
}

func (f ProductFilter) Matches(p Product) bool {
	if len(f.Types) > 0 && !containsType(f.Types, p.Type) {
		return false
	}
	if len(f.Categories) > 0 && !intersects(f.Categories, p.Categories) {
		return false
	}
	if len(f.Tags) > 0 && !intersects(f.Tags, p.Tags) {
		return false
	}
	return true
}

func containsType(types []ProductType, t ProductType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func intersects(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}
