package fieldmap

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/stanstork/bulkgen/internal/models"
)

// SourceIDMeta records the identifier a product carried in the file it was
// imported from. It is the dedup key for rows without a SKU.
const SourceIDMeta = "_source_id"

type productColumn struct {
	Header string
	Get    func(p models.Product) string
	// Set is nil for columns that are export-only or applied as a group.
	Set func(p *models.Product, v string) error
}

func stringColumn(header string, field func(p *models.Product) *string) productColumn {
	return productColumn{
		Header: header,
		Get:    func(p models.Product) string { return *field(&p) },
		Set: func(p *models.Product, v string) error {
			*field(p) = v
			return nil
		},
	}
}

func boolColumn(header string, field func(p *models.Product) *bool) productColumn {
	return productColumn{
		Header: header,
		Get:    func(p models.Product) string { return formatBool(*field(&p)) },
		Set: func(p *models.Product, v string) error {
			*field(p) = parseBool(v)
			return nil
		},
	}
}

func intColumn(header string, field func(p *models.Product) *int) productColumn {
	return productColumn{
		Header: header,
		Get:    func(p models.Product) string { return strconv.Itoa(*field(&p)) },
		Set: func(p *models.Product, v string) (err error) {
			*field(p), err = parseInt(v)
			return err
		},
	}
}

func listColumn(header string, field func(p *models.Product) *[]string) productColumn {
	return productColumn{
		Header: header,
		Get:    func(p models.Product) string { return strings.Join(*field(&p), "|") },
		Set: func(p *models.Product, v string) error {
			*field(p) = splitList(v)
			return nil
		},
	}
}

func exportOnly(header string, get func(p models.Product) string) productColumn {
	return productColumn{Header: header, Get: get}
}

var productColumns = []productColumn{
	{
		Header: "ID",
		Get:    func(p models.Product) string { return strconv.FormatInt(p.ID, 10) },
		Set: func(p *models.Product, v string) error {
			if v != "" && v != "0" {
				setMeta(p, SourceIDMeta, v)
			}
			return nil
		},
	},
	{
		Header: "Type",
		Get:    func(p models.Product) string { return string(p.Type) },
		Set: func(p *models.Product, v string) error {
			p.Type = models.ParseProductType(v)
			return nil
		},
	},
	stringColumn("SKU", func(p *models.Product) *string { return &p.SKU }),
	stringColumn("Name", func(p *models.Product) *string { return &p.Name }),
	{
		Header: "Published",
		Get:    func(p models.Product) string { return formatBool(p.Published()) },
		Set: func(p *models.Product, v string) error {
			p.Status = "draft"
			if parseBool(v) {
				p.Status = "publish"
			}
			return nil
		},
	},
	boolColumn("Featured", func(p *models.Product) *bool { return &p.Featured }),
	stringColumn("Catalog visibility", func(p *models.Product) *string { return &p.CatalogVisibility }),
	stringColumn("Short description", func(p *models.Product) *string { return &p.ShortDescription }),
	stringColumn("Description", func(p *models.Product) *string { return &p.Description }),
	{
		Header: "Date sale price starts",
		Get:    func(p models.Product) string { return formatTime(p.SaleFrom) },
		Set: func(p *models.Product, v string) (err error) {
			p.SaleFrom, err = parseTime(v)
			return err
		},
	},
	{
		Header: "Date sale price ends",
		Get:    func(p models.Product) string { return formatTime(p.SaleTo) },
		Set: func(p *models.Product, v string) (err error) {
			p.SaleTo, err = parseTime(v)
			return err
		},
	},
	stringColumn("Tax status", func(p *models.Product) *string { return &p.TaxStatus }),
	stringColumn("Tax class", func(p *models.Product) *string { return &p.TaxClass }),
	{
		Header: "In stock",
		Get:    func(p models.Product) string { return formatBool(p.StockStatus == "instock") },
		Set: func(p *models.Product, v string) error {
			p.StockStatus = "outofstock"
			if parseBool(v) {
				p.StockStatus = "instock"
			}
			return nil
		},
	},
	{
		Header: "Stock",
		Get: func(p models.Product) string {
			if p.StockQuantity == nil {
				return ""
			}
			return strconv.Itoa(*p.StockQuantity)
		},
		Set: func(p *models.Product, v string) error {
			if v == "" {
				return nil
			}
			qty, err := parseInt(v)
			if err != nil {
				return err
			}
			p.ManageStock = true
			p.StockQuantity = &qty
			return nil
		},
	},
	{
		Header: "Backorders allowed",
		Get:    func(p models.Product) string { return formatBool(p.Backorders != "" && p.Backorders != "no") },
		Set: func(p *models.Product, v string) error {
			p.Backorders = "no"
			if parseBool(v) {
				p.Backorders = "yes"
			}
			return nil
		},
	},
	boolColumn("Sold individually", func(p *models.Product) *bool { return &p.SoldIndividually }),
	stringColumn("Weight", func(p *models.Product) *string { return &p.Weight }),
	stringColumn("Length", func(p *models.Product) *string { return &p.Length }),
	stringColumn("Width", func(p *models.Product) *string { return &p.Width }),
	stringColumn("Height", func(p *models.Product) *string { return &p.Height }),
	boolColumn("Allow customer reviews", func(p *models.Product) *bool { return &p.ReviewsAllowed }),
	stringColumn("Purchase note", func(p *models.Product) *string { return &p.PurchaseNote }),
	{
		Header: "Sale price",
		Get: func(p models.Product) string {
			if p.SalePrice <= 0 {
				return ""
			}
			return formatMoney(p.SalePrice)
		},
		Set: func(p *models.Product, v string) (err error) {
			p.SalePrice, err = parseMoney(v)
			return err
		},
	},
	{
		Header: "Regular price",
		Get:    func(p models.Product) string { return formatMoney(p.RegularPrice) },
		Set: func(p *models.Product, v string) (err error) {
			p.RegularPrice, err = parseMoney(v)
			return err
		},
	},
	listColumn("Categories", func(p *models.Product) *[]string { return &p.Categories }),
	listColumn("Tags", func(p *models.Product) *[]string { return &p.Tags }),
	stringColumn("Shipping class", func(p *models.Product) *string { return &p.ShippingClass }),
	listColumn("Images", func(p *models.Product) *[]string { return &p.Images }),
	intColumn("Download limit", func(p *models.Product) *int { return &p.DownloadLimit }),
	intColumn("Download expiry days", func(p *models.Product) *int { return &p.DownloadExpiry }),
	// Record ids are local to the store they came from, so the relation
	// columns are written for reference and not read back.
	exportOnly("Parent", func(p models.Product) string { return strconv.FormatInt(p.ParentID, 10) }),
	exportOnly("Grouped products", func(p models.Product) string {
		if p.Type != models.ProductGrouped {
			return ""
		}
		return joinIDs(p.GroupedIDs)
	}),
	exportOnly("Upsells", func(p models.Product) string { return joinIDs(p.UpsellIDs) }),
	exportOnly("Cross-sells", func(p models.Product) string { return joinIDs(p.CrossSellIDs) }),
	{
		Header: "External URL",
		Get: func(p models.Product) string {
			if p.Type != models.ProductExternal {
				return ""
			}
			return p.ExternalURL
		},
		Set: func(p *models.Product, v string) error {
			p.ExternalURL = v
			return nil
		},
	},
	{
		Header: "Button text",
		Get: func(p models.Product) string {
			if p.Type != models.ProductExternal {
				return ""
			}
			return p.ButtonText
		},
		Set: func(p *models.Product, v string) error {
			p.ButtonText = v
			return nil
		},
	},
	intColumn("Position", func(p *models.Product) *int { return &p.MenuOrder }),
	exportOnly("Attributes", func(p models.Product) string {
		return joinAttributes(p, func(a models.Attribute) string { return a.Name })
	}),
	exportOnly("Attribute data", func(p models.Product) string {
		return joinAttributes(p, func(a models.Attribute) string { return strings.Join(a.Options, ", ") })
	}),
	exportOnly("Attribute default", func(p models.Product) string {
		return joinAttributes(p, func(a models.Attribute) string { return p.DefaultAttributes[a.Name] })
	}),
	exportOnly("Attribute visible", func(p models.Product) string {
		return joinAttributes(p, func(a models.Attribute) string { return formatBool(a.Visible) })
	}),
	exportOnly("Attribute global", func(p models.Product) string {
		return joinAttributes(p, func(a models.Attribute) string { return formatBool(a.Global) })
	}),
	exportOnly("Variations", func(p models.Product) string { return joinIDs(p.VariationIDs) }),
	stringColumn("Brand", func(p *models.Product) *string { return &p.Brand }),
	{
		Header: "Meta fields",
		Get:    func(p models.Product) string { return formatMeta(p.Meta) },
		Set: func(p *models.Product, v string) error {
			for key, value := range parseMeta(v) {
				setMeta(p, key, value)
			}
			return nil
		},
	},
}

// ProductHeader is the product export header.
var ProductHeader = func() []string {
	header := make([]string, 0, len(productColumns))
	for _, col := range productColumns {
		header = append(header, col.Header)
	}
	return header
}()

var productSetters = func() map[string]func(p *models.Product, v string) error {
	setters := make(map[string]func(p *models.Product, v string) error)
	for _, col := range productColumns {
		if col.Set != nil {
			setters[strings.ToLower(col.Header)] = col.Set
		}
	}
	return setters
}()

// ProductRow serializes one product in ProductHeader column order.
func ProductRow(p models.Product) []string {
	row := make([]string, 0, len(productColumns))
	for _, col := range productColumns {
		row = append(row, col.Get(p))
	}
	return row
}

// BuildProduct constructs an unsaved product from one CSV row. Columns with
// no registered setter are ignored.
func BuildProduct(row Row) (models.Product, error) {
	p := models.Product{
		Type:              models.ProductSimple,
		Status:            "publish",
		CatalogVisibility: "visible",
		StockStatus:       "instock",
		TaxStatus:         "taxable",
		Backorders:        "no",
		ReviewsAllowed:    true,
	}
	// Type decides which other columns apply, so it goes first.
	if err := productSetters["type"](&p, row["type"]); err != nil {
		return models.Product{}, err
	}
	for column, value := range row {
		set, ok := productSetters[column]
		if !ok || column == "type" || column == "id" {
			continue
		}
		if err := set(&p, value); err != nil {
			return models.Product{}, errors.Wrapf(err, "column %q", column)
		}
	}
	// The file's own id wins over any source id carried in its meta fields.
	if err := productSetters["id"](&p, row["id"]); err != nil {
		return models.Product{}, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return models.Product{}, errors.New("missing product name")
	}
	if p.Type == models.ProductVariation {
		return models.Product{}, errors.New("variations cannot be imported without their parent")
	}
	applyAttributes(&p, row)
	return p, nil
}

// DedupKey returns the lookup used to detect an already imported product:
// the SKU when present, otherwise the source id.
func DedupKey(p models.Product) (sku, sourceID string) {
	if p.SKU != "" {
		return p.SKU, ""
	}
	return "", p.Meta[SourceIDMeta]
}

func applyAttributes(p *models.Product, row Row) {
	names := strings.Split(row["attributes"], "|")
	data := strings.Split(row["attribute data"], "|")
	defaults := strings.Split(row["attribute default"], "|")
	visible := strings.Split(row["attribute visible"], "|")
	global := strings.Split(row["attribute global"], "|")

	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		attr := models.Attribute{
			Name:      name,
			Visible:   at(visible, i) == "" || parseBool(at(visible, i)),
			Global:    parseBool(at(global, i)),
			Variation: p.Type == models.ProductVariable,
		}
		for _, option := range strings.Split(at(data, i), ",") {
			if option = strings.TrimSpace(option); option != "" {
				attr.Options = append(attr.Options, option)
			}
		}
		p.Attributes = append(p.Attributes, attr)
		if def := strings.TrimSpace(at(defaults, i)); def != "" {
			if p.DefaultAttributes == nil {
				p.DefaultAttributes = make(map[string]string)
			}
			p.DefaultAttributes[name] = def
		}
	}
}

func at(values []string, i int) string {
	if i < len(values) {
		return strings.TrimSpace(values[i])
	}
	return ""
}

func joinAttributes(p models.Product, field func(a models.Attribute) string) string {
	parts := make([]string, 0, len(p.Attributes))
	for _, attr := range p.Attributes {
		parts = append(parts, field(attr))
	}
	return strings.Join(parts, "|")
}

func formatMeta(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"::"+meta[k])
	}
	return strings.Join(parts, "|")
}

func parseMeta(v string) map[string]string {
	out := make(map[string]string)
	for _, field := range strings.Split(v, "|") {
		key, value, ok := strings.Cut(field, "::")
		if key = strings.TrimSpace(key); ok && key != "" {
			out[key] = strings.TrimSpace(value)
		}
	}
	return out
}

func setMeta(p *models.Product, key, value string) {
	if p.Meta == nil {
		p.Meta = make(map[string]string)
	}
	p.Meta[key] = value
}
