package generator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stanstork/bulkgen/internal/models"
)

var (
	adjectives    = []string{"Premium", "Deluxe", "Professional", "Essential", "Advanced", "Classic", "Modern", "Ultra", "Smart", "Eco-friendly"}
	nouns         = []string{"Widget", "Gadget", "Tool", "Device", "System", "Solution", "Package", "Kit", "Set", "Bundle"}
	categoryWords = []string{"Pro", "Plus", "Elite", "Max", "Lite", "Basic", "Premium", "Ultimate", "Standard", "Deluxe"}

	intros = []string{
		"Experience the difference with our",
		"Discover the power of",
		"Enhance your lifestyle with",
		"Upgrade your experience with",
		"Transform your workflow using",
	}
	features = []string{
		"Built with premium materials",
		"Designed for optimal performance",
		"Features advanced technology",
		"Includes comprehensive documentation",
		"Backed by our quality guarantee",
	}
	benefits = []string{
		"Increases productivity",
		"Saves time and effort",
		"Improves efficiency",
		"Enhances user experience",
		"Reduces operational costs",
	}
)

const shortDescriptionLen = 100

// ProductParams bounds one synthesized product.
type ProductParams struct {
	PriceMin         float64
	PriceMax         float64
	Categories       []string
	PlaceholderImage string
}

// BuildProduct synthesizes an unsaved simple product. The SKU is a base
// value; callers resolve collisions with SKUCandidate.
func BuildProduct(r Rand, p ProductParams) models.Product {
	noun := pick(r, nouns)
	title := fmt.Sprintf("%s %s %s", pick(r, adjectives), noun, pick(r, categoryWords))
	description := fmt.Sprintf("%s %s. %s. %s.",
		pick(r, intros), strings.ToLower(title), pick(r, features), pick(r, benefits))

	minCents := int(math.Round(p.PriceMin * 100))
	maxCents := int(math.Round(p.PriceMax * 100))
	regular := Round2(float64(Between(r, minCents, maxCents)) / 100)

	stock := Between(r, 0, 100)
	product := models.Product{
		Type:              models.ProductSimple,
		Name:              title,
		Status:            "publish",
		CatalogVisibility: "visible",
		Description:       description,
		ShortDescription:  truncate(description, shortDescriptionLen) + "...",
		RegularPrice:      regular,
		SKU:               fmt.Sprintf("TEST-%s-%d", strings.ToUpper(noun[:3]), Between(r, 1000, 9999)),
		TaxStatus:         "taxable",
		ManageStock:       true,
		StockQuantity:     &stock,
		StockStatus:       stockStatus(stock),
		Backorders:        "no",
		Weight:            strconv.FormatFloat(float64(Between(r, 1, 50))/10, 'f', -1, 64),
		Length:            strconv.Itoa(Between(r, 10, 100)),
		Width:             strconv.Itoa(Between(r, 10, 100)),
		Height:            strconv.Itoa(Between(r, 10, 100)),
		ReviewsAllowed:    true,
	}
	if Chance(r, 30) {
		discount := float64(Between(r, 10, 30)) / 100
		product.SalePrice = Round2(regular * (1 - discount))
	}
	product.Featured = Chance(r, 10)
	if len(p.Categories) > 0 {
		product.Categories = Sample(r, p.Categories, Between(r, 1, min(3, len(p.Categories))))
	}
	if p.PlaceholderImage != "" {
		product.Images = []string{p.PlaceholderImage}
	}
	return product
}

// SKUCandidate returns the SKU to try on the given attempt: the base first,
// then the base with a numeric suffix.
func SKUCandidate(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, attempt)
}

func stockStatus(qty int) string {
	if qty > 0 {
		return "instock"
	}
	return "outofstock"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
