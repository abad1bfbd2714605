package spreadsheet

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/adbroll/matcher/internal/domain"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Catalog columns understood by the importer
const (
	ColumnName           = "name"
	ColumnURL            = "url"
	ColumnCategory       = "category"
	ColumnPrice          = "price"
	ColumnCommissionRate = "commission_rate"
	ColumnRevenue        = "revenue"
	ColumnSales          = "sales"
)

// headerAliases maps normalized spreadsheet headers to catalog columns.
// Exports come from English and Spanish dashboards.
var headerAliases = map[string]string{
	"name": ColumnName, "nombre": ColumnName, "product": ColumnName, "product_name": ColumnName,
	"producto": ColumnName, "nombre_del_producto": ColumnName, "title": ColumnName, "titulo": ColumnName,

	"url": ColumnURL, "product_url": ColumnURL, "link": ColumnURL, "enlace": ColumnURL,

	"category": ColumnCategory, "categoria": ColumnCategory,

	"price": ColumnPrice, "precio": ColumnPrice,

	"commission_rate": ColumnCommissionRate, "commission": ColumnCommissionRate,
	"comision": ColumnCommissionRate, "tasa_de_comision": ColumnCommissionRate,

	"revenue": ColumnRevenue, "ingresos": ColumnRevenue, "gmv": ColumnRevenue,

	"sales": ColumnSales, "ventas": ColumnSales, "units_sold": ColumnSales,
}

// CanonicalColumn maps a raw header to its catalog column, or "" when unknown
func CanonicalColumn(header string) string {
	return headerAliases[headerKey(header)]
}

// MapToProduct converts one spreadsheet record keyed by raw headers into a product.
// It reports false when the row has no product name.
func MapToProduct(record map[string]string) (domain.Product, bool) {
	fields := make(map[string]string, len(record))
	for header, value := range record {
		if column := CanonicalColumn(header); column != "" {
			if _, taken := fields[column]; !taken || fields[column] == "" {
				fields[column] = strings.TrimSpace(value)
			}
		}
	}

	name := strings.Join(strings.Fields(fields[ColumnName]), " ")
	if name == "" {
		return domain.Product{}, false
	}

	product := domain.Product{
		Name:           name,
		URL:            fields[ColumnURL],
		Category:       fields[ColumnCategory],
		Price:          parseNumber(fields[ColumnPrice]),
		CommissionRate: parseRate(fields[ColumnCommissionRate]),
		Revenue:        parseNumber(fields[ColumnRevenue]),
		Sales:          int64(parseNumber(fields[ColumnSales])),
	}
	product.ComputeEarning()
	return product, true
}

// parseNumber reads a money or count cell like "$1,299.90" or "1 200". Unreadable cells are 0.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsDigit(r), r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, s)

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseRate reads a commission as a fraction: "15%", "15" and "0.15" all yield 0.15
func parseRate(s string) float64 {
	v := parseNumber(s)
	if strings.Contains(s, "%") || v > 1 {
		v /= 100
	}
	return v
}

// headerKey lowercases, strips accents and joins words with underscores
func headerKey(header string) string {
	header = strings.TrimPrefix(header, "\ufeff")
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(header),
	)
	if err != nil {
		stripped = strings.ToLower(header)
	}

	words := strings.FieldsFunc(stripped, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, "_")
}
