package market

import "strings"

// Category groups markets into activation pools.
type Category string

const (
	CategoryCommodity Category = "commodity"
	CategoryIndex     Category = "index"
	CategoryStock     Category = "stock"
)

// ParseCategory normalizes a stored category string.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryCommodity, CategoryIndex, CategoryStock:
		return c, true
	}
	return "", false
}

// Market is one member of the tradable universe.
type Market struct {
	Symbol   string
	Name     string
	Category Category
	Region   string
}

// IsCommodity reports whether the market trades as a commodity.
func (m Market) IsCommodity() bool {
	return m.Category == CategoryCommodity
}
