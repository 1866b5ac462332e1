package product

import "strings"

// Brands returns the distinct non-empty brands in first-seen order.
func Brands(products []Product) []string {
	seen := make(map[string]struct{})
	brands := make([]string, 0)
	for _, p := range products {
		brand, ok := p.Brand()
		if !ok {
			continue
		}
		if _, dup := seen[brand]; dup {
			continue
		}
		seen[brand] = struct{}{}
		brands = append(brands, brand)
	}
	return brands
}

// FilterByBrand keeps products whose brand matches, ignoring case.
// An empty brand returns the input unchanged.
func FilterByBrand(products []Product, brand string) []Product {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return products
	}

	filtered := make([]Product, 0, len(products))
	for _, p := range products {
		if b, ok := p.Brand(); ok && strings.EqualFold(b, brand) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}
