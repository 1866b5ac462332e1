// Package ordering sorts products by name.
package ordering

import "github.com/Sternrassler/catalog-proxy/pkg/product"

// Sort returns products ordered by lowercase name, ascending or descending.
//
// The sort partitions around the middle element into less, equal and greater
// groups, each keeping input order, and recurses on the outer groups.
// Products with equal names therefore keep their relative input order in both
// directions. The input slice is not modified; inputs of length 0 or 1 are
// returned as is.
func Sort(products []product.Product, ascending bool) []product.Product {
	if len(products) <= 1 {
		return products
	}

	pivot := products[len(products)/2].Name()

	var less, equal, greater []product.Product
	for _, p := range products {
		switch name := p.Name(); {
		case name < pivot:
			less = append(less, p)
		case name > pivot:
			greater = append(greater, p)
		default:
			equal = append(equal, p)
		}
	}

	less = Sort(less, ascending)
	greater = Sort(greater, ascending)

	sorted := make([]product.Product, 0, len(products))
	if ascending {
		sorted = append(sorted, less...)
		sorted = append(sorted, equal...)
		return append(sorted, greater...)
	}
	sorted = append(sorted, greater...)
	sorted = append(sorted, equal...)
	return append(sorted, less...)
}
