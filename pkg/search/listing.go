package search

import "github.com/Sternrassler/catalog-proxy/pkg/product"

// Listing is one page of search results with the brands present on it.
type Listing struct {
	Results []product.Product `json:"results"`
	Brands  []string          `json:"brands"`
}

func emptyListing() Listing {
	return Listing{Results: []product.Product{}, Brands: []string{}}
}

// newListing builds a listing from an already ordered page.
func newListing(results []product.Product) Listing {
	if results == nil {
		results = []product.Product{}
	}
	return Listing{Results: results, Brands: product.Brands(results)}
}

// withBrand narrows results to brand. Brands keeps every brand on the page
// so a client can switch filters without another round trip.
func (l Listing) withBrand(brand string) Listing {
	return Listing{
		Results: product.FilterByBrand(l.Results, brand),
		Brands:  l.Brands,
	}
}
