package cache

import (
	"fmt"
	"net/url"
	"strings"
)

// Order is the listing sort direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseOrder maps a request parameter to an Order. Only "asc" (any case,
// surrounding spaces ignored) is ascending; everything else is descending.
func ParseOrder(s string) Order {
	if strings.EqualFold(strings.TrimSpace(s), string(OrderAsc)) {
		return OrderAsc
	}
	return OrderDesc
}

// Ascending reports whether o sorts names in ascending order.
func (o Order) Ascending() bool {
	return o == OrderAsc
}

// CacheKey identifies a cached listing.
type CacheKey struct {
	// Query is the product name searched for.
	Query string

	// Order is the sort direction.
	Order Order

	// Page is the zero-indexed page number.
	Page int

	// PageSize is the number of items per page.
	PageSize int
}

// String generates a deterministic cache key string.
// Format: catalog:listing:query:order:page:size
//
// The query is URL-escaped so a ':' inside it cannot shift the other fields.
//
// Example:
//
//	catalog:listing:oil+filter:asc:0:15
func (k CacheKey) String() string {
	order := k.Order
	if order != OrderAsc {
		order = OrderDesc
	}
	return fmt.Sprintf("catalog:listing:%s:%s:%d:%d", url.QueryEscape(k.Query), order, k.Page, k.PageSize)
}
