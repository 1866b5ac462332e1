// Package selection picks the k most extreme products by a numeric field.
package selection

import (
	"container/heap"

	"github.com/Sternrassler/catalog-proxy/pkg/product"
)

type candidate struct {
	product product.Product
	value   float64
	index   int
}

// boundedHeap keeps the best k candidates seen so far with the weakest one
// at the root, so each new candidate is compared against a single element.
type boundedHeap struct {
	items   []candidate
	largest bool
}

// better reports whether a ranks ahead of b. Equal values rank by input
// position, earlier first.
func (h *boundedHeap) better(a, b candidate) bool {
	if a.value != b.value {
		if h.largest {
			return a.value > b.value
		}
		return a.value < b.value
	}
	return a.index < b.index
}

func (h *boundedHeap) Len() int           { return len(h.items) }
func (h *boundedHeap) Less(i, j int) bool { return h.better(h.items[j], h.items[i]) }
func (h *boundedHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *boundedHeap) Push(x any)         { h.items = append(h.items, x.(candidate)) }

func (h *boundedHeap) Pop() any {
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last
}

// TopK returns up to k products with the largest (or smallest) value of field,
// most extreme first. Ties keep input order. k <= 0 yields an empty result.
// Runs in O(n log k).
func TopK(products []product.Product, k int, field string, largest bool) []product.Product {
	if k <= 0 || len(products) == 0 {
		return []product.Product{}
	}
	if k > len(products) {
		k = len(products)
	}

	h := &boundedHeap{items: make([]candidate, 0, k), largest: largest}
	for i, p := range products {
		c := candidate{product: p, value: p.Numeric(field), index: i}
		if h.Len() < k {
			heap.Push(h, c)
			continue
		}
		if h.better(c, h.items[0]) {
			h.items[0] = c
			heap.Fix(h, 0)
		}
	}

	// Popping yields weakest first; fill from the back.
	result := make([]product.Product, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(candidate).product
	}
	return result
}
