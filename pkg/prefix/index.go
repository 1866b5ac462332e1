// Package prefix provides a per-request binary search tree over product
// names supporting bounded prefix lookups for autocomplete.
package prefix

import (
	"strings"

	"github.com/Sternrassler/catalog-proxy/pkg/product"
)

type node struct {
	key         string
	product     product.Product
	left, right *node
}

// Index is a binary search tree keyed by lowercase product name.
// It is not safe for concurrent use; build one per request.
type Index struct {
	root *node
	size int
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// Build inserts products in sequence order, skipping products without a name.
// When names repeat, the first occurrence is kept.
func Build(products []product.Product) *Index {
	idx := New()
	for _, p := range products {
		if name := p.Name(); name != "" {
			idx.Insert(name, p)
		}
	}
	return idx
}

// Insert adds p under the lowercase form of key. It reports false and leaves
// the index untouched when the key is already present.
func (idx *Index) Insert(key string, p product.Product) bool {
	key = strings.ToLower(key)
	fresh := &node{key: key, product: p}

	if idx.root == nil {
		idx.root = fresh
		idx.size++
		return true
	}

	cur := idx.root
	for {
		switch {
		case key == cur.key:
			return false
		case key < cur.key:
			if cur.left == nil {
				cur.left = fresh
				idx.size++
				return true
			}
			cur = cur.left
		default:
			if cur.right == nil {
				cur.right = fresh
				idx.size++
				return true
			}
			cur = cur.right
		}
	}
}

// Len returns the number of distinct keys in the index.
func (idx *Index) Len() int {
	return idx.size
}

// Lookup returns the product stored under key.
func (idx *Index) Lookup(key string) (product.Product, bool) {
	key = strings.ToLower(key)
	for cur := idx.root; cur != nil; {
		switch {
		case key == cur.key:
			return cur.product, true
		case key < cur.key:
			cur = cur.left
		default:
			cur = cur.right
		}
	}
	return product.Product{}, false
}

// SearchPrefix returns up to limit keys starting with prefix, in ascending
// order. The prefix is matched case-insensitively. Traversal stops as soon as
// limit keys are collected or the walk moves past the keys sharing the prefix.
func (idx *Index) SearchPrefix(prefix string, limit int) []string {
	results := make([]string, 0)
	if limit <= 0 {
		return results
	}
	prefix = strings.ToLower(prefix)

	// Iterative in-order walk; trees built from sorted input degenerate into
	// long right-leaning chains.
	var stack []*node
	cur := idx.root
	for cur != nil || len(stack) > 0 {
		for cur != nil {
			stack = append(stack, cur)
			if cur.key < prefix {
				// Everything on the left sorts before the prefix.
				break
			}
			cur = cur.left
		}

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if strings.HasPrefix(n.key, prefix) {
			results = append(results, n.key)
			if len(results) >= limit {
				return results
			}
		} else if n.key > prefix {
			// Keys sharing the prefix form a contiguous range; this one and
			// every later one lie beyond it.
			return results
		}
		cur = n.right
	}
	return results
}
