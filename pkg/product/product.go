// Package product normalizes raw catalog records into a uniform shape.
//
// The catalog API returns product records in two layouts: fields directly on
// the record, or wrapped one level deeper under a "data" object. Normalize
// resolves the layout once so the rest of the pipeline reads fields without
// caring which shape arrived.
package product

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Field names used by the catalog API.
const (
	FieldName  = "nomeProduto"
	FieldBrand = "marca"
	FieldData  = "data"
)

// Product is an immutable, normalized catalog record.
type Product struct {
	raw     []byte
	payload gjson.Result
	name    string
	brand   string
}

// Normalize builds a Product from a raw JSON record. Records that are valid
// JSON but not objects yield a Product with empty name and brand; their raw
// bytes are kept so the record can still be echoed back to clients.
func Normalize(raw []byte) Product {
	if !gjson.ValidBytes(raw) {
		return Product{}
	}

	p := Product{raw: append([]byte(nil), raw...)}
	record := gjson.ParseBytes(raw)
	if !record.IsObject() {
		return p
	}

	p.payload = record
	if data := lookup(record, FieldData); data.IsObject() {
		p.payload = data
	}

	if v := lookup(p.payload, FieldName); v.Type == gjson.String {
		p.name = strings.ToLower(v.Str)
	}
	if v := lookup(p.payload, FieldBrand); v.Type == gjson.String {
		p.brand = v.Str
	}
	return p
}

// FromBatch normalizes a batch of raw records, dropping JSON nulls.
func FromBatch(raws [][]byte) []Product {
	products := make([]Product, 0, len(raws))
	for _, raw := range raws {
		if gjson.ParseBytes(raw).Type == gjson.Null {
			continue
		}
		products = append(products, Normalize(raw))
	}
	return products
}

// Name returns the lowercase product name, or "" when absent.
func (p Product) Name() string {
	return p.name
}

// Brand returns the product brand and whether it is present and non-empty.
func (p Product) Brand() (string, bool) {
	return p.brand, p.brand != ""
}

// Numeric returns the named field coerced to float64.
// Numbers are returned as is, numeric strings are parsed and true counts as 1.
// Missing, malformed or non-numeric values yield 0.
func (p Product) Numeric(field string) float64 {
	if !p.payload.IsObject() {
		return 0
	}

	v := lookup(p.payload, field)
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case gjson.True:
		f = 1
	default:
		return 0
	}

	if math.IsNaN(f) {
		return 0
	}
	return f
}

// Raw returns the record exactly as received from the catalog.
func (p Product) Raw() []byte {
	return p.raw
}

// MarshalJSON emits the original record unchanged.
func (p Product) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return []byte("null"), nil
	}
	return p.raw, nil
}

// UnmarshalJSON normalizes the record being decoded.
func (p *Product) UnmarshalJSON(data []byte) error {
	*p = Normalize(data)
	return nil
}

// lookup finds a top-level key by exact name. Field names are matched
// literally instead of through gjson path syntax, so names containing dots
// or wildcards still resolve.
func lookup(obj gjson.Result, key string) gjson.Result {
	var found gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			found = v
			return false
		}
		return true
	})
	return found
}
