package models

// Kind is the schema classification of a source file.
type Kind string

const (
	KindProduct Kind = "product"
	KindStock   Kind = "stock"
)

// Kinds lists the known kinds in classification order: a header that satisfies
// several kinds gets the first one.
var Kinds = []Kind{KindProduct, KindStock}

// RequiredColumns returns the lower-case header names a file must carry to be of kind k.
func (k Kind) RequiredColumns() []string {
	switch k {
	case KindProduct:
		return []string{"sku", "name", "price"}
	case KindStock:
		return []string{"sku", "quantity"}
	}
	return nil
}

// UpdateFields returns the attributes a per-item update sets for kind k (besides updated).
func (k Kind) UpdateFields() []string {
	switch k {
	case KindProduct:
		return []string{"name", "price"}
	case KindStock:
		return []string{"quantity"}
	}
	return nil
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Attribute names shared by every kind.
const (
	AttrSKU     = "sku"
	AttrUpdated = "updated"
)

// Record is one normalized CSV row. Fields holds every non-empty cell keyed by
// lower-cased header name, sku included.
type Record struct {
	SKU    string
	Fields map[string]string
	Line   int
}

// Get returns the field value and whether it is present.
func (r Record) Get(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}
