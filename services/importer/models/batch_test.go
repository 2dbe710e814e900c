package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func records(n int) []Record {
	out := make([]Record, n)
	for i := range out {
		sku := fmt.Sprintf("S%03d", i)
		out[i] = Record{SKU: sku, Fields: map[string]string{AttrSKU: sku}}
	}
	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		sizes []int
	}{
		{"empty", 0, []int{}},
		{"single partial", 7, []int{7}},
		{"exact", 25, []int{25}},
		{"thirty rows", 30, []int{25, 5}},
		{"many", 76, []int{25, 25, 25, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Partition(records(tt.n), BatchSize)
			sizes := make([]int, len(batches))
			for i, b := range batches {
				sizes[i] = len(b)
				assert.LessOrEqual(t, len(b), BatchSize)
			}
			assert.Equal(t, tt.sizes, sizes)
		})
	}
}

func TestPartitionPreservesOrder(t *testing.T) {
	batches := Partition(records(30), 0)

	assert.Equal(t, "S000", batches[0][0].SKU)
	assert.Equal(t, "S024", batches[0][24].SKU)
	assert.Equal(t, []string{"S025", "S026", "S027", "S028", "S029"}, batches[1].SKUs())
}

func TestKindColumns(t *testing.T) {
	assert.Equal(t, []string{"sku", "name", "price"}, KindProduct.RequiredColumns())
	assert.Equal(t, []string{"quantity"}, KindStock.UpdateFields())
	assert.True(t, KindStock.Valid())
	assert.False(t, Kind("order").Valid())
}
