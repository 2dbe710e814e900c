package models

// BatchSize is the store's per-call item limit for item-list writes.
const BatchSize = 25

// Batch is an ordered group of at most BatchSize records written in one call.
type Batch []Record

// Partition splits records into consecutive batches of at most size records.
// A non-positive size falls back to BatchSize.
func Partition(records []Record, size int) []Batch {
	if size <= 0 {
		size = BatchSize
	}
	batches := make([]Batch, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		batches = append(batches, Batch(records[start:end]))
	}
	return batches
}

// SKUs returns the keys of the batch in order.
func (b Batch) SKUs() []string {
	skus := make([]string, len(b))
	for i, r := range b {
		skus[i] = r.SKU
	}
	return skus
}
