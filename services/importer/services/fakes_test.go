package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/yashrajoria/catalog-import/services/importer/models"
)

// memoryStore is an in-memory ItemWriter with DynamoDB-like put/update semantics.
type memoryStore struct {
	mu      sync.Mutex
	tables  map[string]map[string]map[string]string
	putSize []int
	updates int

	failSKUs       map[string]bool // items whose write fails
	unprocessedSKU map[string]bool // items a batch leaves unprocessed
	panicSKU       string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		tables:         map[string]map[string]map[string]string{},
		failSKUs:       map[string]bool{},
		unprocessedSKU: map[string]bool{},
	}
}

var errInjected = errors.New("injected write failure")

func (m *memoryStore) table(name string) map[string]map[string]string {
	t, ok := m.tables[name]
	if !ok {
		t = map[string]map[string]string{}
		m.tables[name] = t
	}
	return t
}

func (m *memoryStore) PutBatch(_ context.Context, table string, batch models.Batch, updated time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putSize = append(m.putSize, len(batch))

	for _, rec := range batch {
		if rec.SKU == m.panicSKU {
			panic("driver bug")
		}
		if m.failSKUs[rec.SKU] {
			return nil, errInjected
		}
	}
	var unprocessed []string
	t := m.table(table)
	for _, rec := range batch {
		if m.unprocessedSKU[rec.SKU] {
			unprocessed = append(unprocessed, rec.SKU)
			continue
		}
		item := maps.Clone(rec.Fields)
		item[models.AttrUpdated] = fmt.Sprint(updated.UnixMilli())
		t[rec.SKU] = item
	}
	return unprocessed, nil
}

func (m *memoryStore) UpdateFields(_ context.Context, table string, rec models.Record, fields []string, updated time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++

	if rec.SKU == m.panicSKU {
		panic("driver bug")
	}
	if m.failSKUs[rec.SKU] {
		return errInjected
	}
	t := m.table(table)
	item, ok := t[rec.SKU]
	if !ok {
		item = map[string]string{models.AttrSKU: rec.SKU}
		t[rec.SKU] = item
	}
	for _, f := range fields {
		if v, ok := rec.Get(f); ok {
			item[f] = v
		}
	}
	item[models.AttrUpdated] = fmt.Sprint(updated.UnixMilli())
	return nil
}

func (m *memoryStore) item(table, sku string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.tables[table][sku])
}

func (m *memoryStore) count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

// fakeBlobs serves objects from memory.
type fakeBlobs struct {
	objects map[string]string
}

func (f *fakeBlobs) Get(_ context.Context, bucket, key string) ([]byte, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("s3://%s/%s: object not found", bucket, key)
	}
	return []byte(data), nil
}

// steppingClock returns start, start+1ms, start+2ms, ...
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Millisecond)
		return t
	}
}

func s3Event(refs ...[2]string) events.S3Event {
	var ev events.S3Event
	for _, ref := range refs {
		ev.Records = append(ev.Records, events.S3EventRecord{
			EventName: "ObjectCreated:Put",
			S3: events.S3Entity{
				Bucket: events.S3Bucket{Name: ref[0]},
				Object: events.S3Object{Key: ref[1]},
			},
		})
	}
	return ev
}

func stockRecords(n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		sku := fmt.Sprintf("S%03d", i)
		out[i] = models.Record{SKU: sku, Fields: map[string]string{"sku": sku, "quantity": fmt.Sprint(i)}, Line: i + 2}
	}
	return out
}
