package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/yashrajoria/catalog-import/services/importer/models"
)

// ErrBatchTooLarge is returned when a batch exceeds models.BatchSize items.
var ErrBatchTooLarge = errors.New("batch exceeds store item limit")

// numericAttributes are stored as DynamoDB numbers when their text parses as a decimal.
var numericAttributes = map[string]bool{
	"price":    true,
	"quantity": true,
}

// DynamoWriter is the DynamoDB-backed ItemWriter.
// Items live in tables whose partition key is `sku` (string).
type DynamoWriter struct {
	client DynamoAPI
}

func NewDynamoWriter(client DynamoAPI) *DynamoWriter {
	return &DynamoWriter{client: client}
}

var _ ItemWriter = (*DynamoWriter)(nil)

// PutBatch issues one BatchWriteItem with a PutRequest per record.
func (d *DynamoWriter) PutBatch(ctx context.Context, table string, batch models.Batch, updated time.Time) ([]string, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	if len(batch) > models.BatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(batch), models.BatchSize)
	}

	writeReqs := make([]types.WriteRequest, 0, len(batch))
	for _, rec := range batch {
		item, err := marshalItem(rec, updated)
		if err != nil {
			return nil, fmt.Errorf("marshal batch item %q: %w", rec.SKU, err)
		}
		writeReqs = append(writeReqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}

	out, err := d.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{table: writeReqs},
	})
	if err != nil {
		return nil, fmt.Errorf("batch write failed: %w", err)
	}

	var unprocessed []string
	for _, req := range out.UnprocessedItems[table] {
		if req.PutRequest == nil {
			continue
		}
		var sku string
		if err := attributevalue.Unmarshal(req.PutRequest.Item[models.AttrSKU], &sku); err != nil {
			return unprocessed, fmt.Errorf("unmarshal unprocessed key: %w", err)
		}
		unprocessed = append(unprocessed, sku)
	}
	return unprocessed, nil
}

// UpdateFields performs UpdateItem keyed by sku with a SET over the present fields.
func (d *DynamoWriter) UpdateFields(ctx context.Context, table string, rec models.Record, fields []string, updated time.Time) error {
	key, err := attributevalue.MarshalMap(map[string]string{models.AttrSKU: rec.SKU})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	expr, names, values, err := buildUpdate(rec, fields, updated)
	if err != nil {
		return err
	}

	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &table,
		Key:                       key,
		UpdateExpression:          &expr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("update item failed: %w", err)
	}
	return nil
}

// buildUpdate renders "SET #f0 = :v0, ..., #updated = :updated". Names go through
// placeholders since `name` is a DynamoDB reserved word.
func buildUpdate(rec models.Record, fields []string, updated time.Time) (string, map[string]string, map[string]types.AttributeValue, error) {
	var sets []string
	names := make(map[string]string)
	raw := make(map[string]interface{})

	for i, field := range fields {
		v, ok := rec.Get(field)
		if !ok || field == models.AttrSKU {
			continue
		}
		n, ph := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
		sets = append(sets, fmt.Sprintf("%s = %s", n, ph))
		names[n] = field
		raw[ph] = attributeValue(field, v)
	}
	sets = append(sets, "#updated = :updated")
	names["#updated"] = models.AttrUpdated
	raw[":updated"] = updated.UnixMilli()

	values, err := attributevalue.MarshalMap(raw)
	if err != nil {
		return "", nil, nil, fmt.Errorf("marshal update values: %w", err)
	}
	return "SET " + strings.Join(sets, ", "), names, values, nil
}

// marshalItem converts a record into a full item with the updated stamp.
func marshalItem(rec models.Record, updated time.Time) (map[string]types.AttributeValue, error) {
	raw := make(map[string]interface{}, len(rec.Fields)+2)
	for k, v := range rec.Fields {
		if v == "" {
			continue
		}
		raw[k] = attributeValue(k, v)
	}
	raw[models.AttrSKU] = rec.SKU
	raw[models.AttrUpdated] = updated.UnixMilli()
	return attributevalue.MarshalMap(raw)
}

// attributeValue coerces numeric columns; anything that does not parse stays a string.
func attributeValue(field, v string) interface{} {
	if numericAttributes[field] {
		if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
			return attributevalue.Number(d.String())
		}
	}
	return v
}
