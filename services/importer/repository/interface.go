package repository

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/yashrajoria/catalog-import/services/importer/models"
)

// ItemWriter defines the table-store writes used by the upsert driver.
// Implementations are keyed by sku and must be safe for concurrent use.
type ItemWriter interface {
	// PutBatch replaces or inserts every record of batch wholesale, stamping each with
	// updated. It returns the skus the store left unprocessed; those are not retried.
	PutBatch(ctx context.Context, table string, batch models.Batch, updated time.Time) (unprocessed []string, err error)
	// UpdateFields sets the listed fields present on rec plus updated, leaving any
	// other stored attribute of the item untouched.
	UpdateFields(ctx context.Context, table string, rec models.Record, fields []string, updated time.Time) error
}

// DynamoAPI is the subset of *dynamodb.Client the writer calls.
type DynamoAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}
