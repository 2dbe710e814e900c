package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchAPI is the subset of *cloudwatch.Client used by MetricsClient.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsClient wraps AWS CloudWatch Metrics operations
type MetricsClient struct {
	client    CloudWatchAPI
	namespace string
	enabled   bool
}

// NewMetricsClient creates a new CloudWatch Metrics client. A disabled client
// accepts every call and sends nothing.
func NewMetricsClient(cfg aws.Config, namespace string, enabled bool) *MetricsClient {
	endpoint := Endpoint("AWS_CLOUDWATCH_ENDPOINT")
	client := cloudwatch.NewFromConfig(cfg, func(o *cloudwatch.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewMetricsClientFromAPI(client, namespace, enabled)
}

func NewMetricsClientFromAPI(api CloudWatchAPI, namespace string, enabled bool) *MetricsClient {
	if namespace == "" {
		namespace = "CatalogImport"
	}
	return &MetricsClient{
		client:    api,
		namespace: namespace,
		enabled:   enabled,
	}
}

// PutMetricBatch sends multiple metric data points to CloudWatch
func (m *MetricsClient) PutMetricBatch(ctx context.Context, metrics []types.MetricDatum) error {
	if !m.enabled || len(metrics) == 0 {
		return nil
	}

	batchSize := 20
	for i := 0; i < len(metrics); i += batchSize {
		end := min(i+batchSize, len(metrics))

		_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: metrics[i:end],
		})
		if err != nil {
			return fmt.Errorf("failed to put metric batch: %w", err)
		}
	}

	return nil
}

// RecordCounts sends one Count datum per entry of counts, sharing the dimensions.
func (m *MetricsClient) RecordCounts(ctx context.Context, counts map[string]int, dimensions map[string]string) error {
	if !m.enabled || len(counts) == 0 {
		return nil
	}
	now := aws.Time(time.Now())
	dims := toDimensions(dimensions)
	data := make([]types.MetricDatum, 0, len(counts))
	for name, v := range counts {
		data = append(data, types.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(v)),
			Unit:       types.StandardUnitCount,
			Timestamp:  now,
			Dimensions: dims,
		})
	}
	return m.PutMetricBatch(ctx, data)
}

// IsEnabled returns whether CloudWatch metrics are enabled
func (m *MetricsClient) IsEnabled() bool {
	return m.enabled
}

func toDimensions(dimensions map[string]string) []types.Dimension {
	dims := make([]types.Dimension, 0, len(dimensions))
	for k, v := range dimensions {
		dims = append(dims, types.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}
	return dims
}

// Metric names emitted by the importer
const (
	MetricRowsWritten   = "RowsWritten"
	MetricRowsFailed    = "RowsFailed"
	MetricRowsSkipped   = "RowsSkipped"
	MetricFilesImported = "FilesImported"
	MetricFilesRejected = "FilesRejected"
	MetricSQSMessages   = "SQSMessagesProcessed"
)
