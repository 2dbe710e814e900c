package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	aws_pkg "github.com/yashrajoria/catalog-import/pkg/aws"
	importerrors "github.com/yashrajoria/catalog-import/pkg/errors"
	"github.com/yashrajoria/catalog-import/pkg/logger"
	"github.com/yashrajoria/catalog-import/services/importer/models"
	"github.com/yashrajoria/catalog-import/services/importer/normalizer"
)

// BlobStore fetches whole objects.
type BlobStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// MetricsRecorder receives per-file counters.
type MetricsRecorder interface {
	RecordCounts(ctx context.Context, counts map[string]int, dimensions map[string]string) error
}

// activeMetrics returns nil when m is nil or reports itself switched off, so
// callers skip building counters nobody will send.
func activeMetrics(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return nil
	}
	if e, ok := m.(interface{ IsEnabled() bool }); ok && !e.IsEnabled() {
		return nil
	}
	return m
}

// ProcessorConfig holds the routing decided at startup.
type ProcessorConfig struct {
	// Tables maps each kind to its destination table.
	Tables map[models.Kind]string
	// AllowedKinds restricts which kinds are imported; empty allows all.
	AllowedKinds []models.Kind
	// SummaryTopicARN receives one JSON FileResult per object when set.
	SummaryTopicARN string
}

// Processor imports the objects referenced by a storage notification.
type Processor struct {
	blobs     BlobStore
	driver    *UpsertDriver
	cfg       ProcessorConfig
	metrics   MetricsRecorder
	publisher aws_pkg.SNSPublisher
	logger    *zap.Logger
}

// ProcessorOption configures optional Processor sinks.
type ProcessorOption func(*Processor)

// WithMetrics enables per-file CloudWatch counters.
func WithMetrics(m MetricsRecorder) ProcessorOption {
	return func(p *Processor) { p.metrics = activeMetrics(m) }
}

// WithSummaryPublisher enables per-file summaries on cfg.SummaryTopicARN.
func WithSummaryPublisher(pub aws_pkg.SNSPublisher) ProcessorOption {
	return func(p *Processor) { p.publisher = pub }
}

// WithProcessorLogger sets the processor's logger.
func WithProcessorLogger(l *zap.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

func NewProcessor(blobs BlobStore, driver *UpsertDriver, cfg ProcessorConfig, opts ...ProcessorOption) *Processor {
	p := &Processor{
		blobs:  blobs,
		driver: driver,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleS3Event is the Lambda handler. It always succeeds: failures are logged per
// object or per item and never trigger redelivery.
func (p *Processor) HandleS3Event(ctx context.Context, event events.S3Event) error {
	invocation := uuid.NewString()
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		invocation = lc.AwsRequestID
	}
	ctx = logger.WithInvocation(ctx, invocation)

	p.Process(ctx, event)
	return nil
}

// Process imports every referenced object concurrently and returns one result per
// event record, in event order.
func (p *Processor) Process(ctx context.Context, event events.S3Event) []models.FileResult {
	log := logger.For(ctx, p.logger)
	log.Info("Processing storage notification", zap.Int("records", len(event.Records)))

	results := make([]models.FileResult, len(event.Records))
	g := &errgroup.Group{}
	for i, rec := range event.Records {
		g.Go(func() error {
			results[i] = p.processRecord(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	var imported, failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		} else {
			imported++
		}
	}
	log.Info("Notification processed", zap.Int("files_imported", imported), zap.Int("files_failed", failed))
	return results
}

func (p *Processor) processRecord(ctx context.Context, rec events.S3EventRecord) (res models.FileResult) {
	start := time.Now()
	bucket := rec.S3.Bucket.Name
	key := decodeKey(rec.S3.Object.Key)
	res = models.FileResult{Bucket: bucket, Key: key}
	log := logger.For(ctx, p.logger).With(zap.String("bucket", bucket), zap.String("key", key))

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic while importing s3://%s/%s: %v", bucket, key, r)
			log.Error("Import aborted", zap.Error(res.Err), zap.Stack("stack"))
		}
		if res.Err != nil {
			res.Error = res.Err.Error()
			res.ErrorKind = string(importerrors.KindOf(res.Err))
		}
		p.report(ctx, log, res, time.Since(start))
	}()

	log.Info("Incoming record", zap.String("event", rec.EventName))

	data, err := p.blobs.Get(ctx, bucket, key)
	if err != nil {
		res.Err = importerrors.RetrievalFailure(bucket, key, err)
		log.Error("Object retrieval failed", zap.Error(res.Err))
		return res
	}

	sheet, err := normalizer.ParseBytes(key, data)
	if err != nil {
		res.Err = err
		log.Error("Invalid CSV format, file skipped", zap.Error(err))
		return res
	}
	res.Kind = sheet.Kind
	res.Rows = len(sheet.Records)
	res.Skipped = sheet.Skipped
	if sheet.Skipped > 0 {
		log.Warn("Rows without sku skipped", zap.Int("skipped", sheet.Skipped))
	}

	if !p.kindAllowed(sheet.Kind) {
		res.Err = importerrors.New(importerrors.KindInvalidSchema,
			fmt.Sprintf("%s sheets are not accepted here: %s", sheet.Kind, key), nil)
		log.Error("Kind not accepted, file skipped", zap.String("kind", string(sheet.Kind)))
		return res
	}

	table := p.cfg.Tables[sheet.Kind]
	if table == "" {
		res.Err = fmt.Errorf("no destination table configured for %s sheets", sheet.Kind)
		log.Error("Unroutable file", zap.Error(res.Err))
		return res
	}

	log.Info("Sheet parsed", zap.String("kind", string(sheet.Kind)), zap.Strings("fields", sheet.Header), zap.Int("rows", res.Rows))
	res.Upsert = p.driver.Upsert(ctx, table, sheet.Kind, sheet.Records)
	return res
}

func (p *Processor) kindAllowed(kind models.Kind) bool {
	if len(p.cfg.AllowedKinds) == 0 {
		return true
	}
	for _, k := range p.cfg.AllowedKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// report emits the optional metrics and summary for one file. Sink failures are
// logged only.
func (p *Processor) report(ctx context.Context, log *zap.Logger, res models.FileResult, elapsed time.Duration) {
	if p.metrics != nil {
		mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		counts := map[string]int{aws_pkg.MetricRowsSkipped: res.Skipped}
		switch {
		case res.Upsert != nil:
			counts[aws_pkg.MetricFilesImported] = 1
			counts[aws_pkg.MetricRowsWritten] = res.Upsert.Succeeded
			counts[aws_pkg.MetricRowsFailed] = res.Upsert.Failed
		case importerrors.KindOf(res.Err) == importerrors.KindInvalidSchema:
			counts[aws_pkg.MetricFilesRejected] = 1
		}
		kind := string(res.Kind)
		if kind == "" {
			kind = "unknown"
		}
		if err := p.metrics.RecordCounts(mctx, counts, map[string]string{"Kind": kind}); err != nil {
			log.Warn("Failed to record metrics", zap.Error(err))
		}
		cancel()
	}

	if p.publisher != nil && p.cfg.SummaryTopicARN != "" {
		body, err := json.Marshal(res)
		if err != nil {
			log.Warn("Failed to encode import summary", zap.Error(err))
			return
		}
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := p.publisher.Publish(pctx, p.cfg.SummaryTopicARN, body); err != nil {
			log.Warn("Failed to publish import summary", zap.Error(err))
		}
	}

	log.Debug("File finished", zap.Duration("elapsed", elapsed))
}

// decodeKey undoes the form encoding S3 applies to keys in notifications
// ("my+file%281%29.csv" -> "my file(1).csv").
func decodeKey(key string) string {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}
