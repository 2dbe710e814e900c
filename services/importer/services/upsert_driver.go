package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	importerrors "github.com/yashrajoria/catalog-import/pkg/errors"
	"github.com/yashrajoria/catalog-import/pkg/logger"
	"github.com/yashrajoria/catalog-import/services/importer/models"
	"github.com/yashrajoria/catalog-import/services/importer/repository"
)

// Strategy selects how records reach the table store.
type Strategy string

const (
	// StrategyBatch writes whole items in BatchWriteItem calls of up to 25 puts.
	StrategyBatch Strategy = "batch"
	// StrategyUpdate issues one UpdateItem per record, merging into the stored item.
	StrategyUpdate Strategy = "update"
)

// ParseStrategy maps a config value onto a Strategy; empty means StrategyBatch.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyBatch:
		return StrategyBatch, nil
	case StrategyUpdate:
		return StrategyUpdate, nil
	}
	return "", fmt.Errorf("unknown write strategy %q (want %q or %q)", s, StrategyBatch, StrategyUpdate)
}

// ErrUnprocessed marks an item the store returned as unprocessed. It is not retried.
var ErrUnprocessed = errors.New("left unprocessed by store")

// UpsertDriver writes records to the table store keyed by sku. One failed write
// never stops its siblings from being attempted.
type UpsertDriver struct {
	writer      repository.ItemWriter
	strategy    Strategy
	maxInFlight int
	limiter     *rate.Limiter
	now         func() time.Time
	logger      *zap.Logger
}

// DriverOption configures an UpsertDriver.
type DriverOption func(*UpsertDriver)

// WithMaxInFlight caps concurrent store calls; n <= 0 leaves them unbounded.
func WithMaxInFlight(n int) DriverOption {
	return func(d *UpsertDriver) { d.maxInFlight = n }
}

// WithRateLimit throttles store calls to perSecond with the given burst; perSecond <= 0
// disables throttling.
func WithRateLimit(perSecond float64, burst int) DriverOption {
	return func(d *UpsertDriver) {
		if perSecond <= 0 {
			d.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithClock overrides the source of the updated stamp.
func WithClock(now func() time.Time) DriverOption {
	return func(d *UpsertDriver) { d.now = now }
}

// WithLogger sets the driver's logger.
func WithLogger(l *zap.Logger) DriverOption {
	return func(d *UpsertDriver) { d.logger = l }
}

func NewUpsertDriver(writer repository.ItemWriter, strategy Strategy, opts ...DriverOption) *UpsertDriver {
	d := &UpsertDriver{
		writer:   writer,
		strategy: strategy,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	if d.strategy == "" {
		d.strategy = StrategyBatch
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Strategy returns the configured write strategy.
func (d *UpsertDriver) Strategy() Strategy { return d.strategy }

// Upsert writes every record to table and reports per-item outcomes. It returns only
// after every write has settled.
func (d *UpsertDriver) Upsert(ctx context.Context, table string, kind models.Kind, records []models.Record) *models.UpsertResult {
	log := logger.For(ctx, d.logger).With(
		zap.String("kind", string(kind)),
		zap.String("table", table),
		zap.String("strategy", string(d.strategy)),
	)

	records, dropped := dedupeBySKU(records)
	for _, r := range dropped {
		log.Warn("Duplicate sku in file, later row wins", zap.String("sku", r.SKU), zap.Int("line", r.Line))
	}

	result := &models.UpsertResult{
		Kind:      kind,
		Table:     table,
		Strategy:  string(d.strategy),
		Attempted: len(records),
	}

	var outcomes []models.WriteOutcome
	switch d.strategy {
	case StrategyUpdate:
		outcomes = d.updateEach(ctx, log, table, kind, records)
	default:
		var batches int
		outcomes, batches = d.putBatches(ctx, log, table, records)
		result.Batches = batches
	}

	for _, o := range outcomes {
		if o.Applied() {
			result.Succeeded++
			continue
		}
		result.Failed++
		result.Failures = append(result.Failures, o)
		log.Error("Item write failed", zap.Int("index", o.Index), zap.String("sku", o.SKU), zap.Error(o.Err))
	}

	log.Info("Upsert complete",
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result
}

// putBatches issues one PutBatch per partition concurrently. A call error fails every
// item of its batch; unprocessed items fail individually.
func (d *UpsertDriver) putBatches(ctx context.Context, log *zap.Logger, table string, records []models.Record) ([]models.WriteOutcome, int) {
	batches := models.Partition(records, models.BatchSize)
	log.Info("Total batches", zap.Int("batches", len(batches)), zap.Int("items", len(records)))

	updated := d.now()
	outcomes := make([]models.WriteOutcome, len(records))
	g := d.group()
	for bi, batch := range batches {
		offset := bi * models.BatchSize
		g.Go(func() error {
			var unprocessed []string
			err := d.wait(ctx)
			if err == nil {
				unprocessed, err = d.safePut(ctx, table, batch, updated)
			}
			skipped := make(map[string]bool, len(unprocessed))
			for _, sku := range unprocessed {
				skipped[sku] = true
			}
			for i, rec := range batch {
				o := models.WriteOutcome{Index: offset + i, SKU: rec.SKU}
				switch {
				case err != nil:
					o.Err = importerrors.WriteFailure(rec.SKU, err)
				case skipped[rec.SKU]:
					o.Err = importerrors.WriteFailure(rec.SKU, ErrUnprocessed)
				}
				outcomes[offset+i] = o
			}

			fields := []zap.Field{zap.Int("batch", bi+1), zap.Int("items", len(batch))}
			switch {
			case err != nil:
				log.Error("Batch write failed", append(fields, zap.Error(err))...)
			case len(unprocessed) > 0:
				log.Warn("Batch partially written", append(fields, zap.Strings("unprocessed", unprocessed))...)
			default:
				log.Debug("Batch written", fields...)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, len(batches)
}

// updateEach issues one UpdateFields per record concurrently.
func (d *UpsertDriver) updateEach(ctx context.Context, log *zap.Logger, table string, kind models.Kind, records []models.Record) []models.WriteOutcome {
	fields := kind.UpdateFields()
	updated := d.now()
	outcomes := make([]models.WriteOutcome, len(records))
	g := d.group()
	for i, rec := range records {
		g.Go(func() error {
			o := models.WriteOutcome{Index: i, SKU: rec.SKU}
			err := d.wait(ctx)
			if err == nil {
				err = d.safeUpdate(ctx, table, rec, fields, updated)
			}
			if err != nil {
				o.Err = importerrors.WriteFailure(rec.SKU, err)
			}
			outcomes[i] = o
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// group returns a join barrier whose tasks never cancel each other.
func (d *UpsertDriver) group() *errgroup.Group {
	g := &errgroup.Group{}
	if d.maxInFlight > 0 {
		g.SetLimit(d.maxInFlight)
	}
	return g
}

// wait blocks until the rate limiter admits one more store call.
func (d *UpsertDriver) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}

func (d *UpsertDriver) safePut(ctx context.Context, table string, batch models.Batch, updated time.Time) (unprocessed []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in batch write: %v", r)
		}
	}()
	return d.writer.PutBatch(ctx, table, batch, updated)
}

func (d *UpsertDriver) safeUpdate(ctx context.Context, table string, rec models.Record, fields []string, updated time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in item update: %v", r)
		}
	}()
	return d.writer.UpdateFields(ctx, table, rec, fields, updated)
}

// dedupeBySKU keeps the last occurrence of each sku, preserving the order in which the
// surviving rows appear in the file.
func dedupeBySKU(records []models.Record) (kept, dropped []models.Record) {
	last := make(map[string]int, len(records))
	for i, r := range records {
		last[r.SKU] = i
	}
	if len(last) == len(records) {
		return records, nil
	}
	kept = make([]models.Record, 0, len(last))
	for i, r := range records {
		if last[r.SKU] == i {
			kept = append(kept, r)
		} else {
			dropped = append(dropped, r)
		}
	}
	return kept, dropped
}
