package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	aws_pkg "github.com/yashrajoria/catalog-import/pkg/aws"
	"github.com/yashrajoria/catalog-import/pkg/logger"
)

// NotificationConsumer feeds bucket notifications delivered through SQS (optionally
// fanned out through SNS) into a Processor.
type NotificationConsumer struct {
	sqsConsumer *aws_pkg.SQSConsumer
	processor   *Processor
	metrics     MetricsRecorder
	logger      *zap.Logger
}

func NewNotificationConsumer(sqsConsumer *aws_pkg.SQSConsumer, processor *Processor, metrics MetricsRecorder, l *zap.Logger) *NotificationConsumer {
	if l == nil {
		l = zap.NewNop()
	}
	return &NotificationConsumer{
		sqsConsumer: sqsConsumer,
		processor:   processor,
		metrics:     activeMetrics(metrics),
		logger:      l,
	}
}

// Start polls the queue until ctx is cancelled.
func (c *NotificationConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting notification queue consumer")

	err := c.sqsConsumer.StartPolling(ctx, c.HandleMessage)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Notification polling error", zap.Error(err))
	}
}

// HandleMessage decodes one queue message and processes the event it carries.
// It returns nil for every message, so each one is acknowledged exactly once.
func (c *NotificationConsumer) HandleMessage(ctx context.Context, body string) error {
	ctx = logger.WithInvocation(ctx, uuid.NewString())
	log := logger.For(ctx, c.logger)

	// Try to unwrap SNS envelope if present
	var snsEnvelope struct {
		Type    string `json:"Type"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &snsEnvelope); err == nil && snsEnvelope.Message != "" {
		body = snsEnvelope.Message
	}

	var probe struct {
		Event string `json:"Event"`
	}
	if err := json.Unmarshal([]byte(body), &probe); err == nil && probe.Event == "s3:TestEvent" {
		log.Info("Ignoring s3:TestEvent")
		return nil
	}

	var event events.S3Event
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		log.Error("Invalid notification JSON, dropping message", zap.Error(err))
		return nil // Don't retry invalid JSON
	}
	if len(event.Records) == 0 {
		log.Warn("Notification without records, dropping message")
		return nil
	}

	c.processor.Process(ctx, event)

	if c.metrics != nil {
		if err := c.metrics.RecordCounts(ctx, map[string]int{aws_pkg.MetricSQSMessages: 1}, map[string]string{"Service": "importer"}); err != nil {
			log.Warn("Failed to record metrics", zap.Error(err))
		}
	}
	return nil
}
