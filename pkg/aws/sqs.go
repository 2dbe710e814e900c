package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// SQSAPI is the subset of *sqs.Client the consumer needs.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// QueueURLAPI resolves queue names.
type QueueURLAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// Long polling settings. The visibility timeout has to outlast one import of a
// large file, otherwise the notification is handed to a second poller.
const (
	maxMessages       = 10
	waitTimeSeconds   = 20
	visibilitySeconds = 120
	pollErrorBackoff  = time.Second
)

// SQSConsumer long-polls one queue of storage notifications.
type SQSConsumer struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger
}

func NewSQSConsumer(client SQSAPI, queueURL string, logger *zap.Logger) *SQSConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQSConsumer{
		client:   client,
		queueURL: queueURL,
		logger:   logger.With(zap.String("queue", queueURL)),
	}
}

// NewSQSClient creates an SQS client honouring AWS_SQS_ENDPOINT / AWS_ENDPOINT.
func NewSQSClient(cfg aws.Config) *sqs.Client {
	endpoint := Endpoint("AWS_SQS_ENDPOINT")
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// MessageHandler processes one message body. Returning nil acknowledges it.
type MessageHandler func(ctx context.Context, body string) error

// StartPolling runs PollOnce until ctx is cancelled and then returns ctx.Err().
func (c *SQSConsumer) StartPolling(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting SQS polling")

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("SQS polling stopped")
			return err
		}
		err := c.PollOnce(ctx, handler)
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		c.logger.Error("Error polling SQS", zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(pollErrorBackoff):
		}
	}
}

// PollOnce receives one batch of messages and hands each to handler. Messages whose handler
// returns nil are deleted; the rest become visible again after the visibility timeout.
func (c *SQSConsumer) PollOnce(ctx context.Context, handler MessageHandler) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &c.queueURL,
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     waitTimeSeconds,
		VisibilityTimeout:   visibilitySeconds,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range result.Messages {
		if msg.Body == nil {
			continue
		}
		log := c.logger.With(zap.Stringp("message_id", msg.MessageId))

		if err := handler(ctx, *msg.Body); err != nil {
			log.Warn("Message left for redelivery", zap.Error(err))
			continue
		}

		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &c.queueURL,
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			log.Error("Failed to delete message", zap.Error(err))
		}
	}

	return nil
}

// GetQueueURL resolves a queue name to its URL.
func GetQueueURL(ctx context.Context, client QueueURLAPI, queueName string) (string, error) {
	result, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: &queueName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL for %s: %w", queueName, err)
	}
	return aws.ToString(result.QueueUrl), nil
}
