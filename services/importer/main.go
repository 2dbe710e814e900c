package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	aws_pkg "github.com/yashrajoria/catalog-import/pkg/aws"
	"github.com/yashrajoria/catalog-import/pkg/logger"
	"github.com/yashrajoria/catalog-import/services/importer/repository"
	"github.com/yashrajoria/catalog-import/services/importer/services"
)

func main() {
	ctx := context.Background()

	cfg, err := LoadConfig(ctx)
	if err != nil {
		logger.Initialize(os.Getenv("ENV")).Fatal("Failed to load configuration", zap.Error(err))
	}

	// --- 1. AWS clients (LocalStack-compatible) ---
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		logger.Initialize(cfg.Env).Fatal("Failed to load AWS config", zap.Error(err))
	}

	log := logger.Initialize(cfg.Env)
	if cfg.CloudWatchEnabled {
		cwLogs, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, "importer", cfg.CloudWatchLogGroup)
		if err != nil {
			log.Warn("CloudWatch logs client init failed (non-fatal)", zap.Error(err))
		} else {
			log = logger.InitializeWithWriter(cfg.Env, cwLogs)
		}
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	log.Info("Importer configuration",
		zap.String("product_table", cfg.ProductTable),
		zap.String("stock_table", cfg.StockTable),
		zap.String("strategy", string(cfg.Strategy)),
		zap.Int("max_in_flight", cfg.MaxInFlight),
		zap.String("aws_endpoint", aws_pkg.Endpoint("")),
		zap.String("region", awsCfg.Region),
	)

	metricsClient := aws_pkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)

	// --- 2. Dependency injection ---
	writer := repository.NewDynamoWriter(aws_pkg.NewDynamoDBClient(awsCfg))
	driver := services.NewUpsertDriver(writer, cfg.Strategy,
		services.WithMaxInFlight(cfg.MaxInFlight),
		services.WithRateLimit(cfg.WritesPerSecond, cfg.WriteBurst),
		services.WithLogger(log),
	)

	opts := []services.ProcessorOption{
		services.WithProcessorLogger(log),
		services.WithMetrics(metricsClient),
	}
	if cfg.SummaryTopicARN != "" {
		opts = append(opts, services.WithSummaryPublisher(aws_pkg.NewSNSClient(awsCfg)))
	}
	processor := services.NewProcessor(
		aws_pkg.NewS3BlobStore(aws_pkg.NewS3Client(awsCfg)),
		driver,
		services.ProcessorConfig{
			Tables:          cfg.Tables(),
			AllowedKinds:    cfg.AllowedKinds,
			SummaryTopicARN: cfg.SummaryTopicARN,
		},
		opts...,
	)

	// --- 3. Entry point ---
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		log.Info("Starting importer as Lambda handler")
		lambda.Start(processor.HandleS3Event)
		return
	}

	sqsClient := aws_pkg.NewSQSClient(awsCfg)
	queueURL := cfg.QueueURL
	if queueURL == "" && cfg.QueueName != "" {
		queueURL, err = aws_pkg.GetQueueURL(ctx, sqsClient, cfg.QueueName)
		if err != nil {
			log.Fatal("Failed to resolve import queue", zap.String("queue", cfg.QueueName), zap.Error(err))
		}
	}
	if queueURL == "" {
		log.Fatal("IMPORT_QUEUE_URL or IMPORT_QUEUE_NAME is required outside Lambda")
	}

	consumer := services.NewNotificationConsumer(
		aws_pkg.NewSQSConsumer(sqsClient, queueURL, log),
		processor,
		metricsClient,
		log,
	)

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Start(pollCtx)
	}()
	log.Info("Importer polling queue", zap.String("queue_url", queueURL))

	// --- 4. Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down importer...")

	cancel()
	<-done
	log.Info("Importer stopped gracefully")
}
