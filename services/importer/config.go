package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	aws_pkg "github.com/yashrajoria/catalog-import/pkg/aws"
	"github.com/yashrajoria/catalog-import/services/importer/models"
	"github.com/yashrajoria/catalog-import/services/importer/services"
)

// Config holds the importer settings.
type Config struct {
	Env          string
	ProductTable string            `validate:"required"`
	StockTable   string            `validate:"required"`
	Strategy     services.Strategy `validate:"oneof=batch update"`
	MaxInFlight  int               `validate:"gte=0"`
	AllowedKinds []models.Kind     `validate:"dive,oneof=product stock"`

	WritesPerSecond float64 `validate:"gte=0"`
	WriteBurst      int     `validate:"gte=0"`

	QueueURL        string
	QueueName       string
	SummaryTopicARN string

	CloudWatchEnabled   bool
	CloudWatchNamespace string
	CloudWatchLogGroup  string

	UseSecrets bool
}

var defaults = map[string]any{
	"env":                  "development",
	"write_strategy":       string(services.StrategyBatch),
	"max_in_flight":        0,
	"writes_per_second":    0,
	"write_burst":          25,
	"cloudwatch_enabled":   false,
	"cloudwatch_namespace": "CatalogImport",
	"cloudwatch_log_group": "/catalog-import/services",
}

// Tables returns the kind to table routing. Stock rows share the product table
// unless STOCK_TABLE is set.
func (c *Config) Tables() map[models.Kind]string {
	return map[models.Kind]string{
		models.KindProduct: c.ProductTable,
		models.KindStock:   c.StockTable,
	}
}

// LoadConfig reads .env (optional) and the process environment, applies
// Secrets Manager overrides when AWS_USE_SECRETS=true and validates the result.
func LoadConfig(ctx context.Context) (*Config, error) {
	cfg, err := loadConfig(".env")
	if err != nil {
		return nil, err
	}

	if cfg.UseSecrets {
		sm, err := newSecretGetter(ctx)
		if err != nil {
			return nil, fmt.Errorf("AWS_USE_SECRETS is set but Secrets Manager is unavailable: %w", err)
		}
		applySecretOverrides(ctx, cfg, sm)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfig(envFile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("error loading config defaults: %w", err)
	}

	// .env values sit below the real environment
	if fileEnv, err := godotenv.Read(envFile); err == nil {
		envMap := make(map[string]any, len(fileEnv))
		for key, value := range fileEnv {
			envMap[strings.ToLower(key)] = value
		}
		if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
			return nil, fmt.Errorf("error loading %s: %w", envFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading %s: %w", envFile, err)
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	strategy, err := services.ParseStrategy(k.String("write_strategy"))
	if err != nil {
		return nil, err
	}
	kinds, err := parseKinds(k.String("allowed_kinds"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:                 k.String("env"),
		ProductTable:        k.String("product_table"),
		StockTable:          k.String("stock_table"),
		Strategy:            strategy,
		MaxInFlight:         k.Int("max_in_flight"),
		AllowedKinds:        kinds,
		WritesPerSecond:     k.Float64("writes_per_second"),
		WriteBurst:          k.Int("write_burst"),
		QueueURL:            k.String("import_queue_url"),
		QueueName:           k.String("import_queue_name"),
		SummaryTopicARN:     k.String("summary_topic_arn"),
		CloudWatchEnabled:   k.Bool("cloudwatch_enabled"),
		CloudWatchNamespace: k.String("cloudwatch_namespace"),
		CloudWatchLogGroup:  k.String("cloudwatch_log_group"),
		UseSecrets:          k.Bool("aws_use_secrets"),
	}
	if cfg.StockTable == "" {
		cfg.StockTable = cfg.ProductTable
	}
	return cfg, nil
}

type secretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

var newSecretGetter = func(ctx context.Context) (secretGetter, error) {
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return aws_pkg.NewSecretsClient(awsCfg), nil
}

// applySecretOverrides replaces table names with Secrets Manager values when
// present and keeps the environment values otherwise.
func applySecretOverrides(ctx context.Context, cfg *Config, sm secretGetter) {
	if v, err := sm.GetSecret(ctx, "importer/PRODUCT_TABLE"); err == nil && v != "" {
		if cfg.StockTable == cfg.ProductTable {
			cfg.StockTable = v
		}
		cfg.ProductTable = v
	}
	if v, err := sm.GetSecret(ctx, "importer/STOCK_TABLE"); err == nil && v != "" {
		cfg.StockTable = v
	}
}

var validate = validator.New()

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func parseKinds(raw string) ([]models.Kind, error) {
	var kinds []models.Kind
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		kind := models.Kind(part)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown kind %q in ALLOWED_KINDS", part)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
