package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashrajoria/catalog-import/services/importer/models"
	"github.com/yashrajoria/catalog-import/services/importer/services"
)

var configKeys = []string{
	"ENV", "PRODUCT_TABLE", "STOCK_TABLE", "WRITE_STRATEGY", "MAX_IN_FLIGHT", "ALLOWED_KINDS",
	"WRITES_PER_SECOND", "WRITE_BURST",
	"IMPORT_QUEUE_URL", "IMPORT_QUEUE_NAME", "SUMMARY_TOPIC_ARN", "CLOUDWATCH_ENABLED",
	"CLOUDWATCH_NAMESPACE", "CLOUDWATCH_LOG_GROUP", "AWS_USE_SECRETS",
}

// clearEnv unsets every importer variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), ".env")
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRODUCT_TABLE", "Catalog")

	cfg, err := loadConfig(missingEnvFile(t))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "Catalog", cfg.ProductTable)
	assert.Equal(t, "Catalog", cfg.StockTable)
	assert.Equal(t, services.StrategyBatch, cfg.Strategy)
	assert.Zero(t, cfg.MaxInFlight)
	assert.Empty(t, cfg.AllowedKinds)
	assert.False(t, cfg.CloudWatchEnabled)
	assert.Equal(t, "CatalogImport", cfg.CloudWatchNamespace)
	assert.Equal(t, map[models.Kind]string{
		models.KindProduct: "Catalog",
		models.KindStock:   "Catalog",
	}, cfg.Tables())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRODUCT_TABLE", "Products")
	t.Setenv("STOCK_TABLE", "Stock")
	t.Setenv("WRITE_STRATEGY", "update")
	t.Setenv("MAX_IN_FLIGHT", "8")
	t.Setenv("WRITES_PER_SECOND", "12.5")
	t.Setenv("ALLOWED_KINDS", " Stock ")
	t.Setenv("CLOUDWATCH_ENABLED", "true")
	t.Setenv("IMPORT_QUEUE_NAME", "catalog-imports")

	cfg, err := loadConfig(missingEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "Stock", cfg.StockTable)
	assert.Equal(t, services.StrategyUpdate, cfg.Strategy)
	assert.Equal(t, 8, cfg.MaxInFlight)
	assert.Equal(t, 12.5, cfg.WritesPerSecond)
	assert.Equal(t, 25, cfg.WriteBurst)
	assert.Equal(t, []models.Kind{models.KindStock}, cfg.AllowedKinds)
	assert.True(t, cfg.CloudWatchEnabled)
	assert.Equal(t, "catalog-imports", cfg.QueueName)
}

func TestLoadConfigEnvFileIsOverriddenByEnvironment(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PRODUCT_TABLE=FromFile\nSTOCK_TABLE=StockFromFile\n"), 0o600))
	t.Setenv("STOCK_TABLE", "StockFromEnv")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "FromFile", cfg.ProductTable)
	assert.Equal(t, "StockFromEnv", cfg.StockTable)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRODUCT_TABLE", "Products")

	t.Setenv("WRITE_STRATEGY", "replace")
	_, err := loadConfig(missingEnvFile(t))
	assert.Error(t, err)

	t.Setenv("WRITE_STRATEGY", "batch")
	t.Setenv("ALLOWED_KINDS", "product,orders")
	_, err = loadConfig(missingEnvFile(t))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{ProductTable: "P", StockTable: "P", Strategy: services.StrategyBatch}
	}
	assert.NoError(t, valid().Validate())

	assert.Error(t, (&Config{}).Validate())

	cfg := valid()
	cfg.MaxInFlight = -1
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.WritesPerSecond = -5
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.AllowedKinds = []models.Kind{"orders"}
	assert.Error(t, cfg.Validate())
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func TestApplySecretOverrides(t *testing.T) {
	cfg := &Config{ProductTable: "Env", StockTable: "Env"}
	applySecretOverrides(context.Background(), cfg, fakeSecrets{"importer/PRODUCT_TABLE": "Secret"})
	assert.Equal(t, "Secret", cfg.ProductTable)
	assert.Equal(t, "Secret", cfg.StockTable)

	cfg = &Config{ProductTable: "Env", StockTable: "EnvStock"}
	applySecretOverrides(context.Background(), cfg, fakeSecrets{"importer/STOCK_TABLE": "SecretStock"})
	assert.Equal(t, "Env", cfg.ProductTable)
	assert.Equal(t, "SecretStock", cfg.StockTable)
}

func stubSecretGetter(t *testing.T, sm secretGetter, err error) {
	t.Helper()
	orig := newSecretGetter
	t.Cleanup(func() { newSecretGetter = orig })
	newSecretGetter = func(context.Context) (secretGetter, error) { return sm, err }
}

func TestLoadConfigFailsWhenSecretsUnavailable(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("PRODUCT_TABLE", "Products")
	t.Setenv("AWS_USE_SECRETS", "true")
	stubSecretGetter(t, nil, errors.New("no credentials"))

	_, err := LoadConfig(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AWS_USE_SECRETS")
	assert.Contains(t, err.Error(), "no credentials")
}

func TestLoadConfigAppliesSecrets(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("PRODUCT_TABLE", "Products")
	t.Setenv("AWS_USE_SECRETS", "true")
	stubSecretGetter(t, fakeSecrets{"importer/STOCK_TABLE": "SecretStock"}, nil)

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Products", cfg.ProductTable)
	assert.Equal(t, "SecretStock", cfg.StockTable)
}

func TestLoadConfigIgnoresSecretsWhenDisabled(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("PRODUCT_TABLE", "Products")
	stubSecretGetter(t, nil, errors.New("must not be called"))

	cfg, err := LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Products", cfg.StockTable)
}
