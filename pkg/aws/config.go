package aws

import (
	"context"
	"fmt"
	"os"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// Endpoint returns the custom endpoint (LocalStack edge URL) configured for the given
// service env var, falling back to AWS_ENDPOINT. Empty means "use AWS".
func Endpoint(serviceEnv string) string {
	if serviceEnv != "" {
		if v := os.Getenv(serviceEnv); v != "" {
			return v
		}
	}
	return os.Getenv("AWS_ENDPOINT")
}

// LoadAWSConfig loads AWS config and supports LocalStack via AWS_ENDPOINT.
// Static credentials from AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY are used when set, which is
// what LocalStack expects; otherwise the default chain (Lambda role, profile, ...) applies.
func LoadAWSConfig(ctx context.Context) (sdkaws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if region := os.Getenv("AWS_REGION"); region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	endpoint := os.Getenv("AWS_ENDPOINT")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if endpoint != "" && (accessKey != "" || secret != "") {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secret, os.Getenv("AWS_SESSION_TOKEN")),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return cfg, fmt.Errorf("failed to load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	if endpoint != "" {
		signingRegion := cfg.Region
		// Same endpoint for every service so the LocalStack edge port is used.
		resolver := sdkaws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (sdkaws.Endpoint, error) {
			return sdkaws.Endpoint{
				URL:               endpoint,
				SigningRegion:     signingRegion,
				HostnameImmutable: true,
			}, nil
		})
		cfg.EndpointResolverWithOptions = resolver
	}

	return cfg, nil
}
