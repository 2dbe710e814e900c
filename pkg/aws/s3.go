package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	// ErrObjectNotFound is returned when a requested object does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrAccessDenied is returned when the caller may not read the object.
	ErrAccessDenied = errors.New("access denied")
)

// S3API is the subset of *s3.Client the blob store needs.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	manager.UploadAPIClient
}

// NewS3Client creates a new S3 client from AWS config.
// Path-style addressing is forced when a custom endpoint (LocalStack) is configured.
func NewS3Client(cfg sdkaws.Config) *s3.Client {
	endpoint := Endpoint("AWS_S3_ENDPOINT")
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = sdkaws.String(endpoint)
		}
	})
}

// S3BlobStore reads and writes whole objects.
type S3BlobStore struct {
	client   S3API
	uploader *manager.Uploader
}

func NewS3BlobStore(client S3API) *S3BlobStore {
	return &S3BlobStore{
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

// Get fetches the full body of bucket/key.
// Returns ErrObjectNotFound if the key does not exist and ErrAccessDenied when
// the bucket policy refuses the read. Other API errors keep their error code.
func (b *S3BlobStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: sdkaws.String(bucket),
		Key:    sdkaws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NotFound":
				return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrObjectNotFound)
			case "AccessDenied", "Forbidden":
				return nil, fmt.Errorf("get object s3://%s/%s: %w: %w", bucket, key, ErrAccessDenied, err)
			}
			return nil, fmt.Errorf("get object s3://%s/%s (%s): %w", bucket, key, apiErr.ErrorCode(), err)
		}
		return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Put uploads data to bucket/key, switching to multipart for large bodies.
func (b *S3BlobStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: sdkaws.String(bucket),
		Key:    sdkaws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = sdkaws.String(contentType)
	}
	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
