package aws

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	published []string
	err       error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, *in.TopicArn+" "+*in.Message)
	return &sns.PublishOutput{}, nil
}

func TestSNSClientPublish(t *testing.T) {
	fake := &fakeSNS{}
	c := NewSNSClientFromAPI(fake)

	require.NoError(t, c.Publish(context.Background(), "arn:imports", []byte(`{"key":"a.csv"}`)))
	assert.Equal(t, []string{`arn:imports {"key":"a.csv"}`}, fake.published)

	assert.Error(t, c.Publish(context.Background(), "", []byte("x")))

	fake.err = errors.New("denied")
	assert.ErrorContains(t, c.Publish(context.Background(), "arn:imports", []byte("x")), "denied")
}

type fakeSecretsManager struct {
	calls  int
	values map[string]string
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[*in.SecretId]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: sdkaws.String(v)}, nil
}

func TestSecretsClientCachesValues(t *testing.T) {
	fake := &fakeSecretsManager{values: map[string]string{"importer/PRODUCT_TABLE": "Catalog"}}
	c := NewSecretsClientFromAPI(fake)

	for i := 0; i < 2; i++ {
		v, err := c.GetSecret(context.Background(), "importer/PRODUCT_TABLE")
		require.NoError(t, err)
		assert.Equal(t, "Catalog", v)
	}
	assert.Equal(t, 1, fake.calls)

	_, err := c.GetSecret(context.Background(), "importer/STOCK_TABLE")
	assert.Error(t, err)
}
