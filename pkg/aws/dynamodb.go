package aws

import (
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// NewDynamoDBClient accepts an AWS SDK config and returns a DynamoDB client,
// pointed at AWS_DYNAMODB_ENDPOINT / AWS_ENDPOINT when set.
func NewDynamoDBClient(cfg sdkaws.Config) *dynamodb.Client {
	endpoint := Endpoint("AWS_DYNAMODB_ENDPOINT")
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = sdkaws.String(endpoint)
		}
	})
}
