package aws

import (
	"context"

	"rapidresponse/internal/common/config"

	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSClient is shared by the SMS adapter, which publishes to a phone number, and the
// push adapter, which publishes to a platform endpoint ARN. Both need only Publish.
type SNSClient struct {
	client *sns.Client
}

func NewSNSClient(ctx context.Context, cfg config.AWSConfig) (*SNSClient, error) {
	awsCfg, err := loadConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SNSClient{client: sns.NewFromConfig(awsCfg)}, nil
}

func (s *SNSClient) Publish(ctx context.Context, input *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return s.client.Publish(ctx, input, optFns...)
}
