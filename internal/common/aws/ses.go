package aws

import (
	"context"

	"rapidresponse/internal/common/config"

	"github.com/aws/aws-sdk-go-v2/service/ses"
)

// SESClient is the email adapter's sender. The adapter only needs SendEmail, so the
// client exposes nothing else.
type SESClient struct {
	client *ses.Client
}

func NewSESClient(ctx context.Context, cfg config.AWSConfig) (*SESClient, error) {
	awsCfg, err := loadConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SESClient{client: ses.NewFromConfig(awsCfg)}, nil
}

func (s *SESClient) SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return s.client.SendEmail(ctx, input, optFns...)
}
