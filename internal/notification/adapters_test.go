package notification

import (
	"context"
	"errors"
	"testing"

	"rapidresponse/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSES struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type mockSNS struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *mockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

var testEnvelope = &Envelope{
	Type:    models.EventEmergencyCreated,
	Subject: "New HIGH priority FIRE emergency",
	Text:    "Emergency em-1 has been reported.",
}

func TestEmailAdapter_Deliver(t *testing.T) {
	var got *ses.SendEmailInput
	client := &mockSES{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			got = params
			return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
		},
	}

	status, err := NewEmailAdapter(client, "alerts@rapidresponse.test").Deliver(context.Background(), "chief@fire.test", testEnvelope)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, status)

	require.NotNil(t, got)
	assert.Equal(t, []string{"chief@fire.test"}, got.Destination.ToAddresses)
	assert.Equal(t, "alerts@rapidresponse.test", aws.ToString(got.Source))
	assert.Equal(t, testEnvelope.Subject, aws.ToString(got.Message.Subject.Data))
	assert.Equal(t, testEnvelope.Text, aws.ToString(got.Message.Body.Text.Data))
}

func TestEmailAdapter_DeliverError(t *testing.T) {
	client := &mockSES{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	status, err := NewEmailAdapter(client, "alerts@rapidresponse.test").Deliver(context.Background(), "chief@fire.test", testEnvelope)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.Equal(t, models.NotificationFailed, status)
}

func TestSMSAdapter_Deliver(t *testing.T) {
	tests := []struct {
		name      string
		senderID  string
		wantAttrs bool
	}{
		{"with sender id", "RAPIDRESP", true},
		{"without sender id", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *sns.PublishInput
			client := &mockSNS{
				PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
					got = params
					return &sns.PublishOutput{}, nil
				},
			}

			status, err := NewSMSAdapter(client, tt.senderID).Deliver(context.Background(), "+15551234567", testEnvelope)
			require.NoError(t, err)
			assert.Equal(t, models.NotificationSent, status)
			assert.Equal(t, "+15551234567", aws.ToString(got.PhoneNumber))
			assert.Equal(t, testEnvelope.Subject+": "+testEnvelope.Text, aws.ToString(got.Message))
			if tt.wantAttrs {
				assert.Equal(t, tt.senderID, aws.ToString(got.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
			} else {
				assert.Empty(t, got.MessageAttributes)
			}
		})
	}
}

func TestPushAdapter_Deliver(t *testing.T) {
	var got *sns.PublishInput
	client := &mockSNS{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			got = params
			return &sns.PublishOutput{}, nil
		},
	}
	arn := "arn:aws:sns:us-east-1:123456789012:endpoint/GCM/app/abc"

	status, err := NewPushAdapter(client).Deliver(context.Background(), arn, testEnvelope)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, status)
	assert.Equal(t, arn, aws.ToString(got.TargetArn))
	assert.Nil(t, got.PhoneNumber)
}

func TestPushAdapter_DeliverError(t *testing.T) {
	client := &mockSNS{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("endpoint disabled")
		},
	}

	status, err := NewPushAdapter(client).Deliver(context.Background(), "arn:x", testEnvelope)
	require.Error(t, err)
	assert.Equal(t, models.NotificationFailed, status)
}
