package notification

import (
	"context"
	"fmt"

	"rapidresponse/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// ChannelAdapter hands a rendered message to one delivery channel and reports the
// status the notification reached.
type ChannelAdapter interface {
	Deliver(ctx context.Context, recipient string, msg *Envelope) (models.NotificationStatus, error)
}

// SESService is the subset of the SES client used for email.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSService is the subset of the SNS client used for SMS and mobile push.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type EmailAdapter struct {
	client    SESService
	fromEmail string
}

func NewEmailAdapter(client SESService, fromEmail string) *EmailAdapter {
	return &EmailAdapter{client: client, fromEmail: fromEmail}
}

func (a *EmailAdapter) Deliver(ctx context.Context, recipient string, msg *Envelope) (models.NotificationStatus, error) {
	_, err := a.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(msg.Subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(msg.Text)},
			},
		},
		Source: aws.String(a.fromEmail),
	})
	if err != nil {
		return models.NotificationFailed, fmt.Errorf("ses send email: %w", err)
	}
	return models.NotificationSent, nil
}

type SMSAdapter struct {
	client   SNSService
	senderID string
}

func NewSMSAdapter(client SNSService, senderID string) *SMSAdapter {
	return &SMSAdapter{client: client, senderID: senderID}
}

func (a *SMSAdapter) Deliver(ctx context.Context, recipient string, msg *Envelope) (models.NotificationStatus, error) {
	in := &sns.PublishInput{
		PhoneNumber: aws.String(recipient),
		Message:     aws.String(msg.Subject + ": " + msg.Text),
	}
	if a.senderID != "" {
		in.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(a.senderID)},
			"AWS.SNS.SMS.SMSType":  {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		}
	}
	if _, err := a.client.Publish(ctx, in); err != nil {
		return models.NotificationFailed, fmt.Errorf("sns publish sms: %w", err)
	}
	return models.NotificationSent, nil
}

// PushAdapter publishes to an SNS platform endpoint ARN.
type PushAdapter struct {
	client SNSService
}

func NewPushAdapter(client SNSService) *PushAdapter {
	return &PushAdapter{client: client}
}

func (a *PushAdapter) Deliver(ctx context.Context, recipient string, msg *Envelope) (models.NotificationStatus, error) {
	_, err := a.client.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(recipient),
		Subject:   aws.String(msg.Subject),
		Message:   aws.String(msg.Text),
	})
	if err != nil {
		return models.NotificationFailed, fmt.Errorf("sns publish push: %w", err)
	}
	return models.NotificationSent, nil
}
