package messaging

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/coach-nudge/internal/domain"
	"github.com/ignite/coach-nudge/internal/pkg/logger"
)

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESOptions configures the email sender.
type SESOptions struct {
	Region    string
	AccessKey string
	SecretKey string
	FromEmail string
	FromName  string
	Subject   string
}

// SESSender sends email nudges via AWS SES v2.
type SESSender struct {
	client  sesAPI
	from    string
	subject string
}

// NewSESSender loads the AWS config, using static credentials when given and
// the default chain otherwise.
func NewSESSender(ctx context.Context, o SESOptions) (*SESSender, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(o.Region)}
	if o.AccessKey != "" && o.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSESSender(sesv2.NewFromConfig(cfg), o), nil
}

func newSESSender(client sesAPI, o SESOptions) *SESSender {
	from := o.FromEmail
	if o.FromName != "" {
		from = fmt.Sprintf("%s <%s>", o.FromName, o.FromEmail)
	}
	return &SESSender{client: client, from: from, subject: o.Subject}
}

// Send emails the campaign content as plain text.
func (s *SESSender) Send(ctx context.Context, client *domain.Client, c *domain.ScheduledCampaign) (string, error) {
	if client.Email == "" {
		return "", fmt.Errorf("%w: email", ErrMissingAddress)
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{client.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(s.subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(c.Content), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(c.ID)},
			{Name: aws.String("category"), Value: aws.String(string(c.Category))},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}

	messageID := aws.ToString(out.MessageId)
	logger.Debug("[SES] email sent", "email", client.Email, "message_id", messageID)
	return messageID, nil
}
