// internal/common/aws/ses.go
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the slice of the SES client the mailer needs.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// LoadConfig resolves AWS credentials from the default chain for region.
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// NewSESClient builds an SES client for region.
func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return ses.NewFromConfig(cfg), nil
}

// Email is a single outbound message. Html is optional.
type Email struct {
	To      []string
	Subject string
	Text    string
	Html    string
}

// Mailer sends plain/HTML email through SES from a fixed sender.
type Mailer struct {
	api  SESAPI
	from string
}

func NewMailer(api SESAPI, from string) *Mailer {
	return &Mailer{api: api, from: from}
}

// Send delivers msg and returns the SES message ID.
func (m *Mailer) Send(ctx context.Context, msg Email) (string, error) {
	if len(msg.To) == 0 {
		return "", errors.New("ses: no recipients")
	}
	if m.from == "" {
		return "", errors.New("ses: sender address not configured")
	}

	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
	}
	if msg.Html != "" {
		body.Html = &types.Content{Data: aws.String(msg.Html), Charset: aws.String("UTF-8")}
	}

	out, err := m.api.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: msg.To},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
		Source: aws.String(m.from),
	})
	if err != nil {
		return "", fmt.Errorf("ses send email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
