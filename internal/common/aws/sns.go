// internal/common/aws/sns.go
package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func NewSNSClient(ctx context.Context, region string) (*sns.Client, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return sns.NewFromConfig(cfg), nil
}

// Publisher posts short text messages to one SNS topic.
type Publisher struct {
	api      SNSAPI
	topicARN string
}

func NewPublisher(api SNSAPI, topicARN string) *Publisher {
	return &Publisher{api: api, topicARN: topicARN}
}

// Publish sends message with an optional subject and returns the SNS message ID.
func (p *Publisher) Publish(ctx context.Context, subject, message string) (string, error) {
	if p.topicARN == "" {
		return "", errors.New("sns: topic arn not configured")
	}

	in := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(message),
	}
	// SNS rejects subjects over 100 characters
	if subject != "" {
		if len(subject) > 100 {
			subject = subject[:100]
		}
		in.Subject = aws.String(subject)
	}

	out, err := p.api.Publish(ctx, in)
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}
