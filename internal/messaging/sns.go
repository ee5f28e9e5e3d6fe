package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of the SNS client used by the publisher
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Alert is a notification published to the alerts topic
type Alert struct {
	Subject           string
	Body              string
	DeployEnvironment string
	JobName           string
}

// AlertPublisher defines the interface for publishing alerts
type AlertPublisher interface {
	Send(ctx context.Context, alert Alert) error
}

// SNSClient implements AlertPublisher using AWS SNS
type SNSClient struct {
	client   SNSAPI
	topicArn string
	logger   *slog.Logger
}

// NewSNSClient creates a new SNS client instance
func NewSNSClient(client SNSAPI, topicArn string, logger *slog.Logger) *SNSClient {
	if logger == nil {
		logger = slog.Default()
	}

	return &SNSClient{
		client:   client,
		topicArn: topicArn,
		logger:   logger,
	}
}

// maxSubjectLength is the SNS limit for email subjects
const maxSubjectLength = 100

// Send publishes the alert to the SNS topic
func (s *SNSClient) Send(ctx context.Context, alert Alert) error {
	if s.topicArn == "" {
		return fmt.Errorf("alert topic ARN is not configured")
	}

	subject := alert.Subject
	if len(subject) > maxSubjectLength {
		subject = subject[:maxSubjectLength]
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(s.topicArn),
		Message:  aws.String(alert.Body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"deploy_environment": {
				DataType:    aws.String("String"),
				StringValue: aws.String(alert.DeployEnvironment),
			},
		},
	}
	if subject != "" {
		input.Subject = aws.String(subject)
	}
	if alert.JobName != "" {
		input.MessageAttributes["job_name"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(alert.JobName),
		}
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to publish alert to SNS: %w", err)
	}

	s.logger.InfoContext(ctx, "alert published to SNS",
		slog.String("job_name", alert.JobName),
		slog.String("sns_message_id", aws.ToString(result.MessageId)),
		slog.String("topic_arn", s.topicArn),
	)

	return nil
}
