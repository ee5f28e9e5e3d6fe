package infra

import (
	"fmt"
	"log"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/secretsmanager"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/sns"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/sqs"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// SourceLogGroup is where AWS Batch writes container logs
const SourceLogGroup = "/aws/batch/job"

// Alerts is the output of the batch alert group
type Alerts struct {
	Topic         *sns.Topic
	ErrorLogGroup *cloudwatch.LogGroup
	DeadLetter    *sqs.Queue
	Notifier      *Function
}

// BuildBatchAlerts routes FAILED batch jobs to the notifier Lambda. queues
// is nil when the batch group is not part of the run.
func BuildBatchAlerts(ctx *pulumi.Context, d *Deployment, queues *BatchQueues) (*Alerts, error) {
	log.Printf("Creating batch failure alerts")

	errorGroup, err := cloudwatch.NewLogGroup(ctx, d.Name("batch-error-logs"), &cloudwatch.LogGroupArgs{
		Name:            pulumi.String(d.ErrorLogGroupName()),
		RetentionInDays: pulumi.Int(d.Profile.LogRetentionDays),
		Tags:            d.Tags(d.ErrorLogGroupName()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create error log group: %w", err)
	}

	topicName := d.Name("batch-alerts")
	topic, err := sns.NewTopic(ctx, topicName, &sns.TopicArgs{
		Name: pulumi.String(topicName),
		Tags: d.Tags(topicName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create alert topic: %w", err)
	}

	secret, err := secretsmanager.NewSecret(ctx, d.Name("slack-webhook"), &secretsmanager.SecretArgs{
		Name:        pulumi.String(d.SlackSecretName()),
		Description: pulumi.String("Slack incoming webhook for batch failure alerts"),
		Tags:        d.Tags(d.SlackSecretName()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Slack webhook secret: %w", err)
	}

	dlqName := d.Name("batchnotifier-dlq")
	dlq, err := sqs.NewQueue(ctx, dlqName, &sqs.QueueArgs{
		Name:                    pulumi.String(dlqName),
		MessageRetentionSeconds: pulumi.Int(1209600), // 14 days
		Tags:                    d.Tags(dlqName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier dead-letter queue: %w", err)
	}

	// EventBridge writes undeliverable events to the same queue
	_, err = sqs.NewQueuePolicy(ctx, dlqName+"-policy", &sqs.QueuePolicyArgs{
		QueueUrl: dlq.Url,
		Policy: dlq.Arn.ApplyT(func(arn string) string {
			return fmt.Sprintf(`{
				"Version": "2012-10-17",
				"Statement": [
					{
						"Effect": "Allow",
						"Principal": {"Service": "events.amazonaws.com"},
						"Action": "sqs:SendMessage",
						"Resource": "%s"
					}
				]
			}`, arn)
		}).(pulumi.StringOutput),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dead-letter queue policy: %w", err)
	}

	env := pulumi.StringMap{
		"ALERT_TOPIC_ARN":           topic.Arn,
		"SLACK_WEBHOOK_SECRET_NAME": pulumi.String(d.SlackSecretName()),
		"SOURCE_LOG_GROUP":          pulumi.String(SourceLogGroup),
		"ERROR_LOG_GROUP":           pulumi.String(d.ErrorLogGroupName()),
	}
	deps := []interface{}{topic.Arn, secret.Arn, dlq.Arn, errorGroup.Arn}
	if queues != nil {
		env["JOB_TABLE_NAME"] = queues.JobTable.Name
		deps = append(deps, queues.JobTable.Arn)
	}
	sourceGroupArn := fmt.Sprintf("arn:aws:logs:%s:%s:log-group:%s:*", d.Region, d.AccountID, SourceLogGroup)

	notifier, err := newFunction(ctx, d, FunctionSpec{
		Binary:        "batchnotifier",
		Description:   "Reports failed batch jobs to Slack and SNS",
		Timeout:       60,
		Environment:   env,
		PolicyDeps:    deps,
		DeadLetterArn: dlq.Arn,
		HasDeadLetter: true,
		Policy: func(args []interface{}) []Statement {
			statements := []Statement{
				Allow([]string{args[0].(string)}, "sns:Publish"),
				Allow([]string{args[1].(string)}, "secretsmanager:GetSecretValue"),
				Allow([]string{args[2].(string)}, "sqs:SendMessage"),
				Allow([]string{args[3].(string) + ":*"}, "logs:CreateLogStream", "logs:PutLogEvents"),
				Allow([]string{sourceGroupArn}, "logs:GetLogEvents"),
			}
			if len(args) > 4 {
				statements = append(statements, Allow([]string{args[4].(string)}, "dynamodb:UpdateItem", "dynamodb:GetItem"))
			}
			return statements
		},
	})
	if err != nil {
		return nil, err
	}

	ruleName := d.Name("batch-job-failed")
	pattern := pulumi.String(BatchFailurePattern(nil)).ToStringOutput()
	if queues != nil {
		pattern = queues.QueueArns().ToStringArrayOutput().ApplyT(func(arns []string) string {
			return BatchFailurePattern(arns)
		}).(pulumi.StringOutput)
	}
	rule, err := cloudwatch.NewEventRule(ctx, ruleName, &cloudwatch.EventRuleArgs{
		Name:         pulumi.String(ruleName),
		Description:  pulumi.String("Batch jobs entering FAILED"),
		EventPattern: pattern,
		Tags:         d.Tags(ruleName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rule %s: %w", ruleName, err)
	}

	_, err = cloudwatch.NewEventTarget(ctx, ruleName+"-target", &cloudwatch.EventTargetArgs{
		Rule: rule.Name,
		Arn:  notifier.Lambda.Arn,
		DeadLetterConfig: &cloudwatch.EventTargetDeadLetterConfigArgs{
			Arn: dlq.Arn,
		},
		RetryPolicy: &cloudwatch.EventTargetRetryPolicyArgs{
			MaximumRetryAttempts:     pulumi.Int(3),
			MaximumEventAgeInSeconds: pulumi.Int(3600),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create target for %s: %w", ruleName, err)
	}
	if err := allowEventBridge(ctx, ruleName+"-invoke", notifier.Lambda, rule.Arn); err != nil {
		return nil, err
	}

	if err := errorAlarm(ctx, d, notifier, pulumi.Array{topic.Arn}); err != nil {
		return nil, err
	}

	return &Alerts{
		Topic:         topic,
		ErrorLogGroup: errorGroup,
		DeadLetter:    dlq,
		Notifier:      notifier,
	}, nil
}
