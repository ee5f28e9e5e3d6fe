package infra

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/scheduler"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// EBSVolumePattern matches EBS createVolume notifications
func EBSVolumePattern() string {
	return eventPattern("aws.ec2", "EBS Volume Notification", map[string][]string{
		"event": {"createVolume"},
	})
}

// BatchFailurePattern matches FAILED batch jobs, limited to queueArns when given
func BatchFailurePattern(queueArns []string) string {
	detail := map[string][]string{"status": {"FAILED"}}
	if len(queueArns) > 0 {
		detail["jobQueue"] = queueArns
	}
	return eventPattern("aws.batch", "Batch Job State Change", detail)
}

func eventPattern(source, detailType string, detail map[string][]string) string {
	data, _ := json.Marshal(map[string]interface{}{
		"source":      []string{source},
		"detail-type": []string{detailType},
		"detail":      detail,
	})
	return string(data)
}

// CronExpression renders an EventBridge Scheduler cron for minute and hour fields
func CronExpression(minute, hour string) string {
	minute = strings.TrimSpace(minute)
	if minute == "" {
		minute = "0"
	}
	hour = strings.TrimSpace(hour)
	if hour == "" {
		hour = "*"
	}
	return fmt.Sprintf("cron(%s %s * * ? *)", minute, hour)
}

// BuildTagAutomation wires the EBS tagger to volume creation events
func BuildTagAutomation(ctx *pulumi.Context, d *Deployment) (*Function, error) {
	log.Printf("Creating EBS tag automation")
	fn, err := newFunction(ctx, d, FunctionSpec{
		Binary:      "ebstagger",
		Description: "Tags new EBS volumes with deployment tags",
		Environment: pulumi.StringMap{
			"MIGRATION_TAG": pulumi.String(d.MigrationTag),
		},
		Policy: func([]interface{}) []Statement {
			return []Statement{Allow([]string{"*"}, "ec2:CreateTags")}
		},
	})
	if err != nil {
		return nil, err
	}

	ruleName := d.Name("ebs-create-volume")
	rule, err := cloudwatch.NewEventRule(ctx, ruleName, &cloudwatch.EventRuleArgs{
		Name:         pulumi.String(ruleName),
		Description:  pulumi.String("EBS createVolume notifications"),
		EventPattern: pulumi.String(EBSVolumePattern()),
		Tags:         d.Tags(ruleName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rule %s: %w", ruleName, err)
	}

	if err := ruleTarget(ctx, ruleName, rule, fn); err != nil {
		return nil, err
	}
	return fn, nil
}

// BuildScheduledWorks runs the batch poller on the configured schedule
func BuildScheduledWorks(ctx *pulumi.Context, d *Deployment) (*Function, error) {
	expression := CronExpression(d.ScheduleMinute, d.ScheduleHour)
	log.Printf("Creating scheduled poller (%s)", expression)

	fn, err := newFunction(ctx, d, FunctionSpec{
		Binary:      "batchpoller",
		Description: "Summarizes batch queue depth",
		Timeout:     60,
		Policy: func([]interface{}) []Statement {
			return []Statement{
				Allow([]string{d.parameterArn("*")}, "ssm:GetParametersByPath", "ssm:GetParameter"),
				Allow([]string{"*"}, "batch:ListJobs"),
			}
		},
	})
	if err != nil {
		return nil, err
	}

	role, err := newRole(ctx, d, d.Name("poller-schedule"), []string{"scheduler.amazonaws.com"})
	if err != nil {
		return nil, err
	}
	err = attachInlinePolicy(ctx, d.Name("poller-schedule-policy"), role, []interface{}{fn.Lambda.Arn}, func(args []interface{}) []Statement {
		return []Statement{Allow([]string{args[0].(string)}, "lambda:InvokeFunction")}
	})
	if err != nil {
		return nil, err
	}

	scheduleName := d.Name("batch-poller")
	_, err = scheduler.NewSchedule(ctx, scheduleName, &scheduler.ScheduleArgs{
		Name:               pulumi.String(scheduleName),
		ScheduleExpression: pulumi.String(expression),
		FlexibleTimeWindow: &scheduler.ScheduleFlexibleTimeWindowArgs{
			Mode: pulumi.String("OFF"),
		},
		Target: &scheduler.ScheduleTargetArgs{
			Arn:     fn.Lambda.Arn,
			RoleArn: role.Arn,
			RetryPolicy: &scheduler.ScheduleTargetRetryPolicyArgs{
				MaximumRetryAttempts:     pulumi.Int(0),
				MaximumEventAgeInSeconds: pulumi.Int(60),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule %s: %w", scheduleName, err)
	}
	return fn, nil
}

func ruleTarget(ctx *pulumi.Context, ruleName string, rule *cloudwatch.EventRule, fn *Function) error {
	_, err := cloudwatch.NewEventTarget(ctx, ruleName+"-target", &cloudwatch.EventTargetArgs{
		Rule: rule.Name,
		Arn:  fn.Lambda.Arn,
		RetryPolicy: &cloudwatch.EventTargetRetryPolicyArgs{
			MaximumRetryAttempts:     pulumi.Int(3),
			MaximumEventAgeInSeconds: pulumi.Int(3600),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create target for %s: %w", ruleName, err)
	}
	return allowEventBridge(ctx, ruleName+"-invoke", fn.Lambda, rule.Arn)
}

// parameterArn scopes SSM access to the deployment namespace
func (d *Deployment) parameterArn(suffix string) string {
	return fmt.Sprintf("arn:aws:ssm:%s:%s:parameter/%s/%s/%s", d.Region, d.AccountID, d.AppName(), d.Env(), suffix)
}
