package infra

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// FunctionSpec describes one Go Lambda built to {artifactDir}/{Binary}.zip
type FunctionSpec struct {
	Binary      string
	Description string
	MemorySize  int
	Timeout     int
	Environment pulumi.StringMap

	// PolicyDeps resolve before Policy renders the inline statements
	PolicyDeps []interface{}
	Policy     func(args []interface{}) []Statement

	DeadLetterArn pulumi.StringOutput
	HasDeadLetter bool
}

// Function groups a Lambda with its role and log group
type Function struct {
	Binary   string
	Lambda   *lambda.Function
	Role     *iam.Role
	LogGroup *cloudwatch.LogGroup
}

func newFunction(ctx *pulumi.Context, d *Deployment, spec FunctionSpec) (*Function, error) {
	name := d.Name(spec.Binary)

	role, err := newRole(ctx, d, name+"-role", []string{"lambda.amazonaws.com"}, PolicyLambdaBasicExecution)
	if err != nil {
		return nil, err
	}
	if spec.Policy != nil {
		if err := attachInlinePolicy(ctx, name+"-policy", role, spec.PolicyDeps, spec.Policy); err != nil {
			return nil, err
		}
	}

	logGroup, err := cloudwatch.NewLogGroup(ctx, name+"-logs", &cloudwatch.LogGroupArgs{
		Name:            pulumi.String(fmt.Sprintf("/aws/lambda/%s", name)),
		RetentionInDays: pulumi.Int(d.Profile.LogRetentionDays),
		Tags:            d.Tags(name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create log group for %s: %w", name, err)
	}

	variables := pulumi.StringMap{
		"APP_NAME":  pulumi.String(d.AppName()),
		"ENV":       pulumi.String(d.Env()),
		"LOG_LEVEL": pulumi.String("INFO"),
	}
	for k, v := range spec.Environment {
		variables[k] = v
	}

	memory := spec.MemorySize
	if memory == 0 {
		memory = 256
	}
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = 30
	}

	args := &lambda.FunctionArgs{
		Name:        pulumi.String(name),
		Description: pulumi.String(spec.Description),
		Runtime:     pulumi.String("provided.al2"),
		Role:        role.Arn,
		Handler:     pulumi.String("bootstrap"),
		Code:        pulumi.NewFileArchive(d.Artifact(spec.Binary)),
		Environment: &lambda.FunctionEnvironmentArgs{
			Variables: variables,
		},
		MemorySize: pulumi.Int(memory),
		Timeout:    pulumi.Int(timeout),
		Tags:       d.Tags(name),
	}
	if spec.HasDeadLetter {
		args.DeadLetterConfig = &lambda.FunctionDeadLetterConfigArgs{
			TargetArn: spec.DeadLetterArn,
		}
	}

	fn, err := lambda.NewFunction(ctx, name, args, pulumi.DependsOn([]pulumi.Resource{logGroup}))
	if err != nil {
		return nil, fmt.Errorf("failed to create Lambda %s: %w", name, err)
	}

	return &Function{Binary: spec.Binary, Lambda: fn, Role: role, LogGroup: logGroup}, nil
}

// allowEventBridge lets an EventBridge rule invoke fn
func allowEventBridge(ctx *pulumi.Context, name string, fn *lambda.Function, ruleArn pulumi.StringInput) error {
	_, err := lambda.NewPermission(ctx, name, &lambda.PermissionArgs{
		Action:    pulumi.String("lambda:InvokeFunction"),
		Function:  fn.Name,
		Principal: pulumi.String("events.amazonaws.com"),
		SourceArn: ruleArn.ToStringOutput(),
	})
	if err != nil {
		return fmt.Errorf("failed to grant EventBridge invoke on %s: %w", name, err)
	}
	return nil
}

// errorAlarm alarms on Lambda errors, notifying actions when given
func errorAlarm(ctx *pulumi.Context, d *Deployment, fn *Function, actions pulumi.Array) error {
	alarmName := d.Name(fn.Binary + "-errors")
	args := &cloudwatch.MetricAlarmArgs{
		Name:               pulumi.String(alarmName),
		ComparisonOperator: pulumi.String("GreaterThanThreshold"),
		EvaluationPeriods:  pulumi.Int(2),
		MetricName:         pulumi.String("Errors"),
		Namespace:          pulumi.String("AWS/Lambda"),
		Period:             pulumi.Int(300),
		Statistic:          pulumi.String("Sum"),
		Threshold:          pulumi.Float64(5),
		AlarmDescription:   pulumi.String(fmt.Sprintf("Errors in %s", alarmName)),
		Dimensions: pulumi.StringMap{
			"FunctionName": fn.Lambda.Name,
		},
		Tags: d.Tags(alarmName),
	}
	if len(actions) > 0 {
		args.AlarmActions = actions
	}
	if _, err := cloudwatch.NewMetricAlarm(ctx, alarmName, args); err != nil {
		return fmt.Errorf("failed to create alarm %s: %w", alarmName, err)
	}
	return nil
}
