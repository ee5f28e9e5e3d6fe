package infra

import (
	"fmt"
	"log"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/apigatewayv2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/secretsmanager"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/jrzesz33/encsys/internal/models"
)

const accessLogFormat = `{"requestId":"$context.requestId","ip":"$context.identity.sourceIp","requestTime":"$context.requestTime","httpMethod":"$context.httpMethod","routeKey":"$context.routeKey","status":"$context.status","responseLength":"$context.responseLength"}`

// RestTrigger is the output of the REST trigger group
type RestTrigger struct {
	Api      *apigatewayv2.Api
	Function *Function
	URL      pulumi.StringOutput
}

// BuildRestTrigger exposes POST /jobs backed by the trigger Lambda. queues
// is nil when the batch group is not part of the run.
func BuildRestTrigger(ctx *pulumi.Context, d *Deployment, queues *BatchQueues) (*RestTrigger, error) {
	log.Printf("Creating REST trigger")

	defaultPrefix := ""
	if len(d.Workloads.Workloads) > 0 {
		defaultPrefix = d.Workloads.Workloads[0].Prefix
	}

	secret, err := secretsmanager.NewSecret(ctx, d.Name("trigger-auth"), &secretsmanager.SecretArgs{
		Name:        pulumi.String(d.AuthSecretName()),
		Description: pulumi.String("HS256 signing key for the batch trigger API"),
		Tags:        d.Tags(d.AuthSecretName()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger auth secret: %w", err)
	}

	env := pulumi.StringMap{
		"BATCH_PREFIX":     pulumi.String(defaultPrefix),
		"COMPUTE_STRATEGY": pulumi.String(string(models.StrategyEC2)),
	}
	// The secret starts empty. Verification stays off until the stack opts
	// in, after the signing key has been stored.
	if d.TriggerAuth {
		env["AUTH_SECRET_NAME"] = pulumi.String(d.AuthSecretName())
	} else {
		log.Printf("Trigger auth disabled, set encsys:triggerAuth once %s holds a signing key", d.AuthSecretName())
	}
	deps := []interface{}{secret.Arn}
	if queues != nil {
		env["JOB_TABLE_NAME"] = queues.JobTable.Name
		deps = append(deps, queues.JobTable.Arn)
	}

	fn, err := newFunction(ctx, d, FunctionSpec{
		Binary:      "batchtrigger",
		Description: "Submits batch jobs from HTTP requests",
		Environment: env,
		PolicyDeps:  deps,
		Policy: func(args []interface{}) []Statement {
			statements := []Statement{
				Allow([]string{args[0].(string)}, "secretsmanager:GetSecretValue"),
				Allow([]string{d.parameterArn("*")}, "ssm:GetParameter", "ssm:GetParametersByPath"),
				Allow([]string{"*"}, "batch:SubmitJob"),
			}
			if len(args) > 1 {
				statements = append(statements, Allow([]string{args[1].(string)}, "dynamodb:PutItem"))
			}
			return statements
		},
	})
	if err != nil {
		return nil, err
	}

	apiName := d.Name("trigger-api")
	api, err := apigatewayv2.NewApi(ctx, apiName, &apigatewayv2.ApiArgs{
		Name:         pulumi.String(apiName),
		ProtocolType: pulumi.String("HTTP"),
		Description:  pulumi.String("Batch job trigger"),
		Tags:         d.Tags(apiName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger API: %w", err)
	}

	accessLogs, err := cloudwatch.NewLogGroup(ctx, apiName+"-access-logs", &cloudwatch.LogGroupArgs{
		Name:            pulumi.String(fmt.Sprintf("/aws/apigateway/%s", apiName)),
		RetentionInDays: pulumi.Int(d.Profile.LogRetentionDays),
		Tags:            d.Tags(apiName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create access log group: %w", err)
	}

	_, err = lambda.NewPermission(ctx, apiName+"-invoke", &lambda.PermissionArgs{
		Action:    pulumi.String("lambda:InvokeFunction"),
		Function:  fn.Lambda.Name,
		Principal: pulumi.String("apigateway.amazonaws.com"),
		SourceArn: api.ExecutionArn.ApplyT(func(arn string) string {
			return fmt.Sprintf("%s/*/*", arn)
		}).(pulumi.StringOutput),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to grant API invoke: %w", err)
	}

	integration, err := apigatewayv2.NewIntegration(ctx, apiName+"-integration", &apigatewayv2.IntegrationArgs{
		ApiId:                api.ID(),
		IntegrationType:      pulumi.String("AWS_PROXY"),
		IntegrationUri:       fn.Lambda.Arn,
		IntegrationMethod:    pulumi.String("POST"),
		PayloadFormatVersion: pulumi.String("2.0"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger integration: %w", err)
	}

	for _, route := range []struct{ key, slug string }{
		{"POST /jobs", "post-jobs"},
		{"OPTIONS /jobs", "options-jobs"},
	} {
		_, err = apigatewayv2.NewRoute(ctx, fmt.Sprintf("%s-%s", apiName, route.slug), &apigatewayv2.RouteArgs{
			ApiId:    api.ID(),
			RouteKey: pulumi.String(route.key),
			Target: integration.ID().ApplyT(func(id string) string {
				return fmt.Sprintf("integrations/%s", id)
			}).(pulumi.StringOutput),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create route %s: %w", route.key, err)
		}
	}

	_, err = apigatewayv2.NewStage(ctx, apiName+"-stage", &apigatewayv2.StageArgs{
		ApiId:      api.ID(),
		Name:       pulumi.String("$default"),
		AutoDeploy: pulumi.Bool(true),
		AccessLogSettings: &apigatewayv2.StageAccessLogSettingsArgs{
			DestinationArn: accessLogs.Arn,
			Format:         pulumi.String(accessLogFormat),
		},
		Tags: d.Tags(apiName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger stage: %w", err)
	}

	url := pulumi.Sprintf("%s/jobs", api.ApiEndpoint)
	if _, err := d.Params.Put("TriggerApiUrl", url, "Batch trigger endpoint"); err != nil {
		return nil, err
	}

	if err := errorAlarm(ctx, d, fn, nil); err != nil {
		return nil, err
	}

	return &RestTrigger{Api: api, Function: fn, URL: url}, nil
}
