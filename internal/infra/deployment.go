// Package infra declares the AWS resource groups of a deployment. Each
// builder takes the Deployment plus references to the groups it depends on
// and returns the references later groups consume.
package infra

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/jrzesz33/encsys/internal/stackconfig"
	"github.com/jrzesz33/encsys/internal/tagging"
)

// Deployment carries the resolved configuration of one run
type Deployment struct {
	*stackconfig.Config

	AccountID string
	Params    *Publisher
}

// NewDeployment validates the configuration and resolves the account
func NewDeployment(ctx *pulumi.Context, cfg *stackconfig.Config) (*Deployment, error) {
	if cfg == nil {
		return nil, fmt.Errorf("stack configuration is required")
	}

	publisher, err := NewPublisher(ctx, cfg.App, cfg.MigrationTag)
	if err != nil {
		return nil, err
	}

	identity, err := aws.GetCallerIdentity(ctx, &aws.GetCallerIdentityArgs{})
	if err != nil {
		return nil, fmt.Errorf("failed to get caller identity: %w", err)
	}

	return &Deployment{
		Config:    cfg,
		AccountID: identity.AccountId,
		Params:    publisher,
	}, nil
}

// AppName is the application name from the context
func (d *Deployment) AppName() string {
	return d.App.AppName()
}

// Env is the deploy environment label
func (d *Deployment) Env() string {
	return d.App.Env()
}

// Name returns "{app}-{component}-{env}"
func (d *Deployment) Name(component string) string {
	return fmt.Sprintf("%s-%s-%s", d.AppName(), component, d.Env())
}

// JobTableName is the DynamoDB ledger shared by the trigger and notifier
func (d *Deployment) JobTableName() string {
	return fmt.Sprintf("%s-%s-batch-jobs", d.AppName(), d.Env())
}

// AuthSecretName holds the trigger signing key
func (d *Deployment) AuthSecretName() string {
	return fmt.Sprintf("%s/%s/trigger-auth", d.AppName(), d.Env())
}

// SlackSecretName holds the Slack webhook URL
func (d *Deployment) SlackSecretName() string {
	return fmt.Sprintf("%s/%s/slack-webhook", d.AppName(), d.Env())
}

// ErrorLogGroupName receives copies of failed job logs
func (d *Deployment) ErrorLogGroupName() string {
	return fmt.Sprintf("/aws/batch/job-%s-error", d.Env())
}

// Tags returns the common tags plus Name
func (d *Deployment) Tags(name string) pulumi.StringMap {
	return CommonTags(d.AppName(), d.Env(), d.MigrationTag, name)
}

// CommonTags builds the tags applied to every resource
func CommonTags(app, env, migrationTag, name string) pulumi.StringMap {
	tags := pulumi.StringMap{
		tagging.TagProject:           pulumi.String(app),
		tagging.TagDeployEnvironment: pulumi.String(env),
	}
	if name != "" {
		tags["Name"] = pulumi.String(name)
	}
	if migrationTag != "" {
		tags[tagging.TagMigration] = pulumi.String(migrationTag)
	}
	return tags
}
