package infra

import (
	"encoding/json"
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ssm"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/jrzesz33/encsys/internal/appcontext"
	"github.com/jrzesz33/encsys/internal/params"
)

// Publisher declares namespaced SSM parameters for cross-stack discovery
type Publisher struct {
	ctx          *pulumi.Context
	namespace    params.Namespace
	migrationTag string
}

// NewPublisher refuses an uninitialized application context
func NewPublisher(ctx *pulumi.Context, app *appcontext.AppContext, migrationTag string) (*Publisher, error) {
	if err := app.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create parameter publisher: %w", err)
	}
	return &Publisher{
		ctx:          ctx,
		namespace:    params.Namespace{App: app.AppName(), Env: app.Env()},
		migrationTag: migrationTag,
	}, nil
}

// Path returns the full parameter path of key
func (p *Publisher) Path(key string) string {
	return p.namespace.Path(key)
}

// Put declares /{app}/{env}/{key} with the given value
func (p *Publisher) Put(key string, value pulumi.StringInput, description string) (*ssm.Parameter, error) {
	path := p.Path(key)
	param, err := ssm.NewParameter(p.ctx, fmt.Sprintf("param-%s-%s-%s", p.namespace.App, p.namespace.Env, key), &ssm.ParameterArgs{
		Name:        pulumi.String(path),
		Type:        pulumi.String("String"),
		Tier:        pulumi.String("Standard"),
		Value:       value.ToStringOutput(),
		Description: pulumi.String(description),
		Tags:        CommonTags(p.namespace.App, p.namespace.Env, p.migrationTag, key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish parameter %s: %w", path, err)
	}
	return param, nil
}

// PutJSON publishes a map of outputs encoded as one JSON object
func (p *Publisher) PutJSON(key string, fields map[string]pulumi.StringInput, description string) (*ssm.Parameter, error) {
	names := make([]string, 0, len(fields))
	values := make([]interface{}, 0, len(fields))
	for name, v := range fields {
		names = append(names, name)
		values = append(values, v)
	}

	encoded := pulumi.All(values...).ApplyT(func(args []interface{}) (string, error) {
		doc := make(map[string]string, len(args))
		for i, arg := range args {
			doc[names[i]] = arg.(string)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}).(pulumi.StringOutput)

	return p.Put(key, encoded, description)
}

// PutBatchTarget publishes the queue and job definition of one strategy
func (p *Publisher) PutBatchTarget(key string, jobQueue, jobDefinition pulumi.StringInput) (*ssm.Parameter, error) {
	return p.PutJSON(key, map[string]pulumi.StringInput{
		"jobQueueName":      jobQueue,
		"jobDefinitionName": jobDefinition,
	}, fmt.Sprintf("Batch job queue and definition for %s", key))
}

// Get reads a parameter that already exists in the account
func (p *Publisher) Get(key string) (string, error) {
	result, err := ssm.LookupParameter(p.ctx, &ssm.LookupParameterArgs{
		Name: p.Path(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read parameter %s: %w", p.Path(key), err)
	}
	return result.Value, nil
}
