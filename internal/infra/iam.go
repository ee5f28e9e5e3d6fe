package infra

import (
	"encoding/json"
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// Managed policies attached to the roles of a deployment
const (
	PolicyLambdaBasicExecution = "arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"
	PolicyBatchService         = "arn:aws:iam::aws:policy/service-role/AWSBatchServiceRole"
	PolicyECSInstance          = "arn:aws:iam::aws:policy/service-role/AmazonEC2ContainerServiceforEC2Role"
	PolicyECSTaskExecution     = "arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"
	PolicySSMManagedInstance   = "arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore"
	PolicyS3FullAccess         = "arn:aws:iam::aws:policy/AmazonS3FullAccess"
	PolicyAPIGatewayInvoke     = "arn:aws:iam::aws:policy/AmazonAPIGatewayInvokeFullAccess"
)

// Statement is one IAM policy statement
type Statement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

// Allow builds an Allow statement
func Allow(resources []string, actions ...string) Statement {
	return Statement{Effect: "Allow", Action: actions, Resource: resources}
}

// PolicyDocument renders statements as a policy JSON document
func PolicyDocument(statements ...Statement) string {
	doc := struct {
		Version   string      `json:"Version"`
		Statement []Statement `json:"Statement"`
	}{Version: "2012-10-17", Statement: statements}
	data, _ := json.Marshal(doc)
	return string(data)
}

// AssumeRolePolicy trusts the given service principals
func AssumeRolePolicy(services ...string) string {
	type principal struct {
		Service []string `json:"Service"`
	}
	type statement struct {
		Effect    string    `json:"Effect"`
		Principal principal `json:"Principal"`
		Action    string    `json:"Action"`
	}
	doc := struct {
		Version   string      `json:"Version"`
		Statement []statement `json:"Statement"`
	}{
		Version: "2012-10-17",
		Statement: []statement{{
			Effect:    "Allow",
			Principal: principal{Service: services},
			Action:    "sts:AssumeRole",
		}},
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

// newRole declares a role trusted by services with managed policies attached
func newRole(ctx *pulumi.Context, d *Deployment, name string, services []string, managed ...string) (*iam.Role, error) {
	role, err := iam.NewRole(ctx, name, &iam.RoleArgs{
		Name:             pulumi.String(name),
		AssumeRolePolicy: pulumi.String(AssumeRolePolicy(services...)),
		Tags:             d.Tags(name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create role %s: %w", name, err)
	}

	for i, arn := range managed {
		_, err = iam.NewRolePolicyAttachment(ctx, fmt.Sprintf("%s-attach-%d", name, i), &iam.RolePolicyAttachmentArgs{
			Role:      role.Name,
			PolicyArn: pulumi.String(arn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to attach %s to %s: %w", arn, name, err)
		}
	}
	return role, nil
}

// attachInlinePolicy renders statements once every output in deps resolves
func attachInlinePolicy(ctx *pulumi.Context, name string, role *iam.Role, deps []interface{}, build func(args []interface{}) []Statement) error {
	var policy pulumi.StringOutput
	if len(deps) == 0 {
		policy = pulumi.String(PolicyDocument(build(nil)...)).ToStringOutput()
	} else {
		policy = pulumi.All(deps...).ApplyT(func(args []interface{}) string {
			return PolicyDocument(build(args)...)
		}).(pulumi.StringOutput)
	}

	_, err := iam.NewRolePolicy(ctx, name, &iam.RolePolicyArgs{
		Role:   role.Name,
		Policy: policy,
	})
	if err != nil {
		return fmt.Errorf("failed to create policy %s: %w", name, err)
	}
	return nil
}
