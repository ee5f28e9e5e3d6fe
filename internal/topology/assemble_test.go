package topology

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pulumi/pulumi/sdk/v3/go/common/resource"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrzesz33/encsys/internal/params"
	"github.com/jrzesz33/encsys/internal/stackconfig"
)

type mapSource map[string]string

func (m mapSource) Get(key string) string { return m[key] }

func (m mapSource) GetBool(key string) bool { return m[key] == "true" }

type recordedResource struct {
	Type   string
	Name   string
	Inputs resource.PropertyMap
}

// recordingMocks answers provider calls with fixed data and records every
// registered resource
type recordingMocks struct {
	mu        sync.Mutex
	resources []recordedResource
}

func (m *recordingMocks) NewResource(args pulumi.MockResourceArgs) (string, resource.PropertyMap, error) {
	m.mu.Lock()
	m.resources = append(m.resources, recordedResource{Type: args.TypeToken, Name: args.Name, Inputs: args.Inputs})
	m.mu.Unlock()

	outputs := args.Inputs.Copy()
	outputs["arn"] = resource.NewStringProperty(fmt.Sprintf("arn:aws:mock:us-east-1:123456789012:%s", args.Name))
	return args.Name + "_id", outputs, nil
}

func (m *recordingMocks) Call(args pulumi.MockCallArgs) (resource.PropertyMap, error) {
	switch args.Token {
	case "aws:index/getCallerIdentity:getCallerIdentity":
		return resource.NewPropertyMapFromMap(map[string]interface{}{
			"accountId": "123456789012",
			"arn":       "arn:aws:iam::123456789012:user/deployer",
			"userId":    "AIDEXAMPLE",
		}), nil
	case "aws:index/getAvailabilityZones:getAvailabilityZones":
		return resource.NewPropertyMapFromMap(map[string]interface{}{
			"names":   []interface{}{"us-east-1a", "us-east-1b", "us-east-1c"},
			"zoneIds": []interface{}{"use1-az1", "use1-az2", "use1-az4"},
		}), nil
	case "aws:ec2/getAmi:getAmi":
		return resource.NewPropertyMapFromMap(map[string]interface{}{
			"id":           "ami-0123456789abcdef0",
			"architecture": "x86_64",
		}), nil
	case "aws:ssm/getParameter:getParameter":
		return resource.NewPropertyMapFromMap(map[string]interface{}{
			"name":  args.Args["name"].StringValue(),
			"value": "{}",
		}), nil
	}
	return args.Args, nil
}

func (m *recordingMocks) ofType(typeToken string) []recordedResource {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []recordedResource
	for _, r := range m.resources {
		if r.Type == typeToken {
			out = append(out, r)
		}
	}
	return out
}

func (m *recordingMocks) parameter(path string) (recordedResource, bool) {
	for _, r := range m.ofType("aws:ssm/parameter:Parameter") {
		if name, ok := r.Inputs["name"]; ok && name.IsString() && name.StringValue() == path {
			return r, true
		}
	}
	return recordedResource{}, false
}

func assemble(t *testing.T, src mapSource, groups []Group) (*recordingMocks, *Outputs) {
	t.Helper()
	cfg, err := stackconfig.Parse(src, "us-east-1")
	require.NoError(t, err)

	mocks := &recordingMocks{}
	var out *Outputs
	err = pulumi.RunErr(func(ctx *pulumi.Context) error {
		var err error
		out, err = Assemble(ctx, cfg, groups)
		return err
	}, pulumi.WithMocks("encsys", cfg.App.Env(), mocks))
	require.NoError(t, err)
	return mocks, out
}

func TestAssemble_NetworkOnly(t *testing.T) {
	groups, err := Plan(ProfileNetwork, nil)
	require.NoError(t, err)

	mocks, out := assemble(t, mapSource{}, groups)

	require.NotNil(t, out.Network)
	assert.Nil(t, out.Substrate)
	assert.Nil(t, out.Batch)
	assert.Len(t, mocks.ofType("aws:ec2/vpc:Vpc"), 1)
	assert.Len(t, mocks.ofType("aws:ec2/natGateway:NatGateway"), 1)
	assert.Empty(t, mocks.ofType("aws:batch/jobQueue:JobQueue"))
	assert.Equal(t, []string{"us-east-1a", "us-east-1b"}, out.Network.AvailabilityZones)
}

func TestAssemble_ProductionNetwork(t *testing.T) {
	groups, err := Plan(ProfileNetwork, nil)
	require.NoError(t, err)

	mocks, _ := assemble(t, mapSource{"environment": "prod"}, groups)

	assert.Len(t, mocks.ofType("aws:ec2/natGateway:NatGateway"), 2)
	vpcs := mocks.ofType("aws:ec2/vpc:Vpc")
	require.Len(t, vpcs, 1)
	assert.Equal(t, "10.0.0.0/16", vpcs[0].Inputs["cidrBlock"].StringValue())
}

func TestAssemble_BatchPublishesTargets(t *testing.T) {
	groups, err := Plan(ProfileCustom, []Group{Batch})
	require.NoError(t, err)
	require.Equal(t, []Group{Network, Substrate, Batch}, groups)

	mocks, out := assemble(t, mapSource{"applicationName": "skt"}, groups)

	require.NotNil(t, out.Batch)
	assert.Len(t, mocks.ofType("aws:batch/jobQueue:JobQueue"), len(out.Batch.Targets))
	assert.Len(t, out.Batch.Targets, 2*len(mocks.ofType("aws:ecr/repository:Repository")))
	assert.Len(t, mocks.ofType("aws:dynamodb/table:Table"), 1)

	param, ok := mocks.parameter("/skt/dev/BatchCopyS3-EC2")
	require.True(t, ok, "batch target parameter not published")
	value := param.Inputs["value"]
	require.True(t, value.IsString(), "batch target value unresolved: %v", value)
	target, err := params.DecodeBatchTarget(value.StringValue())
	require.NoError(t, err)
	assert.Equal(t, "JQ-dev-CopyS3", target.JobQueueName)
	assert.Equal(t, "JD-dev-CopyS3", target.JobDefinitionName)

	_, ok = mocks.parameter("/skt/dev/BatchCopyS3-FGS")
	assert.True(t, ok, "fargate target parameter not published")
}

func TestAssemble_AlertsWithoutBatch(t *testing.T) {
	groups, err := Plan(ProfileCustom, []Group{BatchAlerts, RestTrigger})
	require.NoError(t, err)

	mocks, out := assemble(t, mapSource{}, groups)

	assert.Nil(t, out.Batch)
	require.NotNil(t, out.Alerts)
	require.NotNil(t, out.RestTrigger)
	assert.Len(t, mocks.ofType("aws:sns/topic:Topic"), 1)
	assert.Len(t, mocks.ofType("aws:sqs/queue:Queue"), 1)
	assert.Len(t, mocks.ofType("aws:apigatewayv2/api:Api"), 1)

	rules := mocks.ofType("aws:cloudwatch/eventRule:EventRule")
	require.Len(t, rules, 1)
	pattern := rules[0].Inputs["eventPattern"]
	require.True(t, pattern.IsString(), "event pattern unresolved: %v", pattern)
	assert.NotContains(t, pattern.StringValue(), "jobQueue")
	assert.Contains(t, pattern.StringValue(), "FAILED")
}

func TestAssemble_TriggerAuthOptIn(t *testing.T) {
	groups, err := Plan(ProfileCustom, []Group{RestTrigger})
	require.NoError(t, err)

	triggerEnv := func(mocks *recordingMocks) resource.PropertyMap {
		t.Helper()
		for _, fn := range mocks.ofType("aws:lambda/function:Function") {
			if fn.Name == "encsys-batchtrigger-dev" {
				return fn.Inputs["environment"].ObjectValue()["variables"].ObjectValue()
			}
		}
		t.Fatal("trigger function not registered")
		return nil
	}

	open, _ := assemble(t, mapSource{}, groups)
	secrets := open.ofType("aws:secretsmanager/secret:Secret")
	require.Len(t, secrets, 1, "secret exists so the signing key can be stored first")
	assert.Equal(t, "encsys/dev/trigger-auth", secrets[0].Inputs["name"].StringValue())
	_, set := triggerEnv(open)["AUTH_SECRET_NAME"]
	assert.False(t, set, "auth must stay off until the signing key exists")

	locked, _ := assemble(t, mapSource{"triggerAuth": "true"}, groups)
	assert.Equal(t, "encsys/dev/trigger-auth", triggerEnv(locked)["AUTH_SECRET_NAME"].StringValue())
}

func TestAssemble_PipelineStartsOnPush(t *testing.T) {
	groups, err := Plan(ProfileCustom, []Group{Pipeline})
	require.NoError(t, err)

	mocks, out := assemble(t, mapSource{}, groups)
	require.NotNil(t, out.Pipeline)

	var sourceRules []recordedResource
	for _, r := range mocks.ofType("aws:cloudwatch/eventRule:EventRule") {
		if strings.HasSuffix(r.Name, "-source-change") {
			sourceRules = append(sourceRules, r)
		}
	}
	require.Len(t, sourceRules, 1)
	assert.Equal(t, "cicd-encsys-dev-source-change", sourceRules[0].Name)

	pattern := sourceRules[0].Inputs["eventPattern"]
	require.True(t, pattern.IsString())
	var doc struct {
		Source    []string            `json:"source"`
		Resources []string            `json:"resources"`
		Detail    map[string][]string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal([]byte(pattern.StringValue()), &doc))
	assert.Equal(t, []string{"aws.codecommit"}, doc.Source)
	assert.Equal(t, []string{"arn:aws:codecommit:us-east-1:123456789012:encsys"}, doc.Resources)
	assert.Equal(t, []string{"branch"}, doc.Detail["referenceType"])
	assert.Equal(t, []string{"dev"}, doc.Detail["referenceName"])

	var pipelineTargets int
	for _, target := range mocks.ofType("aws:cloudwatch/eventTarget:EventTarget") {
		if strings.HasPrefix(target.Name, "cicd-encsys-dev-source-change") {
			pipelineTargets++
			assert.True(t, target.Inputs["roleArn"].IsString(), "pipeline target needs a role")
		}
	}
	assert.Equal(t, 1, pipelineTargets)
}

func TestAssemble_DatabaseSizing(t *testing.T) {
	groups, err := Plan(ProfileCustom, []Group{Database})
	require.NoError(t, err)

	dev, _ := assemble(t, mapSource{}, groups)
	prod, _ := assemble(t, mapSource{"environment": "prod"}, groups)

	assert.Len(t, dev.ofType("aws:rds/clusterInstance:ClusterInstance"), 1)
	assert.Len(t, prod.ofType("aws:rds/clusterInstance:ClusterInstance"), 2)

	clusters := prod.ofType("aws:rds/cluster:Cluster")
	require.Len(t, clusters, 1)
	assert.True(t, clusters[0].Inputs["deletionProtection"].BoolValue())
}

func TestAssemble_FullTopology(t *testing.T) {
	groups, err := Plan(ProfileFull, nil)
	require.NoError(t, err)

	mocks, out := assemble(t, mapSource{"migrationTag": "mig42"}, groups)

	assert.NotNil(t, out.Bastion)
	assert.NotNil(t, out.TagAutomation)
	assert.NotNil(t, out.ScheduledWorks)
	assert.NotNil(t, out.Web)
	assert.NotNil(t, out.Pipeline)
	assert.NotEmpty(t, mocks.ofType("aws:scheduler/schedule:Schedule"))
	assert.Len(t, mocks.ofType("aws:codepipeline/pipeline:Pipeline"), 2)

	sourceRules := 0
	for _, r := range mocks.ofType("aws:cloudwatch/eventRule:EventRule") {
		if strings.HasSuffix(r.Name, "-source-change") {
			sourceRules++
		}
	}
	assert.Equal(t, 2, sourceRules, "both pipelines start on push")

	for _, fn := range mocks.ofType("aws:lambda/function:Function") {
		tags := fn.Inputs["tags"].ObjectValue()
		assert.Equal(t, "mig42", tags["map-migrated"].StringValue(), fn.Name)
		assert.True(t, strings.HasPrefix(fn.Name, "encsys-"), fn.Name)
	}
}
