package infra

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/batch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/dynamodb"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ecr"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/jrzesz33/encsys/internal/models"
	"github.com/jrzesz33/encsys/internal/params"
	"github.com/jrzesz33/encsys/pkg/workloads"
)

const (
	JobAttempts       = 3
	EC2JobTimeout     = 10800
	FargateJobTimeout = 7200
)

// BatchTargetRef is one published queue/job-definition pair
type BatchTargetRef struct {
	Prefix        string
	Strategy      models.Strategy
	Key           string
	JobQueue      *batch.JobQueue
	JobDefinition *batch.JobDefinition
}

// BatchQueues is the output of the batch group
type BatchQueues struct {
	Targets  []BatchTargetRef
	JobTable *dynamodb.Table
}

// QueueArns lists every job queue ARN
func (b *BatchQueues) QueueArns() pulumi.StringArray {
	arns := make(pulumi.StringArray, 0, len(b.Targets))
	for _, t := range b.Targets {
		arns = append(arns, t.JobQueue.Arn)
	}
	return arns
}

// ComputeEnvironmentName embeds the root volume size for EC2 pools
func ComputeEnvironmentName(env, prefix string, strategy models.Strategy, volumeGiB int) string {
	if strategy == models.StrategyFargateSpot {
		return fmt.Sprintf("CE-%s-%s-FGS", env, prefix)
	}
	return fmt.Sprintf("CE-%s-%s-EC2-%dGiB", env, prefix, volumeGiB)
}

func JobQueueName(env, prefix string, strategy models.Strategy) string {
	if strategy == models.StrategyFargateSpot {
		return fmt.Sprintf("JQ-%s-%s-FGS", env, prefix)
	}
	return fmt.Sprintf("JQ-%s-%s", env, prefix)
}

func JobDefinitionName(env, prefix string, strategy models.Strategy) string {
	if strategy == models.StrategyFargateSpot {
		return fmt.Sprintf("JD-%s-%s-FGS", env, prefix)
	}
	return fmt.Sprintf("JD-%s-%s", env, prefix)
}

// BuildBatch declares both strategies for every workload plus the job ledger
func BuildBatch(ctx *pulumi.Context, d *Deployment, net *Network, sub *Substrate) (*BatchQueues, error) {
	out := &BatchQueues{}

	table, err := dynamodb.NewTable(ctx, d.JobTableName(), &dynamodb.TableArgs{
		Name:        pulumi.String(d.JobTableName()),
		BillingMode: pulumi.String("PAY_PER_REQUEST"),
		HashKey:     pulumi.String("id"),
		Attributes: dynamodb.TableAttributeArray{
			&dynamodb.TableAttributeArgs{
				Name: pulumi.String("id"),
				Type: pulumi.String("S"),
			},
		},
		PointInTimeRecovery: &dynamodb.TablePointInTimeRecoveryArgs{
			Enabled: pulumi.Bool(!d.Target.IsDevelopment()),
		},
		Tags: d.Tags(d.JobTableName()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create job table: %w", err)
	}
	out.JobTable = table

	ltName := d.Name("batch-lt")
	launchTemplate, err := ec2.NewLaunchTemplate(ctx, ltName, &ec2.LaunchTemplateArgs{
		Name: pulumi.String(ltName),
		BlockDeviceMappings: ec2.LaunchTemplateBlockDeviceMappingArray{
			&ec2.LaunchTemplateBlockDeviceMappingArgs{
				DeviceName: pulumi.String("/dev/xvda"),
				Ebs: &ec2.LaunchTemplateBlockDeviceMappingEbsArgs{
					VolumeSize:          pulumi.Int(d.Profile.BatchEC2.VolumeSizeGiB),
					VolumeType:          pulumi.String("gp3"),
					Encrypted:           pulumi.String("true"),
					DeleteOnTermination: pulumi.String("true"),
				},
			},
		},
		TagSpecifications: ec2.LaunchTemplateTagSpecificationArray{
			&ec2.LaunchTemplateTagSpecificationArgs{
				ResourceType: pulumi.String("volume"),
				Tags:         d.Tags(ltName),
			},
		},
		Tags: d.Tags(ltName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch launch template: %w", err)
	}

	for _, w := range d.Workloads.Workloads {
		log.Printf("Creating batch workload %s", w.Prefix)

		image, err := workloadImage(ctx, d, w)
		if err != nil {
			return nil, err
		}

		ec2Target, err := buildEC2Strategy(ctx, d, net, sub, launchTemplate, w, image)
		if err != nil {
			return nil, err
		}
		fgsTarget, err := buildFargateStrategy(ctx, d, net, sub, w, image)
		if err != nil {
			return nil, err
		}

		for _, t := range []BatchTargetRef{ec2Target, fgsTarget} {
			if _, err := d.Params.PutBatchTarget(t.Key, t.JobQueue.Name, t.JobDefinition.Name); err != nil {
				return nil, err
			}
			out.Targets = append(out.Targets, t)
		}
	}

	return out, nil
}

func workloadImage(ctx *pulumi.Context, d *Deployment, w workloads.Workload) (pulumi.StringOutput, error) {
	repoName := w.RepositoryName(d.AppName())
	repo, err := ecr.NewRepository(ctx, fmt.Sprintf("ecr-%s-%s", repoName, d.Env()), &ecr.RepositoryArgs{
		Name:               pulumi.String(fmt.Sprintf("%s-%s", repoName, d.Env())),
		ImageTagMutability: pulumi.String("MUTABLE"),
		ImageScanningConfiguration: &ecr.RepositoryImageScanningConfigurationArgs{
			ScanOnPush: pulumi.Bool(true),
		},
		ForceDelete: pulumi.Bool(d.Target.IsDevelopment()),
		Tags:        d.Tags(repoName),
	})
	if err != nil {
		return pulumi.StringOutput{}, fmt.Errorf("failed to create repository for %s: %w", w.Prefix, err)
	}
	return pulumi.Sprintf("%s:%s", repo.RepositoryUrl, w.Tag()), nil
}

func buildEC2Strategy(ctx *pulumi.Context, d *Deployment, net *Network, sub *Substrate, lt *ec2.LaunchTemplate, w workloads.Workload, image pulumi.StringOutput) (BatchTargetRef, error) {
	sizing := d.Profile.BatchEC2
	strategy := models.StrategyEC2

	instanceTypes := make(pulumi.StringArray, 0, len(sizing.InstanceTypes))
	for _, t := range sizing.InstanceTypes {
		instanceTypes = append(instanceTypes, pulumi.String(t))
	}

	ceName := ComputeEnvironmentName(d.Env(), w.Prefix, strategy, sizing.VolumeSizeGiB)
	ce, err := batch.NewComputeEnvironment(ctx, ceName, &batch.ComputeEnvironmentArgs{
		ComputeEnvironmentName: pulumi.String(ceName),
		Type:                   pulumi.String("MANAGED"),
		ServiceRole:            sub.BatchServiceRole.Arn,
		ComputeResources: &batch.ComputeEnvironmentComputeResourcesArgs{
			Type:             pulumi.String("EC2"),
			MinVcpus:         pulumi.Int(sizing.MinVCPUs),
			MaxVcpus:         pulumi.Int(sizing.MaxVCPUs),
			DesiredVcpus:     pulumi.Int(sizing.DesiredVCPUs),
			InstanceTypes:    instanceTypes,
			InstanceRole:     sub.InstanceProfile.Arn,
			Subnets:          net.PrivateSubnetIDs,
			SecurityGroupIds: pulumi.StringArray{sub.SecurityGroup.ID()},
			LaunchTemplate: &batch.ComputeEnvironmentComputeResourcesLaunchTemplateArgs{
				LaunchTemplateId: lt.ID(),
				Version:          pulumi.String("$Latest"),
			},
			Tags: d.Tags(ceName),
		},
		Tags: d.Tags(ceName),
	})
	if err != nil {
		return BatchTargetRef{}, fmt.Errorf("failed to create compute environment %s: %w", ceName, err)
	}

	props := containerSpec{
		vcpu:        strconv.Itoa(sizing.ContainerVCPUs),
		memory:      strconv.Itoa(sizing.ContainerMemoryMiB),
		environment: workloadEnvironment(d, w),
	}
	return buildQueueAndDefinition(ctx, d, w, strategy, ce, sizing.ComputeOrder, sizing.QueuePriority, EC2JobTimeout,
		pulumi.All(image, sub.JobRole.Arn).ApplyT(func(args []interface{}) (string, error) {
			props.image = args[0].(string)
			props.jobRoleArn = args[1].(string)
			return props.JSON()
		}).(pulumi.StringOutput))
}

func buildFargateStrategy(ctx *pulumi.Context, d *Deployment, net *Network, sub *Substrate, w workloads.Workload, image pulumi.StringOutput) (BatchTargetRef, error) {
	sizing := d.Profile.BatchFargate
	strategy := models.StrategyFargateSpot

	ceName := ComputeEnvironmentName(d.Env(), w.Prefix, strategy, 0)
	ce, err := batch.NewComputeEnvironment(ctx, ceName, &batch.ComputeEnvironmentArgs{
		ComputeEnvironmentName: pulumi.String(ceName),
		Type:                   pulumi.String("MANAGED"),
		ServiceRole:            sub.BatchServiceRole.Arn,
		ComputeResources: &batch.ComputeEnvironmentComputeResourcesArgs{
			Type:             pulumi.String("FARGATE_SPOT"),
			MaxVcpus:         pulumi.Int(sizing.MaxVCPUs),
			Subnets:          net.PrivateSubnetIDs,
			SecurityGroupIds: pulumi.StringArray{sub.SecurityGroup.ID()},
		},
		Tags: d.Tags(ceName),
	})
	if err != nil {
		return BatchTargetRef{}, fmt.Errorf("failed to create compute environment %s: %w", ceName, err)
	}

	props := containerSpec{
		vcpu:        sizing.ContainerVCPU,
		memory:      sizing.ContainerMemory,
		environment: workloadEnvironment(d, w),
		fargate:     true,
	}
	return buildQueueAndDefinition(ctx, d, w, strategy, ce, sizing.ComputeOrder, sizing.QueuePriority, FargateJobTimeout,
		pulumi.All(image, sub.JobRole.Arn, sub.TaskExecutionRole.Arn).ApplyT(func(args []interface{}) (string, error) {
			props.image = args[0].(string)
			props.jobRoleArn = args[1].(string)
			props.executionRoleArn = args[2].(string)
			return props.JSON()
		}).(pulumi.StringOutput))
}

func buildQueueAndDefinition(ctx *pulumi.Context, d *Deployment, w workloads.Workload, strategy models.Strategy, ce *batch.ComputeEnvironment, order, priority, timeout int, containerProperties pulumi.StringOutput) (BatchTargetRef, error) {
	jqName := JobQueueName(d.Env(), w.Prefix, strategy)
	jq, err := batch.NewJobQueue(ctx, jqName, &batch.JobQueueArgs{
		Name:     pulumi.String(jqName),
		State:    pulumi.String("ENABLED"),
		Priority: pulumi.Int(priority),
		ComputeEnvironmentOrders: batch.JobQueueComputeEnvironmentOrderArray{
			&batch.JobQueueComputeEnvironmentOrderArgs{
				ComputeEnvironment: ce.Arn,
				Order:              pulumi.Int(order),
			},
		},
		Tags: d.Tags(jqName),
	})
	if err != nil {
		return BatchTargetRef{}, fmt.Errorf("failed to create job queue %s: %w", jqName, err)
	}

	platform := "EC2"
	if strategy == models.StrategyFargateSpot {
		platform = "FARGATE"
	}
	jdName := JobDefinitionName(d.Env(), w.Prefix, strategy)
	jd, err := batch.NewJobDefinition(ctx, jdName, &batch.JobDefinitionArgs{
		Name:                 pulumi.String(jdName),
		Type:                 pulumi.String("container"),
		PlatformCapabilities: pulumi.StringArray{pulumi.String(platform)},
		ContainerProperties:  containerProperties,
		PropagateTags:        pulumi.Bool(true),
		RetryStrategy: &batch.JobDefinitionRetryStrategyArgs{
			Attempts: pulumi.Int(JobAttempts),
		},
		Timeout: &batch.JobDefinitionTimeoutArgs{
			AttemptDurationSeconds: pulumi.Int(timeout),
		},
		Tags: d.Tags(jdName),
	})
	if err != nil {
		return BatchTargetRef{}, fmt.Errorf("failed to create job definition %s: %w", jdName, err)
	}

	return BatchTargetRef{
		Prefix:        w.Prefix,
		Strategy:      strategy,
		Key:           params.BatchKey(w.Prefix, strategy),
		JobQueue:      jq,
		JobDefinition: jd,
	}, nil
}

func workloadEnvironment(d *Deployment, w workloads.Workload) []keyValue {
	env := []keyValue{{Name: "DEPLOY_ENVIRONMENT", Value: d.Env()}}
	for _, name := range w.EnvironmentNames() {
		env = append(env, keyValue{Name: name, Value: w.Environment[name]})
	}
	return env
}

type keyValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resourceRequirement struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// containerSpec renders Batch container properties
type containerSpec struct {
	image            string
	vcpu             string
	memory           string
	jobRoleArn       string
	executionRoleArn string
	environment      []keyValue
	fargate          bool
}

// JSON returns the containerProperties document
func (c containerSpec) JSON() (string, error) {
	type networkConfiguration struct {
		AssignPublicIP string `json:"assignPublicIp"`
	}
	type fargatePlatform struct {
		PlatformVersion string `json:"platformVersion"`
	}
	doc := struct {
		Image                        string                `json:"image"`
		JobRoleArn                   string                `json:"jobRoleArn,omitempty"`
		ExecutionRoleArn             string                `json:"executionRoleArn,omitempty"`
		ResourceRequirements         []resourceRequirement `json:"resourceRequirements"`
		Environment                  []keyValue            `json:"environment,omitempty"`
		NetworkConfiguration         *networkConfiguration `json:"networkConfiguration,omitempty"`
		FargatePlatformConfiguration *fargatePlatform      `json:"fargatePlatformConfiguration,omitempty"`
	}{
		Image:            c.image,
		JobRoleArn:       c.jobRoleArn,
		ExecutionRoleArn: c.executionRoleArn,
		ResourceRequirements: []resourceRequirement{
			{Type: "VCPU", Value: c.vcpu},
			{Type: "MEMORY", Value: c.memory},
		},
		Environment: c.environment,
	}
	if c.fargate {
		doc.NetworkConfiguration = &networkConfiguration{AssignPublicIP: "DISABLED"}
		doc.FargatePlatformConfiguration = &fargatePlatform{PlatformVersion: "LATEST"}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal container properties: %w", err)
	}
	return string(data), nil
}
