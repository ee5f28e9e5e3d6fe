package infra

import (
	"fmt"
	"log"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ecs"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// Substrate is the shared compute layer batch and web groups attach to
type Substrate struct {
	Cluster           *ecs.Cluster
	BatchServiceRole  *iam.Role
	InstanceRole      *iam.Role
	InstanceProfile   *iam.InstanceProfile
	TaskExecutionRole *iam.Role
	JobRole           *iam.Role
	MediaConvertRole  *iam.Role
	SecurityGroup     *ec2.SecurityGroup
}

// BuildSubstrate declares the ECS cluster, batch roles and private security group
func BuildSubstrate(ctx *pulumi.Context, d *Deployment, net *Network) (*Substrate, error) {
	clusterName := fmt.Sprintf("%s-%s", d.AppName(), d.Env())
	log.Printf("Creating ECS cluster %s", clusterName)
	cluster, err := ecs.NewCluster(ctx, fmt.Sprintf("ecs-%s", clusterName), &ecs.ClusterArgs{
		Name: pulumi.String(clusterName),
		Settings: ecs.ClusterSettingArray{
			&ecs.ClusterSettingArgs{
				Name:  pulumi.String("containerInsights"),
				Value: pulumi.String("enabled"),
			},
		},
		Tags: d.Tags(clusterName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ECS cluster: %w", err)
	}

	s := &Substrate{Cluster: cluster}

	s.BatchServiceRole, err = newRole(ctx, d, d.Name("batch-service"), []string{"batch.amazonaws.com"}, PolicyBatchService)
	if err != nil {
		return nil, err
	}

	s.InstanceRole, err = newRole(ctx, d, d.Name("batch-instance"), []string{"ec2.amazonaws.com"},
		PolicyECSInstance, PolicySSMManagedInstance)
	if err != nil {
		return nil, err
	}

	profileName := d.Name("batch-instance-profile")
	s.InstanceProfile, err = iam.NewInstanceProfile(ctx, profileName, &iam.InstanceProfileArgs{
		Name: pulumi.String(profileName),
		Role: s.InstanceRole.Name,
		Tags: d.Tags(profileName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create instance profile: %w", err)
	}

	s.TaskExecutionRole, err = newRole(ctx, d, d.Name("task-execution"), []string{"ecs-tasks.amazonaws.com"}, PolicyECSTaskExecution)
	if err != nil {
		return nil, err
	}

	s.JobRole, err = newRole(ctx, d, d.Name("batch-job"), []string{"ecs-tasks.amazonaws.com"}, PolicyS3FullAccess)
	if err != nil {
		return nil, err
	}

	s.MediaConvertRole, err = newRole(ctx, d, d.Name("mediaconvert"), []string{"mediaconvert.amazonaws.com"},
		PolicyS3FullAccess, PolicyAPIGatewayInvoke)
	if err != nil {
		return nil, err
	}
	if _, err := d.Params.PutJSON("mediaConvertRole", map[string]pulumi.StringInput{
		"mediaConvertRole": s.MediaConvertRole.Arn,
	}, "MediaConvert service role"); err != nil {
		return nil, err
	}

	sgName := d.Name("private-sg")
	s.SecurityGroup, err = ec2.NewSecurityGroup(ctx, sgName, &ec2.SecurityGroupArgs{
		Name:        pulumi.String(sgName),
		Description: pulumi.String(fmt.Sprintf("Private compute for %s %s", d.AppName(), d.Env())),
		VpcId:       net.Vpc.ID(),
		Ingress: ec2.SecurityGroupIngressArray{
			ec2.SecurityGroupIngressArgs{
				Protocol:   pulumi.String("-1"),
				FromPort:   pulumi.Int(0),
				ToPort:     pulumi.Int(0),
				CidrBlocks: pulumi.StringArray{pulumi.String(net.CIDR)},
			},
		},
		Egress: ec2.SecurityGroupEgressArray{
			ec2.SecurityGroupEgressArgs{
				Protocol:   pulumi.String("-1"),
				FromPort:   pulumi.Int(0),
				ToPort:     pulumi.Int(0),
				CidrBlocks: pulumi.StringArray{pulumi.String("0.0.0.0/0")},
			},
		},
		Tags: d.Tags(sgName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create private security group: %w", err)
	}

	return s, nil
}
