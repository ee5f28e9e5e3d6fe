package infra

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/appautoscaling"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/codepipeline"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ecr"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ecs"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lb"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const (
	webContainerPort     = 80
	webHealthInterval    = 120
	webHealthTimeout     = 60
	webStickinessSeconds = 86400
)

// WebService is the output of the web group
type WebService struct {
	LoadBalancer *lb.LoadBalancer
	Service      *ecs.Service
	Repository   *ecr.Repository
	Pipeline     *Pipeline
}

// WebContainerName is the container and service name of the web task
func (d *Deployment) WebContainerName() string {
	return fmt.Sprintf("%s-%s", d.AppName(), d.Env())
}

// WebLogGroupName receives the web container logs
func (d *Deployment) WebLogGroupName() string {
	return fmt.Sprintf("/aws/ecs/%sweb/%s", d.AppName(), d.Env())
}

// BuildWebService declares the internal ALB, Fargate service, autoscaling and its pipeline
func BuildWebService(ctx *pulumi.Context, d *Deployment, net *Network, sub *Substrate) (*WebService, error) {
	sizing := d.Profile.Web
	log.Printf("Creating web service (%d-%d tasks)", sizing.DesiredCount, sizing.MaxCount)

	cidrs := make(pulumi.StringArray, 0, len(d.AllowedCIDRs))
	for _, c := range d.AllowedCIDRs {
		cidrs = append(cidrs, pulumi.String(c))
	}

	albSGName := d.Name("alb-sg")
	albSG, err := ec2.NewSecurityGroup(ctx, albSGName, &ec2.SecurityGroupArgs{
		Name:        pulumi.String(albSGName),
		Description: pulumi.String("Web load balancer"),
		VpcId:       net.Vpc.ID(),
		Ingress: ec2.SecurityGroupIngressArray{
			ec2.SecurityGroupIngressArgs{
				Protocol:   pulumi.String("tcp"),
				FromPort:   pulumi.Int(webContainerPort),
				ToPort:     pulumi.Int(webContainerPort),
				CidrBlocks: cidrs,
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
		Tags: d.Tags(albSGName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create load balancer security group: %w", err)
	}

	albName := d.Name("alb")
	alb, err := lb.NewLoadBalancer(ctx, albName, &lb.LoadBalancerArgs{
		Name:             pulumi.String(albName),
		Internal:         pulumi.Bool(true),
		LoadBalancerType: pulumi.String("application"),
		SecurityGroups:   pulumi.StringArray{albSG.ID()},
		Subnets:          net.PrivateSubnetIDs,
		Tags:             d.Tags(albName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create load balancer: %w", err)
	}

	tgName := d.Name("web-tg")
	targetGroup, err := lb.NewTargetGroup(ctx, tgName, &lb.TargetGroupArgs{
		Name:       pulumi.String(tgName),
		Port:       pulumi.Int(webContainerPort),
		Protocol:   pulumi.String("HTTP"),
		TargetType: pulumi.String("ip"),
		VpcId:      net.Vpc.ID(),
		HealthCheck: &lb.TargetGroupHealthCheckArgs{
			Path:     pulumi.String("/"),
			Interval: pulumi.Int(webHealthInterval),
			Timeout:  pulumi.Int(webHealthTimeout),
			Matcher:  pulumi.String("200-399"),
		},
		Stickiness: &lb.TargetGroupStickinessArgs{
			Enabled:        pulumi.Bool(true),
			Type:           pulumi.String("lb_cookie"),
			CookieDuration: pulumi.Int(webStickinessSeconds),
		},
		Tags: d.Tags(tgName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create target group: %w", err)
	}

	listener, err := lb.NewListener(ctx, albName+"-http", &lb.ListenerArgs{
		LoadBalancerArn: alb.Arn,
		Port:            pulumi.Int(webContainerPort),
		Protocol:        pulumi.String("HTTP"),
		DefaultActions: lb.ListenerDefaultActionArray{
			&lb.ListenerDefaultActionArgs{
				Type:           pulumi.String("forward"),
				TargetGroupArn: targetGroup.Arn,
			},
		},
		Tags: d.Tags(albName + "-http"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	repoName := fmt.Sprintf("%s-%s", d.WebRepository, d.Env())
	repo, err := ecr.NewRepository(ctx, "ecr-"+repoName, &ecr.RepositoryArgs{
		Name:               pulumi.String(repoName),
		ImageTagMutability: pulumi.String("MUTABLE"),
		ImageScanningConfiguration: &ecr.RepositoryImageScanningConfigurationArgs{
			ScanOnPush: pulumi.Bool(true),
		},
		ForceDelete: pulumi.Bool(d.Target.IsDevelopment()),
		Tags:        d.Tags(repoName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create web repository: %w", err)
	}

	logGroup, err := cloudwatch.NewLogGroup(ctx, d.Name("web-logs"), &cloudwatch.LogGroupArgs{
		Name:            pulumi.String(d.WebLogGroupName()),
		RetentionInDays: pulumi.Int(d.Profile.LogRetentionDays),
		Tags:            d.Tags(d.WebLogGroupName()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create web log group: %w", err)
	}

	containerName := d.WebContainerName()
	containers := repo.RepositoryUrl.ApplyT(func(url string) (string, error) {
		return WebContainerDefinitions(containerName, url+":latest", d.WebLogGroupName(), d.Region, d.Env())
	}).(pulumi.StringOutput)

	taskDef, err := ecs.NewTaskDefinition(ctx, d.Name("web-task"), &ecs.TaskDefinitionArgs{
		Family:                  pulumi.String(d.Name("web")),
		Cpu:                     pulumi.String(fmt.Sprint(sizing.TaskCPU)),
		Memory:                  pulumi.String(fmt.Sprint(sizing.TaskMemoryMiB)),
		NetworkMode:             pulumi.String("awsvpc"),
		RequiresCompatibilities: pulumi.StringArray{pulumi.String("FARGATE")},
		ExecutionRoleArn:        sub.TaskExecutionRole.Arn,
		TaskRoleArn:             sub.JobRole.Arn,
		ContainerDefinitions:    containers,
		Tags:                    d.Tags(d.Name("web")),
	}, pulumi.DependsOn([]pulumi.Resource{logGroup}))
	if err != nil {
		return nil, fmt.Errorf("failed to create web task definition: %w", err)
	}

	service, err := ecs.NewService(ctx, d.Name("web-service"), &ecs.ServiceArgs{
		Name:           pulumi.String(containerName),
		Cluster:        sub.Cluster.Arn,
		TaskDefinition: taskDef.Arn,
		DesiredCount:   pulumi.Int(sizing.DesiredCount),
		LaunchType:     pulumi.String("FARGATE"),
		NetworkConfiguration: &ecs.ServiceNetworkConfigurationArgs{
			Subnets:        net.PrivateSubnetIDs,
			SecurityGroups: pulumi.StringArray{sub.SecurityGroup.ID()},
			AssignPublicIp: pulumi.Bool(false),
		},
		LoadBalancers: ecs.ServiceLoadBalancerArray{
			&ecs.ServiceLoadBalancerArgs{
				TargetGroupArn: targetGroup.Arn,
				ContainerName:  pulumi.String(containerName),
				ContainerPort:  pulumi.Int(webContainerPort),
			},
		},
		HealthCheckGracePeriodSeconds: pulumi.Int(webHealthInterval),
		Tags:                          d.Tags(containerName),
	}, pulumi.DependsOn([]pulumi.Resource{listener}))
	if err != nil {
		return nil, fmt.Errorf("failed to create web service: %w", err)
	}

	scaling, err := appautoscaling.NewTarget(ctx, d.Name("web-scaling"), &appautoscaling.TargetArgs{
		MinCapacity:       pulumi.Int(sizing.DesiredCount),
		MaxCapacity:       pulumi.Int(sizing.MaxCount),
		ResourceId:        pulumi.Sprintf("service/%s/%s", sub.Cluster.Name, service.Name),
		ScalableDimension: pulumi.String("ecs:service:DesiredCount"),
		ServiceNamespace:  pulumi.String("ecs"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create web scaling target: %w", err)
	}
	_, err = appautoscaling.NewPolicy(ctx, d.Name("web-cpu"), &appautoscaling.PolicyArgs{
		Name:              pulumi.String(d.Name("web-cpu")),
		PolicyType:        pulumi.String("TargetTrackingScaling"),
		ResourceId:        scaling.ResourceId,
		ScalableDimension: scaling.ScalableDimension,
		ServiceNamespace:  scaling.ServiceNamespace,
		TargetTrackingScalingPolicyConfiguration: &appautoscaling.PolicyTargetTrackingScalingPolicyConfigurationArgs{
			TargetValue: pulumi.Float64(sizing.CPUTargetPercent),
			PredefinedMetricSpecification: &appautoscaling.PolicyTargetTrackingScalingPolicyConfigurationPredefinedMetricSpecificationArgs{
				PredefinedMetricType: pulumi.String("ECSServiceAverageCPUUtilization"),
			},
			ScaleInCooldown:  pulumi.Int(300),
			ScaleOutCooldown: pulumi.Int(60),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create web scaling policy: %w", err)
	}

	if _, err := d.Params.PutJSON("ELBDNSName", map[string]pulumi.StringInput{
		"LoadBalancerDNS": alb.DnsName,
	}, "Web load balancer DNS name"); err != nil {
		return nil, err
	}

	pipeline, err := newDeliveryPipeline(ctx, d, pipelineSpec{
		Component:  "web",
		Repository: d.WebRepository,
		Branch:     d.Profile.TriggerBranch(),
		BuildEnv: map[string]pulumi.StringInput{
			"ECR":       repo.RepositoryUrl,
			"TARGET":    pulumi.String(d.Env()),
			"APP":       pulumi.String(d.AppName()),
			"CONTAINER": pulumi.String(containerName),
		},
		Deploy: &codepipeline.PipelineStageArgs{
			Name: pulumi.String("Deploy"),
			Actions: codepipeline.PipelineStageActionArray{
				&codepipeline.PipelineStageActionArgs{
					Name:           pulumi.String("Deploy"),
					Category:       pulumi.String("Deploy"),
					Owner:          pulumi.String("AWS"),
					Provider:       pulumi.String("ECS"),
					Version:        pulumi.String("1"),
					InputArtifacts: pulumi.StringArray{pulumi.String("build")},
					Configuration: pulumi.StringMap{
						"ClusterName": sub.Cluster.Name,
						"ServiceName": service.Name,
						"FileName":    pulumi.String("imagedefinitions.json"),
					},
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &WebService{
		LoadBalancer: alb,
		Service:      service,
		Repository:   repo,
		Pipeline:     pipeline,
	}, nil
}

// WebContainerDefinitions renders the task container definitions
func WebContainerDefinitions(name, image, logGroup, region, env string) (string, error) {
	type portMapping struct {
		ContainerPort int    `json:"containerPort"`
		Protocol      string `json:"protocol"`
	}
	type logConfiguration struct {
		LogDriver string            `json:"logDriver"`
		Options   map[string]string `json:"options"`
	}
	type container struct {
		Name             string           `json:"name"`
		Image            string           `json:"image"`
		Essential        bool             `json:"essential"`
		PortMappings     []portMapping    `json:"portMappings"`
		Environment      []keyValue       `json:"environment"`
		LogConfiguration logConfiguration `json:"logConfiguration"`
	}

	data, err := json.Marshal([]container{{
		Name:         name,
		Image:        image,
		Essential:    true,
		PortMappings: []portMapping{{ContainerPort: webContainerPort, Protocol: "tcp"}},
		Environment:  []keyValue{{Name: "DEPLOY_ENVIRONMENT", Value: env}},
		LogConfiguration: logConfiguration{
			LogDriver: "awslogs",
			Options: map[string]string{
				"awslogs-group":         logGroup,
				"awslogs-region":        region,
				"awslogs-stream-prefix": "web",
			},
		},
	}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal container definitions: %w", err)
	}
	return string(data), nil
}
