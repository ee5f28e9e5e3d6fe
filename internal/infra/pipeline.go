package infra

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/codebuild"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/codepipeline"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/codestarnotifications"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/kms"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/s3"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

var pipelineEvents = []string{
	"codepipeline-pipeline-pipeline-execution-failed",
	"codepipeline-pipeline-pipeline-execution-succeeded",
	"codepipeline-pipeline-manual-approval-needed",
}

// pipelineSpec describes a Source -> Build (-> Deploy) pipeline
type pipelineSpec struct {
	// Component distinguishes pipelines of one deployment, e.g. "" or "web"
	Component  string
	Repository string
	Branch     string
	BuildEnv   map[string]pulumi.StringInput
	// Deploy is appended after Build when set
	Deploy *codepipeline.PipelineStageArgs
}

// Pipeline is the output of a delivery pipeline
type Pipeline struct {
	Pipeline       *codepipeline.Pipeline
	Project        *codebuild.Project
	ArtifactBucket *s3.Bucket
}

// RegistryHost is the ECR registry of the account
func (d *Deployment) RegistryHost() string {
	return fmt.Sprintf("%s.dkr.ecr.%s.amazonaws.com", d.AccountID, d.Region)
}

// BuildPipeline builds the batch workload images from the source repository
func BuildPipeline(ctx *pulumi.Context, d *Deployment) (*Pipeline, error) {
	return newDeliveryPipeline(ctx, d, pipelineSpec{
		Repository: d.SourceRepository,
		Branch:     d.Profile.TriggerBranch(),
		BuildEnv: map[string]pulumi.StringInput{
			"ECR":    pulumi.String(d.RegistryHost()),
			"TARGET": pulumi.String(d.Env()),
			"APP":    pulumi.String(d.AppName()),
		},
	})
}

func newDeliveryPipeline(ctx *pulumi.Context, d *Deployment, spec pipelineSpec) (*Pipeline, error) {
	app := d.AppName() + spec.Component
	base := fmt.Sprintf("cicd-%s-%s", app, d.Env())
	log.Printf("Creating delivery pipeline %s (%s@%s)", base, spec.Repository, spec.Branch)

	key, err := kms.NewKey(ctx, base+"-key", &kms.KeyArgs{
		Description:          pulumi.String(fmt.Sprintf("Artifacts of %s", base)),
		EnableKeyRotation:    pulumi.Bool(true),
		DeletionWindowInDays: pulumi.Int(7),
		Tags:                 d.Tags(base),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact key: %w", err)
	}
	_, err = kms.NewAlias(ctx, base+"-alias", &kms.AliasArgs{
		Name:        pulumi.String("alias/" + base),
		TargetKeyId: key.KeyId,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact key alias: %w", err)
	}

	bucket, err := s3.NewBucket(ctx, base, &s3.BucketArgs{
		Bucket:       pulumi.String(base),
		ForceDestroy: pulumi.Bool(d.Target.IsDevelopment()),
		Tags:         d.Tags(base),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact bucket: %w", err)
	}
	_, err = s3.NewBucketPublicAccessBlock(ctx, base+"-pab", &s3.BucketPublicAccessBlockArgs{
		Bucket:                bucket.ID(),
		BlockPublicAcls:       pulumi.Bool(true),
		BlockPublicPolicy:     pulumi.Bool(true),
		IgnorePublicAcls:      pulumi.Bool(true),
		RestrictPublicBuckets: pulumi.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to block public access on artifact bucket: %w", err)
	}
	_, err = s3.NewBucketServerSideEncryptionConfigurationV2(ctx, base+"-sse", &s3.BucketServerSideEncryptionConfigurationV2Args{
		Bucket: bucket.ID(),
		Rules: s3.BucketServerSideEncryptionConfigurationV2RuleArray{
			&s3.BucketServerSideEncryptionConfigurationV2RuleArgs{
				ApplyServerSideEncryptionByDefault: &s3.BucketServerSideEncryptionConfigurationV2RuleApplyServerSideEncryptionByDefaultArgs{
					SseAlgorithm:   pulumi.String("aws:kms"),
					KmsMasterKeyId: key.Arn,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt artifact bucket: %w", err)
	}

	buildRole, err := newRole(ctx, d, base+"-build", []string{"codebuild.amazonaws.com"})
	if err != nil {
		return nil, err
	}
	err = attachInlinePolicy(ctx, base+"-build-policy", buildRole, []interface{}{bucket.Arn, key.Arn}, func(args []interface{}) []Statement {
		bucketArn, keyArn := args[0].(string), args[1].(string)
		return []Statement{
			Allow([]string{"*"}, "logs:CreateLogGroup", "logs:CreateLogStream", "logs:PutLogEvents"),
			Allow([]string{bucketArn, bucketArn + "/*"}, "s3:GetObject", "s3:PutObject", "s3:GetBucketLocation"),
			Allow([]string{keyArn}, "kms:Decrypt", "kms:Encrypt", "kms:GenerateDataKey*", "kms:DescribeKey"),
			Allow([]string{"*"}, "ecr:GetAuthorizationToken", "ecr:BatchCheckLayerAvailability", "ecr:InitiateLayerUpload",
				"ecr:UploadLayerPart", "ecr:CompleteLayerUpload", "ecr:PutImage", "ecr:BatchGetImage", "ecr:GetDownloadUrlForLayer"),
		}
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(spec.BuildEnv))
	for name := range spec.BuildEnv {
		names = append(names, name)
	}
	sort.Strings(names)
	buildVars := make(codebuild.ProjectEnvironmentEnvironmentVariableArray, 0, len(names))
	for _, name := range names {
		buildVars = append(buildVars, &codebuild.ProjectEnvironmentEnvironmentVariableArgs{
			Name:  pulumi.String(name),
			Value: spec.BuildEnv[name],
		})
	}

	project, err := codebuild.NewProject(ctx, base+"-build", &codebuild.ProjectArgs{
		Name:          pulumi.String(base + "-build"),
		ServiceRole:   buildRole.Arn,
		EncryptionKey: key.Arn,
		Artifacts: &codebuild.ProjectArtifactsArgs{
			Type: pulumi.String("CODEPIPELINE"),
		},
		Environment: &codebuild.ProjectEnvironmentArgs{
			ComputeType:          pulumi.String("BUILD_GENERAL1_SMALL"),
			Image:                pulumi.String("aws/codebuild/standard:7.0"),
			Type:                 pulumi.String("LINUX_CONTAINER"),
			PrivilegedMode:       pulumi.Bool(true),
			EnvironmentVariables: buildVars,
		},
		Source: &codebuild.ProjectSourceArgs{
			Type: pulumi.String("CODEPIPELINE"),
		},
		Tags: d.Tags(base + "-build"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create build project: %w", err)
	}

	pipelineRole, err := newRole(ctx, d, base+"-pipeline", []string{"codepipeline.amazonaws.com"})
	if err != nil {
		return nil, err
	}
	err = attachInlinePolicy(ctx, base+"-pipeline-policy", pipelineRole, []interface{}{bucket.Arn, key.Arn, project.Arn}, func(args []interface{}) []Statement {
		bucketArn, keyArn, projectArn := args[0].(string), args[1].(string), args[2].(string)
		return []Statement{
			Allow([]string{bucketArn, bucketArn + "/*"}, "s3:GetObject", "s3:GetObjectVersion", "s3:PutObject", "s3:GetBucketVersioning"),
			Allow([]string{keyArn}, "kms:Decrypt", "kms:Encrypt", "kms:GenerateDataKey*", "kms:DescribeKey"),
			Allow([]string{projectArn}, "codebuild:StartBuild", "codebuild:BatchGetBuilds"),
			Allow([]string{"*"}, "codecommit:GetBranch", "codecommit:GetCommit", "codecommit:UploadArchive",
				"codecommit:GetUploadArchiveStatus", "codecommit:CancelUploadArchive"),
			Allow([]string{"*"}, "ecs:DescribeServices", "ecs:DescribeTaskDefinition", "ecs:DescribeTasks",
				"ecs:ListTasks", "ecs:RegisterTaskDefinition", "ecs:UpdateService", "iam:PassRole"),
		}
	})
	if err != nil {
		return nil, err
	}

	stages := codepipeline.PipelineStageArray{
		&codepipeline.PipelineStageArgs{
			Name: pulumi.String("Source"),
			Actions: codepipeline.PipelineStageActionArray{
				&codepipeline.PipelineStageActionArgs{
					Name:            pulumi.String("Source"),
					Category:        pulumi.String("Source"),
					Owner:           pulumi.String("AWS"),
					Provider:        pulumi.String("CodeCommit"),
					Version:         pulumi.String("1"),
					OutputArtifacts: pulumi.StringArray{pulumi.String("source")},
					Configuration: pulumi.StringMap{
						"RepositoryName":       pulumi.String(spec.Repository),
						"BranchName":           pulumi.String(spec.Branch),
						"PollForSourceChanges": pulumi.String("false"),
					},
				},
			},
		},
		&codepipeline.PipelineStageArgs{
			Name: pulumi.String("Build"),
			Actions: codepipeline.PipelineStageActionArray{
				&codepipeline.PipelineStageActionArgs{
					Name:            pulumi.String("Build"),
					Category:        pulumi.String("Build"),
					Owner:           pulumi.String("AWS"),
					Provider:        pulumi.String("CodeBuild"),
					Version:         pulumi.String("1"),
					InputArtifacts:  pulumi.StringArray{pulumi.String("source")},
					OutputArtifacts: pulumi.StringArray{pulumi.String("build")},
					Configuration: pulumi.StringMap{
						"ProjectName": project.Name,
					},
				},
			},
		},
	}
	if spec.Deploy != nil {
		stages = append(stages, spec.Deploy)
	}

	pipeline, err := codepipeline.NewPipeline(ctx, base, &codepipeline.PipelineArgs{
		Name:    pulumi.String(base),
		RoleArn: pipelineRole.Arn,
		ArtifactStores: codepipeline.PipelineArtifactStoreArray{
			&codepipeline.PipelineArtifactStoreArgs{
				Location: bucket.Bucket,
				Type:     pulumi.String("S3"),
				EncryptionKey: &codepipeline.PipelineArtifactStoreEncryptionKeyArgs{
					Id:   key.Arn,
					Type: pulumi.String("KMS"),
				},
			},
		},
		Stages: stages,
		Tags:   d.Tags(base),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline %s: %w", base, err)
	}

	if err := startOnPush(ctx, d, base, spec, pipeline); err != nil {
		return nil, err
	}

	if d.SlackChannelArn != "" {
		events := make(pulumi.StringArray, 0, len(pipelineEvents))
		for _, e := range pipelineEvents {
			events = append(events, pulumi.String(e))
		}
		_, err = codestarnotifications.NewNotificationRule(ctx, base+"-notify", &codestarnotifications.NotificationRuleArgs{
			Name:         pulumi.String(base + "-notify"),
			DetailType:   pulumi.String("FULL"),
			Resource:     pipeline.Arn,
			EventTypeIds: events,
			Targets: codestarnotifications.NotificationRuleTargetArray{
				&codestarnotifications.NotificationRuleTargetArgs{
					Address: pulumi.String(d.SlackChannelArn),
					Type:    pulumi.String("AWSChatbotSlack"),
				},
			},
			Tags: d.Tags(base + "-notify"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create pipeline notifications: %w", err)
		}
	}

	return &Pipeline{Pipeline: pipeline, Project: project, ArtifactBucket: bucket}, nil
}

// CodeCommitRepositoryArn is the ARN of a repository in the deployment account
func (d *Deployment) CodeCommitRepositoryArn(repository string) string {
	return fmt.Sprintf("arn:aws:codecommit:%s:%s:%s", d.Region, d.AccountID, repository)
}

// SourceChangePattern matches pushes to branch of the repository
func SourceChangePattern(repositoryArn, branch string) string {
	data, _ := json.Marshal(map[string]interface{}{
		"source":      []string{"aws.codecommit"},
		"detail-type": []string{"CodeCommit Repository State Change"},
		"resources":   []string{repositoryArn},
		"detail": map[string][]string{
			"event":         {"referenceCreated", "referenceUpdated"},
			"referenceType": {"branch"},
			"referenceName": {branch},
		},
	})
	return string(data)
}

// startOnPush starts the pipeline when the trigger branch changes; the
// source action does not poll.
func startOnPush(ctx *pulumi.Context, d *Deployment, base string, spec pipelineSpec, pipeline *codepipeline.Pipeline) error {
	role, err := newRole(ctx, d, base+"-events", []string{"events.amazonaws.com"})
	if err != nil {
		return err
	}
	err = attachInlinePolicy(ctx, base+"-events-policy", role, []interface{}{pipeline.Arn}, func(args []interface{}) []Statement {
		return []Statement{Allow([]string{args[0].(string)}, "codepipeline:StartPipelineExecution")}
	})
	if err != nil {
		return err
	}

	ruleName := base + "-source-change"
	rule, err := cloudwatch.NewEventRule(ctx, ruleName, &cloudwatch.EventRuleArgs{
		Name:         pulumi.String(ruleName),
		Description:  pulumi.String(fmt.Sprintf("Pushes to %s@%s", spec.Repository, spec.Branch)),
		EventPattern: pulumi.String(SourceChangePattern(d.CodeCommitRepositoryArn(spec.Repository), spec.Branch)),
		Tags:         d.Tags(ruleName),
	})
	if err != nil {
		return fmt.Errorf("failed to create rule %s: %w", ruleName, err)
	}

	_, err = cloudwatch.NewEventTarget(ctx, ruleName+"-target", &cloudwatch.EventTargetArgs{
		Rule:    rule.Name,
		Arn:     pipeline.Arn,
		RoleArn: role.Arn,
	})
	if err != nil {
		return fmt.Errorf("failed to create target for %s: %w", ruleName, err)
	}
	return nil
}
