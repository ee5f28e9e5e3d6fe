package topology

import (
	"fmt"
	"log"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/rds"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/jrzesz33/encsys/internal/infra"
	"github.com/jrzesz33/encsys/internal/stackconfig"
)

// Outputs holds the references produced by each built group
type Outputs struct {
	Groups []Group

	Network        *infra.Network
	Substrate      *infra.Substrate
	Bastion        *ec2.Instance
	TagAutomation  *infra.Function
	ScheduledWorks *infra.Function
	Batch          *infra.BatchQueues
	Alerts         *infra.Alerts
	RestTrigger    *infra.RestTrigger
	Database       *rds.Cluster
	Web            *infra.WebService
	Pipeline       *infra.Pipeline
}

// Assemble builds groups in the order given; Plan output is already ranked.
// The first failure aborts the run.
func Assemble(ctx *pulumi.Context, cfg *stackconfig.Config, groups []Group) (*Outputs, error) {
	d, err := infra.NewDeployment(ctx, cfg)
	if err != nil {
		return nil, err
	}

	out := &Outputs{Groups: groups}
	for _, g := range groups {
		log.Printf("Building %s group...", g)
		if err := out.build(ctx, d, g); err != nil {
			return nil, fmt.Errorf("failed to build %s: %w", g, err)
		}
	}

	log.Printf("Topology assembled: %v", groups)
	return out, nil
}

func (o *Outputs) build(ctx *pulumi.Context, d *infra.Deployment, g Group) error {
	if g != Network && o.Network == nil {
		return fmt.Errorf("network group has not been built")
	}
	needsSubstrate := g == Bastion || g == Batch || g == Database || g == WebService
	if needsSubstrate && o.Substrate == nil {
		return fmt.Errorf("substrate group has not been built")
	}

	var err error
	switch g {
	case Network:
		o.Network, err = infra.BuildNetwork(ctx, d)
		if err == nil {
			ctx.Export("vpcId", o.Network.Vpc.ID())
			ctx.Export("publicSubnetIds", o.Network.PublicSubnetIDs)
			ctx.Export("privateSubnetIds", o.Network.PrivateSubnetIDs)
		}
	case Substrate:
		o.Substrate, err = infra.BuildSubstrate(ctx, d, o.Network)
		if err == nil {
			ctx.Export("ecsClusterName", o.Substrate.Cluster.Name)
			ctx.Export("mediaConvertRoleArn", o.Substrate.MediaConvertRole.Arn)
		}
	case Bastion:
		o.Bastion, err = infra.BuildBastion(ctx, d, o.Network)
		if err == nil {
			ctx.Export("bastionInstanceId", o.Bastion.ID())
			ctx.Export("bastionPublicIp", o.Bastion.PublicIp)
		}
	case TagAutomation:
		o.TagAutomation, err = infra.BuildTagAutomation(ctx, d)
		if err == nil {
			ctx.Export("ebsTaggerLambdaArn", o.TagAutomation.Lambda.Arn)
		}
	case ScheduledWorks:
		o.ScheduledWorks, err = infra.BuildScheduledWorks(ctx, d)
		if err == nil {
			ctx.Export("batchPollerLambdaArn", o.ScheduledWorks.Lambda.Arn)
		}
	case Batch:
		o.Batch, err = infra.BuildBatch(ctx, d, o.Network, o.Substrate)
		if err == nil {
			queues := pulumi.StringArray{}
			for _, t := range o.Batch.Targets {
				queues = append(queues, t.JobQueue.Name)
			}
			ctx.Export("jobQueueNames", queues)
			ctx.Export("jobTableName", o.Batch.JobTable.Name)
		}
	case BatchAlerts:
		o.Alerts, err = infra.BuildBatchAlerts(ctx, d, o.Batch)
		if err == nil {
			ctx.Export("alertTopicArn", o.Alerts.Topic.Arn)
			ctx.Export("batchNotifierLambdaArn", o.Alerts.Notifier.Lambda.Arn)
			ctx.Export("notifierDlqUrl", o.Alerts.DeadLetter.Url)
		}
	case RestTrigger:
		o.RestTrigger, err = infra.BuildRestTrigger(ctx, d, o.Batch)
		if err == nil {
			ctx.Export("triggerApiUrl", o.RestTrigger.URL)
		}
	case Database:
		o.Database, err = infra.BuildDatabase(ctx, d, o.Network, o.Substrate)
		if err == nil {
			ctx.Export("dbEndpoint", o.Database.Endpoint)
			ctx.Export("dbReaderEndpoint", o.Database.ReaderEndpoint)
		}
	case WebService:
		o.Web, err = infra.BuildWebService(ctx, d, o.Network, o.Substrate)
		if err == nil {
			ctx.Export("albDnsName", o.Web.LoadBalancer.DnsName)
			ctx.Export("webRepositoryUrl", o.Web.Repository.RepositoryUrl)
		}
	case Pipeline:
		o.Pipeline, err = infra.BuildPipeline(ctx, d)
		if err == nil {
			ctx.Export("pipelineName", o.Pipeline.Pipeline.Name)
		}
	default:
		err = fmt.Errorf("unknown resource group %d", int(g))
	}
	return err
}
