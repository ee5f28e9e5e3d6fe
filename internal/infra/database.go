package infra

import (
	"fmt"
	"log"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/rds"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const (
	databaseEngine        = "aurora-postgresql"
	databaseEngineVersion = "16.4"
	databasePort          = 5432
)

// BuildDatabase declares an Aurora PostgreSQL cluster in the private subnets
func BuildDatabase(ctx *pulumi.Context, d *Deployment, net *Network, sub *Substrate) (*rds.Cluster, error) {
	sizing := d.Profile.Database
	log.Printf("Creating Aurora cluster (%d x %s)", sizing.Instances, sizing.InstanceClass)

	groupName := d.Name("db-subnets")
	subnetGroup, err := rds.NewSubnetGroup(ctx, groupName, &rds.SubnetGroupArgs{
		Name:      pulumi.String(groupName),
		SubnetIds: net.PrivateSubnetIDs,
		Tags:      d.Tags(groupName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database subnet group: %w", err)
	}

	sgName := d.Name("db-sg")
	sg, err := ec2.NewSecurityGroup(ctx, sgName, &ec2.SecurityGroupArgs{
		Name:        pulumi.String(sgName),
		Description: pulumi.String("PostgreSQL from inside the VPC"),
		VpcId:       net.Vpc.ID(),
		Ingress: ec2.SecurityGroupIngressArray{
			ec2.SecurityGroupIngressArgs{
				Protocol:   pulumi.String("tcp"),
				FromPort:   pulumi.Int(databasePort),
				ToPort:     pulumi.Int(databasePort),
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
		return nil, fmt.Errorf("failed to create database security group: %w", err)
	}

	production := !d.Target.IsDevelopment()
	clusterName := d.Name("db")
	cluster, err := rds.NewCluster(ctx, clusterName, &rds.ClusterArgs{
		ClusterIdentifier:        pulumi.String(clusterName),
		Engine:                   pulumi.String(databaseEngine),
		EngineVersion:            pulumi.String(databaseEngineVersion),
		DatabaseName:             pulumi.String(d.AppName()),
		MasterUsername:           pulumi.String("dbadmin"),
		ManageMasterUserPassword: pulumi.Bool(true),
		DbSubnetGroupName:        subnetGroup.Name,
		VpcSecurityGroupIds:      pulumi.StringArray{sg.ID(), sub.SecurityGroup.ID()},
		StorageEncrypted:         pulumi.Bool(true),
		BackupRetentionPeriod:    pulumi.Int(backupRetention(production)),
		DeletionProtection:       pulumi.Bool(production),
		SkipFinalSnapshot:        pulumi.Bool(!production),
		FinalSnapshotIdentifier:  pulumi.String(clusterName + "-final"),
		Tags:                     d.Tags(clusterName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database cluster: %w", err)
	}

	for i := 0; i < sizing.Instances; i++ {
		instanceName := fmt.Sprintf("%s-%d", clusterName, i+1)
		_, err = rds.NewClusterInstance(ctx, instanceName, &rds.ClusterInstanceArgs{
			Identifier:         pulumi.String(instanceName),
			ClusterIdentifier:  cluster.ID(),
			InstanceClass:      pulumi.String(sizing.InstanceClass),
			Engine:             pulumi.String(databaseEngine),
			EngineVersion:      pulumi.String(databaseEngineVersion),
			DbSubnetGroupName:  subnetGroup.Name,
			PubliclyAccessible: pulumi.Bool(false),
			Tags:               d.Tags(instanceName),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create database instance %d: %w", i+1, err)
		}
	}

	if _, err := d.Params.PutJSON("DBEndpoint", map[string]pulumi.StringInput{
		"endpoint":       cluster.Endpoint,
		"readerEndpoint": cluster.ReaderEndpoint,
		"port":           pulumi.Sprintf("%d", cluster.Port),
	}, "Aurora cluster endpoints"); err != nil {
		return nil, err
	}

	return cluster, nil
}

func backupRetention(production bool) int {
	if production {
		return 7
	}
	return 1
}
