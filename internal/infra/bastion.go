package infra

import (
	"fmt"
	"log"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

var bastionPorts = []int{22, 80, 443}

// BuildBastion declares an SSM-managed host in the first public subnet
func BuildBastion(ctx *pulumi.Context, d *Deployment, net *Network) (*ec2.Instance, error) {
	if len(net.PublicSubnetIDs) == 0 {
		return nil, fmt.Errorf("bastion requires a public subnet")
	}

	ami, err := ec2.LookupAmi(ctx, &ec2.LookupAmiArgs{
		Owners:     []string{"amazon"},
		MostRecent: pulumi.BoolRef(true),
		Filters: []ec2.GetAmiFilter{
			{Name: "name", Values: []string{"al2023-ami-2023.*-x86_64"}},
			{Name: "virtualization-type", Values: []string{"hvm"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up bastion AMI: %w", err)
	}

	cidrs := make(pulumi.StringArray, 0, len(d.AllowedCIDRs))
	for _, c := range d.AllowedCIDRs {
		cidrs = append(cidrs, pulumi.String(c))
	}
	ingress := make(ec2.SecurityGroupIngressArray, 0, len(bastionPorts))
	for _, port := range bastionPorts {
		ingress = append(ingress, ec2.SecurityGroupIngressArgs{
			Protocol:   pulumi.String("tcp"),
			FromPort:   pulumi.Int(port),
			ToPort:     pulumi.Int(port),
			CidrBlocks: cidrs,
		})
	}

	sgName := d.Name("bastion-sg")
	sg, err := ec2.NewSecurityGroup(ctx, sgName, &ec2.SecurityGroupArgs{
		Name:        pulumi.String(sgName),
		Description: pulumi.String("Bastion access"),
		VpcId:       net.Vpc.ID(),
		Ingress:     ingress,
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
		return nil, fmt.Errorf("failed to create bastion security group: %w", err)
	}

	role, err := newRole(ctx, d, d.Name("bastion"), []string{"ec2.amazonaws.com"}, PolicySSMManagedInstance)
	if err != nil {
		return nil, err
	}
	profileName := d.Name("bastion-profile")
	instanceProfile, err := iam.NewInstanceProfile(ctx, profileName, &iam.InstanceProfileArgs{
		Name: pulumi.String(profileName),
		Role: role.Name,
		Tags: d.Tags(profileName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bastion instance profile: %w", err)
	}

	args := &ec2.InstanceArgs{
		Ami:                 pulumi.String(ami.Id),
		InstanceType:        pulumi.String(d.Profile.Bastion.InstanceType),
		SubnetId:            net.PublicSubnetIDs[0].ToStringOutput(),
		VpcSecurityGroupIds: pulumi.StringArray{sg.ID()},
		IamInstanceProfile:  instanceProfile.Name,
		RootBlockDevice: &ec2.InstanceRootBlockDeviceArgs{
			VolumeSize: pulumi.Int(d.Profile.Bastion.VolumeSizeGiB),
			VolumeType: pulumi.String("gp3"),
			Encrypted:  pulumi.Bool(true),
		},
		MetadataOptions: &ec2.InstanceMetadataOptionsArgs{
			HttpTokens: pulumi.String("required"),
		},
		Tags: d.Tags(d.Name("bastion")),
	}
	if d.KeyPairName != "" {
		args.KeyName = pulumi.String(d.KeyPairName)
	}

	log.Printf("Creating bastion host (%s)", d.Profile.Bastion.InstanceType)
	host, err := ec2.NewInstance(ctx, d.Name("bastion"), args)
	if err != nil {
		return nil, fmt.Errorf("failed to create bastion host: %w", err)
	}
	return host, nil
}
