package infra

import (
	"fmt"
	"log"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/jrzesz33/encsys/internal/profile"
)

// Network is the reference every other group consumes
type Network struct {
	Vpc                  *ec2.Vpc
	CIDR                 string
	AvailabilityZones    []string
	Subnets              []profile.SubnetSpec
	PublicSubnetIDs      pulumi.StringArray
	PrivateSubnetIDs     pulumi.StringArray
	PrivateRouteTableIDs pulumi.StringArray
}

// ResolveAvailabilityZones returns the configured zones or the first two available
func ResolveAvailabilityZones(ctx *pulumi.Context, configured []string) ([]string, error) {
	if len(configured) > 0 {
		return configured, nil
	}

	zones, err := aws.GetAvailabilityZones(ctx, &aws.GetAvailabilityZonesArgs{
		State: pulumi.StringRef("available"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list availability zones: %w", err)
	}
	if len(zones.Names) < 2 {
		return nil, fmt.Errorf("need at least two availability zones, found %d", len(zones.Names))
	}
	return zones.Names[:2], nil
}

// BuildNetwork declares the VPC, subnets, gateways and route tables
func BuildNetwork(ctx *pulumi.Context, d *Deployment) (*Network, error) {
	azs, err := ResolveAvailabilityZones(ctx, d.AvailabilityZones)
	if err != nil {
		return nil, err
	}

	plan, err := d.Profile.SubnetPlan(azs)
	if err != nil {
		return nil, fmt.Errorf("failed to plan subnets: %w", err)
	}

	vpcName := fmt.Sprintf("vpc-%s-%s", d.AppName(), d.Env())
	log.Printf("Creating VPC %s (%s) across %v", vpcName, d.Profile.Network.CIDR, azs)
	vpc, err := ec2.NewVpc(ctx, vpcName, &ec2.VpcArgs{
		CidrBlock:          pulumi.String(d.Profile.Network.CIDR),
		EnableDnsHostnames: pulumi.Bool(true),
		EnableDnsSupport:   pulumi.Bool(true),
		Tags:               d.Tags(vpcName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create VPC: %w", err)
	}

	net := &Network{
		Vpc:               vpc,
		CIDR:              d.Profile.Network.CIDR,
		AvailabilityZones: azs,
		Subnets:           plan,
	}

	var publicSubnets, privateSubnets []*ec2.Subnet
	for _, spec := range plan {
		name := fmt.Sprintf("subnet-%s-%s-%s", d.AppName(), d.Env(), spec.Name)
		subnet, err := ec2.NewSubnet(ctx, name, &ec2.SubnetArgs{
			VpcId:               vpc.ID(),
			CidrBlock:           pulumi.String(spec.CIDR),
			AvailabilityZone:    pulumi.String(spec.AvailabilityZone),
			MapPublicIpOnLaunch: pulumi.Bool(spec.Tier == profile.TierPublic),
			Tags:                d.Tags(name),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create subnet %s: %w", spec.Name, err)
		}
		if spec.Tier == profile.TierPublic {
			publicSubnets = append(publicSubnets, subnet)
			net.PublicSubnetIDs = append(net.PublicSubnetIDs, subnet.ID())
		} else {
			privateSubnets = append(privateSubnets, subnet)
			net.PrivateSubnetIDs = append(net.PrivateSubnetIDs, subnet.ID())
		}
	}

	igwName := fmt.Sprintf("igw-%s-%s", d.AppName(), d.Env())
	igw, err := ec2.NewInternetGateway(ctx, igwName, &ec2.InternetGatewayArgs{
		VpcId: vpc.ID(),
		Tags:  d.Tags(igwName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create internet gateway: %w", err)
	}

	publicRTName := fmt.Sprintf("rt-%s-%s-public", d.AppName(), d.Env())
	publicRT, err := ec2.NewRouteTable(ctx, publicRTName, &ec2.RouteTableArgs{
		VpcId: vpc.ID(),
		Routes: ec2.RouteTableRouteArray{
			&ec2.RouteTableRouteArgs{
				CidrBlock: pulumi.String("0.0.0.0/0"),
				GatewayId: igw.ID(),
			},
		},
		Tags: d.Tags(publicRTName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create public route table: %w", err)
	}
	for i, subnet := range publicSubnets {
		_, err = ec2.NewRouteTableAssociation(ctx, fmt.Sprintf("%s-assoc-%d", publicRTName, i+1), &ec2.RouteTableAssociationArgs{
			SubnetId:     subnet.ID(),
			RouteTableId: publicRT.ID(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to associate public subnet %d: %w", i+1, err)
		}
	}

	natCount := 1
	if d.Profile.Network.NATPerZone {
		natCount = len(publicSubnets)
	}
	nats := make([]*ec2.NatGateway, 0, natCount)
	for i := 0; i < natCount; i++ {
		eipName := fmt.Sprintf("eip-%s-%s-nat-%d", d.AppName(), d.Env(), i+1)
		eip, err := ec2.NewEip(ctx, eipName, &ec2.EipArgs{
			Domain: pulumi.String("vpc"),
			Tags:   d.Tags(eipName),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create NAT elastic IP: %w", err)
		}

		natName := fmt.Sprintf("nat-%s-%s-%d", d.AppName(), d.Env(), i+1)
		nat, err := ec2.NewNatGateway(ctx, natName, &ec2.NatGatewayArgs{
			AllocationId: eip.ID(),
			SubnetId:     publicSubnets[i].ID(),
			Tags:         d.Tags(natName),
		}, pulumi.DependsOn([]pulumi.Resource{igw}))
		if err != nil {
			return nil, fmt.Errorf("failed to create NAT gateway: %w", err)
		}
		nats = append(nats, nat)
	}

	for i, subnet := range privateSubnets {
		nat := nats[i%len(nats)]
		rtName := fmt.Sprintf("rt-%s-%s-private-%d", d.AppName(), d.Env(), i+1)
		rt, err := ec2.NewRouteTable(ctx, rtName, &ec2.RouteTableArgs{
			VpcId: vpc.ID(),
			Routes: ec2.RouteTableRouteArray{
				&ec2.RouteTableRouteArgs{
					CidrBlock:    pulumi.String("0.0.0.0/0"),
					NatGatewayId: nat.ID(),
				},
			},
			Tags: d.Tags(rtName),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create private route table: %w", err)
		}
		_, err = ec2.NewRouteTableAssociation(ctx, rtName+"-assoc", &ec2.RouteTableAssociationArgs{
			SubnetId:     subnet.ID(),
			RouteTableId: rt.ID(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to associate private subnet %d: %w", i+1, err)
		}
		net.PrivateRouteTableIDs = append(net.PrivateRouteTableIDs, rt.ID())
	}

	endpointName := fmt.Sprintf("vpce-%s-%s-s3", d.AppName(), d.Env())
	_, err = ec2.NewVpcEndpoint(ctx, endpointName, &ec2.VpcEndpointArgs{
		VpcId:           vpc.ID(),
		ServiceName:     pulumi.String(fmt.Sprintf("com.amazonaws.%s.s3", d.Region)),
		VpcEndpointType: pulumi.String("Gateway"),
		RouteTableIds:   net.PrivateRouteTableIDs,
		Tags:            d.Tags(endpointName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 endpoint: %w", err)
	}

	return net, nil
}
