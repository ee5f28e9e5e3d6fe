package profile

import (
	"github.com/jrzesz33/encsys/internal/models"
)

// NetworkSizing describes the VPC address plan
type NetworkSizing struct {
	CIDR              string
	PublicSubnetMask  int
	PrivateSubnetMask int
	// NATPerZone places one NAT gateway in every public subnet instead of one shared
	NATPerZone bool
}

// BatchEC2Sizing sizes the on-demand EC2 compute environment and its job definition
type BatchEC2Sizing struct {
	MinVCPUs           int
	MaxVCPUs           int
	DesiredVCPUs       int
	InstanceTypes      []string
	VolumeSizeGiB      int
	ContainerVCPUs     int
	ContainerMemoryMiB int
	ComputeOrder       int
	QueuePriority      int
}

// BatchFargateSizing sizes the Fargate Spot compute environment. Container
// values are strings because Fargate resource requirements are strings.
type BatchFargateSizing struct {
	MaxVCPUs        int
	ContainerVCPU   string
	ContainerMemory string
	ComputeOrder    int
	QueuePriority   int
}

// WebSizing sizes the load-balanced web service
type WebSizing struct {
	TaskCPU          int
	TaskMemoryMiB    int
	DesiredCount     int
	MaxCount         int
	CPUTargetPercent float64
}

// DatabaseSizing sizes the Aurora cluster
type DatabaseSizing struct {
	InstanceClass string
	Instances     int
}

// BastionSizing sizes the operator host
type BastionSizing struct {
	InstanceType  string
	VolumeSizeGiB int
}

// DeploymentProfile is the full set of sizing and networking constants for one
// environment class. Exactly one is active per deployment run.
type DeploymentProfile struct {
	Target           Target
	Network          NetworkSizing
	BatchEC2         BatchEC2Sizing
	BatchFargate     BatchFargateSizing
	Web              WebSizing
	Database         DatabaseSizing
	Bastion          BastionSizing
	LogRetentionDays int
}

// For returns the profile for the target. Staging and production share the
// non-dev profile.
func For(target Target) DeploymentProfile {
	var p DeploymentProfile
	if target.Environment == models.EnvironmentDevelopment {
		p = devProfile()
	} else {
		p = nonDevProfile()
	}
	p.Target = target
	return p
}

// TriggerBranch returns the source branch CI/CD pipelines follow
func (p DeploymentProfile) TriggerBranch() string {
	if p.Target.IsDevelopment() {
		return p.Target.Label
	}
	return "main"
}

func devProfile() DeploymentProfile {
	return DeploymentProfile{
		Network: NetworkSizing{
			CIDR:              "10.0.0.0/16",
			PublicSubnetMask:  24,
			PrivateSubnetMask: 24,
		},
		BatchEC2: BatchEC2Sizing{
			MinVCPUs:           0,
			MaxVCPUs:           16,
			DesiredVCPUs:       0,
			InstanceTypes:      []string{"c5.xlarge"},
			VolumeSizeGiB:      100,
			ContainerVCPUs:     2,
			ContainerMemoryMiB: 4096,
			ComputeOrder:       1,
			QueuePriority:      2,
		},
		BatchFargate: BatchFargateSizing{
			MaxVCPUs:        16,
			ContainerVCPU:   "1",
			ContainerMemory: "2048",
			ComputeOrder:    1,
			QueuePriority:   2,
		},
		Web: WebSizing{
			TaskCPU:          512,
			TaskMemoryMiB:    4096,
			DesiredCount:     1,
			MaxCount:         2,
			CPUTargetPercent: 70,
		},
		Database: DatabaseSizing{
			InstanceClass: "db.t4g.medium",
			Instances:     1,
		},
		Bastion: BastionSizing{
			InstanceType:  "t3.small",
			VolumeSizeGiB: 100,
		},
		LogRetentionDays: 30,
	}
}

func nonDevProfile() DeploymentProfile {
	return DeploymentProfile{
		Network: NetworkSizing{
			CIDR:              "10.0.0.0/16",
			PublicSubnetMask:  20,
			PrivateSubnetMask: 24,
			NATPerZone:        true,
		},
		BatchEC2: BatchEC2Sizing{
			MinVCPUs:           0,
			MaxVCPUs:           32,
			DesiredVCPUs:       0,
			InstanceTypes:      []string{"c5.2xlarge"},
			VolumeSizeGiB:      500,
			ContainerVCPUs:     4,
			ContainerMemoryMiB: 8192,
			ComputeOrder:       1,
			QueuePriority:      1,
		},
		BatchFargate: BatchFargateSizing{
			MaxVCPUs:        32,
			ContainerVCPU:   "2",
			ContainerMemory: "4096",
			ComputeOrder:    1,
			QueuePriority:   1,
		},
		Web: WebSizing{
			TaskCPU:          512,
			TaskMemoryMiB:    4096,
			DesiredCount:     2,
			MaxCount:         3,
			CPUTargetPercent: 70,
		},
		Database: DatabaseSizing{
			InstanceClass: "db.r6g.large",
			Instances:     2,
		},
		Bastion: BastionSizing{
			InstanceType:  "t3.small",
			VolumeSizeGiB: 100,
		},
		LogRetentionDays: 180,
	}
}
