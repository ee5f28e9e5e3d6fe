// Package stackconfig reads the Pulumi stack configuration once per
// deployment run and turns it into the explicit values every resource
// group is built from.
package stackconfig

import (
	"fmt"
	"log"
	"strings"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"

	"github.com/jrzesz33/encsys/internal/appcontext"
	"github.com/jrzesz33/encsys/internal/profile"
	"github.com/jrzesz33/encsys/pkg/workloads"
)

const (
	DefaultApplicationName   = "encsys"
	DefaultRegion            = "us-east-1"
	DefaultTopology          = "full"
	DefaultLambdaArtifactDir = "../build"
	DefaultScheduleMinute    = "0/1"
	DefaultScheduleHour      = "*"
)

// Source is the subset of *config.Config the loader reads
type Source interface {
	Get(key string) string
	GetBool(key string) bool
}

// Config is everything a deployment run needs, resolved up front
type Config struct {
	App     *appcontext.AppContext
	Target  profile.Target
	Profile profile.DeploymentProfile
	Region  string

	Topology string
	Groups   []string

	AvailabilityZones []string
	AllowedCIDRs      []string
	KeyPairName       string
	MigrationTag      string
	SlackChannelArn   string
	SourceRepository  string
	WebRepository     string
	LambdaArtifactDir string
	ScheduleMinute    string
	ScheduleHour      string

	// TriggerAuth requires a bearer token signed with the trigger-auth secret
	TriggerAuth bool

	Workloads *workloads.Catalog
}

// Load reads the project namespace and aws:region from the stack config
func Load(ctx *pulumi.Context) (*Config, error) {
	region := config.New(ctx, "aws").Get("region")
	return Parse(config.New(ctx, ""), region)
}

// Parse builds a Config from any key/value source
func Parse(src Source, region string) (*Config, error) {
	var opts []profile.ResolveOption
	if src.GetBool("allowCustomEnvironment") {
		opts = append(opts, profile.WithCustomLabels())
	}

	target, err := profile.Resolve(src.Get("environment"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve environment: %w", err)
	}

	appName := withDefault(src.Get("applicationName"), DefaultApplicationName)
	app := appcontext.New(appcontext.Props{
		ApplicationName:   appName,
		DeployEnvironment: target.Label,
	})
	if err := app.Validate(); err != nil {
		return nil, err
	}

	catalog, err := workloads.LoadFile(src.Get("workloadsFile"))
	if err != nil {
		return nil, fmt.Errorf("failed to load workloads: %w", err)
	}

	cfg := &Config{
		App:               app,
		Target:            target,
		Profile:           profile.For(target),
		Region:            withDefault(region, DefaultRegion),
		Topology:          withDefault(src.Get("topology"), DefaultTopology),
		Groups:            SplitList(src.Get("groups")),
		AvailabilityZones: SplitList(src.Get("availabilityZones")),
		AllowedCIDRs:      SplitList(src.Get("allowedCidrs")),
		KeyPairName:       src.Get("keyPairName"),
		MigrationTag:      src.Get("migrationTag"),
		SlackChannelArn:   src.Get("slackChannelArn"),
		SourceRepository:  withDefault(src.Get("sourceRepository"), appName),
		WebRepository:     withDefault(src.Get("webRepository"), appName+"-web"),
		LambdaArtifactDir: strings.TrimSuffix(withDefault(src.Get("lambdaArtifactDir"), DefaultLambdaArtifactDir), "/"),
		ScheduleMinute:    withDefault(src.Get("scheduleMinute"), DefaultScheduleMinute),
		ScheduleHour:      withDefault(src.Get("scheduleHour"), DefaultScheduleHour),
		TriggerAuth:       src.GetBool("triggerAuth"),
		Workloads:         catalog,
	}
	if len(cfg.AllowedCIDRs) == 0 {
		cfg.AllowedCIDRs = []string{cfg.Profile.Network.CIDR}
	}

	log.Printf("Deploying %s to environment %s (%s), topology %s, region %s",
		appName, target.Label, target.Environment, cfg.Topology, cfg.Region)
	return cfg, nil
}

// Artifact returns the Lambda zip path for a binary
func (c *Config) Artifact(name string) string {
	return fmt.Sprintf("%s/%s.zip", c.LambdaArtifactDir, name)
}

// SplitList splits a comma separated config value, dropping blanks
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func withDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
