// Package tagging tags EBS volumes created inside the deployment.
package tagging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/jrzesz33/encsys/internal/models"
)

// Tag keys applied to every resource of a deployment
const (
	TagProject           = "Project"
	TagDeployEnvironment = "DeployEnvironment"
	TagMigration         = "map-migrated"
)

// EC2API is the subset of the EC2 client used by the tagger
type EC2API interface {
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
}

// Response is returned to the Lambda runtime
type Response struct {
	Message   string   `json:"message"`
	VolumeIDs []string `json:"volumeIds,omitempty"`
}

// EBSTagger applies deployment tags to new volumes
type EBSTagger struct {
	client       EC2API
	appName      string
	env          string
	migrationTag string
	logger       *slog.Logger
}

// NewEBSTagger creates a tagger. An empty migrationTag omits the map-migrated tag.
func NewEBSTagger(client EC2API, appName, env, migrationTag string, logger *slog.Logger) *EBSTagger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EBSTagger{
		client:       client,
		appName:      appName,
		env:          env,
		migrationTag: migrationTag,
		logger:       logger,
	}
}

// VolumeID extracts the volume id from an EBS resource ARN
func VolumeID(resource string) (string, bool) {
	parts := strings.Split(resource, "/")
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Tags returns the tags applied to each volume
func (t *EBSTagger) Tags() []types.Tag {
	tags := []types.Tag{
		{Key: aws.String(TagProject), Value: aws.String(t.appName)},
		{Key: aws.String(TagDeployEnvironment), Value: aws.String(t.env)},
	}
	if t.migrationTag != "" {
		tags = append(tags, types.Tag{Key: aws.String(TagMigration), Value: aws.String(t.migrationTag)})
	}
	return tags
}

// HandleEvent tags the volume of a createVolume notification
func (t *EBSTagger) HandleEvent(ctx context.Context, event events.CloudWatchEvent) (Response, error) {
	resp := Response{Message: "TaggingEBS"}

	var detail models.EBSVolumeNotification
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return resp, fmt.Errorf("failed to parse EBS notification: %w", err)
	}

	if detail.Event != models.EBSEventCreateVolume {
		t.logger.InfoContext(ctx, "Not supported action", slog.String("event", detail.Event))
		return resp, nil
	}

	if len(event.Resources) == 0 {
		t.logger.WarnContext(ctx, "createVolume event without resources")
		return resp, nil
	}

	id, ok := VolumeID(event.Resources[0])
	if !ok {
		return resp, fmt.Errorf("unexpected volume resource %q", event.Resources[0])
	}

	_, err := t.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags:      t.Tags(),
	})
	if err != nil {
		return resp, fmt.Errorf("failed to tag volume %s: %w", id, err)
	}

	t.logger.InfoContext(ctx, "tagged volume", slog.String("volume_id", id))
	resp.VolumeIDs = []string{id}
	return resp, nil
}
