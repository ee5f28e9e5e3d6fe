// Package params names and stores path-namespaced parameters that let
// independently deployed components discover each other.
package params

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jrzesz33/encsys/internal/models"
)

// ErrNotFound is returned when a parameter does not exist
var ErrNotFound = errors.New("parameter not found")

// Well-known keys
const (
	KeyMediaConvertRole = "mediaConvertRole"
	KeyELBDNSName       = "ELBDNSName"
	KeyDBEndpoint       = "DBEndpoint"
	KeyTriggerAPIURL    = "TriggerApiUrl"
	KeyClusterName      = "ClusterName"

	batchKeyPrefix = "Batch"
)

// Path returns the full parameter name for a key
func Path(app, env, key string) string {
	return fmt.Sprintf("/%s/%s/%s", app, env, key)
}

// Namespace is the /{app}/{env}/ scope parameters are stored under
type Namespace struct {
	App string
	Env string
}

// Path returns the full parameter name for key
func (n Namespace) Path(key string) string {
	return Path(n.App, n.Env, key)
}

// Prefix returns the path prefix shared by every parameter of the namespace
func (n Namespace) Prefix() string {
	return fmt.Sprintf("/%s/%s/", n.App, n.Env)
}

// Key strips the namespace prefix from a full parameter name
func (n Namespace) Key(path string) string {
	return strings.TrimPrefix(path, n.Prefix())
}

// Validate checks that both namespace components are set
func (n Namespace) Validate() error {
	if n.App == "" || n.Env == "" {
		return fmt.Errorf("parameter namespace requires app and env, got %q/%q", n.App, n.Env)
	}
	return nil
}

// BatchKey returns the key a batch target is published under, e.g. BatchCopyS3-EC2
func BatchKey(prefix string, strategy models.Strategy) string {
	return fmt.Sprintf("%s%s-%s", batchKeyPrefix, prefix, strategy)
}

// ParseBatchKey splits a batch key into prefix and strategy
func ParseBatchKey(key string) (string, models.Strategy, bool) {
	if !strings.HasPrefix(key, batchKeyPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(key, batchKeyPrefix)
	i := strings.LastIndex(rest, "-")
	if i <= 0 {
		return "", "", false
	}
	strategy := models.Strategy(rest[i+1:])
	if !strategy.IsValid() {
		return "", "", false
	}
	return rest[:i], strategy, true
}

// ParseStrategy parses a strategy name, case-insensitively
func ParseStrategy(s string) (models.Strategy, error) {
	strategy := models.Strategy(strings.ToUpper(strings.TrimSpace(s)))
	if !strategy.IsValid() {
		return "", fmt.Errorf("invalid compute strategy %q (must be EC2 or FGS)", s)
	}
	return strategy, nil
}

// BatchTarget is the published value of a batch key
type BatchTarget struct {
	JobQueueName      string `json:"jobQueueName"`
	JobDefinitionName string `json:"jobDefinitionName"`
}

// Encode returns the JSON form of the target
func (b BatchTarget) Encode() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch target: %w", err)
	}
	return string(data), nil
}

// DecodeBatchTarget parses a published batch target. Queue and definition
// values may be names or ARNs; both are reduced to names.
func DecodeBatchTarget(value string) (BatchTarget, error) {
	var b BatchTarget
	if err := json.Unmarshal([]byte(value), &b); err != nil {
		return BatchTarget{}, fmt.Errorf("failed to parse batch target: %w", err)
	}
	if b.JobQueueName == "" || b.JobDefinitionName == "" {
		return BatchTarget{}, fmt.Errorf("batch target requires jobQueueName and jobDefinitionName")
	}
	b.JobQueueName = ResourceName(b.JobQueueName)
	b.JobDefinitionName = ResourceName(b.JobDefinitionName)
	return b, nil
}

// ResourceName reduces an ARN such as
// arn:aws:batch:us-east-1:123456789012:job-definition/JD-dev-CopyS3:4 to its
// resource name (JD-dev-CopyS3). Plain names pass through, minus a revision.
func ResourceName(v string) string {
	if i := strings.LastIndex(v, "/"); i >= 0 {
		v = v[i+1:]
	}
	if i := strings.LastIndex(v, ":"); i >= 0 && len(v)-i <= 4 {
		v = v[:i]
	}
	return v
}

// Store reads and writes parameters of one namespace
type Store interface {
	Put(ctx context.Context, key, value, description string) error
	Get(ctx context.Context, key string) (string, error)
	List(ctx context.Context) (map[string]string, error)
}

// GetBatchTarget resolves the batch target for prefix and strategy
func GetBatchTarget(ctx context.Context, store Store, prefix string, strategy models.Strategy) (BatchTarget, error) {
	key := BatchKey(prefix, strategy)
	value, err := store.Get(ctx, key)
	if err != nil {
		return BatchTarget{}, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return DecodeBatchTarget(value)
}
