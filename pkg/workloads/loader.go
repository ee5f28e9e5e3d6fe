// Package workloads loads the catalog of batch workloads. Each workload gets
// an EC2 and a Fargate Spot queue/job-definition pair.
package workloads

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed workloads.yaml
var defaultCatalogYAML []byte

var prefixPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// Workload is one containerized batch job type
type Workload struct {
	Prefix      string            `yaml:"prefix"`
	Description string            `yaml:"description"`
	Repository  string            `yaml:"repository,omitempty"`
	ImageTag    string            `yaml:"imageTag,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

// Catalog is the root of the workloads file
type Catalog struct {
	Workloads []Workload `yaml:"workloads"`
}

// RepositoryName returns the ECR repository holding the workload image
func (w Workload) RepositoryName(app string) string {
	if w.Repository != "" {
		return w.Repository
	}
	return fmt.Sprintf("%s-%s", app, strings.ToLower(w.Prefix))
}

// Tag returns the image tag, defaulting to latest
func (w Workload) Tag() string {
	if w.ImageTag == "" {
		return "latest"
	}
	return w.ImageTag
}

// EnvironmentNames returns the default container environment keys in order
func (w Workload) EnvironmentNames() []string {
	names := make([]string, 0, len(w.Environment))
	for k := range w.Environment {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Load returns the embedded catalog
func Load() (*Catalog, error) {
	return Parse(defaultCatalogYAML)
}

// LoadFile reads a catalog from path, or the embedded one when path is empty
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Load()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workloads file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog
func Parse(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse workloads: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Validate checks prefixes are present, well formed and unique
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Workloads))
	for i, w := range c.Workloads {
		if !prefixPattern.MatchString(w.Prefix) {
			return fmt.Errorf("workload %d: prefix %q must be alphanumeric and start with a letter", i, w.Prefix)
		}
		if seen[w.Prefix] {
			return fmt.Errorf("workload %d: duplicate prefix %q", i, w.Prefix)
		}
		seen[w.Prefix] = true
	}
	return nil
}

// Find returns the workload with the given prefix
func (c *Catalog) Find(prefix string) (*Workload, error) {
	for i := range c.Workloads {
		if c.Workloads[i].Prefix == prefix {
			return &c.Workloads[i], nil
		}
	}
	return nil, fmt.Errorf("workload not found: %s", prefix)
}
