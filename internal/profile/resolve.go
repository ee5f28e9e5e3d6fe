// Package profile resolves a deployment label into an environment class and
// the sizing and networking profile for that class.
package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jrzesz33/encsys/internal/models"
)

// DefaultLabel is used when no environment label is supplied
const DefaultLabel = "dev"

// ErrUnknownEnvironment is returned for labels outside the known set
var ErrUnknownEnvironment = errors.New("unknown environment label")

var knownLabels = map[string]models.Environment{
	"dev":         models.EnvironmentDevelopment,
	"development": models.EnvironmentDevelopment,
	"stage":       models.EnvironmentStaging,
	"staging":     models.EnvironmentStaging,
	"prod":        models.EnvironmentProduction,
	"production":  models.EnvironmentProduction,
}

// Target is a resolved deployment environment. Label is used verbatim for
// resource names, tags and parameter paths.
type Target struct {
	Label       string
	Environment models.Environment
}

// IsDevelopment returns true if the target resolves to the development class
func (t Target) IsDevelopment() bool {
	return t.Environment == models.EnvironmentDevelopment
}

// String returns the label
func (t Target) String() string {
	return t.Label
}

type resolveOptions struct {
	allowCustom bool
}

// ResolveOption configures Resolve
type ResolveOption func(*resolveOptions)

// WithCustomLabels accepts labels outside the known set and resolves them to
// the staging class.
func WithCustomLabels() ResolveOption {
	return func(o *resolveOptions) {
		o.allowCustom = true
	}
}

// Resolve maps an environment label to a Target. An empty label resolves to
// DefaultLabel.
func Resolve(label string, opts ...ResolveOption) (Target, error) {
	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultLabel
	}

	if env, ok := knownLabels[strings.ToLower(label)]; ok {
		return Target{Label: label, Environment: env}, nil
	}

	if !o.allowCustom {
		return Target{}, fmt.Errorf("%w: %q (must be dev, stage or prod)", ErrUnknownEnvironment, label)
	}

	return Target{Label: label, Environment: models.EnvironmentStaging}, nil
}

// MustResolve resolves the label and panics on error
func MustResolve(label string, opts ...ResolveOption) Target {
	t, err := Resolve(label, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve environment: %v", err))
	}
	return t
}
