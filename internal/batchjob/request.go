// Package batchjob submits AWS Batch jobs on behalf of the REST trigger.
package batchjob

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jrzesz33/encsys/internal/models"
	"github.com/jrzesz33/encsys/internal/params"
)

// ErrBadRequest is returned for request bodies that cannot be submitted
var ErrBadRequest = errors.New("bad request")

var bodyReplacer = strings.NewReplacer("\t", "", "\n", "", "\r", "")

// CleanBody strips tabs and newlines and drops trailing commas before a closing brace or bracket
func CleanBody(s string) string {
	s = bodyReplacer.Replace(s)
	s = strings.ReplaceAll(s, ",}", "}")
	s = strings.ReplaceAll(s, ",]", "]")
	return s
}

// Request is the trigger body
type Request struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`

	// Prefix and Strategy override the function defaults
	Prefix   string `json:"prefix,omitempty"`
	Strategy string `json:"strategy,omitempty"`

	// Environment adds container environment overrides
	Environment map[string]string `json:"environment,omitempty"`
}

// ParseRequest cleans and decodes a trigger body
func ParseRequest(body string) (*Request, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: empty body", ErrBadRequest)
	}

	var req Request
	if err := json.Unmarshal([]byte(CleanBody(body)), &req); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrBadRequest, err)
	}

	if req.Source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrBadRequest)
	}
	if req.Destination == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrBadRequest)
	}
	if req.Strategy != "" {
		if _, err := params.ParseStrategy(req.Strategy); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}
	for name := range req.Environment {
		if name == "source" || name == "destination" {
			return nil, fmt.Errorf("%w: environment cannot override %s", ErrBadRequest, name)
		}
	}

	return &req, nil
}

// ResolvedStrategy returns the request strategy or the fallback
func (r *Request) ResolvedStrategy(fallback models.Strategy) models.Strategy {
	if r.Strategy == "" {
		return fallback
	}
	s, err := params.ParseStrategy(r.Strategy)
	if err != nil {
		return fallback
	}
	return s
}

// EnvironmentOverrides returns source, destination, then the extra variables sorted by name
func (r *Request) EnvironmentOverrides() []EnvVar {
	vars := []EnvVar{
		{Name: "source", Value: r.Source},
		{Name: "destination", Value: r.Destination},
	}

	names := make([]string, 0, len(r.Environment))
	for name := range r.Environment {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		vars = append(vars, EnvVar{Name: name, Value: r.Environment[name]})
	}
	return vars
}

// EnvVar is one container environment override
type EnvVar struct {
	Name  string
	Value string
}
