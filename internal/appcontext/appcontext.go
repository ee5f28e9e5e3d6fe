// Package appcontext holds the application name and deployment environment
// label shared by every component of a deployment run.
package appcontext

import (
	"errors"
)

// ErrUninitialized is returned by Validate when a field is empty
var ErrUninitialized = errors.New("application context is not initialized")

// Props are the values held by an AppContext
type Props struct {
	ApplicationName   string
	DeployEnvironment string
}

// AppContext is built once per deployment run and passed explicitly to every
// component that names or namespaces resources.
type AppContext struct {
	props Props
}

// New creates an AppContext initialized with props
func New(props Props) *AppContext {
	c := &AppContext{}
	c.Initialize(props)
	return c
}

// Initialize replaces the stored values. Fields are not merged.
func (c *AppContext) Initialize(props Props) {
	c.props = props
}

// AppName returns the application name, or "" if unset
func (c *AppContext) AppName() string {
	if c == nil {
		return ""
	}
	return c.props.ApplicationName
}

// Env returns the deployment environment label, or "" if unset
func (c *AppContext) Env() string {
	if c == nil {
		return ""
	}
	return c.props.DeployEnvironment
}

// Validate returns ErrUninitialized if either value is empty
func (c *AppContext) Validate() error {
	if c.AppName() == "" {
		return errors.Join(ErrUninitialized, errors.New("application name is required"))
	}
	if c.Env() == "" {
		return errors.Join(ErrUninitialized, errors.New("deploy environment is required"))
	}
	return nil
}
