package appcontext

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestAppContext_ZeroValue(t *testing.T) {
	var c AppContext
	if c.AppName() != "" || c.Env() != "" {
		t.Errorf("zero AppContext = (%q, %q), want empty strings", c.AppName(), c.Env())
	}
	if err := c.Validate(); !errors.Is(err, ErrUninitialized) {
		t.Errorf("Validate() = %v, want ErrUninitialized", err)
	}

	var nilCtx *AppContext
	if nilCtx.AppName() != "" || nilCtx.Env() != "" {
		t.Error("nil AppContext should read as empty")
	}
}

func TestAppContext_Validate(t *testing.T) {
	tests := []struct {
		name    string
		props   Props
		wantErr bool
	}{
		{"both set", Props{ApplicationName: "skt", DeployEnvironment: "dev"}, false},
		{"missing app", Props{DeployEnvironment: "dev"}, true},
		{"missing env", Props{ApplicationName: "skt"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.props).Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAppContext_InitializeOverwrites(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.String().Draw(t, "a")
		e := rapid.String().Draw(t, "e")
		a2 := rapid.String().Draw(t, "a2")
		e2 := rapid.String().Draw(t, "e2")

		c := New(Props{ApplicationName: a, DeployEnvironment: e})
		if c.AppName() != a || c.Env() != e {
			t.Fatalf("got (%q, %q), want (%q, %q)", c.AppName(), c.Env(), a, e)
		}

		c.Initialize(Props{ApplicationName: a2, DeployEnvironment: e2})
		if c.AppName() != a2 || c.Env() != e2 {
			t.Fatalf("after re-initialize got (%q, %q), want (%q, %q)", c.AppName(), c.Env(), a2, e2)
		}
	})
}

func TestAppContext_InitializeDoesNotMerge(t *testing.T) {
	c := New(Props{ApplicationName: "skt", DeployEnvironment: "dev"})
	c.Initialize(Props{ApplicationName: "other"})

	if c.Env() != "" {
		t.Errorf("Env() = %q, want empty after initialize without environment", c.Env())
	}
}
