package config

import (
	"testing"
	"time"

	"github.com/jrzesz33/encsys/internal/models"
	"github.com/jrzesz33/encsys/internal/profile"
)

var configEnvVars = []string{
	"APP_NAME", "ENV", "AWS_REGION", "BATCH_PREFIX", "COMPUTE_STRATEGY", "JOB_TABLE_NAME",
	"ALERT_TOPIC_ARN", "SLACK_WEBHOOK_SECRET_NAME", "SLACK_CHANNEL", "SLACK_USERNAME",
	"AUTH_SECRET_NAME", "SOURCE_LOG_GROUP", "ERROR_LOG_GROUP", "MIGRATION_TAG", "PARAM_CACHE_TTL",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		envVars   map[string]string
		wantErr   bool
		checkFunc func(*testing.T, *Config)
	}{
		{
			name: "valid configuration with all env vars",
			envVars: map[string]string{
				"APP_NAME":         "skt",
				"ENV":              "prod",
				"AWS_REGION":       "ap-northeast-2",
				"BATCH_PREFIX":     "CopyS3",
				"COMPUTE_STRATEGY": "fgs",
				"JOB_TABLE_NAME":   "skt-jobs-prod",
				"PARAM_CACHE_TTL":  "30s",
			},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Target.Environment != models.EnvironmentProduction {
					t.Errorf("Environment = %v, want %v", cfg.Target.Environment, models.EnvironmentProduction)
				}
				if cfg.AWSRegion != "ap-northeast-2" {
					t.Errorf("AWSRegion = %v, want ap-northeast-2", cfg.AWSRegion)
				}
				if cfg.ComputeStrategy != models.StrategyFargateSpot {
					t.Errorf("ComputeStrategy = %v, want FGS", cfg.ComputeStrategy)
				}
				if cfg.ParamCacheTTL != 30*time.Second {
					t.Errorf("ParamCacheTTL = %v, want 30s", cfg.ParamCacheTTL)
				}
				if cfg.ErrorLogGroup != "/aws/batch/job-prod-error" {
					t.Errorf("ErrorLogGroup = %v", cfg.ErrorLogGroup)
				}
			},
		},
		{
			name:    "defaults when optional vars not set",
			envVars: map[string]string{"APP_NAME": "skt"},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Target.Label != profile.DefaultLabel {
					t.Errorf("Label = %v, want default %v", cfg.Target.Label, profile.DefaultLabel)
				}
				if cfg.AWSRegion != "us-east-1" {
					t.Errorf("AWSRegion = %v, want default us-east-1", cfg.AWSRegion)
				}
				if cfg.ComputeStrategy != models.StrategyEC2 {
					t.Errorf("ComputeStrategy = %v, want default EC2", cfg.ComputeStrategy)
				}
				if cfg.SourceLogGroup != "/aws/batch/job" {
					t.Errorf("SourceLogGroup = %v", cfg.SourceLogGroup)
				}
				if cfg.SlackChannel != "aws-error-notice" {
					t.Errorf("SlackChannel = %v", cfg.SlackChannel)
				}
				if cfg.ParamCacheTTL != 5*time.Minute {
					t.Errorf("ParamCacheTTL = %v, want 5m", cfg.ParamCacheTTL)
				}
			},
		},
		{
			name:    "custom label is kept verbatim",
			envVars: map[string]string{"APP_NAME": "skt", "ENV": "qa2"},
			checkFunc: func(t *testing.T, cfg *Config) {
				if cfg.Target.Label != "qa2" || cfg.Target.Environment != models.EnvironmentStaging {
					t.Errorf("Target = %+v", cfg.Target)
				}
				if got := cfg.Namespace().Path("k"); got != "/skt/qa2/k" {
					t.Errorf("Namespace().Path() = %v", got)
				}
			},
		},
		{
			name:    "missing APP_NAME",
			envVars: map[string]string{"ENV": "dev"},
			wantErr: true,
		},
		{
			name:    "invalid strategy",
			envVars: map[string]string{"APP_NAME": "skt", "COMPUTE_STRATEGY": "gpu"},
			wantErr: true,
		},
		{
			name:    "invalid cache ttl",
			envVars: map[string]string{"APP_NAME": "skt", "PARAM_CACHE_TTL": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range configEnvVars {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr && tt.checkFunc != nil {
				tt.checkFunc(t, cfg)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AppName:         "skt",
			Target:          profile.MustResolve("dev"),
			AWSRegion:       "us-east-1",
			ComputeStrategy: models.StrategyEC2,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing app name", func(c *Config) { c.AppName = "" }, true},
		{"unresolved environment", func(c *Config) { c.Target = profile.Target{Label: "dev"} }, true},
		{"missing aws region", func(c *Config) { c.AWSRegion = "" }, true},
		{"invalid strategy", func(c *Config) { c.ComputeStrategy = "GPU" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvironmentChecks(t *testing.T) {
	tests := []struct {
		name          string
		label         string
		isDevelopment bool
		isStaging     bool
		isProduction  bool
	}{
		{"dev environment", "dev", true, false, false},
		{"staging environment", "stage", false, true, false},
		{"production environment", "prod", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Target: profile.MustResolve(tt.label)}

			if got := cfg.IsDevelopment(); got != tt.isDevelopment {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.isDevelopment)
			}
			if got := cfg.IsStaging(); got != tt.isStaging {
				t.Errorf("IsStaging() = %v, want %v", got, tt.isStaging)
			}
			if got := cfg.IsProduction(); got != tt.isProduction {
				t.Errorf("IsProduction() = %v, want %v", got, tt.isProduction)
			}
		})
	}
}

func TestConfig_AppContextAndNamespace(t *testing.T) {
	cfg := &Config{AppName: "skt", Target: profile.MustResolve("dev")}

	ac := cfg.AppContext()
	if err := ac.Validate(); err != nil {
		t.Fatalf("AppContext().Validate() error = %v", err)
	}
	if ac.AppName() != "skt" || ac.Env() != "dev" {
		t.Errorf("AppContext() = %s/%s, want skt/dev", ac.AppName(), ac.Env())
	}
	if got := cfg.Namespace().Path("BatchCopyS3-EC2"); got != "/skt/dev/BatchCopyS3-EC2" {
		t.Errorf("Namespace().Path() = %v", got)
	}
}
