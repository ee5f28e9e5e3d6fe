package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jrzesz33/encsys/internal/appcontext"
	"github.com/jrzesz33/encsys/internal/models"
	"github.com/jrzesz33/encsys/internal/params"
	"github.com/jrzesz33/encsys/internal/profile"
)

// Config holds the runtime configuration shared by the Lambda functions
type Config struct {
	// AppName and Target identify the deployment; Target.Label is the raw ENV value
	AppName string
	Target  profile.Target

	// AWS Configuration
	AWSRegion string

	// Batch submission
	BatchPrefix     string
	ComputeStrategy models.Strategy

	// DynamoDB job ledger (optional)
	JobTableName string

	// Alerting
	AlertTopicArn          string
	SlackWebhookSecretName string
	SlackChannel           string
	SlackUsername          string

	// REST trigger bearer token signing key (optional)
	AuthSecretName string

	// CloudWatch Logs groups for failed job log copies
	SourceLogGroup string
	ErrorLogGroup  string

	// MigrationTag is the value of the map-migrated tag
	MigrationTag string

	// ParamCacheTTL bounds how long parameter reads are reused across invocations
	ParamCacheTTL time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	appName := os.Getenv("APP_NAME")
	if appName == "" {
		return nil, fmt.Errorf("APP_NAME environment variable is required")
	}

	target, err := profile.Resolve(os.Getenv("ENV"), profile.WithCustomLabels())
	if err != nil {
		return nil, fmt.Errorf("invalid ENV value: %w", err)
	}

	awsRegion := os.Getenv("AWS_REGION")
	if awsRegion == "" {
		awsRegion = "us-east-1"
	}

	strategy := models.StrategyEC2
	if v := os.Getenv("COMPUTE_STRATEGY"); v != "" {
		strategy, err = params.ParseStrategy(v)
		if err != nil {
			return nil, fmt.Errorf("invalid COMPUTE_STRATEGY value: %w", err)
		}
	}

	slackChannel := os.Getenv("SLACK_CHANNEL")
	if slackChannel == "" {
		slackChannel = "aws-error-notice"
	}

	slackUsername := os.Getenv("SLACK_USERNAME")
	if slackUsername == "" {
		slackUsername = fmt.Sprintf("%s-batch-alerts", appName)
	}

	sourceLogGroup := os.Getenv("SOURCE_LOG_GROUP")
	if sourceLogGroup == "" {
		sourceLogGroup = "/aws/batch/job"
	}

	errorLogGroup := os.Getenv("ERROR_LOG_GROUP")
	if errorLogGroup == "" {
		errorLogGroup = fmt.Sprintf("/aws/batch/job-%s-error", target.Label)
	}

	cacheTTL := 5 * time.Minute
	if v := os.Getenv("PARAM_CACHE_TTL"); v != "" {
		cacheTTL, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PARAM_CACHE_TTL value %q: %w", v, err)
		}
	}

	return &Config{
		AppName:                appName,
		Target:                 target,
		AWSRegion:              awsRegion,
		BatchPrefix:            os.Getenv("BATCH_PREFIX"),
		ComputeStrategy:        strategy,
		JobTableName:           os.Getenv("JOB_TABLE_NAME"),
		AlertTopicArn:          os.Getenv("ALERT_TOPIC_ARN"),
		SlackWebhookSecretName: os.Getenv("SLACK_WEBHOOK_SECRET_NAME"),
		SlackChannel:           slackChannel,
		SlackUsername:          slackUsername,
		AuthSecretName:         os.Getenv("AUTH_SECRET_NAME"),
		SourceLogGroup:         sourceLogGroup,
		ErrorLogGroup:          errorLogGroup,
		MigrationTag:           os.Getenv("MIGRATION_TAG"),
		ParamCacheTTL:          cacheTTL,
	}, nil
}

// MustLoad loads configuration and panics if there's an error
// This is useful for Lambda handlers where configuration errors should prevent startup
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.AppName == "" {
		return fmt.Errorf("application name is required")
	}

	if !c.Target.Environment.IsValid() {
		return fmt.Errorf("invalid environment class: %s", c.Target.Environment)
	}

	if c.AWSRegion == "" {
		return fmt.Errorf("AWS region is required")
	}

	if !c.ComputeStrategy.IsValid() {
		return fmt.Errorf("invalid compute strategy: %s", c.ComputeStrategy)
	}

	return nil
}

// AppContext returns the application context of this deployment
func (c *Config) AppContext() *appcontext.AppContext {
	return appcontext.New(appcontext.Props{
		ApplicationName:   c.AppName,
		DeployEnvironment: c.Target.Label,
	})
}

// Namespace returns the parameter namespace of this deployment
func (c *Config) Namespace() params.Namespace {
	return params.Namespace{App: c.AppName, Env: c.Target.Label}
}

// IsDevelopment returns true if the deployment resolves to the development class
func (c *Config) IsDevelopment() bool {
	return c.Target.Environment == models.EnvironmentDevelopment
}

// IsStaging returns true if the deployment resolves to the staging class
func (c *Config) IsStaging() bool {
	return c.Target.Environment == models.EnvironmentStaging
}

// IsProduction returns true if the deployment resolves to the production class
func (c *Config) IsProduction() bool {
	return c.Target.Environment == models.EnvironmentProduction
}
