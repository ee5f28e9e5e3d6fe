package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jrzesz33/encsys/internal/batchalert"
	"github.com/jrzesz33/encsys/internal/logging"
	"github.com/jrzesz33/encsys/internal/messaging"
	"github.com/jrzesz33/encsys/internal/notification"
	"github.com/jrzesz33/encsys/internal/repository"
	"github.com/jrzesz33/encsys/internal/secrets"
	appconfig "github.com/jrzesz33/encsys/pkg/config"
)

func main() {
	logger := logging.New("batchnotifier")

	cfg := appconfig.MustLoad()
	if err := cfg.AppContext().Validate(); err != nil {
		panic(fmt.Sprintf("invalid application context: %v", err))
	}

	logger.Info("batch notifier lambda starting",
		slog.String("app", cfg.AppName),
		slog.String("env", cfg.Target.Label),
		slog.String("region", cfg.AWSRegion),
		slog.String("error_log_group", cfg.ErrorLogGroup),
	)

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		logger.Error("failed to load AWS config", slog.String("error", err.Error()))
		panic(fmt.Sprintf("failed to load AWS config: %v", err))
	}

	notifierCfg := batchalert.NotifierConfig{
		Copier:            batchalert.NewLogCopier(cloudwatchlogs.NewFromConfig(awsCfg), cfg.SourceLogGroup, cfg.ErrorLogGroup, logger),
		DeployEnvironment: cfg.Target.Label,
		Region:            cfg.AWSRegion,
		Logger:            logger,
	}

	if cfg.SlackWebhookSecretName != "" {
		manager := secrets.NewManager(secretsmanager.NewFromConfig(awsCfg), cfg.ParamCacheTTL, logger)
		notifierCfg.Slack = notification.NewSlackClient(notification.SlackClientConfig{
			WebhookURL: func(ctx context.Context) (string, error) {
				return manager.GetWebhookURL(ctx, cfg.SlackWebhookSecretName)
			},
			Channel:  cfg.SlackChannel,
			Username: cfg.SlackUsername,
			Logger:   logger,
		})
	}

	if cfg.AlertTopicArn != "" {
		notifierCfg.Alerts = messaging.NewSNSClient(sns.NewFromConfig(awsCfg), cfg.AlertTopicArn, logger)
	}

	if cfg.JobTableName != "" {
		notifierCfg.Repository = repository.NewDynamoDBRepository(dynamodb.NewFromConfig(awsCfg), cfg.JobTableName)
	}

	if notifierCfg.Slack == nil && notifierCfg.Alerts == nil {
		logger.Warn("no alert channel configured, failures will only be logged")
	}

	notifier := batchalert.NewNotifier(notifierCfg)
	lambda.Start(notifier.HandleEvent)
}
