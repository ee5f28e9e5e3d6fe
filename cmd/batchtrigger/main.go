package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jrzesz33/encsys/internal/auth"
	"github.com/jrzesz33/encsys/internal/batchjob"
	"github.com/jrzesz33/encsys/internal/logging"
	"github.com/jrzesz33/encsys/internal/params"
	"github.com/jrzesz33/encsys/internal/repository"
	"github.com/jrzesz33/encsys/internal/secrets"
	appconfig "github.com/jrzesz33/encsys/pkg/config"
)

func main() {
	logger := logging.New("batchtrigger")

	cfg := appconfig.MustLoad()
	if err := cfg.AppContext().Validate(); err != nil {
		panic(fmt.Sprintf("invalid application context: %v", err))
	}

	logger.Info("batch trigger lambda starting",
		slog.String("app", cfg.AppName),
		slog.String("env", cfg.Target.Label),
		slog.String("region", cfg.AWSRegion),
		slog.String("prefix", cfg.BatchPrefix),
		slog.String("strategy", cfg.ComputeStrategy.String()),
	)

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		logger.Error("failed to load AWS config", slog.String("error", err.Error()))
		panic(fmt.Sprintf("failed to load AWS config: %v", err))
	}

	store := params.NewCachedStore(
		params.NewSSMStore(ssm.NewFromConfig(awsCfg), cfg.Namespace(), logger),
		cfg.ParamCacheTTL,
	)

	var repo repository.JobRepository
	if cfg.JobTableName != "" {
		repo = repository.NewDynamoDBRepository(dynamodb.NewFromConfig(awsCfg), cfg.JobTableName)
	}

	submitter := batchjob.NewSubmitter(batchjob.SubmitterConfig{
		Batch:             batch.NewFromConfig(awsCfg),
		Store:             store,
		Repository:        repo,
		DeployEnvironment: cfg.Target.Label,
		DefaultPrefix:     cfg.BatchPrefix,
		DefaultStrategy:   cfg.ComputeStrategy,
		Logger:            logger,
	})

	var verifier *auth.Verifier
	if cfg.AuthSecretName != "" {
		manager := secrets.NewManager(secretsmanager.NewFromConfig(awsCfg), cfg.ParamCacheTTL, logger)
		verifier = auth.NewVerifier(func(ctx context.Context) ([]byte, error) {
			return manager.GetSigningKey(ctx, cfg.AuthSecretName)
		}, cfg.AppName, cfg.Target.Label)
		logger.Info("bearer token check enabled")
	}

	handler := batchjob.NewHandler(submitter, verifier, logger)
	lambda.Start(handler.HandleRequest)
}
