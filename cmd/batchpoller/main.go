package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jrzesz33/encsys/internal/logging"
	"github.com/jrzesz33/encsys/internal/params"
	"github.com/jrzesz33/encsys/internal/poller"
	appconfig "github.com/jrzesz33/encsys/pkg/config"
)

func main() {
	logger := logging.New("batchpoller")

	cfg := appconfig.MustLoad()
	if err := cfg.AppContext().Validate(); err != nil {
		panic(fmt.Sprintf("invalid application context: %v", err))
	}

	logger.Info("batch poller lambda starting",
		slog.String("app", cfg.AppName),
		slog.String("env", cfg.Target.Label),
		slog.String("region", cfg.AWSRegion),
	)

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		logger.Error("failed to load AWS config", slog.String("error", err.Error()))
		panic(fmt.Sprintf("failed to load AWS config: %v", err))
	}

	store := params.NewSSMStore(ssm.NewFromConfig(awsCfg), cfg.Namespace(), logger)
	p := poller.New(batch.NewFromConfig(awsCfg), store, 0, logger)

	lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) ([]poller.QueueSummary, error) {
		return p.Poll(ctx)
	})
}
