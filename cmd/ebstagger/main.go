package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/jrzesz33/encsys/internal/logging"
	"github.com/jrzesz33/encsys/internal/tagging"
	appconfig "github.com/jrzesz33/encsys/pkg/config"
)

func main() {
	logger := logging.New("ebstagger")

	cfg := appconfig.MustLoad()
	if err := cfg.AppContext().Validate(); err != nil {
		panic(fmt.Sprintf("invalid application context: %v", err))
	}

	logger.Info("ebs tagger lambda starting",
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

	tagger := tagging.NewEBSTagger(ec2.NewFromConfig(awsCfg), cfg.AppName, cfg.Target.Label, cfg.MigrationTag, logger)
	lambda.Start(tagger.HandleEvent)
}
