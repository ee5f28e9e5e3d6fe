package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jrzesz33/encsys/internal/params"
	"github.com/jrzesz33/encsys/internal/poller"
	"github.com/jrzesz33/encsys/internal/repository"
	"github.com/jrzesz33/encsys/internal/secrets"
)

// backend builds the clients used by the commands
type backend struct {
	Store      func(ctx context.Context, region string, ns params.Namespace) (params.Store, error)
	Jobs       func(ctx context.Context, region, table string) (repository.JobRepository, error)
	SigningKey func(ctx context.Context, region, secretName string) ([]byte, error)
	Batch      func(ctx context.Context, region string) (poller.BatchAPI, error)
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func awsBackend() backend {
	return backend{
		Store: func(ctx context.Context, region string, ns params.Namespace) (params.Store, error) {
			cfg, err := loadAWSConfig(ctx, region)
			if err != nil {
				return nil, err
			}
			return params.NewSSMStore(ssm.NewFromConfig(cfg), ns, slog.Default()), nil
		},
		Jobs: func(ctx context.Context, region, table string) (repository.JobRepository, error) {
			cfg, err := loadAWSConfig(ctx, region)
			if err != nil {
				return nil, err
			}
			return repository.NewDynamoDBRepository(dynamodb.NewFromConfig(cfg), table), nil
		},
		SigningKey: func(ctx context.Context, region, secretName string) ([]byte, error) {
			cfg, err := loadAWSConfig(ctx, region)
			if err != nil {
				return nil, err
			}
			return secrets.NewManager(secretsmanager.NewFromConfig(cfg), 0, slog.Default()).GetSigningKey(ctx, secretName)
		},
		Batch: func(ctx context.Context, region string) (poller.BatchAPI, error) {
			cfg, err := loadAWSConfig(ctx, region)
			if err != nil {
				return nil, err
			}
			return batch.NewFromConfig(cfg), nil
		},
	}
}
