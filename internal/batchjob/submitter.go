package batchjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/google/uuid"
	"github.com/jrzesz33/encsys/internal/models"
	"github.com/jrzesz33/encsys/internal/params"
	"github.com/jrzesz33/encsys/internal/repository"
)

// ErrTargetNotFound is returned when no batch target is published for the prefix and strategy
var ErrTargetNotFound = errors.New("batch target not found")

// BatchAPI is the subset of the Batch client used by the submitter
type BatchAPI interface {
	SubmitJob(ctx context.Context, params *batch.SubmitJobInput, optFns ...func(*batch.Options)) (*batch.SubmitJobOutput, error)
}

// Result describes a submitted job
type Result struct {
	JobID         string `json:"jobId"`
	JobName       string `json:"jobName"`
	JobQueue      string `json:"jobQueue"`
	JobDefinition string `json:"jobDefinition"`
}

// SubmitterConfig holds the submitter dependencies
type SubmitterConfig struct {
	Batch BatchAPI
	Store params.Store

	// Repository records submitted jobs when set
	Repository repository.JobRepository

	DeployEnvironment string
	DefaultPrefix     string
	DefaultStrategy   models.Strategy

	Logger *slog.Logger
}

// Submitter resolves batch targets from the parameter store and submits jobs
type Submitter struct {
	batch    BatchAPI
	store    params.Store
	repo     repository.JobRepository
	env      string
	prefix   string
	strategy models.Strategy
	logger   *slog.Logger
	newName  func() string
}

// NewSubmitter creates a new submitter
func NewSubmitter(cfg SubmitterConfig) *Submitter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = models.StrategyEC2
	}
	return &Submitter{
		batch:    cfg.Batch,
		store:    cfg.Store,
		repo:     cfg.Repository,
		env:      cfg.DeployEnvironment,
		prefix:   cfg.DefaultPrefix,
		strategy: cfg.DefaultStrategy,
		logger:   cfg.Logger,
		newName:  func() string { return "Job-" + uuid.NewString() },
	}
}

// Submit submits one job for the request
func (s *Submitter) Submit(ctx context.Context, req *Request) (*Result, error) {
	prefix := req.Prefix
	if prefix == "" {
		prefix = s.prefix
	}
	if prefix == "" {
		return nil, fmt.Errorf("%w: prefix is required", ErrBadRequest)
	}
	strategy := req.ResolvedStrategy(s.strategy)

	target, err := params.GetBatchTarget(ctx, s.store, prefix, strategy)
	if err != nil {
		if errors.Is(err, params.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, params.BatchKey(prefix, strategy))
		}
		return nil, fmt.Errorf("failed to resolve batch target: %w", err)
	}

	overrides := req.EnvironmentOverrides()
	env := make([]types.KeyValuePair, 0, len(overrides))
	for _, v := range overrides {
		env = append(env, types.KeyValuePair{Name: aws.String(v.Name), Value: aws.String(v.Value)})
	}

	jobName := s.newName()
	out, err := s.batch.SubmitJob(ctx, &batch.SubmitJobInput{
		JobName:       aws.String(jobName),
		JobQueue:      aws.String(target.JobQueueName),
		JobDefinition: aws.String(target.JobDefinitionName),
		ContainerOverrides: &types.ContainerOverrides{
			Environment: env,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit batch job: %w", err)
	}

	result := &Result{
		JobID:         aws.ToString(out.JobId),
		JobName:       jobName,
		JobQueue:      target.JobQueueName,
		JobDefinition: target.JobDefinitionName,
	}

	s.logger.InfoContext(ctx, "batch job submitted",
		slog.String("job_id", result.JobID),
		slog.String("job_name", result.JobName),
		slog.String("job_queue", result.JobQueue),
		slog.String("job_definition", result.JobDefinition),
	)

	if s.repo != nil {
		record := models.NewJobRecord(result.JobID, result.JobName, result.JobQueue, result.JobDefinition)
		record.Prefix = prefix
		record.Strategy = strategy
		record.Source = req.Source
		record.Destination = req.Destination
		record.DeployEnvironment = s.env
		if err := s.repo.SaveJob(ctx, record); err != nil {
			s.logger.WarnContext(ctx, "failed to record batch job",
				slog.String("job_id", result.JobID),
				slog.String("error", err.Error()),
			)
		}
	}

	return result, nil
}
