// Package poller reports the queue depth of every published batch target.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/jrzesz33/encsys/internal/models"
	"github.com/jrzesz33/encsys/internal/params"
	"golang.org/x/sync/errgroup"
)

// Statuses counted for each queue
var Statuses = []types.JobStatus{
	types.JobStatusRunnable,
	types.JobStatusRunning,
	types.JobStatusFailed,
}

const defaultConcurrency = 4

// BatchAPI is the subset of the Batch client used by the poller
type BatchAPI interface {
	ListJobs(ctx context.Context, params *batch.ListJobsInput, optFns ...func(*batch.Options)) (*batch.ListJobsOutput, error)
}

// QueueSummary is the job count per status of one queue
type QueueSummary struct {
	Key      string                  `json:"key"`
	Prefix   string                  `json:"prefix"`
	Strategy models.Strategy         `json:"strategy"`
	JobQueue string                  `json:"jobQueue"`
	Counts   map[types.JobStatus]int `json:"counts"`
}

// Poller counts jobs of the published batch queues
type Poller struct {
	batch       BatchAPI
	store       params.Store
	concurrency int
	logger      *slog.Logger
}

// New creates a poller. concurrency bounds the queues polled at once.
func New(client BatchAPI, store params.Store, concurrency int, logger *slog.Logger) *Poller {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		batch:       client,
		store:       store,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Targets returns the batch targets published in the store, sorted by key
func (p *Poller) Targets(ctx context.Context) ([]QueueSummary, error) {
	values, err := p.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list parameters: %w", err)
	}

	var targets []QueueSummary
	for key, value := range values {
		prefix, strategy, ok := params.ParseBatchKey(key)
		if !ok {
			continue
		}
		target, err := params.DecodeBatchTarget(value)
		if err != nil {
			p.logger.WarnContext(ctx, "skipping malformed batch target",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		targets = append(targets, QueueSummary{
			Key:      key,
			Prefix:   prefix,
			Strategy: strategy,
			JobQueue: target.JobQueueName,
		})
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Key < targets[j].Key })
	return targets, nil
}

// Poll counts the jobs of every target concurrently
func (p *Poller) Poll(ctx context.Context) ([]QueueSummary, error) {
	summaries, err := p.Targets(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i := range summaries {
		g.Go(func() error {
			counts, err := p.count(gctx, summaries[i].JobQueue)
			if err != nil {
				return fmt.Errorf("queue %s: %w", summaries[i].JobQueue, err)
			}
			summaries[i].Counts = counts
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, s := range summaries {
		p.logger.InfoContext(ctx, "batch queue summary",
			slog.String("job_queue", s.JobQueue),
			slog.String("strategy", s.Strategy.String()),
			slog.Int("runnable", s.Counts[types.JobStatusRunnable]),
			slog.Int("running", s.Counts[types.JobStatusRunning]),
			slog.Int("failed", s.Counts[types.JobStatusFailed]),
		)
	}

	return summaries, nil
}

func (p *Poller) count(ctx context.Context, queue string) (map[types.JobStatus]int, error) {
	counts := make(map[types.JobStatus]int, len(Statuses))

	for _, status := range Statuses {
		var token *string
		for {
			out, err := p.batch.ListJobs(ctx, &batch.ListJobsInput{
				JobQueue:  aws.String(queue),
				JobStatus: status,
				NextToken: token,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to list %s jobs: %w", status, err)
			}
			counts[status] += len(out.JobSummaryList)

			if out.NextToken == nil || aws.ToString(out.NextToken) == "" {
				break
			}
			token = out.NextToken
		}
	}

	return counts, nil
}
