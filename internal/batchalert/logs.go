package batchalert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// maxPutEvents is the PutLogEvents batch limit
const maxPutEvents = 10000

// LogsAPI is the subset of the CloudWatch Logs client used by the copier
type LogsAPI interface {
	GetLogEvents(ctx context.Context, params *cloudwatchlogs.GetLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// LogCopier copies the log events of a failed job into the error log group
type LogCopier struct {
	client      LogsAPI
	sourceGroup string
	errorGroup  string
	logger      *slog.Logger
}

// NewLogCopier creates a copier from sourceGroup into errorGroup
func NewLogCopier(client LogsAPI, sourceGroup, errorGroup string, logger *slog.Logger) *LogCopier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogCopier{
		client:      client,
		sourceGroup: sourceGroup,
		errorGroup:  errorGroup,
		logger:      logger,
	}
}

// ErrorGroup returns the destination log group
func (c *LogCopier) ErrorGroup() string {
	return c.errorGroup
}

// Copy reads every event of sourceStream and writes it to destStream. It
// returns the number of events copied. An existing destStream means an
// earlier invocation already copied the job, so nothing is written.
func (c *LogCopier) Copy(ctx context.Context, sourceStream, destStream string) (int, error) {
	events, err := c.read(ctx, sourceStream)
	if err != nil {
		return 0, err
	}

	_, err = c.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(c.errorGroup),
		LogStreamName: aws.String(destStream),
	})
	if err != nil {
		var exists *types.ResourceAlreadyExistsException
		if !errors.As(err, &exists) {
			return 0, fmt.Errorf("failed to create log stream: %w", err)
		}
		c.logger.InfoContext(ctx, "error log stream already exists, skipping copy",
			slog.String("error_stream", destStream),
		)
		return 0, nil
	}

	for start := 0; start < len(events); start += maxPutEvents {
		end := min(start+maxPutEvents, len(events))
		_, err := c.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(c.errorGroup),
			LogStreamName: aws.String(destStream),
			LogEvents:     events[start:end],
		})
		if err != nil {
			return start, fmt.Errorf("failed to put log events: %w", err)
		}
	}

	c.logger.DebugContext(ctx, "copied failed job log events",
		slog.String("source_stream", sourceStream),
		slog.String("error_stream", destStream),
		slog.Int("events", len(events)),
	)

	return len(events), nil
}

func (c *LogCopier) read(ctx context.Context, stream string) ([]types.InputLogEvent, error) {
	var events []types.InputLogEvent
	var token *string

	for {
		out, err := c.client.GetLogEvents(ctx, &cloudwatchlogs.GetLogEventsInput{
			LogGroupName:  aws.String(c.sourceGroup),
			LogStreamName: aws.String(stream),
			StartFromHead: aws.Bool(true),
			NextToken:     token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get log events: %w", err)
		}

		for _, e := range out.Events {
			events = append(events, types.InputLogEvent{
				Message:   e.Message,
				Timestamp: e.Timestamp,
			})
		}

		// the forward token repeats once the end of the stream is reached
		if len(out.Events) == 0 || out.NextForwardToken == nil || aws.ToString(out.NextForwardToken) == aws.ToString(token) {
			return events, nil
		}
		token = out.NextForwardToken
	}
}
