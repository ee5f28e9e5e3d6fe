package batchalert

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/jrzesz33/encsys/internal/messaging"
	"github.com/jrzesz33/encsys/internal/models"
	"github.com/jrzesz33/encsys/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogs struct {
	source  []types.OutputLogEvent
	pages   int
	created []string
	put     map[string][]types.InputLogEvent
	getErr  error
	exists  bool
}

func (m *mockLogs) GetLogEvents(_ context.Context, in *cloudwatchlogs.GetLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.pages++
	if in.NextToken != nil {
		return &cloudwatchlogs.GetLogEventsOutput{NextForwardToken: in.NextToken}, nil
	}
	return &cloudwatchlogs.GetLogEventsOutput{Events: m.source, NextForwardToken: aws.String("f/1")}, nil
}

func (m *mockLogs) CreateLogStream(_ context.Context, in *cloudwatchlogs.CreateLogStreamInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	stream := aws.ToString(in.LogGroupName) + ":" + aws.ToString(in.LogStreamName)
	if m.exists || slices.Contains(m.created, stream) {
		return nil, &types.ResourceAlreadyExistsException{Message: aws.String("exists")}
	}
	m.created = append(m.created, stream)
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func (m *mockLogs) PutLogEvents(_ context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	if m.put == nil {
		m.put = map[string][]types.InputLogEvent{}
	}
	m.put[aws.ToString(in.LogStreamName)] = append(m.put[aws.ToString(in.LogStreamName)], in.LogEvents...)
	return &cloudwatchlogs.PutLogEventsOutput{}, nil
}

type recordingClient struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (r *recordingClient) Send(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return r.err
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []messaging.Alert
	err    error
}

func (r *recordingAlerts) Send(_ context.Context, alert messaging.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.alerts = append(r.alerts, alert)
	return nil
}

type failingLedger struct {
	mu     sync.Mutex
	marked map[string]string
}

func (f *failingLedger) SaveJob(context.Context, *models.JobRecord) error { return nil }
func (f *failingLedger) GetJob(context.Context, string) (*models.JobRecord, error) {
	return nil, repository.ErrJobNotFound
}
func (f *failingLedger) ListJobs(context.Context, *models.JobStatus, int) ([]*models.JobRecord, error) {
	return nil, nil
}
func (f *failingLedger) MarkFailed(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "unknown" {
		return repository.ErrJobNotFound
	}
	if f.marked == nil {
		f.marked = map[string]string{}
	}
	f.marked[id] = reason
	return nil
}

func batchEvent(t *testing.T, detail models.BatchJobStateChange) events.CloudWatchEvent {
	t.Helper()
	raw, err := json.Marshal(detail)
	require.NoError(t, err)
	return events.CloudWatchEvent{
		Source:     models.EventSourceBatch,
		DetailType: models.DetailTypeBatchJobStateChange,
		Detail:     raw,
	}
}

func TestLogCopier_Copy(t *testing.T) {
	logs := &mockLogs{source: []types.OutputLogEvent{
		{Message: aws.String("starting"), Timestamp: aws.Int64(1), IngestionTime: aws.Int64(5)},
		{Message: aws.String("panic"), Timestamp: aws.Int64(2), IngestionTime: aws.Int64(6)},
	}}
	copier := NewLogCopier(logs, "/aws/batch/job", "/aws/batch/job-dev-error", nil)

	n, err := copier.Copy(context.Background(), "JD/default/abc", "JD/Job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, logs.pages)
	assert.Equal(t, []string{"/aws/batch/job-dev-error:JD/Job-1"}, logs.created)
	assert.Equal(t, "panic", aws.ToString(logs.put["JD/Job-1"][1].Message))

	n, err = copier.Copy(context.Background(), "JD/default/abc", "JD/Job-1")
	require.NoError(t, err, "existing stream is not an error")
	assert.Equal(t, 0, n)
	assert.Len(t, logs.put["JD/Job-1"], 2, "events already copied are not written again")

	logs.getErr = errors.New("ResourceNotFoundException")
	_, err = copier.Copy(context.Background(), "JD/default/abc", "JD/Job-1")
	assert.Error(t, err)
}

func TestNotifier_HandleEvent_Failed(t *testing.T) {
	logs := &mockLogs{source: []types.OutputLogEvent{{Message: aws.String("boom"), Timestamp: aws.Int64(1)}}}
	slack := &recordingClient{}
	alerts := &recordingAlerts{}
	ledger := &failingLedger{}

	n := NewNotifier(NotifierConfig{
		Copier:            NewLogCopier(logs, "/aws/batch/job", "/aws/batch/job-dev-error", nil),
		Slack:             slack,
		Alerts:            alerts,
		Repository:        ledger,
		DeployEnvironment: "dev",
		Region:            "us-east-1",
	})

	err := n.HandleEvent(context.Background(), batchEvent(t, models.BatchJobStateChange{
		JobName:      "Job-1",
		JobID:        "abc:3",
		Status:       "FAILED",
		StatusReason: "Essential container in task exited",
		Attempts:     []models.BatchAttempt{{Container: models.BatchAttemptContainer{LogStreamName: "JD/default/xyz"}}},
	}))
	require.NoError(t, err)

	require.Len(t, slack.messages, 1)
	msg := slack.messages[0]
	assert.Contains(t, msg, "<Batch Job Failed - dev>")
	assert.Contains(t, msg, "JobName: Job-1")
	assert.Contains(t, msg, "#jobs/detail/abc")
	assert.Contains(t, msg, "log-group/$252Faws$252Fbatch$252Fjob-dev-error/log-events/JD$252FJob-1")

	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, msg, alerts.alerts[0].Body)
	assert.Equal(t, "dev", alerts.alerts[0].DeployEnvironment)

	assert.Equal(t, "Essential container in task exited", ledger.marked["abc"])
	assert.Len(t, logs.put["JD/Job-1"], 1)
}

func TestNotifier_HandleEvent_NoLogs(t *testing.T) {
	slack := &recordingClient{}
	n := NewNotifier(NotifierConfig{
		Copier:            NewLogCopier(&mockLogs{}, "/aws/batch/job", "/aws/batch/job-prod-error", nil),
		Slack:             slack,
		Repository:        &failingLedger{},
		DeployEnvironment: "prod",
		Region:            "us-east-1",
	})

	err := n.HandleEvent(context.Background(), batchEvent(t, models.BatchJobStateChange{
		JobName: "Job-2", JobID: "unknown", Status: "FAILED", StatusReason: "timeout",
	}))
	require.NoError(t, err, "jobs missing from the ledger are not an error")
	require.Len(t, slack.messages, 1)
	assert.Contains(t, slack.messages[0], "CloudWatchLogs: No log events")
}

func TestNotifier_HandleEvent_Skips(t *testing.T) {
	slack := &recordingClient{}
	n := NewNotifier(NotifierConfig{Slack: slack, DeployEnvironment: "dev", Region: "us-east-1"})
	ctx := context.Background()

	require.NoError(t, n.HandleEvent(ctx, events.CloudWatchEvent{Source: "aws.ec2"}))
	require.NoError(t, n.HandleEvent(ctx, batchEvent(t, models.BatchJobStateChange{JobName: "Job", Status: "SUCCEEDED"})))
	require.NoError(t, n.HandleEvent(ctx, batchEvent(t, models.BatchJobStateChange{JobName: "Job", Status: "FAILED", StatusReason: "Array Child Job failed"})))
	require.NoError(t, n.HandleEvent(ctx, batchEvent(t, models.BatchJobStateChange{JobName: "Job", Status: "FAILED", StatusReason: "Dependent Job failed"})))

	assert.Empty(t, slack.messages)

	err := n.HandleEvent(ctx, events.CloudWatchEvent{Source: models.EventSourceBatch, Detail: json.RawMessage(`"oops"`)})
	assert.Error(t, err)
}

func TestNotifier_PartialDelivery(t *testing.T) {
	alerts := &recordingAlerts{}
	n := NewNotifier(NotifierConfig{
		Slack:             &recordingClient{err: errors.New("secret has no value")},
		Alerts:            alerts,
		DeployEnvironment: "dev",
		Region:            "us-east-1",
	})

	err := n.HandleEvent(context.Background(), batchEvent(t, models.BatchJobStateChange{
		JobName: "Job-3", JobID: "j3", Status: "FAILED", StatusReason: "exit 1",
	}))
	require.NoError(t, err, "SNS accepted the alert")
	assert.Len(t, alerts.alerts, 1)
}

func TestNotifier_AllChannelsFail(t *testing.T) {
	n := NewNotifier(NotifierConfig{
		Slack:             &recordingClient{err: errors.New("webhook gone")},
		Alerts:            &recordingAlerts{err: errors.New("topic deleted")},
		Repository:        &failingLedger{},
		DeployEnvironment: "dev",
		Region:            "us-east-1",
	})

	err := n.HandleEvent(context.Background(), batchEvent(t, models.BatchJobStateChange{
		JobName: "Job-4", JobID: "j4", Status: "FAILED", StatusReason: "exit 1",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: webhook gone")
	assert.Contains(t, err.Error(), "sns: topic deleted")
}

func TestNotifier_RedeliveredEvent(t *testing.T) {
	logs := &mockLogs{source: []types.OutputLogEvent{
		{Message: aws.String("starting"), Timestamp: aws.Int64(1)},
		{Message: aws.String("boom"), Timestamp: aws.Int64(2)},
	}}
	alerts := &recordingAlerts{}
	n := NewNotifier(NotifierConfig{
		Copier:            NewLogCopier(logs, "/aws/batch/job", "/aws/batch/job-dev-error", nil),
		Slack:             &recordingClient{err: errors.New("secret has no value")},
		Alerts:            alerts,
		Repository:        &failingLedger{},
		DeployEnvironment: "dev",
		Region:            "us-east-1",
	})
	event := batchEvent(t, models.BatchJobStateChange{
		JobName:      "Job-1",
		JobID:        "abc",
		Status:       "FAILED",
		StatusReason: "Essential container in task exited",
		Attempts:     []models.BatchAttempt{{Container: models.BatchAttemptContainer{LogStreamName: "JD/default/xyz"}}},
	})

	require.NoError(t, n.HandleEvent(context.Background(), event))
	assert.Len(t, alerts.alerts, 1)
	assert.Len(t, logs.put["JD/Job-1"], 2)

	// EventBridge may deliver the same event again
	require.NoError(t, n.HandleEvent(context.Background(), event))
	assert.Len(t, alerts.alerts, 2, "one alert per invocation")
	assert.Len(t, logs.put["JD/Job-1"], 2, "log events are copied once")
	assert.Contains(t, alerts.alerts[1].Body, "log-events/JD$252FJob-1")
}
