package batchalert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jrzesz33/encsys/internal/messaging"
	"github.com/jrzesz33/encsys/internal/models"
	"github.com/jrzesz33/encsys/internal/notification"
	"github.com/jrzesz33/encsys/internal/repository"
	"golang.org/x/sync/errgroup"
)

// NotifierConfig holds the notifier dependencies. Slack, Alerts and
// Repository are optional.
type NotifierConfig struct {
	Copier     *LogCopier
	Slack      notification.Client
	Alerts     messaging.AlertPublisher
	Repository repository.JobRepository

	DeployEnvironment string
	Region            string

	Logger *slog.Logger
}

// Notifier handles Batch Job State Change events
type Notifier struct {
	copier *LogCopier
	slack  notification.Client
	alerts messaging.AlertPublisher
	repo   repository.JobRepository
	env    string
	region string
	logger *slog.Logger
}

// NewNotifier creates a new notifier
func NewNotifier(cfg NotifierConfig) *Notifier {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Notifier{
		copier: cfg.Copier,
		slack:  cfg.Slack,
		alerts: cfg.Alerts,
		repo:   cfg.Repository,
		env:    cfg.DeployEnvironment,
		region: cfg.Region,
		logger: cfg.Logger,
	}
}

// HandleEvent processes one EventBridge event
func (n *Notifier) HandleEvent(ctx context.Context, event events.CloudWatchEvent) error {
	if event.Source != models.EventSourceBatch {
		n.logger.InfoContext(ctx, "ignoring event from unsupported source",
			slog.String("source", event.Source),
			slog.String("detail_type", event.DetailType),
		)
		return nil
	}

	var detail models.BatchJobStateChange
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return fmt.Errorf("failed to parse batch job detail: %w", err)
	}

	if detail.Status != models.BatchStatusFailed {
		n.logger.DebugContext(ctx, "ignoring non-failed job state",
			slog.String("job_name", detail.JobName),
			slog.String("status", detail.Status),
		)
		return nil
	}

	info, notify := ExtractErrorInfo(detail)
	if !notify {
		n.logger.InfoContext(ctx, "No Notification",
			slog.String("header", Header(n.env)),
			slog.String("job_name", detail.JobName),
			slog.String("status_reason", detail.StatusReason),
		)
		return nil
	}

	logsURL := n.copyLogs(ctx, info)
	message := FormatMessage(n.env, n.region, info, logsURL)

	n.logger.InfoContext(ctx, "batch job failed",
		slog.String("job_name", info.JobName),
		slog.String("job_id", info.JobID),
		slog.String("status_reason", info.StatusReason),
	)

	return n.fanOut(ctx, info, message)
}

// copyLogs copies the job's log events and returns the console link, or "" when there is nothing to link
func (n *Notifier) copyLogs(ctx context.Context, info ErrorInfo) string {
	if info.LogStreamName == "" || n.copier == nil {
		return ""
	}

	dest := ErrorStreamName(info.LogStreamName, info.JobName)
	if _, err := n.copier.Copy(ctx, info.LogStreamName, dest); err != nil {
		n.logger.WarnContext(ctx, "failed to copy job log events",
			slog.String("log_stream", info.LogStreamName),
			slog.String("error", err.Error()),
		)
		return ""
	}

	return LogEventsURL(n.region, n.copier.ErrorGroup(), dest)
}

// fanOut delivers the alert to every configured channel and records the
// failure in the ledger. The event is only failed back to Lambda when no
// alert channel accepted it; a retry after a partial delivery would repeat
// the channels that succeeded.
func (n *Notifier) fanOut(ctx context.Context, info ErrorInfo, message string) error {
	var g errgroup.Group
	var slackErr, snsErr error

	if n.slack != nil {
		g.Go(func() error {
			slackErr = n.slack.Send(ctx, message)
			return nil
		})
	}

	if n.alerts != nil {
		g.Go(func() error {
			snsErr = n.alerts.Send(ctx, messaging.Alert{
				Subject:           fmt.Sprintf("Batch Job Failed - %s", n.env),
				Body:              message,
				DeployEnvironment: n.env,
				JobName:           info.JobName,
			})
			return nil
		})
	}

	if n.repo != nil && info.JobID != "" {
		g.Go(func() error {
			err := n.repo.MarkFailed(ctx, info.JobID, info.StatusReason)
			switch {
			case errors.Is(err, repository.ErrJobNotFound):
				n.logger.DebugContext(ctx, "failed job not in ledger", slog.String("job_id", info.JobID))
			case err != nil:
				n.logger.ErrorContext(ctx, "failed to mark job failed",
					slog.String("job_id", info.JobID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}

	_ = g.Wait()

	var failed []error
	delivered := 0
	for _, ch := range []struct {
		name       string
		configured bool
		err        error
	}{
		{"slack", n.slack != nil, slackErr},
		{"sns", n.alerts != nil, snsErr},
	} {
		if !ch.configured {
			continue
		}
		if ch.err != nil {
			n.logger.ErrorContext(ctx, "failed to deliver batch alert",
				slog.String("channel", ch.name),
				slog.String("job_name", info.JobName),
				slog.String("error", ch.err.Error()),
			)
			failed = append(failed, fmt.Errorf("%s: %w", ch.name, ch.err))
			continue
		}
		delivered++
	}

	if delivered == 0 && len(failed) > 0 {
		return fmt.Errorf("failed to deliver batch alert: %w", errors.Join(failed...))
	}
	return nil
}
