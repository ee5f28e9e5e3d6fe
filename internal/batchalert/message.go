// Package batchalert turns failed AWS Batch job events into alerts.
package batchalert

import (
	"fmt"
	"strings"

	"github.com/jrzesz33/encsys/internal/models"
)

// Reasons that are reported on the parent or upstream job instead
var skippedReasons = []string{
	"Array Child Job failed",
	"Dependent Job failed",
}

// ErrorInfo is the part of a failed job event used to build the alert
type ErrorInfo struct {
	JobName       string
	JobID         string
	StatusReason  string
	LogStreamName string
}

// ExtractErrorInfo reads the alert fields from a job state change. It returns
// false when the failure is a cascade that should not be reported.
func ExtractErrorInfo(detail models.BatchJobStateChange) (ErrorInfo, bool) {
	for _, reason := range skippedReasons {
		if strings.Contains(detail.StatusReason, reason) {
			return ErrorInfo{}, false
		}
	}

	return ErrorInfo{
		JobName:       detail.JobName,
		JobID:         detail.BaseJobID(),
		StatusReason:  detail.StatusReason,
		LogStreamName: detail.LogStreamName(),
	}, true
}

// ErrorStreamName names the copied stream <first segment of source>/<job name>
func ErrorStreamName(sourceStream, jobName string) string {
	first, _, _ := strings.Cut(sourceStream, "/")
	return first + "/" + jobName
}

// ConsoleJobURL links to the job detail page of the Batch console
func ConsoleJobURL(region, jobID string) string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/batch/home?region=%s#jobs/detail/%s", region, region, jobID)
}

// consoleEscape applies the double encoding the CloudWatch console expects in fragments
func consoleEscape(s string) string {
	return strings.ReplaceAll(s, "/", "$252F")
}

// LogEventsURL links to a log stream in the CloudWatch console
func LogEventsURL(region, logGroup, logStream string) string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/cloudwatch/home?region=%s#logsV2:log-groups/log-group/%s/log-events/%s",
		region, region, consoleEscape(logGroup), consoleEscape(logStream))
}

// Header is the first line of every alert
func Header(env string) string {
	return fmt.Sprintf("<Batch Job Failed - %s>", env)
}

// FormatMessage renders the alert text. logsURL is empty when no log events were copied.
func FormatMessage(env, region string, info ErrorInfo, logsURL string) string {
	if logsURL == "" {
		logsURL = "No log events"
	}

	var b strings.Builder
	b.WriteString(Header(env))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  JobName: %s\n", info.JobName)
	fmt.Fprintf(&b, "  Error Message: %s\n", info.StatusReason)
	fmt.Fprintf(&b, "  Link: %s\n", ConsoleJobURL(region, info.JobID))
	fmt.Fprintf(&b, "  CloudWatchLogs: %s", logsURL)
	return b.String()
}
