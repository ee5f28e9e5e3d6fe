package models

import "strings"

// Event sources and detail types consumed by the Lambda handlers
const (
	EventSourceBatch = "aws.batch"
	EventSourceEC2   = "aws.ec2"

	DetailTypeBatchJobStateChange   = "Batch Job State Change"
	DetailTypeEBSVolumeNotification = "EBS Volume Notification"

	// EBSEventCreateVolume is the EBS notification event that triggers tagging
	EBSEventCreateVolume = "createVolume"

	// BatchStatusFailed is the job status the failure rule matches
	BatchStatusFailed = "FAILED"
)

// BatchJobStateChange is the detail of an EventBridge "Batch Job State Change" event
type BatchJobStateChange struct {
	JobName       string         `json:"jobName"`
	JobID         string         `json:"jobId"`
	JobQueue      string         `json:"jobQueue"`
	JobDefinition string         `json:"jobDefinition"`
	Status        string         `json:"status"`
	StatusReason  string         `json:"statusReason"`
	Attempts      []BatchAttempt `json:"attempts"`
}

// BatchAttempt is one attempt of a batch job
type BatchAttempt struct {
	StatusReason string                `json:"statusReason,omitempty"`
	Container    BatchAttemptContainer `json:"container"`
}

// BatchAttemptContainer holds the container details of an attempt
type BatchAttemptContainer struct {
	LogStreamName string `json:"logStreamName,omitempty"`
	ExitCode      *int   `json:"exitCode,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// BaseJobID returns the job id without an array child index such as ":3"
func (c BatchJobStateChange) BaseJobID() string {
	id := c.JobID
	tail := id
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	if strings.Contains(tail, ":") {
		base, _, _ := strings.Cut(id, ":")
		return base
	}
	return id
}

// LogStreamName returns the log stream of the first attempt, if any
func (c BatchJobStateChange) LogStreamName() string {
	if len(c.Attempts) == 0 {
		return ""
	}
	return c.Attempts[0].Container.LogStreamName
}

// EBSVolumeNotification is the detail of an EventBridge "EBS Volume Notification" event
type EBSVolumeNotification struct {
	Event     string `json:"event"`
	Result    string `json:"result"`
	Cause     string `json:"cause"`
	RequestID string `json:"request-id"`
}
