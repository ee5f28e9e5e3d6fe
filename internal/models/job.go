package models

import (
	"time"
)

// JobStatus represents the ledger state of a submitted batch job
type JobStatus string

const (
	// JobStatusSubmitted indicates the job was accepted by AWS Batch
	JobStatusSubmitted JobStatus = "submitted"
	// JobStatusFailed indicates a FAILED state change was received for the job
	JobStatusFailed JobStatus = "failed"
)

// IsValid checks if the job status value is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusSubmitted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the job status
func (s JobStatus) String() string {
	return string(s)
}

// JobRecord is one row of the job ledger
type JobRecord struct {
	// ID is the AWS Batch job id
	ID string `json:"id" dynamodbav:"id"`

	// JobName is the name the job was submitted with
	JobName string `json:"job_name" dynamodbav:"job_name"`

	// JobQueue and JobDefinition are resource names, not ARNs
	JobQueue      string `json:"job_queue" dynamodbav:"job_queue"`
	JobDefinition string `json:"job_definition" dynamodbav:"job_definition"`

	Prefix   string   `json:"prefix" dynamodbav:"prefix"`
	Strategy Strategy `json:"strategy" dynamodbav:"strategy"`

	Source      string `json:"source" dynamodbav:"source"`
	Destination string `json:"destination" dynamodbav:"destination"`

	// DeployEnvironment is the deployment label the job was submitted under
	DeployEnvironment string `json:"deploy_environment" dynamodbav:"deploy_environment"`

	Status       JobStatus `json:"status" dynamodbav:"status"`
	StatusReason string    `json:"status_reason,omitempty" dynamodbav:"status_reason,omitempty"`

	SubmittedAt time.Time `json:"submitted_at" dynamodbav:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// NewJobRecord creates a ledger record for a freshly submitted job
func NewJobRecord(id, name, queue, definition string) *JobRecord {
	now := time.Now().UTC()
	return &JobRecord{
		ID:            id,
		JobName:       name,
		JobQueue:      queue,
		JobDefinition: definition,
		Status:        JobStatusSubmitted,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
}

// MarkFailed updates the record status to failed with the batch status reason
func (r *JobRecord) MarkFailed(reason string) {
	r.Status = JobStatusFailed
	r.StatusReason = reason
	r.UpdatedAt = time.Now().UTC()
}
