package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeOutputArchive JobType = "output_archive"
	JobTypeNotifyUser    JobType = "notify_user"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// OutputArchiveJobPayload contains the payload for archiving a completed
// render's output into permanent storage
type OutputArchiveJobPayload struct {
	RenderJobID   uint   `json:"render_job_id"`
	RenderJobUUID string `json:"render_job_uuid"`
	OutputURL     string `json:"output_url"`
	Provider      string `json:"provider"`
}

// ToMap converts the payload to a map for storage
func (p OutputArchiveJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"render_job_id":   p.RenderJobID,
		"render_job_uuid": p.RenderJobUUID,
		"output_url":      p.OutputURL,
		"provider":        p.Provider,
	}
}

// OutputArchiveJobPayloadFromMap creates a payload from a map
func OutputArchiveJobPayloadFromMap(data map[string]interface{}) (*OutputArchiveJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload OutputArchiveJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// NotifyUserJobPayload contains the payload for user notifications about a
// finished render
type NotifyUserJobPayload struct {
	RenderJobID   uint   `json:"render_job_id"`
	RenderJobUUID string `json:"render_job_uuid"`
	UserID        uint   `json:"user_id"`
	Kind          string `json:"kind"` // render_complete or render_failed
	OutputURL     string `json:"output_url"`
}

// ToMap converts the payload to a map for storage
func (p NotifyUserJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"render_job_id":   p.RenderJobID,
		"render_job_uuid": p.RenderJobUUID,
		"user_id":         p.UserID,
		"kind":            p.Kind,
		"output_url":      p.OutputURL,
	}
}

// NotifyUserJobPayloadFromMap creates a payload from a map
func NotifyUserJobPayloadFromMap(data map[string]interface{}) (*NotifyUserJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload NotifyUserJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
