package jobqueue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType(t *testing.T) {
	tests := []struct {
		name     string
		jobType  JobType
		expected string
	}{
		{"Output Archive", JobTypeOutputArchive, "output_archive"},
		{"Notify User", JobTypeNotifyUser, "notify_user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.jobType))
		})
	}
}

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected string
	}{
		{"Pending", JobStatusPending, "pending"},
		{"Processing", JobStatusProcessing, "processing"},
		{"Completed", JobStatusCompleted, "completed"},
		{"Failed", JobStatusFailed, "failed"},
		{"Retrying", JobStatusRetrying, "retrying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{
			name:      "Failed job with retries remaining",
			job:       &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3},
			retryable: true,
		},
		{
			name:      "Failed job with retries exhausted",
			job:       &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3},
			retryable: false,
		},
		{
			name:      "Completed job",
			job:       &Job{Status: JobStatusCompleted, RetryCount: 0, MaxRetries: 3},
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJobStatusTransitions(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 3}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.WithinDuration(t, time.Now(), *job.ProcessedAt, time.Second)

	job.MarkAsFailed("provider unreachable")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "provider unreachable", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
}

func TestOutputArchiveJobPayloadRoundTrip(t *testing.T) {
	payload := OutputArchiveJobPayload{
		RenderJobID:   42,
		RenderJobUUID: "b7e2a9f1-0000-4000-8000-000000000042",
		OutputURL:     "https://cdn.example.com/out.mp4",
		Provider:      "shotstack",
	}

	restored, err := OutputArchiveJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *restored)
}

func TestNotifyUserJobPayloadRoundTrip(t *testing.T) {
	payload := NotifyUserJobPayload{
		RenderJobID:   7,
		RenderJobUUID: "b7e2a9f1-0000-4000-8000-000000000007",
		UserID:        99,
		Kind:          "render_complete",
		OutputURL:     "https://cdn.example.com/out.png",
	}

	restored, err := NotifyUserJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *restored)
}

func TestJobSerializesForRedis(t *testing.T) {
	job := &Job{
		ID:         "id-1",
		Type:       JobTypeOutputArchive,
		Status:     JobStatusPending,
		Payload:    map[string]interface{}{"render_job_uuid": "u"},
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)

	var restored Job
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, job.ID, restored.ID)
	assert.Equal(t, job.Type, restored.Type)
}
