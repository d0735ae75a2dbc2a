package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"feedsync/config"
	"feedsync/models"
	"feedsync/storage"
)

// JobRecorder keeps the ImportJob row of a run in step with its progress:
// pending, then running, then completed or failed.
type JobRecorder struct {
	repo   storage.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewJobRecorder(repo storage.Repository, logger *slog.Logger) *JobRecorder {
	return &JobRecorder{
		repo:   repo,
		logger: logger.With("component", "jobs"),
		now:    time.Now,
	}
}

func (j *JobRecorder) Start(ctx context.Context, fc *config.FeedConfig) (*models.ImportJob, error) {
	job := &models.ImportJob{
		ID:        uuid.New(),
		FeedID:    fc.ID,
		FeedURL:   fc.URL,
		Status:    models.JobStatusPending,
		CreatedAt: j.now().UTC(),
	}
	if err := j.repo.CreateImportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}

	started := j.now().UTC()
	job.StartedAt = &started
	job.Status = models.JobStatusRunning
	if err := j.repo.UpdateImportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("start import job: %w", err)
	}

	return job, nil
}

// Finish moves the job to its terminal state. A job that already finished
// is left untouched. Write failures are logged, not returned.
func (j *JobRecorder) Finish(ctx context.Context, job *models.ImportJob, stats *Stats, runErr error) {
	if job.Status == models.JobStatusCompleted || job.Status == models.JobStatusFailed {
		return
	}

	finished := j.now().UTC()
	job.FinishedAt = &finished
	if job.StartedAt != nil {
		job.DurationMS = finished.Sub(*job.StartedAt).Milliseconds()
	}

	job.PropertyCount = stats.PropertyCount
	job.ImportedCount = stats.Created
	job.UpdatedCount = stats.Updated
	job.SkippedCount = stats.Skipped
	job.FailedCount = stats.Failed
	job.DeletedCount = stats.Deleted
	job.ImagesUploaded = stats.ImagesUploaded
	job.ImagesFailed = stats.ImagesFailed
	job.FailedProperties = stats.FailedProperties
	job.Stats = stats.ToJSON()

	job.Status = models.JobStatusCompleted
	if runErr != nil {
		job.Status = models.JobStatusFailed
		job.ErrorMessage = runErr.Error()
	}

	if err := j.repo.UpdateImportJob(context.WithoutCancel(ctx), job); err != nil {
		j.logger.Error("failed to record import job", "job_id", job.ID, "status", job.Status, "error", err)
	}
}
