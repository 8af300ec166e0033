package training

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mezhov/houser/internal/registry"
)

// JobStore abstracts the job queue operations the worker needs.
type JobStore interface {
	ClaimNextJob(types []string) (*registry.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Worker processes train_dataset jobs from the SQLite job queue. After
// a successful run it calls notify so the serving layer can pick up
// the new version.
type Worker struct {
	jobs   JobStore
	runner *Runner
	notify func()
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to
// 500ms. notify may be nil.
func NewWorker(jobs JobStore, runner *Runner, notify func(), pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		jobs:   jobs,
		runner: runner,
		notify: notify,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single train_dataset job. Returns
// true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.jobs.ClaimNextJob([]string{registry.JobTypeTrain})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("training job failed", "job_id", job.ID, "error", err)
		if failErr := w.jobs.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.jobs.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// TrainPayload is the payload of a train_dataset job.
type TrainPayload struct {
	DatasetID string `json:"dataset_id"`
}

func (w *Worker) processJob(ctx context.Context, job *registry.Job) error {
	var payload TrainPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.DatasetID == "" {
		return fmt.Errorf("payload has no dataset_id")
	}

	version, err := w.runner.TrainDataset(ctx, payload.DatasetID, nil)
	if err != nil {
		return err
	}

	w.logger.Info("training job complete", "job_id", job.ID, "version", version.ID)
	if w.notify != nil {
		w.notify()
	}
	return nil
}
