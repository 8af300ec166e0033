// Package schedule enqueues periodic retraining of the latest dataset.
package schedule

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mezhov/houser/internal/registry"
	"github.com/mezhov/houser/internal/training"
)

// Store is the registry surface the scheduler needs.
type Store interface {
	LatestDataset() (registry.Dataset, error)
	EnqueueJob(j registry.Job) error
}

// Retrainer enqueues a train_dataset job for the most recent dataset
// on a cron schedule. Missing the schedule tick because a previous
// tick is still enqueuing is fine; training itself runs in the worker.
type Retrainer struct {
	store  Store
	runner *cron.Cron
	spec   string
	logger *slog.Logger
}

// New builds a Retrainer for the given cron spec (standard 5-field
// syntax, e.g. "0 3 * * *" for daily at 03:00). An empty spec disables
// scheduling; Start then does nothing.
func New(store Store, spec string, logger *slog.Logger) (*Retrainer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retrainer{
		store:  store,
		spec:   spec,
		logger: logger,
	}
	if spec == "" {
		return r, nil
	}

	r.runner = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))
	if _, err := r.runner.AddFunc(spec, r.tick); err != nil {
		return nil, fmt.Errorf("invalid retrain schedule %q: %w", spec, err)
	}
	return r, nil
}

// Start begins the schedule. No-op when no spec was configured.
func (r *Retrainer) Start() {
	if r.runner == nil {
		return
	}
	r.logger.Info("retrain schedule active", "spec", r.spec)
	r.runner.Start()
}

// Stop stops the schedule and waits for a running tick to finish.
func (r *Retrainer) Stop() {
	if r.runner == nil {
		return
	}
	<-r.runner.Stop().Done()
}

func (r *Retrainer) tick() {
	if err := r.EnqueueRetrain(); err != nil {
		r.logger.Error("scheduled retrain failed", "error", err)
	}
}

// EnqueueRetrain queues one training job for the latest dataset.
// Returns registry.ErrNotFound when nothing has been uploaded yet.
func (r *Retrainer) EnqueueRetrain() error {
	ds, err := r.store.LatestDataset()
	if err != nil {
		return fmt.Errorf("selecting dataset for retrain: %w", err)
	}

	payload, err := json.Marshal(training.TrainPayload{DatasetID: ds.ID})
	if err != nil {
		return err
	}
	job := registry.Job{
		ID:          uuid.NewString(),
		Type:        registry.JobTypeTrain,
		PayloadJSON: string(payload),
	}
	if err := r.store.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueuing retrain job: %w", err)
	}

	r.logger.Info("scheduled retrain enqueued", "dataset", ds.ID, "job", job.ID)
	return nil
}
