// Package ingest brings raw CSV datasets into the system: it stores
// the upload verbatim and queues a training job for it. The HTTP
// upload endpoint, the CLI and the directory watcher all go through
// the same path.
package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mezhov/houser/internal/dataset"
	"github.com/mezhov/houser/internal/registry"
	"github.com/mezhov/houser/internal/training"
)

// Store is the registry surface the ingestor needs.
type Store interface {
	SaveDataset(d registry.Dataset) error
	EnqueueJob(j registry.Job) error
}

// Ingestor persists uploaded datasets and enqueues training.
type Ingestor struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{store: store, logger: logger}
}

// IngestCSV stores one uploaded CSV and enqueues a train_dataset job
// for it. The payload only has to parse as CSV here; schema validation
// happens when the training job runs.
func (i *Ingestor) IngestCSV(name string, csvData []byte) (registry.Dataset, error) {
	parsed, err := dataset.ParseCSV(csvData)
	if err != nil {
		return registry.Dataset{}, &dataset.ValidationError{Reason: fmt.Sprintf("parsing %s: %v", name, err)}
	}

	ds := registry.Dataset{
		ID:        uuid.NewString(),
		Name:      name,
		CSV:       csvData,
		RowCount:  len(parsed.Rows),
		CreatedAt: time.Now().UTC(),
	}
	if err := i.store.SaveDataset(ds); err != nil {
		return registry.Dataset{}, fmt.Errorf("saving dataset: %w", err)
	}

	payload, err := json.Marshal(training.TrainPayload{DatasetID: ds.ID})
	if err != nil {
		return registry.Dataset{}, fmt.Errorf("encoding job payload: %w", err)
	}
	job := registry.Job{
		ID:          uuid.NewString(),
		Type:        registry.JobTypeTrain,
		PayloadJSON: string(payload),
	}
	if err := i.store.EnqueueJob(job); err != nil {
		return registry.Dataset{}, fmt.Errorf("enqueuing training job: %w", err)
	}

	i.logger.Info("dataset ingested", "dataset", ds.ID, "name", name, "rows", ds.RowCount, "job", job.ID)
	return ds, nil
}
