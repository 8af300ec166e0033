package training

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mezhov/houser/internal/dataset"
	"github.com/mezhov/houser/internal/feature"
	"github.com/mezhov/houser/internal/model"
	"github.com/mezhov/houser/internal/registry"
)

// Runner takes a stored dataset through the full pipeline: validate,
// fit the cleaning transform, train candidates, and register the
// winner as a new model version. Both the synchronous train endpoint
// and the background worker go through it.
type Runner struct {
	store     *registry.Store
	trainer   *Trainer
	validator *dataset.Validator
	schema    dataset.Schema
	logger    *slog.Logger
}

// NewRunner wires a Runner. maxCategories <= 0 selects the default
// cardinality bound.
func NewRunner(store *registry.Store, trainer *Trainer, maxCategories int) *Runner {
	return &Runner{
		store:     store,
		trainer:   trainer,
		validator: dataset.NewValidator(maxCategories),
		schema:    dataset.HouseSchema(),
		logger:    slog.Default(),
	}
}

// TrainDataset trains the stored dataset and registers the winning
// candidate as a new immutable model version.
func (r *Runner) TrainDataset(ctx context.Context, datasetID string, candidates []string) (registry.ModelVersion, error) {
	stored, err := r.store.GetDataset(datasetID)
	if err != nil {
		return registry.ModelVersion{}, fmt.Errorf("loading dataset %s: %w", datasetID, err)
	}

	ds, err := dataset.ParseCSV(stored.CSV)
	if err != nil {
		return registry.ModelVersion{}, fmt.Errorf("parsing dataset %s: %w", datasetID, err)
	}
	if err := r.validator.Validate(ds, r.schema); err != nil {
		return registry.ModelVersion{}, err
	}

	pipe, err := feature.Fit(ds, r.schema)
	if err != nil {
		return registry.ModelVersion{}, err
	}
	X, y, err := pipe.Transform(ds)
	if err != nil {
		return registry.ModelVersion{}, err
	}

	result, err := r.trainer.Train(ctx, X, y, candidates)
	if err != nil {
		return registry.ModelVersion{}, err
	}

	pipeJSON, err := json.Marshal(pipe)
	if err != nil {
		return registry.ModelVersion{}, fmt.Errorf("encoding pipeline: %w", err)
	}
	scoresJSON, err := json.Marshal(result.Candidates)
	if err != nil {
		return registry.ModelVersion{}, fmt.Errorf("encoding candidate scores: %w", err)
	}
	artifact, err := model.EncodeArtifact(result.Best)
	if err != nil {
		return registry.ModelVersion{}, err
	}

	version := registry.ModelVersion{
		ID:           uuid.NewString(),
		DatasetID:    datasetID,
		Algorithm:    result.Algorithm,
		MAE:          result.MAE,
		R2:           result.R2,
		PipelineJSON: string(pipeJSON),
		ScoresJSON:   string(scoresJSON),
		Artifact:     artifact,
		TrainedAt:    time.Now().UTC(),
	}
	if err := r.store.SaveModelVersion(version); err != nil {
		return registry.ModelVersion{}, fmt.Errorf("saving model version: %w", err)
	}

	r.logger.Info("registered model version",
		"version", version.ID,
		"dataset", datasetID,
		"algorithm", version.Algorithm,
		"mae", version.MAE,
		"r2", version.R2,
	)
	return version, nil
}
