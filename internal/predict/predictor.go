// Package predict serves price estimates from the active model version.
package predict

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mezhov/houser/internal/feature"
	"github.com/mezhov/houser/internal/model"
	"github.com/mezhov/houser/internal/registry"
)

// snapshot is one fully decoded model version: the fitted pipeline plus
// the regressor, loaded once and shared across requests.
type snapshot struct {
	versionID string
	pipeline  *feature.Pipeline
	regressor model.Regressor
}

// Predictor serves predictions from the registry's active model
// version. The decoded version is cached; Reload swaps it after a new
// version is trained or activated.
type Predictor struct {
	store  *registry.Store
	active atomic.Pointer[snapshot]
	logger *slog.Logger
}

// Result is one served estimate.
type Result struct {
	ID             string            `json:"id"`
	ModelVersionID string            `json:"model_version_id"`
	Input          map[string]string `json:"input"`
	Price          float64           `json:"price"`
	CreatedAt      time.Time         `json:"created_at"`
}

func New(store *registry.Store, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Predictor{store: store, logger: logger}
}

// Reload fetches the active model version from the registry and decodes
// it into the serving cache. Returns registry.ErrNotFound when no model
// has been trained yet.
func (p *Predictor) Reload() error {
	v, err := p.store.GetActiveModelVersion()
	if err != nil {
		return err
	}

	var pipe feature.Pipeline
	if err := json.Unmarshal([]byte(v.PipelineJSON), &pipe); err != nil {
		return fmt.Errorf("decoding pipeline for version %s: %w", v.ID, err)
	}
	reg, err := model.DecodeArtifact(v.Artifact)
	if err != nil {
		return fmt.Errorf("decoding artifact for version %s: %w", v.ID, err)
	}

	p.active.Store(&snapshot{versionID: v.ID, pipeline: &pipe, regressor: reg})
	p.logger.Info("predictor loaded model version", "version", v.ID, "algorithm", v.Algorithm)
	return nil
}

// ActiveVersionID returns the id of the cached model version, or ""
// when nothing is loaded.
func (p *Predictor) ActiveVersionID() string {
	if s := p.active.Load(); s != nil {
		return s.versionID
	}
	return ""
}

// Predict estimates a price for one raw input record using the cached
// active version, loading it on first use. The input must carry every
// schema attribute; violations surface as *feature.SchemaMismatchError.
// Each estimate is appended to the prediction history.
func (p *Predictor) Predict(input map[string]string) (Result, error) {
	s := p.active.Load()
	if s == nil {
		if err := p.Reload(); err != nil {
			return Result{}, err
		}
		s = p.active.Load()
	}

	vec, err := s.pipeline.TransformRecord(input)
	if err != nil {
		return Result{}, err
	}

	price := s.regressor.Predict([][]float64{vec})[0]
	if price < 0 {
		price = 0
	}

	res := Result{
		ID:             uuid.NewString(),
		ModelVersionID: s.versionID,
		Input:          input,
		Price:          price,
		CreatedAt:      time.Now().UTC(),
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return Result{}, fmt.Errorf("encoding prediction input: %w", err)
	}
	err = p.store.SavePrediction(registry.Prediction{
		ID:             res.ID,
		ModelVersionID: res.ModelVersionID,
		InputJSON:      string(inputJSON),
		Price:          res.Price,
		CreatedAt:      res.CreatedAt,
	})
	if err != nil {
		return Result{}, fmt.Errorf("recording prediction: %w", err)
	}

	return res, nil
}
