// Package training fits candidate regressors on a deterministic
// train/test split and selects the best by held-out MAE.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mezhov/houser/internal/model"
)

// Defaults for the split and the minimum dataset size. All three are
// configurable; these mirror the conventional 80/20 split.
const (
	DefaultTestRatio = 0.2
	DefaultSeed      = 42
	DefaultMinRows   = 20
)

// InsufficientDataError reports a dataset too small for a meaningful
// train/test split.
type InsufficientDataError struct {
	Rows    int
	MinRows int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d rows, need at least %d", e.Rows, e.MinRows)
}

// Config controls the split and the size threshold.
type Config struct {
	TestRatio float64
	Seed      int64
	MinRows   int
}

// CandidateScore is the held-out evaluation of one candidate. Err is
// set when the candidate failed to fit; its metrics are then invalid.
type CandidateScore struct {
	Algorithm string  `json:"algorithm"`
	MAE       float64 `json:"mae"`
	R2        float64 `json:"r2"`
	Err       string  `json:"error,omitempty"`
}

// Result is the outcome of a training run: the winning fitted model
// plus every candidate's score for transparency.
type Result struct {
	Best       model.Regressor
	Algorithm  string
	MAE        float64
	R2         float64
	Candidates []CandidateScore
}

// Trainer fits and scores candidates. It is stateless across runs.
type Trainer struct {
	cfg    Config
	logger *slog.Logger
}

// New returns a Trainer, filling zero config fields with defaults.
func New(cfg Config) *Trainer {
	if cfg.TestRatio <= 0 || cfg.TestRatio >= 1 {
		cfg.TestRatio = DefaultTestRatio
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}
	if cfg.MinRows <= 0 {
		cfg.MinRows = DefaultMinRows
	}
	return &Trainer{cfg: cfg, logger: slog.Default()}
}

// Train splits X/y deterministically, fits every candidate on the
// training partition concurrently, and returns the candidate with the
// lowest held-out MAE. A candidate that fails to fit is recorded in
// the scores but does not abort the run unless every candidate fails.
func (t *Trainer) Train(ctx context.Context, X [][]float64, y []float64, candidates []string) (*Result, error) {
	if len(X) != len(y) {
		return nil, errors.New("training: X and y length mismatch")
	}
	if len(X) < t.cfg.MinRows {
		return nil, &InsufficientDataError{Rows: len(X), MinRows: t.cfg.MinRows}
	}
	if len(candidates) == 0 {
		candidates = model.DefaultCandidates()
	}

	XTrain, XTest, yTrain, yTest := trainTestSplit(X, y, t.cfg.TestRatio, t.cfg.Seed)

	fitted := make([]model.Regressor, len(candidates))
	scores := make([]CandidateScore, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range candidates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			scores[i] = CandidateScore{Algorithm: name}

			m, err := model.New(name, t.cfg.Seed)
			if err != nil {
				return err
			}
			if err := m.Fit(XTrain, yTrain); err != nil {
				scores[i].Err = err.Error()
				return nil
			}

			pred := m.Predict(XTest)
			scores[i].MAE = model.MAE(yTest, pred)
			scores[i].R2 = model.R2(yTest, pred)
			fitted[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := -1
	for i := range scores {
		if scores[i].Err != "" {
			t.logger.Warn("candidate failed to fit", "algorithm", scores[i].Algorithm, "error", scores[i].Err)
			continue
		}
		if best < 0 || scores[i].MAE < scores[best].MAE {
			best = i
		}
	}
	if best < 0 {
		return nil, errors.New("training: every candidate failed to fit")
	}

	t.logger.Info("training complete",
		"algorithm", scores[best].Algorithm,
		"mae", scores[best].MAE,
		"r2", scores[best].R2,
		"rows", len(X),
		"candidates", len(candidates),
	)

	return &Result{
		Best:       fitted[best],
		Algorithm:  scores[best].Algorithm,
		MAE:        scores[best].MAE,
		R2:         scores[best].R2,
		Candidates: scores,
	}, nil
}
