package model

import (
	"errors"
	"math/rand"
)

// GradientBoosting fits shallow regression trees to the residuals of
// the running ensemble, shrunk by the learning rate. Squared loss, so
// residuals are plain differences.
type GradientBoosting struct {
	NEstimators    int
	LearningRate   float64
	MaxDepth       int
	MinSamplesLeaf int
	Seed           int64

	Init  float64 // base prediction: mean of the training target
	Trees []*RegressionTree
}

// BoostingOption configures a GradientBoosting model.
type BoostingOption func(*GradientBoosting)

func WithBoostingRounds(n int) BoostingOption {
	return func(b *GradientBoosting) { b.NEstimators = n }
}
func WithLearningRate(lr float64) BoostingOption {
	return func(b *GradientBoosting) { b.LearningRate = lr }
}
func WithBoostingSeed(s int64) BoostingOption {
	return func(b *GradientBoosting) { b.Seed = s }
}

// NewGradientBoosting returns a model with conventional defaults.
func NewGradientBoosting(opts ...BoostingOption) *GradientBoosting {
	b := &GradientBoosting{
		NEstimators:    100,
		LearningRate:   0.1,
		MaxDepth:       3,
		MinSamplesLeaf: 1,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *GradientBoosting) Name() string { return AlgorithmGradientBoosting }

// Fit builds the ensemble stage by stage. Stages are sequential by
// construction; each tree sees the residuals of everything before it.
func (b *GradientBoosting) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return errors.New("boosting: empty X")
	}
	if len(y) != len(X) {
		return errors.New("boosting: X and y length mismatch")
	}

	n := len(X)
	b.Init = 0
	for _, v := range y {
		b.Init += v
	}
	b.Init /= float64(n)

	current := make([]float64, n)
	for i := range current {
		current[i] = b.Init
	}
	residual := make([]float64, n)

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	b.Trees = make([]*RegressionTree, 0, b.NEstimators)
	for m := 0; m < b.NEstimators; m++ {
		done := true
		for i := range residual {
			residual[i] = y[i] - current[i]
			if residual[i] != 0 {
				done = false
			}
		}
		if done {
			break
		}

		tree := NewRegressionTree(
			WithMaxDepth(b.MaxDepth),
			WithMinSamplesLeaf(b.MinSamplesLeaf),
		)
		rnd := rand.New(rand.NewSource(b.Seed + int64(m)))
		if err := tree.FitIndices(X, residual, idx, rnd); err != nil {
			return err
		}
		b.Trees = append(b.Trees, tree)

		for i, v := range tree.Predict(X) {
			current[i] += b.LearningRate * v
		}
	}

	return nil
}

// Predict sums the shrunk stage estimates on top of the base value.
func (b *GradientBoosting) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i := range out {
		out[i] = b.Init
	}
	for _, tree := range b.Trees {
		for i, v := range tree.Predict(X) {
			out[i] += b.LearningRate * v
		}
	}
	return out
}
