// Package model implements the candidate regression algorithms and the
// metrics used to score them on a held-out split.
package model

import "fmt"

// Algorithm names accepted by New and stored with model versions.
const (
	AlgorithmLinear           = "linear"
	AlgorithmDecisionTree     = "decision_tree"
	AlgorithmRandomForest     = "random_forest"
	AlgorithmGradientBoosting = "gradient_boosting"
)

// Regressor is a supervised regression model.
type Regressor interface {
	// Fit trains on X (rows of features) and the parallel target y.
	Fit(X [][]float64, y []float64) error
	// Predict returns one estimate per row of X.
	Predict(X [][]float64) []float64
	// Name returns the algorithm name.
	Name() string
}

// DefaultCandidates is the algorithm set trained when a request does
// not name its own.
func DefaultCandidates() []string {
	return []string{
		AlgorithmLinear,
		AlgorithmDecisionTree,
		AlgorithmRandomForest,
		AlgorithmGradientBoosting,
	}
}

// New builds an untrained regressor by algorithm name. The seed keeps
// tree-based candidates reproducible across runs.
func New(algorithm string, seed int64) (Regressor, error) {
	switch algorithm {
	case AlgorithmLinear:
		return NewLinearRegression(), nil
	case AlgorithmDecisionTree:
		return NewRegressionTree(WithSeed(seed)), nil
	case AlgorithmRandomForest:
		return NewRandomForest(WithForestSeed(seed)), nil
	case AlgorithmGradientBoosting:
		return NewGradientBoosting(WithBoostingSeed(seed)), nil
	}
	return nil, fmt.Errorf("unknown algorithm %q", algorithm)
}
