package model

import (
	"errors"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// RandomForest averages bootstrap-sampled regression trees. Trees are
// fitted concurrently, each with its own seeded source.
type RandomForest struct {
	NEstimators    int
	MaxDepth       int
	MinSamplesLeaf int
	MaxFeatures    int // 0 means p/3 per split, the regression default
	Bootstrap      bool
	Seed           int64

	Trees []*RegressionTree
}

// ForestOption configures a RandomForest.
type ForestOption func(*RandomForest)

func WithNEstimators(n int) ForestOption  { return func(f *RandomForest) { f.NEstimators = n } }
func WithForestDepth(d int) ForestOption  { return func(f *RandomForest) { f.MaxDepth = d } }
func WithForestSeed(s int64) ForestOption { return func(f *RandomForest) { f.Seed = s } }

// NewRandomForest returns a forest with defaults suited to small
// tabular datasets.
func NewRandomForest(opts ...ForestOption) *RandomForest {
	f := &RandomForest{
		NEstimators:    100,
		MaxDepth:       12,
		MinSamplesLeaf: 1,
		Bootstrap:      true,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *RandomForest) Name() string { return AlgorithmRandomForest }

// Fit trains every tree on its own bootstrap sample. Sampling is
// index-based; rows are never copied.
func (f *RandomForest) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return errors.New("forest: empty X")
	}
	if len(y) != len(X) {
		return errors.New("forest: X and y length mismatch")
	}

	n := len(X)
	maxFeatures := f.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = max(1, len(X[0])/3)
	}

	f.Trees = make([]*RegressionTree, f.NEstimators)
	var g errgroup.Group
	for i := 0; i < f.NEstimators; i++ {
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(f.Seed + int64(i)))

			sample := make([]int, n)
			for j := range sample {
				if f.Bootstrap {
					sample[j] = rnd.Intn(n)
				} else {
					sample[j] = j
				}
			}

			tree := NewRegressionTree(
				WithMaxDepth(f.MaxDepth),
				WithMinSamplesLeaf(f.MinSamplesLeaf),
				WithMaxFeatures(maxFeatures),
			)
			if err := tree.FitIndices(X, y, sample, rnd); err != nil {
				return err
			}
			f.Trees[i] = tree
			return nil
		})
	}
	return g.Wait()
}

// Predict returns the mean of the per-tree estimates.
func (f *RandomForest) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(f.Trees) == 0 {
		return out
	}
	for _, tree := range f.Trees {
		for i, v := range tree.Predict(X) {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(f.Trees))
	}
	return out
}
