package model

import (
	"errors"
	"math/rand"
	"sort"
)

// RegressionTree is a CART-style regression tree splitting on variance
// reduction. Fields are exported so fitted trees serialize with gob.
type RegressionTree struct {
	MaxDepth        int // 0 means no depth limit
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 means consider every feature at each split
	Seed            int64

	Root *TreeNode
}

// TreeNode is one node of a fitted tree. Leaf nodes carry the mean
// target of their training samples in Value.
type TreeNode struct {
	Leaf      bool
	Feature   int
	Threshold float64 // x[Feature] <= Threshold goes left
	Value     float64
	Left      *TreeNode
	Right     *TreeNode
}

// TreeOption configures a RegressionTree.
type TreeOption func(*RegressionTree)

func WithMaxDepth(d int) TreeOption        { return func(t *RegressionTree) { t.MaxDepth = d } }
func WithMinSamplesSplit(n int) TreeOption { return func(t *RegressionTree) { t.MinSamplesSplit = n } }
func WithMinSamplesLeaf(n int) TreeOption  { return func(t *RegressionTree) { t.MinSamplesLeaf = n } }
func WithMaxFeatures(k int) TreeOption     { return func(t *RegressionTree) { t.MaxFeatures = k } }
func WithSeed(seed int64) TreeOption       { return func(t *RegressionTree) { t.Seed = seed } }

// NewRegressionTree returns a tree with defaults suited to small
// tabular datasets.
func NewRegressionTree(opts ...TreeOption) *RegressionTree {
	t := &RegressionTree{
		MaxDepth:        12,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *RegressionTree) Name() string { return AlgorithmDecisionTree }

// Fit builds the tree over all rows of X.
func (t *RegressionTree) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return errors.New("tree: empty X")
	}
	if len(y) != len(X) {
		return errors.New("tree: X and y length mismatch")
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return errors.New("tree: inconsistent feature count in X rows")
		}
	}

	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	rnd := rand.New(rand.NewSource(t.Seed))
	t.Root = t.build(X, y, idx, 0, rnd)
	return nil
}

// FitIndices builds the tree over the given sample indices only.
// Used by the forest for bootstrap samples without copying rows.
func (t *RegressionTree) FitIndices(X [][]float64, y []float64, idx []int, rnd *rand.Rand) error {
	if len(idx) == 0 {
		return errors.New("tree: empty sample")
	}
	t.Root = t.build(X, y, idx, 0, rnd)
	return nil
}

// Predict walks each row down the fitted tree.
func (t *RegressionTree) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = t.predictRow(row)
	}
	return out
}

func (t *RegressionTree) predictRow(row []float64) float64 {
	node := t.Root
	for node != nil && !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	if node == nil {
		return 0
	}
	return node.Value
}

func (t *RegressionTree) build(X [][]float64, y []float64, idx []int, depth int, rnd *rand.Rand) *TreeNode {
	mean, sse := meanSSE(y, idx)

	if len(idx) < t.MinSamplesSplit || sse == 0 || (t.MaxDepth > 0 && depth >= t.MaxDepth) {
		return &TreeNode{Leaf: true, Value: mean}
	}

	feat, thr, ok := t.bestSplit(X, y, idx, rnd)
	if !ok {
		return &TreeNode{Leaf: true, Value: mean}
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < t.MinSamplesLeaf || len(right) < t.MinSamplesLeaf {
		return &TreeNode{Leaf: true, Value: mean}
	}

	return &TreeNode{
		Feature:   feat,
		Threshold: thr,
		Left:      t.build(X, y, left, depth+1, rnd),
		Right:     t.build(X, y, right, depth+1, rnd),
	}
}

// bestSplit scans candidate features for the threshold minimizing the
// summed squared error of the two children. Sorted-scan with prefix
// sums, so each feature costs O(n log n).
func (t *RegressionTree) bestSplit(X [][]float64, y []float64, idx []int, rnd *rand.Rand) (feature int, threshold float64, ok bool) {
	p := len(X[idx[0]])
	features := t.candidateFeatures(p, rnd)

	bestScore := 0.0
	first := true

	sorted := make([]int, len(idx))
	for _, f := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

		total := 0.0
		totalSq := 0.0
		for _, i := range sorted {
			total += y[i]
			totalSq += y[i] * y[i]
		}

		sumL, sumSqL := 0.0, 0.0
		n := len(sorted)
		for k := 0; k < n-1; k++ {
			v := y[sorted[k]]
			sumL += v
			sumSqL += v * v

			// Only split between distinct feature values.
			if X[sorted[k]][f] == X[sorted[k+1]][f] {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < t.MinSamplesLeaf || nr < t.MinSamplesLeaf {
				continue
			}

			sumR := total - sumL
			sumSqR := totalSq - sumSqL
			score := (sumSqL - sumL*sumL/float64(nl)) + (sumSqR - sumR*sumR/float64(nr))

			if first || score < bestScore {
				first = false
				bestScore = score
				feature = f
				threshold = (X[sorted[k]][f] + X[sorted[k+1]][f]) / 2
			}
		}
	}

	return feature, threshold, !first
}

// candidateFeatures returns every feature index, or a random subset of
// MaxFeatures of them when feature subsampling is enabled.
func (t *RegressionTree) candidateFeatures(p int, rnd *rand.Rand) []int {
	if t.MaxFeatures <= 0 || t.MaxFeatures >= p {
		all := make([]int, p)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return rnd.Perm(p)[:t.MaxFeatures]
}

func meanSSE(y []float64, idx []int) (mean, sse float64) {
	for _, i := range idx {
		mean += y[i]
	}
	mean /= float64(len(idx))
	for _, i := range idx {
		d := y[i] - mean
		sse += d * d
	}
	return mean, sse
}
