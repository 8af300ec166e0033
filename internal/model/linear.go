package model

import (
	"errors"
	"fmt"
	"math"
)

// LinearRegression fits ordinary least squares via the normal
// equations, with a small ridge term on the weights (never the bias)
// to keep near-collinear feature sets solvable.
type LinearRegression struct {
	W      []float64 // weights, one per feature
	B      float64   // bias
	Lambda float64
}

// NewLinearRegression returns an untrained model with the default
// ridge stabilizer.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{Lambda: 1e-8}
}

func (m *LinearRegression) Name() string { return AlgorithmLinear }

// Fit solves (Z'Z + lambda*I) w = Z'y where Z is X augmented with a
// constant column for the bias.
func (m *LinearRegression) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return errors.New("linear: empty X")
	}
	if len(y) != len(X) {
		return errors.New("linear: X and y length mismatch")
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return errors.New("linear: inconsistent feature count in X rows")
		}
	}

	// Normal matrix over the augmented feature vector [x_0..x_{p-1}, 1].
	n := p + 1
	A := make([][]float64, n)
	for i := range A {
		A[i] = make([]float64, n)
	}
	b := make([]float64, n)

	for r, row := range X {
		for i := 0; i < n; i++ {
			zi := 1.0
			if i < p {
				zi = row[i]
			}
			b[i] += zi * y[r]
			for j := i; j < n; j++ {
				zj := 1.0
				if j < p {
					zj = row[j]
				}
				A[i][j] += zi * zj
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			A[i][j] = A[j][i]
		}
	}
	// Ridge on the weight block only.
	for i := 0; i < p; i++ {
		A[i][i] += m.Lambda
	}

	w, err := solveLinearSystem(A, b)
	if err != nil {
		return fmt.Errorf("linear: %w", err)
	}

	m.W = w[:p]
	m.B = w[p]
	return nil
}

// Predict returns the affine estimate for each row.
func (m *LinearRegression) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		sum := m.B
		for j, v := range row {
			sum += m.W[j] * v
		}
		out[i] = sum
	}
	return out
}

// solveLinearSystem performs Gaussian elimination with partial
// pivoting on A x = b. A and b are modified in place.
func solveLinearSystem(A [][]float64, b []float64) ([]float64, error) {
	n := len(A)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(A[r][col]) > math.Abs(A[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(A[pivot][col]) < 1e-12 {
			return nil, errors.New("singular normal matrix")
		}
		A[col], A[pivot] = A[pivot], A[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := A[r][col] / A[col][col]
			if f == 0 {
				continue
			}
			for c := col; c < n; c++ {
				A[r][c] -= f * A[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= A[i][j] * x[j]
		}
		x[i] = sum / A[i][i]
	}
	return x, nil
}
