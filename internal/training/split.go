package training

import "math/rand"

// trainTestSplit partitions X/y with a seeded permutation so the same
// dataset, ratio, and seed always produce the same split. At least one
// row lands in each partition.
func trainTestSplit(X [][]float64, y []float64, testRatio float64, seed int64) (XTrain, XTest [][]float64, yTrain, yTest []float64) {
	n := len(X)
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	nTest := int(float64(n) * testRatio)
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}

	for i, idx := range perm {
		if i < nTest {
			XTest = append(XTest, X[idx])
			yTest = append(yTest, y[idx])
		} else {
			XTrain = append(XTrain, X[idx])
			yTrain = append(yTrain, y[idx])
		}
	}
	return XTrain, XTest, yTrain, yTest
}
