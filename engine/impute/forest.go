package impute

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	ensembleTrees   = 20
	maxTreeDepth    = 6
	minLeafSamples  = 3
	minTrainSamples = 5
)

// TreeNode is one node of a fitted regression tree. Leaves carry the mean of
// their training targets.
type TreeNode struct {
	Leaf      bool      `json:"leaf"`
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
}

// TreeEnsemble is a bagged ensemble of regression trees used for predictive
// imputation. Fitting is deterministic for a fixed seed; prediction averages
// the per-tree outputs.
type TreeEnsemble struct {
	Target           string      `json:"target"`
	PredictorNames   []string    `json:"predictor_names"`
	PredictorMedians []float64   `json:"predictor_medians"`
	Trees            []*TreeNode `json:"trees"`
}

// Predictors returns the predictor column names in fit order.
func (e *TreeEnsemble) Predictors() []string {
	out := make([]string, len(e.PredictorNames))
	copy(out, e.PredictorNames)
	return out
}

// PredictRow fills one cell from the row's other features. Predictors absent
// from the map (or NaN) are substituted with their training medians.
func (e *TreeEnsemble) PredictRow(features map[string]float64) float64 {
	row := make([]float64, len(e.PredictorNames))
	for i, name := range e.PredictorNames {
		v, ok := features[name]
		if !ok || math.IsNaN(v) {
			v = e.PredictorMedians[i]
		}
		row[i] = v
	}

	sum := 0.0
	for _, tree := range e.Trees {
		sum += predictTree(tree, row)
	}
	return sum / float64(len(e.Trees))
}

func predictTree(node *TreeNode, row []float64) float64 {
	for !node.Leaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

// FitEnsemble trains a bagged regression-tree ensemble on the observed rows
// of the target column. X is row-major with one column per predictor; NaN
// predictor cells are substituted with the predictor's median before fitting.
func FitEnsemble(target string, predictorNames []string, X [][]float64, y []float64, rng *rand.Rand) (*TreeEnsemble, error) {
	if len(y) < minTrainSamples {
		return nil, fmt.Errorf("need at least %d training rows, got %d", minTrainSamples, len(y))
	}
	if len(predictorNames) == 0 {
		return nil, fmt.Errorf("no predictors available")
	}
	for i, row := range X {
		if len(row) != len(predictorNames) {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), len(predictorNames))
		}
	}

	medians := predictorMedians(X, len(predictorNames))

	// Degenerate design: every predictor constant.
	usable := 0
	for j := range predictorNames {
		if columnVaries(X, j, medians[j]) {
			usable++
		}
	}
	if usable == 0 {
		return nil, fmt.Errorf("all predictors are constant")
	}

	filled := make([][]float64, len(X))
	for i, row := range X {
		filled[i] = make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) {
				v = medians[j]
			}
			filled[i][j] = v
		}
	}

	ensemble := &TreeEnsemble{
		Target:           target,
		PredictorNames:   predictorNames,
		PredictorMedians: medians,
		Trees:            make([]*TreeNode, 0, ensembleTrees),
	}

	featureSubset := int(math.Ceil(math.Sqrt(float64(len(predictorNames)))))
	for t := 0; t < ensembleTrees; t++ {
		// Bootstrap sample with replacement.
		idx := make([]int, len(y))
		for i := range idx {
			idx[i] = rng.Intn(len(y))
		}
		tree := growTree(filled, y, idx, featureSubset, 0, rng)
		ensemble.Trees = append(ensemble.Trees, tree)
	}

	return ensemble, nil
}

func predictorMedians(X [][]float64, cols int) []float64 {
	medians := make([]float64, cols)
	for j := 0; j < cols; j++ {
		var observed []float64
		for _, row := range X {
			if !math.IsNaN(row[j]) {
				observed = append(observed, row[j])
			}
		}
		if len(observed) == 0 {
			medians[j] = 0
			continue
		}
		sort.Float64s(observed)
		mid := len(observed) / 2
		if len(observed)%2 == 1 {
			medians[j] = observed[mid]
		} else {
			medians[j] = (observed[mid-1] + observed[mid]) / 2
		}
	}
	return medians
}

func columnVaries(X [][]float64, col int, fill float64) bool {
	first := math.NaN()
	for _, row := range X {
		v := row[col]
		if math.IsNaN(v) {
			v = fill
		}
		if math.IsNaN(first) {
			first = v
		} else if v != first {
			return true
		}
	}
	return false
}

// growTree builds a tree by greedy variance-reduction splits over a random
// feature subset at each node.
func growTree(X [][]float64, y []float64, idx []int, featureSubset, depth int, rng *rand.Rand) *TreeNode {
	mean := subsetMean(y, idx)
	if depth >= maxTreeDepth || len(idx) < 2*minLeafSamples || subsetConstant(y, idx) {
		return &TreeNode{Leaf: true, Value: mean}
	}

	feature, threshold, ok := bestSplit(X, y, idx, featureSubset, rng)
	if !ok {
		return &TreeNode{Leaf: true, Value: mean}
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < minLeafSamples || len(right) < minLeafSamples {
		return &TreeNode{Leaf: true, Value: mean}
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growTree(X, y, left, featureSubset, depth+1, rng),
		Right:     growTree(X, y, right, featureSubset, depth+1, rng),
	}
}

// bestSplit searches a random subset of features for the threshold with the
// largest weighted variance reduction.
func bestSplit(X [][]float64, y []float64, idx []int, featureSubset int, rng *rand.Rand) (int, float64, bool) {
	numFeatures := len(X[0])
	perm := rng.Perm(numFeatures)
	if featureSubset < numFeatures {
		perm = perm[:featureSubset]
	}

	parentSSE := subsetSSE(y, idx)
	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	for _, f := range perm {
		values := make([]float64, 0, len(idx))
		for _, i := range idx {
			values = append(values, X[i][f])
		}
		sort.Float64s(values)

		for s := 1; s < len(values); s++ {
			if values[s] == values[s-1] {
				continue
			}
			threshold := (values[s] + values[s-1]) / 2

			var leftSum, leftSq, rightSum, rightSq float64
			var leftN, rightN int
			for _, i := range idx {
				if X[i][f] <= threshold {
					leftSum += y[i]
					leftSq += y[i] * y[i]
					leftN++
				} else {
					rightSum += y[i]
					rightSq += y[i] * y[i]
					rightN++
				}
			}
			if leftN < minLeafSamples || rightN < minLeafSamples {
				continue
			}

			leftSSE := leftSq - leftSum*leftSum/float64(leftN)
			rightSSE := rightSq - rightSum*rightSum/float64(rightN)
			gain := parentSSE - leftSSE - rightSSE
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = threshold
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

func subsetMean(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func subsetSSE(y []float64, idx []int) float64 {
	mean := subsetMean(y, idx)
	sse := 0.0
	for _, i := range idx {
		d := y[i] - mean
		sse += d * d
	}
	return sse
}

func subsetConstant(y []float64, idx []int) bool {
	for _, i := range idx[1:] {
		if y[i] != y[idx[0]] {
			return false
		}
	}
	return true
}
