// Package reduce projects standardized features onto a smaller orthogonal
// basis via eigen-decomposition of the covariance matrix, retaining the
// minimal prefix of components that meets the variance threshold.
package reduce

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"gosegment/domain/core"
	"gosegment/domain/schema"
	"gosegment/domain/segment"
	"gosegment/internal"
	"gosegment/internal/config"
)

// Reducer fits and applies the variance-preserving projection.
type Reducer struct {
	cfg    config.EngineConfig
	logger *internal.Logger
}

// NewReducer creates a reducer with the configured variance threshold.
func NewReducer(cfg config.EngineConfig) *Reducer {
	return &Reducer{cfg: cfg, logger: internal.DefaultLogger.Component("Reduce")}
}

// Fit eigen-decomposes the covariance matrix of the scaled columns and
// retains components in descending explained-variance order until the
// cumulative ratio meets the threshold. If the matrix has too few
// non-degenerate columns to reach it, all components are retained and the
// shortfall is noted on the result.
func (r *Reducer) Fit(ds *schema.Dataset, params *segment.ScaleParams) (*segment.Reduction, error) {
	features := params.ScaledColumns()
	if len(features) == 0 {
		return nil, core.NewDegenerateFeatureError("dataset", "no scaled columns to reduce")
	}

	X, err := buildMatrix(ds, features)
	if err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if rows < 2 {
		return nil, core.NewInsufficientDataError("dataset", rows, 2)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, X, nil)

	var eig mat.EigenSym
	if !eig.Factorize(&cov, true) {
		return nil, core.NewDegenerateFeatureError("covariance", "eigen-decomposition failed to converge")
	}

	eigenvalues := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// gonum returns eigenvalues in ascending order; the basis is ranked by
	// descending explained variance.
	total := 0.0
	for i, v := range eigenvalues {
		if v < 0 {
			// Numerical noise around zero.
			eigenvalues[i] = 0
			v = 0
		}
		total += v
	}
	if total <= 0 {
		return nil, core.NewDegenerateFeatureError("covariance", "total variance is zero")
	}

	reduction := &segment.Reduction{
		FeatureNames: features,
		Threshold:    r.cfg.VarianceThreshold,
		FittedAt:     core.Now(),
	}

	cumulative := 0.0
	for rank := 0; rank < cols; rank++ {
		src := cols - 1 - rank // descending eigenvalue order
		evr := eigenvalues[src] / total

		loadings := make([]float64, cols)
		for j := 0; j < cols; j++ {
			loadings[j] = vectors.At(j, src)
		}
		orientLoadings(loadings)

		reduction.Components = append(reduction.Components, segment.Component{
			Index:                  rank,
			Loadings:               loadings,
			ExplainedVarianceRatio: evr,
		})
		cumulative += evr

		if cumulative >= r.cfg.VarianceThreshold {
			reduction.ThresholdMet = true
			break
		}
	}

	reduction.CumulativeEVR = cumulative
	if !reduction.ThresholdMet {
		r.logger.Warn("only %.3f cumulative variance available across %d components; threshold %.2f not met",
			cumulative, len(reduction.Components), r.cfg.VarianceThreshold)
	}

	return reduction, nil
}

// Transform projects the scaled columns onto the retained basis, producing a
// row-major matrix with one column per component.
func (r *Reducer) Transform(ds *schema.Dataset, reduction *segment.Reduction) ([][]float64, error) {
	X, err := buildMatrix(ds, reduction.FeatureNames)
	if err != nil {
		return nil, err
	}
	rows, cols := X.Dims()

	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, len(reduction.Components))
		for c, comp := range reduction.Components {
			score := 0.0
			for j := 0; j < cols; j++ {
				score += X.At(i, j) * comp.Loadings[j]
			}
			out[i][c] = score
		}
	}
	return out, nil
}

// buildMatrix assembles a row-major dense matrix from the named columns.
func buildMatrix(ds *schema.Dataset, features []string) (*mat.Dense, error) {
	rows := ds.Rows()
	X := mat.NewDense(rows, len(features), nil)
	for j, name := range features {
		values, err := ds.Column(name)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			if math.IsNaN(v) {
				return nil, core.NewDegenerateFeatureError(name,
					fmt.Sprintf("missing value at row %d after imputation", i))
			}
			X.Set(i, j, v)
		}
	}
	return X, nil
}

// orientLoadings fixes the sign convention so the largest-magnitude loading
// is positive. Eigenvectors are sign-ambiguous; pinning the sign keeps
// fingerprints deterministic across runs.
func orientLoadings(loadings []float64) {
	maxAbs := 0.0
	maxIdx := 0
	for j, v := range loadings {
		if math.Abs(v) > maxAbs {
			maxAbs = math.Abs(v)
			maxIdx = j
		}
	}
	if loadings[maxIdx] < 0 {
		for j := range loadings {
			loadings[j] = -loadings[j]
		}
	}
}
