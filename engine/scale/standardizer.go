// Package scale rescales numeric features to zero mean and unit variance.
// Per-column parameters are fitted once and persisted so new rows transform
// identically.
package scale

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"gosegment/domain/core"
	"gosegment/domain/schema"
	"gosegment/domain/segment"
	"gosegment/internal"
	"gosegment/internal/config"
)

// zeroVarianceEps guards the division in (x - mean) / std.
const zeroVarianceEps = 1e-12

// Standardizer fits and applies z-score scaling.
type Standardizer struct {
	cfg    config.EngineConfig
	logger *internal.Logger
}

// NewStandardizer creates a standardizer with the given tolerances.
func NewStandardizer(cfg config.EngineConfig) *Standardizer {
	return &Standardizer{cfg: cfg, logger: internal.DefaultLogger.Component("Scale")}
}

// Fit computes per-column mean and standard deviation from the training
// data. Protected and non-numeric columns are excluded, as are zero-variance
// columns; every exclusion is recorded with its reason.
func (s *Standardizer) Fit(ds *schema.Dataset) (*segment.ScaleParams, error) {
	params := &segment.ScaleParams{FittedAt: core.Now()}

	for _, col := range ds.Columns() {
		if !col.Scalable() {
			params.Columns = append(params.Columns, segment.ColumnScale{
				Column:   col.Name,
				Excluded: true,
				Reason:   excludeReason(col),
			})
			continue
		}

		values, err := ds.Column(col.Name)
		if err != nil {
			return nil, err
		}
		var observed []float64
		for _, v := range values {
			if !math.IsNaN(v) {
				observed = append(observed, v)
			}
		}
		if len(observed) == 0 {
			return nil, core.NewDegenerateFeatureError(col.Name, "no observed values")
		}
		if len(observed) < len(values) {
			// Still missing after imputation: an unimputed pass-through
			// column. Scaling it would distort the unit-variance guarantee.
			s.logger.Warn("column %s still has missing values; excluded from scaling", col.Name)
			params.Columns = append(params.Columns, segment.ColumnScale{
				Column:   col.Name,
				Excluded: true,
				Reason:   "unimputed missing values",
			})
			continue
		}

		mean, err := stats.Mean(observed)
		if err != nil {
			return nil, core.NewDegenerateFeatureError(col.Name, err.Error())
		}
		std, err := stats.StandardDeviation(observed)
		if err != nil {
			return nil, core.NewDegenerateFeatureError(col.Name, err.Error())
		}

		if std < zeroVarianceEps {
			s.logger.Warn("column %s has zero variance; excluded from scaling", col.Name)
			params.Columns = append(params.Columns, segment.ColumnScale{
				Column:   col.Name,
				Mean:     mean,
				Excluded: true,
				Reason:   "zero variance",
			})
			continue
		}

		params.Columns = append(params.Columns, segment.ColumnScale{
			Column: col.Name,
			Mean:   mean,
			Std:    std,
		})
	}

	return params, nil
}

// Transform applies (x - mean) / std to every scaled column, producing a new
// dataset. Residual missing values after transformation are zero-filled;
// with a completed imputation upstream this branch is unreachable.
func (s *Standardizer) Transform(ds *schema.Dataset, params *segment.ScaleParams) (*schema.Dataset, error) {
	replacements := make(map[string][]float64)

	for _, colScale := range params.Columns {
		if colScale.Excluded {
			continue
		}
		values, err := ds.Column(colScale.Column)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			if math.IsNaN(v) {
				values[i] = 0
				continue
			}
			values[i] = (v - colScale.Mean) / colScale.Std
		}
		replacements[colScale.Column] = values
	}

	if len(replacements) == 0 {
		return nil, core.NewDegenerateFeatureError("dataset", "no scalable columns")
	}
	return ds.WithColumns(replacements)
}

// Verify checks the standardization postcondition on a transformed training
// matrix: every scaled column has mean within MeanTol of 0 and standard
// deviation within StdTol of 1.
func (s *Standardizer) Verify(ds *schema.Dataset, params *segment.ScaleParams) error {
	for _, colScale := range params.Columns {
		if colScale.Excluded {
			continue
		}
		values, err := ds.Column(colScale.Column)
		if err != nil {
			return err
		}

		mean, err := stats.Mean(values)
		if err != nil {
			return err
		}
		std, err := stats.StandardDeviation(values)
		if err != nil {
			return err
		}

		if math.Abs(mean) > s.cfg.MeanTol {
			return core.NewDegenerateFeatureError(colScale.Column,
				fmt.Sprintf("post-scaling mean %.3g exceeds tolerance %.3g", mean, s.cfg.MeanTol))
		}
		if math.Abs(std-1) > s.cfg.StdTol {
			return core.NewDegenerateFeatureError(colScale.Column,
				fmt.Sprintf("post-scaling std %.3g outside tolerance %.3g of 1", std, s.cfg.StdTol))
		}
	}
	return nil
}

func excludeReason(col schema.FeatureColumn) string {
	if col.Protected {
		return "protected column"
	}
	return fmt.Sprintf("role %s not scalable", col.Role)
}
