package segment

import (
	"encoding/json"
	"fmt"

	"gosegment/domain/core"
)

// ============================================================================
// MISSINGNESS
// ============================================================================

// Mechanism describes the statistical dependence between a column's
// missingness and the data values.
type Mechanism string

const (
	MechanismMCAR          Mechanism = "mcar"
	MechanismMAR           Mechanism = "mar"
	MechanismMNAR          Mechanism = "mnar"
	MechanismIndeterminate Mechanism = "indeterminate"
)

// ColumnMissingness is the per-column mechanism classification with its
// supporting test statistics.
type ColumnMissingness struct {
	Column          string    `json:"column"`
	MissingFraction float64   `json:"missing_fraction"`
	Mechanism       Mechanism `json:"mechanism"`
	ChiSquare       float64   `json:"chi_square"`
	DegreesFreedom  int       `json:"degrees_freedom"`
	PValue          float64   `json:"p_value"`
	BestMIScore     float64   `json:"best_mi_score"`
	BestMIColumn    string    `json:"best_mi_column,omitempty"`
	Note            string    `json:"note,omitempty"`
}

// MissingnessReport is the full per-column classification table.
type MissingnessReport struct {
	Columns    []ColumnMissingness `json:"columns"`
	ComputedAt core.Timestamp      `json:"computed_at"`
}

// ByColumn returns the entry for a named column.
func (r *MissingnessReport) ByColumn(name string) (ColumnMissingness, bool) {
	for _, c := range r.Columns {
		if c.Column == name {
			return c, true
		}
	}
	return ColumnMissingness{}, false
}

// MNARColumns lists columns flagged for manual handling.
func (r *MissingnessReport) MNARColumns() []string {
	var out []string
	for _, c := range r.Columns {
		if c.Mechanism == MechanismMNAR {
			out = append(out, c.Column)
		}
	}
	return out
}

// ============================================================================
// IMPUTATION
// ============================================================================

// Strategy is the per-column fill strategy chosen by the imputation engine.
type Strategy string

const (
	StrategyMedian     Strategy = "simple_median"
	StrategyMode       Strategy = "simple_mode"
	StrategyPredictive Strategy = "predictive"
	StrategyNone       Strategy = "none" // MNAR columns pass through unimputed
)

// PredictiveModel fills a single missing cell from the row's other observed
// features. Implementations must be deterministic for a fixed training seed.
type PredictiveModel interface {
	PredictRow(features map[string]float64) float64
	Predictors() []string
}

// ColumnPlan is the fitted imputation decision for one column.
type ColumnPlan struct {
	Column    string          `json:"column"`
	Strategy  Strategy        `json:"strategy"`
	FillValue float64         `json:"fill_value,omitempty"`
	Model     PredictiveModel `json:"model,omitempty"`
	FellBack  bool            `json:"fell_back"`
	Reason    string          `json:"reason,omitempty"`

	// RawModel holds the serialized model when the plan was loaded from
	// storage. The imputation engine revives it into Model before replay.
	RawModel json.RawMessage `json:"-"`
}

// UnmarshalJSON defers model decoding: the concrete model type lives outside
// this package, so the payload is kept raw until the engine revives it.
func (p *ColumnPlan) UnmarshalJSON(data []byte) error {
	type alias ColumnPlan
	aux := struct {
		*alias
		Model json.RawMessage `json:"model,omitempty"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.RawModel = aux.Model
	p.Model = nil
	return nil
}

// ImputationPlan is computed once per training run and persisted so future
// unseen rows are imputed identically.
type ImputationPlan struct {
	Plans       []ColumnPlan   `json:"plans"`
	Seed        int64          `json:"seed"`
	Fingerprint core.Hash      `json:"fingerprint"`
	FittedAt    core.Timestamp `json:"fitted_at"`
}

// ByColumn returns the plan for a named column.
func (p *ImputationPlan) ByColumn(name string) (ColumnPlan, bool) {
	for _, plan := range p.Plans {
		if plan.Column == name {
			return plan, true
		}
	}
	return ColumnPlan{}, false
}

// UnimputedColumns lists columns left untouched (MNAR or protected
// pass-through).
func (p *ImputationPlan) UnimputedColumns() []string {
	var out []string
	for _, plan := range p.Plans {
		if plan.Strategy == StrategyNone {
			out = append(out, plan.Column)
		}
	}
	return out
}

// ============================================================================
// STANDARDIZATION
// ============================================================================

// ColumnScale carries the fitted mean/scale for one column, or the reason it
// was excluded from scaling.
type ColumnScale struct {
	Column   string  `json:"column"`
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Excluded bool    `json:"excluded"`
	Reason   string  `json:"reason,omitempty"`
}

// ScaleParams is the fit-once, reapply-forever standardizer state.
type ScaleParams struct {
	Columns  []ColumnScale  `json:"columns"`
	FittedAt core.Timestamp `json:"fitted_at"`
}

// ByColumn returns the scale entry for a named column.
func (s *ScaleParams) ByColumn(name string) (ColumnScale, bool) {
	for _, c := range s.Columns {
		if c.Column == name {
			return c, true
		}
	}
	return ColumnScale{}, false
}

// ScaledColumns lists columns that were actually scaled.
func (s *ScaleParams) ScaledColumns() []string {
	var out []string
	for _, c := range s.Columns {
		if !c.Excluded {
			out = append(out, c.Column)
		}
	}
	return out
}

// ============================================================================
// REDUCTION
// ============================================================================

// Component is one retained orthogonal direction. Loadings align with
// Reduction.FeatureNames; sign indicates direction of correlation with the
// original standardized feature.
type Component struct {
	Index                  int       `json:"index"`
	Loadings               []float64 `json:"loadings"`
	ExplainedVarianceRatio float64   `json:"explained_variance_ratio"`
}

// Reduction holds the retained basis and the variance accounting behind it.
type Reduction struct {
	FeatureNames  []string       `json:"feature_names"`
	Components    []Component    `json:"components"`
	CumulativeEVR float64        `json:"cumulative_evr"`
	Threshold     float64        `json:"threshold"`
	ThresholdMet  bool           `json:"threshold_met"`
	FittedAt      core.Timestamp `json:"fitted_at"`
}

// ============================================================================
// CLUSTERING
// ============================================================================

// CandidateScore is one row of the per-k metric table. Rejected candidates
// carry the rejection reason instead of scores.
type CandidateScore struct {
	K                int     `json:"k"`
	Silhouette       float64 `json:"silhouette"`
	WCSS             float64 `json:"wcss"`
	CalinskiHarabasz float64 `json:"calinski_harabasz"`
	DaviesBouldin    float64 `json:"davies_bouldin"`
	Rejected         bool    `json:"rejected"`
	RejectReason     string  `json:"reject_reason,omitempty"`
}

// ClusterModel is the selected partition model plus the full audit table the
// selection was made from.
type ClusterModel struct {
	ChosenK    int              `json:"chosen_k"`
	Centroids  [][]float64      `json:"centroids"`
	Table      []CandidateScore `json:"table"`
	Consensus  string           `json:"consensus"`
	ElbowK     int              `json:"elbow_k"`
	Seed       int64            `json:"seed"`
	SelectedAt core.Timestamp   `json:"selected_at"`
}

// NewClusterModel validates the chosen model against its own metric table.
func NewClusterModel(chosenK int, centroids [][]float64, table []CandidateScore, consensus string, elbowK int, seed int64) (*ClusterModel, error) {
	if chosenK < 1 {
		return nil, fmt.Errorf("chosen k must be >= 1, got %d", chosenK)
	}
	if len(centroids) != chosenK {
		return nil, fmt.Errorf("expected %d centroids, got %d", chosenK, len(centroids))
	}
	found := false
	for _, row := range table {
		if row.K == chosenK {
			if row.Rejected {
				return nil, fmt.Errorf("chosen k=%d was rejected: %s", chosenK, row.RejectReason)
			}
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("chosen k=%d missing from metric table", chosenK)
	}
	return &ClusterModel{
		ChosenK:    chosenK,
		Centroids:  centroids,
		Table:      table,
		Consensus:  consensus,
		ElbowK:     elbowK,
		Seed:       seed,
		SelectedAt: core.Now(),
	}, nil
}

// Assignment maps each row to the index of its nearest centroid.
type Assignment struct {
	Labels []int `json:"labels"`
}

// ClusterSizes returns member counts per cluster label.
func (a Assignment) ClusterSizes(k int) []int {
	sizes := make([]int, k)
	for _, label := range a.Labels {
		if label >= 0 && label < k {
			sizes[label]++
		}
	}
	return sizes
}

// ============================================================================
// PROFILING
// ============================================================================

// Direction flags whether a cluster's feature mean sits above or below the
// global average.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// FeatureProfile compares one cluster's feature mean against the global mean.
type FeatureProfile struct {
	Feature     string    `json:"feature"`
	ClusterMean float64   `json:"cluster_mean"`
	GlobalMean  float64   `json:"global_mean"`
	PctDiff     float64   `json:"pct_diff"`
	Direction   Direction `json:"direction"`
}

// ClusterProfile summarizes one cluster across the original features.
type ClusterProfile struct {
	Cluster  int              `json:"cluster"`
	Size     int              `json:"size"`
	Features []FeatureProfile `json:"features"`
}

// ============================================================================
// RUN MANIFEST
// ============================================================================

// RunManifest captures the complete audit trail of one training run.
type RunManifest struct {
	RunID             core.RunID     `json:"run_id"`
	Seed              int64          `json:"seed"`
	ConfigFingerprint core.Hash      `json:"config_fingerprint"`
	DataFingerprint   core.Hash      `json:"data_fingerprint"`
	RowCount          int            `json:"row_count"`
	ColumnCount       int            `json:"column_count"`
	ChosenK           int            `json:"chosen_k"`
	RuntimeMs         int64          `json:"runtime_ms"`
	Warnings          []string       `json:"warnings,omitempty"`
	CreatedAt         core.Timestamp `json:"created_at"`
}

// NewRunManifest creates a manifest with a fresh run ID.
func NewRunManifest(seed int64, configFP, dataFP core.Hash, rows, cols int) *RunManifest {
	return &RunManifest{
		RunID:             core.RunID(core.NewID()),
		Seed:              seed,
		ConfigFingerprint: configFP,
		DataFingerprint:   dataFP,
		RowCount:          rows,
		ColumnCount:       cols,
		Warnings:          []string{},
		CreatedAt:         core.Now(),
	}
}
