// Package impute fills missing values according to a per-column plan derived
// from the missingness mechanism and the missing fraction. Plans are fitted
// once and persisted so unseen rows are imputed identically.
package impute

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/montanaflynn/stats"

	"gosegment/domain/core"
	"gosegment/domain/schema"
	"gosegment/domain/segment"
	"gosegment/internal"
	"gosegment/internal/config"
)

// Engine fits and applies imputation plans.
type Engine struct {
	cfg    config.EngineConfig
	logger *internal.Logger
}

// NewEngine creates an imputation engine with the given thresholds.
func NewEngine(cfg config.EngineConfig) *Engine {
	return &Engine{cfg: cfg, logger: internal.DefaultLogger.Component("Impute")}
}

// FitPlan decides and fits a strategy for every column with missing values.
// Protected columns are never filled, whatever their statistics; they pass
// through with the exclusion recorded. Decision rule for the rest:
//   - missing fraction below the low-missing threshold: always simple
//   - MCAR or indeterminate: simple
//   - MAR: predictive, with simple fallback on fit failure
//   - MNAR: no automatic imputation; surfaced for manual handling
func (e *Engine) FitPlan(ds *schema.Dataset, report *segment.MissingnessReport) (*segment.ImputationPlan, error) {
	plan := &segment.ImputationPlan{
		Seed:        e.cfg.RandomState,
		Fingerprint: ds.Fingerprint(),
		FittedAt:    core.Now(),
	}
	rng := rand.New(rand.NewSource(e.cfg.RandomState))

	for _, col := range ds.Columns() {
		fraction, err := ds.MissingFraction(col.Name)
		if err != nil {
			return nil, err
		}
		if fraction == 0 {
			continue
		}

		if col.Protected {
			e.logger.Warn("column %s is protected; passing through unimputed", col.Name)
			plan.Plans = append(plan.Plans, segment.ColumnPlan{
				Column:   col.Name,
				Strategy: segment.StrategyNone,
				Reason:   "protected column",
			})
			continue
		}

		entry, _ := report.ByColumn(col.Name)
		colPlan, err := e.fitColumn(ds, col, fraction, entry.Mechanism, rng)
		if err != nil {
			return nil, err
		}
		plan.Plans = append(plan.Plans, colPlan)
	}

	return plan, nil
}

func (e *Engine) fitColumn(ds *schema.Dataset, col schema.FeatureColumn, fraction float64, mechanism segment.Mechanism, rng *rand.Rand) (segment.ColumnPlan, error) {
	switch {
	case fraction < e.cfg.LowMissingThreshold:
		// The statistical cost of a model is not justified at this rate.
		return e.fitSimple(ds, col, "below low-missing threshold")

	case mechanism == segment.MechanismMNAR:
		e.logger.Warn("column %s is MNAR; passing through unimputed", col.Name)
		return segment.ColumnPlan{
			Column:   col.Name,
			Strategy: segment.StrategyNone,
			Reason:   "MNAR: requires manual or domain-informed handling",
		}, nil

	case mechanism == segment.MechanismMAR:
		colPlan, err := e.fitPredictive(ds, col, rng)
		if err == nil {
			return colPlan, nil
		}
		e.logger.Warn("predictive fit failed for %s (%v); falling back to simple", col.Name, err)
		fallback, ferr := e.fitSimple(ds, col, fmt.Sprintf("predictive fit failed: %v", err))
		if ferr != nil {
			return segment.ColumnPlan{}, ferr
		}
		fallback.FellBack = true
		return fallback, nil

	default:
		// MCAR and indeterminate both take the safe simple strategy.
		return e.fitSimple(ds, col, fmt.Sprintf("mechanism %s", mechanism))
	}
}

// fitSimple computes the median (numeric) or mode (categorical) of the
// observed values.
func (e *Engine) fitSimple(ds *schema.Dataset, col schema.FeatureColumn, reason string) (segment.ColumnPlan, error) {
	values, err := ds.Column(col.Name)
	if err != nil {
		return segment.ColumnPlan{}, err
	}
	var observed []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}
	if len(observed) == 0 {
		return segment.ColumnPlan{}, core.NewDegenerateFeatureError(col.Name, "no observed values")
	}

	if col.Role == schema.RoleCategorical {
		fill, err := modeValue(observed)
		if err != nil {
			return segment.ColumnPlan{}, core.NewDegenerateFeatureError(col.Name, err.Error())
		}
		return segment.ColumnPlan{
			Column:    col.Name,
			Strategy:  segment.StrategyMode,
			FillValue: fill,
			Reason:    reason,
		}, nil
	}

	median, err := stats.Median(observed)
	if err != nil {
		return segment.ColumnPlan{}, core.NewDegenerateFeatureError(col.Name, err.Error())
	}
	return segment.ColumnPlan{
		Column:    col.Name,
		Strategy:  segment.StrategyMedian,
		FillValue: median,
		Reason:    reason,
	}, nil
}

// fitPredictive trains a tree ensemble on rows where the target is observed,
// using every other scalable column as a predictor.
func (e *Engine) fitPredictive(ds *schema.Dataset, col schema.FeatureColumn, rng *rand.Rand) (segment.ColumnPlan, error) {
	target, err := ds.Column(col.Name)
	if err != nil {
		return segment.ColumnPlan{}, err
	}

	var predictorNames []string
	for _, other := range ds.ScalableColumns() {
		if other.Name != col.Name {
			predictorNames = append(predictorNames, other.Name)
		}
	}
	if len(predictorNames) == 0 {
		return segment.ColumnPlan{}, core.NewModelFitError(col.Name, fmt.Errorf("no predictor columns"))
	}

	predictors := make(map[string][]float64, len(predictorNames))
	for _, name := range predictorNames {
		values, err := ds.Column(name)
		if err != nil {
			return segment.ColumnPlan{}, err
		}
		predictors[name] = values
	}

	var X [][]float64
	var y []float64
	for i, v := range target {
		if math.IsNaN(v) {
			continue
		}
		row := make([]float64, len(predictorNames))
		for j, name := range predictorNames {
			row[j] = predictors[name][i]
		}
		X = append(X, row)
		y = append(y, v)
	}

	model, err := FitEnsemble(col.Name, predictorNames, X, y, rng)
	if err != nil {
		return segment.ColumnPlan{}, core.NewModelFitError(col.Name, err)
	}

	return segment.ColumnPlan{
		Column:   col.Name,
		Strategy: segment.StrategyPredictive,
		Model:    model,
		Reason:   "MAR with explanatory observed columns",
	}, nil
}

// Apply fills missing values according to a fitted plan, producing a new
// dataset. MNAR columns pass through untouched. Applying the same plan to the
// same matrix is idempotent.
func (e *Engine) Apply(ds *schema.Dataset, plan *segment.ImputationPlan) (*schema.Dataset, error) {
	replacements := make(map[string][]float64)

	for _, colPlan := range plan.Plans {
		values, err := ds.Column(colPlan.Column)
		if err != nil {
			return nil, err
		}

		switch colPlan.Strategy {
		case segment.StrategyNone:
			continue

		case segment.StrategyMedian, segment.StrategyMode:
			for i, v := range values {
				if math.IsNaN(v) {
					values[i] = colPlan.FillValue
				}
			}

		case segment.StrategyPredictive:
			if colPlan.Model == nil {
				return nil, core.NewModelFitError(colPlan.Column, fmt.Errorf("plan carries no fitted model"))
			}
			if err := e.applyPredictive(ds, colPlan, values); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("unknown imputation strategy %q for column %s", colPlan.Strategy, colPlan.Column)
		}

		replacements[colPlan.Column] = values
	}

	if len(replacements) == 0 {
		return ds, nil
	}
	return ds.WithColumns(replacements)
}

func (e *Engine) applyPredictive(ds *schema.Dataset, colPlan segment.ColumnPlan, values []float64) error {
	predictors := colPlan.Model.Predictors()
	columns := make(map[string][]float64, len(predictors))
	for _, name := range predictors {
		col, err := ds.Column(name)
		if err != nil {
			return err
		}
		columns[name] = col
	}

	for i, v := range values {
		if !math.IsNaN(v) {
			continue
		}
		features := make(map[string]float64, len(predictors))
		for _, name := range predictors {
			features[name] = columns[name][i]
		}
		values[i] = colPlan.Model.PredictRow(features)
	}
	return nil
}

// Replay reapplies a stored plan to the matrix it was fitted on, enforcing
// the determinism contract first: the plan's seed must match the engine's
// configured seed and its fingerprint must match the dataset.
func (e *Engine) Replay(ds *schema.Dataset, plan *segment.ImputationPlan) (*schema.Dataset, error) {
	if plan.Seed != e.cfg.RandomState {
		return nil, fmt.Errorf("%w: plan fitted with seed %d, engine configured with seed %d",
			core.ErrSeedMismatch, plan.Seed, e.cfg.RandomState)
	}
	if fp := ds.Fingerprint(); plan.Fingerprint != fp {
		return nil, fmt.Errorf("%w: plan fitted on %s, dataset fingerprints %s",
			core.ErrHashMismatch, plan.Fingerprint, fp)
	}
	if err := e.ReviveModels(plan); err != nil {
		return nil, err
	}
	return e.Apply(ds, plan)
}

// ReviveModels restores the concrete predictive models of a plan loaded from
// storage. Plans fitted in-process already carry live models and pass through
// unchanged.
func (e *Engine) ReviveModels(plan *segment.ImputationPlan) error {
	for i := range plan.Plans {
		colPlan := &plan.Plans[i]
		if colPlan.Strategy != segment.StrategyPredictive || colPlan.Model != nil {
			continue
		}
		if len(colPlan.RawModel) == 0 {
			return core.NewModelFitError(colPlan.Column, fmt.Errorf("stored plan carries no model payload"))
		}
		var ensemble TreeEnsemble
		if err := json.Unmarshal(colPlan.RawModel, &ensemble); err != nil {
			return core.NewModelFitError(colPlan.Column, err)
		}
		colPlan.Model = &ensemble
	}
	return nil
}

// modeValue returns the most frequent value; frequency ties break toward the
// smallest value so replay is deterministic.
func modeValue(observed []float64) (float64, error) {
	modes, err := stats.Mode(observed)
	if err != nil {
		return 0, err
	}
	if len(modes) > 0 {
		sort.Float64s(modes)
		return modes[0], nil
	}
	// No repeated value: fall back to the median as the central category.
	return stats.Median(observed)
}
