// Package engine sequences the segmentation stages: missingness
// classification, imputation, standardization, reduction, cluster selection
// and profiling. Each stage is pure with respect to its input matrix.
package engine

import (
	"context"
	"fmt"
	"time"

	"gosegment/domain/schema"
	"gosegment/domain/segment"
	"gosegment/engine/cluster"
	"gosegment/engine/impute"
	"gosegment/engine/missing"
	"gosegment/engine/profile"
	"gosegment/engine/reduce"
	"gosegment/engine/scale"
	"gosegment/internal"
	"gosegment/internal/config"
	"gosegment/internal/errors"
)

// Result bundles every artifact of one training run. Fit-once artifacts
// (plan, scale params, reduction) can be persisted and reapplied to unseen
// rows; assignment and profiles are derived and recomputed on demand.
type Result struct {
	Manifest    *segment.RunManifest       `json:"manifest"`
	Missingness *segment.MissingnessReport `json:"missingness"`
	Plan        *segment.ImputationPlan    `json:"plan"`
	ScaleParams *segment.ScaleParams       `json:"scale_params"`
	Reduction   *segment.Reduction         `json:"reduction"`
	Model       *segment.ClusterModel      `json:"model"`
	Assignment  segment.Assignment         `json:"assignment"`
	Profiles    []segment.ClusterProfile   `json:"profiles"`
}

// Pipeline wires the stages together under one immutable configuration.
type Pipeline struct {
	cfg          config.EngineConfig
	classifier   *missing.Classifier
	imputer      *impute.Engine
	standardizer *scale.Standardizer
	reducer      *reduce.Reducer
	selector     *cluster.Selector
	profiler     *profile.Profiler
	logger       *internal.Logger
}

// New creates a pipeline from validated engine configuration.
func New(cfg config.EngineConfig) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:          cfg,
		classifier:   missing.NewClassifier(cfg),
		imputer:      impute.NewEngine(cfg),
		standardizer: scale.NewStandardizer(cfg),
		reducer:      reduce.NewReducer(cfg),
		selector:     cluster.NewSelector(cfg),
		profiler:     profile.NewProfiler(),
		logger:       internal.DefaultLogger.Component("Pipeline"),
	}, nil
}

// Run executes the full training pipeline on an encoded dataset. Stages run
// strictly in sequence; no stage begins before its predecessor's output is
// fully materialized.
func (p *Pipeline) Run(ctx context.Context, ds *schema.Dataset) (*Result, error) {
	start := time.Now()
	manifest := segment.NewRunManifest(p.cfg.RandomState, p.cfg.Fingerprint(), ds.Fingerprint(),
		ds.Rows(), len(ds.Columns()))

	p.logger.Info("run %s starting: %d rows, %d columns",
		manifest.RunID, ds.Rows(), len(ds.Columns()))

	report, err := p.classifier.Classify(ds)
	if err != nil {
		return nil, errors.Wrap(err, "missingness classification failed")
	}

	plan, err := p.imputer.FitPlan(ds, report)
	if err != nil {
		return nil, errors.Wrap(err, "imputation plan fitting failed")
	}
	for _, col := range plan.UnimputedColumns() {
		// Protected pass-through is expected behavior; only MNAR columns
		// need the operator's attention.
		if meta, merr := ds.ColumnMeta(col); merr == nil && meta.Protected {
			continue
		}
		manifest.Warnings = append(manifest.Warnings,
			errors.UnhandledMechanism(col).Error())
	}
	for _, colPlan := range plan.Plans {
		if colPlan.FellBack {
			manifest.Warnings = append(manifest.Warnings,
				fmt.Sprintf("column %s fell back to simple imputation: %s", colPlan.Column, colPlan.Reason))
		}
	}

	completed, err := p.imputer.Apply(ds, plan)
	if err != nil {
		return nil, errors.Wrap(err, "imputation failed")
	}

	params, err := p.standardizer.Fit(completed)
	if err != nil {
		return nil, errors.Wrap(err, "standardizer fit failed")
	}
	for _, colScale := range params.Columns {
		if colScale.Excluded && colScale.Reason == "zero variance" {
			manifest.Warnings = append(manifest.Warnings,
				fmt.Sprintf("column %s excluded from scaling: zero variance", colScale.Column))
		}
	}

	scaled, err := p.standardizer.Transform(completed, params)
	if err != nil {
		return nil, errors.Wrap(err, "standardization failed")
	}
	if err := p.standardizer.Verify(scaled, params); err != nil {
		return nil, errors.Wrap(err, "standardization postcondition violated")
	}

	reduction, err := p.reducer.Fit(scaled, params)
	if err != nil {
		return nil, errors.Wrap(err, "reduction fit failed")
	}
	if !reduction.ThresholdMet {
		manifest.Warnings = append(manifest.Warnings,
			fmt.Sprintf("variance threshold %.2f not met: %.3f available across %d components",
				reduction.Threshold, reduction.CumulativeEVR, len(reduction.Components)))
	}

	reduced, err := p.reducer.Transform(scaled, reduction)
	if err != nil {
		return nil, errors.Wrap(err, "reduction transform failed")
	}

	model, assignment, err := p.selector.Select(ctx, reduced)
	if err != nil {
		return nil, err
	}
	manifest.ChosenK = model.ChosenK

	profiles, err := p.profiler.Profile(completed, assignment, model.ChosenK)
	if err != nil {
		return nil, errors.Wrap(err, "cluster profiling failed")
	}

	manifest.RuntimeMs = time.Since(start).Milliseconds()
	p.logger.Info("run %s complete: k=%d in %dms",
		manifest.RunID, model.ChosenK, manifest.RuntimeMs)

	return &Result{
		Manifest:    manifest,
		Missingness: report,
		Plan:        plan,
		ScaleParams: params,
		Reduction:   reduction,
		Model:       model,
		Assignment:  assignment,
		Profiles:    profiles,
	}, nil
}
