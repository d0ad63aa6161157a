package report

import (
	"strings"
	"testing"

	"gosegment/domain/core"
	"gosegment/domain/segment"
	"gosegment/engine"
)

func sampleResult() *engine.Result {
	manifest := segment.NewRunManifest(42, "cfg-hash", "data-hash", 300, 6)
	manifest.ChosenK = 3
	manifest.Warnings = []string{"column notes left unimputed (MNAR)"}

	return &engine.Result{
		Manifest: manifest,
		Missingness: &segment.MissingnessReport{
			Columns: []segment.ColumnMissingness{
				{Column: "annual_spend", MissingFraction: 0.05, Mechanism: segment.MechanismMCAR, PValue: 0.62},
				{Column: "avg_basket", MissingFraction: 0.10, Mechanism: segment.MechanismMAR, PValue: 0.001, BestMIScore: 0.31, BestMIColumn: "order_count"},
			},
			ComputedAt: core.Now(),
		},
		Plan: &segment.ImputationPlan{
			Plans: []segment.ColumnPlan{
				{Column: "annual_spend", Strategy: segment.StrategyMedian, FillValue: 104.2},
				{Column: "avg_basket", Strategy: segment.StrategyPredictive, Reason: "MAR with explanatory observed columns"},
			},
		},
		ScaleParams: &segment.ScaleParams{
			Columns: []segment.ColumnScale{
				{Column: "annual_spend", Mean: 104.2, Std: 25.1},
				{Column: "customer_id", Excluded: true, Reason: "protected column"},
			},
		},
		Reduction: &segment.Reduction{
			FeatureNames:  []string{"annual_spend"},
			Components:    []segment.Component{{Index: 0, Loadings: []float64{1}, ExplainedVarianceRatio: 0.93}},
			CumulativeEVR: 0.93,
			Threshold:     0.90,
			ThresholdMet:  true,
		},
		Model: &segment.ClusterModel{
			ChosenK:   3,
			Centroids: [][]float64{{-1}, {0}, {1}},
			Table: []segment.CandidateScore{
				{K: 2, Silhouette: 0.41, WCSS: 80, CalinskiHarabasz: 50, DaviesBouldin: 1.1},
				{K: 3, Silhouette: 0.58, WCSS: 40, CalinskiHarabasz: 90, DaviesBouldin: 0.7},
				{K: 4, Rejected: true, RejectReason: "empty cluster"},
			},
			Consensus: "silhouette maximum at k=3, no tie",
		},
		Profiles: []segment.ClusterProfile{
			{
				Cluster: 0,
				Size:    100,
				Features: []segment.FeatureProfile{
					{Feature: "annual_spend", ClusterMean: 140, GlobalMean: 104.2, PctDiff: 34.4, Direction: segment.DirectionAbove},
				},
			},
		},
	}
}

// TestRenderMarkdown_CoversAllSections verifies every artifact appears in the
// rendered report.
func TestRenderMarkdown_CoversAllSections(t *testing.T) {
	md := NewRenderer().RenderMarkdown(sampleResult())

	for _, want := range []string{
		"# Segmentation Run",
		"## Warnings",
		"## Missingness",
		"## Imputation Plan",
		"## Standardization",
		"## Dimensionality Reduction",
		"## Cluster Count Selection",
		"## Cluster Profiles",
		"Chosen k=3",
		"mar",
		"order_count",
		"rejected: empty cluster",
		"**chosen**",
		"excluded: protected column",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

// TestRenderHTML_ProducesMarkup verifies the HTML rendering carries the
// structure over.
func TestRenderHTML_ProducesMarkup(t *testing.T) {
	html := string(NewRenderer().RenderHTML(sampleResult()))

	for _, want := range []string{"<h1", "<h2", "<table>", "Segmentation Run"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}
