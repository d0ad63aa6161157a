// Package profile computes per-cluster feature summaries relative to global
// averages. Purely derived and stateless; recomputed on demand.
package profile

import (
	"math"

	"github.com/montanaflynn/stats"

	"gosegment/domain/schema"
	"gosegment/domain/segment"
)

// Profiler builds cluster profiles over the original (pre-reduction)
// features.
type Profiler struct{}

// NewProfiler creates a profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// Profile compares each cluster's feature means against the global means.
// Identifier and text columns are skipped; cells still missing (MNAR
// pass-through) are ignored in the averages.
func (p *Profiler) Profile(ds *schema.Dataset, assignment segment.Assignment, k int) ([]segment.ClusterProfile, error) {
	features := ds.ScalableColumns()
	sizes := assignment.ClusterSizes(k)

	columns := make(map[string][]float64, len(features))
	globals := make(map[string]float64, len(features))
	for _, col := range features {
		values, err := ds.Column(col.Name)
		if err != nil {
			return nil, err
		}
		columns[col.Name] = values
		globals[col.Name] = observedMean(values, nil, -1)
	}

	profiles := make([]segment.ClusterProfile, k)
	for c := 0; c < k; c++ {
		profiles[c] = segment.ClusterProfile{Cluster: c, Size: sizes[c]}
		for _, col := range features {
			clusterMean := observedMean(columns[col.Name], assignment.Labels, c)
			globalMean := globals[col.Name]

			direction := segment.DirectionBelow
			if clusterMean >= globalMean {
				direction = segment.DirectionAbove
			}

			profiles[c].Features = append(profiles[c].Features, segment.FeatureProfile{
				Feature:     col.Name,
				ClusterMean: clusterMean,
				GlobalMean:  globalMean,
				PctDiff:     percentDiff(clusterMean, globalMean),
				Direction:   direction,
			})
		}
	}

	return profiles, nil
}

// observedMean averages the observed values, optionally restricted to rows
// assigned to one cluster (cluster < 0 means all rows).
func observedMean(values []float64, labels []int, cluster int) float64 {
	var subset []float64
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if cluster >= 0 && labels[i] != cluster {
			continue
		}
		subset = append(subset, v)
	}
	if len(subset) == 0 {
		return 0
	}
	mean, err := stats.Mean(subset)
	if err != nil {
		return 0
	}
	return mean
}

// percentDiff returns the signed percentage difference of cluster vs global.
// A zero global mean yields 0 to keep the table finite.
func percentDiff(clusterMean, globalMean float64) float64 {
	if globalMean == 0 {
		return 0
	}
	return (clusterMean - globalMean) / math.Abs(globalMean) * 100
}
