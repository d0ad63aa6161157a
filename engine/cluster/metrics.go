package cluster

import (
	"math"
)

// silhouetteScore averages the per-point silhouette coefficient: cohesion
// against the own cluster contrasted with separation from the nearest other
// cluster. Range [-1, 1], higher is better.
func silhouetteScore(X [][]float64, labels []int, k int) float64 {
	n := len(X)
	if n == 0 || k < 2 {
		return 0
	}

	members := make([][]int, k)
	for i, label := range labels {
		members[label] = append(members[label], i)
	}

	total := 0.0
	counted := 0
	for i, point := range X {
		own := labels[i]
		if len(members[own]) < 2 {
			// Singleton clusters contribute a silhouette of 0 by convention.
			counted++
			continue
		}

		// a: mean distance to the other members of the own cluster.
		a := 0.0
		for _, j := range members[own] {
			if j != i {
				a += euclideanDistance(point, X[j])
			}
		}
		a /= float64(len(members[own]) - 1)

		// b: mean distance to the nearest other cluster.
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || len(members[c]) == 0 {
				continue
			}
			d := 0.0
			for _, j := range members[c] {
				d += euclideanDistance(point, X[j])
			}
			d /= float64(len(members[c]))
			if d < b {
				b = d
			}
		}

		if denom := math.Max(a, b); denom > 0 {
			total += (b - a) / denom
		}
		counted++
	}

	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

// withinClusterSS is the total within-cluster sum of squared distances to the
// assigned centroid. Lower is better; used for elbow analysis across the k
// series, never as a single-k score.
func withinClusterSS(X [][]float64, centroids [][]float64, labels []int) float64 {
	total := 0.0
	for i, point := range X {
		total += squaredDistance(point, centroids[labels[i]])
	}
	return total
}

// calinskiHarabasz is the ratio of between-cluster to within-cluster
// dispersion, scaled by degrees of freedom. Higher is better.
func calinskiHarabasz(X [][]float64, centroids [][]float64, labels []int, k int) float64 {
	n := len(X)
	if n <= k || k < 2 {
		return 0
	}
	dims := len(X[0])

	global := make([]float64, dims)
	for _, point := range X {
		for d, v := range point {
			global[d] += v
		}
	}
	for d := range global {
		global[d] /= float64(n)
	}

	counts := make([]int, k)
	for _, label := range labels {
		counts[label]++
	}

	between := 0.0
	for c, centroid := range centroids {
		between += float64(counts[c]) * squaredDistance(centroid, global)
	}

	within := withinClusterSS(X, centroids, labels)
	if within == 0 {
		return math.Inf(1)
	}

	return (between / float64(k-1)) / (within / float64(n-k))
}

// daviesBouldin averages, per cluster, the worst ratio of summed intra-cluster
// scatter to centroid separation. Lower is better.
func daviesBouldin(X [][]float64, centroids [][]float64, labels []int, k int) float64 {
	if k < 2 {
		return 0
	}

	counts := make([]int, k)
	scatter := make([]float64, k)
	for i, point := range X {
		label := labels[i]
		counts[label]++
		scatter[label] += euclideanDistance(point, centroids[label])
	}
	for c := 0; c < k; c++ {
		if counts[c] > 0 {
			scatter[c] /= float64(counts[c])
		}
	}

	total := 0.0
	for i := 0; i < k; i++ {
		worst := 0.0
		for j := 0; j < k; j++ {
			if i == j {
				continue
			}
			sep := euclideanDistance(centroids[i], centroids[j])
			if sep == 0 {
				continue
			}
			if ratio := (scatter[i] + scatter[j]) / sep; ratio > worst {
				worst = ratio
			}
		}
		total += worst
	}

	return total / float64(k)
}

// elbowK locates the inflection point in the WCSS series as the k with the
// largest positive second difference. Returns 0 when the series is too short
// to bend.
func elbowK(ks []int, wcss []float64) int {
	if len(ks) < 3 {
		return 0
	}
	bestK := 0
	bestCurvature := 0.0
	for i := 1; i < len(ks)-1; i++ {
		curvature := wcss[i-1] - 2*wcss[i] + wcss[i+1]
		if curvature > bestCurvature {
			bestCurvature = curvature
			bestK = ks[i]
		}
	}
	return bestK
}
