// Package cluster fits partition-based clustering models across a candidate
// range of cluster counts and selects the final count by consensus across
// independent validity metrics.
package cluster

import (
	"fmt"
	"math"
	"math/rand"
)

const maxKMeansIterations = 100

// emptyClusterError marks a candidate fit that produced an empty cluster.
// Such candidates are rejected rather than scored.
type emptyClusterError struct {
	cluster int
}

func (e emptyClusterError) Error() string {
	return fmt.Sprintf("cluster %d is empty", e.cluster)
}

// fitKMeans runs seeded k-means++ initialization followed by Lloyd
// iterations. The same seed always yields the same partition.
func fitKMeans(X [][]float64, k int, seed int64) ([][]float64, []int, error) {
	n := len(X)
	if n == 0 {
		return nil, nil, fmt.Errorf("empty matrix")
	}
	if k > n {
		return nil, nil, fmt.Errorf("k=%d exceeds %d rows", k, n)
	}
	dims := len(X[0])
	rng := rand.New(rand.NewSource(seed))

	centroids := initCentroids(X, k, rng)
	labels := make([]int, n)

	for iter := 0; iter < maxKMeansIterations; iter++ {
		changed := false
		for i, point := range X {
			nearest := nearestCentroid(point, centroids)
			if labels[i] != nearest {
				labels[i] = nearest
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		// Recompute centroids; an empty cluster keeps its position and will
		// surface as a rejection below if it stays empty.
		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, point := range X {
			counts[labels[i]]++
			for d, v := range point {
				sums[labels[i]][d] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dims; d++ {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	counts := make([]int, k)
	for _, label := range labels {
		counts[label]++
	}
	for c, count := range counts {
		if count == 0 {
			return nil, nil, emptyClusterError{cluster: c}
		}
	}

	return centroids, labels, nil
}

// initCentroids seeds centroids with k-means++: the first uniformly, the rest
// weighted by squared distance to the nearest chosen centroid.
func initCentroids(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(X)
	centroids := make([][]float64, 0, k)

	first := make([]float64, len(X[0]))
	copy(first, X[rng.Intn(n)])
	centroids = append(centroids, first)

	distances := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, point := range X {
			d := math.Inf(1)
			for _, c := range centroids {
				if dist := squaredDistance(point, c); dist < d {
					d = dist
				}
			}
			distances[i] = d
			total += d
		}

		var idx int
		if total == 0 {
			// All points coincide with existing centroids.
			idx = rng.Intn(n)
		} else {
			target := rng.Float64() * total
			cum := 0.0
			for i, d := range distances {
				cum += d
				if cum >= target {
					idx = i
					break
				}
			}
		}

		next := make([]float64, len(X[idx]))
		copy(next, X[idx])
		centroids = append(centroids, next)
	}

	return centroids
}

func nearestCentroid(point []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(point, centroid); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func euclideanDistance(a, b []float64) float64 {
	return math.Sqrt(squaredDistance(a, b))
}
