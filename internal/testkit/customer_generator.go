// Package testkit generates seeded synthetic customer datasets with known
// segment structure and controllable missingness mechanisms.
package testkit

import (
	"math"
	"math/rand"
	"sort"

	"gosegment/domain/schema"
)

// CustomerGeneratorConfig configures the synthetic customer generator.
type CustomerGeneratorConfig struct {
	CustomerCount int     `json:"customer_count"`
	Segments      int     `json:"segments"`
	NoiseStd      float64 `json:"noise_std"`
	Seed          int64   `json:"seed"`
}

// DefaultCustomerConfig returns sensible defaults for segment-structured data.
func DefaultCustomerConfig() CustomerGeneratorConfig {
	return CustomerGeneratorConfig{
		CustomerCount: 300,
		Segments:      3,
		NoiseStd:      0.5,
		Seed:          42,
	}
}

// CustomerDataGenerator generates gaussian customer blobs with one
// well-separated center per segment.
type CustomerDataGenerator struct {
	config CustomerGeneratorConfig
	rng    *rand.Rand
}

// NewCustomerDataGenerator creates a seeded generator.
func NewCustomerDataGenerator(config CustomerGeneratorConfig) *CustomerDataGenerator {
	return &CustomerDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// segmentCenters spaces segment prototypes far apart relative to NoiseStd so
// the intended partition is recoverable.
func (g *CustomerDataGenerator) segmentCenters() [][]float64 {
	centers := make([][]float64, g.config.Segments)
	for s := range centers {
		base := float64(s) * 10
		spend := base + 5
		orders := base + 2
		recency := 60 - base
		basket := base + 3
		centers[s] = []float64{spend, orders, recency, basket}
	}
	return centers
}

// GenerateDataset produces an encoded dataset: a protected identifier column,
// four numeric behavior columns drawn from the segment blobs, and one
// label-encoded categorical region column.
func (g *CustomerDataGenerator) GenerateDataset() (*schema.Dataset, error) {
	n := g.config.CustomerCount
	centers := g.segmentCenters()

	ids := make([]float64, n)
	spend := make([]float64, n)
	orders := make([]float64, n)
	recency := make([]float64, n)
	basket := make([]float64, n)
	region := make([]float64, n)

	for i := 0; i < n; i++ {
		seg := i % g.config.Segments
		center := centers[seg]

		ids[i] = float64(i + 1)
		spend[i] = center[0] + g.rng.NormFloat64()*g.config.NoiseStd
		orders[i] = center[1] + g.rng.NormFloat64()*g.config.NoiseStd
		recency[i] = center[2] + g.rng.NormFloat64()*g.config.NoiseStd
		basket[i] = center[3] + g.rng.NormFloat64()*g.config.NoiseStd

		// Region mostly tracks the segment, with some crossover noise, so
		// the categorical column reinforces rather than fights the blobs.
		if g.rng.Float64() < 0.8 {
			region[i] = float64(seg)
		} else {
			region[i] = float64(g.rng.Intn(g.config.Segments))
		}
	}

	columns := []schema.FeatureColumn{
		{Name: "customer_id", Role: schema.RoleIdentifier, Protected: true},
		{Name: "annual_spend", Role: schema.RoleNumeric},
		{Name: "order_count", Role: schema.RoleNumeric},
		{Name: "recency_days", Role: schema.RoleNumeric},
		{Name: "avg_basket", Role: schema.RoleNumeric},
		{Name: "region", Role: schema.RoleCategorical},
	}
	data := map[string][]float64{
		"customer_id":  ids,
		"annual_spend": spend,
		"order_count":  orders,
		"recency_days": recency,
		"avg_basket":   basket,
		"region":       region,
	}

	return schema.NewDataset(columns, data)
}

// InjectMCAR blanks a uniformly random fraction of the target column,
// independent of all data values.
func (g *CustomerDataGenerator) InjectMCAR(ds *schema.Dataset, column string, fraction float64) (*schema.Dataset, error) {
	values, err := ds.Column(column)
	if err != nil {
		return nil, err
	}
	for i := range values {
		if g.rng.Float64() < fraction {
			values[i] = math.NaN()
		}
	}
	return ds.WithColumns(map[string][]float64{column: values})
}

// InjectMAR blanks the target column preferentially where the driver column
// is large, making missingness explainable from observed data.
func (g *CustomerDataGenerator) InjectMAR(ds *schema.Dataset, target, driver string, fraction float64) (*schema.Dataset, error) {
	values, err := ds.Column(target)
	if err != nil {
		return nil, err
	}
	driverValues, err := ds.Column(driver)
	if err != nil {
		return nil, err
	}

	threshold := quantile(driverValues, 1-fraction*2)
	for i := range values {
		if driverValues[i] >= threshold && g.rng.Float64() < 0.75 {
			values[i] = math.NaN()
		}
	}
	return ds.WithColumns(map[string][]float64{target: values})
}

// InjectMNAR blanks the target column where its own value is large, so the
// missingness depends on unobserved values.
func (g *CustomerDataGenerator) InjectMNAR(ds *schema.Dataset, target string, fraction float64) (*schema.Dataset, error) {
	values, err := ds.Column(target)
	if err != nil {
		return nil, err
	}

	threshold := quantile(values, 1-fraction)
	for i := range values {
		if values[i] >= threshold {
			values[i] = math.NaN()
		}
	}
	return ds.WithColumns(map[string][]float64{target: values})
}

func quantile(values []float64, q float64) float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return 0
	}
	sort.Float64s(sorted)
	idx := int(q * float64(len(sorted)))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
