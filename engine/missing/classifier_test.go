package missing

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"gosegment/domain/schema"
	"gosegment/domain/segment"
	"gosegment/internal/config"
)

func newTestClassifier() *Classifier {
	return NewClassifier(config.DefaultEngineConfig())
}

func buildDataset(t *testing.T, columns []schema.FeatureColumn, data map[string][]float64) *schema.Dataset {
	t.Helper()
	ds, err := schema.NewDataset(columns, data)
	if err != nil {
		t.Fatalf("building dataset: %v", err)
	}
	return ds
}

// TestClassify_MCAR verifies that missingness spread evenly across the
// companion's range is classified as completely random.
func TestClassify_MCAR(t *testing.T) {
	n := 100
	target := make([]float64, n)
	companion := make([]float64, n)
	for i := 0; i < n; i++ {
		target[i] = float64(i)
		companion[i] = float64(i)
		// Every fifth row missing: exactly balanced across companion bins.
		if i%5 == 0 {
			target[i] = math.NaN()
		}
	}

	ds := buildDataset(t, []schema.FeatureColumn{
		{Name: "target", Role: schema.RoleNumeric},
		{Name: "companion", Role: schema.RoleNumeric},
	}, map[string][]float64{"target": target, "companion": companion})

	report, err := newTestClassifier().Classify(ds)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	entry, ok := report.ByColumn("target")
	if !ok {
		t.Fatal("expected an entry for the target column")
	}
	if entry.Mechanism != segment.MechanismMCAR {
		t.Errorf("expected MCAR, got %s (p=%.4f, chi2=%.2f)", entry.Mechanism, entry.PValue, entry.ChiSquare)
	}
	if entry.PValue <= 0.05 {
		t.Errorf("expected insignificant chi-square p-value, got %.4f", entry.PValue)
	}
	if entry.MissingFraction != 0.2 {
		t.Errorf("expected missing fraction 0.2, got %.3f", entry.MissingFraction)
	}
}

// TestClassify_MAR verifies that missingness concentrated where a companion is
// large is classified as MAR with that companion named as the best driver.
func TestClassify_MAR(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 300
	target := make([]float64, n)
	driver := make([]float64, n)
	noise := make([]float64, n)
	for i := 0; i < n; i++ {
		driver[i] = rng.Float64()
		noise[i] = rng.NormFloat64()
		target[i] = rng.NormFloat64()
		// Missing almost surely when the driver is in its top quartile.
		if driver[i] > 0.75 && rng.Float64() < 0.9 {
			target[i] = math.NaN()
		}
	}

	ds := buildDataset(t, []schema.FeatureColumn{
		{Name: "target", Role: schema.RoleNumeric},
		{Name: "driver", Role: schema.RoleNumeric},
		{Name: "noise", Role: schema.RoleNumeric},
	}, map[string][]float64{"target": target, "driver": driver, "noise": noise})

	report, err := newTestClassifier().Classify(ds)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	entry, ok := report.ByColumn("target")
	if !ok {
		t.Fatal("expected an entry for the target column")
	}
	if entry.Mechanism != segment.MechanismMAR {
		t.Fatalf("expected MAR, got %s (p=%.4f, mi=%.4f)", entry.Mechanism, entry.PValue, entry.BestMIScore)
	}
	if entry.BestMIColumn != "driver" {
		t.Errorf("expected driver as the best MI column, got %q", entry.BestMIColumn)
	}
	if entry.BestMIScore < 0.05 {
		t.Errorf("expected MI score above threshold, got %.4f", entry.BestMIScore)
	}
}

// TestClassify_MNAR verifies the self-censoring case: missingness depends on
// the column's own values, with only weak leakage through a correlated
// companion. The dependence is detectable but not explainable.
func TestClassify_MNAR(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	n := 2000
	target := make([]float64, n)
	companion := make([]float64, n)
	for i := 0; i < n; i++ {
		target[i] = rng.NormFloat64()
		companion[i] = 0.25*target[i] + rng.NormFloat64()
	}

	// Censor the top fifth of the target's own values.
	sorted := append([]float64(nil), target...)
	threshold := quantileAt(sorted, 0.8)
	for i := range target {
		if target[i] >= threshold {
			target[i] = math.NaN()
		}
	}

	ds := buildDataset(t, []schema.FeatureColumn{
		{Name: "target", Role: schema.RoleNumeric},
		{Name: "companion", Role: schema.RoleNumeric},
	}, map[string][]float64{"target": target, "companion": companion})

	report, err := newTestClassifier().Classify(ds)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	entry, ok := report.ByColumn("target")
	if !ok {
		t.Fatal("expected an entry for the target column")
	}
	if entry.Mechanism != segment.MechanismMNAR {
		t.Fatalf("expected MNAR, got %s (p=%.4g, mi=%.4f)", entry.Mechanism, entry.PValue, entry.BestMIScore)
	}
	if entry.PValue > 0.05 {
		t.Errorf("expected significant chi-square (dependence exists), got p=%.4f", entry.PValue)
	}
	if entry.BestMIScore >= 0.05 {
		t.Errorf("expected MI below threshold (no explanatory column), got %.4f", entry.BestMIScore)
	}
	if entry.Note == "" {
		t.Error("MNAR entries should carry a handling note")
	}
}

// TestClassify_Indeterminate verifies the small-sample guard.
func TestClassify_Indeterminate(t *testing.T) {
	target := []float64{1, 2, math.NaN(), 4, 5, math.NaN(), 7, 8}
	companion := []float64{1, 2, 3, 4, 5, 6, 7, 8}

	ds := buildDataset(t, []schema.FeatureColumn{
		{Name: "target", Role: schema.RoleNumeric},
		{Name: "companion", Role: schema.RoleNumeric},
	}, map[string][]float64{"target": target, "companion": companion})

	report, err := newTestClassifier().Classify(ds)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	entry, ok := report.ByColumn("target")
	if !ok {
		t.Fatal("expected an entry for the target column")
	}
	if entry.Mechanism != segment.MechanismIndeterminate {
		t.Errorf("expected indeterminate with only 6 observed rows, got %s", entry.Mechanism)
	}
	if entry.Note == "" {
		t.Error("indeterminate entries should explain why")
	}
}

// TestClassify_NoCompanions verifies that a column with no testable
// companions cannot be classified.
func TestClassify_NoCompanions(t *testing.T) {
	n := 50
	target := make([]float64, n)
	ids := make([]float64, n)
	for i := 0; i < n; i++ {
		target[i] = float64(i)
		ids[i] = float64(i + 1)
		if i%4 == 0 {
			target[i] = math.NaN()
		}
	}

	ds := buildDataset(t, []schema.FeatureColumn{
		{Name: "target", Role: schema.RoleNumeric},
		{Name: "customer_id", Role: schema.RoleIdentifier, Protected: true},
	}, map[string][]float64{"target": target, "customer_id": ids})

	report, err := newTestClassifier().Classify(ds)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	entry, ok := report.ByColumn("target")
	if !ok {
		t.Fatal("expected an entry for the target column")
	}
	if entry.Mechanism != segment.MechanismIndeterminate {
		t.Errorf("expected indeterminate without companions, got %s", entry.Mechanism)
	}
}

// TestClassify_SkipsCompleteColumns verifies fully observed columns never
// appear in the report.
func TestClassify_SkipsCompleteColumns(t *testing.T) {
	n := 60
	complete := make([]float64, n)
	partial := make([]float64, n)
	for i := 0; i < n; i++ {
		complete[i] = float64(i)
		partial[i] = float64(i)
		if i%6 == 0 {
			partial[i] = math.NaN()
		}
	}

	ds := buildDataset(t, []schema.FeatureColumn{
		{Name: "complete", Role: schema.RoleNumeric},
		{Name: "partial", Role: schema.RoleNumeric},
	}, map[string][]float64{"complete": complete, "partial": partial})

	report, err := newTestClassifier().Classify(ds)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if len(report.Columns) != 1 {
		t.Fatalf("expected exactly one report entry, got %d", len(report.Columns))
	}
	if report.Columns[0].Column != "partial" {
		t.Errorf("expected entry for partial, got %s", report.Columns[0].Column)
	}
}

// TestDiscretize_QuantileBalance verifies quantile binning yields roughly
// balanced bins on skewed data.
func TestDiscretize_QuantileBalance(t *testing.T) {
	data := make([]float64, 90)
	for i := range data {
		data[i] = math.Exp(float64(i) / 10.0) // heavily right-skewed
	}

	bins := discretize(data, 3)
	counts := map[int]int{}
	for _, b := range bins {
		counts[b]++
	}

	for b := 0; b < 3; b++ {
		if counts[b] < 20 || counts[b] > 40 {
			t.Errorf("bin %d count %d outside balanced range", b, counts[b])
		}
	}
}

// TestNormalizedMutualInformation_Bounds verifies the score stays in [0,1]
// and orders dependence correctly.
func TestNormalizedMutualInformation_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 500
	indicator := make([]float64, n)
	dependent := make([]float64, n)
	independent := make([]float64, n)
	for i := 0; i < n; i++ {
		if rng.Float64() < 0.3 {
			indicator[i] = 1
		}
		dependent[i] = indicator[i]*5 + rng.NormFloat64()*0.1
		independent[i] = rng.NormFloat64()
	}

	strong := normalizedMutualInformation(indicator, dependent)
	weak := normalizedMutualInformation(indicator, independent)

	if strong < 0 || strong > 1 {
		t.Errorf("NMI out of bounds: %f", strong)
	}
	if weak < 0 || weak > 1 {
		t.Errorf("NMI out of bounds: %f", weak)
	}
	if strong <= weak {
		t.Errorf("expected dependent column to score higher: strong=%.4f weak=%.4f", strong, weak)
	}
	if strong < 0.5 {
		t.Errorf("expected near-deterministic dependence to score high, got %.4f", strong)
	}
}

func quantileAt(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted[int(q*float64(len(sorted)))]
}
