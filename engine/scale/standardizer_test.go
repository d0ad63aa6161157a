package scale

import (
	"math"
	"math/rand"
	"testing"

	"gosegment/domain/schema"
	"gosegment/internal/config"
)

func newTestStandardizer() *Standardizer {
	return NewStandardizer(config.DefaultEngineConfig())
}

func buildDataset(t *testing.T, columns []schema.FeatureColumn, data map[string][]float64) *schema.Dataset {
	t.Helper()
	ds, err := schema.NewDataset(columns, data)
	if err != nil {
		t.Fatalf("building dataset: %v", err)
	}
	return ds
}

// TestFitTransform_Postcondition verifies scaled columns come out with mean 0
// and standard deviation 1 within the configured tolerances.
func TestFitTransform_Postcondition(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	n := 500
	spend := make([]float64, n)
	orders := make([]float64, n)
	for i := 0; i < n; i++ {
		spend[i] = 1000 + rng.NormFloat64()*250
		orders[i] = 12 + rng.NormFloat64()*4
	}

	ds := buildDataset(t, []schema.FeatureColumn{
		{Name: "spend", Role: schema.RoleNumeric},
		{Name: "orders", Role: schema.RoleNumeric},
	}, map[string][]float64{"spend": spend, "orders": orders})

	standardizer := newTestStandardizer()
	params, err := standardizer.Fit(ds)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	scaled, err := standardizer.Transform(ds, params)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	if err := standardizer.Verify(scaled, params); err != nil {
		t.Errorf("postcondition violated: %v", err)
	}

	if got := params.ScaledColumns(); len(got) != 2 {
		t.Errorf("expected both columns scaled, got %v", got)
	}
}

// TestFit_ExcludesProtectedAndNonNumeric verifies identifiers, text and
// protected columns never enter scaling.
func TestFit_ExcludesProtectedAndNonNumeric(t *testing.T) {
	n := 20
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i)
	}

	ds := buildDataset(t, []schema.FeatureColumn{
		{Name: "customer_id", Role: schema.RoleIdentifier, Protected: true},
		{Name: "notes", Role: schema.RoleText},
		{Name: "pinned", Role: schema.RoleNumeric, Protected: true},
		{Name: "spend", Role: schema.RoleNumeric},
	}, map[string][]float64{
		"customer_id": values, "notes": values, "pinned": values, "spend": values,
	})

	params, err := newTestStandardizer().Fit(ds)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	scaled := params.ScaledColumns()
	if len(scaled) != 1 || scaled[0] != "spend" {
		t.Fatalf("expected only spend scaled, got %v", scaled)
	}

	for _, name := range []string{"customer_id", "notes", "pinned"} {
		entry, ok := params.ByColumn(name)
		if !ok {
			t.Fatalf("expected an exclusion entry for %s", name)
		}
		if !entry.Excluded || entry.Reason == "" {
			t.Errorf("%s should be excluded with a reason, got %+v", name, entry)
		}
	}
}

// TestFit_ExcludesZeroVariance verifies constant columns are excluded rather
// than producing a division by zero.
func TestFit_ExcludesZeroVariance(t *testing.T) {
	n := 30
	constant := make([]float64, n)
	varying := make([]float64, n)
	for i := range varying {
		constant[i] = 5
		varying[i] = float64(i)
	}

	ds := buildDataset(t, []schema.FeatureColumn{
		{Name: "constant", Role: schema.RoleNumeric},
		{Name: "varying", Role: schema.RoleNumeric},
	}, map[string][]float64{"constant": constant, "varying": varying})

	params, err := newTestStandardizer().Fit(ds)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	entry, ok := params.ByColumn("constant")
	if !ok {
		t.Fatal("expected an entry for the constant column")
	}
	if !entry.Excluded || entry.Reason != "zero variance" {
		t.Errorf("expected zero-variance exclusion, got %+v", entry)
	}
}

// TestFit_ExcludesUnimputedColumns verifies columns still carrying missing
// values stay out of scaling.
func TestFit_ExcludesUnimputedColumns(t *testing.T) {
	n := 40
	passthrough := make([]float64, n)
	complete := make([]float64, n)
	for i := range passthrough {
		passthrough[i] = float64(i)
		complete[i] = float64(i) * 2
	}
	passthrough[3] = math.NaN()
	passthrough[17] = math.NaN()

	ds := buildDataset(t, []schema.FeatureColumn{
		{Name: "passthrough", Role: schema.RoleNumeric},
		{Name: "complete", Role: schema.RoleNumeric},
	}, map[string][]float64{"passthrough": passthrough, "complete": complete})

	params, err := newTestStandardizer().Fit(ds)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	entry, ok := params.ByColumn("passthrough")
	if !ok {
		t.Fatal("expected an entry for the passthrough column")
	}
	if !entry.Excluded {
		t.Error("column with residual missing values must be excluded from scaling")
	}

	scaled := params.ScaledColumns()
	if len(scaled) != 1 || scaled[0] != "complete" {
		t.Errorf("expected only the complete column scaled, got %v", scaled)
	}
}

// TestTransform_ReappliesIdentically verifies fit-once parameters transform
// new data with the training statistics, not their own.
func TestTransform_ReappliesIdentically(t *testing.T) {
	train := buildDataset(t, []schema.FeatureColumn{
		{Name: "spend", Role: schema.RoleNumeric},
	}, map[string][]float64{"spend": {0, 10, 20, 30, 40}})

	unseen := buildDataset(t, []schema.FeatureColumn{
		{Name: "spend", Role: schema.RoleNumeric},
	}, map[string][]float64{"spend": {100, 200}})

	standardizer := newTestStandardizer()
	params, err := standardizer.Fit(train)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	entry, _ := params.ByColumn("spend")
	scaled, err := standardizer.Transform(unseen, params)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	values, err := scaled.Column("spend")
	if err != nil {
		t.Fatalf("reading column: %v", err)
	}
	for i, raw := range []float64{100, 200} {
		want := (raw - entry.Mean) / entry.Std
		if math.Abs(values[i]-want) > 1e-12 {
			t.Errorf("row %d: got %.6f, want %.6f", i, values[i], want)
		}
	}
}
