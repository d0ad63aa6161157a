package schema

import (
	"math"
	"testing"
)

func sampleDataset(t *testing.T) *Dataset {
	t.Helper()
	ds, err := NewDataset(
		[]FeatureColumn{
			{Name: "customer_id", Role: RoleIdentifier, Protected: true},
			{Name: "spend", Role: RoleNumeric},
			{Name: "region", Role: RoleCategorical},
		},
		map[string][]float64{
			"customer_id": {1, 2, 3, 4},
			"spend":       {10, math.NaN(), 30, 40},
			"region":      {0, 1, 1, 2},
		},
	)
	if err != nil {
		t.Fatalf("building dataset: %v", err)
	}
	return ds
}

// TestNewDataset_Validation verifies construction rejects inconsistent input.
func TestNewDataset_Validation(t *testing.T) {
	if _, err := NewDataset(nil, nil); err == nil {
		t.Error("expected an error for zero columns")
	}

	_, err := NewDataset(
		[]FeatureColumn{{Name: "a", Role: RoleNumeric}},
		map[string][]float64{},
	)
	if err == nil {
		t.Error("expected an error for a declared column without data")
	}

	_, err = NewDataset(
		[]FeatureColumn{
			{Name: "a", Role: RoleNumeric},
			{Name: "b", Role: RoleNumeric},
		},
		map[string][]float64{"a": {1, 2}, "b": {1}},
	)
	if err == nil {
		t.Error("expected an error for ragged columns")
	}

	_, err = NewDataset(
		[]FeatureColumn{{Name: "a", Role: "bogus"}},
		map[string][]float64{"a": {1}},
	)
	if err == nil {
		t.Error("expected an error for an invalid role")
	}
}

// TestDataset_Immutability verifies callers cannot reach the internal
// storage through returned slices.
func TestDataset_Immutability(t *testing.T) {
	ds := sampleDataset(t)

	values, err := ds.Column("spend")
	if err != nil {
		t.Fatalf("Column failed: %v", err)
	}
	values[0] = -999

	again, err := ds.Column("spend")
	if err != nil {
		t.Fatalf("Column failed: %v", err)
	}
	if again[0] != 10 {
		t.Error("mutating a returned slice must not affect the dataset")
	}

	cols := ds.Columns()
	cols[0].Name = "hacked"
	if ds.Columns()[0].Name != "customer_id" {
		t.Error("mutating returned metadata must not affect the dataset")
	}
}

// TestDataset_MissingAccessors verifies the missingness views agree.
func TestDataset_MissingAccessors(t *testing.T) {
	ds := sampleDataset(t)

	fraction, err := ds.MissingFraction("spend")
	if err != nil {
		t.Fatalf("MissingFraction failed: %v", err)
	}
	if fraction != 0.25 {
		t.Errorf("expected 0.25, got %f", fraction)
	}

	indicator, err := ds.MissingIndicator("spend")
	if err != nil {
		t.Fatalf("MissingIndicator failed: %v", err)
	}
	wantIndicator := []float64{0, 1, 0, 0}
	for i, v := range indicator {
		if v != wantIndicator[i] {
			t.Errorf("indicator[%d] = %v, want %v", i, v, wantIndicator[i])
		}
	}

	observed, err := ds.ObservedIndices("spend")
	if err != nil {
		t.Fatalf("ObservedIndices failed: %v", err)
	}
	if len(observed) != 3 || observed[0] != 0 || observed[1] != 2 || observed[2] != 3 {
		t.Errorf("unexpected observed indices: %v", observed)
	}
}

// TestDataset_ScalableColumns verifies role and protection rules.
func TestDataset_ScalableColumns(t *testing.T) {
	ds := sampleDataset(t)

	scalable := ds.ScalableColumns()
	if len(scalable) != 2 {
		t.Fatalf("expected 2 scalable columns, got %d", len(scalable))
	}
	if scalable[0].Name != "spend" || scalable[1].Name != "region" {
		t.Errorf("unexpected scalable columns: %+v", scalable)
	}
}

// TestWithColumns_DerivesNewDataset verifies derivation leaves the source
// untouched and changes the fingerprint.
func TestWithColumns_DerivesNewDataset(t *testing.T) {
	ds := sampleDataset(t)
	originalFP := ds.Fingerprint()

	derived, err := ds.WithColumns(map[string][]float64{
		"spend": {10, 20, 30, 40},
	})
	if err != nil {
		t.Fatalf("WithColumns failed: %v", err)
	}

	if ds.Fingerprint() != originalFP {
		t.Error("source dataset changed during derivation")
	}
	if derived.Fingerprint() == originalFP {
		t.Error("derived dataset should fingerprint differently")
	}

	fraction, err := derived.MissingFraction("spend")
	if err != nil {
		t.Fatalf("MissingFraction failed: %v", err)
	}
	if fraction != 0 {
		t.Errorf("expected the derived column complete, got %.2f missing", fraction)
	}

	if _, err := ds.WithColumns(map[string][]float64{"spend": {1}}); err == nil {
		t.Error("expected an error for a wrong-length replacement")
	}
	if _, err := ds.WithColumns(map[string][]float64{"ghost": {1, 2, 3, 4}}); err == nil {
		t.Error("expected an error for an unknown column")
	}
}

// TestFingerprint_DistinguishesNaNPattern verifies two datasets differing
// only in which cells are missing fingerprint differently.
func TestFingerprint_DistinguishesNaNPattern(t *testing.T) {
	build := func(values []float64) *Dataset {
		ds, err := NewDataset(
			[]FeatureColumn{{Name: "a", Role: RoleNumeric}},
			map[string][]float64{"a": values},
		)
		if err != nil {
			t.Fatalf("building dataset: %v", err)
		}
		return ds
	}

	first := build([]float64{1, math.NaN(), 3})
	second := build([]float64{1, 2, math.NaN()})

	if first.Fingerprint() == second.Fingerprint() {
		t.Error("different missing patterns must fingerprint differently")
	}
	if first.Fingerprint() != build([]float64{1, math.NaN(), 3}).Fingerprint() {
		t.Error("identical data must fingerprint identically")
	}
}
