package testkit

import (
	"math"
	"testing"

	"gosegment/domain/schema"
)

// TestGenerateDataset_Shape verifies the generated frame has the declared
// columns, roles and row count.
func TestGenerateDataset_Shape(t *testing.T) {
	gen := NewCustomerDataGenerator(DefaultCustomerConfig())
	ds, err := gen.GenerateDataset()
	if err != nil {
		t.Fatalf("GenerateDataset failed: %v", err)
	}

	if ds.Rows() != 300 {
		t.Errorf("expected 300 rows, got %d", ds.Rows())
	}
	if len(ds.Columns()) != 6 {
		t.Errorf("expected 6 columns, got %d", len(ds.Columns()))
	}

	id, err := ds.ColumnMeta("customer_id")
	if err != nil {
		t.Fatalf("missing customer_id column: %v", err)
	}
	if !id.Protected || id.Role != schema.RoleIdentifier {
		t.Errorf("customer_id should be a protected identifier, got %+v", id)
	}

	region, err := ds.ColumnMeta("region")
	if err != nil {
		t.Fatalf("missing region column: %v", err)
	}
	if region.Role != schema.RoleCategorical {
		t.Errorf("region should be categorical, got %s", region.Role)
	}
}

// TestGenerateDataset_Deterministic verifies the same seed reproduces the
// same frame.
func TestGenerateDataset_Deterministic(t *testing.T) {
	first, err := NewCustomerDataGenerator(DefaultCustomerConfig()).GenerateDataset()
	if err != nil {
		t.Fatalf("first generation failed: %v", err)
	}
	second, err := NewCustomerDataGenerator(DefaultCustomerConfig()).GenerateDataset()
	if err != nil {
		t.Fatalf("second generation failed: %v", err)
	}

	if first.Fingerprint() != second.Fingerprint() {
		t.Error("identical seeds must generate identical datasets")
	}
}

// TestInjectMCAR_Fraction verifies the injected missing rate lands near the
// requested fraction and leaves other columns untouched.
func TestInjectMCAR_Fraction(t *testing.T) {
	gen := NewCustomerDataGenerator(DefaultCustomerConfig())
	ds, err := gen.GenerateDataset()
	if err != nil {
		t.Fatalf("GenerateDataset failed: %v", err)
	}

	injected, err := gen.InjectMCAR(ds, "annual_spend", 0.10)
	if err != nil {
		t.Fatalf("InjectMCAR failed: %v", err)
	}

	fraction, err := injected.MissingFraction("annual_spend")
	if err != nil {
		t.Fatalf("reading missing fraction: %v", err)
	}
	if fraction < 0.04 || fraction > 0.18 {
		t.Errorf("expected roughly 10%% missing, got %.1f%%", fraction*100)
	}

	other, err := injected.MissingFraction("order_count")
	if err != nil {
		t.Fatalf("reading other column: %v", err)
	}
	if other != 0 {
		t.Errorf("untargeted column should stay complete, got %.3f missing", other)
	}

	// The source dataset is immutable.
	original, err := ds.MissingFraction("annual_spend")
	if err != nil {
		t.Fatalf("reading original: %v", err)
	}
	if original != 0 {
		t.Error("injection must not mutate the source dataset")
	}
}

// TestInjectMAR_TracksDriver verifies missingness concentrates where the
// driver is large.
func TestInjectMAR_TracksDriver(t *testing.T) {
	gen := NewCustomerDataGenerator(DefaultCustomerConfig())
	ds, err := gen.GenerateDataset()
	if err != nil {
		t.Fatalf("GenerateDataset failed: %v", err)
	}

	injected, err := gen.InjectMAR(ds, "avg_basket", "order_count", 0.10)
	if err != nil {
		t.Fatalf("InjectMAR failed: %v", err)
	}

	basket, _ := injected.Column("avg_basket")
	orders, _ := injected.Column("order_count")
	driverThreshold := quantile(orders, 0.5)

	missingHigh, missingLow := 0, 0
	for i, v := range basket {
		if math.IsNaN(v) {
			if orders[i] >= driverThreshold {
				missingHigh++
			} else {
				missingLow++
			}
		}
	}
	if missingHigh == 0 {
		t.Fatal("expected missing values in the high-driver half")
	}
	if missingLow >= missingHigh {
		t.Errorf("missingness should concentrate in the high-driver half: high=%d low=%d", missingHigh, missingLow)
	}
}

// TestInjectMNAR_CensorsTop verifies only the largest values go missing.
func TestInjectMNAR_CensorsTop(t *testing.T) {
	gen := NewCustomerDataGenerator(DefaultCustomerConfig())
	ds, err := gen.GenerateDataset()
	if err != nil {
		t.Fatalf("GenerateDataset failed: %v", err)
	}

	before, _ := ds.Column("annual_spend")
	injected, err := gen.InjectMNAR(ds, "annual_spend", 0.15)
	if err != nil {
		t.Fatalf("InjectMNAR failed: %v", err)
	}
	after, _ := injected.Column("annual_spend")

	maxObserved := math.Inf(-1)
	minCensored := math.Inf(1)
	for i, v := range after {
		if math.IsNaN(v) {
			if before[i] < minCensored {
				minCensored = before[i]
			}
		} else if v > maxObserved {
			maxObserved = v
		}
	}
	if minCensored < maxObserved {
		t.Errorf("censoring should remove only the top values: min censored %.2f < max observed %.2f",
			minCensored, maxObserved)
	}
}
