package profile

import (
	"math"
	"testing"

	"gosegment/domain/schema"
	"gosegment/domain/segment"
)

func profileDataset(t *testing.T) *schema.Dataset {
	t.Helper()
	ds, err := schema.NewDataset(
		[]schema.FeatureColumn{
			{Name: "customer_id", Role: schema.RoleIdentifier, Protected: true},
			{Name: "spend", Role: schema.RoleNumeric},
			{Name: "notes", Role: schema.RoleNumeric},
		},
		map[string][]float64{
			"customer_id": {1, 2, 3, 4},
			"spend":       {10, 10, 30, 30},
			"notes":       {1, math.NaN(), 3, math.NaN()},
		},
	)
	if err != nil {
		t.Fatalf("building dataset: %v", err)
	}
	return ds
}

// TestProfile_MeansAndDirections verifies per-cluster means, sizes, global
// comparison and direction flags on a hand-checkable partition.
func TestProfile_MeansAndDirections(t *testing.T) {
	ds := profileDataset(t)
	assignment := segment.Assignment{Labels: []int{0, 0, 1, 1}}

	profiles, err := NewProfiler().Profile(ds, assignment, 2)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	low := profiles[0]
	if low.Size != 2 {
		t.Errorf("cluster 0 size = %d, want 2", low.Size)
	}
	if len(low.Features) != 2 {
		t.Fatalf("expected 2 profiled features, got %d", len(low.Features))
	}

	spend := low.Features[0]
	if spend.Feature != "spend" {
		t.Fatalf("unexpected feature order: %+v", low.Features)
	}
	if spend.ClusterMean != 10 || spend.GlobalMean != 20 {
		t.Errorf("spend means = %.1f / %.1f, want 10 / 20", spend.ClusterMean, spend.GlobalMean)
	}
	if spend.Direction != segment.DirectionBelow {
		t.Errorf("cluster 0 spend should sit below the global mean")
	}
	if math.Abs(spend.PctDiff-(-50)) > 1e-9 {
		t.Errorf("spend pct diff = %.2f, want -50", spend.PctDiff)
	}

	high := profiles[1].Features[0]
	if high.Direction != segment.DirectionAbove || high.ClusterMean != 30 {
		t.Errorf("cluster 1 spend = %+v", high)
	}
}

// TestProfile_SkipsProtectedAndMissing verifies identifiers stay out of the
// profile and NaN cells are excluded from the averages.
func TestProfile_SkipsProtectedAndMissing(t *testing.T) {
	ds := profileDataset(t)
	assignment := segment.Assignment{Labels: []int{0, 0, 1, 1}}

	profiles, err := NewProfiler().Profile(ds, assignment, 2)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}

	for _, fp := range profiles[0].Features {
		if fp.Feature == "customer_id" {
			t.Error("protected identifier must not be profiled")
		}
	}

	// notes has one observed value per cluster; the mean ignores the NaNs.
	notes := profiles[0].Features[1]
	if notes.Feature != "notes" || notes.ClusterMean != 1 || notes.GlobalMean != 2 {
		t.Errorf("notes profile = %+v", notes)
	}
}
