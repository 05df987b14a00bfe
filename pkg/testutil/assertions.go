package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vanderheijden86/photocluster/pkg/model"
)

// AssertFinite fails if any component of v is NaN or infinite.
func AssertFinite(t *testing.T, name string, v r3.Vec) {
	t.Helper()
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			t.Fatalf("%s is not finite: %+v", name, v)
		}
	}
}

// AssertVecNear fails if got and want differ by more than eps in any component.
func AssertVecNear(t *testing.T, name string, got, want r3.Vec, eps float64) {
	t.Helper()
	if math.Abs(got.X-want.X) > eps || math.Abs(got.Y-want.Y) > eps || math.Abs(got.Z-want.Z) > eps {
		t.Fatalf("%s = %+v, want %+v", name, got, want)
	}
}

// AssertNoDuplicateIDs verifies node IDs are unique within each level.
func AssertNoDuplicateIDs(t *testing.T, ds *model.Dataset) {
	t.Helper()
	for li, level := range ds.Levels {
		seen := make(map[string]bool)
		for _, n := range level.Nodes {
			if seen[n.ID] {
				t.Errorf("level %d: duplicate node ID %s", li, n.ID)
			}
			seen[n.ID] = true
		}
	}
}
