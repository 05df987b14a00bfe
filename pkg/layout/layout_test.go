package layout

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vanderheijden86/photocluster/pkg/model"
	"github.com/vanderheijden86/photocluster/pkg/sched"
	"github.com/vanderheijden86/photocluster/pkg/testutil"
)

func unplacedLevel(t *testing.T, n int) *model.Level {
	t.Helper()
	cfg := testutil.DefaultConfig()
	cfg.Nodes = n
	cfg.Placed = false
	ds := testutil.Dataset(cfg)
	return &ds.Levels[0]
}

func TestApplyPlacesEveryNode(t *testing.T) {
	level := unplacedLevel(t, 20)
	opts := Options{Iterations: 50, Spread: 100, Seed: 7}

	placed := Apply(level, opts)
	if placed != 20 {
		t.Fatalf("placed = %d, want 20", placed)
	}
	for _, n := range level.Nodes {
		if !n.Placed {
			t.Errorf("node %s not marked placed", n.ID)
		}
		testutil.AssertFinite(t, n.ID, n.Position())
		if math.Abs(n.X) > opts.Spread+1e-6 || math.Abs(n.Y) > opts.Spread+1e-6 {
			t.Errorf("node %s at (%v, %v) outside spread %v", n.ID, n.X, n.Y, opts.Spread)
		}
	}
}

func TestApplyKeepsPlacedNodes(t *testing.T) {
	level := unplacedLevel(t, 8)
	fixed := r3.Vec{X: 1, Y: 2, Z: 3}
	level.Nodes[0].SetPosition(fixed)

	if got := Apply(level, Options{Iterations: 20, Seed: 1}); got != 7 {
		t.Fatalf("placed = %d, want 7", got)
	}
	testutil.AssertVecNear(t, "fixed node", level.Nodes[0].Position(), fixed, 0)
}

func TestApplyAllPlacedIsNoop(t *testing.T) {
	cfg := testutil.DefaultConfig()
	ds := testutil.Dataset(cfg)
	level := &ds.Levels[0]
	before := make([]r3.Vec, len(level.Nodes))
	for i, n := range level.Nodes {
		before[i] = n.Position()
	}

	if got := Apply(level, DefaultOptions()); got != 0 {
		t.Fatalf("placed = %d, want 0", got)
	}
	for i, n := range level.Nodes {
		testutil.AssertVecNear(t, n.ID, n.Position(), before[i], 0)
	}
}

func TestApplyDeterministic(t *testing.T) {
	a := unplacedLevel(t, 10)
	b := unplacedLevel(t, 10)
	opts := Options{Iterations: 40, Spread: 50, Seed: 99}
	Apply(a, opts)
	Apply(b, opts)
	for i := range a.Nodes {
		testutil.AssertVecNear(t, a.Nodes[i].ID, a.Nodes[i].Position(), b.Nodes[i].Position(), 1e-9)
	}
}

func TestApplySingleNode(t *testing.T) {
	level := &model.Level{Nodes: []*model.Node{{ID: "only", Cluster: 0}}}
	if got := Apply(level, DefaultOptions()); got != 1 {
		t.Fatalf("placed = %d, want 1", got)
	}
	testutil.AssertFinite(t, "only", level.Nodes[0].Position())
}

func TestApplyIgnoresBadLinks(t *testing.T) {
	level := unplacedLevel(t, 4)
	level.Links = append(level.Links,
		model.Link{Source: "0", Target: "0"},
		model.Link{Source: "0", Target: "missing"},
	)
	if got := Apply(level, Options{Iterations: 10, Seed: 3}); got != 4 {
		t.Fatalf("placed = %d, want 4", got)
	}
}

func TestClusterDepth(t *testing.T) {
	tests := []struct {
		cluster int
		spread  float64
		want    float64
	}{
		{0, 200, 0},
		{1, 200, 50},
		{2, 100, 50},
		{-1, 200, -50},
	}
	for _, tt := range tests {
		if got := clusterDepth(tt.cluster, tt.spread); got != tt.want {
			t.Errorf("clusterDepth(%d, %v) = %v, want %v", tt.cluster, tt.spread, got, tt.want)
		}
	}
}

func TestAnimateMovesNodesOnTheLoop(t *testing.T) {
	level := unplacedLevel(t, 6)
	sim := NewSimulation(level, Options{Iterations: 10, Spread: 80, Seed: 5})
	if sim == nil {
		t.Fatal("NewSimulation returned nil for unplaced level")
	}

	s := sched.NewManual()
	steps, finished := 0, false
	sim.Animate(s, 16*time.Millisecond, 3, func() { steps++ }, func() { finished = true })

	if steps != 0 {
		t.Fatal("Animate ran synchronously")
	}
	s.RunPending()
	if steps != 1 || finished {
		t.Fatalf("after first tick steps=%d finished=%v", steps, finished)
	}
	for _, n := range level.Nodes {
		if !n.Placed {
			t.Errorf("node %s not placed after first step", n.ID)
		}
	}

	s.Advance(time.Second)
	if !finished {
		t.Fatal("layout did not converge")
	}
	// 10 updates at 3 per step finish on the fourth step.
	if steps != 4 {
		t.Errorf("steps = %d, want 4", steps)
	}
	if sim.Step(1) {
		t.Error("Step after convergence should report false")
	}
}

func TestNewSimulationAllPlaced(t *testing.T) {
	ds := testutil.Dataset(testutil.DefaultConfig())
	if sim := NewSimulation(&ds.Levels[0], DefaultOptions()); sim != nil {
		t.Fatal("expected nil simulation when every node is placed")
	}
}
