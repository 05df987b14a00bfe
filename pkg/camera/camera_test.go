package camera

import (
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vanderheijden86/photocluster/pkg/model"
	"github.com/vanderheijden86/photocluster/pkg/sched"
	"github.com/vanderheijden86/photocluster/pkg/testutil"
)

func newController(t *testing.T) (*Controller, *testutil.Renderer, *sched.Manual) {
	t.Helper()
	rig := &testutil.Renderer{}
	s := sched.NewManual()
	return NewController(rig, s, DefaultConfig()), rig, s
}

func TestFramingTarget(t *testing.T) {
	tests := []struct {
		name string
		pos  r3.Vec
		want r3.Vec
		err  error
	}{
		{"on x axis", r3.Vec{X: 100}, r3.Vec{X: 200}, nil},
		{"diagonal", r3.Vec{X: 30, Y: 40}, r3.Vec{X: 90, Y: 120}, nil},
		{"origin", r3.Vec{}, r3.Vec{Z: 100}, ErrDegenerateGeometry},
		{"nan", r3.Vec{X: math.NaN()}, r3.Vec{Z: 100}, ErrDegenerateGeometry},
		{"inf", r3.Vec{Y: math.Inf(1)}, r3.Vec{Z: 100}, ErrDegenerateGeometry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FramingTarget(tt.pos, 100, 100)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			testutil.AssertFinite(t, "target", got)
			testutil.AssertVecNear(t, "target", got, tt.want, 1e-9)
		})
	}
}

func TestFramingTarget_KeepsStandoff(t *testing.T) {
	pos := r3.Vec{X: -3, Y: 7, Z: 11}
	got, err := FramingTarget(pos, 100, 100)
	if err != nil {
		t.Fatal(err)
	}
	if d := r3.Norm(r3.Sub(got, pos)); math.Abs(d-100) > 1e-9 {
		t.Fatalf("distance to node = %v, want 100", d)
	}
}

func TestCentroid(t *testing.T) {
	if _, ok := Centroid(nil); ok {
		t.Fatal("empty centroid should not be ok")
	}
	c, ok := Centroid([]*model.Node{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 4, Z: 6}, nil})
	if !ok {
		t.Fatal("expected centroid")
	}
	testutil.AssertVecNear(t, "centroid", c, r3.Vec{X: 1, Y: 2, Z: 3}, 1e-12)
}

func TestDatasetChanged_FramesAfterSettle(t *testing.T) {
	c, rig, s := newController(t)
	nodes := []*model.Node{{ID: "a", X: 10}, {ID: "b", X: 30}}
	c.DatasetChanged(nodes)

	s.Advance(499 * time.Millisecond)
	if len(rig.Fits()) != 0 {
		t.Fatal("framed before the settle delay")
	}

	// The layout keeps moving nodes until the delay expires.
	nodes[1].Y = 20
	s.Advance(time.Millisecond)

	if fits := rig.Fits(); len(fits) != 1 || fits[0] != 400 {
		t.Fatalf("fits = %v, want [400]", fits)
	}
	vps := rig.Viewpoints()
	if len(vps) != 1 {
		t.Fatalf("expected one centroid move, got %d", len(vps))
	}
	testutil.AssertVecNear(t, "lookAt", vps[0].LookAt, r3.Vec{X: 20, Y: 10}, 1e-12)
	testutil.AssertVecNear(t, "eye", vps[0].Position, r3.Vec{X: 20, Y: 10, Z: 300}, 1e-12)
}

func TestDatasetChanged_LatestWins(t *testing.T) {
	c, rig, s := newController(t)
	c.DatasetChanged([]*model.Node{{ID: "a", X: 10}})
	s.Advance(300 * time.Millisecond)
	c.DatasetChanged([]*model.Node{{ID: "b", X: -10}})
	s.Advance(time.Second)

	if len(rig.Fits()) != 1 {
		t.Fatalf("superseded change should not frame, fits=%v", rig.Fits())
	}
	testutil.AssertVecNear(t, "lookAt", rig.Viewpoints()[0].LookAt, r3.Vec{X: -10}, 1e-12)
}

func TestDatasetChanged_FullscreenSkipsCentroid(t *testing.T) {
	c, rig, s := newController(t)
	c.SetFullscreen(true)
	c.DatasetChanged([]*model.Node{{ID: "a", X: 10}})
	s.Advance(time.Second)

	if len(rig.Fits()) != 2 {
		t.Fatalf("expected fullscreen fit and settle fit, got %v", rig.Fits())
	}
	if len(rig.Viewpoints()) != 0 {
		t.Fatal("fullscreen framing should not move to the centroid")
	}
}

func TestDatasetChanged_EmptyLevel(t *testing.T) {
	c, rig, s := newController(t)
	c.DatasetChanged(nil)
	s.Advance(time.Second)
	if len(rig.Fits()) != 1 || len(rig.Viewpoints()) != 0 {
		t.Fatalf("fits=%v viewpoints=%v", rig.Fits(), rig.Viewpoints())
	}
}

func TestResizeAndFullscreenRefit(t *testing.T) {
	c, rig, _ := newController(t)
	c.Resized()
	c.SetFullscreen(true)
	c.SetFullscreen(true)
	c.SetFullscreen(false)

	if got := len(rig.Fits()); got != 3 {
		t.Fatalf("fits = %d, want 3", got)
	}
	if c.Fullscreen() {
		t.Fatal("fullscreen should be off")
	}
}

func TestFrameNode(t *testing.T) {
	c, rig, s := newController(t)
	c.FrameNode(&model.Node{ID: "a", X: 100})

	vps := rig.Viewpoints()
	if len(vps) != 1 {
		t.Fatalf("expected one flight, got %d", len(vps))
	}
	testutil.AssertVecNear(t, "eye", vps[0].Position, r3.Vec{X: 200}, 1e-9)
	testutil.AssertVecNear(t, "lookAt", vps[0].LookAt, r3.Vec{X: 100}, 1e-9)
	if vps[0].Duration != time.Second {
		t.Fatalf("duration = %v", vps[0].Duration)
	}
	if rig.ControlsEnabled() {
		t.Fatal("controls should be disabled during the flight")
	}

	s.Advance(999 * time.Millisecond)
	if rig.ControlsEnabled() {
		t.Fatal("controls re-enabled too early")
	}
	s.Advance(time.Millisecond)
	if !rig.ControlsEnabled() {
		t.Fatal("controls should be re-enabled after the flight")
	}
}

func TestFrameNode_NewFlightRestartsDelay(t *testing.T) {
	c, rig, s := newController(t)
	c.FrameNode(&model.Node{ID: "a", X: 100})
	s.Advance(600 * time.Millisecond)
	c.FrameNode(&model.Node{ID: "b", Y: 100})
	s.Advance(600 * time.Millisecond)

	if rig.ControlsEnabled() {
		t.Fatal("first flight's timer re-enabled controls during the second")
	}
	s.Advance(400 * time.Millisecond)
	if !rig.ControlsEnabled() {
		t.Fatal("controls should be enabled after the second flight")
	}
}

func TestFrameNode_AtOrigin(t *testing.T) {
	c, rig, _ := newController(t)
	c.FrameNode(&model.Node{ID: "origin"})

	vp := rig.Viewpoints()[0]
	testutil.AssertFinite(t, "eye", vp.Position)
	testutil.AssertFinite(t, "lookAt", vp.LookAt)
	testutil.AssertVecNear(t, "eye", vp.Position, r3.Vec{Z: 100}, 1e-12)
	testutil.AssertVecNear(t, "lookAt", vp.LookAt, r3.Vec{}, 1e-12)
}
