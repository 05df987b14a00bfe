// Package camera moves the viewpoint in response to dataset changes,
// window changes and node clicks.
package camera

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vanderheijden86/photocluster/pkg/debug"
	"github.com/vanderheijden86/photocluster/pkg/model"
	"github.com/vanderheijden86/photocluster/pkg/sched"
)

// Rig is the set of camera primitives offered by the renderer.
type Rig interface {
	FitAllNodes(paddingPx int)
	SetViewpoint(position, lookAt r3.Vec, d time.Duration)
	SetControlsEnabled(enabled bool)
}

// Config holds the framing constants.
type Config struct {
	// SettleDelay lets the layout stabilise before framing a new dataset.
	SettleDelay time.Duration
	// FitPaddingPx is passed to Rig.FitAllNodes.
	FitPaddingPx int
	// Standoff is the distance kept between camera and a clicked node.
	Standoff float64
	// MinStandoff replaces Standoff for nodes at the origin.
	MinStandoff float64
	// Animation is the duration of click-to-focus flights. Controls stay
	// disabled for as long.
	Animation time.Duration
	// CentroidOffset is the height of the viewpoint above the centroid.
	CentroidOffset float64
}

// DefaultConfig returns the default framing constants.
func DefaultConfig() Config {
	return Config{
		SettleDelay:    500 * time.Millisecond,
		FitPaddingPx:   400,
		Standoff:       100,
		MinStandoff:    100,
		Animation:      time.Second,
		CentroidOffset: 300,
	}
}

// Controller drives a Rig. All Rig calls happen on the scheduler's loop
// or in the caller's goroutine.
type Controller struct {
	rig   Rig
	sched sched.Scheduler
	cfg   Config

	mu         sync.Mutex
	nodes      []*model.Node
	fullscreen bool
	settleGen  uint64
	flightGen  uint64
}

// NewController returns a controller for rig.
func NewController(rig Rig, s sched.Scheduler, cfg Config) *Controller {
	return &Controller{rig: rig, sched: s, cfg: cfg}
}

// Config returns the controller's framing constants.
func (c *Controller) Config() Config {
	return c.cfg
}

// DatasetChanged frames nodes once the layout has had SettleDelay to
// settle. A later call supersedes a pending one.
//
// Framing fits all nodes and, outside fullscreen, moves the viewpoint
// CentroidOffset above the centroid of the node positions as they are
// when the delay expires.
func (c *Controller) DatasetChanged(nodes []*model.Node) {
	c.mu.Lock()
	c.nodes = nodes
	c.settleGen++
	gen := c.settleGen
	c.mu.Unlock()

	c.sched.After(c.cfg.SettleDelay, func() { c.settle(gen) })
}

func (c *Controller) settle(gen uint64) {
	c.mu.Lock()
	if gen != c.settleGen {
		c.mu.Unlock()
		return
	}
	nodes := c.nodes
	fullscreen := c.fullscreen
	c.mu.Unlock()

	c.rig.FitAllNodes(c.cfg.FitPaddingPx)
	if fullscreen {
		return
	}
	centroid, ok := Centroid(nodes)
	if !ok {
		return
	}
	eye := r3.Add(centroid, r3.Vec{Z: c.cfg.CentroidOffset})
	debug.Log("camera: centroid %.1f,%.1f,%.1f of %d nodes", centroid.X, centroid.Y, centroid.Z, len(nodes))
	c.rig.SetViewpoint(eye, centroid, c.cfg.Animation)
}

// Resized refits all nodes after a window resize.
func (c *Controller) Resized() {
	c.rig.FitAllNodes(c.cfg.FitPaddingPx)
}

// SetFullscreen records the fullscreen mode and refits all nodes when it
// changes.
func (c *Controller) SetFullscreen(on bool) {
	c.mu.Lock()
	changed := c.fullscreen != on
	c.fullscreen = on
	c.mu.Unlock()

	if changed {
		c.rig.FitAllNodes(c.cfg.FitPaddingPx)
	}
}

// Fullscreen reports the current mode.
func (c *Controller) Fullscreen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fullscreen
}

// FrameNode flies the camera to node. Free camera interaction is disabled
// for the flight and re-enabled Animation later; a new flight restarts
// that delay.
func (c *Controller) FrameNode(node *model.Node) {
	pos := node.Position()
	target, err := FramingTarget(pos, c.cfg.Standoff, c.cfg.MinStandoff)
	if err != nil {
		debug.Log("camera: node %s: %v, using minimum stand-off", node.ID, err)
		pos = r3.Sub(target, r3.Vec{Z: c.cfg.MinStandoff})
	}

	c.mu.Lock()
	c.flightGen++
	gen := c.flightGen
	c.mu.Unlock()

	c.rig.SetControlsEnabled(false)
	c.rig.SetViewpoint(target, pos, c.cfg.Animation)
	c.sched.After(c.cfg.Animation, func() {
		c.mu.Lock()
		current := gen == c.flightGen
		c.mu.Unlock()
		if current {
			c.rig.SetControlsEnabled(true)
		}
	})
}
