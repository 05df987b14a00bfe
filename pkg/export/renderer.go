// Package export provides a headless renderer for the photo graph.
//
// Renderer implements the camera and re-render primitives the streaming
// core drives, keeps the resulting camera pose, and draws frames of the
// visible level to PNG or SVG.
package export

import (
	"image/color"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vanderheijden86/photocluster/pkg/debug"
	"github.com/vanderheijden86/photocluster/pkg/model"
	"github.com/vanderheijden86/photocluster/pkg/visual"
)

// Scene is what a frame draws: the visible level and a descriptor per node.
type Scene interface {
	Level() *model.Level
	BuildVisual(node *model.Node) visual.Descriptor
}

// Options configures frame size and projection.
type Options struct {
	Width      int
	Height     int
	Background color.RGBA
	// FOV is the vertical field of view in degrees.
	FOV float64
}

// DefaultOptions returns a 1280x800 frame on a dark background.
func DefaultOptions() Options {
	return Options{
		Width:      1280,
		Height:     800,
		Background: color.RGBA{0x10, 0x10, 0x20, 0xff},
		FOV:        50,
	}
}

// Renderer is a headless rendering collaborator. Camera moves take effect
// immediately; animation durations are only recorded.
type Renderer struct {
	mu         sync.Mutex
	opts       Options
	scene      Scene
	eye        r3.Vec
	lookAt     r3.Vec
	controls   bool
	dirty      bool
	requests   int
	frames     int
	lastFlight time.Duration
	onRerender func()
}

// NewRenderer returns a renderer looking down the Z axis at the origin.
func NewRenderer(opts Options) *Renderer {
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	if opts.FOV <= 0 || opts.FOV >= 180 {
		opts.FOV = def.FOV
	}
	return &Renderer{
		opts:     opts,
		eye:      r3.Vec{Z: 1000},
		controls: true,
	}
}

// SetScene attaches the scene drawn by SaveFrame and framed by FitAllNodes.
func (r *Renderer) SetScene(s Scene) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scene = s
}

// OnRerender registers fn to run after each coalesced re-render request.
func (r *Renderer) OnRerender(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRerender = fn
}

// RequestRerender marks the frame dirty. Requests made while the frame is
// already dirty are coalesced.
func (r *Renderer) RequestRerender() {
	r.mu.Lock()
	if r.dirty {
		r.mu.Unlock()
		return
	}
	r.dirty = true
	r.requests++
	fn := r.onRerender
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// FitAllNodes moves the camera so every node of the scene is visible with
// paddingPx of margin.
func (r *Renderer) FitAllNodes(paddingPx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scene == nil {
		return
	}
	level := r.scene.Level()
	if level == nil || len(level.Nodes) == 0 {
		return
	}

	var center r3.Vec
	for _, n := range level.Nodes {
		center = r3.Add(center, n.Position())
	}
	center = r3.Scale(1/float64(len(level.Nodes)), center)
	var radius float64
	for _, n := range level.Nodes {
		radius = math.Max(radius, r3.Norm(r3.Sub(n.Position(), center)))
	}
	if radius == 0 {
		radius = 1
	}

	half := float64(min(r.opts.Width, r.opts.Height)) / 2
	usable := math.Max(half-float64(paddingPx), half/10)
	dist := radius * (half / usable) / math.Tan(r.fovRad()/2)

	r.lookAt = center
	r.eye = r3.Add(center, r3.Vec{Z: dist})
	r.dirty = true
	debug.Log("export: fit %d nodes radius=%.1f dist=%.1f", len(level.Nodes), radius, dist)
}

// SetViewpoint places the camera. The duration is recorded but not animated.
func (r *Renderer) SetViewpoint(position, lookAt r3.Vec, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eye = position
	r.lookAt = lookAt
	r.lastFlight = d
	r.dirty = true
}

// SetControlsEnabled toggles user camera controls.
func (r *Renderer) SetControlsEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controls = enabled
}

// Camera returns the current eye position and look-at point.
func (r *Renderer) Camera() (eye, lookAt r3.Vec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eye, r.lookAt
}

// ControlsEnabled reports whether user camera controls are enabled.
func (r *Renderer) ControlsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controls
}

// LastFlight returns the duration of the most recent SetViewpoint.
func (r *Renderer) LastFlight() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFlight
}

// Dirty reports whether the scene changed since the last frame.
func (r *Renderer) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// Rerenders returns the number of coalesced re-render requests.
func (r *Renderer) Rerenders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// Frames returns the number of frames drawn.
func (r *Renderer) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *Renderer) fovRad() float64 {
	return r.opts.FOV * math.Pi / 180
}

// projector maps world points to frame pixels for one camera pose.
type projector struct {
	eye, forward, right, up r3.Vec
	focal                   float64
	cx, cy                  float64
}

const nearPlane = 1e-3

func (r *Renderer) projector() projector {
	forward := r3.Sub(r.lookAt, r.eye)
	if r3.Norm(forward) == 0 {
		forward = r3.Vec{Z: -1}
	}
	forward = r3.Unit(forward)
	worldUp := r3.Vec{Y: 1}
	if math.Abs(r3.Dot(forward, worldUp)) > 0.999 {
		worldUp = r3.Vec{Z: 1}
	}
	right := r3.Unit(r3.Cross(forward, worldUp))
	up := r3.Cross(right, forward)
	return projector{
		eye:     r.eye,
		forward: forward,
		right:   right,
		up:      up,
		focal:   float64(r.opts.Height) / 2 / math.Tan(r.fovRad()/2),
		cx:      float64(r.opts.Width) / 2,
		cy:      float64(r.opts.Height) / 2,
	}
}

// project returns the pixel position of p, its depth, and whether it lies
// in front of the camera.
func (p projector) project(v r3.Vec) (x, y, depth float64, ok bool) {
	d := r3.Sub(v, p.eye)
	depth = r3.Dot(d, p.forward)
	if depth <= nearPlane {
		return 0, 0, depth, false
	}
	s := p.focal / depth
	return p.cx + r3.Dot(d, p.right)*s, p.cy - r3.Dot(d, p.up)*s, depth, true
}

// pixels converts a world-space size at depth to pixels.
func (p projector) pixels(size, depth float64) float64 {
	return size * p.focal / depth
}
