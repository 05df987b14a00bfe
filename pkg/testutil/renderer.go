package testutil

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Viewpoint is a recorded SetViewpoint call.
type Viewpoint struct {
	Position r3.Vec
	LookAt   r3.Vec
	Duration time.Duration
}

// Renderer records calls made by the streaming core to its rendering
// collaborator.
type Renderer struct {
	mu         sync.Mutex
	rerenders  int
	fits       []int
	viewpoints []Viewpoint
	controls   []bool
}

// RequestRerender records a re-render request.
func (r *Renderer) RequestRerender() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rerenders++
}

// FitAllNodes records a fit-all framing.
func (r *Renderer) FitAllNodes(paddingPx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fits = append(r.fits, paddingPx)
}

// SetViewpoint records a camera move.
func (r *Renderer) SetViewpoint(pos, lookAt r3.Vec, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewpoints = append(r.viewpoints, Viewpoint{Position: pos, LookAt: lookAt, Duration: d})
}

// SetControlsEnabled records a controls toggle.
func (r *Renderer) SetControlsEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controls = append(r.controls, on)
}

// Rerenders returns the number of re-render requests.
func (r *Renderer) Rerenders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rerenders
}

// Fits returns the padding of every fit-all call.
func (r *Renderer) Fits() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.fits...)
}

// Viewpoints returns every recorded camera move.
func (r *Renderer) Viewpoints() []Viewpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Viewpoint(nil), r.viewpoints...)
}

// Controls returns every recorded controls toggle.
func (r *Renderer) Controls() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.controls...)
}

// ControlsEnabled returns the last controls state, true if never toggled.
func (r *Renderer) ControlsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.controls) == 0 {
		return true
	}
	return r.controls[len(r.controls)-1]
}
