// Package layout places photo nodes that arrive without coordinates.
//
// It stands in for the force-layout engine of an interactive renderer:
// an Eades spring embedder positions each level in the XY plane and
// clusters are separated along Z. Like the real engine it can run
// incrementally, moving nodes while the camera waits for the layout to
// settle.
package layout

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/layout"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vanderheijden86/photocluster/pkg/debug"
	"github.com/vanderheijden86/photocluster/pkg/metrics"
	"github.com/vanderheijden86/photocluster/pkg/model"
	"github.com/vanderheijden86/photocluster/pkg/sched"
)

// Options tunes the layout.
type Options struct {
	// Iterations is the number of Eades updates.
	Iterations int
	// Spread is the half-width of the XY extent after normalisation.
	Spread float64
	// Seed makes initial placement reproducible.
	Seed uint64
}

// DefaultOptions returns the default layout tuning.
func DefaultOptions() Options {
	return Options{Iterations: 300, Spread: 200, Seed: 1}
}

// Simulation is an incremental layout of one level. Only nodes that were
// unplaced when the simulation was created are moved.
type Simulation struct {
	opts    Options
	level   *model.Level
	targets []int
	opt     layout.OptimizerR2
	done    bool
}

// NewSimulation prepares a layout of level's unplaced nodes. It returns
// nil when every node is already placed.
func NewSimulation(level *model.Level, opts Options) *Simulation {
	if opts.Iterations <= 0 {
		opts.Iterations = DefaultOptions().Iterations
	}
	if opts.Spread <= 0 {
		opts.Spread = DefaultOptions().Spread
	}

	var targets []int
	for i, n := range level.Nodes {
		if !n.Placed {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	g := simple.NewUndirectedGraph()
	for i := range level.Nodes {
		g.AddNode(simple.Node(i))
	}
	idx := level.Index()
	for _, l := range level.Links {
		s, ok1 := idx[l.Source]
		t, ok2 := idx[l.Target]
		if !ok1 || !ok2 || s == t {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(s), simple.Node(t)))
	}

	eades := &layout.EadesR2{
		Updates:   opts.Iterations,
		Repulsion: 1,
		Rate:      0.05,
		Theta:     0.2,
		Src:       rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15),
	}
	return &Simulation{
		opts:    opts,
		level:   level,
		targets: targets,
		opt:     layout.NewOptimizerR2(orderedGraph{g}, eades.Update),
	}
}

// Step runs up to n updates and writes the resulting positions. It
// reports whether the layout can still improve.
func (sim *Simulation) Step(n int) bool {
	if sim.done {
		return false
	}
	for i := 0; i < n; i++ {
		if !sim.opt.Update() {
			sim.done = true
			break
		}
	}
	sim.write()
	return !sim.done
}

// write normalises the layout into the configured extent.
func (sim *Simulation) write() {
	coords := make([]r2.Vec, len(sim.level.Nodes))
	lo := r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi := r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for i := range sim.level.Nodes {
		c := sim.opt.Coord2(int64(i))
		if math.IsNaN(c.X) || math.IsNaN(c.Y) {
			c = r2.Vec{}
		}
		coords[i] = c
		lo.X, lo.Y = math.Min(lo.X, c.X), math.Min(lo.Y, c.Y)
		hi.X, hi.Y = math.Max(hi.X, c.X), math.Max(hi.Y, c.Y)
	}
	center := r2.Scale(0.5, r2.Add(lo, hi))
	extent := math.Max(hi.X-lo.X, hi.Y-lo.Y) / 2
	scale := 1.0
	if extent > 0 && !math.IsInf(extent, 0) {
		scale = sim.opts.Spread / extent
	}

	for _, i := range sim.targets {
		n := sim.level.Nodes[i]
		p := r2.Scale(scale, r2.Sub(coords[i], center))
		n.SetPosition(r3.Vec{X: p.X, Y: p.Y, Z: clusterDepth(n.Cluster, sim.opts.Spread)})
	}
}

// orderedGraph iterates nodes by ID so a seeded layout is reproducible.
type orderedGraph struct {
	graph.Graph
}

func (g orderedGraph) Nodes() graph.Nodes {
	return byID(g.Graph.Nodes())
}

func (g orderedGraph) From(id int64) graph.Nodes {
	return byID(g.Graph.From(id))
}

func byID(it graph.Nodes) graph.Nodes {
	nodes := graph.NodesOf(it)
	slices.SortFunc(nodes, func(a, b graph.Node) int { return cmp.Compare(a.ID(), b.ID()) })
	return iterator.NewOrderedNodes(nodes)
}

// clusterDepth separates clusters along Z; noise (-1) sits in front.
func clusterDepth(cluster int, spread float64) float64 {
	return float64(cluster) * spread / 4
}

// Apply lays out level's unplaced nodes to completion and returns how many
// nodes were placed.
func Apply(level *model.Level, opts Options) int {
	defer metrics.Timer(metrics.LayoutCompute)()

	sim := NewSimulation(level, opts)
	if sim == nil {
		return 0
	}
	for sim.Step(sim.opts.Iterations) {
	}
	debug.Log("layout: placed %d of %d nodes", len(sim.targets), len(level.Nodes))
	return len(sim.targets)
}

// Animate runs the simulation on s, stepping every interval and calling
// onStep after each step so the renderer can redraw. done (which may be
// nil) runs once the layout has converged.
func (sim *Simulation) Animate(s sched.Scheduler, interval time.Duration, perStep int, onStep, done func()) {
	var tick func()
	tick = func() {
		more := sim.Step(perStep)
		if onStep != nil {
			onStep()
		}
		if more {
			s.After(interval, tick)
			return
		}
		if done != nil {
			done()
		}
	}
	s.Post(tick)
}
