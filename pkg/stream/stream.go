// Package stream wires the texture cache, the load queue, the highlight
// machine, the visual factory and the camera controller into one owned
// context for a renderer.
//
// A Streamer is driven from its scheduler's loop: the renderer calls
// BuildVisual and OnNodeClick, the host calls SetDataset, SetLevel,
// OnResize and SetFullscreen. Completed loads come back as RequestRerender
// calls on the renderer.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vanderheijden86/photocluster/pkg/camera"
	"github.com/vanderheijden86/photocluster/pkg/debug"
	"github.com/vanderheijden86/photocluster/pkg/highlight"
	"github.com/vanderheijden86/photocluster/pkg/loader"
	"github.com/vanderheijden86/photocluster/pkg/model"
	"github.com/vanderheijden86/photocluster/pkg/sched"
	"github.com/vanderheijden86/photocluster/pkg/texture"
	"github.com/vanderheijden86/photocluster/pkg/visual"
)

// DefaultPreloadHighRes is the number of nodes per level whose full-size
// texture is loaded ahead of any click.
const DefaultPreloadHighRes = 5

// Renderer is the rendering collaborator.
type Renderer interface {
	camera.Rig
	// RequestRerender asks the renderer to rebuild node visuals.
	RequestRerender()
}

// Options configures a Streamer. Zero values use defaults.
type Options struct {
	// BaseURL resolves relative image references.
	BaseURL string
	Texture texture.Options
	// PreloadHighRes nodes of each level get full-size loads at ambient
	// priorities PreloadHighRes-i, below HighlightPriority.
	PreloadHighRes int
	// HighlightPriority is the load priority of clicked nodes.
	HighlightPriority int
	Visual            *visual.Config
	Camera            *camera.Config
}

// Stats is a snapshot of the streamer.
type Stats struct {
	Cache      texture.Stats   `json:"cache"`
	Level      int             `json:"level"`
	Levels     int             `json:"levels"`
	Nodes      int             `json:"nodes"`
	Highlight  highlight.State `json:"highlight"`
	Fullscreen bool            `json:"fullscreen"`
}

// Streamer is the progressive texture streaming core.
type Streamer struct {
	renderer Renderer
	sched    sched.Scheduler
	opts     Options

	cache     *texture.Cache
	highlight *highlight.Machine
	factory   *visual.Factory
	camera    *camera.Controller

	mu      sync.Mutex
	dataset *model.Dataset
	level   int
}

// New returns a Streamer loading images through f and drawing through r.
func New(f texture.Fetcher, r Renderer, s sched.Scheduler, opts Options) *Streamer {
	if opts.PreloadHighRes < 0 {
		opts.PreloadHighRes = 0
	}
	if opts.HighlightPriority <= 0 {
		opts.HighlightPriority = highlight.DefaultPriority
	}
	vcfg := visual.DefaultConfig()
	if opts.Visual != nil {
		vcfg = *opts.Visual
	}
	vcfg.Priority = opts.HighlightPriority
	ccfg := camera.DefaultConfig()
	if opts.Camera != nil {
		ccfg = *opts.Camera
	}

	st := &Streamer{
		renderer:  r,
		sched:     s,
		opts:      opts,
		cache:     texture.NewCache(f, s, opts.Texture),
		highlight: highlight.New(opts.HighlightPriority),
		camera:    camera.NewController(r, s, ccfg),
	}
	st.factory = &visual.Factory{
		Cache:    st.cache,
		Rerender: r.RequestRerender,
		URL:      st.URL,
		Config:   vcfg,
	}
	return st
}

// Cache returns the texture cache.
func (s *Streamer) Cache() *texture.Cache {
	return s.cache
}

// URL returns the resolved image address of node, or "" when the node has
// no image reference.
func (s *Streamer) URL(node *model.Node) string {
	ref := node.ImageRef()
	if ref == "" {
		return ""
	}
	u, err := loader.Resolve(s.opts.BaseURL, ref)
	if err != nil {
		debug.Log("stream: node %s: %v", node.ID, err)
		return ref
	}
	return u
}

// SetDataset replaces the dataset. The previous view is torn down: the
// cache is purged, pending loads are dropped and the highlight is
// cleared. Level 0 becomes visible.
func (s *Streamer) SetDataset(ds *model.Dataset) {
	s.mu.Lock()
	s.dataset = ds
	s.level = 0
	s.mu.Unlock()

	s.cache.Purge()
	s.highlight.Reset()
	debug.Log("stream: dataset with %d levels, %d nodes", levelCount(ds), ds.NodeCount())
	s.activate()
}

// SetLevel shows level i of the current dataset. Cached textures are kept;
// the highlight is cleared since node IDs are scoped to a level.
func (s *Streamer) SetLevel(i int) error {
	s.mu.Lock()
	if _, err := s.dataset.Level(i); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("set level: %w", err)
	}
	changed := i != s.level
	s.level = i
	s.mu.Unlock()

	if !changed {
		return nil
	}
	s.highlight.Reset()
	s.activate()
	return nil
}

// activate primes the visible level and reframes the camera.
func (s *Streamer) activate() {
	nodes := s.Nodes()
	s.prime(nodes)
	s.camera.DatasetChanged(nodes)
	s.renderer.RequestRerender()
}

// prime requests thumbnails for every node and full-size textures for the
// first PreloadHighRes nodes.
func (s *Streamer) prime(nodes []*model.Node) {
	start := time.Now()
	defer func() { debug.LogTiming("stream: prime", time.Since(start)) }()

	for i, n := range nodes {
		url := s.URL(n)
		if url == "" {
			continue
		}
		s.cache.GetOrLoadLowRes(url, s.loaded)
		if i < s.opts.PreloadHighRes {
			s.cache.GetOrLoadHighRes(url, s.opts.PreloadHighRes-i, n.ID, s.loaded)
		}
	}
}

// loaded re-renders after a texture lands. Failures deliver the
// placeholder and are not cached, so re-rendering on one would only
// request the same URL again.
func (s *Streamer) loaded(h *texture.Handle) {
	if h.IsPlaceholder() {
		return
	}
	s.renderer.RequestRerender()
}

// Reframe frames the visible level again after the settle delay. Hosts
// call it when a layout finishes moving nodes after they were shown.
func (s *Streamer) Reframe() {
	s.camera.DatasetChanged(s.Nodes())
}

// CurrentLevel returns the visible level index.
func (s *Streamer) CurrentLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Dataset returns the current dataset, nil before SetDataset.
func (s *Streamer) Dataset() *model.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset
}

// Level returns the visible level, nil before SetDataset.
func (s *Streamer) Level() *model.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.dataset.Level(s.level)
	if err != nil {
		return nil
	}
	return l
}

// Nodes returns the nodes of the visible level.
func (s *Streamer) Nodes() []*model.Node {
	if l := s.Level(); l != nil {
		return l.Nodes
	}
	return nil
}

// BuildVisual returns the descriptor for node. It never blocks.
func (s *Streamer) BuildVisual(node *model.Node) visual.Descriptor {
	return s.factory.Build(node, s.highlight.State())
}

// Scale returns the sprite scale for an emphasis level.
func (s *Streamer) Scale(level int) float64 {
	return s.factory.Scale(level)
}

// OnNodeClick applies a click on node and executes the resulting effects.
func (s *Streamer) OnNodeClick(node *model.Node) {
	if node == nil {
		return
	}
	for _, e := range s.highlight.Click(node.ID) {
		switch e := e.(type) {
		case highlight.LoadHighRes:
			if url := s.URL(node); url != "" {
				s.cache.GetOrLoadHighRes(url, e.Priority, e.NodeID, s.loaded)
			}
		case highlight.FrameNode:
			s.camera.FrameNode(node)
		}
	}
	debug.Log("stream: click %s -> %s", node.ID, s.highlight.State())
	s.renderer.RequestRerender()
}

// ClickID clicks the node with the given ID on the visible level.
func (s *Streamer) ClickID(id string) error {
	l := s.Level()
	if l == nil {
		return fmt.Errorf("click %s: no dataset", id)
	}
	n := l.Node(id)
	if n == nil {
		return fmt.Errorf("click %s: no such node on level %d", id, s.CurrentLevel())
	}
	s.OnNodeClick(n)
	return nil
}

// OnResize reframes after a window resize.
func (s *Streamer) OnResize() {
	s.camera.Resized()
}

// SetFullscreen switches fullscreen mode.
func (s *Streamer) SetFullscreen(on bool) {
	s.camera.SetFullscreen(on)
}

// Fullscreen reports the fullscreen mode.
func (s *Streamer) Fullscreen() bool {
	return s.camera.Fullscreen()
}

// Highlight returns the highlight state.
func (s *Streamer) Highlight() highlight.State {
	return s.highlight.State()
}

// Stats returns a snapshot for status displays.
func (s *Streamer) Stats() Stats {
	s.mu.Lock()
	st := Stats{Level: s.level, Levels: levelCount(s.dataset)}
	s.mu.Unlock()
	st.Nodes = len(s.Nodes())
	st.Cache = s.cache.Stats()
	st.Highlight = s.highlight.State()
	st.Fullscreen = s.camera.Fullscreen()
	return st
}

// WaitIdle blocks until no texture load is pending or in flight. It polls
// and is meant for headless runs on a Loop scheduler.
func (s *Streamer) WaitIdle(ctx context.Context) error {
	const poll = 10 * time.Millisecond
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if !s.cache.Busy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close cancels in-flight fetches.
func (s *Streamer) Close() {
	s.cache.Close()
}

func levelCount(ds *model.Dataset) int {
	if ds == nil {
		return 0
	}
	return len(ds.Levels)
}
