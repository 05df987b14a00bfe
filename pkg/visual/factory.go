// Package visual maps a node and the highlight state to what the renderer
// should draw for it.
package visual

import (
	"image/color"
	"math"

	"github.com/vanderheijden86/photocluster/pkg/highlight"
	"github.com/vanderheijden86/photocluster/pkg/model"
	"github.com/vanderheijden86/photocluster/pkg/texture"
)

// Scale defaults.
const (
	DefaultBaseScale = 15
	DefaultScaleStep = 4
	DefaultMaxScale  = 40
)

// Config tunes sizes and colours.
type Config struct {
	BaseScale float64
	ScaleStep float64
	MaxScale  float64
	Palette   Palette
	// Priority is used for full-size loads triggered while drawing a
	// highlighted node.
	Priority int
}

// DefaultConfig returns the default sizes and palette.
func DefaultConfig() Config {
	return Config{
		BaseScale: DefaultBaseScale,
		ScaleStep: DefaultScaleStep,
		MaxScale:  DefaultMaxScale,
		Palette:   DefaultPalette(),
		Priority:  highlight.DefaultPriority,
	}
}

// Descriptor describes how to draw one node.
type Descriptor struct {
	NodeID  string
	Level   int
	Scale   float64
	Border  color.RGBA
	Texture *texture.Handle
}

// Factory builds descriptors. Build never blocks: textures that are not
// cached yet are requested in the background and Rerender is called when
// they arrive.
type Factory struct {
	Cache    *texture.Cache
	Rerender func()
	// URL maps a node to the address of its image. Defaults to the
	// node's raw image reference.
	URL    func(*model.Node) string
	Config Config
}

// Scale returns the sprite scale for level. Level 0 is the base size;
// each level adds one step, saturating at the maximum.
func (f *Factory) Scale(level int) float64 {
	return scaleFor(f.Config, level)
}

func scaleFor(cfg Config, level int) float64 {
	if level <= 0 {
		return cfg.BaseScale
	}
	return math.Min(cfg.MaxScale, cfg.BaseScale+float64(level)*cfg.ScaleStep)
}

// Build returns the descriptor for node under state.
func (f *Factory) Build(node *model.Node, state highlight.State) Descriptor {
	level := state.LevelOf(node.ID)
	return Descriptor{
		NodeID:  node.ID,
		Level:   level,
		Scale:   f.Scale(level),
		Border:  f.Config.Palette.Color(level),
		Texture: f.texture(node, level),
	}
}

func (f *Factory) url(node *model.Node) string {
	if f.URL != nil {
		return f.URL(node)
	}
	return node.ImageRef()
}

func (f *Factory) texture(node *model.Node, level int) *texture.Handle {
	url := f.url(node)
	if url == "" || f.Cache == nil {
		return texture.Placeholder()
	}

	if level == 0 {
		return f.Cache.GetOrLoadLowRes(url, f.ready)
	}
	if h, ok := f.Cache.HighRes(url); ok {
		return h
	}
	if h, ok := f.Cache.LowRes(url); ok {
		f.Cache.GetOrLoadHighRes(url, f.Config.Priority, node.ID, f.ready)
		return h
	}
	return f.Cache.GetOrLoadHighRes(url, f.Config.Priority, node.ID, f.ready)
}

// ready re-renders once a texture lands. A failed load delivers the
// placeholder, which is already on screen.
func (f *Factory) ready(h *texture.Handle) {
	if h.IsPlaceholder() {
		return
	}
	if f.Rerender != nil {
		f.Rerender()
	}
}
