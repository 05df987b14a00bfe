package export

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.sr.ht/~sbinet/gg"
	"github.com/ajstarks/svgo"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"

	"github.com/vanderheijden86/photocluster/pkg/metrics"
	"github.com/vanderheijden86/photocluster/pkg/texture"
)

// ErrNoScene is returned when a frame is requested before SetScene.
var ErrNoScene = errors.New("no scene attached")

const borderPx = 2

var (
	colorLink        = color.RGBA{0x6b, 0x80, 0xbf, 0x90}
	colorPlaceholder = color.RGBA{0x55, 0x55, 0x5f, 0xff}
	colorLabel       = color.RGBA{0xee, 0xee, 0xee, 0xff}
)

// sprite is one node as it appears on screen.
type sprite struct {
	id      string
	x, y    float64
	size    float64
	depth   float64
	border  color.RGBA
	texture *texture.Handle
	label   bool
}

type segment struct {
	x1, y1, x2, y2 float64
}

type frame struct {
	width, height int
	background    color.RGBA
	sprites       []sprite
	links         []segment
}

// buildFrame projects the scene. Sprites are ordered back to front.
func (r *Renderer) buildFrame() (frame, error) {
	r.mu.Lock()
	scene := r.scene
	proj := r.projector()
	f := frame{width: r.opts.Width, height: r.opts.Height, background: r.opts.Background}
	r.mu.Unlock()

	if scene == nil {
		return f, ErrNoScene
	}
	level := scene.Level()
	if level == nil {
		return f, nil
	}

	type screen struct{ x, y float64 }
	pos := make(map[string]screen, len(level.Nodes))
	for _, n := range level.Nodes {
		x, y, depth, ok := proj.project(n.Position())
		if !ok {
			continue
		}
		pos[n.ID] = screen{x, y}
		d := scene.BuildVisual(n)
		f.sprites = append(f.sprites, sprite{
			id:      n.ID,
			x:       x,
			y:       y,
			size:    proj.pixels(d.Scale, depth),
			depth:   depth,
			border:  d.Border,
			texture: d.Texture,
			label:   d.Level > 0,
		})
	}
	for _, l := range level.Links {
		a, ok1 := pos[l.Source]
		b, ok2 := pos[l.Target]
		if ok1 && ok2 {
			f.links = append(f.links, segment{a.x, a.y, b.x, b.y})
		}
	}
	sort.SliceStable(f.sprites, func(i, j int) bool {
		return f.sprites[i].depth > f.sprites[j].depth
	})
	return f, nil
}

// SaveFrame draws the scene to path. format is "png" or "svg"; when empty
// it is inferred from the extension.
func (r *Renderer) SaveFrame(path, format string) error {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".svg":
			format = "svg"
		case ".png":
			format = "png"
		default:
			format = "png"
			if path != "" && filepath.Ext(path) == "" {
				path += ".png"
			}
		}
	}
	if format != "svg" && format != "png" {
		return fmt.Errorf("unsupported format %q (want svg or png)", format)
	}
	if path == "" {
		return fmt.Errorf("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.WriteFrame(file, format); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteFrame encodes the scene to w as png or svg.
func (r *Renderer) WriteFrame(w io.Writer, format string) error {
	defer metrics.Timer(metrics.FrameRender)()

	f, err := r.buildFrame()
	if err != nil {
		return err
	}
	switch format {
	case "png":
		err = renderPNG(w, f)
	case "svg":
		err = renderSVG(w, f)
	default:
		return fmt.Errorf("unsupported format %q (want svg or png)", format)
	}
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.frames++
	r.dirty = false
	r.mu.Unlock()
	return nil
}

// Frame draws the scene into an image.
func (r *Renderer) Frame() (image.Image, error) {
	f, err := r.buildFrame()
	if err != nil {
		return nil, err
	}
	return drawFrame(f).Image(), nil
}

func drawFrame(f frame) *gg.Context {
	dc := gg.NewContext(f.width, f.height)
	dc.SetColor(f.background)
	dc.Clear()

	dc.SetColor(colorLink)
	dc.SetLineWidth(1)
	for _, l := range f.links {
		dc.DrawLine(l.x1, l.y1, l.x2, l.y2)
		dc.Stroke()
	}

	dc.SetFontFace(basicfont.Face7x13)
	for _, s := range f.sprites {
		drawSprite(dc, s)
	}
	return dc
}

func drawSprite(dc *gg.Context, s sprite) {
	half := s.size / 2
	dc.SetColor(s.border)
	dc.DrawRectangle(s.x-half-borderPx, s.y-half-borderPx, s.size+2*borderPx, s.size+2*borderPx)
	dc.Fill()

	side := int(s.size + 0.5)
	if side < 1 {
		return
	}
	if s.texture.IsPlaceholder() || s.texture.Image == nil {
		dc.SetColor(colorPlaceholder)
		dc.DrawRectangle(s.x-half, s.y-half, s.size, s.size)
		dc.Fill()
	} else {
		dc.DrawImage(scaled(s.texture.Image, side), int(s.x-half+0.5), int(s.y-half+0.5))
	}

	if s.label {
		dc.SetColor(colorLabel)
		dc.DrawStringAnchored(s.id, s.x, s.y+half+borderPx+8, 0.5, 0.5)
	}
}

func scaled(src image.Image, side int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func renderPNG(w io.Writer, f frame) error {
	return drawFrame(f).EncodePNG(w)
}

func renderSVG(w io.Writer, f frame) error {
	canvas := svg.New(w)
	canvas.Start(f.width, f.height)
	canvas.Rect(0, 0, f.width, f.height, fmt.Sprintf("fill:%s", css(f.background)))

	for _, l := range f.links {
		canvas.Line(int(l.x1), int(l.y1), int(l.x2), int(l.y2),
			fmt.Sprintf("stroke:%s;stroke-opacity:0.56;stroke-width:1", css(colorLink)))
	}

	for _, s := range f.sprites {
		side := int(s.size + 0.5)
		x := int(s.x - s.size/2 + 0.5)
		y := int(s.y - s.size/2 + 0.5)
		canvas.Rect(x-borderPx, y-borderPx, side+2*borderPx, side+2*borderPx, fmt.Sprintf("fill:%s", css(s.border)))
		if side < 1 {
			continue
		}
		if s.texture.IsPlaceholder() || s.texture.Image == nil {
			canvas.Rect(x, y, side, side, fmt.Sprintf("fill:%s", css(colorPlaceholder)))
		} else {
			uri, err := dataURI(s.texture.Image)
			if err != nil {
				return err
			}
			canvas.Image(x, y, side, side, uri)
		}
		if s.label {
			canvas.Text(int(s.x), y+side+borderPx+12, s.id,
				fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace;text-anchor:middle", css(colorLabel)))
		}
	}

	canvas.End()
	return nil
}

func dataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode texture: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
