// Package render composites frames and their overlays onto a display-sized
// canvas and hands the result to a sink.
package render

import (
	"image"
	"image/color"
	"math"
	"sync/atomic"

	"github.com/andresmejia3/veil/internal/overlay"
	"github.com/andresmejia3/veil/internal/types"
	"github.com/andresmejia3/veil/internal/viewport"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

// Options control how overlays are painted.
type Options struct {
	Style    Style
	Strength int
	// OutlineColor and OutlineWidth style outline elements.
	OutlineColor color.RGBA
	OutlineWidth int
	Logger       *logrus.Entry
}

// DefaultOptions paints a radius 15 blur with 2px green outlines.
func DefaultOptions() Options {
	return Options{
		Style:        StyleBlur,
		Strength:     15,
		OutlineColor: color.RGBA{G: 255, A: 255},
		OutlineWidth: 2,
	}
}

// Compositor is an overlay surface that paints onto a canvas. It also
// implements the pipeline's Presenter and Resizer.
//
// Create, Destroy, Resize and Present must be called from one goroutine (the
// display loop). Alive and Close may be called from anywhere, but Close
// should only run once the display loop is done with the compositor.
type Compositor struct {
	sink   Sink
	opts   Options
	log    *logrus.Entry
	canvas *image.RGBA
	// out is the sink-sized buffer used when a fixed-size sink and the
	// canvas disagree.
	out *image.RGBA

	nextID uint64
	live   int

	dead      atomic.Bool
	closed    atomic.Bool
	presented atomic.Uint64
}

func NewCompositor(sink Sink, opts Options) *Compositor {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.OutlineWidth <= 0 {
		opts.OutlineWidth = 1
	}
	return &Compositor{sink: sink, opts: opts, log: log.WithField("component", "render")}
}

// Alive is false once the sink has failed or the compositor is closed.
func (c *Compositor) Alive() bool { return !c.dead.Load() && !c.closed.Load() }

func (c *Compositor) Create(kind overlay.Kind, rect types.Rect) overlay.Element {
	c.nextID++
	c.live++
	return overlay.Element{ID: c.nextID, Kind: kind, Rect: rect}
}

func (c *Compositor) Destroy(overlay.Element) {
	if c.live > 0 {
		c.live--
	}
}

// Live is the number of elements created and not destroyed.
func (c *Compositor) Live() int { return c.live }

// Resize reallocates the canvas. A non-positive size disables presenting.
func (c *Compositor) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		c.canvas = nil
		return
	}
	if c.canvas != nil && c.canvas.Rect.Dx() == width && c.canvas.Rect.Dy() == height {
		return
	}
	c.canvas = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Present composites frame and overlays and writes the canvas to the sink.
// A sink error kills the compositor; later reconciles become no-ops.
func (c *Compositor) Present(frame types.Frame, geom types.ViewportGeometry, overlays []overlay.Element) {
	if !c.Alive() || c.canvas == nil || !frame.Usable() {
		return
	}
	c.compose(frame, geom, overlays)
	if err := c.sink.WriteFrame(c.output()); err != nil {
		c.dead.Store(true)
		c.log.WithError(err).WithField("seq", frame.Seq).Error("Sink failed, stopping output")
		return
	}
	c.presented.Add(1)
}

// output returns the canvas, or the canvas scaled into a letterboxed buffer
// when the sink is fixed to another size.
func (c *Compositor) output() *image.RGBA {
	fs, ok := c.sink.(FixedSizeSink)
	if !ok {
		return c.canvas
	}
	w, h := fs.Size()
	cb := c.canvas.Bounds()
	if w <= 0 || h <= 0 || (cb.Dx() == w && cb.Dy() == h) {
		return c.canvas
	}
	if c.out == nil || c.out.Rect.Dx() != w || c.out.Rect.Dy() != h {
		c.out = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	draw.Draw(c.out, c.out.Bounds(), image.Black, image.Point{}, draw.Src)

	scale := math.Min(float64(w)/float64(cb.Dx()), float64(h)/float64(cb.Dy()))
	sw := max(1, int(math.Round(float64(cb.Dx())*scale)))
	sh := max(1, int(math.Round(float64(cb.Dy())*scale)))
	x0, y0 := (w-sw)/2, (h-sh)/2
	draw.ApproxBiLinear.Scale(c.out, image.Rect(x0, y0, x0+sw, y0+sh), c.canvas, cb, draw.Src, nil)
	return c.out
}

// Presented is the number of canvases written to the sink.
func (c *Compositor) Presented() uint64 { return c.presented.Load() }

func (c *Compositor) compose(frame types.Frame, geom types.ViewportGeometry, overlays []overlay.Element) {
	bounds := c.canvas.Bounds()
	draw.Draw(c.canvas, bounds, image.Black, image.Point{}, draw.Src)

	src := &image.RGBA{
		Pix:    frame.Pix[:frame.Width*frame.Height*types.BytesPerPixel],
		Stride: frame.Width * types.BytesPerPixel,
		Rect:   image.Rect(0, 0, frame.Width, frame.Height),
	}
	if vb := toPixels(viewport.VideoBox(geom)); !vb.Empty() {
		draw.ApproxBiLinear.Scale(c.canvas, vb, src, src.Rect, draw.Src, nil)
	}

	// Blur first so outlines stay crisp on top.
	for _, el := range overlays {
		if el.Kind == overlay.Blur {
			Redact(c.canvas, toPixels(el.Rect), c.opts.Style, c.opts.Strength)
		}
	}
	for _, el := range overlays {
		if el.Kind == overlay.Outline {
			c.outline(toPixels(el.Rect))
		}
	}
}

func (c *Compositor) outline(r image.Rectangle) {
	if r.Empty() {
		return
	}
	t := min(c.opts.OutlineWidth, r.Dx(), r.Dy())
	ink := image.NewUniform(c.opts.OutlineColor)
	edges := [4]image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(c.canvas, e, ink, image.Point{}, draw.Src)
	}
}

// Close closes the sink. Safe to call more than once.
func (c *Compositor) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.sink.Close()
}

// toPixels rounds a display rect outward to whole pixels.
func toPixels(r types.Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.MaxX())), int(math.Ceil(r.MaxY())),
	)
}
