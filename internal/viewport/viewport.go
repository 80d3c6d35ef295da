// Package viewport maps face boxes from frame pixel space onto a display surface.
package viewport

import (
	"github.com/andresmejia3/veil/internal/types"
)

// Transform is a 2D affine transform:
//
//	x' = A*x + C*y + Tx
//	y' = B*x + D*y + Ty
type Transform struct {
	A, B, C, D float64
	Tx, Ty     float64
}

// Identity is the transform that leaves points unchanged.
var Identity = Transform{A: 1, D: 1}

func Scale(sx, sy float64) Transform { return Transform{A: sx, D: sy} }

func Translate(tx, ty float64) Transform { return Transform{A: 1, D: 1, Tx: tx, Ty: ty} }

// Then returns the transform that applies t first and u second.
func (t Transform) Then(u Transform) Transform {
	return Transform{
		A:  t.A*u.A + t.B*u.C,
		B:  t.A*u.B + t.B*u.D,
		C:  t.C*u.A + t.D*u.C,
		D:  t.C*u.B + t.D*u.D,
		Tx: t.Tx*u.A + t.Ty*u.C + u.Tx,
		Ty: t.Tx*u.B + t.Ty*u.D + u.Ty,
	}
}

func (t Transform) Apply(x, y float64) (float64, float64) {
	return t.A*x + t.C*y + t.Tx, t.B*x + t.D*y + t.Ty
}

// ApplyRect transforms all four corners of r and returns their bounding rectangle.
func (t Transform) ApplyRect(r types.Rect) types.Rect {
	xs := [4]float64{}
	ys := [4]float64{}
	xs[0], ys[0] = t.Apply(r.X, r.Y)
	xs[1], ys[1] = t.Apply(r.MaxX(), r.Y)
	xs[2], ys[2] = t.Apply(r.X, r.MaxY())
	xs[3], ys[3] = t.Apply(r.MaxX(), r.MaxY())

	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 1; i < 4; i++ {
		minX = min(minX, xs[i])
		maxX = max(maxX, xs[i])
		minY = min(minY, ys[i])
		maxY = max(maxY, ys[i])
	}
	return types.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// degenerate reports geometries that cannot be mapped without dividing by zero.
func degenerate(g types.ViewportGeometry) bool {
	return g.FrameWidth <= 0 || g.FrameHeight <= 0 || g.DisplayWidth <= 0 || g.DisplayHeight <= 0
}

// apertureRatio is the width/height ratio the video image occupies on screen.
func apertureRatio(g types.ViewportGeometry) float64 {
	if g.Orientation == types.Landscape {
		return g.FrameWidth / g.FrameHeight
	}
	return g.FrameHeight / g.FrameWidth
}

// VideoBox returns the part of the display covered by the video image.
// Under AspectFill it can extend past the display edges.
func VideoBox(g types.ViewportGeometry) types.Rect {
	if degenerate(g) {
		return types.Rect{}
	}
	dw, dh := g.DisplayWidth, g.DisplayHeight
	ar := apertureRatio(g)
	viewRatio := dw / dh

	switch g.FitMode {
	case types.AspectFit:
		if viewRatio > ar {
			w := dh * ar
			return types.Rect{X: (dw - w) / 2, Y: 0, Width: w, Height: dh}
		}
		h := dw / ar
		return types.Rect{X: 0, Y: (dh - h) / 2, Width: dw, Height: h}
	case types.AspectFill:
		if viewRatio > ar {
			h := dw / ar
			return types.Rect{X: 0, Y: (dh - h) / 2, Width: dw, Height: h}
		}
		w := dh * ar
		return types.Rect{X: (dw - w) / 2, Y: 0, Width: w, Height: dh}
	default:
		return types.Rect{Width: dw, Height: dh}
	}
}

// NormalizedToDisplay maps the unit square (fractions of the frame) onto the video box.
func NormalizedToDisplay(g types.ViewportGeometry) Transform {
	if degenerate(g) {
		return Scale(0, 0)
	}
	vb := VideoBox(g)
	return Scale(vb.Width/g.DisplayWidth, vb.Height/g.DisplayHeight).
		Then(Translate(vb.X/g.DisplayWidth, vb.Y/g.DisplayHeight)).
		Then(Scale(g.DisplayWidth, g.DisplayHeight))
}

// MapBox converts a frame-space face box into display coordinates.
// Degenerate geometry yields a zero rectangle at the origin.
func MapBox(box types.FaceBox, g types.ViewportGeometry) types.Rect {
	if degenerate(g) {
		return types.Rect{}
	}
	normalized := types.Rect{
		X:      box.X / g.FrameWidth,
		Y:      box.Y / g.FrameHeight,
		Width:  box.Width / g.FrameWidth,
		Height: box.Height / g.FrameHeight,
	}
	return NormalizedToDisplay(g).ApplyRect(normalized)
}

// MapBoxes maps every box in order.
func MapBoxes(boxes []types.FaceBox, g types.ViewportGeometry) []types.Rect {
	out := make([]types.Rect, len(boxes))
	for i, b := range boxes {
		out[i] = MapBox(b, g)
	}
	return out
}
