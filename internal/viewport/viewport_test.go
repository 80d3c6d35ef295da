package viewport

import (
	"math"
	"testing"

	"github.com/andresmejia3/veil/internal/types"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) <= eps }

func rectApprox(a, b types.Rect) bool {
	return approx(a.X, b.X) && approx(a.Y, b.Y) && approx(a.Width, b.Width) && approx(a.Height, b.Height)
}

// sizes is a small grid of frame/display dimensions used by the property tests.
var sizes = [][4]float64{
	{640, 480, 375, 667},
	{640, 480, 1280, 720},
	{1920, 1080, 375, 667},
	{480, 640, 1024, 768},
	{640, 480, 480, 640},
	{100, 100, 100, 100},
	{3, 7, 11, 5},
}

func geometry(s [4]float64, mode types.FitMode) types.ViewportGeometry {
	return types.ViewportGeometry{FrameWidth: s[0], FrameHeight: s[1], DisplayWidth: s[2], DisplayHeight: s[3], FitMode: mode}
}

func TestMapBox_StretchFullFrame(t *testing.T) {
	for _, o := range []types.Orientation{types.Portrait, types.Landscape} {
		for _, s := range sizes {
			g := geometry(s, types.Stretch)
			g.Orientation = o
			got := MapBox(types.FaceBox{X: 0, Y: 0, Width: s[0], Height: s[1]}, g)
			want := types.Rect{X: 0, Y: 0, Width: s[2], Height: s[3]}
			if got != want {
				t.Errorf("%v %v: MapBox(full frame) = %v, want exactly %v", s, o, got, want)
			}
		}
	}
}

func TestVideoBox_FitContainedInDisplay(t *testing.T) {
	for _, o := range []types.Orientation{types.Portrait, types.Landscape} {
		for _, s := range sizes {
			g := geometry(s, types.AspectFit)
			g.Orientation = o
			vb := VideoBox(g)
			if vb.X < -eps || vb.Y < -eps || vb.MaxX() > s[2]+eps || vb.MaxY() > s[3]+eps {
				t.Errorf("%v %v: fit video box %v escapes display %vx%v", s, o, vb, s[2], s[3])
			}
			// The full-frame box must land exactly on the video box.
			full := MapBox(types.FaceBox{Width: s[0], Height: s[1]}, g)
			if !rectApprox(full, vb) {
				t.Errorf("%v %v: full frame mapped to %v, video box %v", s, o, full, vb)
			}
		}
	}
}

func TestVideoBox_FillCoversDisplay(t *testing.T) {
	for _, o := range []types.Orientation{types.Portrait, types.Landscape} {
		for _, s := range sizes {
			g := geometry(s, types.AspectFill)
			g.Orientation = o
			vb := VideoBox(g)
			if vb.X > eps || vb.Y > eps || vb.MaxX() < s[2]-eps || vb.MaxY() < s[3]-eps {
				t.Errorf("%v %v: fill video box %v does not cover display %vx%v", s, o, vb, s[2], s[3])
			}
		}
	}
}

func TestVideoBox_EqualRatiosAgree(t *testing.T) {
	// 480/640 == 375/500: both fit and fill collapse onto the display.
	g := types.ViewportGeometry{FrameWidth: 640, FrameHeight: 480, DisplayWidth: 375, DisplayHeight: 500}
	want := types.Rect{Width: 375, Height: 500}
	for _, mode := range []types.FitMode{types.AspectFit, types.AspectFill, types.Stretch} {
		g.FitMode = mode
		if got := VideoBox(g); !rectApprox(got, want) {
			t.Errorf("%v: VideoBox = %v, want %v", mode, got, want)
		}
	}
}

func TestMapBox_AspectFillPhone(t *testing.T) {
	g := types.ViewportGeometry{
		FrameWidth: 640, FrameHeight: 480,
		DisplayWidth: 375, DisplayHeight: 667,
		FitMode: types.AspectFill,
	}

	vb := VideoBox(g)
	if !approx(vb.Width, 667*(480.0/640.0)) || !approx(vb.Height, 667) {
		t.Fatalf("video box = %v, want 500.25x667", vb)
	}

	t.Run("quarter box at (160,120)", func(t *testing.T) {
		got := MapBox(types.FaceBox{X: 160, Y: 120, Width: 160, Height: 120}, g)
		want := types.Rect{X: -62.625 + 0.25*500.25, Y: 0.25 * 667, Width: 0.25 * 500.25, Height: 0.25 * 667}
		if !rectApprox(got, want) {
			t.Errorf("MapBox = %v, want %v", got, want)
		}
	})

	t.Run("frame-centred quarter box lands on display centre", func(t *testing.T) {
		got := MapBox(types.FaceBox{X: 240, Y: 180, Width: 160, Height: 120}, g)
		cx, cy := got.Center()
		if math.Abs(cx-375.0/2) > 0.01*375 || math.Abs(cy-667.0/2) > 0.01*667 {
			t.Errorf("centre = (%.3f, %.3f), want within 1%% of (187.5, 333.5)", cx, cy)
		}
	})
}

func TestMapBox_Deterministic(t *testing.T) {
	g := types.ViewportGeometry{FrameWidth: 1280, FrameHeight: 720, DisplayWidth: 800, DisplayHeight: 600, FitMode: types.AspectFit}
	box := types.FaceBox{X: 13.5, Y: 402, Width: 97, Height: 101.25}
	first := MapBox(box, g)
	for i := 0; i < 100; i++ {
		if got := MapBox(box, g); got != first {
			t.Fatalf("call %d returned %v, first call returned %v", i, got, first)
		}
	}
}

func TestMapBox_Degenerate(t *testing.T) {
	box := types.FaceBox{X: 1, Y: 2, Width: 3, Height: 4}
	tests := []struct {
		name string
		g    types.ViewportGeometry
	}{
		{"zero frame width", types.ViewportGeometry{FrameWidth: 0, FrameHeight: 480, DisplayWidth: 100, DisplayHeight: 100}},
		{"zero frame height", types.ViewportGeometry{FrameWidth: 640, FrameHeight: 0, DisplayWidth: 100, DisplayHeight: 100, FitMode: types.AspectFill}},
		{"zero display", types.ViewportGeometry{FrameWidth: 640, FrameHeight: 480, FitMode: types.AspectFit}},
		{"negative display", types.ViewportGeometry{FrameWidth: 640, FrameHeight: 480, DisplayWidth: -5, DisplayHeight: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapBox(box, tt.g); got != (types.Rect{}) {
				t.Errorf("MapBox = %v, want zero rect", got)
			}
		})
	}
}

func TestMapBox_Landscape(t *testing.T) {
	// 16:9 frame letterboxed into a 4:3 display.
	g := types.ViewportGeometry{
		FrameWidth: 1920, FrameHeight: 1080,
		DisplayWidth: 800, DisplayHeight: 600,
		FitMode: types.AspectFit, Orientation: types.Landscape,
	}
	vb := VideoBox(g)
	if !rectApprox(vb, types.Rect{X: 0, Y: 75, Width: 800, Height: 450}) {
		t.Fatalf("video box = %v", vb)
	}
	got := MapBox(types.FaceBox{X: 960, Y: 540, Width: 192, Height: 108}, g)
	if !rectApprox(got, types.Rect{X: 400, Y: 300, Width: 80, Height: 45}) {
		t.Errorf("MapBox = %v", got)
	}
}

func TestTransform_Then(t *testing.T) {
	tr := Scale(2, 3).Then(Translate(5, -1))
	x, y := tr.Apply(1, 1)
	if !approx(x, 7) || !approx(y, 2) {
		t.Errorf("Apply = (%v, %v), want (7, 2)", x, y)
	}
	if got := Identity.Then(tr); got != tr {
		t.Errorf("Identity.Then changed the transform: %+v", got)
	}
}
