package compositor

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"reflect"
	"testing"

	"github.com/ZacxDev/video-compositor/internal/geometry"
	"github.com/ZacxDev/video-compositor/internal/style"
)

type recordingSurface struct {
	calls  []string
	shadow Shadow
	clip   *RoundRect
	fills  []RoundRect
	frames []geometry.Rect
}

func (r *recordingSurface) Size() (int, int) { return 0, 0 }

func (r *recordingSurface) Fill(c color.RGBA) {
	r.calls = append(r.calls, fmt.Sprintf("fill %02x%02x%02x", c.R, c.G, c.B))
}

func (r *recordingSurface) Save()    { r.calls = append(r.calls, "save") }
func (r *recordingSurface) Restore() { r.calls = append(r.calls, "restore") }

func (r *recordingSurface) SetShadow(s Shadow) {
	r.shadow = s
	if s.Enabled() {
		r.calls = append(r.calls, fmt.Sprintf("shadow %.0f/%.0f", s.Blur, s.OffsetY))
	} else {
		r.calls = append(r.calls, "shadow off")
	}
}

func (r *recordingSurface) FillPath(p RoundRect, c color.RGBA) {
	r.fills = append(r.fills, p)
	r.calls = append(r.calls, "fillpath")
}

func (r *recordingSurface) Clip(p RoundRect) {
	r.clip = &p
	r.calls = append(r.calls, "clip")
}

func (r *recordingSurface) DrawFrame(frame image.Image, dst geometry.Rect) {
	r.frames = append(r.frames, dst)
	r.calls = append(r.calls, "frame")
}

func testGeometry() geometry.Output {
	return geometry.Output{CanvasWidth: 2040, CanvasHeight: 1200, VideoX: 60, VideoY: 60, VideoWidth: 1920, VideoHeight: 1080}
}

func TestCompositeFrame_DrawOrder(t *testing.T) {
	s := style.Default()
	s.ShadowStrength = 20
	rec := &recordingSurface{}

	CompositeFrame(rec, image.NewRGBA(image.Rect(0, 0, 1920, 1080)), testGeometry(), s)

	want := []string{
		"fill 1e1e2e",
		"save",
		"shadow 30/10",
		"fillpath",
		"shadow off",
		"clip",
		"frame",
		"restore",
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("calls = %v\nwant %v", rec.calls, want)
	}

	vr := testGeometry().VideoRect()
	if rec.fills[0].Rect != vr || rec.clip.Rect != vr || rec.frames[0] != vr {
		t.Errorf("silhouette, clip and frame must share the video rect %+v", vr)
	}
	if rec.fills[0].Radius != 12 {
		t.Errorf("radius = %v, want 12", rec.fills[0].Radius)
	}
}

func TestCompositeFrame_NoShadow(t *testing.T) {
	s := style.Default()
	s.ShadowStrength = 0
	rec := &recordingSurface{}

	CompositeFrame(rec, image.NewRGBA(image.Rect(0, 0, 4, 4)), testGeometry(), s)

	for _, c := range rec.calls {
		if c == "fillpath" || len(c) > 6 && c[:6] == "shadow" {
			t.Fatalf("unexpected %q with zero shadow strength: %v", c, rec.calls)
		}
	}
	if rec.calls[len(rec.calls)-1] != "restore" {
		t.Errorf("last call = %q, want restore", rec.calls[len(rec.calls)-1])
	}
}

func TestCompositeFrame_NilFrame(t *testing.T) {
	rec := &recordingSurface{}
	CompositeFrame(rec, nil, testGeometry(), style.Default())

	if len(rec.frames) != 0 {
		t.Errorf("drew %d frames without a bitmap", len(rec.frames))
	}
	if rec.clip == nil {
		t.Error("clip not applied")
	}
}

func TestCompositeFrame_ClampsRadius(t *testing.T) {
	s := style.Default()
	s.CornerRadius = 5000
	rec := &recordingSurface{}

	CompositeFrame(rec, nil, testGeometry(), s)

	if rec.clip.Radius != 540 {
		t.Errorf("radius = %v, want 540", rec.clip.Radius)
	}
}

func TestShadowFor(t *testing.T) {
	if got := ShadowFor(0); got.Enabled() {
		t.Errorf("ShadowFor(0) = %+v, want disabled", got)
	}
	got := ShadowFor(40)
	if got.Blur != 60 || got.OffsetY != 20 || got.OffsetX != 0 {
		t.Errorf("ShadowFor(40) = %+v", got)
	}
	if got.Color.A == 0 || got.Color.A == 0xff {
		t.Errorf("shadow colour alpha = %d, want semi-transparent", got.Color.A)
	}
}

func TestRoundRect(t *testing.T) {
	r := geometry.Rect{X: 10, Y: 20, W: 100, H: 40}

	t.Run("clamp", func(t *testing.T) {
		for _, radius := range []float64{-3, 0, 12, 20, 21, 1e9} {
			rr := NewRoundRect(r, radius)
			if rr.Radius < 0 || rr.Radius > 20 {
				t.Errorf("NewRoundRect(%v).Radius = %v", radius, rr.Radius)
			}
		}
	})

	t.Run("square corners", func(t *testing.T) {
		segs := NewRoundRect(r, 0).Segments()
		if len(segs) != 5 {
			t.Fatalf("len(segments) = %d, want 5", len(segs))
		}
		for _, s := range segs {
			if s.Kind == CubicTo {
				t.Fatal("zero radius produced a curve")
			}
		}
	})

	t.Run("rounded", func(t *testing.T) {
		segs := NewRoundRect(r, 8).Segments()
		curves := 0
		for _, s := range segs {
			if s.Kind == CubicTo {
				curves++
			}
		}
		if curves != 4 {
			t.Errorf("curves = %d, want 4", curves)
		}
		last := segs[len(segs)-2].Pts[2]
		if last != segs[0].Pts[0] {
			t.Errorf("outline ends at %+v, starts at %+v", last, segs[0].Pts[0])
		}
	})

	t.Run("simple closed curve at half the short side", func(t *testing.T) {
		for _, rect := range []geometry.Rect{r, {X: 0, Y: 0, W: 50, H: 50}} {
			rr := NewRoundRect(rect, math.Min(rect.W, rect.H)/2)
			pts := flatten(rr.Segments())
			cx, cy := rect.X+rect.W/2, rect.Y+rect.H/2

			// Walking the outline must sweep once around the centre without ever turning back.
			var sweep float64
			prev := math.Atan2(pts[0].Y-cy, pts[0].X-cx)
			for i, p := range pts[1:] {
				if p.X < rect.X-1e-9 || p.X > rect.X+rect.W+1e-9 || p.Y < rect.Y-1e-9 || p.Y > rect.Y+rect.H+1e-9 {
					t.Fatalf("%+v: point %d %+v leaves the rectangle", rect, i+1, p)
				}
				a := math.Atan2(p.Y-cy, p.X-cx)
				d := math.Remainder(a-prev, 2*math.Pi)
				if d < -1e-9 {
					t.Fatalf("%+v: outline runs backwards at point %d %+v", rect, i+1, p)
				}
				sweep += d
				prev = a
			}
			if math.Abs(sweep-2*math.Pi) > 1e-6 {
				t.Errorf("%+v: outline sweeps %v rad, want one full turn", rect, sweep)
			}
		}
	})

	t.Run("contains", func(t *testing.T) {
		rr := NewRoundRect(r, 20)
		if rr.Contains(Point{X: 11, Y: 21}) {
			t.Error("corner point inside rounded outline")
		}
		if !rr.Contains(Point{X: 60, Y: 40}) {
			t.Error("centre outside outline")
		}
		if !NewRoundRect(r, 0).Contains(Point{X: 10, Y: 20}) {
			t.Error("square corner excluded")
		}
	})
}

// flatten samples the outline into points, closing back to the start.
func flatten(segs []Segment) []Point {
	var pts []Point
	var start, cur Point
	lineTo := func(to Point) {
		for i := 1; i <= 8; i++ {
			f := float64(i) / 8
			pts = append(pts, Point{X: cur.X + (to.X-cur.X)*f, Y: cur.Y + (to.Y-cur.Y)*f})
		}
		cur = to
	}
	for _, s := range segs {
		switch s.Kind {
		case MoveTo:
			start, cur = s.Pts[0], s.Pts[0]
			pts = append(pts, cur)
		case LineTo:
			lineTo(s.Pts[0])
		case CubicTo:
			c1, c2, end := s.Pts[0], s.Pts[1], s.Pts[2]
			for i := 1; i <= 32; i++ {
				f := float64(i) / 32
				g := 1 - f
				pts = append(pts, Point{
					X: g*g*g*cur.X + 3*g*g*f*c1.X + 3*g*f*f*c2.X + f*f*f*end.X,
					Y: g*g*g*cur.Y + 3*g*g*f*c1.Y + 3*g*f*f*c2.Y + f*f*f*end.Y,
				})
			}
			cur = end
		case Close:
			lineTo(start)
		}
	}
	return pts
}
