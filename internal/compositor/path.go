package compositor

import (
	"math"

	"github.com/ZacxDev/video-compositor/internal/geometry"
)

// kappa places cubic control points so a quarter circle is approximated within 0.03%.
const kappa = 0.5522847498307936

// Point is a canvas coordinate.
type Point struct {
	X, Y float64
}

// SegmentKind tags a path segment.
type SegmentKind uint8

const (
	MoveTo SegmentKind = iota
	LineTo
	CubicTo
	Close
)

// Segment is one path command. CubicTo uses all three points (c1, c2, end);
// MoveTo and LineTo use Pts[0]; Close uses none.
type Segment struct {
	Kind SegmentKind
	Pts  [3]Point
}

// RoundRect is a rectangle with uniformly rounded corners. It is comparable, so
// raster surfaces can key coverage caches on it.
type RoundRect struct {
	geometry.Rect
	Radius float64
}

// NewRoundRect builds a rounded rectangle, clamping radius into [0, min(w,h)/2] so the
// outline can never self-intersect.
func NewRoundRect(r geometry.Rect, radius float64) RoundRect {
	if r.W < 0 {
		r.X, r.W = r.X+r.W, -r.W
	}
	if r.H < 0 {
		r.Y, r.H = r.Y+r.H, -r.H
	}
	limit := math.Min(r.W, r.H) / 2
	if math.IsNaN(radius) || radius < 0 {
		radius = 0
	}
	if radius > limit {
		radius = limit
	}
	return RoundRect{Rect: r, Radius: radius}
}

// Segments returns the closed outline, clockwise from the top edge. A zero radius
// yields four straight edges and no curves.
func (rr RoundRect) Segments() []Segment {
	x0, y0 := rr.X, rr.Y
	x1, y1 := rr.X+rr.W, rr.Y+rr.H
	r := rr.Radius

	if r == 0 {
		return []Segment{
			{Kind: MoveTo, Pts: [3]Point{{x0, y0}}},
			{Kind: LineTo, Pts: [3]Point{{x1, y0}}},
			{Kind: LineTo, Pts: [3]Point{{x1, y1}}},
			{Kind: LineTo, Pts: [3]Point{{x0, y1}}},
			{Kind: Close},
		}
	}

	k := r * kappa
	return []Segment{
		{Kind: MoveTo, Pts: [3]Point{{x0 + r, y0}}},
		{Kind: LineTo, Pts: [3]Point{{x1 - r, y0}}},
		{Kind: CubicTo, Pts: [3]Point{{x1 - r + k, y0}, {x1, y0 + r - k}, {x1, y0 + r}}},
		{Kind: LineTo, Pts: [3]Point{{x1, y1 - r}}},
		{Kind: CubicTo, Pts: [3]Point{{x1, y1 - r + k}, {x1 - r + k, y1}, {x1 - r, y1}}},
		{Kind: LineTo, Pts: [3]Point{{x0 + r, y1}}},
		{Kind: CubicTo, Pts: [3]Point{{x0 + r - k, y1}, {x0, y1 - r + k}, {x0, y1 - r}}},
		{Kind: LineTo, Pts: [3]Point{{x0, y0 + r}}},
		{Kind: CubicTo, Pts: [3]Point{{x0, y0 + r - k}, {x0 + r - k, y0}, {x0 + r, y0}}},
		{Kind: Close},
	}
}

// Contains reports whether p lies inside the rounded outline.
func (rr RoundRect) Contains(p Point) bool {
	if p.X < rr.X || p.X > rr.X+rr.W || p.Y < rr.Y || p.Y > rr.Y+rr.H {
		return false
	}
	r := rr.Radius
	if r == 0 {
		return true
	}
	cx := math.Max(rr.X+r, math.Min(p.X, rr.X+rr.W-r))
	cy := math.Max(rr.Y+r, math.Min(p.Y, rr.Y+rr.H-r))
	dx, dy := p.X-cx, p.Y-cy
	return dx*dx+dy*dy <= r*r
}
