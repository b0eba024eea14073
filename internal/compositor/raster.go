package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/ZacxDev/video-compositor/internal/geometry"
	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"
)

// GGSurface is a software Surface backed by a gogpu/gg context.
//
// gg rasterises the anti-aliased outlines. The software renderer fills solid colours
// only and does not enforce its clip stack, so clipped frame draws and shadows are
// composited here through coverage masks derived from the same outlines.
type GGSurface struct {
	mu sync.Mutex

	dc        *gg.Context
	offscreen *gg.Context

	state surfaceState
	stack []surfaceState

	coverage map[RoundRect]*image.Alpha
	shadows  map[shadowKey]*shadowLayer
	scaled   *image.RGBA

	frames uint64
}

type surfaceState struct {
	shadow Shadow
	clip   *RoundRect
}

type shadowKey struct {
	path   RoundRect
	shadow Shadow
}

type shadowLayer struct {
	mask *image.NRGBA
	at   image.Point
}

// NewGGSurface allocates a surface of the given size.
func NewGGSurface(width, height int) (*GGSurface, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid surface size %dx%d", width, height)
	}
	return &GGSurface{
		dc:       gg.NewContext(width, height),
		coverage: make(map[RoundRect]*image.Alpha),
		shadows:  make(map[shadowKey]*shadowLayer),
	}, nil
}

// Resize changes the canvas dimensions. Like a browser canvas, resizing clears the
// contents, so the caller must composite again before presenting.
func (s *GGSurface) Resize(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if width == s.dc.Width() && height == s.dc.Height() {
		return nil
	}
	if err := s.dc.Resize(width, height); err != nil {
		return errors.Wrap(err, "failed to resize surface")
	}
	s.coverage = make(map[RoundRect]*image.Alpha)
	s.shadows = make(map[shadowKey]*shadowLayer)
	s.state = surfaceState{}
	s.stack = s.stack[:0]
	return nil
}

func (s *GGSurface) Size() (int, int) {
	return s.dc.Width(), s.dc.Height()
}

// Snapshot copies the current pixels.
func (s *GGSurface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dc.ResizeTarget().ToImage()
}

// Pixels returns the canvas itself, without copying. It is invalidated by Resize and
// must only be read while no composite runs.
func (s *GGSurface) Pixels() *image.RGBA {
	return s.target()
}

// Frames counts completed Restore calls at the outermost scope, i.e. finished composites.
func (s *GGSurface) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Close releases the gg contexts.
func (s *GGSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offscreen != nil {
		_ = s.offscreen.Close()
	}
	return s.dc.Close()
}

// Lock and Unlock let a caller hold the surface for a whole composite.
func (s *GGSurface) Lock()   { s.mu.Lock() }
func (s *GGSurface) Unlock() { s.mu.Unlock() }

// target views the gg pixmap as an image.RGBA. style.Config only admits opaque
// backgrounds and every composite starts with Fill, so straight and premultiplied
// bytes coincide.
func (s *GGSurface) target() *image.RGBA {
	pm := s.dc.ResizeTarget()
	return &image.RGBA{
		Pix:    pm.Data(),
		Stride: pm.Width() * 4,
		Rect:   image.Rect(0, 0, pm.Width(), pm.Height()),
	}
}

func (s *GGSurface) Fill(c color.RGBA) {
	s.dc.ClearWithColor(gg.FromColor(c))
}

func (s *GGSurface) Save() {
	s.dc.Push()
	s.stack = append(s.stack, s.state)
}

func (s *GGSurface) Restore() {
	if len(s.stack) == 0 {
		return
	}
	s.dc.Pop()
	s.state = s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	if len(s.stack) == 0 {
		s.frames++
	}
}

func (s *GGSurface) SetShadow(sh Shadow) {
	s.state.shadow = sh
}

// FillPath fills p with c, casting the current shadow first. Fills are not clipped.
func (s *GGSurface) FillPath(p RoundRect, c color.RGBA) {
	if s.state.shadow.Enabled() {
		s.drawShadow(p, s.state.shadow)
	}
	s.dc.SetColor(c)
	trace(s.dc, p)
	_ = s.dc.Fill()
}

func (s *GGSurface) Clip(p RoundRect) {
	clip := p
	s.state.clip = &clip
}

func (s *GGSurface) DrawFrame(frame image.Image, dst geometry.Rect) {
	r := image.Rect(
		int(math.Round(dst.X)),
		int(math.Round(dst.Y)),
		int(math.Round(dst.X))+int(math.Round(dst.W)),
		int(math.Round(dst.Y))+int(math.Round(dst.H)),
	)
	if r.Empty() {
		return
	}

	src, sp := frame, frame.Bounds().Min
	if frame.Bounds().Dx() != r.Dx() || frame.Bounds().Dy() != r.Dy() {
		if s.scaled == nil || s.scaled.Bounds().Size() != r.Size() {
			s.scaled = image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		}
		xdraw.ApproxBiLinear.Scale(s.scaled, s.scaled.Bounds(), frame, frame.Bounds(), xdraw.Src, nil)
		src, sp = s.scaled, image.Point{}
	}

	dstImg := s.target()
	if s.state.clip == nil {
		draw.Draw(dstImg, r, src, sp, draw.Over)
		return
	}
	mask := s.coverageOf(*s.state.clip)
	draw.DrawMask(dstImg, r, src, sp, mask, r.Min, draw.Over)
}

// coverageOf rasterises p into an alpha mask the size of the canvas.
func (s *GGSurface) coverageOf(p RoundRect) *image.Alpha {
	if m, ok := s.coverage[p]; ok {
		return m
	}

	w, h := s.dc.Width(), s.dc.Height()
	if s.offscreen == nil {
		s.offscreen = gg.NewContext(w, h)
	} else if err := s.offscreen.Resize(w, h); err != nil {
		return image.NewAlpha(image.Rect(0, 0, w, h))
	}

	s.offscreen.ClearWithColor(gg.Transparent)
	s.offscreen.SetColor(color.White)
	trace(s.offscreen, p)
	_ = s.offscreen.Fill()

	data := s.offscreen.ResizeTarget().Data()
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	for i := range mask.Pix {
		mask.Pix[i] = data[i*4+3]
	}

	if len(s.coverage) > 8 {
		s.coverage = make(map[RoundRect]*image.Alpha)
	}
	s.coverage[p] = mask
	return mask
}

func (s *GGSurface) drawShadow(p RoundRect, sh Shadow) {
	key := shadowKey{path: p, shadow: sh}
	layer, ok := s.shadows[key]
	if !ok {
		layer = s.renderShadow(p, sh)
		if len(s.shadows) > 8 {
			s.shadows = make(map[shadowKey]*shadowLayer)
		}
		s.shadows[key] = layer
	}
	if layer == nil {
		return
	}

	dst := s.target()
	r := layer.mask.Bounds().Sub(layer.mask.Bounds().Min).Add(layer.at)
	draw.DrawMask(dst, r, image.NewUniform(sh.Color), image.Point{}, layer.mask, layer.mask.Bounds().Min, draw.Over)
}

// renderShadow blurs the silhouette of p around its bounding box. A canvas shadowBlur of
// b corresponds to a Gaussian with sigma b/2.
func (s *GGSurface) renderShadow(p RoundRect, sh Shadow) *shadowLayer {
	sigma := sh.Blur / 2
	pad := int(math.Ceil(3*sigma)) + 1

	w, h := s.dc.Width(), s.dc.Height()
	canvas := image.Rect(0, 0, w, h)
	region := image.Rect(
		int(math.Floor(p.X))-pad,
		int(math.Floor(p.Y))-pad,
		int(math.Ceil(p.X+p.W))+pad,
		int(math.Ceil(p.Y+p.H))+pad,
	).Intersect(canvas)
	if region.Empty() {
		return nil
	}

	silhouette := s.coverageOf(p).SubImage(region)
	blurred := imaging.Blur(silhouette, sigma)

	offset := image.Pt(int(math.Round(sh.OffsetX)), int(math.Round(sh.OffsetY)))
	return &shadowLayer{mask: blurred, at: region.Min.Add(offset)}
}

func trace(dc *gg.Context, p RoundRect) {
	for _, seg := range p.Segments() {
		switch seg.Kind {
		case MoveTo:
			dc.MoveTo(seg.Pts[0].X, seg.Pts[0].Y)
		case LineTo:
			dc.LineTo(seg.Pts[0].X, seg.Pts[0].Y)
		case CubicTo:
			dc.CubicTo(seg.Pts[0].X, seg.Pts[0].Y, seg.Pts[1].X, seg.Pts[1].Y, seg.Pts[2].X, seg.Pts[2].Y)
		case Close:
			dc.ClosePath()
		}
	}
}
