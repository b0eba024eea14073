package compositor

import (
	"image"
	"image/color"

	"github.com/ZacxDev/video-compositor/internal/geometry"
)

// Shadow is a drop shadow applied to subsequent path fills. The zero value disables it.
type Shadow struct {
	Blur    float64
	OffsetX float64
	OffsetY float64
	Color   color.RGBA
}

// Enabled reports whether fills cast a visible shadow.
func (s Shadow) Enabled() bool {
	return s.Color.A > 0 && (s.Blur > 0 || s.OffsetX != 0 || s.OffsetY != 0)
}

// Surface is the destination drawing model. Its shadow applies to fills only and
// never to clip boundaries, which is why the compositor casts the shadow with a
// silhouette fill before clipping.
type Surface interface {
	Size() (width, height int)

	// Fill paints the whole surface with c, ignoring shadow and clip.
	Fill(c color.RGBA)

	// Save and Restore bracket an isolated scope for shadow and clip state.
	Save()
	Restore()

	SetShadow(s Shadow)
	FillPath(p RoundRect, c color.RGBA)
	Clip(p RoundRect)

	// DrawFrame draws frame scaled into dst, honouring the current clip.
	DrawFrame(frame image.Image, dst geometry.Rect)
}
