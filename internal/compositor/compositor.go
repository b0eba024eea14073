// Package compositor draws one styled output frame: background, drop shadow,
// rounded-corner clip and the video bitmap.
package compositor

import (
	"image"
	"image/color"

	"github.com/ZacxDev/video-compositor/internal/geometry"
	"github.com/ZacxDev/video-compositor/internal/style"
)

var (
	shadowColor     = color.RGBA{A: 0x80}
	silhouetteColor = color.RGBA{A: 0xff}
)

// ShadowFor maps a shadow strength in pixels onto blur and offset.
func ShadowFor(strength int) Shadow {
	if strength <= 0 {
		return Shadow{}
	}
	s := float64(strength)
	return Shadow{
		Blur:    1.5 * s,
		OffsetY: 0.5 * s,
		Color:   shadowColor,
	}
}

// CompositeFrame draws exactly one frame onto surface. frame may be nil before the first
// decoded frame is available, in which case the styled backdrop is drawn alone.
func CompositeFrame(surface Surface, frame image.Image, geo geometry.Output, s style.Config) {
	surface.Fill(s.Background)

	surface.Save()
	defer surface.Restore()

	rr := NewRoundRect(geo.VideoRect(), float64(s.CornerRadius))

	if s.ShadowStrength > 0 {
		// The silhouette casts the shadow; the video later covers the silhouette itself.
		surface.SetShadow(ShadowFor(s.ShadowStrength))
		surface.FillPath(rr, silhouetteColor)
		surface.SetShadow(Shadow{})
	}

	surface.Clip(rr)
	if frame != nil {
		surface.DrawFrame(frame, geo.VideoRect())
	}
}
