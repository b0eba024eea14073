// Package geometry resolves the output canvas and the video placement for a style.
package geometry

import (
	"math"

	"github.com/ZacxDev/video-compositor/internal/style"
	"golang.org/x/exp/constraints"
)

// Output is the derived canvas layout. VideoWidth and VideoHeight always equal the
// source dimensions: only the canvas grows, the video is never cropped or scaled.
type Output struct {
	CanvasWidth  int     `json:"canvas_width"`
	CanvasHeight int     `json:"canvas_height"`
	VideoX       float64 `json:"video_x"`
	VideoY       float64 `json:"video_y"`
	VideoWidth   int     `json:"video_width"`
	VideoHeight  int     `json:"video_height"`
}

// Rect is a float rectangle in canvas coordinates.
type Rect struct {
	X, Y, W, H float64
}

// VideoRect returns the placement rectangle of the video.
func (o Output) VideoRect() Rect {
	return Rect{X: o.VideoX, Y: o.VideoY, W: float64(o.VideoWidth), H: float64(o.VideoHeight)}
}

// Ratio returns CanvasWidth / CanvasHeight.
func (o Output) Ratio() float64 {
	if o.CanvasHeight == 0 {
		return 0
	}
	return float64(o.CanvasWidth) / float64(o.CanvasHeight)
}

// Resolve computes the canvas for a source of the given size. ok is false while the
// source dimensions are not yet known (zero or negative); callers retry once metadata arrives.
func Resolve(sourceWidth, sourceHeight int, s style.Config) (out Output, ok bool) {
	if sourceWidth <= 0 || sourceHeight <= 0 {
		return Output{}, false
	}

	padding := clamp(s.Padding, 0, math.MaxInt32)
	paddedW := float64(sourceWidth + 2*padding)
	paddedH := float64(sourceHeight + 2*padding)

	finalW, finalH := paddedW, paddedH
	if !s.Aspect.IsNative() {
		r := s.Aspect.Ratio()
		if paddedW/paddedH > r {
			finalH = paddedW / r
		} else {
			finalW = paddedH * r
		}
	}

	// Never round below the padded size, the video must always fit.
	canvasW := int(math.Max(math.Round(finalW), paddedW))
	canvasH := int(math.Max(math.Round(finalH), paddedH))

	return Output{
		CanvasWidth:  canvasW,
		CanvasHeight: canvasH,
		VideoX:       float64(canvasW-sourceWidth) / 2,
		VideoY:       float64(canvasH-sourceHeight) / 2,
		VideoWidth:   sourceWidth,
		VideoHeight:  sourceHeight,
	}, true
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
