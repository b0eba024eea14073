// Package style holds the presentation parameters shared by preview and export.
//
// A Config is a plain value. Updates replace the whole value through Store.Set,
// so a snapshot taken at the start of a frame stays valid for that frame.
package style

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// AspectMode is either native (no fixed ratio) or a W:H target ratio.
type AspectMode struct {
	W, H float64
}

// Native is the aspect mode that only pads around the video.
var Native = AspectMode{}

// IsNative reports whether no fixed ratio was requested.
func (a AspectMode) IsNative() bool {
	return a.W <= 0 || a.H <= 0
}

// Ratio returns W/H, or 0 for native.
func (a AspectMode) Ratio() float64 {
	if a.IsNative() {
		return 0
	}
	return a.W / a.H
}

func (a AspectMode) String() string {
	if a.IsNative() {
		return "auto"
	}
	return strconv.FormatFloat(a.W, 'f', -1, 64) + ":" + strconv.FormatFloat(a.H, 'f', -1, 64)
}

// ParseAspect accepts "auto", "native", "" or a "W:H" ratio string.
func ParseAspect(s string) (AspectMode, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "auto", "native", "none":
		return Native, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Native, fmt.Errorf("invalid aspect ratio %q (want auto or W:H)", s)
	}
	w, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Native, fmt.Errorf("invalid aspect width in %q: %v", s, err)
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Native, fmt.Errorf("invalid aspect height in %q: %v", s, err)
	}
	if w <= 0 || h <= 0 {
		return Native, fmt.Errorf("aspect ratio %q must have positive sides", s)
	}
	return AspectMode{W: w, H: h}, nil
}

// Config is the full style value consumed by the geometry resolver and the compositor.
type Config struct {
	Aspect       AspectMode
	Padding      int `validate:"gte=0,lte=4096"`
	CornerRadius int `validate:"gte=0,lte=4096"`
	// ShadowStrength in pixels; 0 disables the shadow entirely.
	ShadowStrength int `validate:"gte=0,lte=512"`
	Background     color.RGBA
}

// Default returns the style used when nothing else was configured.
func Default() Config {
	bg, _ := ParseColor("#1e1e2e")
	return Config{
		Aspect:         Native,
		Padding:        60,
		CornerRadius:   12,
		ShadowStrength: 20,
		Background:     bg,
	}
}

// Raw is the string-typed style surface as it appears in flags, config files and JSON requests.
type Raw struct {
	Aspect       string `json:"aspect" validate:"omitempty,max=32"`
	Padding      int    `json:"padding" validate:"gte=0,lte=4096"`
	CornerRadius int    `json:"corner_radius" validate:"gte=0,lte=4096"`
	Shadow       int    `json:"shadow" validate:"gte=0,lte=512"`
	Background   string `json:"background" validate:"required,max=64"`
}

var validate = validator.New()

// Validator exposes the shared validator so request structs are checked the same way.
func Validator() *validator.Validate {
	return validate
}

// Parse turns a Raw style into a validated Config.
func Parse(r Raw) (Config, error) {
	if err := validate.Struct(r); err != nil {
		return Config{}, errors.Wrap(err, "invalid style")
	}
	aspect, err := ParseAspect(r.Aspect)
	if err != nil {
		return Config{}, errors.WithStack(err)
	}
	bg, err := ParseColor(r.Background)
	if err != nil {
		return Config{}, errors.WithStack(err)
	}
	cfg := Config{
		Aspect:         aspect,
		Padding:        r.Padding,
		CornerRadius:   r.CornerRadius,
		ShadowStrength: r.Shadow,
		Background:     bg,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the numeric bounds of c and that the background is opaque.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid style")
	}
	if c.Background.A != 0xff {
		return errors.Errorf("invalid style: background %s must be opaque", FormatColor(c.Background))
	}
	return nil
}

// Raw renders c back into its string-typed form.
func (c Config) Raw() Raw {
	return Raw{
		Aspect:       c.Aspect.String(),
		Padding:      c.Padding,
		CornerRadius: c.CornerRadius,
		Shadow:       c.ShadowStrength,
		Background:   FormatColor(c.Background),
	}
}
