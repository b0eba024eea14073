package style

import (
	"fmt"
	"image/color"
	"regexp"
	"strconv"
	"strings"

	"github.com/gogpu/gg"
	"golang.org/x/image/colornames"
)

var (
	hexColor  = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	funcColor = regexp.MustCompile(`^rgba?\(([^)]*)\)$`)
)

// ParseColor understands hex (#rgb, #rgba, #rrggbb, #rrggbbaa), rgb()/rgba() and CSS colour names.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return color.RGBA{}, fmt.Errorf("empty colour")
	}

	lower := strings.ToLower(s)
	if lower == "transparent" {
		return color.RGBA{}, nil
	}
	if c, ok := colornames.Map[lower]; ok {
		return c, nil
	}

	if hexColor.MatchString(s) {
		return toRGBA(gg.Hex(s)), nil
	}

	if m := funcColor.FindStringSubmatch(lower); m != nil {
		return parseFuncColor(s, m[1])
	}

	return color.RGBA{}, fmt.Errorf("unrecognised colour %q", s)
}

func parseFuncColor(orig, args string) (color.RGBA, error) {
	parts := strings.Split(args, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return color.RGBA{}, fmt.Errorf("colour %q needs 3 or 4 components", orig)
	}

	var ch [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil || v < 0 || v > 255 {
			return color.RGBA{}, fmt.Errorf("colour %q has invalid channel %q", orig, parts[i])
		}
		ch[i] = v / 255
	}

	alpha := 1.0
	if len(parts) == 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || a < 0 || a > 1 {
			return color.RGBA{}, fmt.Errorf("colour %q has invalid alpha %q", orig, parts[3])
		}
		alpha = a
	}

	return toRGBA(gg.RGBA2(ch[0], ch[1], ch[2], alpha)), nil
}

// toRGBA converts a straight-alpha gg colour to premultiplied color.RGBA.
func toRGBA(c gg.RGBA) color.RGBA {
	return color.RGBAModel.Convert(c.Color()).(color.RGBA)
}

// FormatColor renders c as #rrggbb, or #rrggbbaa when not opaque.
func FormatColor(c color.RGBA) string {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", n.R, n.G, n.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", n.R, n.G, n.B, n.A)
}
