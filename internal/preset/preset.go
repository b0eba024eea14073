package preset

import (
	"fmt"
	"sort"

	"github.com/ZacxDev/video-compositor/internal/style"
)

// Preset defines a named presentation style for a target destination
type Preset interface {
	// GetName returns the preset name
	GetName() string

	// GetDescription returns a one-line summary shown by the presets command
	GetDescription() string

	// GetStyle returns the full style value the preset applies
	GetStyle() style.Config
}

var presets = make(map[string]Preset)

// Register adds a preset to the registry
func Register(p Preset) {
	presets[p.GetName()] = p
}

// Get returns a preset by name
func Get(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unsupported preset: %s", name)
	}
	return p, nil
}

// Names returns the registered preset names in sorted order
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// build fills the fields a preset does not override from the default style
func build(aspect string, padding, radius, shadow int, background string) style.Config {
	cfg := style.Default()
	if a, err := style.ParseAspect(aspect); err == nil {
		cfg.Aspect = a
	}
	if bg, err := style.ParseColor(background); err == nil {
		cfg.Background = bg
	}
	cfg.Padding = padding
	cfg.CornerRadius = radius
	cfg.ShadowStrength = shadow
	return cfg
}
