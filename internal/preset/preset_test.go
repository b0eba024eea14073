package preset

import (
	"reflect"
	"testing"

	"github.com/ZacxDev/video-compositor/internal/style"
)

func TestNames(t *testing.T) {
	want := []string{"instagram", "reddit", "square", "tiktok", "x-twitter", "youtube"}
	if got := Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestGet(t *testing.T) {
	tests := []struct {
		name   string
		aspect string
	}{
		{"tiktok", "9:16"},
		{"instagram", "4:5"},
		{"youtube", "16:9"},
		{"x-twitter", "16:9"},
		{"square", "1:1"},
		{"reddit", "auto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Get(tt.name)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			cfg := p.GetStyle()
			if got := cfg.Aspect.String(); got != tt.aspect {
				t.Errorf("aspect = %s, want %s", got, tt.aspect)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if cfg.Background.A != 0xff {
				t.Errorf("background %v not opaque", cfg.Background)
			}
			if p.GetDescription() == "" {
				t.Error("empty description")
			}
		})
	}
}

func TestGet_Unknown(t *testing.T) {
	if _, err := Get("myspace"); err == nil {
		t.Error("Get() error = nil")
	}
}

func TestBuild_FallsBackToDefaults(t *testing.T) {
	cfg := build("sideways", 1, 2, 3, "not a colour")
	def := style.Default()
	if cfg.Aspect != def.Aspect || cfg.Background != def.Background {
		t.Errorf("build() = %+v", cfg)
	}
	if cfg.Padding != 1 || cfg.CornerRadius != 2 || cfg.ShadowStrength != 3 {
		t.Errorf("build() numbers = %+v", cfg)
	}
}
