package geometry

import (
	"math"
	"testing"

	"github.com/ZacxDev/video-compositor/internal/style"
)

func withStyle(aspect string, padding int) style.Config {
	s := style.Default()
	a, err := style.ParseAspect(aspect)
	if err != nil {
		panic(err)
	}
	s.Aspect = a
	s.Padding = padding
	return s
}

func TestResolve_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		aspect string
		want   Output
	}{
		{
			name:   "auto pads only",
			aspect: "auto",
			want:   Output{CanvasWidth: 2040, CanvasHeight: 1200, VideoX: 60, VideoY: 60, VideoWidth: 1920, VideoHeight: 1080},
		},
		{
			name:   "square grows height",
			aspect: "1:1",
			want:   Output{CanvasWidth: 2040, CanvasHeight: 2040, VideoX: 60, VideoY: 480, VideoWidth: 1920, VideoHeight: 1080},
		},
		{
			name:   "ultrawide grows width",
			aspect: "21:9",
			want:   Output{CanvasWidth: 2800, CanvasHeight: 1200, VideoX: 440, VideoY: 60, VideoWidth: 1920, VideoHeight: 1080},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(1920, 1080, withStyle(tt.aspect, 60))
			if !ok {
				t.Fatal("Resolve() ok = false")
			}
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolve_NativePadding(t *testing.T) {
	sizes := [][2]int{{1920, 1080}, {1280, 720}, {333, 777}, {1, 1}}
	for _, size := range sizes {
		for _, padding := range []int{0, 1, 17, 60, 250} {
			got, ok := Resolve(size[0], size[1], withStyle("auto", padding))
			if !ok {
				t.Fatalf("Resolve(%v, %d) ok = false", size, padding)
			}
			if got.CanvasWidth != size[0]+2*padding || got.CanvasHeight != size[1]+2*padding {
				t.Errorf("Resolve(%v, %d) canvas = %dx%d", size, padding, got.CanvasWidth, got.CanvasHeight)
			}
		}
	}
}

func TestResolve_FixedRatioInvariants(t *testing.T) {
	ratios := []string{"1:1", "16:9", "9:16", "4:3", "3:4", "21:9", "4:5"}
	sizes := [][2]int{{1920, 1080}, {1080, 1920}, {1280, 1024}, {641, 359}}

	for _, r := range ratios {
		for _, size := range sizes {
			s := withStyle(r, 40)
			got, ok := Resolve(size[0], size[1], s)
			if !ok {
				t.Fatalf("Resolve(%v, %s) ok = false", size, r)
			}

			// Rounding to whole pixels bounds the ratio error by one pixel on the grown side.
			want := s.Aspect.Ratio()
			tol := want/float64(got.CanvasHeight) + 1.0/float64(got.CanvasHeight)
			if math.Abs(got.Ratio()-want) > tol {
				t.Errorf("Resolve(%v, %s) ratio = %v, want %v", size, r, got.Ratio(), want)
			}

			if got.VideoWidth != size[0] || got.VideoHeight != size[1] {
				t.Errorf("Resolve(%v, %s) video size = %dx%d", size, r, got.VideoWidth, got.VideoHeight)
			}
			if got.CanvasWidth < size[0]+80 || got.CanvasHeight < size[1]+80 {
				t.Errorf("Resolve(%v, %s) canvas %dx%d smaller than padded size", size, r, got.CanvasWidth, got.CanvasHeight)
			}
		}
	}
}

func TestResolve_Centered(t *testing.T) {
	for _, r := range []string{"auto", "1:1", "16:9", "9:16", "5:4"} {
		got, _ := Resolve(1365, 767, withStyle(r, 33))
		if got.VideoX != float64(got.CanvasWidth-got.VideoWidth)/2 {
			t.Errorf("%s: VideoX = %v, canvas %d", r, got.VideoX, got.CanvasWidth)
		}
		if got.VideoY != float64(got.CanvasHeight-got.VideoHeight)/2 {
			t.Errorf("%s: VideoY = %v, canvas %d", r, got.VideoY, got.CanvasHeight)
		}
	}
}

func TestResolve_Idempotent(t *testing.T) {
	s := withStyle("4:3", 25)
	a, _ := Resolve(1920, 1080, s)
	b, _ := Resolve(1920, 1080, s)
	if a != b {
		t.Errorf("Resolve() not idempotent: %+v vs %+v", a, b)
	}
}

func TestResolve_DefersDegenerateInput(t *testing.T) {
	cases := [][2]int{{0, 0}, {1920, 0}, {0, 1080}, {-1, 5}}
	for _, c := range cases {
		if _, ok := Resolve(c[0], c[1], style.Default()); ok {
			t.Errorf("Resolve(%d, %d) ok = true, want false", c[0], c[1])
		}
	}
}

func TestVideoRect(t *testing.T) {
	o := Output{VideoX: 60, VideoY: 480, VideoWidth: 1920, VideoHeight: 1080}
	if got := o.VideoRect(); got != (Rect{X: 60, Y: 480, W: 1920, H: 1080}) {
		t.Errorf("VideoRect() = %+v", got)
	}
}
