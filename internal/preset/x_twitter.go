package preset

import "github.com/ZacxDev/video-compositor/internal/style"

type XTwitter struct{}

func init() {
	Register(&XTwitter{})
}

func (p *XTwitter) GetName() string {
	return "x-twitter"
}

func (p *XTwitter) GetDescription() string {
	return "Landscape 16:9 for X posts"
}

func (p *XTwitter) GetStyle() style.Config {
	return build("16:9", 56, 18, 20, "#15202b")
}
