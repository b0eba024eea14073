package preset

import "github.com/ZacxDev/video-compositor/internal/style"

type YouTube struct{}

func init() {
	Register(&YouTube{})
}

func (p *YouTube) GetName() string {
	return "youtube"
}

func (p *YouTube) GetDescription() string {
	return "Landscape 16:9 for YouTube"
}

func (p *YouTube) GetStyle() style.Config {
	return build("16:9", 80, 16, 24, "#1e1e2e")
}
