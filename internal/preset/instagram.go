package preset

import "github.com/ZacxDev/video-compositor/internal/style"

type Instagram struct{}

func init() {
	Register(&Instagram{})
}

func (p *Instagram) GetName() string {
	return "instagram"
}

func (p *Instagram) GetDescription() string {
	return "Portrait 4:5 feed post"
}

func (p *Instagram) GetStyle() style.Config {
	return build("4:5", 64, 20, 24, "#fafafa")
}
