package preset

import "github.com/ZacxDev/video-compositor/internal/style"

type Square struct{}

func init() {
	Register(&Square{})
}

func (p *Square) GetName() string {
	return "square"
}

func (p *Square) GetDescription() string {
	return "Square 1:1"
}

func (p *Square) GetStyle() style.Config {
	return build("1:1", 60, 16, 20, "slategray")
}
