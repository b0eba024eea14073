package preset

import "github.com/ZacxDev/video-compositor/internal/style"

type Reddit struct{}

func init() {
	Register(&Reddit{})
}

func (p *Reddit) GetName() string {
	return "reddit"
}

func (p *Reddit) GetDescription() string {
	return "Native aspect with a light frame for Reddit posts"
}

func (p *Reddit) GetStyle() style.Config {
	return build("auto", 40, 10, 12, "#dae0e6")
}
