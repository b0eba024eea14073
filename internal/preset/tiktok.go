package preset

import "github.com/ZacxDev/video-compositor/internal/style"

type TikTok struct{}

func init() {
	Register(&TikTok{})
}

func (p *TikTok) GetName() string {
	return "tiktok"
}

func (p *TikTok) GetDescription() string {
	return "Vertical 9:16 for TikTok and Reels"
}

func (p *TikTok) GetStyle() style.Config {
	return build("9:16", 48, 24, 28, "#101014")
}
