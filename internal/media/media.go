// Package media holds the source video contract the controllers drive and an
// ffmpeg-backed player implementing it.
package media

import (
	"image"
	"time"

	"github.com/ZacxDev/video-compositor/internal/schedule"
	"github.com/pkg/errors"
)

var (
	ErrNotReady = errors.New("video metadata not loaded")
	ErrClosed   = errors.New("video closed")
)

// Video is a decoded source with element-style playback control.
type Video interface {
	// Width and Height are zero until Ready is closed.
	Width() int
	Height() int
	Duration() time.Duration

	// Ready is closed once metadata is known, or loading failed; see Err.
	Ready() <-chan struct{}
	Err() error

	Play() error
	Pause()
	Paused() bool

	CurrentTime() time.Duration
	SetCurrentTime(t time.Duration) error

	Loop() bool
	SetLoop(loop bool)

	// Frame returns the bitmap at CurrentTime. The image is owned by the video and
	// stays valid until the next call.
	Frame() (image.Image, error)

	Close() error
}

// Clocked is implemented by videos whose currentTime can be driven by an external clock.
// SetClock returns the previous clock.
type Clocked interface {
	SetClock(c schedule.Clock) schedule.Clock
}
