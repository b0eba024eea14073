// Package playback drives the preview render loop while the source video plays.
package playback

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ZacxDev/video-compositor/internal/schedule"
)

type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "idle"
}

// Media is the part of the source video the controller drives.
type Media interface {
	Play() error
	Pause()
	Paused() bool
}

// Renderer composites the current video frame onto the destination once.
type Renderer interface {
	Render() error
}

// Controller runs at most one render loop. Each refresh tick yields exactly one composite.
type Controller struct {
	video     Media
	renderer  Renderer
	refresher schedule.Refresher
	logger    *slog.Logger

	// ops serializes transitions; mu guards the fields below it.
	ops sync.Mutex

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func New(video Media, renderer Renderer, refresher schedule.Refresher, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		video:     video,
		renderer:  renderer,
		refresher: refresher,
		logger:    logger,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TogglePlay starts playback from Idle, or pauses a running loop and composites the
// frame it stopped on.
func (c *Controller) TogglePlay() error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if c.State() == Playing {
		c.stop()
		return nil
	}
	return c.start()
}

// Stop pauses playback if it is running. It is a no-op while Idle.
func (c *Controller) Stop() {
	c.ops.Lock()
	defer c.ops.Unlock()
	if c.State() == Playing {
		c.stop()
	}
}

// StyleChanged re-composites once while Idle. A running loop picks the change up on
// its next tick.
func (c *Controller) StyleChanged() {
	c.ops.Lock()
	defer c.ops.Unlock()
	if c.State() == Idle {
		c.render()
	}
}

func (c *Controller) start() error {
	// A loop that ended on its own may still be finishing its last composite.
	c.mu.Lock()
	prev := c.done
	c.mu.Unlock()
	if prev != nil {
		<-prev
	}

	if err := c.video.Play(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = Playing
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.logger.Info("playback started")
	go c.loop(ctx, gen, done)
	return nil
}

func (c *Controller) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	// Let an in-flight composite finish, then drop everything after it.
	if cancel != nil {
		cancel()
		<-done
	}
	c.video.Pause()

	c.mu.Lock()
	c.state = Idle
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	c.logger.Info("playback paused")
	c.render()
}

func (c *Controller) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	for {
		if err := c.refresher.WaitFrame(ctx); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if c.video.Paused() {
			c.ended(gen)
			return
		}
		c.render()
	}
}

// ended handles the video stopping by itself at its end.
func (c *Controller) ended(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != Playing {
		c.mu.Unlock()
		return
	}
	c.state = Idle
	c.cancel()
	c.mu.Unlock()

	c.logger.Info("playback ended")
	c.render()
}

func (c *Controller) render() {
	if err := c.renderer.Render(); err != nil {
		c.logger.Warn("composite failed", slog.String("error", err.Error()))
	}
}
