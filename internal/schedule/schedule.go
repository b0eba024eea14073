// Package schedule provides the frame pacing used by playback and export: a wall-clock
// display refresher and a fixed-step offline refresher.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Clock reports media time.
type Clock interface {
	Now() time.Duration
}

// Refresher yields once per display refresh.
type Refresher interface {
	// WaitFrame blocks until the next refresh or until ctx is done.
	WaitFrame(ctx context.Context) error
}

// Display paces frames against the wall clock at a fixed refresh rate.
type Display struct {
	interval time.Duration
}

// NewDisplay creates a refresher ticking hz times per second.
func NewDisplay(hz int) *Display {
	if hz <= 0 {
		hz = 60
	}
	return &Display{interval: time.Second / time.Duration(hz)}
}

func (d *Display) Interval() time.Duration { return d.interval }

func (d *Display) WaitFrame(ctx context.Context) error {
	t := time.NewTimer(d.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WallClock measures media time from a start offset while running.
type WallClock struct {
	mu      sync.Mutex
	base    time.Duration
	started time.Time
	running bool
	now     func() time.Time
}

func NewWallClock() *WallClock {
	return &WallClock{now: time.Now}
}

func (c *WallClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return c.base
	}
	return c.base + c.now().Sub(c.started)
}

// Start resumes advancing from the current position.
func (c *WallClock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.started = c.now()
	c.running = true
}

// Stop freezes the clock at its current position.
func (c *WallClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.base += c.now().Sub(c.started)
	c.running = false
}

// Set jumps to t without changing the running state.
func (c *WallClock) Set(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = t
	c.started = c.now()
}

// Offline is both the Clock and the Refresher of a faster-than-real-time render: every
// WaitFrame advances media time by exactly one frame, so the n-th frame is stamped n/fps.
type Offline struct {
	mu  sync.Mutex
	fps int
	n   int64
}

func NewOffline(fps int) *Offline {
	if fps <= 0 {
		fps = 60
	}
	return &Offline{fps: fps}
}

func (o *Offline) FPS() int { return o.fps }

func (o *Offline) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.at(o.n)
}

// Frame returns the index of the current frame.
func (o *Offline) Frame() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}

func (o *Offline) WaitFrame(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	o.n++
	o.mu.Unlock()
	return nil
}

// Seek moves to the frame at or after t.
func (o *Offline) Seek(t time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t <= 0 {
		o.n = 0
		return
	}
	o.n = (int64(t)*int64(o.fps) + int64(time.Second) - 1) / int64(time.Second)
}

func (o *Offline) at(n int64) time.Duration {
	return time.Duration(n * int64(time.Second) / int64(o.fps))
}
