package media

import (
	"context"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ZacxDev/video-compositor/internal/ffmpeg"
	"github.com/ZacxDev/video-compositor/internal/schedule"
	"github.com/pkg/errors"
)

const (
	// seekAhead is how far past the decoder position a target may be before the decoder
	// is restarted at the target instead of read forward.
	seekAhead = 2 * time.Second
	seekBack  = time.Second
)

// FrameSource yields sequential frames starting at some media time.
type FrameSource interface {
	ReadFrame(dst *image.RGBA) error
	// Position is the media time of the next frame.
	Position() time.Duration
	Close() error
}

// SourceFactory opens a FrameSource positioned at start.
type SourceFactory func(ctx context.Context, start time.Duration) (FrameSource, error)

// Metadata is what a Player needs to know before it can play.
type Metadata struct {
	Width    int
	Height   int
	Duration time.Duration
}

// Loader resolves metadata and a frame source factory, typically by probing a file.
type Loader func(ctx context.Context) (Metadata, SourceFactory, error)

// Player implements Video over a FrameSource. Media time advances with its Clock while
// playing; frames are decoded lazily when asked for.
type Player struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	ready chan struct{}

	mu      sync.Mutex
	err     error
	meta    Metadata
	factory SourceFactory
	closed  bool

	clock       schedule.Clock
	paused      bool
	loop        bool
	anchorMedia time.Duration
	anchorClock time.Duration

	source    FrameSource
	front     *image.RGBA
	back      *image.RGBA
	haveFrame bool
	// shownAt is the media time of the frame in front.
	shownAt   time.Duration
}

// NewPlayer starts loading in the background and returns immediately. Ready is closed
// when load returns.
func NewPlayer(ctx context.Context, load Loader, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(ctx)

	wall := schedule.NewWallClock()
	wall.Start()

	p := &Player{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
		clock:  wall,
		paused: true,
	}

	go func() {
		defer close(p.ready)
		meta, factory, err := load(ctx)
		if err == nil && (meta.Width <= 0 || meta.Height <= 0) {
			err = errors.Errorf("invalid video size %dx%d", meta.Width, meta.Height)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if err != nil {
			p.err = err
			return
		}
		p.meta = meta
		p.factory = factory
		p.front = image.NewRGBA(image.Rect(0, 0, meta.Width, meta.Height))
		p.back = image.NewRGBA(image.Rect(0, 0, meta.Width, meta.Height))
		p.logger.Info("video loaded",
			slog.Int("width", meta.Width),
			slog.Int("height", meta.Height),
			slog.Duration("duration", meta.Duration),
		)
	}()
	return p
}

// FileLoader probes path with proc and decodes it with ffmpeg.
func FileLoader(proc *ffmpeg.Processor, path string) Loader {
	return func(ctx context.Context) (Metadata, SourceFactory, error) {
		info, err := proc.GetVideoMetadata(path)
		if err != nil {
			return Metadata{}, nil, err
		}
		factory := func(ctx context.Context, start time.Duration) (FrameSource, error) {
			return proc.OpenDecoder(ctx, path, info, start)
		}
		return Metadata{Width: info.Width, Height: info.Height, Duration: info.Duration}, factory, nil
	}
}

// Open plays the video file at path.
func Open(ctx context.Context, proc *ffmpeg.Processor, path string, logger *slog.Logger) *Player {
	return NewPlayer(ctx, FileLoader(proc, path), logger)
}

func (p *Player) Ready() <-chan struct{} { return p.ready }

func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Player) Width() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta.Width
}

func (p *Player) Height() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta.Height
}

func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta.Duration
}

func (p *Player) loaded() error {
	switch {
	case p.closed:
		return ErrClosed
	case p.err != nil:
		return p.err
	case p.factory == nil:
		return ErrNotReady
	}
	return nil
}

func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loaded(); err != nil {
		return err
	}
	if !p.paused {
		return nil
	}
	t := p.currentLocked()
	if t >= p.meta.Duration {
		t = 0
	}
	p.paused = false
	p.anchorLocked(t)
	p.logger.Debug("video playing", slog.Duration("at", t))
	return nil
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	t := p.currentLocked()
	p.paused = true
	p.anchorLocked(t)
	p.logger.Debug("video paused", slog.Duration("at", t))
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentLocked()
	return p.paused
}

func (p *Player) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentLocked()
}

func (p *Player) SetCurrentTime(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loaded(); err != nil {
		return err
	}
	p.anchorLocked(min(max(t, 0), p.meta.Duration))
	return nil
}

func (p *Player) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

func (p *Player) SetLoop(loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Settle any wrap or end under the old flag first.
	p.currentLocked()
	p.loop = loop
}

// SetClock swaps the clock driving media time, keeping the current position.
func (p *Player) SetClock(c schedule.Clock) schedule.Clock {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.currentLocked()
	prev := p.clock
	p.clock = c
	p.anchorLocked(t)
	return prev
}

func (p *Player) anchorLocked(t time.Duration) {
	p.anchorMedia = t
	p.anchorClock = p.clock.Now()
}

// currentLocked derives media time from the clock and applies end-of-media behaviour:
// a looping video wraps, any other pauses at its duration.
func (p *Player) currentLocked() time.Duration {
	if p.paused {
		return p.anchorMedia
	}
	t := p.anchorMedia + (p.clock.Now() - p.anchorClock)
	d := p.meta.Duration
	if d <= 0 || t < d {
		return t
	}
	if p.loop {
		wrapped := t % d
		p.anchorMedia = wrapped
		p.anchorClock = p.clock.Now()
		return wrapped
	}
	p.paused = true
	p.anchorMedia = d
	p.logger.Debug("video ended")
	return d
}

func (p *Player) Frame() (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.loaded(); err != nil {
		return nil, err
	}

	t := p.currentLocked()
	reopened, err := p.positionLocked(t, t)
	if err != nil {
		return nil, err
	}
	if err := p.readThroughLocked(t); err != nil {
		return nil, err
	}

	// A fresh decoder started at or past the last frame yields nothing. Back up and read
	// forward so the final frame stays visible.
	if reopened && !p.haveFrame && t > 0 {
		if _, err := p.positionLocked(t, max(t-seekBack, 0)); err != nil {
			return nil, err
		}
		if err := p.readThroughLocked(t); err != nil {
			return nil, err
		}
	}

	if !p.haveFrame {
		return nil, nil
	}
	return p.front, nil
}

func (p *Player) readThroughLocked(t time.Duration) error {
	for p.source.Position() <= t {
		at := p.source.Position()
		err := p.source.ReadFrame(p.back)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to decode frame")
		}
		p.front, p.back = p.back, p.front
		p.haveFrame = true
		p.shownAt = at
	}
	return nil
}

// positionLocked keeps the current source when t is less than seekAhead past it and not
// before the frame already shown. Otherwise it reopens the source at start.
func (p *Player) positionLocked(t, start time.Duration) (bool, error) {
	if p.source != nil && start == t {
		pos := p.source.Position()
		lo := pos
		if p.haveFrame {
			lo = p.shownAt
		}
		if t >= lo && t < pos+seekAhead {
			return false, nil
		}
	}
	if p.source != nil {
		_ = p.source.Close()
		p.source = nil
	}

	src, err := p.factory(p.ctx, start)
	if err != nil {
		return false, errors.Wrap(err, "failed to open decoder")
	}
	p.source = src
	p.haveFrame = false
	return true, nil
}

func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancel()
	if p.source != nil {
		err := p.source.Close()
		p.source = nil
		return err
	}
	return nil
}
