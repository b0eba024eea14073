package media

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Duration
}

func (c *manualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t += d
	c.mu.Unlock()
}

// fakeSource emits frames whose red channel is the frame index at fps 10.
type fakeSource struct {
	start  time.Duration
	fps    int
	frames int
	n      int
	closed bool
}

func (s *fakeSource) Position() time.Duration {
	return s.start + time.Duration(s.n)*time.Second/time.Duration(s.fps)
}

func (s *fakeSource) ReadFrame(dst *image.RGBA) error {
	idx := int(s.start*time.Duration(s.fps)/time.Second) + s.n
	if idx >= s.frames {
		return io.EOF
	}
	dst.Pix[0] = uint8(idx)
	s.n++
	return nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeMedia struct {
	mu     sync.Mutex
	opened []time.Duration
}

func (m *fakeMedia) loader(meta Metadata) Loader {
	return func(ctx context.Context) (Metadata, SourceFactory, error) {
		return meta, func(ctx context.Context, start time.Duration) (FrameSource, error) {
			m.mu.Lock()
			m.opened = append(m.opened, start)
			m.mu.Unlock()
			frames := int(meta.Duration * 10 / time.Second)
			return &fakeSource{start: start, fps: 10, frames: frames}, nil
		}, nil
	}
}

func newTestPlayer(t *testing.T) (*Player, *manualClock, *fakeMedia) {
	t.Helper()
	fm := &fakeMedia{}
	p := NewPlayer(context.Background(), fm.loader(Metadata{Width: 4, Height: 2, Duration: 2 * time.Second}), nil)
	t.Cleanup(func() { _ = p.Close() })
	<-p.Ready()
	if err := p.Err(); err != nil {
		t.Fatalf("load error = %v", err)
	}
	clock := &manualClock{}
	p.SetClock(clock)
	return p, clock, fm
}

func frameIndex(t *testing.T, p *Player) int {
	t.Helper()
	img, err := p.Frame()
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if img == nil {
		t.Fatal("Frame() = nil")
	}
	return int(img.(*image.RGBA).Pix[0])
}

func TestPlayer_Metadata(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	if p.Width() != 4 || p.Height() != 2 || p.Duration() != 2*time.Second {
		t.Errorf("metadata = %dx%d %v", p.Width(), p.Height(), p.Duration())
	}
	if !p.Paused() {
		t.Error("new player is playing")
	}
}

func TestPlayer_ClockDrivesTime(t *testing.T) {
	p, clock, _ := newTestPlayer(t)

	clock.Advance(time.Second)
	if p.CurrentTime() != 0 {
		t.Errorf("paused time advanced to %v", p.CurrentTime())
	}

	if err := p.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	clock.Advance(500 * time.Millisecond)
	if p.CurrentTime() != 500*time.Millisecond {
		t.Errorf("CurrentTime() = %v, want 500ms", p.CurrentTime())
	}
	if got := frameIndex(t, p); got != 5 {
		t.Errorf("frame = %d, want 5", got)
	}

	p.Pause()
	clock.Advance(time.Second)
	if p.CurrentTime() != 500*time.Millisecond {
		t.Errorf("CurrentTime() after pause = %v", p.CurrentTime())
	}
}

func TestPlayer_EndsWithoutLoop(t *testing.T) {
	p, clock, _ := newTestPlayer(t)
	_ = p.Play()
	clock.Advance(1900 * time.Millisecond)
	_ = frameIndex(t, p)

	clock.Advance(time.Second)
	if p.CurrentTime() != 2*time.Second || !p.Paused() {
		t.Fatalf("time %v paused %v, want end and paused", p.CurrentTime(), p.Paused())
	}
	if got := frameIndex(t, p); got != 19 {
		t.Errorf("frame at end = %d, want last frame 19", got)
	}

	// Playing from the end restarts.
	_ = p.Play()
	if p.CurrentTime() != 0 {
		t.Errorf("Play() at end resumed at %v", p.CurrentTime())
	}
}

func TestPlayer_LoopWraps(t *testing.T) {
	p, clock, _ := newTestPlayer(t)
	p.SetLoop(true)
	_ = p.Play()

	clock.Advance(2300 * time.Millisecond)
	if p.CurrentTime() != 300*time.Millisecond {
		t.Errorf("CurrentTime() = %v, want 300ms", p.CurrentTime())
	}
	if p.Paused() {
		t.Error("looping video paused at end")
	}
}

func TestPlayer_SeekReopensSource(t *testing.T) {
	p, _, fm := newTestPlayer(t)

	if got := frameIndex(t, p); got != 0 {
		t.Fatalf("frame = %d, want 0", got)
	}

	// Forward seeks within the read-ahead window reuse the decoder.
	if err := p.SetCurrentTime(1500 * time.Millisecond); err != nil {
		t.Fatalf("SetCurrentTime() error = %v", err)
	}
	if got := frameIndex(t, p); got != 15 {
		t.Errorf("frame = %d, want 15", got)
	}

	if err := p.SetCurrentTime(100 * time.Millisecond); err != nil {
		t.Fatalf("SetCurrentTime() error = %v", err)
	}
	if got := frameIndex(t, p); got != 1 {
		t.Errorf("frame = %d, want 1", got)
	}

	_ = p.SetCurrentTime(400 * time.Millisecond)
	if got := frameIndex(t, p); got != 4 {
		t.Errorf("frame = %d, want 4", got)
	}

	want := []time.Duration{0, 100 * time.Millisecond}
	if len(fm.opened) != len(want) {
		t.Fatalf("opened sources at %v, want %v", fm.opened, want)
	}
	for i := range want {
		if fm.opened[i] != want[i] {
			t.Errorf("opened[%d] = %v, want %v", i, fm.opened[i], want[i])
		}
	}

	if err := p.SetCurrentTime(10 * time.Second); err != nil {
		t.Fatalf("SetCurrentTime() error = %v", err)
	}
	if p.CurrentTime() != 2*time.Second {
		t.Errorf("seek past end clamped to %v", p.CurrentTime())
	}
}

func TestPlayer_FastRefreshKeepsDecoder(t *testing.T) {
	p, clock, fm := newTestPlayer(t)
	if err := p.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	// 60 composites per second over a 10 fps source hold each frame for about six ticks.
	tick := time.Second / 60
	for i := 0; i < 60; i++ {
		want := int(time.Duration(i) * tick / (100 * time.Millisecond))
		if got := frameIndex(t, p); got != want {
			t.Fatalf("tick %d: frame = %d, want %d", i, got, want)
		}
		clock.Advance(tick)
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()
	if len(fm.opened) != 1 {
		t.Errorf("opened sources at %v, want one", fm.opened)
	}
}

func TestPlayer_SeekToEndShowsLastFrame(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	_ = p.SetCurrentTime(2 * time.Second)
	if got := frameIndex(t, p); got != 19 {
		t.Errorf("frame = %d, want 19", got)
	}
}

func TestPlayer_SetClockKeepsPosition(t *testing.T) {
	p, clock, _ := newTestPlayer(t)
	_ = p.Play()
	clock.Advance(700 * time.Millisecond)

	other := &manualClock{t: time.Hour}
	prev := p.SetClock(other)
	if prev != clock {
		t.Error("SetClock() did not return the previous clock")
	}
	if p.CurrentTime() != 700*time.Millisecond {
		t.Errorf("CurrentTime() = %v after clock swap", p.CurrentTime())
	}
	other.Advance(100 * time.Millisecond)
	if p.CurrentTime() != 800*time.Millisecond {
		t.Errorf("CurrentTime() = %v, want 800ms", p.CurrentTime())
	}
}

func TestPlayer_LoadFailure(t *testing.T) {
	boom := errors.New("missing recording")
	p := NewPlayer(context.Background(), func(ctx context.Context) (Metadata, SourceFactory, error) {
		return Metadata{}, nil, boom
	}, nil)
	defer p.Close()

	<-p.Ready()
	if !errors.Is(p.Err(), boom) {
		t.Fatalf("Err() = %v, want %v", p.Err(), boom)
	}
	if err := p.Play(); !errors.Is(err, boom) {
		t.Errorf("Play() error = %v", err)
	}
	if p.Width() != 0 {
		t.Errorf("Width() = %d before metadata", p.Width())
	}
}

func TestPlayer_Closed(t *testing.T) {
	p, _, _ := newTestPlayer(t)
	_ = p.Close()
	if _, err := p.Frame(); !errors.Is(err, ErrClosed) {
		t.Errorf("Frame() error = %v, want ErrClosed", err)
	}
}
