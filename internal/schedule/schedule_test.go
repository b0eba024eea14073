package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOffline_FixedStep(t *testing.T) {
	o := NewOffline(60)
	ctx := context.Background()

	if o.Now() != 0 {
		t.Fatalf("Now() = %v, want 0", o.Now())
	}
	for i := 0; i < 60; i++ {
		if err := o.WaitFrame(ctx); err != nil {
			t.Fatalf("WaitFrame() error = %v", err)
		}
	}
	if o.Now() != time.Second {
		t.Errorf("Now() after 60 frames = %v, want 1s", o.Now())
	}
	if o.Frame() != 60 {
		t.Errorf("Frame() = %d, want 60", o.Frame())
	}
}

func TestOffline_Seek(t *testing.T) {
	o := NewOffline(60)
	for n := int64(0); n < 200; n++ {
		o.Seek(o.at(n))
		if o.Frame() != n {
			t.Fatalf("Seek(at(%d)) frame = %d", n, o.Frame())
		}
	}
	o.Seek(-time.Second)
	if o.Frame() != 0 {
		t.Errorf("Seek(-1s) frame = %d, want 0", o.Frame())
	}
	o.Seek(time.Millisecond)
	if o.Frame() != 1 {
		t.Errorf("Seek(1ms) frame = %d, want 1", o.Frame())
	}
}

func TestOffline_CancelledContext(t *testing.T) {
	o := NewOffline(30)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.WaitFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitFrame() error = %v, want context.Canceled", err)
	}
	if o.Frame() != 0 {
		t.Errorf("cancelled wait advanced the clock")
	}
}

func TestDisplay_WaitFrame(t *testing.T) {
	d := NewDisplay(1000)
	if d.Interval() != time.Millisecond {
		t.Fatalf("Interval() = %v", d.Interval())
	}
	if err := d.WaitFrame(context.Background()); err != nil {
		t.Fatalf("WaitFrame() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewDisplay(1).WaitFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitFrame() error = %v, want context.Canceled", err)
	}
}

func TestWallClock(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewWallClock()
	c.now = func() time.Time { return now }

	c.Start()
	now = now.Add(2 * time.Second)
	if c.Now() != 2*time.Second {
		t.Errorf("Now() = %v, want 2s", c.Now())
	}

	c.Stop()
	now = now.Add(time.Second)
	if c.Now() != 2*time.Second {
		t.Errorf("stopped Now() = %v, want 2s", c.Now())
	}

	c.Set(500 * time.Millisecond)
	c.Start()
	now = now.Add(time.Second)
	if c.Now() != 1500*time.Millisecond {
		t.Errorf("Now() after Set = %v, want 1.5s", c.Now())
	}
}
