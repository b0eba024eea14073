// Package export re-renders the whole source video through the compositor into an
// encoded file.
package export

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ZacxDev/video-compositor/internal/logging"
	"github.com/ZacxDev/video-compositor/internal/media"
	"github.com/ZacxDev/video-compositor/internal/schedule"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrInProgress = errors.New("export already in progress")
	ErrNoChunks   = errors.New("export produced no data")
)

// Video is the part of the source video an export takes over.
type Video interface {
	Duration() time.Duration
	Play() error
	Pause()
	Paused() bool
	CurrentTime() time.Duration
	SetCurrentTime(t time.Duration) error
	Loop() bool
	SetLoop(loop bool)
}

// FrameSink composites the current video frame and returns the destination canvas. The
// returned image is only read before the next call.
type FrameSink interface {
	Size() (width, height int)
	Composite() (image.Image, error)
}

// Encoder is one encoding session.
type Encoder interface {
	WriteFrame(img image.Image) error
	Stop() ([][]byte, error)
}

type EncoderFactory func(ctx context.Context, width, height, fps int) (Encoder, error)

// OfflineClock is a clock the export can rewind, such as schedule.Offline.
type OfflineClock interface {
	schedule.Clock
	Seek(t time.Duration)
}

type Options struct {
	// Key names the source recording in the output file name.
	Key       string
	Dir       string
	Extension string
	FPS       int

	// Clock, when set and the video is media.Clocked, drives media time during the
	// export in place of the video's own clock.
	Clock OfflineClock
}

type Result struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Bytes      int64         `json:"bytes"`
	Frames     int64         `json:"frames"`
	Chunks     int           `json:"chunks"`
	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Controller runs one export at a time.
type Controller struct {
	video     Video
	sink      FrameSink
	open      EncoderFactory
	refresher schedule.Refresher
	opts      Options
	logger    *slog.Logger

	running atomic.Bool
	now     func() time.Time
}

func New(video Video, sink FrameSink, open EncoderFactory, refresher schedule.Refresher, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	if opts.Extension == "" {
		opts.Extension = ".webm"
	}
	return &Controller{
		video:     video,
		sink:      sink,
		open:      open,
		refresher: refresher,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

func (c *Controller) Running() bool { return c.running.Load() }

// Export walks the video from 0 to its duration, compositing and encoding one frame per
// refresh. The loop flag, position and paused state of the video are restored on every
// path. A second call while one is running fails with ErrInProgress and changes nothing.
func (c *Controller) Export(ctx context.Context) (*Result, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrInProgress
	}
	defer c.running.Store(false)

	res := &Result{ID: uuid.NewString(), StartedAt: c.now()}
	logger := logging.WithExportID(c.logger, res.ID)

	// Looping is off before playback starts so no frame is read under the old flag.
	restoreLoop := c.video.Loop()
	c.video.SetLoop(false)

	var restoreClock schedule.Clock
	clocked, swap := c.video.(media.Clocked)
	swap = swap && c.opts.Clock != nil
	if swap {
		c.opts.Clock.Seek(0)
		restoreClock = clocked.SetClock(c.opts.Clock)
	}

	defer func() {
		c.video.Pause()
		if swap {
			clocked.SetClock(restoreClock)
		}
		if err := c.video.SetCurrentTime(0); err != nil {
			logger.Warn("failed to rewind after export", slog.String("error", err.Error()))
		}
		c.video.SetLoop(restoreLoop)
	}()

	if err := c.video.SetCurrentTime(0); err != nil {
		return nil, errors.Wrap(err, "failed to rewind video")
	}

	width, height := c.sink.Size()
	enc, err := c.open(ctx, width, height, c.opts.FPS)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open encoder")
	}

	logger.Info("export started",
		slog.Int("width", width),
		slog.Int("height", height),
		slog.Int("fps", c.opts.FPS),
		slog.Duration("duration", c.video.Duration()),
	)

	loopErr := c.video.Play()
	if loopErr == nil {
		res.Frames, loopErr = c.drive(ctx, enc, logger)
	}

	chunks, stopErr := enc.Stop()
	switch {
	case loopErr != nil:
		return nil, loopErr
	case stopErr != nil:
		return nil, errors.Wrap(stopErr, "failed to finalize encoding")
	}

	res.Chunks = len(chunks)
	if res.Frames == 0 || totalSize(chunks) == 0 {
		logger.Warn("export produced no data", slog.Int64("frames", res.Frames))
		return nil, ErrNoChunks
	}

	res.FinishedAt = c.now()
	res.Name = FileName(c.opts.Key, res.FinishedAt, c.opts.Extension)
	res.Path, res.Bytes, err = writeChunks(c.opts.Dir, res.Name, chunks)
	if err != nil {
		return nil, err
	}
	res.Duration = res.FinishedAt.Sub(res.StartedAt)

	logger.Info("export finished",
		slog.String("path", res.Path),
		slog.Int64("bytes", res.Bytes),
		slog.Int64("frames", res.Frames),
		slog.Duration("took", res.Duration),
	)
	return res, nil
}

// drive composites and submits frames until the video stops or reaches its end.
func (c *Controller) drive(ctx context.Context, enc Encoder, logger *slog.Logger) (int64, error) {
	duration := c.video.Duration()
	var frames int64
	for !c.video.Paused() && c.video.CurrentTime() < duration {
		if err := ctx.Err(); err != nil {
			return frames, err
		}

		img, err := c.sink.Composite()
		if err != nil {
			return frames, errors.Wrap(err, "failed to composite frame")
		}
		if err := enc.WriteFrame(img); err != nil {
			return frames, err
		}
		frames++
		if frames%int64(c.opts.FPS) == 0 {
			logger.Debug("export progress", slog.Int64("frames", frames), slog.Duration("at", c.video.CurrentTime()))
		}

		if err := c.refresher.WaitFrame(ctx); err != nil {
			return frames, err
		}
	}
	return frames, nil
}

func totalSize(chunks [][]byte) int {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	return n
}
