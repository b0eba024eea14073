// Package pipeline wires style, geometry, the compositor and both controllers into one
// editing session over a single source video.
//
// A Session owns its video and its surface. Playback and export never drive the video
// at the same time: starting an export stops playback first, and playback requests are
// rejected until the export has handed the video back.
package pipeline

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZacxDev/video-compositor/internal/compositor"
	"github.com/ZacxDev/video-compositor/internal/config"
	"github.com/ZacxDev/video-compositor/internal/export"
	"github.com/ZacxDev/video-compositor/internal/ffmpeg"
	"github.com/ZacxDev/video-compositor/internal/geometry"
	"github.com/ZacxDev/video-compositor/internal/logging"
	"github.com/ZacxDev/video-compositor/internal/media"
	"github.com/ZacxDev/video-compositor/internal/playback"
	"github.com/ZacxDev/video-compositor/internal/schedule"
	"github.com/ZacxDev/video-compositor/internal/style"
	"github.com/ZacxDev/video-compositor/pkg/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotReady is returned until the video metadata is known and the canvas laid out.
var ErrNotReady = media.ErrNotReady

type Options struct {
	// Key is the logical name of the source recording.
	Key       string
	ExportDir string
	ExportFPS int
	Format    string
	Loop      bool

	// Refresher paces the preview loop. Defaults to a display at config.DefaultRefreshHz.
	Refresher   schedule.Refresher
	OpenEncoder export.EncoderFactory
}

// Info is a point-in-time view of a session.
type Info struct {
	ID          string             `json:"id"`
	Key         string             `json:"key"`
	State       types.SessionState `json:"state"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
	Duration    time.Duration      `json:"duration"`
	CurrentTime time.Duration      `json:"current_time"`
	Loop        bool               `json:"loop"`
	Geometry    *geometry.Output   `json:"geometry,omitempty"`
	Style       style.Raw          `json:"style"`
	Error       string             `json:"error,omitempty"`
}

type Session struct {
	id     string
	key    string
	loop   bool
	video  media.Video
	styles *style.Store
	logger *slog.Logger

	playback *playback.Controller
	exporter *export.Controller

	ready chan struct{}

	// ctl orders playback transitions, layout and export start against each other.
	ctl       sync.Mutex
	exporting atomic.Bool

	// render serializes composites and surface resizes.
	render  sync.Mutex
	surface *compositor.GGSurface

	mu      sync.Mutex
	geo     geometry.Output
	cfg     style.Config
	laidOut bool
	stale   bool
	closed  bool
	exports []export.Result

	closeOnce sync.Once
}

// New builds a session over video. The canvas is laid out once the video reports ready;
// until then every operation that needs a frame fails with ErrNotReady.
func New(video media.Video, styles *style.Store, opts Options, logger *slog.Logger) *Session {
	id := uuid.NewString()
	logger = logging.WithSessionID(logging.WithComponent(logging.OrDiscard(logger), "pipeline"), id)

	if opts.ExportFPS <= 0 {
		opts.ExportFPS = config.DefaultExportFPS
	}
	if opts.Refresher == nil {
		opts.Refresher = schedule.NewDisplay(config.DefaultRefreshHz)
	}
	if opts.OpenEncoder == nil {
		opts.OpenEncoder = FFmpegEncoder(ffmpeg.NewProcessor(logger), opts.Format)
	}
	if styles == nil {
		styles = style.NewStore(style.Default())
	}

	s := &Session{
		id:     id,
		key:    opts.Key,
		loop:   opts.Loop,
		video:  video,
		styles: styles,
		logger: logger,
		ready:  make(chan struct{}),
	}

	offline := schedule.NewOffline(opts.ExportFPS)
	s.playback = playback.New(video, s, opts.Refresher, logger.With(slog.String("controller", "playback")))
	s.exporter = export.New(video, s, opts.OpenEncoder, offline, export.Options{
		Key:       opts.Key,
		Dir:       opts.ExportDir,
		Extension: ffmpeg.GetCodecSettings(opts.Format).FileExtension,
		FPS:       opts.ExportFPS,
		Clock:     offline,
	}, logger.With(slog.String("controller", "export")))

	styles.Subscribe(s.styleChanged)
	go s.awaitReady()
	return s
}

// FFmpegEncoder opens export encoders through proc in the given container format.
func FFmpegEncoder(proc *ffmpeg.Processor, format string) export.EncoderFactory {
	return func(ctx context.Context, width, height, fps int) (export.Encoder, error) {
		enc, err := proc.OpenEncoder(ctx, ffmpeg.EncoderOptions{
			Width:  width,
			Height: height,
			FPS:    fps,
			Format: format,
		})
		if err != nil {
			return nil, err
		}
		return enc, nil
	}
}

func (s *Session) ID() string { return s.id }

// Ready is closed once the video has loaded or failed and the first layout was tried.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Err reports the acquisition error of the video, if any.
func (s *Session) Err() error { return s.video.Err() }

func (s *Session) Styles() *style.Store { return s.styles }

func (s *Session) awaitReady() {
	defer close(s.ready)
	<-s.video.Ready()
	if err := s.video.Err(); err != nil {
		s.logger.Error("video failed to load", slog.String("error", err.Error()))
		return
	}
	s.video.SetLoop(s.loop)
	s.styleChanged(s.styles.Get())
}

// styleChanged lays the canvas out for cfg and re-composites while Idle. During an
// export the change is applied once the export has finished.
func (s *Session) styleChanged(cfg style.Config) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.exporting.Load() {
		s.mu.Lock()
		s.stale = true
		s.mu.Unlock()
		return
	}
	ok, err := s.layout(cfg)
	if err != nil {
		s.logger.Warn("failed to apply style", slog.String("error", err.Error()))
		return
	}
	if !ok {
		s.logger.Debug("geometry deferred until video metadata is known")
		return
	}
	s.playback.StyleChanged()
}

func (s *Session) layout(cfg style.Config) (bool, error) {
	geo, ok := geometry.Resolve(s.video.Width(), s.video.Height(), cfg)
	if !ok {
		return false, nil
	}

	s.render.Lock()
	defer s.render.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false, media.ErrClosed
	}

	if s.surface == nil {
		surface, err := compositor.NewGGSurface(geo.CanvasWidth, geo.CanvasHeight)
		if err != nil {
			return false, err
		}
		s.surface = surface
	} else if err := s.surface.Resize(geo.CanvasWidth, geo.CanvasHeight); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.geo, s.cfg = geo, cfg
	s.laidOut, s.stale = true, false
	s.mu.Unlock()

	s.logger.Debug("geometry resolved",
		slog.Int("canvas_width", geo.CanvasWidth),
		slog.Int("canvas_height", geo.CanvasHeight),
		slog.Float64("video_x", geo.VideoX),
		slog.Float64("video_y", geo.VideoY),
	)
	return true, nil
}

func (s *Session) isLaidOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.laidOut
}

// Render composites the current video frame once. It serves the playback loop.
func (s *Session) Render() error {
	s.render.Lock()
	defer s.render.Unlock()
	return s.compositeLocked()
}

// Size and Composite serve the export loop. The returned canvas stays valid until the
// next composite.
func (s *Session) Size() (int, int) {
	s.render.Lock()
	defer s.render.Unlock()
	if s.surface == nil {
		return 0, 0
	}
	return s.surface.Size()
}

func (s *Session) Composite() (image.Image, error) {
	s.render.Lock()
	defer s.render.Unlock()
	if err := s.compositeLocked(); err != nil {
		return nil, err
	}
	return s.surface.Pixels(), nil
}

func (s *Session) compositeLocked() error {
	s.mu.Lock()
	geo, cfg, ok := s.geo, s.cfg, s.laidOut
	s.mu.Unlock()
	if !ok || s.surface == nil {
		return ErrNotReady
	}

	frame, err := s.video.Frame()
	if err != nil {
		return errors.Wrap(err, "failed to read video frame")
	}

	s.surface.Lock()
	compositor.CompositeFrame(s.surface, frame, geo, cfg)
	s.surface.Unlock()
	return nil
}

// Preview copies the last composited canvas.
func (s *Session) Preview() (*image.RGBA, error) {
	s.render.Lock()
	defer s.render.Unlock()
	if s.surface == nil {
		return nil, ErrNotReady
	}
	return s.surface.Snapshot(), nil
}

// Composites counts finished composites, so callers can tell when the canvas changed.
func (s *Session) Composites() uint64 {
	s.render.Lock()
	defer s.render.Unlock()
	if s.surface == nil {
		return 0
	}
	return s.surface.Frames()
}

// SetStyle replaces the whole style value. Subscribers, including this session, see it
// before SetStyle returns.
func (s *Session) SetStyle(cfg style.Config) error {
	return s.styles.Set(cfg)
}

// TogglePlay plays or pauses the preview and returns the resulting state.
func (s *Session) TogglePlay() (types.SessionState, error) {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.exporting.Load() {
		return types.SessionStateExporting, export.ErrInProgress
	}
	if !s.isLaidOut() {
		return s.State(), ErrNotReady
	}
	if err := s.playback.TogglePlay(); err != nil {
		return s.State(), errors.Wrap(err, "failed to start playback")
	}
	return s.State(), nil
}

// Seek moves the video to t. While Idle the frame at t is composited right away.
func (s *Session) Seek(t time.Duration) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.exporting.Load() {
		return export.ErrInProgress
	}
	if !s.isLaidOut() {
		return ErrNotReady
	}
	if err := s.video.SetCurrentTime(t); err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	if s.playback.State() == playback.Idle {
		return s.Render()
	}
	return nil
}

// Export renders the whole video into a file and blocks until it is written.
func (s *Session) Export(ctx context.Context) (*export.Result, error) {
	if err := s.beginExport(); err != nil {
		return nil, err
	}
	return s.runExport(ctx)
}

// StartExport begins an export in the background and calls done with its outcome. A
// request while one is running fails with export.ErrInProgress.
func (s *Session) StartExport(ctx context.Context, done func(*export.Result, error)) error {
	if err := s.beginExport(); err != nil {
		return err
	}
	go func() {
		res, err := s.runExport(ctx)
		if done != nil {
			done(res, err)
		}
	}()
	return nil
}

func (s *Session) beginExport() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if !s.isLaidOut() {
		return ErrNotReady
	}
	if !s.exporting.CompareAndSwap(false, true) {
		return export.ErrInProgress
	}
	s.playback.Stop()
	return nil
}

func (s *Session) runExport(ctx context.Context) (*export.Result, error) {
	res, err := s.exporter.Export(ctx)
	if err != nil {
		s.logger.Error("export failed", slog.String("error", err.Error()))
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	if res != nil {
		s.exports = append(s.exports, *res)
	}
	stale := s.stale
	s.mu.Unlock()
	s.exporting.Store(false)

	if stale {
		if _, lerr := s.layout(s.styles.Get()); lerr != nil {
			s.logger.Warn("failed to apply style", slog.String("error", lerr.Error()))
		}
	}
	// Back to Idle at 0: show that frame under the latest style.
	s.playback.StyleChanged()
	return res, err
}

// Exports lists the exports finished by this session, oldest first.
func (s *Session) Exports() []export.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]export.Result, len(s.exports))
	copy(out, s.exports)
	return out
}

func (s *Session) State() types.SessionState {
	select {
	case <-s.ready:
	default:
		return types.SessionStateLoading
	}
	switch {
	case s.video.Err() != nil:
		return types.SessionStateFailed
	case s.exporting.Load():
		return types.SessionStateExporting
	case s.playback.State() == playback.Playing:
		return types.SessionStatePlaying
	case !s.isLaidOut():
		return types.SessionStateLoading
	}
	return types.SessionStateIdle
}

func (s *Session) Info() Info {
	info := Info{
		ID:    s.id,
		Key:   s.key,
		State: s.State(),
	}

	s.mu.Lock()
	info.Style = s.styles.Get().Raw()
	if s.laidOut {
		geo := s.geo
		info.Geometry = &geo
	}
	s.mu.Unlock()

	if err := s.video.Err(); err != nil {
		info.Error = err.Error()
		return info
	}
	info.Width = s.video.Width()
	info.Height = s.video.Height()
	info.Duration = s.video.Duration()
	info.CurrentTime = s.video.CurrentTime()
	info.Loop = s.video.Loop()
	return info
}

// Close stops playback and releases the video and the surface.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.ctl.Lock()
		s.playback.Stop()
		s.ctl.Unlock()

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		err = s.video.Close()

		s.render.Lock()
		if s.surface != nil {
			if cerr := s.surface.Close(); err == nil {
				err = cerr
			}
			s.surface = nil
		}
		s.render.Unlock()
		s.logger.Info("session closed")
	})
	return err
}
