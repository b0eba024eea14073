package videocompositor

import (
	"context"
	"log/slog"
	"os"

	"github.com/ZacxDev/video-compositor/internal/config"
	"github.com/ZacxDev/video-compositor/internal/export"
	"github.com/ZacxDev/video-compositor/internal/ffmpeg"
	"github.com/ZacxDev/video-compositor/internal/geometry"
	"github.com/ZacxDev/video-compositor/internal/logging"
	"github.com/ZacxDev/video-compositor/internal/media"
	"github.com/ZacxDev/video-compositor/internal/pipeline"
	"github.com/ZacxDev/video-compositor/internal/preset"
	"github.com/ZacxDev/video-compositor/internal/schedule"
	"github.com/ZacxDev/video-compositor/internal/server"
	"github.com/ZacxDev/video-compositor/internal/store"
	"github.com/ZacxDev/video-compositor/internal/style"
	"github.com/pkg/errors"
)

// GeometryOptions defines the inputs of a standalone geometry resolution
type GeometryOptions struct {
	Width  int
	Height int
	Preset string
	Style  config.StyleOptions
}

// PresetSummary describes one registered style preset
type PresetSummary struct {
	Name        string
	Description string
	Style       style.Raw
}

// GetSupportedPresets returns the registered preset names
func GetSupportedPresets() []string {
	return preset.Names()
}

// GetPresets returns every registered preset with its style
func GetPresets() []PresetSummary {
	names := preset.Names()
	out := make([]PresetSummary, 0, len(names))
	for _, name := range names {
		p, _ := preset.Get(name)
		out = append(out, PresetSummary{
			Name:        p.GetName(),
			Description: p.GetDescription(),
			Style:       p.GetStyle().Raw(),
		})
	}
	return out
}

// ResolveStyle returns the named preset's style when presetName is set, and parses raw otherwise
func ResolveStyle(presetName string, raw config.StyleOptions) (style.Config, error) {
	if presetName != "" {
		p, err := preset.Get(presetName)
		if err != nil {
			return style.Config{}, err
		}
		return p.GetStyle(), nil
	}
	return style.Parse(style.Raw{
		Aspect:       raw.Aspect,
		Padding:      raw.Padding,
		CornerRadius: raw.CornerRadius,
		Shadow:       raw.Shadow,
		Background:   raw.Background,
	})
}

// Geometry resolves the output canvas for a source of the given size
func Geometry(opts *GeometryOptions) (geometry.Output, error) {
	cfg, err := ResolveStyle(opts.Preset, opts.Style)
	if err != nil {
		return geometry.Output{}, err
	}
	out, ok := geometry.Resolve(opts.Width, opts.Height, cfg)
	if !ok {
		return geometry.Output{}, errors.Errorf("source size %dx%d must be positive", opts.Width, opts.Height)
	}
	return out, nil
}

// Import stores the video file at opts.InputPath under opts.Key
func Import(ctx context.Context, opts *config.ImportOptions, logger *slog.Logger) (*store.Recording, error) {
	logger = logging.OrDiscard(logger)
	if opts.InputPath == "" || opts.Key == "" {
		return nil, errors.New("input path and key are required")
	}

	db, err := store.Open(opts.StorePath, logging.WithComponent(logger, "store"))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	f, err := os.Open(opts.InputPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open input video")
	}
	defer f.Close()

	return db.Put(ctx, opts.Key, store.ContentTypeFor(opts.InputPath), f)
}

// ListRecordings returns the recordings held in the store at storePath
func ListRecordings(ctx context.Context, storePath string, logger *slog.Logger) ([]store.Recording, error) {
	db, err := store.Open(storePath, logging.WithComponent(logging.OrDiscard(logger), "store"))
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.List(ctx)
}

// Export renders the stored recording opts.Key through the compositor into opts.OutputDir
func Export(ctx context.Context, opts *config.ExportOptions, logger *slog.Logger) (*export.Result, error) {
	logger = logging.OrDiscard(logger)
	cfg, err := ResolveStyle(opts.Preset, opts.Style)
	if err != nil {
		return nil, err
	}
	if opts.OutputFormat != "" && opts.OutputFormat != config.DefaultFormat {
		return nil, errors.Errorf("unsupported output format %q (only %s is produced)", opts.OutputFormat, config.DefaultFormat)
	}

	session, cleanup, err := openSession(ctx, opts.Key, opts.StorePath, cfg, exportSessionOptions(opts), logger)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return session.Export(ctx)
}

// exportSessionOptions configures a headless session. Export paces itself on its own
// offline clock; preview, if ever started, waits on a display-rate refresher.
func exportSessionOptions(opts *config.ExportOptions) pipeline.Options {
	return pipeline.Options{
		Key:       opts.Key,
		ExportDir: opts.OutputDir,
		ExportFPS: opts.FPS,
		Format:    config.DefaultFormat,
		Refresher: schedule.NewDisplay(config.DefaultRefreshHz),
	}
}

// Serve opens the recording opts.Key in an interactive session and serves it until ctx is done
func Serve(ctx context.Context, opts *config.ServeOptions, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	cfg, err := ResolveStyle(opts.Preset, opts.Style)
	if err != nil {
		return err
	}

	session, cleanup, err := openSession(ctx, opts.Key, opts.StorePath, cfg, pipeline.Options{
		Key:       opts.Key,
		ExportDir: opts.ExportsDir,
		ExportFPS: opts.ExportFPS,
		Format:    config.DefaultFormat,
		Loop:      true,
		Refresher: schedule.NewDisplay(opts.RefreshHz),
	}, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := server.New(session, server.Config{
		Addr:        opts.Addr,
		PreviewFPS:  opts.PreviewFPS,
		JPEGQuality: opts.JPEGQuality,
	}, logger)
	return srv.Run(ctx)
}

// openSession materialises the recording, opens it and waits for its metadata. An
// acquisition failure returns before any session is handed out.
func openSession(ctx context.Context, key, storePath string, cfg style.Config, opts pipeline.Options, logger *slog.Logger) (*pipeline.Session, func(), error) {
	if key == "" {
		return nil, nil, errors.New("recording key is required")
	}

	db, err := store.Open(storePath, logging.WithComponent(logger, "store"))
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	tempDir, err := os.MkdirTemp("", config.TempDirPrefix)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create temp directory")
	}

	path, err := db.Materialize(ctx, key, tempDir)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, nil, errors.Wrapf(err, "failed to load recording %s", key)
	}

	proc := ffmpeg.NewProcessor(logging.WithComponent(logger, "ffmpeg"))
	opts.OpenEncoder = pipeline.FFmpegEncoder(proc, opts.Format)
	video := media.Open(ctx, proc, path, logging.WithComponent(logger, "media"))
	session := pipeline.New(video, style.NewStore(cfg), opts, logger)

	cleanup := func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close session", slog.String("error", err.Error()))
		}
		os.RemoveAll(tempDir)
	}

	select {
	case <-session.Ready():
	case <-ctx.Done():
		cleanup()
		return nil, nil, ctx.Err()
	}
	if err := session.Err(); err != nil {
		cleanup()
		return nil, nil, errors.Wrapf(err, "failed to open recording %s", key)
	}

	logger.Info("recording opened",
		slog.String("key", key),
		slog.String("session_id", session.ID()),
		slog.Int("width", video.Width()),
		slog.Int("height", video.Height()),
		slog.Duration("duration", video.Duration()),
	)
	return session, cleanup, nil
}
