package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ZacxDev/video-compositor/internal/config"
	"github.com/ZacxDev/video-compositor/internal/logging"
	"github.com/ZacxDev/video-compositor/pkg/videocompositor"
	"github.com/gogpu/gg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rootCmd = &cobra.Command{
		Use:   "video-compositor",
		Short: "A compositor that presents screen recordings on a styled canvas",
		Long: `video-compositor renders a screen recording onto a padded, rounded, shadowed canvas.
It can preview the result live over HTTP and export it to a new video file.

Examples:
  # Store a recording under a key
  video-compositor import -i capture.webm -k demo

  # Export it for TikTok
  video-compositor export -k demo -o ./exports --preset tiktok

  # Preview and tweak it interactively
  video-compositor serve -k demo --addr 127.0.0.1:8790`,
		SilenceUsage: true,
	}

	importCmd = &cobra.Command{
		Use:   "import",
		Short: "Store a recording under a logical key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}

			opts := &config.ImportOptions{}
			opts.InputPath, _ = cmd.Flags().GetString("input")
			opts.Key, _ = cmd.Flags().GetString("key")
			opts.StorePath = cfg.Store.Path
			opts.Verbose, _ = cmd.Flags().GetBool("verbose")

			if opts.Key == "" {
				opts.Key = strings.TrimSuffix(filepath.Base(opts.InputPath), filepath.Ext(opts.InputPath))
			}

			rec, err := videocompositor.Import(cmd.Context(), opts, logger)
			if err != nil {
				return err
			}
			fmt.Printf("Stored %s (%d bytes, %s)\n", rec.Key, rec.Size, rec.ContentType)
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}
			recs, err := videocompositor.ListRecordings(cmd.Context(), cfg.Store.Path, logger)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				fmt.Printf("%-24s %10d  %-16s %s\n", rec.Key, rec.Size, rec.ContentType, rec.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Render a stored recording through the compositor into a video file",
		Long: fmt.Sprintf(`Render the whole recording, frame by frame, onto the styled canvas and encode it.

Supported presets:
%s
Example:
  video-compositor export -k demo -o ./exports --aspect 16:9 --padding 80`,
			formatSupportedPresets()),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}

			opts := &config.ExportOptions{}
			opts.Key, _ = cmd.Flags().GetString("key")
			opts.Preset, _ = cmd.Flags().GetString("preset")
			opts.Verbose, _ = cmd.Flags().GetBool("verbose")
			opts.StorePath = cfg.Store.Path
			opts.OutputDir = cfg.Exports.Dir
			opts.OutputFormat = cfg.Export.Format
			opts.FPS = cfg.Export.FPS
			opts.Style = cfg.Style

			if opts.Key == "" {
				return fmt.Errorf("recording key is required")
			}

			res, err := videocompositor.Export(cmd.Context(), opts, logger)
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d frames to %s (%d bytes)\n", res.Frames, res.Path, res.Bytes)
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Preview a stored recording over HTTP and export it on request",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}

			opts := &config.ServeOptions{}
			opts.Key, _ = cmd.Flags().GetString("key")
			opts.Preset, _ = cmd.Flags().GetString("preset")
			opts.Verbose, _ = cmd.Flags().GetBool("verbose")
			opts.StorePath = cfg.Store.Path
			opts.ExportsDir = cfg.Exports.Dir
			opts.Addr = cfg.Server.Addr
			opts.Style = cfg.Style
			opts.RefreshHz = cfg.Display.RefreshHz
			opts.ExportFPS = cfg.Export.FPS
			opts.PreviewFPS = cfg.Preview.FPS
			opts.JPEGQuality = cfg.Preview.JPEGQuality
			opts.LogLevel = cfg.Log.Level
			opts.LogFormat = cfg.Log.Format

			if opts.Key == "" {
				return fmt.Errorf("recording key is required")
			}

			return videocompositor.Serve(cmd.Context(), opts, logger)
		},
	}

	geometryCmd = &cobra.Command{
		Use:   "geometry",
		Short: "Print the canvas layout for a source size as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load(cmd)
			if err != nil {
				return err
			}

			opts := &videocompositor.GeometryOptions{Style: cfg.Style}
			opts.Width, _ = cmd.Flags().GetInt("width")
			opts.Height, _ = cmd.Flags().GetInt("height")
			opts.Preset, _ = cmd.Flags().GetString("preset")

			out, err := videocompositor.Geometry(opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	presetsCmd = &cobra.Command{
		Use:   "presets",
		Short: "List the built-in style presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range videocompositor.GetPresets() {
				fmt.Printf("%-10s %-6s padding=%-3d radius=%-3d shadow=%-3d background=%s  %s\n",
					p.Name, p.Style.Aspect, p.Style.Padding, p.Style.CornerRadius, p.Style.Shadow, p.Style.Background, p.Description)
			}
			return nil
		},
	}
)

func formatSupportedPresets() string {
	var sb strings.Builder
	for _, name := range videocompositor.GetSupportedPresets() {
		sb.WriteString(fmt.Sprintf("- %s\n", name))
	}
	return sb.String()
}

// flagKeys maps command flags onto configuration keys.
var flagKeys = map[string]string{
	"store":         "store.path",
	"output":        "exports.dir",
	"exports":       "exports.dir",
	"addr":          "server.addr",
	"fps":           "export.fps",
	"format":        "export.format",
	"refresh-hz":    "display.refresh_hz",
	"preview-fps":   "preview.fps",
	"jpeg-quality":  "preview.jpeg_quality",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"aspect":        "style.aspect",
	"padding":       "style.padding",
	"corner-radius": "style.corner_radius",
	"shadow":        "style.shadow",
	"background":    "style.background",
}

// load resolves flags, config file and environment into a Config and builds the logger.
func load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	v := viper.New()
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, nil, err
			}
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	logger := logging.NewLogger(level, cfg.Log.Format)
	gg.SetLogger(logging.WithComponent(logger, "gg"))
	return cfg, logger, nil
}

func addStyleFlags(cmd *cobra.Command) {
	cmd.Flags().String("preset", "",
		fmt.Sprintf("Style preset, overrides the style flags (%s)", strings.Join(videocompositor.GetSupportedPresets(), ", ")))
	cmd.Flags().String("aspect", config.DefaultAspect, "Aspect ratio of the canvas (auto or W:H)")
	cmd.Flags().Int("padding", config.DefaultPadding, "Padding around the video in pixels")
	cmd.Flags().Int("corner-radius", config.DefaultCornerRadius, "Corner radius of the video in pixels")
	cmd.Flags().Int("shadow", config.DefaultShadow, "Drop shadow strength in pixels (0 disables)")
	cmd.Flags().String("background", config.DefaultBackground, "Background colour")
}

func init() {
	rootCmd.PersistentFlags().String("store", config.DefaultStorePath, "Recording store database")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json or text)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Import command flags
	importCmd.Flags().StringP("input", "i", "", "Input video file")
	importCmd.Flags().StringP("key", "k", "", "Key to store the recording under (defaults to the file name)")
	importCmd.MarkFlagRequired("input")

	// Export command flags
	exportCmd.Flags().StringP("key", "k", "", "Key of the stored recording")
	exportCmd.Flags().StringP("output", "o", config.DefaultExportsDir, "Output directory")
	exportCmd.Flags().Int("fps", config.DefaultExportFPS, "Export frame rate")
	exportCmd.Flags().String("format", config.DefaultFormat, "Output container")
	addStyleFlags(exportCmd)
	exportCmd.MarkFlagRequired("key")

	// Serve command flags
	serveCmd.Flags().StringP("key", "k", "", "Key of the stored recording")
	serveCmd.Flags().String("addr", config.DefaultAddr, "Listen address")
	serveCmd.Flags().String("exports", config.DefaultExportsDir, "Directory exports are written to")
	serveCmd.Flags().Int("fps", config.DefaultExportFPS, "Export frame rate")
	serveCmd.Flags().Int("refresh-hz", config.DefaultRefreshHz, "Preview refresh rate")
	serveCmd.Flags().Int("preview-fps", config.DefaultPreviewFPS, "Websocket preview frame rate")
	serveCmd.Flags().Int("jpeg-quality", config.DefaultJPEGQuality, "Preview JPEG quality")
	addStyleFlags(serveCmd)
	serveCmd.MarkFlagRequired("key")

	// Geometry command flags
	geometryCmd.Flags().Int("width", 1920, "Source width")
	geometryCmd.Flags().Int("height", 1080, "Source height")
	addStyleFlags(geometryCmd)

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(geometryCmd)
	rootCmd.AddCommand(presetsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
