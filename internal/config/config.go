package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ImportOptions defines options for storing a recording under a logical key
type ImportOptions struct {
	InputPath string
	Key       string
	StorePath string
	Verbose   bool
}

// ExportOptions defines options for a headless export of a stored recording
type ExportOptions struct {
	Key          string
	StorePath    string
	OutputDir    string
	OutputFormat string // only "webm" is produced today
	Preset       string
	Style        StyleOptions
	FPS          int
	Verbose      bool
}

// ServeOptions defines options for an interactive preview session
type ServeOptions struct {
	Key         string
	StorePath   string
	ExportsDir  string
	Addr        string
	Preset      string
	Style       StyleOptions
	RefreshHz   int
	ExportFPS   int
	PreviewFPS  int
	JPEGQuality int
	LogLevel    string
	LogFormat   string
	Verbose     bool
}

// StyleOptions is the raw, unparsed style surface as it arrives from flags or config
type StyleOptions struct {
	Aspect       string
	Padding      int
	CornerRadius int
	Shadow       int
	Background   string
}

const (
	// Frame rates
	DefaultRefreshHz  = 60
	DefaultExportFPS  = 60
	DefaultPreviewFPS = 15

	DefaultJPEGQuality = 80
	DefaultAddr        = "127.0.0.1:8790"
	DefaultStorePath   = ".video-compositor/recordings.db"
	DefaultExportsDir  = "exports"
	DefaultFormat      = "webm"

	// Default presentation style
	DefaultAspect       = "auto"
	DefaultPadding      = 60
	DefaultCornerRadius = 12
	DefaultShadow       = 20
	DefaultBackground   = "#1e1e2e"

	// Recordings are materialised here before ffmpeg opens them
	TempDirPrefix = "video_compositor_"

	EnvPrefix = "VC"
)

// Config is the file/env backed configuration shared by all commands
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Exports ExportsConfig
	Log     LogConfig
	Display DisplayConfig
	Export  ExportConfig
	Preview PreviewConfig
	Style   StyleOptions
}

type ServerConfig struct {
	Addr string
}

type StoreConfig struct {
	Path string
}

type ExportsConfig struct {
	Dir string
}

type LogConfig struct {
	Level  string
	Format string
}

type DisplayConfig struct {
	RefreshHz int
}

type ExportConfig struct {
	FPS    int
	Format string
}

type PreviewConfig struct {
	FPS         int
	JPEGQuality int
}

// SetDefaults registers every known key on v so env overrides resolve even without a config file
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("store.path", DefaultStorePath)
	v.SetDefault("exports.dir", DefaultExportsDir)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("display.refresh_hz", DefaultRefreshHz)
	v.SetDefault("export.fps", DefaultExportFPS)
	v.SetDefault("export.format", DefaultFormat)
	v.SetDefault("preview.fps", DefaultPreviewFPS)
	v.SetDefault("preview.jpeg_quality", DefaultJPEGQuality)
	v.SetDefault("style.aspect", DefaultAspect)
	v.SetDefault("style.padding", DefaultPadding)
	v.SetDefault("style.corner_radius", DefaultCornerRadius)
	v.SetDefault("style.shadow", DefaultShadow)
	v.SetDefault("style.background", DefaultBackground)
}

// Load reads config.yaml (optional) and VC_* environment variables into a Config
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	cfg := &Config{
		Server:  ServerConfig{Addr: v.GetString("server.addr")},
		Store:   StoreConfig{Path: v.GetString("store.path")},
		Exports: ExportsConfig{Dir: v.GetString("exports.dir")},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Display: DisplayConfig{RefreshHz: v.GetInt("display.refresh_hz")},
		Export: ExportConfig{
			FPS:    v.GetInt("export.fps"),
			Format: v.GetString("export.format"),
		},
		Preview: PreviewConfig{
			FPS:         v.GetInt("preview.fps"),
			JPEGQuality: v.GetInt("preview.jpeg_quality"),
		},
		Style: StyleOptions{
			Aspect:       v.GetString("style.aspect"),
			Padding:      v.GetInt("style.padding"),
			CornerRadius: v.GetInt("style.corner_radius"),
			Shadow:       v.GetInt("style.shadow"),
			Background:   v.GetString("style.background"),
		},
	}

	if cfg.Display.RefreshHz <= 0 {
		return nil, errors.Errorf("display.refresh_hz must be positive, got %d", cfg.Display.RefreshHz)
	}
	if cfg.Export.FPS <= 0 {
		return nil, errors.Errorf("export.fps must be positive, got %d", cfg.Export.FPS)
	}

	return cfg, nil
}
