package ffmpeg

import (
	"encoding/json"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

var (
	ErrNoVideoStream = errors.New("no video stream found")
	ErrNoDuration    = errors.New("could not determine video duration")
)

type CodecSettings struct {
	VideoCodec      string
	ContainerFormat string
	FileExtension   string
	PixelFormat     string
	EncoderArgs     ffmpeg.KwArgs
}

// Presets keyed by container. Output is muxed to a pipe.
var codecPresets = map[string]CodecSettings{
	"webm": {
		VideoCodec:      "libvpx-vp9",
		ContainerFormat: "webm",
		FileExtension:   ".webm",
		PixelFormat:     "yuv420p",
		EncoderArgs: ffmpeg.KwArgs{
			"deadline":     "realtime",
			"cpu-used":     8,
			"row-mt":       1,
			"tile-columns": 2,
			"crf":          32,
			"b:v":          0,
		},
	},
}

func GetCodecSettings(outputFormat string) CodecSettings {
	if settings, ok := codecPresets[outputFormat]; ok {
		return settings
	}
	// Default to WebM if format not specified or invalid
	return codecPresets["webm"]
}

// VideoMetadata contains metadata about a video file
type VideoMetadata struct {
	Duration  time.Duration
	Width     int
	Height    int
	Codec     string
	FrameRate float64
}

// Processor wraps FFmpeg functionality
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a new FFmpeg processor
func NewProcessor(logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{logger: logger}
}

// GetVideoMetadata retrieves metadata about a video file
func (p *Processor) GetVideoMetadata(inputPath string) (*VideoMetadata, error) {
	probe, err := ffmpeg.Probe(inputPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error probing video %s", inputPath)
	}

	meta, err := parseProbe(probe)
	if err != nil {
		return nil, errors.Wrapf(err, "error probing video %s", inputPath)
	}

	p.logger.Debug("probed video",
		slog.String("path", inputPath),
		slog.Int("width", meta.Width),
		slog.Int("height", meta.Height),
		slog.Duration("duration", meta.Duration),
		slog.Float64("fps", meta.FrameRate),
		slog.String("codec", meta.Codec),
	)
	return meta, nil
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Duration     string `json:"duration"`
	NbFrames     string `json:"nb_frames"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

func parseProbe(probe string) (*VideoMetadata, error) {
	var data probeOutput
	if err := json.Unmarshal([]byte(probe), &data); err != nil {
		return nil, errors.WithStack(err)
	}

	var video *probeStream
	for i := range data.Streams {
		if data.Streams[i].CodecType == "video" {
			video = &data.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, ErrNoVideoStream
	}

	frameRate := parseFrameRate(video.AvgFrameRate)
	if frameRate == 0 {
		frameRate = parseFrameRate(video.RFrameRate)
	}

	// Stream duration first, then container, then frame count. Screen recordings
	// written by a live muxer often carry neither of the first two.
	seconds := parseSeconds(video.Duration)
	if seconds == 0 {
		seconds = parseSeconds(data.Format.Duration)
	}
	if seconds == 0 && frameRate > 0 {
		if frames, err := strconv.ParseFloat(video.NbFrames, 64); err == nil {
			seconds = frames / frameRate
		}
	}
	if seconds == 0 {
		return nil, ErrNoDuration
	}

	return &VideoMetadata{
		Duration:  time.Duration(seconds * float64(time.Second)),
		Width:     video.Width,
		Height:    video.Height,
		Codec:     video.CodecName,
		FrameRate: frameRate,
	}, nil
}

func parseSeconds(s string) float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(d) || d < 0 {
		return 0
	}
	return d
}

func parseFrameRate(s string) float64 {
	nums := strings.Split(s, "/")
	if len(nums) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(nums[0], 64)
	den, err2 := strconv.ParseFloat(nums[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

func GetOptimalThreadCount() int {
	cpuCount := runtime.NumCPU()
	// Use 75% of available cores to prevent overload
	return int(math.Max(1, float64(cpuCount)*0.75))
}

// videoExtensions are stripped from names before a container extension is applied.
var videoExtensions = []string{".mp4", ".m4v", ".webm", ".mkv", ".avi", ".mov"}

// EnsureExtension replaces any video extension on filename with extension. An empty
// extension only strips; a missing leading dot is added.
func EnsureExtension(filename, extension string) string {
	lower := strings.ToLower(filename)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			filename = filename[:len(filename)-len(ext)]
			break
		}
	}
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	return filename + extension
}
