package ffmpeg

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

const screenRecordingProbe = `{
  "streams": [
    {"codec_type": "audio", "codec_name": "opus"},
    {"codec_type": "video", "codec_name": "vp8", "width": 1920, "height": 1080,
     "r_frame_rate": "60/1", "avg_frame_rate": "0/0"}
  ],
  "format": {"duration": "12.500000"}
}`

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name    string
		probe   string
		want    VideoMetadata
		wantErr error
	}{
		{
			name:  "format duration fallback",
			probe: screenRecordingProbe,
			want:  VideoMetadata{Duration: 12500 * time.Millisecond, Width: 1920, Height: 1080, Codec: "vp8", FrameRate: 60},
		},
		{
			name: "stream duration",
			probe: `{"streams":[{"codec_type":"video","codec_name":"h264","width":640,"height":360,
				"duration":"3.0","avg_frame_rate":"30000/1001"}]}`,
			want: VideoMetadata{Duration: 3 * time.Second, Width: 640, Height: 360, Codec: "h264", FrameRate: 30000.0 / 1001},
		},
		{
			name: "frame count fallback",
			probe: `{"streams":[{"codec_type":"video","codec_name":"vp9","width":10,"height":10,
				"nb_frames":"90","r_frame_rate":"30/1"}]}`,
			want: VideoMetadata{Duration: 3 * time.Second, Width: 10, Height: 10, Codec: "vp9", FrameRate: 30},
		},
		{
			name:    "audio only",
			probe:   `{"streams":[{"codec_type":"audio"}]}`,
			wantErr: ErrNoVideoStream,
		},
		{
			name:    "unknown duration",
			probe:   `{"streams":[{"codec_type":"video","width":10,"height":10}]}`,
			wantErr: ErrNoDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbe(tt.probe)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("parseProbe() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseProbe() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("parseProbe() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestParseProbe_InvalidJSON(t *testing.T) {
	if _, err := parseProbe("{"); err == nil {
		t.Error("parseProbe() error = nil")
	}
}

func TestGetCodecSettings(t *testing.T) {
	if got := GetCodecSettings("webm").VideoCodec; got != "libvpx-vp9" {
		t.Errorf("webm codec = %q", got)
	}
	if got := GetCodecSettings("gif").ContainerFormat; got != "webm" {
		t.Errorf("unknown format falls back to %q, want webm", got)
	}
	if got := GetCodecSettings("webm").FileExtension; got != ".webm" {
		t.Errorf("webm extension = %q", got)
	}
}

func TestEnsureExtension(t *testing.T) {
	tests := []struct {
		name, ext, want string
	}{
		{"demo.mp4", ".webm", "demo.webm"},
		{"demo", ".webm", "demo.webm"},
		{"demo", "webm", "demo.webm"},
		{"Take.MOV", ".webm", "Take.webm"},
		{"clip.webm", "", "clip"},
		{"notes.txt", ".webm", "notes.txt.webm"},
	}
	for _, tt := range tests {
		if got := EnsureExtension(tt.name, tt.ext); got != tt.want {
			t.Errorf("EnsureExtension(%q, %q) = %q, want %q", tt.name, tt.ext, got, tt.want)
		}
	}
}

func TestEncodeArgs(t *testing.T) {
	args := EncodeArgs(EncoderOptions{Width: 2040, Height: 1200, FPS: 60, Format: "webm"}).GetArgs()
	joined := strings.Join(args, " ")

	for _, want := range []string{"-s 2040x1200", "-framerate 60", "-c:v libvpx-vp9", "-f webm", "pipe:"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if slices.Contains(args, "-vf") {
		t.Errorf("even canvas should not be padded: %q", joined)
	}

	odd := EncodeArgs(EncoderOptions{Width: 2041, Height: 1200, FPS: 60, Format: "webm"}).GetArgs()
	if !slices.Contains(odd, "-vf") {
		t.Errorf("odd canvas not padded: %q", strings.Join(odd, " "))
	}
}

func TestDecodeArgs(t *testing.T) {
	joined := strings.Join(DecodeArgs("in.webm", 1500*time.Millisecond, 60).GetArgs(), " ")
	for _, want := range []string{"-ss 1.500", "-i in.webm", "-f rawvideo", "-pix_fmt rgba", "-r 60"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}

	if joined := strings.Join(DecodeArgs("in.webm", 0, 60).GetArgs(), " "); strings.Contains(joined, "-ss") {
		t.Errorf("seek at zero should be omitted: %q", joined)
	}
}
