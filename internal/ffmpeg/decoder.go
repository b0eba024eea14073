package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Decoder streams raw RGBA frames of a video from an ffmpeg child process.
type Decoder struct {
	width, height int
	fps           float64
	start         time.Duration

	cmd    *exec.Cmd
	out    io.ReadCloser
	reader *bufio.Reader
	stderr *bytes.Buffer

	mu     sync.Mutex
	frames int64
	closed bool
}

// DecodeArgs builds the ffmpeg invocation decoding inputPath from start at fps.
func DecodeArgs(inputPath string, start time.Duration, fps float64) *ffmpeg.Stream {
	inputKwargs := ffmpeg.KwArgs{}
	if start > 0 {
		inputKwargs["ss"] = fmt.Sprintf("%.3f", start.Seconds())
	}
	outputKwargs := ffmpeg.KwArgs{
		"f":       "rawvideo",
		"pix_fmt": "rgba",
		"map":     "0:v:0",
	}
	if fps > 0 {
		outputKwargs["r"] = fmt.Sprintf("%g", fps)
	}
	return ffmpeg.Input(inputPath, inputKwargs).Output("pipe:", outputKwargs)
}

// OpenDecoder starts decoding inputPath at start. Frames are resampled to meta.FrameRate
// so frame n of the stream sits at start + n/fps.
func (p *Processor) OpenDecoder(ctx context.Context, inputPath string, meta *VideoMetadata, start time.Duration) (*Decoder, error) {
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, errors.Errorf("invalid video size %dx%d", meta.Width, meta.Height)
	}
	fps := meta.FrameRate
	if fps <= 0 {
		fps = 30
	}

	stderr := &bytes.Buffer{}
	stream := DecodeArgs(inputPath, start, fps)
	stream.Context = ctx
	cmd := stream.WithErrorOutput(stderr).Compile()

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open decoder output")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start decoder")
	}

	p.logger.Debug("decoder started",
		slog.String("path", inputPath),
		slog.Duration("start", start),
		slog.Float64("fps", fps),
	)

	return &Decoder{
		width:  meta.Width,
		height: meta.Height,
		fps:    fps,
		start:  start,
		cmd:    cmd,
		out:    out,
		reader: bufio.NewReaderSize(out, meta.Width*meta.Height*4),
		stderr: stderr,
	}, nil
}

// Position is the media time of the next frame ReadFrame will return.
func (d *Decoder) Position() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.start + time.Duration(float64(d.frames)/d.fps*float64(time.Second))
}

// ReadFrame fills dst with the next frame. It returns io.EOF after the last frame.
func (d *Decoder) ReadFrame(dst *image.RGBA) error {
	if dst.Bounds().Dx() != d.width || dst.Bounds().Dy() != d.height || dst.Stride != d.width*4 {
		return errors.Errorf("frame buffer %v does not match %dx%d", dst.Bounds(), d.width, d.height)
	}
	if _, err := io.ReadFull(d.reader, dst.Pix[:d.width*d.height*4]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	d.mu.Lock()
	d.frames++
	d.mu.Unlock()
	return nil
}

// Close stops the child process.
func (d *Decoder) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	_ = d.out.Close()
	if d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	// A killed decoder always exits non-zero.
	_ = d.cmd.Wait()
	return nil
}
