package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ChunkSize is the read size of the encoder output. Each read becomes one chunk.
const ChunkSize = 256 << 10

type EncoderOptions struct {
	Width  int
	Height int
	FPS    int
	Format string
}

// EncodeArgs builds the ffmpeg invocation reading raw RGBA frames from stdin and writing
// the encoded container to stdout.
func EncodeArgs(opts EncoderOptions) *ffmpeg.Stream {
	codec := GetCodecSettings(opts.Format)

	inputKwargs := ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"framerate": opts.FPS,
	}

	outputKwargs := ffmpeg.KwArgs{
		"f":       codec.ContainerFormat,
		"c:v":     codec.VideoCodec,
		"pix_fmt": codec.PixelFormat,
		"threads": GetOptimalThreadCount(),
		"g":       opts.FPS,
		"r":       opts.FPS,
	}
	// 4:2:0 subsampling needs even dimensions.
	if opts.Width%2 != 0 || opts.Height%2 != 0 {
		outputKwargs["vf"] = "pad=ceil(iw/2)*2:ceil(ih/2)*2:0:0:black"
	}
	for k, v := range codec.EncoderArgs {
		outputKwargs[k] = v
	}

	return ffmpeg.Input("pipe:", inputKwargs).Output("pipe:", outputKwargs)
}

// Encoder is one encoding session. Frames go in through WriteFrame; encoded output is
// accumulated as chunks until Stop.
type Encoder struct {
	opts   EncoderOptions
	logger *slog.Logger

	cmd    *exec.Cmd
	in     io.WriteCloser
	stderr *bytes.Buffer

	scratch *image.RGBA

	mu      sync.Mutex
	chunks  [][]byte
	readErr error
	done    chan struct{}
	frames  int64
	stopped bool
}

// OpenEncoder starts an encoding session.
func (p *Processor) OpenEncoder(ctx context.Context, opts EncoderOptions) (*Encoder, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, errors.Errorf("invalid encoder size %dx%d", opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		return nil, errors.Errorf("invalid encoder frame rate %d", opts.FPS)
	}

	stderr := &bytes.Buffer{}
	stream := EncodeArgs(opts)
	stream.Context = ctx
	cmd := stream.WithErrorOutput(stderr).Compile()

	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open encoder input")
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open encoder output")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start encoder")
	}

	e := &Encoder{
		opts:   opts,
		logger: p.logger,
		cmd:    cmd,
		in:     in,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go e.collect(out)

	p.logger.Debug("encoder started",
		slog.Int("width", opts.Width),
		slog.Int("height", opts.Height),
		slog.Int("fps", opts.FPS),
		slog.String("codec", GetCodecSettings(opts.Format).VideoCodec),
	)
	return e, nil
}

func (e *Encoder) collect(out io.Reader) {
	defer close(e.done)
	for {
		buf := make([]byte, ChunkSize)
		n, err := out.Read(buf)
		if n > 0 {
			e.mu.Lock()
			e.chunks = append(e.chunks, buf[:n])
			e.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.mu.Lock()
				e.readErr = err
				e.mu.Unlock()
			}
			return
		}
	}
}

// WriteFrame submits one frame. Frames smaller or larger than the session size are
// drawn into a session-sized buffer first.
func (e *Encoder) WriteFrame(img image.Image) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return errors.New("encoder stopped")
	}

	pix := e.pixels(img)
	if _, err := e.in.Write(pix); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}
	e.mu.Lock()
	e.frames++
	e.mu.Unlock()
	return nil
}

func (e *Encoder) pixels(img image.Image) []byte {
	want := image.Rect(0, 0, e.opts.Width, e.opts.Height)
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect == want && rgba.Stride == e.opts.Width*4 {
		return rgba.Pix
	}
	if e.scratch == nil {
		e.scratch = image.NewRGBA(want)
	}
	draw.Draw(e.scratch, want, image.Transparent, image.Point{}, draw.Src)
	draw.Draw(e.scratch, want, img, img.Bounds().Min, draw.Src)
	return e.scratch.Pix
}

// Stop finalizes the session and returns the accumulated chunks in output order.
func (e *Encoder) Stop() ([][]byte, error) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil, errors.New("encoder already stopped")
	}
	e.stopped = true
	e.mu.Unlock()

	closeErr := e.in.Close()
	<-e.done
	waitErr := e.cmd.Wait()

	e.mu.Lock()
	chunks, readErr, frames := e.chunks, e.readErr, e.frames
	e.chunks = nil
	e.mu.Unlock()

	e.logger.Debug("encoder stopped", slog.Int64("frames", frames), slog.Int("chunks", len(chunks)))

	switch {
	case waitErr != nil:
		return chunks, errors.Wrapf(waitErr, "encoder failed: %s", e.diagnostics())
	case readErr != nil:
		return chunks, errors.Wrap(readErr, "failed to read encoder output")
	case closeErr != nil:
		return chunks, errors.Wrap(closeErr, "failed to close encoder input")
	}
	return chunks, nil
}

func (e *Encoder) diagnostics() string {
	lines := strings.Split(strings.TrimSpace(e.stderr.String()), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, "; ")
}
