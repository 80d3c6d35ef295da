package render

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/andresmejia3/veil/internal/utils"
)

// ErrSizeMismatch is returned by sinks fixed to one frame size when handed another.
var ErrSizeMismatch = errors.New("render: canvas size does not match sink")

// Sink consumes composited canvases.
type Sink interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

// FixedSizeSink is a sink that only accepts canvases of one size. The
// compositor scales its canvas to fit when the display size changes.
type FixedSizeSink interface {
	Sink
	Size() (width, height int)
}

// FFmpegSink encodes canvases to a file or stream through an ffmpeg child.
type FFmpegSink struct {
	Cmd    *utils.SafeCommand
	stdin  io.WriteCloser
	width  int
	height int
}

// NewFFmpegSink starts an encoder for width x height canvases at fps. The
// encoder keeps running until Close, which lets ffmpeg finish the file.
func NewFFmpegSink(output string, fps float64, width, height int) (*FFmpegSink, error) {
	if fps <= 0 {
		fps = 30
	}
	enc := utils.NewFFmpegEncoder(output, fps, width, height)
	stdin, err := enc.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	if err := enc.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}
	return &FFmpegSink{Cmd: enc, stdin: stdin, width: width, height: height}, nil
}

// newPipeSink wraps an already open writer. Used by tests.
func newPipeSink(w io.WriteCloser, width, height int) *FFmpegSink {
	return &FFmpegSink{stdin: w, width: width, height: height}
}

// Size is the frame size the encoder was started with.
func (s *FFmpegSink) Size() (int, int) { return s.width, s.height }

func (s *FFmpegSink) WriteFrame(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != s.width || b.Dy() != s.height {
		return fmt.Errorf("%w: got %dx%d, encoder expects %dx%d", ErrSizeMismatch, b.Dx(), b.Dy(), s.width, s.height)
	}
	if img.Stride == s.width*4 {
		_, err := s.stdin.Write(img.Pix[:s.width*s.height*4])
		return err
	}
	for y := 0; y < s.height; y++ {
		off := y * img.Stride
		if _, err := s.stdin.Write(img.Pix[off : off+s.width*4]); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the encoder and waits for it to exit.
func (s *FFmpegSink) Close() error {
	s.stdin.Close()
	if s.Cmd == nil {
		return nil
	}
	if err := s.Cmd.Wait(); err != nil {
		return fmt.Errorf("encoder: %w", utils.ShowError("Encoder process failed", err, s.Cmd))
	}
	return nil
}
