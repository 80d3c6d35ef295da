// Package source delivers captured frames to a callback on the capture goroutine.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/andresmejia3/veil/internal/types"
	"github.com/andresmejia3/veil/internal/utils"
	"github.com/sirupsen/logrus"
)

// Source produces frames until its input ends or ctx is cancelled.
// onFrame runs on the source's goroutine and owns the frame it is given.
type Source interface {
	Run(ctx context.Context, onFrame func(types.Frame)) error
}

// BufferPool recycles frame pixel buffers of one size.
type BufferPool struct {
	size int
	pool sync.Pool
	// outstanding counts buffers handed out and not yet returned.
	outstanding atomic.Int64
}

func NewBufferPool(size int) *BufferPool {
	p := &BufferPool{size: size}
	p.pool.New = func() interface{} { return make([]byte, size) }
	return p
}

func (p *BufferPool) Get() []byte {
	p.outstanding.Add(1)
	buf := p.pool.Get().([]byte)
	if cap(buf) < p.size {
		buf = make([]byte, p.size)
	}
	return buf[:p.size]
}

func (p *BufferPool) Put(buf []byte) {
	p.outstanding.Add(-1)
	if cap(buf) < p.size {
		return
	}
	p.pool.Put(buf[:p.size])
}

// Outstanding is the number of buffers currently checked out.
func (p *BufferPool) Outstanding() int64 { return p.outstanding.Load() }

// FFmpeg decodes any ffmpeg-readable input (file, device, stream URL) into
// packed RGBA frames.
type FFmpeg struct {
	Input string
	// Format is passed to ffmpeg as -f, e.g. v4l2 or avfoundation.
	Format string
	Width  int
	Height int
	Logger *logrus.Entry
}

// Run starts the decoder and blocks until the input ends or ctx is cancelled.
// Cancellation is not an error.
func (s *FFmpeg) Run(ctx context.Context, onFrame func(types.Frame)) error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}
	log := s.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	decoder := utils.NewFFmpegRawDecoder(ctx, s.Input, s.Format, s.Width, s.Height)
	out, err := decoder.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create decoder pipe: %w", err)
	}
	if err := decoder.Start(); err != nil {
		return fmt.Errorf("failed to start decoder: %w", err)
	}
	log.WithFields(logrus.Fields{"input": s.Input, "size": fmt.Sprintf("%dx%d", s.Width, s.Height)}).Info("Decoder started")

	pool := NewBufferPool(s.Width * s.Height * types.BytesPerPixel)
	n, readErr := ReadFrames(ctx, out, s.Width, s.Height, pool, onFrame)
	waitErr := decoder.Wait()
	log.WithField("frames", n).Info("Decoder finished")

	if ctx.Err() != nil {
		return nil
	}
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return fmt.Errorf("decoder: %w", utils.ShowError("Decoder process failed", waitErr, decoder))
	}
	return nil
}

// ReadFrames reads raw RGBA frames of width x height from r and hands each to
// onFrame. A trailing partial frame is still delivered, trimmed to the bytes
// read, so the consumer can see and drop it. It returns the number of frames
// delivered.
func ReadFrames(ctx context.Context, r io.Reader, width, height int, pool *BufferPool, onFrame func(types.Frame)) (uint64, error) {
	var seq uint64
	for {
		if ctx.Err() != nil {
			return seq, nil
		}
		buf := pool.Get()
		n, err := io.ReadFull(r, buf)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			pool.Put(buf)
			return seq, nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			seq++
			onFrame(types.NewFrame(seq, width, height, buf[:n], pool.Put))
			return seq, nil
		default:
			pool.Put(buf)
			if ctx.Err() != nil {
				return seq, nil
			}
			return seq, fmt.Errorf("reading frame %d: %w", seq+1, err)
		}
		seq++
		onFrame(types.NewFrame(seq, width, height, buf, pool.Put))
	}
}
