package detector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/andresmejia3/veil/internal/types"
	"github.com/andresmejia3/veil/internal/utils"
)

const (
	statusOK    = 0
	statusError = 1

	// maxResponse guards against a corrupt length header allocating gigabytes.
	maxResponse = 16 * 1024 * 1024
)

func init() {
	Register("python", func(cfg Config) (Detector, error) {
		return NewWorker(cfg)
	})
}

// Worker runs face detection in a child process.
//
// Protocol, all integers big endian:
//
//	request:  [len uint32] [width uint32] [height uint32] [RGBA pixels]
//	response: [len uint32] [status byte] ...
//	  status 0: [count uint32] count x [x y w h int32]
//	  status 1: [msgLen uint32] [msg]
//
// Requests go over stdin; responses come back on FD 3 so the child's stdout
// and stderr stay free for logging.
type Worker struct {
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	mu         sync.Mutex
	maxResults int
}

// NewWorker starts the worker program named by cfg.Script.
func NewWorker(cfg Config) (*Worker, error) {
	if cfg.Script == "" {
		return nil, errors.New("no worker script configured")
	}
	if _, err := os.Stat(cfg.Script); err != nil {
		return nil, fmt.Errorf("worker script: %w", err)
	}

	py := utils.NewSafeCommand("python3", "-u", cfg.Script,
		"--accuracy", cfg.Request.Accuracy.String(),
		"--max-results", strconv.Itoa(cfg.Request.MaxResults),
		"--min-size", strconv.Itoa(cfg.MinFaceSize),
	)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// The write end shows up as FD 3 in the child.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker failed to start: %w", err)
	}
	// Only the child should hold the write end.
	w.Close()

	cfg.Logger.WithField("script", cfg.Script).Info("Detector worker started")
	return &Worker{
		Cmd:        py,
		Stdin:      stdin,
		DataPipe:   r,
		maxResults: cfg.Request.MaxResults,
	}, nil
}

// Detect sends one frame and waits for the child's answer.
func (w *Worker) Detect(frame types.Frame) ([]types.FaceBox, error) {
	if !frame.Usable() {
		return nil, fmt.Errorf("frame %d has no usable pixel buffer", frame.Seq)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	resp, err := w.communicate(frame)
	if err != nil {
		return nil, err
	}
	boxes, err := parseResponse(resp)
	if err != nil {
		return nil, err
	}
	return Limit(boxes, frame.Width, frame.Height, w.maxResults), nil
}

func (w *Worker) communicate(frame types.Frame) ([]byte, error) {
	pix := frame.Pix[:frame.Width*frame.Height*types.BytesPerPixel]

	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[0:4], uint32(8+len(pix)))
	binary.BigEndian.PutUint32(header[4:8], uint32(frame.Width))
	binary.BigEndian.PutUint32(header[8:12], uint32(frame.Height))
	if _, err := w.Stdin.Write(header); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(pix); err != nil {
		return nil, err
	}

	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, lenBuf); err != nil {
		return nil, err // the child died; its stderr is in Cmd.Stderr
	}
	n := binary.BigEndian.Uint32(lenBuf)
	if n > maxResponse {
		return nil, fmt.Errorf("worker response too large: %d bytes", n)
	}
	body := make([]byte, n)
	_, err := io.ReadFull(w.DataPipe, body)
	return body, err
}

func parseResponse(resp []byte) ([]types.FaceBox, error) {
	r := bytes.NewReader(resp)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker response")
	}

	if status == statusError {
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(r, msg); err != nil {
			return nil, fmt.Errorf("malformed worker error: %w", err)
		}
		return nil, fmt.Errorf("worker error: %s", msg)
	}
	if status != statusOK {
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("malformed worker response: %w", err)
	}
	if int64(count)*16 > int64(r.Len()) {
		return nil, fmt.Errorf("worker reported %d faces but sent %d bytes", count, r.Len())
	}
	boxes := make([]types.FaceBox, 0, count)
	for i := uint32(0); i < count; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("malformed face %d: %w", i, err)
		}
		boxes = append(boxes, types.FaceBox{
			X: float64(box[0]), Y: float64(box[1]),
			Width: float64(box[2]), Height: float64(box[3]),
		})
	}
	return boxes, nil
}

// Close shuts the child down and waits for it.
func (w *Worker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
