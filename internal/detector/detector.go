// Package detector provides face detectors that turn a frame into face boxes.
package detector

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/andresmejia3/veil/internal/types"
	"github.com/sirupsen/logrus"
)

// ErrUnavailable means the requested detector cannot be built in this binary
// or on this machine.
var ErrUnavailable = errors.New("detector unavailable")

// Detector returns face boxes in frame pixel coordinates, most confident first.
type Detector interface {
	Detect(frame types.Frame) ([]types.FaceBox, error)
	Close() error
}

// Config is what a factory needs to build a detector.
type Config struct {
	Request types.DetectionRequest
	// Script is the worker program for the "python" backend.
	Script string
	// Cascade is the Haar cascade XML for the "cascade" backend.
	Cascade string
	// MinFaceSize is the smallest face edge, in frame pixels, worth reporting.
	MinFaceSize int
	Logger      *logrus.Entry
}

// Factory builds a detector from config.
type Factory func(cfg Config) (Detector, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available to New. Registering a name twice panics.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("detector: Register called twice for " + name)
	}
	registry[name] = f
}

// Backends lists the registered backend names, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named detector. Unknown names and factory failures both wrap ErrUnavailable.
func New(name string, cfg Config) (Detector, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q (available: %v)", ErrUnavailable, name, Backends())
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	d, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
	}
	return d, nil
}

// Limit clips boxes to the frame, drops empty ones and keeps at most max (max <= 0 keeps all).
func Limit(boxes []types.FaceBox, frameWidth, frameHeight, max int) []types.FaceBox {
	out := boxes[:0]
	fw, fh := float64(frameWidth), float64(frameHeight)
	for _, b := range boxes {
		x0, y0 := clamp(b.X, 0, fw), clamp(b.Y, 0, fh)
		x1, y1 := clamp(b.X+b.Width, 0, fw), clamp(b.Y+b.Height, 0, fh)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		out = append(out, types.FaceBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0})
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
