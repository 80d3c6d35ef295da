package types

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// BytesPerPixel is the stride of the packed RGBA frames flowing through the pipeline.
const BytesPerPixel = 4

// Frame is a single captured image in its own pixel space.
// Pix holds packed RGBA rows; a short or nil buffer marks the frame unusable.
type Frame struct {
	Seq       uint64
	Width     int
	Height    int
	Pix       []byte
	Timestamp time.Time

	release *sync.Once
	onFree  func([]byte)
}

// NewFrame wraps a pixel buffer. free (may be nil) receives the buffer back exactly once on Release.
func NewFrame(seq uint64, width, height int, pix []byte, free func([]byte)) Frame {
	return Frame{
		Seq:       seq,
		Width:     width,
		Height:    height,
		Pix:       pix,
		Timestamp: time.Now(),
		release:   &sync.Once{},
		onFree:    free,
	}
}

// Usable reports whether the frame carries a full pixel buffer for its dimensions.
func (f Frame) Usable() bool {
	if f.Width <= 0 || f.Height <= 0 {
		return false
	}
	return len(f.Pix) >= f.Width*f.Height*BytesPerPixel
}

// Release hands the pixel buffer back to its owner. Safe to call more than once.
func (f Frame) Release() {
	if f.release == nil || f.onFree == nil {
		return
	}
	f.release.Do(func() { f.onFree(f.Pix) })
}

// FaceBox is a detected face in frame pixel coordinates.
type FaceBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is a rectangle in display-surface coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) MaxX() float64 { return r.X + r.Width }
func (r Rect) MaxY() float64 { return r.Y + r.Height }

// Center returns the geometric center of r.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

func (r Rect) String() string {
	return fmt.Sprintf("(%.2f,%.2f %.2fx%.2f)", r.X, r.Y, r.Width, r.Height)
}

// FitMode describes how a source aspect ratio is placed in a destination rectangle.
type FitMode int

const (
	Stretch FitMode = iota
	AspectFit
	AspectFill
)

func (m FitMode) String() string {
	switch m {
	case Stretch:
		return "stretch"
	case AspectFit:
		return "fit"
	case AspectFill:
		return "fill"
	}
	return fmt.Sprintf("FitMode(%d)", int(m))
}

// ParseFitMode accepts stretch, fit, fill and the aspect-/resize- spellings.
func ParseFitMode(s string) (FitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stretch", "resize":
		return Stretch, nil
	case "fit", "aspect-fit", "aspectfit", "letterbox":
		return AspectFit, nil
	case "fill", "aspect-fill", "aspectfill", "crop":
		return AspectFill, nil
	}
	return Stretch, fmt.Errorf("invalid fit mode '%s'. Must be one of: stretch, fit, fill", s)
}

// Orientation selects how the frame aspect is read against the display.
// Portrait treats the buffer as a landscape sensor image shown in a portrait view.
type Orientation int

const (
	Portrait Orientation = iota
	Landscape
)

func (o Orientation) String() string {
	if o == Landscape {
		return "landscape"
	}
	return "portrait"
}

func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "portrait", "":
		return Portrait, nil
	case "landscape":
		return Landscape, nil
	}
	return Portrait, fmt.Errorf("invalid orientation '%s'. Must be 'portrait' or 'landscape'", s)
}

// ViewportGeometry is everything needed to map one frame onto the display.
type ViewportGeometry struct {
	DisplayWidth  float64
	DisplayHeight float64
	FrameWidth    float64
	FrameHeight   float64
	FitMode       FitMode
	Orientation   Orientation
}

// Accuracy trades detection speed for recall.
type Accuracy int

const (
	AccuracyLow Accuracy = iota
	AccuracyHigh
)

func (a Accuracy) String() string {
	if a == AccuracyHigh {
		return "high"
	}
	return "low"
}

func ParseAccuracy(s string) (Accuracy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return AccuracyLow, nil
	case "high", "":
		return AccuracyHigh, nil
	}
	return AccuracyHigh, fmt.Errorf("invalid accuracy '%s'. Must be 'low' or 'high'", s)
}

// DetectionRequest configures a detector.
type DetectionRequest struct {
	Accuracy   Accuracy
	MaxResults int
}
