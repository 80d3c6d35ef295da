//go:build gocv

package detector

import (
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"github.com/andresmejia3/veil/internal/types"
	"gocv.io/x/gocv"
)

// cascadePaths are tried when the configured cascade file does not load.
var cascadePaths = []string{
	"haarcascade_frontalface_default.xml",
	"/usr/local/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
	"/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
	"/opt/homebrew/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
}

func init() {
	Register("cascade", func(cfg Config) (Detector, error) {
		return NewCascade(cfg)
	})
}

// Cascade detects faces with an OpenCV Haar cascade.
type Cascade struct {
	mu           sync.Mutex
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      image.Point
	maxResults   int
}

func NewCascade(cfg Config) (*Cascade, error) {
	classifier := gocv.NewCascadeClassifier()

	paths := cascadePaths
	if cfg.Cascade != "" {
		paths = append([]string{cfg.Cascade}, cascadePaths...)
	}
	loaded := ""
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if classifier.Load(p) {
			loaded = p
			break
		}
	}
	if loaded == "" {
		classifier.Close()
		return nil, fmt.Errorf("failed to load face cascade from %v", paths)
	}

	c := &Cascade{
		classifier:   classifier,
		scaleFactor:  1.2,
		minNeighbors: 3,
		minSize:      image.Pt(cfg.MinFaceSize, cfg.MinFaceSize),
		maxResults:   cfg.Request.MaxResults,
	}
	if cfg.Request.Accuracy == types.AccuracyHigh {
		c.scaleFactor = 1.05
		c.minNeighbors = 5
	}
	cfg.Logger.WithField("cascade", loaded).Info("Cascade detector loaded")
	return c, nil
}

// Detect runs the cascade on a grayscale copy of the frame. Haar cascades do
// not score their hits, so larger faces are treated as more confident.
func (c *Cascade) Detect(frame types.Frame) ([]types.FaceBox, error) {
	if !frame.Usable() {
		return nil, fmt.Errorf("frame %d has no usable pixel buffer", frame.Seq)
	}
	pix := frame.Pix[:frame.Width*frame.Height*types.BytesPerPixel]
	rgba, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC4, pix)
	if err != nil {
		return nil, err
	}
	defer rgba.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(rgba, &gray, gocv.ColorRGBAToGray)
	gocv.EqualizeHist(gray, &gray)

	c.mu.Lock()
	rects := c.classifier.DetectMultiScaleWithParams(gray, c.scaleFactor, c.minNeighbors, 0, c.minSize, image.Point{})
	c.mu.Unlock()

	sort.SliceStable(rects, func(i, j int) bool {
		return rects[i].Dx()*rects[i].Dy() > rects[j].Dx()*rects[j].Dy()
	})
	boxes := make([]types.FaceBox, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, types.FaceBox{
			X: float64(r.Min.X), Y: float64(r.Min.Y),
			Width: float64(r.Dx()), Height: float64(r.Dy()),
		})
	}
	return Limit(boxes, frame.Width, frame.Height, c.maxResults), nil
}

func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.Close()
}
