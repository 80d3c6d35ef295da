//go:build gocv

package render

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// WindowSink shows canvases in an OpenCV preview window.
type WindowSink struct {
	window *gocv.Window
	bgr    gocv.Mat
}

func NewWindowSink(title string) *WindowSink {
	return &WindowSink{window: gocv.NewWindow(title), bgr: gocv.NewMat()}
}

func (s *WindowSink) WriteFrame(img *image.RGBA) error {
	if s.window.GetWindowProperty(gocv.WindowPropertyVisible) < 1 {
		return fmt.Errorf("preview window closed")
	}
	mat, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return err
	}
	defer mat.Close()
	gocv.CvtColor(mat, &s.bgr, gocv.ColorRGBAToBGR)
	s.window.IMShow(s.bgr)
	s.window.WaitKey(1)
	return nil
}

func (s *WindowSink) Close() error {
	s.bgr.Close()
	return s.window.Close()
}
