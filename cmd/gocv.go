//go:build gocv

package cmd

import (
	"github.com/andresmejia3/veil/internal/render"
	"github.com/andresmejia3/veil/internal/source"
	"github.com/sirupsen/logrus"
)

func newCaptureSource(device string, log *logrus.Entry) (source.Source, error) {
	return &source.Capture{Device: device, Logger: log}, nil
}

func newWindowSink(title string) (render.Sink, error) {
	return render.NewWindowSink(title), nil
}
