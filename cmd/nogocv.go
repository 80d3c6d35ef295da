//go:build !gocv

package cmd

import (
	"errors"

	"github.com/andresmejia3/veil/internal/render"
	"github.com/andresmejia3/veil/internal/source"
	"github.com/sirupsen/logrus"
)

var errNoGocv = errors.New("this build has no OpenCV support; rebuild with -tags gocv")

func newCaptureSource(string, *logrus.Entry) (source.Source, error) {
	return nil, errNoGocv
}

func newWindowSink(string) (render.Sink, error) {
	return nil, errNoGocv
}
