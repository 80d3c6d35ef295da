//go:build gocv

package source

import (
	"context"
	"fmt"

	"github.com/andresmejia3/veil/internal/types"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Capture reads frames from an OpenCV capture device or file.
type Capture struct {
	// Device is a camera index ("0") or a file/stream path.
	Device string
	Logger *logrus.Entry
}

func (c *Capture) Run(ctx context.Context, onFrame func(types.Frame)) error {
	log := c.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	webcam, err := gocv.OpenVideoCapture(c.Device)
	if err != nil {
		return fmt.Errorf("error opening video capture device %s: %w", c.Device, err)
	}
	defer webcam.Close()

	img := gocv.NewMat()
	defer img.Close()
	rgba := gocv.NewMat()
	defer rgba.Close()

	var (
		pool *BufferPool
		seq  uint64
	)
	log.WithField("device", c.Device).Info("Capture started")
	for ctx.Err() == nil {
		if ok := webcam.Read(&img); !ok {
			log.WithField("frames", seq).Info("Capture ended")
			return nil
		}
		if img.Empty() {
			continue
		}
		gocv.CvtColor(img, &rgba, gocv.ColorBGRToRGBA)

		width, height := rgba.Cols(), rgba.Rows()
		size := width * height * types.BytesPerPixel
		if pool == nil || pool.size != size {
			pool = NewBufferPool(size)
		}
		buf := pool.Get()
		copy(buf, rgba.ToBytes())

		seq++
		onFrame(types.NewFrame(seq, width, height, buf, pool.Put))
	}
	return nil
}
