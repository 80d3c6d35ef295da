package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/veil/internal/config"
	"github.com/andresmejia3/veil/internal/control"
	"github.com/andresmejia3/veil/internal/detector"
	"github.com/andresmejia3/veil/internal/display"
	"github.com/andresmejia3/veil/internal/overlay"
	"github.com/andresmejia3/veil/internal/pipeline"
	"github.com/andresmejia3/veil/internal/render"
	"github.com/andresmejia3/veil/internal/source"
	"github.com/andresmejia3/veil/internal/types"
	"github.com/andresmejia3/veil/internal/utils"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// errStopped ends the live errgroup once the driver has shut down.
var errStopped = errors.New("pipeline stopped")

var liveNoControl bool

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Blur faces in a live video stream",
	Long: `Run the detection pipeline against a camera, file or stream.

While running, commands are read from stdin:
  blur on|off|toggle   fit stretch|fit|fill   size WxH
  orient portrait|landscape   outline on|off   stats   quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runLive(cmd.Context(), Cfg)
	},
}

func init() {
	f := liveCmd.Flags()
	f.StringP("input", "i", "", "Input: video file, stream URL, device path, or camera index for --source gocv")
	f.StringP("format", "f", "", "ffmpeg input format, e.g. v4l2, avfoundation, lavfi")
	f.String("source", "ffmpeg", "Frame source: ffmpeg or gocv")
	f.Int("frame-width", 0, "Decoded frame width (0 = probe)")
	f.Int("frame-height", 0, "Decoded frame height (0 = probe)")
	f.Float64("fps", 0, "Output frame rate (0 = probe, falling back to 30)")

	f.StringP("detector", "d", "python", "Face detector backend")
	f.String("script", "python/detect.py", "Worker program for the python detector")
	f.String("cascade", "", "Haar cascade XML for the cascade detector")
	f.String("accuracy", "high", "Detector accuracy: low or high")
	f.Int("max-faces", 10, "Maximum faces per frame (0 = unlimited)")
	f.Int("min-face", 30, "Smallest face edge in frame pixels")

	f.Int("display-width", 1080, "Display width in pixels")
	f.Int("display-height", 1920, "Display height in pixels")
	f.String("fit", "fill", "Fit mode: stretch, fit, fill")
	f.String("orient", "portrait", "Frame orientation: portrait or landscape")

	f.Bool("blur", true, "Start with blur enabled")
	f.String("style", "blur", "Blur style: blur, pixel, black")
	f.IntP("strength", "s", 15, "Blur radius or pixel block size")
	f.Bool("outline", false, "Draw an outline around each blurred face")
	f.String("policy", "queue", "Display update policy: queue or latest")
	f.StringP("output", "o", "", "Output: file or stream URL, 'window', or empty for headless")
	f.BoolVar(&liveNoControl, "no-control", false, "Do not read commands from stdin")

	rootCmd.AddCommand(liveCmd)
}

func runLive(ctx context.Context, cfg *config.Config) error {
	session := uuid.NewString()
	log := logrus.WithField("session", session)

	if cfg.Source.Input == "" {
		err := fmt.Errorf("%w: no input given (use --input or VEIL_SOURCE_INPUT)", config.ErrInvalid)
		return utils.ShowError("Configuration Error", err, nil)
	}
	policy, err := display.ParsePolicy(cfg.Pipeline.Policy)
	if err != nil {
		return utils.ShowError("Configuration Error", err, nil)
	}
	style, err := render.ParseStyle(cfg.Blur.Style)
	if err != nil {
		return utils.ShowError("Configuration Error", err, nil)
	}

	src, fps, err := newSource(ctx, cfg, log)
	if err != nil {
		return utils.ShowError("Failed to open input", err, nil)
	}

	det, err := detector.New(cfg.Detector.Backend, detector.Config{
		Request:     cfg.Detector.Request(),
		Script:      cfg.Detector.Script,
		Cascade:     cfg.Detector.Cascade,
		MinFaceSize: cfg.Detector.MinFaceSize,
		Logger:      log.WithField("component", "detector"),
	})
	if err != nil {
		return utils.ShowError("Detector startup failed", err, nil)
	}
	defer det.Close()

	var (
		surface   overlay.Surface
		presenter pipeline.Presenter
		comp      *render.Compositor
	)
	if cfg.Output.Target == "" {
		surface = overlay.NewMemorySurface()
	} else {
		sink, err := newSink(cfg.Output.Target, fps, cfg.Display.Width, cfg.Display.Height)
		if err != nil {
			return utils.ShowError("Failed to open output", err, nil)
		}
		comp = render.NewCompositor(sink, render.Options{
			Style:        style,
			Strength:     cfg.Blur.Strength,
			OutlineColor: render.DefaultOptions().OutlineColor,
			OutlineWidth: render.DefaultOptions().OutlineWidth,
			Logger:       log,
		})
		surface, presenter = comp, comp
	}

	drv := pipeline.New(det, surface, pipeline.Options{
		Policy:        policy,
		BlurEnabled:   cfg.Blur.Enabled,
		Outline:       cfg.Blur.Outline,
		FitMode:       cfg.Display.FitMode(),
		Orientation:   cfg.Display.Orient(),
		DisplayWidth:  cfg.Display.Width,
		DisplayHeight: cfg.Display.Height,
		Presenter:     presenter,
		Logger:        log,
	})
	if err := drv.Start(); err != nil {
		return err
	}

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription("Blurring"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
	)
	onFrame := func(f types.Frame) {
		drv.OnFrame(f)
		bar.Add(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer drv.Stop()
		return src.Run(gctx, onFrame)
	})
	g.Go(func() error {
		select {
		case <-drv.Done():
			return errStopped
		case <-gctx.Done():
			return nil
		}
	})
	if !liveNoControl {
		go func() {
			if err := control.Run(gctx, os.Stdin, drv, log); err != nil {
				log.WithError(err).Warn("Control input failed")
			}
		}()
	}

	runErr := g.Wait()
	drv.Stop()
	<-drv.Done()
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	if comp != nil {
		if err := comp.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}

	s := drv.Stats()
	log.WithFields(logrus.Fields{
		"received":   s.Received,
		"dropped":    s.Dropped,
		"faces":      s.Faces,
		"reconciled": s.Reconciled,
		"coalesced":  s.Coalesced,
	}).Info("Session finished")

	if errors.Is(runErr, errStopped) {
		return nil
	}
	if runErr != nil && !utils.Reported(runErr) {
		return utils.ShowError("Pipeline failed", runErr, nil)
	}
	return runErr
}

// newSource builds the configured frame source and reports the input frame rate.
func newSource(ctx context.Context, cfg *config.Config, log *logrus.Entry) (source.Source, float64, error) {
	fps := cfg.Source.FPS
	if cfg.Source.Kind == "gocv" {
		src, err := newCaptureSource(cfg.Source.Input, log.WithField("component", "source"))
		if fps <= 0 {
			fps = 30
		}
		return src, fps, err
	}

	width, height := cfg.Source.Width, cfg.Source.Height
	if width == 0 || height == 0 {
		w, h, probed, err := utils.ProbeVideo(ctx, cfg.Source.Input, cfg.Source.Format)
		if err != nil {
			return nil, 0, fmt.Errorf("could not determine frame size (set --frame-width/--frame-height): %w", err)
		}
		width, height = w, h
		if fps <= 0 {
			fps = probed
		}
	}
	if fps <= 0 {
		fps = 30
	}
	return &source.FFmpeg{
		Input:  cfg.Source.Input,
		Format: cfg.Source.Format,
		Width:  width,
		Height: height,
		Logger: log.WithField("component", "source"),
	}, fps, nil
}

func newSink(target string, fps float64, width, height int) (render.Sink, error) {
	if target == "window" {
		return newWindowSink("veil")
	}
	return render.NewFFmpegSink(target, fps, width, height)
}
