// Package pipeline drives frames from a source through detection, viewport
// mapping and overlay reconciliation.
//
// Two goroutines are involved. The capture goroutine calls OnFrame and runs
// the detector. The display loop owns the overlay set and the viewport
// settings. Each processed frame crosses from one to the other as a single
// fire-and-forget task.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/veil/internal/display"
	"github.com/andresmejia3/veil/internal/overlay"
	"github.com/andresmejia3/veil/internal/types"
	"github.com/andresmejia3/veil/internal/viewport"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrNotIdle is returned by Start when the driver has already been started or stopped.
var ErrNotIdle = errors.New("pipeline: driver is not idle")

// State is the driver lifecycle.
type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Detector finds faces in a frame. An error drops that frame.
type Detector interface {
	Detect(frame types.Frame) ([]types.FaceBox, error)
}

// Presenter receives each reconciled frame on the display loop. The frame's
// pixels are only valid for the duration of the call.
type Presenter interface {
	Present(frame types.Frame, geom types.ViewportGeometry, overlays []overlay.Element)
}

// Resizer is implemented by surfaces that need to know the display size.
type Resizer interface {
	Resize(width, height int)
}

// Options configure a Driver. The viewport settings are the initial state;
// the setters change them afterwards.
type Options struct {
	Policy        display.Policy
	BlurEnabled   bool
	Outline       bool
	FitMode       types.FitMode
	Orientation   types.Orientation
	DisplayWidth  int
	DisplayHeight int

	Presenter Presenter
	Logger    *logrus.Entry
	// DropLogEvery bounds how often dropped frames are logged.
	DropLogEvery time.Duration
}

// Stats are cumulative counters. They may be read from any goroutine.
type Stats struct {
	Received   uint64 // frames handed to OnFrame while running
	Dropped    uint64 // unusable frames and detector failures
	Faces      uint64 // boxes returned by the detector
	Reconciled uint64 // reconcile passes applied to the surface
	Coalesced  uint64 // frame updates replaced under the latest policy
	Stale      uint64 // frame updates that arrived after Stop
	Pending    int    // display tasks waiting to run
}

// Driver is the Idle → Running → Stopped state machine.
type Driver struct {
	detector   Detector
	loop       *display.Loop
	reconciler *overlay.Reconciler
	surface    overlay.Surface
	presenter  Presenter
	log        *logrus.Entry
	dropLog    *rate.Limiter

	state    atomic.Int32
	stopOnce sync.Once
	done     chan struct{}

	received   atomic.Uint64
	dropped    atomic.Uint64
	faces      atomic.Uint64
	reconciled atomic.Uint64
	stale      atomic.Uint64

	// Display loop only.
	blurEnabled   bool
	fitMode       types.FitMode
	orientation   types.Orientation
	displayWidth  int
	displayHeight int
}

// New builds an idle driver. surface is where overlays are drawn.
func New(det Detector, surface overlay.Surface, opts Options) *Driver {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	every := opts.DropLogEvery
	if every <= 0 {
		every = time.Second
	}

	d := &Driver{
		detector:      det,
		loop:          display.NewLoop(opts.Policy),
		reconciler:    overlay.NewReconciler(surface, opts.Outline),
		surface:       surface,
		presenter:     opts.Presenter,
		log:           log.WithField("component", "pipeline"),
		dropLog:       rate.NewLimiter(rate.Every(every), 1),
		done:          make(chan struct{}),
		blurEnabled:   opts.BlurEnabled,
		fitMode:       opts.FitMode,
		orientation:   opts.Orientation,
		displayWidth:  opts.DisplayWidth,
		displayHeight: opts.DisplayHeight,
	}
	if r, ok := surface.(Resizer); ok {
		r.Resize(opts.DisplayWidth, opts.DisplayHeight)
	}
	return d
}

func (d *Driver) State() State { return State(d.state.Load()) }

// Start moves Idle → Running and launches the display loop.
func (d *Driver) Start() error {
	if !d.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrNotIdle
	}
	// Read loop-owned settings before the loop can start mutating them.
	fields := logrus.Fields{
		"policy":  d.loop.Policy(),
		"blur":    d.blurEnabled,
		"fit":     d.fitMode,
		"display": fmt.Sprintf("%dx%d", d.displayWidth, d.displayHeight),
	}
	go func() {
		d.loop.Run()
		close(d.done)
	}()
	d.log.WithFields(fields).Info("Pipeline started")
	return nil
}

// Stop moves the driver to Stopped from any goroutine. Frames already queued
// become no-ops, then a final teardown removes every overlay. Done is closed
// once that teardown has run. Stop is idempotent.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		prev := State(d.state.Swap(int32(Stopped)))
		if prev == Idle {
			d.loop.Close()
			close(d.done)
			return
		}
		d.loop.Post(func() {
			d.reconciler.Teardown()
			d.log.WithField("stats", fmt.Sprintf("%+v", d.Stats())).Info("Pipeline stopped")
		})
		d.loop.Close()
	})
}

// Done is closed once the driver has stopped and the display loop has drained.
func (d *Driver) Done() <-chan struct{} { return d.done }

func (d *Driver) running() bool { return d.State() == Running }

// OnFrame runs detection for one frame on the caller's goroutine and hands
// the result to the display loop. It never waits for the display loop.
func (d *Driver) OnFrame(frame types.Frame) {
	if !d.running() {
		frame.Release()
		return
	}
	d.received.Add(1)

	if !frame.Usable() {
		d.drop(frame, "unusable pixel buffer", nil)
		return
	}

	faces, err := d.detector.Detect(frame)
	if err != nil {
		d.drop(frame, "detector failed", err)
		return
	}
	d.faces.Add(uint64(len(faces)))

	width, height := frame.Width, frame.Height
	if d.presenter == nil {
		// Nothing downstream needs the pixels.
		frame.Release()
	}

	d.loop.PostFrame(
		func() { d.apply(frame, width, height, faces) },
		frame.Release,
	)
}

func (d *Driver) drop(frame types.Frame, reason string, err error) {
	d.dropped.Add(1)
	frame.Release()
	if d.dropLog.Allow() {
		entry := d.log.WithFields(logrus.Fields{"seq": frame.Seq, "dropped": d.dropped.Load()})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Debugf("Frame dropped: %s", reason)
	}
}

// apply runs on the display loop.
func (d *Driver) apply(frame types.Frame, width, height int, faces []types.FaceBox) {
	defer frame.Release()
	if !d.running() {
		d.stale.Add(1)
		return
	}

	geom := d.geometry(width, height)
	d.reconciler.Reconcile(viewport.MapBoxes(faces, geom), d.blurEnabled)
	d.reconciled.Add(1)

	if d.presenter != nil && d.surface.Alive() {
		d.presenter.Present(frame, geom, d.reconciler.Active())
	}
}

func (d *Driver) geometry(frameWidth, frameHeight int) types.ViewportGeometry {
	return types.ViewportGeometry{
		DisplayWidth:  float64(d.displayWidth),
		DisplayHeight: float64(d.displayHeight),
		FrameWidth:    float64(frameWidth),
		FrameHeight:   float64(frameHeight),
		FitMode:       d.fitMode,
		Orientation:   d.orientation,
	}
}

// post queues a settings change unless the driver has stopped.
func (d *Driver) post(fn func()) {
	if d.State() == Stopped {
		return
	}
	d.loop.Post(func() {
		if d.State() == Stopped {
			return
		}
		fn()
	})
}

// SetBlurEnabled takes effect from the next processed frame.
func (d *Driver) SetBlurEnabled(on bool) {
	d.post(func() {
		d.blurEnabled = on
		d.log.WithField("blur", on).Info("Blur toggled")
	})
}

// ToggleBlur flips the blur flag on the display loop.
func (d *Driver) ToggleBlur() {
	d.post(func() {
		d.blurEnabled = !d.blurEnabled
		d.log.WithField("blur", d.blurEnabled).Info("Blur toggled")
	})
}

func (d *Driver) SetFitMode(mode types.FitMode) {
	d.post(func() {
		d.fitMode = mode
		d.log.WithField("fit", mode).Info("Fit mode changed")
	})
}

func (d *Driver) SetOrientation(o types.Orientation) {
	d.post(func() {
		d.orientation = o
		d.log.WithField("orientation", o).Info("Orientation changed")
	})
}

// SetDisplaySize records a new display size (after rotation or layout).
func (d *Driver) SetDisplaySize(width, height int) {
	d.post(func() {
		d.displayWidth, d.displayHeight = width, height
		if r, ok := d.surface.(Resizer); ok {
			r.Resize(width, height)
		}
		d.log.WithField("display", fmt.Sprintf("%dx%d", width, height)).Info("Display resized")
	})
}

// SetOutline pairs every blur patch with an outline box from the next frame on.
func (d *Driver) SetOutline(on bool) {
	d.post(func() { d.reconciler.SetOutline(on) })
}

func (d *Driver) Stats() Stats {
	return Stats{
		Received:   d.received.Load(),
		Dropped:    d.dropped.Load(),
		Faces:      d.faces.Load(),
		Reconciled: d.reconciled.Load(),
		Coalesced:  d.loop.Coalesced(),
		Stale:      d.stale.Load(),
		Pending:    d.loop.Pending(),
	}
}
