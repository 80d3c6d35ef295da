// Package control reads line commands and turns them into pipeline setters.
//
//	blur on|off|toggle
//	fit stretch|fit|fill
//	size <W>x<H>
//	orient portrait|landscape
//	outline on|off
//	stats
//	quit
package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andresmejia3/veil/internal/pipeline"
	"github.com/andresmejia3/veil/internal/types"
	"github.com/sirupsen/logrus"
)

// Target is the subset of the pipeline driver the commands drive.
type Target interface {
	SetBlurEnabled(on bool)
	ToggleBlur()
	SetFitMode(mode types.FitMode)
	SetDisplaySize(width, height int)
	SetOrientation(o types.Orientation)
	SetOutline(on bool)
	Stats() pipeline.Stats
	Stop()
}

// Action applies one parsed command. It reports whether the reader should stop.
type Action func(t Target, log *logrus.Entry) (quit bool)

// Parse turns one command line into an action. Blank lines and lines
// starting with # parse to nil.
func Parse(line string) (Action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil, nil
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	switch verb {
	case "blur":
		if err := wantArgs(verb, args, 1); err != nil {
			return nil, err
		}
		switch strings.ToLower(args[0]) {
		case "toggle":
			return func(t Target, _ *logrus.Entry) bool { t.ToggleBlur(); return false }, nil
		default:
			on, err := parseSwitch(args[0])
			if err != nil {
				return nil, err
			}
			return func(t Target, _ *logrus.Entry) bool { t.SetBlurEnabled(on); return false }, nil
		}

	case "fit":
		if err := wantArgs(verb, args, 1); err != nil {
			return nil, err
		}
		mode, err := types.ParseFitMode(args[0])
		if err != nil {
			return nil, err
		}
		return func(t Target, _ *logrus.Entry) bool { t.SetFitMode(mode); return false }, nil

	case "size":
		if err := wantArgs(verb, args, 1); err != nil {
			return nil, err
		}
		w, h, err := ParseSize(args[0])
		if err != nil {
			return nil, err
		}
		return func(t Target, _ *logrus.Entry) bool { t.SetDisplaySize(w, h); return false }, nil

	case "orient", "orientation":
		if err := wantArgs(verb, args, 1); err != nil {
			return nil, err
		}
		o, err := types.ParseOrientation(args[0])
		if err != nil {
			return nil, err
		}
		return func(t Target, _ *logrus.Entry) bool { t.SetOrientation(o); return false }, nil

	case "outline":
		if err := wantArgs(verb, args, 1); err != nil {
			return nil, err
		}
		on, err := parseSwitch(args[0])
		if err != nil {
			return nil, err
		}
		return func(t Target, _ *logrus.Entry) bool { t.SetOutline(on); return false }, nil

	case "stats":
		if err := wantArgs(verb, args, 0); err != nil {
			return nil, err
		}
		return func(t Target, log *logrus.Entry) bool {
			s := t.Stats()
			log.WithFields(logrus.Fields{
				"received":   s.Received,
				"dropped":    s.Dropped,
				"faces":      s.Faces,
				"reconciled": s.Reconciled,
				"coalesced":  s.Coalesced,
				"stale":      s.Stale,
				"pending":    s.Pending,
			}).Info("Pipeline stats")
			return false
		}, nil

	case "quit", "exit", "stop":
		return func(t Target, _ *logrus.Entry) bool { t.Stop(); return true }, nil
	}
	return nil, fmt.Errorf("unknown command %q", verb)
}

// ParseSize reads WxH, e.g. 1080x1920.
func ParseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size '%s'. Expected WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size '%s': %w", s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size '%s': %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size '%s'. Both sides must be positive", s)
	}
	return w, h, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got '%s'", s)
}

func wantArgs(verb string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s takes %d argument(s), got %d", verb, n, len(args))
	}
	return nil
}

// Run applies commands read from r until quit, end of input or ctx is
// cancelled. Bad lines are logged and skipped.
func Run(ctx context.Context, r io.Reader, t Target, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "control")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			action, err := Parse(line)
			if err != nil {
				log.WithError(err).WithField("line", line).Warn("Ignoring command")
				continue
			}
			if action == nil {
				continue
			}
			if action(t, log) {
				return nil
			}
		}
	}
}
