package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (child logs)
// so crash output survives the child dying.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand prepares (but does not start) a command with stderr captured.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	return wrap(exec.Command(name, args...))
}

// NewSafeCommandContext is NewSafeCommand bound to ctx; cancelling ctx kills the child.
func NewSafeCommandContext(ctx context.Context, name string, args ...string) *SafeCommand {
	return wrap(exec.CommandContext(ctx, name, args...))
}

func wrap(cmd *exec.Cmd) *SafeCommand {
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// errorOut is where ShowError writes its box. Tests swap it.
var errorOut io.Writer = os.Stderr

// reportedError marks an error whose box has already been printed.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// ShowError prints the unified error box and dumps captured child logs if s is given.
// It returns err marked as reported so callers up the stack do not print it again.
func ShowError(context string, err error, s *SafeCommand) error {
	fmt.Fprintf(errorOut, "\n---------------------------------------------------------\n")
	fmt.Fprintf(errorOut, "🚨 VEIL ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(errorOut, "DETAILS: %v\n", err)
	}
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(errorOut, "\nCHILD PROCESS LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(errorOut, "---------------------------------------------------------\n")

	if err == nil {
		return nil
	}
	return reportedError{err}
}

// Reported reports whether ShowError has already printed err or an error it wraps.
func Reported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// --- 2. Video Engine ---

// ffprobeOutput is the subset of ffprobe's JSON we read.
type ffprobeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// ProbeVideo asks ffprobe for the first video stream's size and frame rate.
// format is passed as -f when non-empty (e.g. v4l2 for camera devices).
func ProbeVideo(ctx context.Context, input, format string) (width, height int, fps float64, err error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0, 0, 0, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	args := []string{"-v", "error"}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args, "-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate", "-of", "json", input)

	out, err := exec.CommandContext(ctx, "ffprobe", args...).Output()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (int, int, float64, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, 0, 0, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return 0, 0, 0, fmt.Errorf("no video stream found")
	}
	s := res.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return 0, 0, 0, fmt.Errorf("invalid video dimensions %dx%d", s.Width, s.Height)
	}
	return s.Width, s.Height, ParseFrameRate(s.AvgFrameRate), nil
}

// ParseFrameRate reads ffprobe rates like "30000/1001" or "25". Unknown rates give 0.
func ParseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// captureFormats are ffmpeg input devices that accept a requested capture size.
var captureFormats = map[string]bool{"v4l2": true, "avfoundation": true, "dshow": true}

// NewFFmpegRawDecoder decodes input into packed RGBA frames of width x height on stdout.
func NewFFmpegRawDecoder(ctx context.Context, input, format string, width, height int) *SafeCommand {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if format != "" {
		args = append(args, "-f", format)
	}
	if captureFormats[format] {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", width, height))
	}
	args = append(args,
		"-i", input,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "rawvideo", "-pix_fmt", "rgba", "-",
	)
	return NewSafeCommandContext(ctx, "ffmpeg", args...)
}

// NewFFmpegEncoder reads packed RGBA frames of width x height from stdin and encodes them to output.
// The encoder is not bound to a context and runs in its own process group so
// Ctrl+C never reaches it; closing stdin is what finalizes the output.
func NewFFmpegEncoder(output string, fps float64, width, height int) *SafeCommand {
	args := []string{"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-pix_fmt", "yuv420p",
	}
	if strings.HasPrefix(output, "rtmp://") {
		args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-tune", "zerolatency", "-f", "flv")
	} else {
		args = append(args, "-c:v", "libx264", "-preset", "veryfast")
	}
	args = append(args, output)
	enc := NewSafeCommand("ffmpeg", args...)
	detachFromTerminal(enc.Cmd)
	return enc
}
