package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"25", 25},
		{"0/0", 0},
		{"N/A", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseFrameRate(tt.in); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{"streams":[{"width":1280,"height":720,"avg_frame_rate":"30/1"}]}`)
	w, h, fps, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if w != 1280 || h != 720 || fps != 30 {
		t.Errorf("got %dx%d @ %v", w, h, fps)
	}

	if _, _, _, err := parseProbe([]byte(`{"streams":[]}`)); err == nil {
		t.Error("expected error for missing stream")
	}
	if _, _, _, err := parseProbe([]byte(`{"streams":[{"width":0,"height":0}]}`)); err == nil {
		t.Error("expected error for zero dimensions")
	}
	if _, _, _, err := parseProbe([]byte(`not json`)); err == nil {
		t.Error("expected error for garbage output")
	}
}

func TestShowError_DumpsChildLogs(t *testing.T) {
	var buf bytes.Buffer
	prev := errorOut
	errorOut = &buf
	defer func() { errorOut = prev }()

	cmd := NewSafeCommand("true")
	cmd.Stderr.WriteString("Traceback: ModuleNotFoundError")
	ShowError("Worker startup failed", errors.New("exit status 1"), cmd)

	out := buf.String()
	for _, want := range []string{"Worker startup failed", "exit status 1", "ModuleNotFoundError"} {
		if !strings.Contains(out, want) {
			t.Errorf("error box missing %q:\n%s", want, out)
		}
	}
}

func TestShowError_MarksReported(t *testing.T) {
	var buf bytes.Buffer
	prev := errorOut
	errorOut = &buf
	defer func() { errorOut = prev }()

	base := errors.New("no input given")
	err := ShowError("Configuration Error", base, nil)
	if !Reported(err) || !errors.Is(err, base) {
		t.Fatalf("ShowError result should be reported and wrap the cause, got %v", err)
	}
	if !Reported(fmt.Errorf("decoder: %w", err)) {
		t.Error("wrapping should keep the reported mark")
	}
	if Reported(base) {
		t.Error("plain errors are not reported")
	}
	if strings.Count(buf.String(), "VEIL ERROR") != 1 {
		t.Errorf("Expected exactly one error box:\n%s", buf.String())
	}
}

func TestNewFFmpegRawDecoder_Args(t *testing.T) {
	cmd := NewFFmpegRawDecoder(context.Background(), "/dev/video0", "v4l2", 640, 480)
	args := strings.Join(cmd.Args, " ")
	for _, want := range []string{"-f v4l2", "-video_size 640x480", "-i /dev/video0", "-pix_fmt rgba", "scale=640:480"} {
		if !strings.Contains(args, want) {
			t.Errorf("decoder args missing %q: %s", want, args)
		}
	}
}
