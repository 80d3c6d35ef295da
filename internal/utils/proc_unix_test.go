//go:build unix

package utils

import "testing"

func TestNewFFmpegEncoder_SurvivesInterrupt(t *testing.T) {
	enc := NewFFmpegEncoder("out.mp4", 30, 640, 480)
	if enc.Cancel != nil {
		t.Error("encoder should not be killed by context cancellation")
	}
	if enc.SysProcAttr == nil || !enc.SysProcAttr.Setpgid {
		t.Error("encoder should run in its own process group")
	}
}
