package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andresmejia3/veil/internal/config"
	formatter "github.com/antonfisher/nested-logrus-formatter"
	log "github.com/sirupsen/logrus"
)

func TestInit_LevelAndFormat(t *testing.T) {
	tests := []struct {
		cfg       config.LogConfig
		wantLevel log.Level
		check     func(log.Formatter) bool
	}{
		{config.LogConfig{Level: "debug", Format: "text"}, log.DebugLevel, func(f log.Formatter) bool { _, ok := f.(*log.TextFormatter); return ok }},
		{config.LogConfig{Level: "warn", Format: "json"}, log.WarnLevel, func(f log.Formatter) bool { _, ok := f.(*log.JSONFormatter); return ok }},
		{config.LogConfig{Level: "error", Format: "nested"}, log.ErrorLevel, func(f log.Formatter) bool { _, ok := f.(*formatter.Formatter); return ok }},
		{config.LogConfig{Level: "chatty", Format: "text"}, log.InfoLevel, func(f log.Formatter) bool { return f != nil }},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Level+"/"+tt.cfg.Format, func(t *testing.T) {
			logger := log.New()
			closer, err := Init(logger, tt.cfg)
			if err != nil {
				t.Fatalf("Init failed: %v", err)
			}
			defer closer.Close()
			if logger.GetLevel() != tt.wantLevel {
				t.Errorf("level = %v, want %v", logger.GetLevel(), tt.wantLevel)
			}
			if !tt.check(logger.Formatter) {
				t.Errorf("unexpected formatter %T", logger.Formatter)
			}
		})
	}
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "veil.log")
	logger := log.New()
	closer, err := Init(logger, config.LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	logger.WithField("session", "abc").Info("hello file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"session":"abc"`) {
		t.Errorf("log file missing entry: %s", data)
	}
}
