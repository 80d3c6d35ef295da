// Package config loads veil settings from defaults, an optional config file,
// VEIL_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/veil/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is prepended to every environment override, e.g. VEIL_DISPLAY_WIDTH.
const EnvPrefix = "VEIL"

type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Detector DetectorConfig `mapstructure:"detector"`
	Display  DisplayConfig  `mapstructure:"display"`
	Blur     BlurConfig     `mapstructure:"blur"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Output   OutputConfig   `mapstructure:"output"`
	Log      LogConfig      `mapstructure:"log"`
}

// SourceConfig selects where frames come from.
type SourceConfig struct {
	Input string `mapstructure:"input"`
	// Format is ffmpeg's -f for the input (v4l2, avfoundation, lavfi, ...).
	Format string `mapstructure:"format"`
	// Kind is ffmpeg or gocv.
	Kind string `mapstructure:"kind" validate:"oneof=ffmpeg gocv"`
	// Width and Height of decoded frames; 0 asks ffprobe.
	Width  int     `mapstructure:"width" validate:"gte=0"`
	Height int     `mapstructure:"height" validate:"gte=0"`
	FPS    float64 `mapstructure:"fps" validate:"gte=0"`
}

type DetectorConfig struct {
	Backend     string `mapstructure:"backend" validate:"required"`
	Script      string `mapstructure:"script"`
	Cascade     string `mapstructure:"cascade"`
	Accuracy    string `mapstructure:"accuracy" validate:"oneof=low high"`
	MaxResults  int    `mapstructure:"max_results" validate:"gte=0"`
	MinFaceSize int    `mapstructure:"min_face_size" validate:"gte=0"`
}

type DisplayConfig struct {
	Width       int    `mapstructure:"width" validate:"gt=0"`
	Height      int    `mapstructure:"height" validate:"gt=0"`
	Fit         string `mapstructure:"fit" validate:"fitmode"`
	Orientation string `mapstructure:"orientation" validate:"oneof=portrait landscape"`
}

type BlurConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Style    string `mapstructure:"style" validate:"oneof=blur gauss pixel black"`
	Strength int    `mapstructure:"strength" validate:"gte=1,lte=100"`
	Outline  bool   `mapstructure:"outline"`
}

type PipelineConfig struct {
	Policy string `mapstructure:"policy" validate:"oneof=queue latest coalesce"`
}

// OutputConfig selects where composited frames go. An empty Target runs headless;
// "window" opens a preview window; anything else is an ffmpeg output.
type OutputConfig struct {
	Target string `mapstructure:"target"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format" validate:"oneof=text json nested"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// New returns a viper instance with defaults and environment overrides set.
// Callers bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv reads a .env file into the process environment if one exists.
// Variables already set are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	log.Debugf("Environment loaded from %s", path)
	return nil
}

// Load reads configPath (if set) into v, unmarshals and validates the result.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config file %s does not exist", ErrInvalid, configPath)
		}
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Debugf("Config loaded from %s", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("fitmode", func(fl validator.FieldLevel) bool {
		_, err := types.ParseFitMode(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field constraints. Errors wrap ErrInvalid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s' (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// setDefaults sets every key so env overrides and Unmarshal see it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("source.input", "")
	v.SetDefault("source.format", "")
	v.SetDefault("source.kind", "ffmpeg")
	v.SetDefault("source.width", 0)
	v.SetDefault("source.height", 0)
	v.SetDefault("source.fps", 0)

	v.SetDefault("detector.backend", "python")
	v.SetDefault("detector.script", "python/detect.py")
	v.SetDefault("detector.cascade", "")
	v.SetDefault("detector.accuracy", "high")
	v.SetDefault("detector.max_results", 10)
	v.SetDefault("detector.min_face_size", 30)

	v.SetDefault("display.width", 1080)
	v.SetDefault("display.height", 1920)
	v.SetDefault("display.fit", "fill")
	v.SetDefault("display.orientation", "portrait")

	v.SetDefault("blur.enabled", true)
	v.SetDefault("blur.style", "blur")
	v.SetDefault("blur.strength", 15)
	v.SetDefault("blur.outline", false)

	v.SetDefault("pipeline.policy", "queue")

	v.SetDefault("output.target", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
}

// FitMode returns the parsed fit mode. Call after Validate.
func (d DisplayConfig) FitMode() types.FitMode {
	m, _ := types.ParseFitMode(d.Fit)
	return m
}

// Orient returns the parsed orientation. Call after Validate.
func (d DisplayConfig) Orient() types.Orientation {
	o, _ := types.ParseOrientation(d.Orientation)
	return o
}

// Request returns the detector request. Call after Validate.
func (d DetectorConfig) Request() types.DetectionRequest {
	acc, _ := types.ParseAccuracy(d.Accuracy)
	return types.DetectionRequest{Accuracy: acc, MaxResults: d.MaxResults}
}
