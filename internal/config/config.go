// Package config holds export settings: defaults, presets, the optional YAML
// config file and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// FrameCodec is how a rendered frame is serialized before it reaches the
// encoder.
type FrameCodec string

const (
	CodecRawRGBA FrameCodec = "rgba"
	CodecPNG     FrameCodec = "png"
	CodecJPEG    FrameCodec = "jpeg"
)

// Sink selects the encoder boundary implementation.
type Sink string

const (
	SinkFFmpeg Sink = "ffmpeg" // external ffmpeg process fed over stdin
	SinkMJPEG  Sink = "mjpeg"  // in-process Motion JPEG AVI writer
)

type Config struct {
	InputPath    string     `yaml:"input"`
	OutputVideo  string     `yaml:"output"`
	Width        int        `yaml:"width"`
	Height       int        `yaml:"height"`
	FPS          int        `yaml:"fps"`
	Preset       string     `yaml:"preset"`
	Background   string     `yaml:"background"`
	VideoEncoder string     `yaml:"video_encoder"`
	Quality      int        `yaml:"quality"`
	Codec        FrameCodec `yaml:"codec"`
	Sink         Sink       `yaml:"sink"`
	Workers      int        `yaml:"workers"`
	DebugStamp   bool       `yaml:"debug_stamp"`
	ShowStats    bool       `yaml:"show_stats"`
	LogLevel     string     `yaml:"log_level"`
	LogFile      string     `yaml:"log_file"`
	BuildVersion string     `yaml:"-"`
}

// Default returns the settings used when neither flags nor a config file
// override them.
func Default() *Config {
	return &Config{
		Width:        1280,
		Height:       720,
		FPS:          60,
		Background:   "#000000",
		VideoEncoder: "libx264",
		Quality:      23,
		Codec:        CodecRawRGBA,
		Sink:         SinkFFmpeg,
		Workers:      runtime.NumCPU(),
		LogLevel:     "info",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyPreset overrides width and height for the named aspect preset.
func (c *Config) ApplyPreset() {
	switch c.Preset {
	case "16:9":
		c.Width, c.Height = 1280, 720
	case "9:16":
		c.Width, c.Height = 720, 1280
	case "4:5":
		c.Width, c.Height = 1080, 1350
	case "1:1":
		c.Width, c.Height = 1080, 1080
	}
}

// AdoptCanvas takes the frame size and background a snapshot was authored
// for. sizeSet and backgroundSet mark values the user chose explicitly; those
// and an active preset win over the snapshot. Odd sizes are rounded up.
func (c *Config) AdoptCanvas(width, height int, background string, sizeSet, backgroundSet bool) error {
	if !sizeSet && c.Preset == "" && width > 0 && height > 0 {
		c.Width, c.Height = width+width%2, height+height%2
	}
	if !backgroundSet && background != "" {
		c.Background = background
	}
	return c.Validate()
}

// Validate checks ranges and enum fields.
func (c *Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("frame size %dx%d must be positive", c.Width, c.Height))
	}
	if c.Width%2 != 0 || c.Height%2 != 0 {
		errs = append(errs, fmt.Errorf("frame size %dx%d must be even for yuv420p", c.Width, c.Height))
	}
	if c.FPS <= 0 || c.FPS > 240 {
		errs = append(errs, fmt.Errorf("fps %d out of range 1..240", c.FPS))
	}
	switch c.Codec {
	case CodecRawRGBA, CodecPNG, CodecJPEG:
	default:
		errs = append(errs, fmt.Errorf("unknown frame codec %q", c.Codec))
	}
	switch c.Sink {
	case SinkFFmpeg:
	case SinkMJPEG:
		if c.Codec != CodecJPEG {
			errs = append(errs, fmt.Errorf("sink %q needs codec %q, got %q", c.Sink, CodecJPEG, c.Codec))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sink %q", c.Sink))
	}
	if c.Quality < 0 {
		errs = append(errs, fmt.Errorf("quality %d must not be negative", c.Quality))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers %d must be at least 1", c.Workers))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
