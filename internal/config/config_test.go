package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if Default().FPS != 60 {
		t.Errorf("expected default fps 60, got %d", Default().FPS)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero width", func(c *Config) { c.Width = 0 }},
		{"odd height", func(c *Config) { c.Height = 721 }},
		{"fps", func(c *Config) { c.FPS = 0 }},
		{"codec", func(c *Config) { c.Codec = "bmp" }},
		{"sink", func(c *Config) { c.Sink = "gstreamer" }},
		{"mjpeg needs jpeg", func(c *Config) { c.Sink = SinkMJPEG; c.Codec = CodecPNG }},
		{"workers", func(c *Config) { c.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestApplyPreset(t *testing.T) {
	tests := []struct {
		preset string
		w, h   int
	}{
		{"16:9", 1280, 720},
		{"9:16", 720, 1280},
		{"4:5", 1080, 1350},
		{"", 1280, 720},
	}
	for _, tt := range tests {
		c := Default()
		c.Preset = tt.preset
		c.ApplyPreset()
		if c.Width != tt.w || c.Height != tt.h {
			t.Errorf("preset %q: expected %dx%d, got %dx%d", tt.preset, tt.w, tt.h, c.Width, c.Height)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.yaml")
	doc := "fps: 30\nwidth: 640\nheight: 360\nsink: mjpeg\ncodec: jpeg\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.FPS != 30 || c.Width != 640 || c.Sink != SinkMJPEG {
		t.Errorf("fields not loaded: %+v", c)
	}
	if c.Quality != 23 {
		t.Errorf("expected default quality to survive, got %d", c.Quality)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestAdoptCanvas(t *testing.T) {
	tests := []struct {
		name          string
		preset        string
		width, height int
		background    string
		sizeSet       bool
		backgroundSet bool
		wantW, wantH  int
		wantBG        string
	}{
		{"snapshot canvas", "", 1920, 1080, "#112233", false, false, 1920, 1080, "#112233"},
		{"odd size rounded", "", 1921, 1079, "", false, false, 1922, 1080, "#000000"},
		{"explicit size wins", "", 1920, 1080, "#112233", true, false, 1280, 720, "#112233"},
		{"preset wins", "1:1", 1920, 1080, "", false, false, 1080, 1080, "#000000"},
		{"explicit background wins", "", 640, 360, "#ffffff", false, true, 640, 360, "#000000"},
		{"no canvas in snapshot", "", 0, 0, "", false, false, 1280, 720, "#000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Preset = tt.preset
			c.ApplyPreset()
			if err := c.AdoptCanvas(tt.width, tt.height, tt.background, tt.sizeSet, tt.backgroundSet); err != nil {
				t.Fatalf("AdoptCanvas failed: %v", err)
			}
			if c.Width != tt.wantW || c.Height != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantW, tt.wantH, c.Width, c.Height)
			}
			if c.Background != tt.wantBG {
				t.Errorf("expected background %q, got %q", tt.wantBG, c.Background)
			}
		})
	}
}
