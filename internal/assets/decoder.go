package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"sync"

	"github.com/ivlev/timeline2video/internal/system"
)

// VideoSpec describes how a video element wants its frames. A zero size
// keeps the source resolution.
type VideoSpec struct {
	Path   string
	Width  int
	Height int
}

// Decoder is a seekable video source. Seek blocks until the frame at the
// requested position is decoded; Frame then returns it.
type Decoder interface {
	Seek(ctx context.Context, seconds float64) error
	Frame() image.Image
	Size() (width, height int)
	Close() error
}

// SeekAsync starts a seek and returns a channel that receives its result
// exactly once.
func SeekAsync(ctx context.Context, d Decoder, seconds float64) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- d.Seek(ctx, seconds)
	}()
	return done
}

// FFmpegDecoder extracts single frames with ffmpeg, one process per seek.
type FFmpegDecoder struct {
	path          string
	width, height int

	mu    sync.Mutex
	frame *image.RGBA
	pos   float64
}

func NewFFmpegDecoder(ctx context.Context, spec VideoSpec) (*FFmpegDecoder, error) {
	w, h := spec.Width, spec.Height
	if w <= 0 || h <= 0 {
		var err error
		w, h, err = system.ProbeVideoSize(ctx, spec.Path)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", spec.Path, err)
		}
	}
	return &FFmpegDecoder{path: spec.Path, width: w, height: h, pos: -1}, nil
}

func (d *FFmpegDecoder) Seek(ctx context.Context, seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frame != nil && d.pos == seconds {
		return nil
	}
	if seconds < 0 {
		seconds = 0
	}

	args := []string{
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", seconds),
		"-i", d.path,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", d.width, d.height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg seek %.3fs: %w, stderr: %s", seconds, err, stderr.String())
	}

	want := d.width * d.height * 4
	if stdout.Len() < want {
		return fmt.Errorf("ffmpeg seek %.3fs: got %d bytes, want %d", seconds, stdout.Len(), want)
	}

	if d.frame == nil {
		d.frame = image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	}
	copy(d.frame.Pix, stdout.Bytes()[:want])
	d.pos = seconds
	return nil
}

// Frame returns the last decoded frame or nil before the first seek.
func (d *FFmpegDecoder) Frame() image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame == nil {
		return nil
	}
	return d.frame
}

func (d *FFmpegDecoder) Size() (int, int) {
	return d.width, d.height
}

func (d *FFmpegDecoder) Close() error {
	d.mu.Lock()
	d.frame = nil
	d.mu.Unlock()
	return nil
}
