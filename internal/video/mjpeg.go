package video

import (
	"context"
	"errors"
	"fmt"

	"github.com/icza/mjpeg"

	"github.com/ivlev/timeline2video/internal/config"
	"github.com/ivlev/timeline2video/internal/timeline"
)

// MJPEGEncoder writes JPEG frames into a Motion JPEG AVI without an
// external process.
type MJPEGEncoder struct {
	writer mjpeg.AviWriter
	frames int
}

func (e *MJPEGEncoder) StartStream(ctx context.Context, opts StreamOptions, snap *timeline.Snapshot) error {
	if opts.Codec != config.CodecJPEG {
		return fmt.Errorf("mjpeg sink needs %q frames, got %q", config.CodecJPEG, opts.Codec)
	}
	if e.writer != nil {
		return errors.New("stream already started")
	}
	w, err := mjpeg.New(opts.Output, int32(opts.Width), int32(opts.Height), int32(opts.FPS))
	if err != nil {
		return fmt.Errorf("failed to create video writer: %w", err)
	}
	e.writer = w
	return nil
}

func (e *MJPEGEncoder) SendFrame(frame []byte) error {
	if e.writer == nil {
		return errNotStarted
	}
	if err := e.writer.AddFrame(frame); err != nil {
		return fmt.Errorf("failed to add frame %d: %w", e.frames, err)
	}
	e.frames++
	return nil
}

func (e *MJPEGEncoder) FinishStream() error {
	if e.writer == nil {
		return errNotStarted
	}
	err := e.writer.Close()
	e.writer = nil
	return err
}

func (e *MJPEGEncoder) Abort() error {
	if e.writer == nil {
		return nil
	}
	err := e.writer.Close()
	e.writer = nil
	return err
}
