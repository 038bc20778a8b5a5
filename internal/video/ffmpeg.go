package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/ivlev/timeline2video/internal/config"
	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/timeline"
)

var errNotStarted = errors.New("stream not started")

// FFmpegEncoder pipes frames into an ffmpeg process over stdin.
type FFmpegEncoder struct {
	// Binary is the ffmpeg executable. Empty means ffmpeg from PATH.
	Binary string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	cancel context.CancelFunc
	frames int
	exited bool
}

func (e *FFmpegEncoder) StartStream(ctx context.Context, opts StreamOptions, snap *timeline.Snapshot) error {
	if e.cmd != nil {
		return errors.New("stream already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, buildStreamArgs(opts)...)
	cmd.Stderr = &e.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	e.cmd, e.stdin, e.cancel = cmd, stdin, cancel
	logging.Logger().Debug("ffmpeg started", "output", opts.Output, "encoder", opts.VideoEncoder, "codec", opts.Codec)
	return nil
}

func buildStreamArgs(opts StreamOptions) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	switch opts.Codec {
	case config.CodecPNG, config.CodecJPEG:
		vcodec := "png"
		if opts.Codec == config.CodecJPEG {
			vcodec = "mjpeg"
		}
		args = append(args,
			"-f", "image2pipe",
			"-c:v", vcodec,
			"-framerate", fmt.Sprintf("%d", opts.FPS),
		)
	default:
		args = append(args,
			"-f", "rawvideo",
			"-pixel_format", "rgba",
			"-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
			"-framerate", fmt.Sprintf("%d", opts.FPS),
		)
	}

	encoderName := opts.VideoEncoder
	if encoderName == "" {
		encoderName = "libx264"
	}
	args = append(args,
		"-i", "-",
		"-r", fmt.Sprintf("%d", opts.FPS),
		"-pix_fmt", "yuv420p",
		"-c:v", encoderName,
	)
	args = append(args, qualityArgs(encoderName, opts.Quality)...)
	args = append(args, opts.Output)
	return args
}

func (e *FFmpegEncoder) SendFrame(frame []byte) error {
	if e.stdin == nil || e.exited {
		return errNotStarted
	}
	if _, err := e.stdin.Write(frame); err != nil {
		// stderr is only safe to read once the process has been waited for.
		e.stdin.Close()
		e.cmd.Wait()
		e.exited = true
		return fmt.Errorf("write frame %d: %w, stderr: %s", e.frames, err, e.stderr.String())
	}
	e.frames++
	return nil
}

func (e *FFmpegEncoder) FinishStream() error {
	if e.cmd == nil || e.exited {
		return errNotStarted
	}
	defer e.cancel()
	e.exited = true

	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w, stderr: %s", err, e.stderr.String())
	}
	logging.Logger().Debug("ffmpeg finished", "frames", e.frames)
	return nil
}

// Abort kills ffmpeg. The partial output is left for the caller to remove.
func (e *FFmpegEncoder) Abort() error {
	if e.cmd == nil {
		return nil
	}
	e.cancel()
	if e.exited {
		return nil
	}
	e.exited = true
	e.stdin.Close()
	e.cmd.Wait()
	return nil
}
