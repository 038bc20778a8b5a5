// Package video is the encoder boundary: it turns rendered frames into a
// container file, either streamed frame by frame or, in legacy mode, as one
// ffmpeg filter graph over the whole timeline.
package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/ivlev/timeline2video/internal/config"
	"github.com/ivlev/timeline2video/internal/timeline"
)

// StreamOptions describes the output of one export.
type StreamOptions struct {
	Output       string
	Width        int
	Height       int
	FPS          int
	Codec        config.FrameCodec
	VideoEncoder string
	Quality      int
}

// Encoder accepts individually encoded frames in order and produces a
// container file. FinishStream finalizes the output; Abort discards it.
type Encoder interface {
	StartStream(ctx context.Context, opts StreamOptions, snap *timeline.Snapshot) error
	SendFrame(frame []byte) error
	FinishStream() error
	Abort() error
}

// New returns the encoder for a sink.
func New(sink config.Sink) (Encoder, error) {
	switch sink {
	case config.SinkFFmpeg, "":
		return &FFmpegEncoder{}, nil
	case config.SinkMJPEG:
		return &MJPEGEncoder{}, nil
	}
	return nil, fmt.Errorf("unknown sink %q", sink)
}

// EncodeFrame serializes img. Raw RGBA frames must start at the origin and
// be tightly packed; quality applies to JPEG only (1-100).
func EncodeFrame(img *image.RGBA, codec config.FrameCodec, quality int) ([]byte, error) {
	switch codec {
	case config.CodecRawRGBA, "":
		if img.Rect.Min == (image.Point{}) && img.Stride == img.Rect.Dx()*4 {
			out := make([]byte, len(img.Pix))
			copy(out, img.Pix)
			return out, nil
		}
		packed := image.NewRGBA(image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()))
		for y := 0; y < packed.Rect.Dy(); y++ {
			src := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
			copy(packed.Pix[y*packed.Stride:(y+1)*packed.Stride], img.Pix[src:src+packed.Stride])
		}
		return packed.Pix, nil

	case config.CodecPNG:
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case config.CodecJPEG:
		if quality <= 0 || quality > 100 {
			quality = 90
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown frame codec %q", codec)
}

// qualityArgs maps the quality setting onto the rate control flag each
// encoder understands.
func qualityArgs(encoderName string, quality int) []string {
	switch encoderName {
	case "h264_videotoolbox":
		bitrate := quality * 100
		return []string{"-b:v", fmt.Sprintf("%dk", bitrate)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default: // libx264
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}
