package video

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strings"

	"github.com/ivlev/timeline2video/internal/curve"
	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/timeline"
)

// LegacyGraph is a whole-timeline ffmpeg invocation: input arguments, one
// filter_complex and the label of its final video stream. Only position
// animation survives the translation; other channels use static values.
type LegacyGraph struct {
	Inputs  []string
	Filter  string
	Output  string
	Skipped []string // element ids with no filter graph equivalent
}

// BuildLegacyGraph translates the snapshot into scale/overlay/drawtext
// nodes gated by enable='between(t,a,b)'.
func BuildLegacyGraph(snap *timeline.Snapshot, store *curve.Store, opts StreamOptions, background string) (*LegacyGraph, error) {
	durSec := snap.TotalDuration() / 1000
	if durSec <= 0 {
		return nil, errors.New("timeline is empty")
	}

	g := &LegacyGraph{
		Inputs: []string{
			"-f", "lavfi",
			"-i", fmt.Sprintf("color=c=%s:s=%dx%d:r=%d:d=%.3f", ffColor(background, "black"), opts.Width, opts.Height, opts.FPS, durSec),
		},
	}

	var nodes []string
	last := "[0:v]"
	input := 1
	for i, e := range timeline.SortByPriority(snap.Elements) {
		out := fmt.Sprintf("[v%d]", i)
		b := e.Common()
		win := timeline.VisibilityWindow(e)
		if v, ok := e.(*timeline.Video); ok {
			trim := timeline.TrimWindow(v)
			win.Start = math.Max(win.Start, trim.Start)
			win.End = math.Min(win.End, trim.End)
		}
		enable := fmt.Sprintf("enable='between(t,%.3f,%.3f)'", win.Start/1000, win.End/1000)
		x, y := positionExprs(store, b)

		switch el := e.(type) {
		case *timeline.Image, *timeline.Gif, *timeline.Video:
			var path string
			speed := 1.0
			switch src := el.(type) {
			case *timeline.Image:
				path = src.Path
				g.Inputs = append(g.Inputs, "-loop", "1", "-framerate", fmt.Sprintf("%d", opts.FPS), "-t", fmt.Sprintf("%.3f", durSec), "-i", path)
			case *timeline.Gif:
				path, speed = src.Path, src.PlaybackSpeed()
				g.Inputs = append(g.Inputs, "-ignore_loop", "0", "-t", fmt.Sprintf("%.3f", durSec), "-i", path)
			case *timeline.Video:
				path, speed = src.Path, src.PlaybackSpeed()
				g.Inputs = append(g.Inputs, "-i", path)
			}

			w, h := b.Width, b.Height
			layer := fmt.Sprintf("[l%d]", i)
			chain := []string{
				fmt.Sprintf("setpts=(PTS-STARTPTS)/%.6f+%.3f/TB", speed, b.StartTime/1000),
				fmt.Sprintf("scale=%d:%d", evenSize(w), evenSize(h)),
				"format=rgba",
			}
			if b.Opacity < 100 {
				chain = append(chain, fmt.Sprintf("colorchannelmixer=aa=%.3f", math.Max(0, b.Opacity)/100))
			}
			if b.Rotation != 0 {
				rad := b.Rotation * math.Pi / 180
				chain = append(chain, fmt.Sprintf("rotate=a=%.6f:c=none:ow=rotw(%.6f):oh=roth(%.6f)", rad, rad, rad))
			}
			nodes = append(nodes, fmt.Sprintf("[%d:v]%s%s", input, strings.Join(chain, ","), layer))

			// overlay places the top-left of the (possibly rotated) layer;
			// keep its centre on the centre of the box.
			x = fmt.Sprintf("(%s)+%.3f-overlay_w/2", x, w/2)
			y = fmt.Sprintf("(%s)+%.3f-overlay_h/2", y, h/2)
			nodes = append(nodes, fmt.Sprintf("%s%soverlay=x='%s':y='%s':eof_action=pass:%s%s", last, layer, x, y, enable, out))
			input++

		case *timeline.Text:
			size := el.FontSize
			if size <= 0 {
				size = 16
			}
			parts := []string{
				fmt.Sprintf("text='%s'", escapeDrawtext(el.Text)),
				fmt.Sprintf("fontsize=%.1f", size),
				fmt.Sprintf("fontcolor=%s", ffColor(el.TextColor, "white")),
				fmt.Sprintf("x='%s'", x),
				fmt.Sprintf("y='%s'", y),
			}
			if el.Outline.Enable && el.Outline.Size > 0 {
				parts = append(parts, fmt.Sprintf("borderw=%.1f", el.Outline.Size), fmt.Sprintf("bordercolor=%s", ffColor(el.Outline.Color, "black")))
			}
			if el.Background.Enable {
				parts = append(parts, "box=1", fmt.Sprintf("boxcolor=%s", ffColor(el.Background.Color, "black")))
			}
			parts = append(parts, enable)
			nodes = append(nodes, fmt.Sprintf("%sdrawtext=%s%s", last, strings.Join(parts, ":"), out))

		default:
			if _, audio := e.(*timeline.Audio); !audio {
				g.Skipped = append(g.Skipped, b.ID)
			}
			continue
		}
		last = out
	}

	if len(nodes) == 0 {
		nodes = append(nodes, "[0:v]null[vout]")
		last = "[vout]"
	}
	g.Filter = strings.Join(nodes, ";")
	g.Output = last
	return g, nil
}

// positionExprs returns the x and y of the box top-left as ffmpeg
// expressions, animated when the position channel is active.
func positionExprs(store *curve.Store, b *timeline.Base) (string, string) {
	x := fmt.Sprintf("%.3f", b.Location.X)
	y := fmt.Sprintf("%.3f", b.Location.Y)
	if store == nil || !store.Active(b.ID, curve.Position) {
		return x, y
	}
	start := b.StartTime / 1000
	if s := store.Samples(b.ID, curve.Position, curve.AxisX); len(s) > 0 {
		x = PiecewiseExpr(s, start, 1)
	}
	if s := store.Samples(b.ID, curve.Position, curve.AxisY); len(s) > 0 {
		y = PiecewiseExpr(s, start, 1)
	}
	return x, y
}

// LegacyExport runs the graph in a single ffmpeg pass. It is not frame
// accurate: seeks, gif timing and filters are left to ffmpeg.
func LegacyExport(ctx context.Context, snap *timeline.Snapshot, store *curve.Store, opts StreamOptions, background string) error {
	g, err := BuildLegacyGraph(snap, store, opts, background)
	if err != nil {
		return err
	}
	if len(g.Skipped) > 0 {
		logging.Logger().Warn("legacy export skips elements", "elements", g.Skipped)
	}

	encoderName := opts.VideoEncoder
	if encoderName == "" {
		encoderName = "libx264"
	}
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	args = append(args, g.Inputs...)
	args = append(args,
		"-filter_complex", g.Filter,
		"-map", g.Output,
		"-t", fmt.Sprintf("%.3f", snap.TotalDuration()/1000),
		"-r", fmt.Sprintf("%d", opts.FPS),
		"-pix_fmt", "yuv420p",
		"-c:v", encoderName,
	)
	args = append(args, qualityArgs(encoderName, opts.Quality)...)
	args = append(args, opts.Output)

	logging.Logger().Debug("legacy export", "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg legacy error: %v, output: %s", err, string(out))
	}
	return nil
}

// ffColor converts "#rrggbb" into ffmpeg's 0xrrggbb form.
func ffColor(s, fallback string) string {
	if s == "" {
		return fallback
	}
	if strings.HasPrefix(s, "#") {
		return "0x" + s[1:]
	}
	return s
}

func evenSize(v float64) int {
	n := int(math.Round(v))
	if n < 2 {
		return 2
	}
	return n &^ 1
}
