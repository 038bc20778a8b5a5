package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gogpu/gg"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ivlev/timeline2video/internal/analyzer"
	"github.com/ivlev/timeline2video/internal/assets"
	"github.com/ivlev/timeline2video/internal/config"
	"github.com/ivlev/timeline2video/internal/director"
	"github.com/ivlev/timeline2video/internal/effects"
	"github.com/ivlev/timeline2video/internal/engine"
	"github.com/ivlev/timeline2video/internal/logging"
	"github.com/ivlev/timeline2video/internal/renderer"
	"github.com/ivlev/timeline2video/internal/system"
	"github.com/ivlev/timeline2video/internal/timeline"
	"github.com/ivlev/timeline2video/internal/video"
)

var version = "dev"

var (
	cfgFile string
	cfg     *config.Config
	logFile io.Closer

	flagInput      string
	flagOutput     string
	flagWidth      int
	flagHeight     int
	flagFPS        int
	flagPreset     string
	flagBackground string
	flagEncoder    string
	flagQuality    int
	flagCodec      string
	flagSink       string
	flagWorkers    int
	flagStamp      bool
	flagStats      bool
	flagLogLevel   string
	flagLogFile    string

	frameAt  float64
	frameOut string

	animateElements []string
	animateDetector string
	animateOut      string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "timeline2video",
	Short: "Render timeline snapshots into video",
	Long: `timeline2video composites image, video, gif, text and shape layers of a
timeline snapshot frame by frame, with keyframe animation and video filters,
and streams the frames into an encoder.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		system.InitResourceLimits()

		for _, d := range []string{"input", "output"} {
			os.MkdirAll(d, 0755)
		}

		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}

		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger, closer, err := logging.New(level, cfg.LogFile)
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		logging.SetLogger(logger)
		logFile = closer
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file")
	pf.StringVarP(&flagInput, "input", "i", "", "timeline snapshot (default: newest file in input/)")
	pf.StringVarP(&flagOutput, "output", "o", "", "output video (default: generated in output/)")
	pf.IntVar(&flagWidth, "width", 1280, "frame width")
	pf.IntVar(&flagHeight, "height", 720, "frame height")
	pf.IntVar(&flagFPS, "fps", 60, "frames per second")
	pf.StringVar(&flagPreset, "preset", "", "format preset: 16:9, 9:16, 4:5, 1:1")
	pf.StringVar(&flagBackground, "background", "#000000", "background colour")
	pf.StringVar(&flagEncoder, "encoder", "", "ffmpeg video encoder (default: best available H.264)")
	pf.IntVar(&flagQuality, "quality", 0, "quality (0 = encoder default; x264: CRF, VideoToolbox: bitrate = Q*100kbit/s)")
	pf.StringVar(&flagCodec, "codec", string(config.CodecRawRGBA), "frame codec: rgba, png, jpeg")
	pf.StringVar(&flagSink, "sink", string(config.SinkFFmpeg), "encoder sink: ffmpeg, mjpeg")
	pf.IntVar(&flagWorkers, "workers", 0, "asset and shader workers (0 = CPU count)")
	pf.BoolVar(&flagStamp, "stamp", false, "overlay frame index and QR code")
	pf.BoolVar(&flagStats, "stats", false, "print a performance report")
	pf.StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&flagLogFile, "log-file", "", "also write logs to this file")

	frameCmd.Flags().Float64Var(&frameAt, "at", 0, "timeline time in milliseconds")
	frameCmd.Flags().StringVar(&frameOut, "png", "", "output PNG (default: generated in output/)")

	animateCmd.Flags().StringSliceVar(&animateElements, "element", nil, "image element ids (default: every image)")
	animateCmd.Flags().StringVar(&animateDetector, "detector", "contrast", "region detector")
	animateCmd.Flags().StringVar(&animateOut, "save", "", "output snapshot (default: new snapshot in input/)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(frameCmd)
	rootCmd.AddCommand(legacyCmd)
	rootCmd.AddCommand(animateCmd)
}

// loadConfig layers defaults, the config file and explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		c = loaded
	}
	c.BuildVersion = version

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("input", func() { c.InputPath = flagInput })
	set("output", func() { c.OutputVideo = flagOutput })
	set("width", func() { c.Width = flagWidth })
	set("height", func() { c.Height = flagHeight })
	set("fps", func() { c.FPS = flagFPS })
	set("preset", func() { c.Preset = flagPreset })
	set("background", func() { c.Background = flagBackground })
	set("encoder", func() { c.VideoEncoder = flagEncoder })
	set("quality", func() { c.Quality = flagQuality })
	set("codec", func() { c.Codec = config.FrameCodec(flagCodec) })
	set("sink", func() { c.Sink = config.Sink(flagSink) })
	set("workers", func() {
		if flagWorkers > 0 {
			c.Workers = flagWorkers
		}
	})
	set("stamp", func() { c.DebugStamp = flagStamp })
	set("stats", func() { c.ShowStats = flagStats })
	set("log-level", func() { c.LogLevel = flagLogLevel })
	set("log-file", func() { c.LogFile = flagLogFile })

	if !flags.Changed("encoder") && cfgFile == "" {
		c.VideoEncoder = system.GetBestH264Encoder()
		if !flags.Changed("quality") {
			c.Quality = defaultQuality(c.VideoEncoder)
		}
	}
	if c.Quality == 0 {
		c.Quality = defaultQuality(c.VideoEncoder)
	}
	c.ApplyPreset()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func defaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

// openSnapshot resolves the input snapshot, falling back to the newest one
// in input/. The snapshot canvas replaces size and background the user did
// not set.
func openSnapshot(cmd *cobra.Command) (*timeline.Snapshot, error) {
	if cfg.InputPath == "" {
		latest, err := timeline.FindLatestSnapshot("input")
		if err != nil {
			return nil, fmt.Errorf("%w. Put a timeline snapshot into input/", err)
		}
		cfg.InputPath = latest
		fmt.Printf("[*] Selected snapshot: %s\n", latest)
	}
	snap, err := timeline.ReadSnapshot(cfg.InputPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	sizeSet := flags.Changed("width") || flags.Changed("height") || flags.Changed("preset")
	if err := cfg.AdoptCanvas(snap.Width, snap.Height, snap.Background, sizeSet, flags.Changed("background")); err != nil {
		return nil, err
	}
	logging.Logger().Info("snapshot loaded",
		"path", cfg.InputPath,
		"version", snap.Version,
		"canvas", fmt.Sprintf("%dx%d", snap.Width, snap.Height),
		"frame", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
	)
	return snap, nil
}

// outputPath names generated outputs after the snapshot and a timestamp.
func outputPath(ext string) string {
	base := filepath.Base(cfg.InputPath)
	name := strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), " ", "_")
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("%s_%s%s", name, timestamp, ext))
}

func newCompositor(snap *timeline.Snapshot) (*renderer.Compositor, error) {
	curves, err := snap.BuildCurves()
	if err != nil {
		return nil, fmt.Errorf("build animation curves: %w", err)
	}
	fonts, err := renderer.NewFontSet()
	if err != nil {
		return nil, err
	}
	filters := effects.NewPipeline(effects.NewSoftwareDevice(cfg.Workers))
	return renderer.NewCompositor(curves, assets.NewCache(), filters, fonts), nil
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render every frame and stream it to the encoder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := openSnapshot(cmd)
		if err != nil {
			return err
		}
		if cfg.OutputVideo == "" {
			ext := ".mp4"
			if cfg.Sink == config.SinkMJPEG {
				ext = ".avi"
			}
			cfg.OutputVideo = outputPath(ext)
		}

		comp, err := newCompositor(snap)
		if err != nil {
			return err
		}
		enc, err := video.New(cfg.Sink)
		if err != nil {
			return err
		}

		job := engine.NewJob(cfg, snap, enc, comp)
		defer job.Close()

		total := engine.TotalFrames(cfg.FPS, snap.TotalDuration())
		fmt.Println("--- [TIMELINE EXPORT] ---")
		fmt.Printf("[*] Snapshot: %s | Elements: %d | Frames: %d\n", cfg.InputPath, len(snap.Elements), total)
		fmt.Printf("[*] Resolution: %dx%d @ %d FPS | Encoder: %s (%s, %s)\n", cfg.Width, cfg.Height, cfg.FPS, cfg.VideoEncoder, cfg.Sink, cfg.Codec)
		fmt.Println("-------------------------")

		bar := progressbar.Default(int64(total), "Encoding")
		job.Progress = func(i, total int) {
			bar.Add(1)
		}

		if err := job.Run(cmd.Context()); err != nil {
			if errors.Is(err, engine.ErrNoDestination) || errors.Is(err, engine.ErrDestinationDir) {
				fmt.Printf("[!] %v\n", err)
			}
			return err
		}
		bar.Finish()

		if cfg.ShowStats {
			fmt.Print(job.Report())
		}
		fmt.Printf("[+++] Done! Result: %s\n", cfg.OutputVideo)
		return nil
	},
}

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Render a single preview frame to PNG",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := openSnapshot(cmd)
		if err != nil {
			return err
		}
		comp, err := newCompositor(snap)
		if err != nil {
			return err
		}
		defer comp.Assets.Reset()
		defer comp.Filters.Reset()

		ctx := cmd.Context()
		if err := comp.Assets.ResolveDurations(ctx, snap, cfg.Workers); err != nil {
			logging.Logger().Warn("some durations could not be probed", "err", err)
		}
		if err := comp.Assets.Preload(ctx, snap, cfg.Workers); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Logger().Warn("some assets failed to load", "err", err)
		}

		target := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
		opts := renderer.Options{
			Background: gg.Hex(cfg.Background).Color(),
			DebugStamp: cfg.DebugStamp,
			FrameIndex: int(frameAt * float64(cfg.FPS) / 1000),
		}
		if err := comp.RenderFrameAt(ctx, snap, frameAt, target, opts); err != nil {
			return err
		}

		out := frameOut
		if out == "" {
			out = outputPath(fmt.Sprintf("_%06.0fms.png", frameAt))
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := png.Encode(f, target); err != nil {
			return fmt.Errorf("encode %s: %w", out, err)
		}
		fmt.Printf("[+] Frame %.0fms: %s\n", frameAt, out)
		return nil
	},
}

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Export with a single ffmpeg filter graph (position animation only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := openSnapshot(cmd)
		if err != nil {
			return err
		}
		if cfg.OutputVideo == "" {
			cfg.OutputVideo = outputPath(".mp4")
		}
		curves, err := snap.BuildCurves()
		if err != nil {
			return fmt.Errorf("build animation curves: %w", err)
		}

		opts := video.StreamOptions{
			Output:       cfg.OutputVideo,
			Width:        cfg.Width,
			Height:       cfg.Height,
			FPS:          cfg.FPS,
			VideoEncoder: cfg.VideoEncoder,
			Quality:      cfg.Quality,
		}
		start := time.Now()
		if err := video.LegacyExport(cmd.Context(), snap, curves, opts, cfg.Background); err != nil {
			return err
		}
		if cfg.ShowStats {
			fmt.Printf("[*] Legacy export: %.2fs\n", time.Since(start).Seconds())
		}
		fmt.Printf("[+++] Done! Result: %s\n", cfg.OutputVideo)
		return nil
	},
}

var animateCmd = &cobra.Command{
	Use:   "animate",
	Short: "Add pan and zoom keyframes over the content of image elements",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := openSnapshot(cmd)
		if err != nil {
			return err
		}
		det, err := analyzer.NewDetector(animateDetector)
		if err != nil {
			return err
		}

		ids := animateElements
		if len(ids) == 0 {
			for _, e := range snap.Elements {
				if _, ok := e.(*timeline.Image); ok {
					ids = append(ids, e.Common().ID)
				}
			}
		}

		cache := assets.NewCache()
		dir := director.NewDirector(cfg.Width, cfg.Height)
		animated := 0
		for _, id := range ids {
			e, ok := snap.Find(id)
			if !ok {
				return fmt.Errorf("element %q not found", id)
			}
			el, ok := e.(*timeline.Image)
			if !ok {
				return fmt.Errorf("element %q is a %s, not an image", id, e.Kind())
			}
			fmt.Printf("[*] Analyzing %s (%s)...\n", id, el.Path)

			src, err := cache.LoadImage(cmd.Context(), el.Path)
			if err != nil {
				fmt.Printf("[!] %s: %v\n", id, err)
				continue
			}
			shots, err := dir.Animate(snap, id, det, src)
			if err != nil {
				fmt.Printf("[!] %s: %v\n", id, err)
				continue
			}
			for i, s := range shots {
				logging.Logger().Debug("shot", "element", id, "index", i, "time", s.Time, "focus", s.Focus, "zoom", s.Zoom)
			}
			animated++
		}
		if animated == 0 {
			return errors.New("no element was animated")
		}

		out := animateOut
		if out == "" {
			out = timeline.GenerateSnapshotPath("input")
		}
		if err := timeline.WriteSnapshot(snap, out); err != nil {
			return err
		}
		fmt.Printf("[+++] Snapshot saved: %s (%d elements animated)\n", out, animated)
		return nil
	},
}
