package assets

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ivlev/timeline2video/internal/timeline"
)

type fakeDecoder struct {
	seeks  atomic.Int32
	closed atomic.Bool
	err    error
	frame  *image.RGBA
}

func (d *fakeDecoder) Seek(ctx context.Context, seconds float64) error {
	d.seeks.Add(1)
	return d.err
}
func (d *fakeDecoder) Frame() image.Image {
	if d.frame == nil {
		return nil
	}
	return d.frame
}
func (d *fakeDecoder) Size() (int, int) { return 4, 4 }
func (d *fakeDecoder) Close() error {
	d.closed.Store(true)
	return nil
}

func writePNG(t *testing.T, dir, name string, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadImageCaches(t *testing.T) {
	path := writePNG(t, t.TempDir(), "red.png", color.RGBA{255, 0, 0, 255})
	c := NewCache()

	if _, ok := c.Image(path); ok {
		t.Fatal("image should be absent before load")
	}

	img, err := c.LoadImage(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("expected width 8, got %d", img.Bounds().Dx())
	}

	cached, ok := c.Image(path)
	if !ok || cached != img {
		t.Error("expected lookup to return the loaded image")
	}
}

func TestLoadImageMissing(t *testing.T) {
	c := NewCache()
	path := filepath.Join(t.TempDir(), "nope.png")
	if _, err := c.LoadImage(context.Background(), path); err == nil {
		t.Fatal("Expected error for missing file")
	}
	if _, ok := c.Image(path); ok {
		t.Error("failed asset must stay absent")
	}
}

func palettedFrame(rect image.Rectangle, idx uint8) *image.Paletted {
	p := image.NewPaletted(rect, color.Palette{color.Transparent, color.RGBA{255, 0, 0, 255}, color.RGBA{0, 0, 255, 255}})
	for i := range p.Pix {
		p.Pix[i] = idx
	}
	return p
}

func TestComposeGif(t *testing.T) {
	g := &gif.GIF{
		Image: []*image.Paletted{
			palettedFrame(image.Rect(0, 0, 4, 4), 1),
			palettedFrame(image.Rect(0, 0, 2, 2), 2),
		},
		Delay:    []int{5, 5},
		Disposal: []byte{gif.DisposalNone, gif.DisposalNone},
		Config:   image.Config{Width: 4, Height: 4},
	}

	out, err := ComposeGif(g)
	if err != nil {
		t.Fatalf("ComposeGif failed: %v", err)
	}
	if len(out.Frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(out.Frames))
	}
	if out.Delay != 50 {
		t.Errorf("expected delay 50ms, got %f", out.Delay)
	}

	second := out.Frames[1]
	if got := second.RGBAAt(0, 0); got.B != 255 {
		t.Errorf("expected blue patch at origin, got %v", got)
	}
	if got := second.RGBAAt(3, 3); got.R != 255 {
		t.Errorf("expected red from the previous frame, got %v", got)
	}
}

func TestComposeGifDisposalBackground(t *testing.T) {
	g := &gif.GIF{
		Image: []*image.Paletted{
			palettedFrame(image.Rect(0, 0, 4, 4), 1),
			palettedFrame(image.Rect(0, 0, 1, 1), 2),
		},
		Disposal: []byte{gif.DisposalBackground, gif.DisposalNone},
		Config:   image.Config{Width: 4, Height: 4},
	}
	out, err := ComposeGif(g)
	if err != nil {
		t.Fatal(err)
	}
	if out.Delay != DefaultGifDelay {
		t.Errorf("expected default delay, got %f", out.Delay)
	}
	if got := out.Frames[1].RGBAAt(3, 3); got.A != 0 {
		t.Errorf("expected cleared pixel, got %v", got)
	}
}

func TestGifFrameAt(t *testing.T) {
	g := &Gif{Delay: 100}
	for i := 0; i < 3; i++ {
		g.Frames = append(g.Frames, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	}

	tests := []struct {
		elapsed float64
		want    int
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{250, 2},
		{300, 0},
		{1050, 1},
	}
	for _, tt := range tests {
		got := g.FrameAt(tt.elapsed)
		if got != g.Frames[tt.want] {
			t.Errorf("FrameAt(%.0f): expected frame %d", tt.elapsed, tt.want)
		}
	}
}

func TestLoadVideoAndReset(t *testing.T) {
	dec := &fakeDecoder{}
	opened := 0
	c := NewCacheWithDecoder(func(ctx context.Context, spec VideoSpec) (Decoder, error) {
		opened++
		return dec, nil
	})

	for i := 0; i < 2; i++ {
		if _, err := c.LoadVideo(context.Background(), "clip", VideoSpec{Path: "clip.mp4"}); err != nil {
			t.Fatalf("LoadVideo failed: %v", err)
		}
	}
	if opened != 1 {
		t.Errorf("expected one decoder, opened %d", opened)
	}

	if err := <-SeekAsync(context.Background(), dec, 1.5); err != nil {
		t.Errorf("seek failed: %v", err)
	}
	if dec.seeks.Load() != 1 {
		t.Errorf("expected 1 seek, got %d", dec.seeks.Load())
	}

	c.Reset()
	if !dec.closed.Load() {
		t.Error("Reset must close decoders")
	}
	if _, ok := c.Video("clip"); ok {
		t.Error("Reset must drop decoders")
	}
}

func TestPreloadJoinsErrors(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "ok.png", color.White)
	broken := errors.New("no such codec")

	c := NewCacheWithDecoder(func(ctx context.Context, spec VideoSpec) (Decoder, error) {
		return nil, broken
	})
	snap := &timeline.Snapshot{Elements: timeline.Elements{
		&timeline.Image{Base: timeline.Base{ID: "a"}, Path: good},
		&timeline.Image{Base: timeline.Base{ID: "b"}, Path: filepath.Join(dir, "missing.png")},
		&timeline.Video{Base: timeline.Base{ID: "v"}, Path: "clip.mp4"},
		&timeline.Text{Base: timeline.Base{ID: "t"}, Text: "hi"},
	}}

	err := c.Preload(context.Background(), snap, 2)
	if err == nil {
		t.Fatal("Expected joined error")
	}
	if !errors.Is(err, broken) {
		t.Errorf("expected decoder error in %v", err)
	}
	if _, ok := c.Image(good); !ok {
		t.Error("good image should be loaded despite other failures")
	}
	t.Logf("preload error: %v", err)
}

func TestInvalidate(t *testing.T) {
	c := NewCache()
	dec := &fakeDecoder{}
	c.PutImage("a.png", image.NewRGBA(image.Rect(0, 0, 1, 1)))
	c.PutVideo("v", dec)

	c.Invalidate("a.png")
	c.Invalidate("v")

	if _, ok := c.Image("a.png"); ok {
		t.Error("image should be gone")
	}
	if !dec.closed.Load() {
		t.Error("invalidated decoder should be closed")
	}
}

func TestResolveDurations(t *testing.T) {
	missing := errors.New("no such file")
	var probed atomic.Int32
	c := NewCacheWithDecoder(nil)
	c.SetDurationProber(func(ctx context.Context, path string) (float64, error) {
		probed.Add(1)
		switch path {
		case "clip.mp4":
			return 2.5, nil
		case "music.mp3":
			return 61, nil
		}
		return 0, missing
	})

	clip := &timeline.Video{Base: timeline.Base{ID: "clip"}, Path: "clip.mp4"}
	music := &timeline.Audio{Base: timeline.Base{ID: "music"}, Path: "music.mp3"}
	fixed := &timeline.Video{Base: timeline.Base{ID: "fixed", Duration: 1000}, Path: "clip.mp4"}
	gone := &timeline.Video{Base: timeline.Base{ID: "gone"}, Path: "gone.mp4"}
	snap := &timeline.Snapshot{Elements: timeline.Elements{
		clip, music, fixed, gone,
		&timeline.Image{Base: timeline.Base{ID: "img"}, Path: "a.png"},
	}}

	err := c.ResolveDurations(context.Background(), snap, 2)
	if !errors.Is(err, missing) {
		t.Errorf("expected probe error for gone.mp4, got %v", err)
	}
	if clip.Duration != 2500 {
		t.Errorf("video: expected 2500ms, got %.0f", clip.Duration)
	}
	if music.Duration != 61000 {
		t.Errorf("audio: expected 61000ms, got %.0f", music.Duration)
	}
	if fixed.Duration != 1000 {
		t.Errorf("a set duration must be kept, got %.0f", fixed.Duration)
	}
	if gone.Duration != 0 {
		t.Errorf("unprobed element should keep zero, got %.0f", gone.Duration)
	}
	if probed.Load() != 3 {
		t.Errorf("expected 3 probes, got %d", probed.Load())
	}
	if snap.TotalDuration() != 61000 {
		t.Errorf("expected total 61000ms, got %.0f", snap.TotalDuration())
	}

	c.SetDurationProber(nil)
	if err := c.ResolveDurations(context.Background(), snap, 1); err != nil {
		t.Errorf("probing disabled: %v", err)
	}
}
