package video

import (
	"fmt"
	"strings"

	"github.com/ivlev/timeline2video/internal/curve"
)

// maxExprSegments bounds the nesting depth of generated expressions.
const maxExprSegments = 48

// PiecewiseExpr builds an ffmpeg expression in t (seconds) that linearly
// interpolates samples. Sample times are relative to startSec. Before the
// first sample the first value holds, after the last the last value.
func PiecewiseExpr(samples []curve.Sample, startSec float64, scale float64) string {
	if len(samples) == 0 {
		return ""
	}
	pts := thinSamples(samples, maxExprSegments)
	at := func(s curve.Sample) float64 { return startSec + s.Time/1000 }

	if len(pts) == 1 {
		return fmt.Sprintf("%.6f", pts[0].Value*scale)
	}

	expr := fmt.Sprintf("%.6f", pts[len(pts)-1].Value*scale)
	for i := len(pts) - 2; i >= 0; i-- {
		a, b := pts[i], pts[i+1]
		t0, t1 := at(a), at(b)
		if t1 <= t0 {
			continue
		}
		// if(lt(t,t1), a+(t-t0)/(t1-t0)*(b-a), ...)
		expr = fmt.Sprintf("if(lt(t,%.4f),%.6f+(t-%.4f)/%.4f*%.6f,%s)",
			t1, a.Value*scale, t0, t1-t0, (b.Value-a.Value)*scale, expr)
	}
	return fmt.Sprintf("if(lt(t,%.4f),%.6f,%s)", at(pts[0]), pts[0].Value*scale, expr)
}

// thinSamples keeps at most n+1 samples, always including both ends.
func thinSamples(samples []curve.Sample, n int) []curve.Sample {
	if len(samples) <= n+1 {
		return samples
	}
	out := make([]curve.Sample, 0, n+1)
	step := float64(len(samples)-1) / float64(n)
	for i := 0; i < n; i++ {
		out = append(out, samples[int(float64(i)*step)])
	}
	return append(out, samples[len(samples)-1])
}

// escapeDrawtext quotes a string for use as a drawtext text value inside a
// single-quoted filter option.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(
		`\`, `\\\\`,
		`'`, `'\\\''`,
		`:`, `\:`,
		`%`, `\%`,
		"\n", " ",
	)
	return r.Replace(s)
}
