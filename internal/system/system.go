// Package system wraps the host: resource limits, ffmpeg discovery and
// probing, and memory stats.
package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/ivlev/timeline2video/internal/logging"
)

// InitResourceLimits raises the open file limit. Every video seek spawns an
// ffmpeg process with its own pipes.
func InitResourceLimits() {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		logging.Logger().Warn("get file limit", "err", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		logging.Logger().Warn("set file limit", "err", err)
	} else {
		logging.Logger().Debug("file limit raised", "limit", rLimit.Cur)
	}
}

// GetBestH264Encoder picks a hardware encoder when ffmpeg offers one.
// Order: VideoToolbox (macOS), NVENC, then libx264.
func GetBestH264Encoder() string {
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}
	return "libx264"
}

func ffprobe(ctx context.Context, path string, args ...string) (string, error) {
	full := append([]string{"-v", "error"}, args...)
	full = append(full, path)
	out, err := exec.CommandContext(ctx, "ffprobe", full...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// ProbeDuration returns the container duration in seconds.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := ffprobe(ctx, path, "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1")
	if err != nil {
		return 0, err
	}

	var duration float64
	if _, err := fmt.Sscanf(out, "%f", &duration); err != nil {
		return 0, err
	}
	return duration, nil
}

// ProbeVideoSize returns the size of the first video stream.
func ProbeVideoSize(ctx context.Context, path string) (int, int, error) {
	out, err := ffprobe(ctx, path, "-select_streams", "v:0", "-show_entries", "stream=width,height", "-of", "csv=s=x:p=0")
	if err != nil {
		return 0, 0, err
	}

	var w, h int
	if _, err := fmt.Sscanf(out, "%dx%d", &w, &h); err != nil {
		return 0, 0, fmt.Errorf("parse size %q: %w", out, err)
	}
	return w, h, nil
}

// MemoryStats is a point-in-time memory reading.
type MemoryStats struct {
	ProcessRSS  uint64
	SystemUsed  uint64
	SystemTotal uint64
	UsedPercent float64
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("rss %s, system %s / %s (%.1f%%)",
		formatBytes(m.ProcessRSS), formatBytes(m.SystemUsed), formatBytes(m.SystemTotal), m.UsedPercent)
}

// ReadMemoryStats samples process and system memory.
func ReadMemoryStats(ctx context.Context) (MemoryStats, error) {
	var st MemoryStats

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return st, err
	}
	st.SystemUsed = vm.Used
	st.SystemTotal = vm.Total
	st.UsedPercent = vm.UsedPercent

	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return st, err
	}
	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return st, err
	}
	st.ProcessRSS = info.RSS
	return st, nil
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
