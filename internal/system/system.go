package system

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Each render worker holds a decoded backdrop, a frame buffer and an encoder
// scratch image; this is a conservative estimate for 1080p.
const workerMemoryBytes = 256 << 20

var (
	AudioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}
	ImageExtensions = []string{".jpg", ".jpeg", ".png"}
	PDFExtensions   = []string{".pdf"}
)

// InitResourceLimits raises the open file limit. Rendering keeps one PNG
// writer per worker plus the backdrop documents open.
func InitResourceLimits(logger *zap.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("read open file limit", zap.Error(err))
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("raise open file limit", zap.Error(err))
		return
	}
	logger.Debug("open file limit raised", zap.Uint64("limit", uint64(rLimit.Cur)))
}

// DefaultWorkers sizes the render pool from logical CPUs, capped by how many
// workers fit in available memory. Never less than one.
func DefaultWorkers() int {
	workers, err := cpu.Counts(true)
	if err != nil || workers < 1 {
		workers = 1
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.Available > 0 {
		if fit := int(vm.Available / workerMemoryBytes); fit < workers {
			workers = fit
		}
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// FindLatest returns the most recently modified file in dir whose extension
// is one of exts.
func FindLatest(dir string, exts []string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time
	for _, f := range files {
		if f.IsDir() || !HasExtension(f.Name(), exts) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no %s files in %s", strings.Join(exts, "/"), dir)
	}
	return latestFile, nil
}

// HasExtension reports whether name ends in one of exts, ignoring case.
func HasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// ProbeDuration asks ffprobe for the container duration of path in seconds,
// falling back to the longest stream when the container has none.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, fmt.Errorf("ffprobe: empty path")
	}
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-show_format", "-show_streams", "-of", "json", "--", path)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (float64, error) {
	var res probeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	if d := parseSeconds(res.Format.Duration); d > 0 {
		return d, nil
	}
	best := 0.0
	for _, s := range res.Streams {
		best = math.Max(best, parseSeconds(s.Duration))
	}
	if best <= 0 {
		return 0, fmt.Errorf("ffprobe: no duration reported")
	}
	return best, nil
}

func parseSeconds(v string) float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	return d
}

// BestH264Encoder picks a hardware H.264 encoder when ffmpeg has one,
// otherwise libx264.
func BestH264Encoder(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	return pickEncoder(string(out))
}

func pickEncoder(listing string) string {
	// VideoToolbox on macOS, then NVENC.
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(listing, name) {
			return name
		}
	}
	return "libx264"
}
