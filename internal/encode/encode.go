// Package encode turns a rendered frame sequence and an optional audio track
// into a video file with ffmpeg.
package encode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ivlev/scene2video/internal/fault"
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Request describes one encode.
type Request struct {
	FramesDir    string
	Pattern      string
	FPS          int
	StartNumber  int
	FrameCount   int
	OutputPath   string
	AudioPath    string // optional
	VideoEncoder string // libx264, h264_nvenc, h264_videotoolbox
	Quality      int
	ExtraArgs    []string // inserted before the output path
}

// FFmpegEncoder runs a single ffmpeg invocation per encode.
type FFmpegEncoder struct {
	Binary string
	Runner Runner
	// AudioRate is the sample rate of joined narration tracks.
	AudioRate int
}

const DefaultAudioRate = 44100

func NewFFmpegEncoder() *FFmpegEncoder {
	return &FFmpegEncoder{Binary: "ffmpeg", Runner: ExecRunner{}}
}

// Encode muxes the frames, and the audio track when given, into
// OutputPath. The video stream sets the length; audio is padded or cut to
// match. An empty frame set fails before ffmpeg is started.
func (e *FFmpegEncoder) Encode(ctx context.Context, req Request) error {
	if req.FrameCount <= 0 {
		return fault.Wrap(fault.ErrPrecondition, "encode", "no frames to encode", nil)
	}
	if req.FPS <= 0 {
		return fault.Wrap(fault.ErrConfiguration, "encode", fmt.Sprintf("invalid fps %d", req.FPS), nil)
	}
	if req.OutputPath == "" {
		return fault.Wrap(fault.ErrConfiguration, "encode", "output path not set", nil)
	}
	if req.AudioPath != "" {
		if _, err := os.Stat(req.AudioPath); err != nil {
			return fault.Wrap(fault.ErrPrecondition, "encode", "audio track", err)
		}
	}
	if dir := filepath.Dir(req.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fault.Wrap(fault.ErrConfiguration, "encode", "create output directory", err)
		}
	}

	out, err := e.runner().Run(ctx, e.binary(), BuildArgs(req)...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fault.Wrap(fault.ErrExternalTool, "ffmpeg", fault.Truncate(string(out), fault.DiagnosticLimit), err)
	}
	if info, err := os.Stat(req.OutputPath); err != nil || info.Size() == 0 {
		return fault.Wrap(fault.ErrExternalTool, "ffmpeg", "exited cleanly but wrote no output: "+fault.Truncate(string(out), fault.DiagnosticLimit), err)
	}
	return nil
}

// BuildArgs assembles the ffmpeg command line for req.
func BuildArgs(req Request) []string {
	pattern := req.Pattern
	if pattern == "" {
		pattern = "frame-%06d.png"
	}
	fps := strconv.Itoa(req.FPS)

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-framerate", fps,
		"-start_number", strconv.Itoa(req.StartNumber),
		"-i", filepath.Join(req.FramesDir, pattern),
	}
	if req.AudioPath != "" {
		args = append(args, "-i", req.AudioPath)
	}

	args = append(args, "-frames:v", strconv.Itoa(req.FrameCount))
	args = append(args, "-map", "0:v:0")
	if req.AudioPath != "" {
		args = append(args, "-map", "1:a:0", "-af", "apad", "-c:a", "aac", "-b:a", "192k", "-shortest")
	}

	encoder := req.VideoEncoder
	if encoder == "" {
		encoder = "libx264"
	}
	args = append(args, "-c:v", encoder, "-r", fps, "-pix_fmt", "yuv420p")
	args = append(args, QualityArgs(encoder, req.Quality)...)
	args = append(args, "-movflags", "+faststart")
	args = append(args, req.ExtraArgs...)
	args = append(args, req.OutputPath)
	return args
}

// DefaultQuality is used when no quality is configured.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

// QualityArgs maps a quality value onto the rate control of each encoder.
// Zero or less picks DefaultQuality.
func QualityArgs(encoder string, quality int) []string {
	if quality <= 0 {
		quality = DefaultQuality(encoder)
	}
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox has no constant quality mode on every version; quality
		// is read as hundreds of kbit/s.
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", strconv.Itoa(quality)}
	default:
		return []string{"-crf", strconv.Itoa(quality), "-preset", "medium"}
	}
}

// ConcatAudio joins clips end to end into one PCM track at out. Clips may
// differ in codec, rate and channel layout; each is resampled to a common
// mono s16 format before the concat filter joins them.
func (e *FFmpegEncoder) ConcatAudio(ctx context.Context, paths []string, out string) error {
	if len(paths) == 0 {
		return fault.Wrap(fault.ErrPrecondition, "concat audio", "no clips", nil)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fault.Wrap(fault.ErrConfiguration, "concat audio", "create output directory", err)
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, p := range paths {
		args = append(args, "-i", p)
	}
	args = append(args,
		"-filter_complex", ConcatFilter(len(paths), e.audioRate()),
		"-map", "[out]",
		"-c:a", "pcm_s16le", out,
	)
	if output, err := e.runner().Run(ctx, e.binary(), args...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fault.Wrap(fault.ErrExternalTool, "ffmpeg concat", fault.Truncate(string(output), fault.DiagnosticLimit), err)
	}
	return nil
}

// ConcatFilter normalizes n audio inputs to rate Hz mono s16 and joins them
// into the [out] label.
func ConcatFilter(n, rate int) string {
	var b strings.Builder
	for i := range n {
		fmt.Fprintf(&b, "[%d:a]aresample=%d,aformat=sample_fmts=s16:sample_rates=%d:channel_layouts=mono[a%d];", i, rate, rate, i)
	}
	for i := range n {
		fmt.Fprintf(&b, "[a%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=0:a=1[out]", n)
	return b.String()
}

func (e *FFmpegEncoder) audioRate() int {
	if e.AudioRate <= 0 {
		return DefaultAudioRate
	}
	return e.AudioRate
}

func (e *FFmpegEncoder) runner() Runner {
	if e.Runner == nil {
		return ExecRunner{}
	}
	return e.Runner
}

func (e *FFmpegEncoder) binary() string {
	if e.Binary == "" {
		return "ffmpeg"
	}
	return e.Binary
}
