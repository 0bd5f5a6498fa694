package encode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/fault"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []call
	output []byte
	err    error
	write  bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.write && f.err == nil {
		if err := os.WriteFile(args[len(args)-1], []byte("mp4"), 0644); err != nil {
			return nil, err
		}
	}
	return f.output, f.err
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestEncodeRefusesEmptyFrameSet(t *testing.T) {
	runner := &fakeRunner{}
	enc := &FFmpegEncoder{Runner: runner}

	err := enc.Encode(context.Background(), Request{FPS: 30, FrameCount: 0, OutputPath: "out.mp4"})
	require.ErrorIs(t, err, fault.ErrPrecondition)
	assert.Empty(t, runner.calls, "encoder must not be started")
}

func TestEncodeSingleInvocation(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{write: true}
	enc := &FFmpegEncoder{Runner: runner}

	out := filepath.Join(dir, "video", "out.mp4")
	err := enc.Encode(context.Background(), Request{
		FramesDir:    dir,
		Pattern:      "frame-%06d.png",
		FPS:          30,
		StartNumber:  0,
		FrameCount:   300,
		OutputPath:   out,
		VideoEncoder: "libx264",
		Quality:      23,
	})
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)

	c := runner.calls[0]
	assert.Equal(t, "ffmpeg", c.name)
	assert.Equal(t, "30", argValue(c.args, "-framerate"))
	assert.Equal(t, filepath.Join(dir, "frame-%06d.png"), argValue(c.args, "-i"))
	assert.Equal(t, "300", argValue(c.args, "-frames:v"))
	assert.Equal(t, "yuv420p", argValue(c.args, "-pix_fmt"))
	assert.Equal(t, "23", argValue(c.args, "-crf"))
	assert.Equal(t, out, c.args[len(c.args)-1])
	assert.NotContains(t, c.args, "-shortest")
}

func TestEncodeWithAudio(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "voice.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0644))

	runner := &fakeRunner{write: true}
	enc := &FFmpegEncoder{Runner: runner}
	err := enc.Encode(context.Background(), Request{
		FramesDir: dir, FPS: 24, FrameCount: 48, AudioPath: audio,
		OutputPath: filepath.Join(dir, "out.mp4"), VideoEncoder: "h264_nvenc", Quality: 19,
	})
	require.NoError(t, err)

	args := runner.calls[0].args
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i "+audio)
	assert.Contains(t, joined, "-map 1:a:0")
	assert.Contains(t, args, "-shortest")
	assert.Equal(t, "apad", argValue(args, "-af"))
	assert.Equal(t, "19", argValue(args, "-cq"))
}

func TestEncodeMissingAudio(t *testing.T) {
	runner := &fakeRunner{}
	enc := &FFmpegEncoder{Runner: runner}
	err := enc.Encode(context.Background(), Request{
		FPS: 30, FrameCount: 1, AudioPath: "/no/such.wav", OutputPath: filepath.Join(t.TempDir(), "o.mp4"),
	})
	assert.ErrorIs(t, err, fault.ErrPrecondition)
	assert.Empty(t, runner.calls)
}

func TestEncodeFailureCarriesTruncatedDiagnostics(t *testing.T) {
	diag := strings.Repeat("x", 5000)
	runner := &fakeRunner{output: []byte(diag), err: errors.New("exit status 1")}
	enc := &FFmpegEncoder{Runner: runner}

	err := enc.Encode(context.Background(), Request{
		FPS: 30, FrameCount: 10, OutputPath: filepath.Join(t.TempDir(), "o.mp4"),
	})
	require.ErrorIs(t, err, fault.ErrExternalTool)
	assert.Contains(t, err.Error(), "exit status 1")
	assert.Contains(t, err.Error(), "...(truncated)")
	assert.Less(t, len(err.Error()), 2300)
}

func TestEncodeRequiresOutputFile(t *testing.T) {
	runner := &fakeRunner{output: []byte("odd")}
	enc := &FFmpegEncoder{Runner: runner}
	err := enc.Encode(context.Background(), Request{
		FPS: 30, FrameCount: 10, OutputPath: filepath.Join(t.TempDir(), "o.mp4"),
	})
	assert.ErrorIs(t, err, fault.ErrExternalTool)
}

func TestQualityArgs(t *testing.T) {
	assert.Equal(t, []string{"-b:v", "7500k"}, QualityArgs("h264_videotoolbox", 75))
	assert.Equal(t, []string{"-cq", "21"}, QualityArgs("h264_nvenc", 21))
	assert.Equal(t, []string{"-crf", "18", "-preset", "medium"}, QualityArgs("libx264", 18))
	assert.Equal(t, []string{"-b:v", "7500k"}, QualityArgs("h264_videotoolbox", 0))
	assert.Equal(t, []string{"-crf", "23", "-preset", "medium"}, QualityArgs("libx264", 0))
}

func TestConcatAudio(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	enc := &FFmpegEncoder{Runner: runner, AudioRate: 24000}

	clips := []string{filepath.Join(dir, "line.mp3"), filepath.Join(dir, "gap-001.wav"), filepath.Join(dir, "b'c.wav")}
	out := filepath.Join(dir, "track.wav")
	require.NoError(t, enc.ConcatAudio(context.Background(), clips, out))

	require.Len(t, runner.calls, 1)
	args := runner.calls[0].args
	assert.NotContains(t, args, "concat", "no concat demuxer")
	var inputs []string
	for i, a := range args {
		if a == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	assert.Equal(t, clips, inputs)
	assert.Equal(t, ConcatFilter(3, 24000), argValue(args, "-filter_complex"))
	assert.Equal(t, "[out]", argValue(args, "-map"))
	assert.Equal(t, "pcm_s16le", argValue(args, "-c:a"))
	assert.Equal(t, out, args[len(args)-1])

	assert.ErrorIs(t, enc.ConcatAudio(context.Background(), nil, out), fault.ErrPrecondition)
}

func TestConcatFilterNormalizesEveryInput(t *testing.T) {
	assert.Equal(t,
		"[0:a]aresample=44100,aformat=sample_fmts=s16:sample_rates=44100:channel_layouts=mono[a0];"+
			"[1:a]aresample=44100,aformat=sample_fmts=s16:sample_rates=44100:channel_layouts=mono[a1];"+
			"[a0][a1]concat=n=2:v=0:a=1[out]",
		ConcatFilter(2, 44100))
}

func TestConcatAudioDefaultRate(t *testing.T) {
	runner := &fakeRunner{}
	enc := &FFmpegEncoder{Runner: runner}
	out := filepath.Join(t.TempDir(), "track.wav")
	require.NoError(t, enc.ConcatAudio(context.Background(), []string{"a.mp3"}, out))
	assert.Contains(t, argValue(runner.calls[0].args, "-filter_complex"), "aresample=44100")
}
