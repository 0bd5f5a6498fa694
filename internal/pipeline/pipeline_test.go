package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/composition"
	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/encode"
	"github.com/ivlev/scene2video/internal/fault"
	"github.com/ivlev/scene2video/internal/grid"
	"github.com/ivlev/scene2video/internal/metrics"
	"github.com/ivlev/scene2video/internal/publish"
	"github.com/ivlev/scene2video/internal/render"
)

// fakeEncoder records requests and writes placeholder outputs.
type fakeEncoder struct {
	mu       sync.Mutex
	requests []encode.Request
	concats  [][]string
	fail     error
}

func (f *fakeEncoder) Encode(_ context.Context, req encode.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.fail != nil {
		return f.fail
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(req.OutputPath, []byte("video"), 0644)
}

func (f *fakeEncoder) ConcatAudio(_ context.Context, paths []string, out string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.concats = append(f.concats, append([]string(nil), paths...))
	return os.WriteFile(out, []byte("RIFF"), 0644)
}

type fakePublisher struct{ uploads []string }

func (f *fakePublisher) Upload(_ context.Context, jobID, file string) (publish.Object, error) {
	f.uploads = append(f.uploads, file)
	return publish.Object{Bucket: "videos", Key: jobID + "/" + filepath.Base(file)}, nil
}

// solid paints every frame a gray level derived from its index.
type solid struct{}

type solidScene struct {
	img *image.RGBA
	c   color.RGBA
}

func (solid) Mount(_ context.Context, vp render.Viewport) (render.Scene, error) {
	w, h := vp.PixelSize()
	return &solidScene{img: image.NewRGBA(image.Rect(0, 0, w, h))}, nil
}

func (s *solidScene) SeekFrame(_ context.Context, frame int) error {
	v := uint8(frame % 256)
	s.c = color.RGBA{R: v, G: v, B: v, A: 255}
	return nil
}

func (s *solidScene) Capture(context.Context) (image.Image, error) {
	for i := 0; i < len(s.img.Pix); i += 4 {
		s.img.Pix[i], s.img.Pix[i+1], s.img.Pix[i+2], s.img.Pix[i+3] = s.c.R, s.c.G, s.c.B, s.c.A
	}
	return s.img, nil
}

func (s *solidScene) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		OutputVideo:  filepath.Join(root, "out", "video.mp4"),
		Width:        8,
		Height:       8,
		FPS:          10,
		Workers:      2,
		VideoEncoder: "libx264",
		Quality:      23,
		WorkDir:      filepath.Join(root, "work"),
		Audio:        config.AudioConfig{WPM: 165, SampleRate: 8000},
	}
}

func testProject(t *testing.T, cfg *config.Config, script *composition.Script) (*Project, *fakeEncoder) {
	t.Helper()
	p, err := NewProject(cfg, script, nil)
	require.NoError(t, err)
	enc := &fakeEncoder{}
	p.Encoder = enc
	p.Component = func(*composition.Script, *composition.Timeline, grid.VideoGrid) render.Component { return solid{} }
	p.Metrics = metrics.New(nil)
	p.Report = nil
	p.BenchmarkLog = ""
	return p, enc
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestRunDryRunJob(t *testing.T) {
	seed := int64(3)
	script := &composition.Script{
		Cues: []composition.Cue{
			{ID: "intro", Narration: words(33)},
			{ID: "outro", DurationSec: 1, SFX: &composition.SFXSpec{Prompt: "chime"}},
		},
		Music: &composition.MusicSpec{Prompt: "calm", DurationSec: 2, Seed: &seed},
	}
	cfg := testConfig(t)
	p, enc := testProject(t, cfg, script)

	var started Job
	p.OnStart = func(j Job) { started = j }
	var mu sync.Mutex
	seen := 0
	p.OnFrame = func(render.RenderedFrame) { mu.Lock(); seen++; mu.Unlock() }

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 134, res.Job.Grid.DurationFrames, "12s narration + padding + 1s cue at 10 fps")
	assert.Equal(t, res.Job.Grid, started.Grid)
	assert.Len(t, res.Frames, 134)
	assert.Equal(t, 134, seen)

	require.Len(t, enc.requests, 1)
	req := enc.requests[0]
	assert.Equal(t, 134, req.FrameCount)
	assert.Equal(t, 0, req.StartNumber)
	assert.Equal(t, 10, req.FPS)
	assert.Equal(t, "libx264", req.VideoEncoder)
	assert.Equal(t, render.DefaultPattern, req.Pattern)
	assert.Equal(t, filepath.Join(res.Job.WorkDir, "narration.wav"), req.AudioPath)

	require.Len(t, enc.concats, 1)
	assert.Equal(t, []string{filepath.Join(AssetsDir(cfg.OutputVideo), "narration", "intro.wav")}, enc.concats[0])

	m, err := ReadManifest(ManifestPath(cfg.OutputVideo))
	require.NoError(t, err)
	assert.Equal(t, res.Job.ID, m.JobID)
	require.Len(t, m.Assets, 3)
	assert.Equal(t, audio.KindSpeech, m.Assets[0].Kind)
	assert.InDelta(t, 12.0, m.Assets[0].DurationSec, 1e-9)
	assert.Equal(t, "outro", m.Assets[1].Key)
	assert.Equal(t, audio.KindMusic, m.Assets[2].Kind)
	require.NotNil(t, m.Assets[2].Seed)
	assert.Equal(t, int64(3), *m.Assets[2].Seed)

	assert.NoDirExists(t, res.Job.WorkDir)
	assert.Equal(t, 134.0, testutil.ToFloat64(p.Metrics.FramesRendered))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.Jobs.WithLabelValues("succeeded")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.Metrics.ActiveWorkers))
}

func TestNarrationGapsAreSilence(t *testing.T) {
	script := &composition.Script{Cues: []composition.Cue{
		{ID: "title", DurationSec: 2},
		{ID: "talk", Narration: "hello world"},
	}}
	cfg := testConfig(t)
	cfg.KeepFrames = true
	p, enc := testProject(t, cfg, script)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, enc.concats, 1)
	parts := enc.concats[0]
	require.Len(t, parts, 2)
	gap, err := audio.WAVDuration(parts[0])
	require.NoError(t, err)
	assert.Equal(t, 2.0, gap)
	assert.True(t, strings.HasSuffix(parts[1], "talk.wav"))

	assert.DirExists(t, res.Job.FramesDir)
	assert.FileExists(t, filepath.Join(res.Job.FramesDir, "frame-000000.png"))
}

func TestPreparedSoundtrackSkipsNarration(t *testing.T) {
	cfg := testConfig(t)
	cfg.AudioPath = filepath.Join(t.TempDir(), "voice.wav")
	_, err := audio.WriteSilence(cfg.AudioPath, 1, 8000)
	require.NoError(t, err)

	script := &composition.Script{Cues: []composition.Cue{{Narration: "ignored here", DurationSec: 1}}}
	p, enc := testProject(t, cfg, script)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, enc.concats)
	assert.Equal(t, cfg.AudioPath, enc.requests[0].AudioPath)
	assert.Equal(t, 10, res.Job.Grid.DurationFrames)
	assert.NoFileExists(t, ManifestPath(cfg.OutputVideo))
}

func TestMissingSoundtrackIsPrecondition(t *testing.T) {
	cfg := testConfig(t)
	script := &composition.Script{Audio: "nope.wav", Dir: t.TempDir()}
	p, enc := testProject(t, cfg, script)

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, fault.ErrPrecondition)
	assert.Empty(t, enc.requests)
}

func TestFrameRangeAndPublish(t *testing.T) {
	cfg := testConfig(t)
	script := &composition.Script{DurationSec: 3}
	p, enc := testProject(t, cfg, script)
	pub := &fakePublisher{}
	p.Publisher = pub
	p.Range = &grid.FrameRange{Start: 5, End: 9}

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Frames, 5)
	assert.Equal(t, 5, res.Frames[0].Index)
	assert.Equal(t, 5, enc.requests[0].StartNumber)
	assert.Equal(t, 5, enc.requests[0].FrameCount)
	assert.Empty(t, enc.requests[0].AudioPath)

	assert.Equal(t, []string{cfg.OutputVideo}, pub.uploads)
	require.NotNil(t, res.Job.Published)
	assert.Equal(t, res.Job.ID+"/video.mp4", res.Job.Published.Key)
}

func TestEncodeFailureKeepsWorkDir(t *testing.T) {
	cfg := testConfig(t)
	p, enc := testProject(t, cfg, &composition.Script{DurationSec: 1})
	enc.fail = fault.Wrap(fault.ErrExternalTool, "ffmpeg", "boom", errors.New("exit status 1"))

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, fault.ErrExternalTool)

	entries, err := os.ReadDir(cfg.WorkDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "work dir of the failed job stays")
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.Jobs.WithLabelValues("failed")))
}

func TestCaptureFailureStopsBeforeEncode(t *testing.T) {
	cfg := testConfig(t)
	p, enc := testProject(t, cfg, &composition.Script{DurationSec: 1})
	p.Component = func(*composition.Script, *composition.Timeline, grid.VideoGrid) render.Component { return broken{} }

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, fault.ErrCapture)
	assert.Empty(t, enc.requests)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.FramesFailed))
}

type broken struct{}

func (broken) Mount(context.Context, render.Viewport) (render.Scene, error) {
	return brokenScene{}, nil
}

type brokenScene struct{}

func (brokenScene) SeekFrame(context.Context, int) error { return errors.New("seek exploded") }
func (brokenScene) Capture(context.Context) (image.Image, error) {
	return nil, errors.New("unreachable")
}
func (brokenScene) Close() error { return nil }

func TestShowStatsReport(t *testing.T) {
	cfg := testConfig(t)
	cfg.ShowStats = true
	cfg.BuildVersion = "v-test"
	p, _ := testProject(t, cfg, &composition.Script{DurationSec: 0.5, Source: "deck.pdf"})
	var out bytes.Buffer
	p.Report = &out
	p.BenchmarkLog = filepath.Join(t.TempDir(), "benchmark.log")

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "PERFORMANCE REPORT")
	assert.Contains(t, out.String(), "v-test")

	log, err := os.ReadFile(p.BenchmarkLog)
	require.NoError(t, err)
	assert.Contains(t, string(log), "Input: deck.pdf | Frames: 5 | Workers: 2")
}

func TestNewProjectRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audio.Speech = "acme"
	_, err := NewProject(cfg, &composition.Script{}, nil)
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestNewProjectDefaults(t *testing.T) {
	p, err := NewProject(testConfig(t), &composition.Script{}, nil)
	require.NoError(t, err)
	assert.IsType(t, audio.DrySpeech{}, p.Generators.Speech)
	assert.IsType(t, audio.DryMusic{}, p.Generators.Music)
	assert.Nil(t, p.Publisher)
	require.IsType(t, &encode.FFmpegEncoder{}, p.Encoder)
	assert.Equal(t, 8000, p.Encoder.(*encode.FFmpegEncoder).AudioRate, "narration joins at the configured rate")
}

// hostedSpeech stands in for a network provider: mp3 clips of a fixed length.
type hostedSpeech struct{ sec float64 }

func (h hostedSpeech) Generate(_ context.Context, req audio.SpeechRequest) (audio.Asset, error) {
	if err := os.MkdirAll(filepath.Dir(req.OutPath), 0755); err != nil {
		return audio.Asset{}, err
	}
	if err := os.WriteFile(req.OutPath, []byte("ID3"), 0644); err != nil {
		return audio.Asset{}, err
	}
	return audio.Asset{Kind: audio.KindSpeech, Path: req.OutPath, DurationSec: h.sec, Provider: "hosted"}, nil
}

func TestHostedNarrationJoinsMixedFormats(t *testing.T) {
	script := &composition.Script{Cues: []composition.Cue{
		{ID: "title", DurationSec: 1.5},
		{ID: "talk", Narration: "hello world"},
	}}
	cfg := testConfig(t)
	cfg.KeepFrames = true
	p, enc := testProject(t, cfg, script)
	p.Generators.Speech = hostedSpeech{sec: 2}

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, enc.concats, 1)
	parts := enc.concats[0]
	require.Len(t, parts, 2)
	assert.Equal(t, ".wav", filepath.Ext(parts[0]))
	assert.Equal(t, filepath.Join(AssetsDir(cfg.OutputVideo), "narration", "talk.mp3"), parts[1])
	assert.Equal(t, filepath.Join(res.Job.WorkDir, "narration.wav"), res.Job.AudioPath)
}

func TestStats(t *testing.T) {
	s := Stats{Frames: 50}
	assert.Equal(t, 0.0, s.EffectiveFPS())
	s.Total = 2e9
	assert.Equal(t, 25.0, s.EffectiveFPS())
	assert.Contains(t, s.Table(), "Effective FPS")
}
