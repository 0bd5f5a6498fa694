// Package pipeline runs a render job end to end: audio assets, timeline,
// frame grid, parallel frame capture, encode, publish and report.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/composition"
	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/encode"
	"github.com/ivlev/scene2video/internal/fault"
	"github.com/ivlev/scene2video/internal/grid"
	"github.com/ivlev/scene2video/internal/metrics"
	"github.com/ivlev/scene2video/internal/publish"
	"github.com/ivlev/scene2video/internal/render"
	"github.com/ivlev/scene2video/internal/scene"
	"github.com/ivlev/scene2video/internal/system"
)

// Encoder is the part of encode.FFmpegEncoder a job needs.
type Encoder interface {
	Encode(ctx context.Context, req encode.Request) error
	ConcatAudio(ctx context.Context, paths []string, out string) error
}

type Publisher interface {
	Upload(ctx context.Context, jobID, file string) (publish.Object, error)
}

// Generators produce the audio assets of a job.
type Generators struct {
	Speech audio.SpeechGenerator
	SFX    audio.SFXGenerator
	Music  audio.MusicGenerator
}

// ComponentFunc builds the render component for a laid-out composition.
type ComponentFunc func(script *composition.Script, timeline *composition.Timeline, g grid.VideoGrid) render.Component

// Job is one render of a composition.
type Job struct {
	ID        string
	Grid      grid.VideoGrid
	Range     grid.FrameRange
	WorkDir   string
	FramesDir string
	Pattern   string
	AudioPath string
	Output    string
	Timeline  *composition.Timeline
	Assets    []audio.Asset
	Published *publish.Object
}

// Result is a finished job.
type Result struct {
	Job    Job
	Frames []render.RenderedFrame
	Stats  Stats
}

// Project wires a composition to its collaborators.
type Project struct {
	Config     *config.Config
	Script     *composition.Script
	Generators Generators
	Encoder    Encoder
	Publisher  Publisher
	Metrics    *metrics.Recorder
	Logger     *zap.Logger

	// Component defaults to the built-in scene.
	Component ComponentFunc
	// Range limits rendering to part of the grid.
	Range *grid.FrameRange

	// OnStart receives the job before the first frame is rendered.
	OnStart func(Job)
	OnFrame func(render.RenderedFrame)

	// Report receives the performance table when ShowStats is set.
	Report       io.Writer
	BenchmarkLog string
}

// NewProject builds a project from configuration, resolving audio
// providers and the optional publisher.
func NewProject(cfg *config.Config, script *composition.Script, logger *zap.Logger) (*Project, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := AudioSettings(cfg)

	var gens Generators
	var err error
	if gens.Speech, err = audio.NewSpeech(cfg.Audio.Speech, settings); err != nil {
		return nil, err
	}
	if gens.SFX, err = audio.NewSFX(cfg.Audio.SFX, settings); err != nil {
		return nil, err
	}
	if gens.Music, err = audio.NewMusic(cfg.Audio.Music, settings); err != nil {
		return nil, err
	}

	p := &Project{
		Config:       cfg,
		Script:       script,
		Generators:   gens,
		Encoder:      newEncoder(cfg),
		Logger:       logger,
		Report:       os.Stdout,
		BenchmarkLog: "benchmark.log",
	}
	if cfg.Storage.Enabled() {
		pub, err := publish.New(cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		p.Publisher = pub
	}
	return p, nil
}

func newEncoder(cfg *config.Config) *encode.FFmpegEncoder {
	enc := encode.NewFFmpegEncoder()
	enc.AudioRate = cfg.Audio.SampleRate
	return enc
}

// AudioSettings maps configuration onto audio provider settings.
func AudioSettings(cfg *config.Config) audio.Settings {
	return audio.Settings{
		WPM:               cfg.Audio.WPM,
		SampleRate:        cfg.Audio.SampleRate,
		Voice:             cfg.Audio.Voice,
		ElevenLabsKey:     cfg.Providers.ElevenLabsAPIKey,
		ElevenLabsBaseURL: cfg.Providers.ElevenLabsBaseURL,
		OpenAIKey:         cfg.Providers.OpenAIAPIKey,
		OpenAIBaseURL:     cfg.Providers.OpenAIBaseURL,
		RequestsPerSecond: cfg.Providers.RequestsPerSecond,
		Timeout:           cfg.Providers.Timeout,
	}
}

// Run renders the composition to the configured output. The work directory
// is kept when the job fails so its frames can be inspected.
func (p *Project) Run(ctx context.Context) (*Result, error) {
	if p.Config == nil || p.Script == nil {
		return nil, fault.Wrap(fault.ErrConfiguration, "pipeline", "config and script are required", nil)
	}
	if p.Encoder == nil {
		return nil, fault.Wrap(fault.ErrConfiguration, "pipeline", "encoder not set", nil)
	}
	cfg := p.Config
	stats := Stats{Build: cfg.BuildVersion, Started: time.Now()}

	job := Job{ID: uuid.NewString(), Output: cfg.OutputVideo, Pattern: cfg.FramePattern}
	if job.Pattern == "" {
		job.Pattern = render.DefaultPattern
	}
	if job.Output == "" {
		job.Output = "output.mp4"
	}
	logger := p.logger().With(zap.String("job_id", job.ID))

	workDir, err := p.makeWorkDir(job.ID)
	if err != nil {
		return nil, err
	}
	job.WorkDir = workDir
	job.FramesDir = filepath.Join(workDir, "frames")
	logger.Info("job started", zap.String("work_dir", workDir), zap.String("output", job.Output))

	result, err := p.run(ctx, &job, &stats, logger)
	if err != nil {
		p.Metrics.JobDone("failed")
		logger.Error("job failed", zap.Error(err), zap.String("work_dir", workDir))
		return nil, err
	}
	p.Metrics.JobDone("succeeded")

	if cfg.KeepFrames {
		logger.Info("frames kept", zap.String("dir", job.FramesDir))
	} else if err := os.RemoveAll(workDir); err != nil {
		logger.Warn("work dir cleanup failed", zap.Error(err))
	}
	return result, nil
}

func (p *Project) run(ctx context.Context, job *Job, stats *Stats, logger *zap.Logger) (*Result, error) {
	cfg := p.Config

	audioStart := time.Now()
	track, err := p.prepareAudio(ctx, job, logger)
	if err != nil {
		return nil, err
	}
	stats.Audio = time.Since(audioStart)

	job.Timeline = composition.NewTimeline(p.Script, track.narration)
	for _, w := range job.Timeline.Warnings {
		logger.Warn("cue start fallback", zap.String("detail", w))
	}

	if err := p.mixNarration(ctx, job, track, logger); err != nil {
		return nil, err
	}

	job.Grid = grid.Derive(p.Script, job.Timeline, grid.Overrides{
		FPS:         cfg.FPS,
		Width:       cfg.Width,
		Height:      cfg.Height,
		DurationSec: cfg.DurationSec,
	})
	job.Range = job.Grid.Full()
	if p.Range != nil {
		job.Range = job.Grid.Clamp(p.Range.Start, p.Range.End)
	}
	logger.Info("frame grid",
		zap.Int("fps", job.Grid.FPS),
		zap.Int("width", job.Grid.Width),
		zap.Int("height", job.Grid.Height),
		zap.Int("frames", job.Grid.DurationFrames),
		zap.Int("range_start", job.Range.Start),
		zap.Int("range_end", job.Range.End))

	workers := cfg.Workers
	if workers <= 0 {
		workers = system.DefaultWorkers()
	}
	p.Metrics.SetWorkers(workers)
	defer p.Metrics.SetWorkers(0)

	if p.OnStart != nil {
		p.OnStart(*job)
	}

	renderStart := time.Now()
	frames, err := render.RenderFrames(ctx, p.component(job), render.Options{
		Grid:              job.Grid,
		Range:             &job.Range,
		Workers:           workers,
		OutDir:            job.FramesDir,
		Pattern:           job.Pattern,
		DeviceScaleFactor: cfg.ScaleFactor,
		FrameTimeout:      cfg.FrameTimeout,
		OnFrame: func(f render.RenderedFrame) {
			p.Metrics.ObserveFrame(f.Took)
			if p.OnFrame != nil {
				p.OnFrame(f)
			}
		},
		Logger: logger,
	})
	stats.Render = time.Since(renderStart)
	if err != nil {
		p.Metrics.FrameFailed()
		return nil, err
	}
	stats.Frames = len(frames)
	stats.Workers = workers

	encodeStart := time.Now()
	if err := p.Encoder.Encode(ctx, encode.Request{
		FramesDir:    job.FramesDir,
		Pattern:      job.Pattern,
		FPS:          job.Grid.FPS,
		StartNumber:  job.Range.Start,
		FrameCount:   len(frames),
		OutputPath:   job.Output,
		AudioPath:    job.AudioPath,
		VideoEncoder: p.videoEncoder(ctx),
		Quality:      cfg.Quality,
	}); err != nil {
		return nil, err
	}
	stats.Encode = time.Since(encodeStart)
	p.Metrics.ObserveEncode(stats.Encode)
	logger.Info("video encoded", zap.String("output", job.Output), zap.Int("frames", len(frames)))

	if len(job.Assets) > 0 {
		if err := WriteManifest(ManifestPath(job.Output), Manifest{JobID: job.ID, Assets: job.Assets}); err != nil {
			return nil, err
		}
	}

	if p.Publisher != nil {
		publishStart := time.Now()
		obj, err := p.Publisher.Upload(ctx, job.ID, job.Output)
		if err != nil {
			return nil, err
		}
		job.Published = &obj
		stats.Publish = time.Since(publishStart)
	}

	stats.Total = time.Since(stats.Started)
	if cfg.ShowStats {
		p.report(*job, *stats, logger)
	}
	return &Result{Job: *job, Frames: frames, Stats: *stats}, nil
}

func (p *Project) component(job *Job) render.Component {
	if p.Component != nil {
		return p.Component(p.Script, job.Timeline, job.Grid)
	}
	c := scene.New(p.Script, job.Timeline, job.Grid.FPS)
	if p.Config.DPI > 0 {
		c.DPI = p.Config.DPI
	}
	c.Logger = p.logger()
	return c
}

func (p *Project) videoEncoder(ctx context.Context) string {
	switch p.Config.VideoEncoder {
	case "", "auto":
		return system.BestH264Encoder(ctx)
	default:
		return p.Config.VideoEncoder
	}
}

func (p *Project) makeWorkDir(jobID string) (string, error) {
	if p.Config.WorkDir == "" {
		dir, err := os.MkdirTemp("", "scene2video_")
		if err != nil {
			return "", fault.Wrap(fault.ErrConfiguration, "pipeline", "create work dir", err)
		}
		return dir, nil
	}
	dir := filepath.Join(p.Config.WorkDir, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fault.Wrap(fault.ErrConfiguration, "pipeline", fmt.Sprintf("create work dir %s", dir), err)
	}
	return dir, nil
}

func (p *Project) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
