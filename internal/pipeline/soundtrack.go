package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/composition"
	"github.com/ivlev/scene2video/internal/fault"
)

// gapEpsilon is the shortest silence inserted between narration clips.
const gapEpsilon = 1e-3

type soundtrack struct {
	narration map[string]float64
	clips     map[string]string
}

// AssetsDir holds the generated audio next to the output video.
func AssetsDir(output string) string {
	return filepath.Join(filepath.Dir(output), "assets")
}

// ManifestPath is the asset manifest written next to the output video.
func ManifestPath(output string) string {
	return filepath.Join(filepath.Dir(output), "assets.yaml")
}

// prepareAudio generates narration, sound effects and music. A prepared
// soundtrack, from the config or the script, replaces narration entirely.
func (p *Project) prepareAudio(ctx context.Context, job *Job, logger *zap.Logger) (soundtrack, error) {
	track := soundtrack{narration: map[string]float64{}, clips: map[string]string{}}
	dir := AssetsDir(job.Output)
	gens := p.Generators

	prepared := p.Config.AudioPath
	if prepared == "" && p.Script.Audio != "" {
		prepared = p.Script.ResolvePath(p.Script.Audio)
	}
	if prepared != "" {
		if _, err := os.Stat(prepared); err != nil {
			return track, fault.Wrap(fault.ErrPrecondition, "audio", "soundtrack", err)
		}
		job.AudioPath = prepared
		logger.Info("using prepared soundtrack", zap.String("path", prepared))
	}

	for i, cue := range p.Script.Cues {
		key := cue.Key(i)

		if prepared == "" && gens.Speech != nil && strings.TrimSpace(cue.Narration) != "" {
			asset, err := gens.Speech.Generate(ctx, audio.SpeechRequest{
				Text:    cue.Narration,
				Voice:   p.Config.Audio.Voice,
				OutPath: filepath.Join(dir, "narration", key+extension(gens.Speech)),
			})
			if err != nil {
				return track, fmt.Errorf("narration for cue %s: %w", key, err)
			}
			asset.Key = key
			job.Assets = append(job.Assets, asset)
			track.narration[key] = asset.DurationSec
			track.clips[key] = asset.Path
			logger.Debug("narration generated", zap.String("cue", key), zap.Float64("duration_sec", asset.DurationSec))
		}

		if gens.SFX != nil && cue.SFX != nil {
			asset, err := gens.SFX.Generate(ctx, audio.SFXRequest{
				Prompt:      cue.SFX.Prompt,
				DurationSec: cue.SFX.DurationSec,
				OutPath:     filepath.Join(dir, "sfx", key+extension(gens.SFX)),
			})
			if err != nil {
				return track, fmt.Errorf("sound effect for cue %s: %w", key, err)
			}
			asset.Key = key
			job.Assets = append(job.Assets, asset)
		}
	}

	if m := p.Script.Music; m != nil && gens.Music != nil {
		asset, err := gens.Music.Generate(ctx, audio.MusicRequest{
			Prompt:      m.Prompt,
			DurationSec: m.DurationSec,
			Seed:        m.Seed,
			OutPath:     filepath.Join(dir, "music"+extension(gens.Music)),
		})
		if err != nil {
			return track, fmt.Errorf("music: %w", err)
		}
		asset.Key = "music"
		job.Assets = append(job.Assets, asset)
	}
	return track, nil
}

// mixNarration lays the narration clips on the timeline, filling the time
// before each cue with silence, and joins them into one track.
func (p *Project) mixNarration(ctx context.Context, job *Job, track soundtrack, logger *zap.Logger) error {
	if job.AudioPath != "" || len(track.clips) == 0 {
		return nil
	}

	cues := append([]composition.TimedCue(nil), job.Timeline.Cues...)
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].StartSec < cues[j].StartSec })

	rate := p.Config.Audio.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	var parts []string
	cursor := 0.0
	for _, tc := range cues {
		clip, ok := track.clips[tc.Key]
		if !ok {
			continue
		}
		switch gap := tc.StartSec - cursor; {
		case gap > gapEpsilon:
			path := filepath.Join(job.WorkDir, "audio", fmt.Sprintf("gap-%03d.wav", len(parts)))
			written, err := audio.WriteSilence(path, gap, rate)
			if err != nil {
				return err
			}
			parts = append(parts, path)
			cursor += written
		case gap < -gapEpsilon:
			logger.Warn("narration overlaps previous cue",
				zap.String("cue", tc.Key), zap.Float64("late_sec", -gap))
		}
		parts = append(parts, clip)
		cursor += track.narration[tc.Key]
	}

	out := filepath.Join(job.WorkDir, "narration.wav")
	if err := p.Encoder.ConcatAudio(ctx, parts, out); err != nil {
		return err
	}
	job.AudioPath = out
	logger.Info("narration track assembled", zap.Int("clips", len(track.clips)), zap.Float64("duration_sec", cursor))
	return nil
}

// extension picks the file type a generator writes.
func extension(g any) string {
	switch g.(type) {
	case audio.DrySpeech, audio.DrySFX, audio.DryMusic, *audio.OpenAISpeech:
		return ".wav"
	default:
		return ".mp3"
	}
}

// Manifest lists the audio generated for a job.
type Manifest struct {
	JobID  string        `yaml:"jobId,omitempty"`
	Assets []audio.Asset `yaml:"assets"`
}

func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}
