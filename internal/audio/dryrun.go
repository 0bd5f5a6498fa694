package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ivlev/scene2video/internal/fault"
)

const dryRunProvider = "dry-run"

// DrySpeech writes silence as long as the text takes to read.
type DrySpeech struct {
	WPM        int
	SampleRate int
}

func (g DrySpeech) Generate(ctx context.Context, req SpeechRequest) (Asset, error) {
	if err := requireOut("speech", req.OutPath); err != nil {
		return Asset{}, err
	}
	sec, err := WriteSilence(req.OutPath, SpeechSeconds(req.Text, g.WPM), g.SampleRate)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Kind: KindSpeech, Path: req.OutPath, DurationSec: sec, Provider: dryRunProvider}, nil
}

// DrySFX writes silence of the requested length, DefaultSFXSec when unset.
type DrySFX struct {
	SampleRate int
}

func (g DrySFX) Generate(ctx context.Context, req SFXRequest) (Asset, error) {
	if err := requireOut("sfx", req.OutPath); err != nil {
		return Asset{}, err
	}
	want, err := positiveOr(req.DurationSec, DefaultSFXSec)
	if err != nil {
		return Asset{}, fault.Wrap(fault.ErrConfiguration, "sfx", "", err)
	}
	sec, err := WriteSilence(req.OutPath, want, g.SampleRate)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Kind: KindSFX, Path: req.OutPath, DurationSec: sec, Provider: dryRunProvider}, nil
}

// DryMusic writes silence of exactly the requested length.
type DryMusic struct {
	SampleRate int
}

func (g DryMusic) Generate(ctx context.Context, req MusicRequest) (Asset, error) {
	if err := requireOut("music", req.OutPath); err != nil {
		return Asset{}, err
	}
	want, err := positiveOr(req.DurationSec, DefaultMusicSec)
	if err != nil {
		return Asset{}, fault.Wrap(fault.ErrConfiguration, "music", "", err)
	}
	sec, err := WriteSilence(req.OutPath, want, g.SampleRate)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Kind: KindMusic, Path: req.OutPath, DurationSec: sec, Seed: req.Seed, Provider: dryRunProvider}, nil
}

const silenceChunk = 1 << 15

// WriteSilence writes a mono 16-bit PCM WAV of round(sec*rate) samples and
// returns its exact duration.
func WriteSilence(path string, sec float64, rate int) (float64, error) {
	if rate == 0 {
		rate = DefaultSampleRate
	}
	if err := CheckSampleRate(rate); err != nil {
		return 0, err
	}
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec <= 0 {
		return 0, fault.Wrap(fault.ErrConfiguration, "audio", fmt.Sprintf("invalid duration %v", sec), nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, err
	}

	samples := int(math.Round(sec * float64(rate)))
	if samples < 1 {
		samples = 1
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		SourceBitDepth: 16,
	}
	for left := samples; left > 0; {
		n := min(left, silenceChunk)
		buf.Data = make([]int, n)
		if err := enc.Write(buf); err != nil {
			f.Close()
			return 0, fmt.Errorf("write %s: %w", path, err)
		}
		left -= n
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return 0, fmt.Errorf("finish %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return float64(samples) / float64(rate), nil
}

// WAVDuration decodes the header of a PCM WAV and returns samples / rate.
func WAVDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	frameBytes := int64(dec.NumChans) * int64(dec.BitDepth/8)
	if frameBytes == 0 || dec.SampleRate == 0 {
		return 0, fmt.Errorf("%s: empty format", path)
	}
	return float64(dec.PCMLen()/frameBytes) / float64(dec.SampleRate), nil
}

// ProbeWAV is a Prober for WAV files that needs no external tools.
func ProbeWAV(_ context.Context, path string) (float64, error) {
	return WAVDuration(path)
}
