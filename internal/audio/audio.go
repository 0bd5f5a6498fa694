// Package audio produces the speech, sound effect and music assets of a
// composition. Every generator reports the true duration of the file it
// wrote; that duration is what the timeline is built from.
package audio

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ivlev/scene2video/internal/fault"
)

type Kind string

const (
	KindSpeech Kind = "speech"
	KindSFX    Kind = "sfx"
	KindMusic  Kind = "music"
)

const (
	DefaultWPM        = 165
	DefaultSampleRate = 44100
	MinSpeechSec      = 0.25
	DefaultSFXSec     = 0.4
	DefaultMusicSec   = 30.0
)

// Asset is a generated audio file. Nothing else about a provider reaches
// the render core.
type Asset struct {
	Kind        Kind    `yaml:"kind"`
	Key         string  `yaml:"key,omitempty"`
	Path        string  `yaml:"path"`
	DurationSec float64 `yaml:"durationSec"`
	Seed        *int64  `yaml:"seed,omitempty"`
	Provider    string  `yaml:"provider"`
}

type SpeechRequest struct {
	Text    string
	Voice   string
	OutPath string
}

type SFXRequest struct {
	Prompt      string
	DurationSec float64 // zero picks the default
	OutPath     string
}

type MusicRequest struct {
	Prompt      string
	DurationSec float64 // zero picks the default
	Seed        *int64
	OutPath     string
}

type SpeechGenerator interface {
	Generate(ctx context.Context, req SpeechRequest) (Asset, error)
}

type SFXGenerator interface {
	Generate(ctx context.Context, req SFXRequest) (Asset, error)
}

type MusicGenerator interface {
	Generate(ctx context.Context, req MusicRequest) (Asset, error)
}

// Prober measures the duration of an audio file in seconds.
type Prober func(ctx context.Context, path string) (float64, error)

// Bounds is an inclusive duration range in seconds.
type Bounds struct {
	Min, Max float64
}

var (
	MusicBounds = Bounds{Min: 3, Max: 600}
	SFXBounds   = Bounds{Min: 0.5, Max: 22}
)

// Check rejects durations outside b.
func (b Bounds) Check(what string, sec float64) error {
	if math.IsNaN(sec) || sec < b.Min || sec > b.Max {
		return fault.Wrap(fault.ErrConfiguration, what, fmt.Sprintf("duration %gs outside [%g, %g]", sec, b.Min, b.Max), nil)
	}
	return nil
}

var sampleRates = map[int]bool{8000: true, 16000: true, 22050: true, 24000: true, 44100: true, 48000: true}

// CheckSampleRate accepts the common PCM rates.
func CheckSampleRate(rate int) error {
	if !sampleRates[rate] {
		return fault.Wrap(fault.ErrConfiguration, "audio", fmt.Sprintf("unsupported sample rate %d", rate), nil)
	}
	return nil
}

// SpeechSeconds estimates how long text takes to read at wpm words per
// minute, never less than MinSpeechSec.
func SpeechSeconds(text string, wpm int) float64 {
	if wpm <= 0 {
		wpm = DefaultWPM
	}
	words := len(strings.Fields(text))
	return math.Max(MinSpeechSec, float64(words)/float64(wpm)*60)
}

func requireOut(what, path string) error {
	if strings.TrimSpace(path) == "" {
		return fault.Wrap(fault.ErrConfiguration, what, "output path not set", nil)
	}
	return nil
}

func positiveOr(v, fallback float64) (float64, error) {
	if v == 0 {
		return fallback, nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("invalid duration %v", v)
	}
	return v, nil
}
