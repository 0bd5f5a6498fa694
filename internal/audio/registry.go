package audio

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ivlev/scene2video/internal/fault"
)

// Settings carry everything a provider may need. Only the fields of the
// selected provider are read.
type Settings struct {
	WPM        int
	SampleRate int
	Voice      string

	ElevenLabsKey     string
	ElevenLabsBaseURL string
	OpenAIKey         string
	OpenAIBaseURL     string

	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
	Prober            Prober
}

func (s Settings) options(baseURL string) []Option {
	opts := []Option{WithBaseURL(baseURL), WithRateLimit(s.RequestsPerSecond), WithProber(s.Prober)}
	hc := s.HTTPClient
	if hc == nil && s.Timeout > 0 {
		hc = &http.Client{Timeout: s.Timeout}
	}
	return append(opts, WithHTTPClient(hc))
}

func (s Settings) elevenLabs() (*ElevenLabs, error) {
	e, err := NewElevenLabs(s.ElevenLabsKey, s.options(s.ElevenLabsBaseURL)...)
	if err != nil {
		return nil, err
	}
	if s.Voice != "" {
		e.Voice = s.Voice
	}
	return e, nil
}

var speechProviders = map[string]func(Settings) (SpeechGenerator, error){
	"dry-run": func(s Settings) (SpeechGenerator, error) {
		return DrySpeech{WPM: s.WPM, SampleRate: s.SampleRate}, nil
	},
	"elevenlabs": func(s Settings) (SpeechGenerator, error) {
		e, err := s.elevenLabs()
		if err != nil {
			return nil, err
		}
		return e.Speech(), nil
	},
	"openai": func(s Settings) (SpeechGenerator, error) {
		g, err := NewOpenAISpeech(s.OpenAIKey, s.options(s.OpenAIBaseURL)...)
		if err != nil {
			return nil, err
		}
		if s.Voice != "" {
			g.Voice = s.Voice
		}
		return g, nil
	},
}

var sfxProviders = map[string]func(Settings) (SFXGenerator, error){
	"dry-run": func(s Settings) (SFXGenerator, error) {
		return DrySFX{SampleRate: s.SampleRate}, nil
	},
	"elevenlabs": func(s Settings) (SFXGenerator, error) {
		e, err := s.elevenLabs()
		if err != nil {
			return nil, err
		}
		return e.SFX(), nil
	},
}

var musicProviders = map[string]func(Settings) (MusicGenerator, error){
	"dry-run": func(s Settings) (MusicGenerator, error) {
		return DryMusic{SampleRate: s.SampleRate}, nil
	},
	"elevenlabs": func(s Settings) (MusicGenerator, error) {
		e, err := s.elevenLabs()
		if err != nil {
			return nil, err
		}
		return e.Music(), nil
	},
}

// NewSpeech returns the named speech generator.
func NewSpeech(name string, s Settings) (SpeechGenerator, error) {
	build, err := lookup(speechProviders, "speech", name)
	if err != nil {
		return nil, err
	}
	return build(s)
}

// NewSFX returns the named sound effect generator.
func NewSFX(name string, s Settings) (SFXGenerator, error) {
	build, err := lookup(sfxProviders, "sfx", name)
	if err != nil {
		return nil, err
	}
	return build(s)
}

// NewMusic returns the named music generator.
func NewMusic(name string, s Settings) (MusicGenerator, error) {
	build, err := lookup(musicProviders, "music", name)
	if err != nil {
		return nil, err
	}
	return build(s)
}

// Providers lists the accepted provider names for a kind.
func Providers(kind Kind) []string {
	switch kind {
	case KindSpeech:
		return names(speechProviders)
	case KindSFX:
		return names(sfxProviders)
	case KindMusic:
		return names(musicProviders)
	}
	return nil
}

func lookup[T any](m map[string]T, kind, name string) (T, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "dry-run"
	}
	if build, ok := m[key]; ok {
		return build, nil
	}
	var zero T
	return zero, fault.Wrap(fault.ErrConfiguration, kind+" provider",
		fmt.Sprintf("unknown provider %q (want one of %s)", name, strings.Join(names(m), ", ")), nil)
}

func names[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
