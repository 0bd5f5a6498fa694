package audio

import (
	"context"
	"math"
	"net/http"
	"net/url"
)

const (
	elevenLabsName      = "elevenlabs"
	elevenLabsBaseURL   = "https://api.elevenlabs.io"
	elevenLabsVoice     = "21m00Tcm4TlvDq8N6UM9"
	elevenLabsModel     = "eleven_multilingual_v2"
	elevenLabsTextLimit = 5000
)

// ElevenLabs talks to the ElevenLabs speech, sound effect and music APIs.
type ElevenLabs struct {
	c     *client
	Voice string
	Model string
}

func NewElevenLabs(apiKey string, opts ...Option) (*ElevenLabs, error) {
	if err := requireKey(elevenLabsName, apiKey); err != nil {
		return nil, err
	}
	auth := func(r *http.Request) { r.Header.Set("xi-api-key", apiKey) }
	return &ElevenLabs{
		c:     newClient(elevenLabsName, elevenLabsBaseURL, auth, opts),
		Voice: elevenLabsVoice,
		Model: elevenLabsModel,
	}, nil
}

type elevenLabsSpeech struct{ *ElevenLabs }
type elevenLabsSFX struct{ *ElevenLabs }
type elevenLabsMusic struct{ *ElevenLabs }

func (e *ElevenLabs) Speech() SpeechGenerator { return elevenLabsSpeech{e} }
func (e *ElevenLabs) SFX() SFXGenerator       { return elevenLabsSFX{e} }
func (e *ElevenLabs) Music() MusicGenerator   { return elevenLabsMusic{e} }

func (g elevenLabsSpeech) Generate(ctx context.Context, req SpeechRequest) (Asset, error) {
	if err := requireOut("speech", req.OutPath); err != nil {
		return Asset{}, err
	}
	if err := checkText(elevenLabsName, req.Text, elevenLabsTextLimit); err != nil {
		return Asset{}, err
	}
	voice := req.Voice
	if voice == "" {
		voice = g.Voice
	}

	payload := map[string]any{"text": req.Text, "model_id": g.Model}
	query := url.Values{"output_format": {"mp3_44100_128"}}
	if err := g.c.download(ctx, "/v1/text-to-speech/"+url.PathEscape(voice), query, payload, req.OutPath); err != nil {
		return Asset{}, err
	}
	sec, err := g.c.measure(ctx, req.OutPath)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Kind: KindSpeech, Path: req.OutPath, DurationSec: sec, Provider: elevenLabsName}, nil
}

func (g elevenLabsSFX) Generate(ctx context.Context, req SFXRequest) (Asset, error) {
	if err := requireOut("sfx", req.OutPath); err != nil {
		return Asset{}, err
	}
	payload := map[string]any{"text": req.Prompt}
	if req.DurationSec != 0 {
		if err := SFXBounds.Check("sfx", req.DurationSec); err != nil {
			return Asset{}, err
		}
		payload["duration_seconds"] = req.DurationSec
	}

	if err := g.c.download(ctx, "/v1/sound-generation", nil, payload, req.OutPath); err != nil {
		return Asset{}, err
	}
	sec, err := g.c.measure(ctx, req.OutPath)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Kind: KindSFX, Path: req.OutPath, DurationSec: sec, Provider: elevenLabsName}, nil
}

func (g elevenLabsMusic) Generate(ctx context.Context, req MusicRequest) (Asset, error) {
	if err := requireOut("music", req.OutPath); err != nil {
		return Asset{}, err
	}
	want := req.DurationSec
	if want == 0 {
		want = DefaultMusicSec
	}
	if err := MusicBounds.Check("music", want); err != nil {
		return Asset{}, err
	}

	payload := map[string]any{
		"prompt":          req.Prompt,
		"music_length_ms": int(math.Round(want * 1000)),
	}
	if req.Seed != nil {
		payload["seed"] = *req.Seed
	}
	if err := g.c.download(ctx, "/v1/music", nil, payload, req.OutPath); err != nil {
		return Asset{}, err
	}
	sec, err := g.c.measure(ctx, req.OutPath)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Kind: KindMusic, Path: req.OutPath, DurationSec: sec, Seed: req.Seed, Provider: elevenLabsName}, nil
}
