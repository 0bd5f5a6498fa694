package audio

import (
	"context"
	"net/http"
)

const (
	openAIName      = "openai"
	openAIBaseURL   = "https://api.openai.com"
	openAIModel     = "tts-1"
	openAIVoice     = "alloy"
	openAITextLimit = 4096
)

// OpenAISpeech synthesizes narration with the OpenAI speech endpoint.
type OpenAISpeech struct {
	c     *client
	Voice string
	Model string
}

func NewOpenAISpeech(apiKey string, opts ...Option) (*OpenAISpeech, error) {
	if err := requireKey(openAIName, apiKey); err != nil {
		return nil, err
	}
	auth := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+apiKey) }
	return &OpenAISpeech{
		c:     newClient(openAIName, openAIBaseURL, auth, opts),
		Voice: openAIVoice,
		Model: openAIModel,
	}, nil
}

func (g *OpenAISpeech) Generate(ctx context.Context, req SpeechRequest) (Asset, error) {
	if err := requireOut("speech", req.OutPath); err != nil {
		return Asset{}, err
	}
	if err := checkText(openAIName, req.Text, openAITextLimit); err != nil {
		return Asset{}, err
	}
	voice := req.Voice
	if voice == "" {
		voice = g.Voice
	}

	payload := map[string]any{
		"model":           g.Model,
		"input":           req.Text,
		"voice":           voice,
		"response_format": "wav",
	}
	if err := g.c.download(ctx, "/v1/audio/speech", nil, payload, req.OutPath); err != nil {
		return Asset{}, err
	}
	sec, err := g.c.measure(ctx, req.OutPath)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Kind: KindSpeech, Path: req.OutPath, DurationSec: sec, Provider: openAIName}, nil
}
