package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/pipeline"
)

func newAudioCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Generate a single audio asset",
	}
	cmd.AddCommand(newSpeechCommand(ctx))
	cmd.AddCommand(newSFXCommand(ctx))
	cmd.AddCommand(newMusicCommand(ctx))
	return cmd
}

func newSpeechCommand(ctx *commandContext) *cobra.Command {
	var text, voice, out string
	cmd := &cobra.Command{
		Use:   "speech",
		Short: "Synthesize narration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGenerator(ctx, cmd, func(c context.Context, cfg *config.Config) (audio.Asset, error) {
				g, err := audio.NewSpeech(cfg.Audio.Speech, pipeline.AudioSettings(cfg))
				if err != nil {
					return audio.Asset{}, err
				}
				return g.Generate(c, audio.SpeechRequest{Text: text, Voice: voice, OutPath: out})
			})
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "Text to speak")
	cmd.Flags().StringVar(&voice, "voice", "", "Provider voice")
	cmd.Flags().StringVarP(&out, "out", "o", "speech.wav", "Output file")
	cmd.Flags().String("provider", "", "Provider: "+providerList(audio.KindSpeech))
	configFlag(cmd, "provider", "audio_gen.speech")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func newSFXCommand(ctx *commandContext) *cobra.Command {
	var prompt, out string
	var duration float64
	cmd := &cobra.Command{
		Use:   "sfx",
		Short: "Generate a sound effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGenerator(ctx, cmd, func(c context.Context, cfg *config.Config) (audio.Asset, error) {
				g, err := audio.NewSFX(cfg.Audio.SFX, pipeline.AudioSettings(cfg))
				if err != nil {
					return audio.Asset{}, err
				}
				return g.Generate(c, audio.SFXRequest{Prompt: prompt, DurationSec: duration, OutPath: out})
			})
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Description of the effect")
	cmd.Flags().Float64VarP(&duration, "duration", "d", 0, "Length in seconds (0 lets the provider decide)")
	cmd.Flags().StringVarP(&out, "out", "o", "sfx.wav", "Output file")
	cmd.Flags().String("provider", "", "Provider: "+providerList(audio.KindSFX))
	configFlag(cmd, "provider", "audio_gen.sfx")
	return cmd
}

func newMusicCommand(ctx *commandContext) *cobra.Command {
	var prompt, out string
	var duration float64
	var seed int64
	cmd := &cobra.Command{
		Use:   "music",
		Short: "Generate a music bed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGenerator(ctx, cmd, func(c context.Context, cfg *config.Config) (audio.Asset, error) {
				g, err := audio.NewMusic(cfg.Audio.Music, pipeline.AudioSettings(cfg))
				if err != nil {
					return audio.Asset{}, err
				}
				req := audio.MusicRequest{Prompt: prompt, DurationSec: duration, OutPath: out}
				if cmd.Flags().Changed("seed") {
					req.Seed = &seed
				}
				return g.Generate(c, req)
			})
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Style of the music")
	cmd.Flags().Float64VarP(&duration, "duration", "d", 0, fmt.Sprintf("Length in seconds (default %.0f)", audio.DefaultMusicSec))
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for reproducible output")
	cmd.Flags().StringVarP(&out, "out", "o", "music.wav", "Output file")
	cmd.Flags().String("provider", "", "Provider: "+providerList(audio.KindMusic))
	configFlag(cmd, "provider", "audio_gen.music")
	return cmd
}

func withGenerator(ctx *commandContext, cmd *cobra.Command, generate func(context.Context, *config.Config) (audio.Asset, error)) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	asset, err := generate(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	logger.Info("audio generated",
		zap.String("kind", string(asset.Kind)),
		zap.String("provider", asset.Provider),
		zap.Float64("duration_sec", asset.DurationSec))

	data, err := yaml.Marshal(asset)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func providerList(kind audio.Kind) string {
	return strings.Join(audio.Providers(kind), ", ")
}
