// Package config loads render settings with viper: a base scene2video.yaml,
// per-environment overlays and S2V_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ivlev/scene2video/internal/fault"
)

const (
	ConfigName = "scene2video"
	EnvPrefix  = "S2V"
)

// Environments is the fallback order consulted for environment overlays.
var Environments = []string{"production", "staging", "development", "test"}

// EnvironmentChain returns the environments to consult for current, most
// specific first. A known environment yields the list from its position on;
// an unknown one is put in front of the full list.
func EnvironmentChain(current string) []string {
	current = strings.ToLower(strings.TrimSpace(current))
	for i, env := range Environments {
		if env == current {
			return append([]string(nil), Environments[i:]...)
		}
	}
	if current == "" {
		return append([]string(nil), Environments...)
	}
	return append([]string{current}, Environments...)
}

type Config struct {
	Environment string `mapstructure:"environment"`

	Script       string        `mapstructure:"script"`
	OutputVideo  string        `mapstructure:"output"`
	Width        int           `mapstructure:"width"`
	Height       int           `mapstructure:"height"`
	FPS          int           `mapstructure:"fps"`
	DurationSec  float64       `mapstructure:"duration"`
	Workers      int           `mapstructure:"workers"`
	DPI          int           `mapstructure:"dpi"`
	ScaleFactor  float64       `mapstructure:"device_scale_factor"`
	AudioPath    string        `mapstructure:"audio"`
	VideoEncoder string        `mapstructure:"video_encoder"` // "auto" probes ffmpeg
	Quality      int           `mapstructure:"quality"`
	FramePattern string        `mapstructure:"frame_pattern"`
	WorkDir      string        `mapstructure:"work_dir"`
	KeepFrames   bool          `mapstructure:"keep_frames"`
	FrameTimeout time.Duration `mapstructure:"frame_timeout"`
	ShowStats    bool          `mapstructure:"show_stats"`
	BuildVersion string        `mapstructure:"build_version"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`

	Log       LogConfig      `mapstructure:"log"`
	Audio     AudioConfig    `mapstructure:"audio_gen"`
	Providers ProviderConfig `mapstructure:"providers"`
	Storage   StorageConfig  `mapstructure:"storage"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AudioConfig selects the generator for each asset kind.
type AudioConfig struct {
	Speech     string `mapstructure:"speech"`
	SFX        string `mapstructure:"sfx"`
	Music      string `mapstructure:"music"`
	WPM        int    `mapstructure:"wpm"`
	SampleRate int    `mapstructure:"sample_rate"`
	Voice      string `mapstructure:"voice"`
}

type ProviderConfig struct {
	ElevenLabsAPIKey  string        `mapstructure:"elevenlabs_api_key"`
	ElevenLabsBaseURL string        `mapstructure:"elevenlabs_base_url"`
	OpenAIAPIKey      string        `mapstructure:"openai_api_key"`
	OpenAIBaseURL     string        `mapstructure:"openai_base_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// StorageConfig points at an S3-compatible bucket for finished videos.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether publishing is configured.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// SetDefaults registers every key so environment variables are seen by
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("script", "")
	v.SetDefault("output", "output.mp4")
	v.SetDefault("width", 0)
	v.SetDefault("height", 0)
	v.SetDefault("fps", 0)
	v.SetDefault("duration", 0.0)
	v.SetDefault("workers", 0)
	v.SetDefault("dpi", 150)
	v.SetDefault("device_scale_factor", 1.0)
	v.SetDefault("audio", "")
	v.SetDefault("video_encoder", "auto")
	v.SetDefault("quality", 0) // 0 picks per encoder
	v.SetDefault("frame_pattern", "frame-%06d.png")
	v.SetDefault("work_dir", "")
	v.SetDefault("keep_frames", false)
	v.SetDefault("frame_timeout", 30*time.Second)
	v.SetDefault("show_stats", false)
	v.SetDefault("build_version", "dev")
	v.SetDefault("metrics_addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("audio_gen.speech", "dry-run")
	v.SetDefault("audio_gen.sfx", "dry-run")
	v.SetDefault("audio_gen.music", "dry-run")
	v.SetDefault("audio_gen.wpm", 165)
	v.SetDefault("audio_gen.sample_rate", 44100)
	v.SetDefault("audio_gen.voice", "")

	v.SetDefault("providers.elevenlabs_api_key", "")
	v.SetDefault("providers.elevenlabs_base_url", "https://api.elevenlabs.io")
	v.SetDefault("providers.openai_api_key", "")
	v.SetDefault("providers.openai_base_url", "https://api.openai.com")
	v.SetDefault("providers.requests_per_second", 2.0)
	v.SetDefault("providers.timeout", 2*time.Minute)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.use_ssl", true)
}

// Load reads configuration into a Config. path may name a config file; when
// empty, scene2video.yaml is looked up in the working directory and is
// optional. Overlays scene2video.<env>.yaml next to the base file are merged
// so the most specific environment of the chain wins.
func Load(v *viper.Viper, path, env string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("providers.elevenlabs_api_key", EnvPrefix+"_PROVIDERS_ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY")
	_ = v.BindEnv("providers.openai_api_key", EnvPrefix+"_PROVIDERS_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("storage.access_key", EnvPrefix+"_STORAGE_ACCESS_KEY", "S3_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", EnvPrefix+"_STORAGE_SECRET_KEY", "S3_SECRET_KEY")
	_ = v.BindEnv("storage.endpoint", EnvPrefix+"_STORAGE_ENDPOINT", "S3_ENDPOINT")
	_ = v.BindEnv("storage.bucket", EnvPrefix+"_STORAGE_BUCKET", "S3_BUCKET")

	dir := "."
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fault.Wrap(fault.ErrConfiguration, "config", "read "+path, err)
		}
		dir = filepath.Dir(path)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fault.Wrap(fault.ErrConfiguration, "config", "read "+ConfigName+".yaml", err)
			}
		}
	}

	if env == "" {
		env = v.GetString("environment")
	}
	chain := EnvironmentChain(env)
	for i := len(chain) - 1; i >= 0; i-- {
		overlay := filepath.Join(dir, fmt.Sprintf("%s.%s.yaml", ConfigName, chain[i]))
		if _, err := os.Stat(overlay); err != nil {
			continue
		}
		if err := mergeFile(v, overlay); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fault.Wrap(fault.ErrConfiguration, "config", "decode", err)
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(env))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeFile(v *viper.Viper, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fault.Wrap(fault.ErrConfiguration, "config", "open "+path, err)
	}
	defer f.Close()
	v.SetConfigType("yaml")
	if err := v.MergeConfig(f); err != nil {
		return fault.Wrap(fault.ErrConfiguration, "config", "merge "+path, err)
	}
	return nil
}

// Validate rejects values no render could use.
func (c *Config) Validate() error {
	var problems []string
	if c.Width < 0 || c.Height < 0 || c.FPS < 0 {
		problems = append(problems, "width, height and fps must not be negative")
	}
	if c.Width%2 != 0 || c.Height%2 != 0 {
		problems = append(problems, "width and height must be even for yuv420p")
	}
	if c.Workers < 0 {
		problems = append(problems, "workers must not be negative")
	}
	if c.Quality < 0 {
		problems = append(problems, "quality must not be negative")
	}
	if c.ScaleFactor <= 0 {
		problems = append(problems, "device_scale_factor must be positive")
	}
	if c.Audio.WPM <= 0 {
		problems = append(problems, "audio_gen.wpm must be positive")
	}
	if c.FrameTimeout < 0 {
		problems = append(problems, "frame_timeout must not be negative")
	}
	if len(problems) > 0 {
		return fault.Wrap(fault.ErrConfiguration, "config", strings.Join(problems, "; "), nil)
	}
	return nil
}

// Credential returns the API key for a network provider.
func (c *Config) Credential(provider string) (string, error) {
	var key string
	switch provider {
	case "elevenlabs":
		key = c.Providers.ElevenLabsAPIKey
	case "openai":
		key = c.Providers.OpenAIAPIKey
	default:
		return "", fault.Wrap(fault.ErrConfiguration, "credentials", fmt.Sprintf("unknown provider %q", provider), nil)
	}
	if strings.TrimSpace(key) == "" {
		return "", fault.Wrap(fault.ErrConfiguration, "credentials", fmt.Sprintf("no API key for %s in environment %q", provider, c.Environment), nil)
	}
	return key, nil
}
