package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/logging"
)

type commandContext struct {
	configFlag    string
	envFlag       string
	logLevelFlag  string
	logFormatFlag string

	viper *viper.Viper

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *zap.Logger
	loggerErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{viper: viper.New()}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load(c.viper, strings.TrimSpace(c.configFlag), c.envFlag)
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*zap.Logger, error) {
	c.loggerOnce.Do(func() {
		opts := logging.Options{Level: c.logLevelFlag, Format: c.logFormatFlag}
		if cfg := c.config; cfg != nil {
			if opts.Level == "" {
				opts.Level = cfg.Log.Level
			}
			if opts.Format == "" {
				opts.Format = cfg.Log.Format
			}
		}
		c.logger, c.loggerErr = logging.New(opts)
	})
	return c.logger, c.loggerErr
}

const configKeyAnnotation = "scene2video/config-key"

// configFlag marks a flag as an override of a configuration key.
func configFlag(cmd *cobra.Command, flag, key string) {
	_ = cmd.Flags().SetAnnotation(flag, configKeyAnnotation, []string{key})
}

// bindFlags binds the executing command's marked flags, so only its own
// flags override configuration.
func (c *commandContext) bindFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[configKeyAnnotation]; len(keys) == 1 {
			_ = c.viper.BindPFlag(keys[0], f)
		}
	})
}

func (c *commandContext) sync() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}
