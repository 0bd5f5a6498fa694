package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := newCommandContext()

	rootCmd := &cobra.Command{
		Use:           "scene2video",
		Short:         "Render compositions into videos frame by frame",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			ctx.bindFlags(cmd)
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			_, err := ctx.ensureLogger()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default ./scene2video.yaml)")
	flags.StringVarP(&ctx.envFlag, "env", "e", "", "Environment overlay to apply (production, staging, development, test)")
	flags.StringVar(&ctx.logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&ctx.logFormatFlag, "log-format", "", "Log format: console or json")

	rootCmd.AddCommand(newRenderCommand(ctx))
	rootCmd.AddCommand(newGridCommand(ctx))
	rootCmd.AddCommand(newAudioCommand(ctx))
	rootCmd.AddCommand(newDraftCommand(ctx))
	rootCmd.AddCommand(newEnvCommand(ctx))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "completion", "__complete":
		return true
	}
	return false
}
