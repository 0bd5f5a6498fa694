package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivlev/scene2video/internal/config"
)

func newEnvCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the environment overlay chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "environment: %s\n", cfg.Environment)
			fmt.Fprintf(out, "chain:       %s\n", strings.Join(config.EnvironmentChain(cfg.Environment), " -> "))
			if file := ctx.viper.ConfigFileUsed(); file != "" {
				fmt.Fprintf(out, "config:      %s\n", file)
			}
			return nil
		},
	}
}
