package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/analyzer"
	"github.com/ivlev/scene2video/internal/composition"
	"github.com/ivlev/scene2video/internal/draft"
)

func newDraftCommand(ctx *commandContext) *cobra.Command {
	var (
		output   string
		detector string
		pageSec  float64
		maxZoom  float64
	)
	cmd := &cobra.Command{
		Use:   "draft <backdrop>",
		Short: "Write a script whose camera tours the content of each backdrop page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			det, err := analyzer.NewDetector(detector)
			if err != nil {
				return err
			}

			opts := draft.DefaultOptions()
			if cfg.Width > 0 {
				opts.Width = cfg.Width
			}
			if cfg.Height > 0 {
				opts.Height = cfg.Height
			}
			if cfg.FPS > 0 {
				opts.FPS = cfg.FPS
			}
			opts.PageSec = pageSec
			opts.MaxZoom = maxZoom

			script, err := draft.New(det, opts, logger).Draft(cmd.Context(), args[0], filepath.Dir(output))
			if err != nil {
				return err
			}
			if err := composition.WriteScript(script, output); err != nil {
				return fmt.Errorf("write script: %w", err)
			}
			logger.Info("script drafted", zap.String("path", output), zap.Int("cues", len(script.Cues)))
			fmt.Fprintf(cmd.OutOrStdout(), "Drafted %d cues: %s\n", len(script.Cues), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "script.yaml", "Script file to write")
	cmd.Flags().StringVar(&detector, "detector", "edge", "Region detector")
	cmd.Flags().Float64Var(&pageSec, "page-sec", draft.DefaultOptions().PageSec, "Target seconds per page")
	cmd.Flags().Float64Var(&maxZoom, "max-zoom", draft.DefaultOptions().MaxZoom, "Largest camera zoom")
	cmd.Flags().Int("fps", 0, "Frames per second")
	cmd.Flags().Int("width", 0, "Viewport width")
	cmd.Flags().Int("height", 0, "Viewport height")
	configFlag(cmd, "fps", "fps")
	configFlag(cmd, "width", "width")
	configFlag(cmd, "height", "height")
	return cmd
}
