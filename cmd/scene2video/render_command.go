package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/composition"
	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/encode"
	"github.com/ivlev/scene2video/internal/grid"
	"github.com/ivlev/scene2video/internal/metrics"
	"github.com/ivlev/scene2video/internal/pipeline"
	"github.com/ivlev/scene2video/internal/render"
	"github.com/ivlev/scene2video/internal/system"
)

// scriptExtensions are looked up in input/scripts when no script is given.
var scriptExtensions = []string{".yaml", ".yml"}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var start, end int
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "render [script]",
		Short: "Render a composition script to a video file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Script = args[0]
			}
			var r *grid.FrameRange
			if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
				r = &grid.FrameRange{Start: start, End: end}
			}
			return runRender(cmd.Context(), cfg, logger, r, !noProgress)
		},
	}

	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Output video path")
	flags.Int("fps", 0, "Frames per second (overrides the script)")
	flags.Int("width", 0, "Viewport width")
	flags.Int("height", 0, "Viewport height")
	flags.Float64("duration", 0, "Duration in seconds (overrides the timeline)")
	flags.IntP("workers", "w", 0, "Render workers (0 sizes the pool from CPU and memory)")
	flags.Int("dpi", 0, "Backdrop rasterization DPI")
	flags.Float64("scale", 0, "Device scale factor of captured frames")
	flags.StringP("audio", "a", "", "Prepared soundtrack; skips narration generation")
	flags.String("encoder", "", "Video encoder: auto, libx264, h264_nvenc, h264_videotoolbox")
	flags.Int("quality", 0, "Quality (x264/NVENC: CRF, VideoToolbox: bitrate = Q*100kbit/s)")
	flags.String("work-dir", "", "Directory for intermediate frames")
	flags.Bool("keep-frames", false, "Keep rendered frames after encoding")
	flags.Bool("stats", false, "Print the performance report and append to benchmark.log")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while rendering")
	flags.IntVar(&start, "start", 0, "First frame to render")
	flags.IntVar(&end, "end", -1, "Last frame to render (-1 for the last frame of the grid)")
	flags.BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	for flag, key := range map[string]string{
		"output":       "output",
		"fps":          "fps",
		"width":        "width",
		"height":       "height",
		"duration":     "duration",
		"workers":      "workers",
		"dpi":          "dpi",
		"scale":        "device_scale_factor",
		"audio":        "audio",
		"encoder":      "video_encoder",
		"quality":      "quality",
		"work-dir":     "work_dir",
		"keep-frames":  "keep_frames",
		"stats":        "show_stats",
		"metrics-addr": "metrics_addr",
	} {
		configFlag(cmd, flag, key)
	}
	return cmd
}

func runRender(ctx context.Context, cfg *config.Config, logger *zap.Logger, r *grid.FrameRange, progress bool) error {
	system.InitResourceLimits(logger)

	scriptPath := cfg.Script
	if scriptPath == "" {
		latest, err := system.FindLatest(filepath.Join("input", "scripts"), scriptExtensions)
		if err != nil {
			return fmt.Errorf("no script given and none found in input/scripts: %w", err)
		}
		scriptPath = latest
		logger.Info("using latest script", zap.String("path", scriptPath))
	}
	script, err := composition.ReadScript(scriptPath)
	if err != nil {
		return err
	}

	if cfg.VideoEncoder == "" || cfg.VideoEncoder == "auto" {
		cfg.VideoEncoder = system.BestH264Encoder(ctx)
		if cfg.VideoEncoder != "libx264" {
			logger.Info("hardware encoder detected", zap.String("encoder", cfg.VideoEncoder))
		}
	}
	if cfg.Quality == 0 {
		cfg.Quality = encode.DefaultQuality(cfg.VideoEncoder)
	}

	project, err := pipeline.NewProject(cfg, script, logger)
	if err != nil {
		return err
	}
	project.Range = r
	project.Metrics = metrics.New(nil)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: project.Metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if progress {
		var bar *progressbar.ProgressBar
		project.OnStart = func(job pipeline.Job) {
			bar = newFrameBar(job.Range.Len())
		}
		project.OnFrame = func(render.RenderedFrame) {
			if bar != nil {
				_ = bar.Add(1)
			}
		}
		defer func() {
			if bar != nil {
				_ = bar.Finish()
			}
		}()
	}

	res, err := project.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nDone: %s (%d frames, %dx%d @ %d fps)\n",
		res.Job.Output, len(res.Frames), res.Job.Grid.Width, res.Job.Grid.Height, res.Job.Grid.FPS)
	if res.Job.Published != nil {
		fmt.Fprintf(os.Stdout, "Published: %s\n", res.Job.Published.URL)
	}
	return nil
}

func newFrameBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Rendering"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
	)
}
