package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivlev/scene2video/internal/audio"
	"github.com/ivlev/scene2video/internal/composition"
	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/grid"
)

func newGridCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid <script>",
		Short: "Show the frame grid and cue layout of a script without rendering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			script, err := composition.ReadScript(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeGrid(cfg, script))
			return nil
		},
	}
	cmd.Flags().Int("fps", 0, "Frames per second (overrides the script)")
	cmd.Flags().Float64("duration", 0, "Duration in seconds (overrides the timeline)")
	configFlag(cmd, "fps", "fps")
	configFlag(cmd, "duration", "duration")
	return cmd
}

// describeGrid lays out the script with estimated narration lengths.
func describeGrid(cfg *config.Config, script *composition.Script) string {
	narration := map[string]float64{}
	if cfg.AudioPath == "" && script.Audio == "" {
		for i, cue := range script.Cues {
			if strings.TrimSpace(cue.Narration) != "" {
				narration[cue.Key(i)] = audio.SpeechSeconds(cue.Narration, cfg.Audio.WPM)
			}
		}
	}
	tl := composition.NewTimeline(script, narration)
	g := grid.Derive(script, tl, grid.Overrides{
		FPS:         cfg.FPS,
		Width:       cfg.Width,
		Height:      cfg.Height,
		DurationSec: cfg.DurationSec,
	})

	var b strings.Builder
	b.WriteString(renderTable(
		[]string{"FPS", "Size", "Frames", "Duration"},
		[][]string{{
			strconv.Itoa(g.FPS),
			fmt.Sprintf("%dx%d", g.Width, g.Height),
			strconv.Itoa(g.DurationFrames),
			fmt.Sprintf("%.3fs", g.DurationSec()),
		}},
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight},
	))

	rows := make([][]string, 0, len(tl.Cues))
	for _, tc := range tl.Cues {
		rows = append(rows, []string{
			tc.Key,
			strconv.Itoa(tc.Cue.Page),
			fmt.Sprintf("%.3f", tc.StartSec),
			fmt.Sprintf("%.3f", tc.EndSec),
			strconv.Itoa(tc.StartFrame(g.FPS)),
			strconv.Itoa(len(tc.Cue.Camera)),
		})
	}
	if len(rows) > 0 {
		b.WriteString("\n")
		b.WriteString(renderTable(
			[]string{"Cue", "Page", "Start", "End", "Start frame", "Keyframes"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
		))
	}
	for _, w := range tl.Warnings {
		b.WriteString("\nwarning: " + w)
	}
	return b.String()
}
