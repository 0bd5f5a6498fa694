package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"
)

// Stats are the wall times of one job.
type Stats struct {
	Build   string
	Started time.Time
	Frames  int
	Workers int

	Audio   time.Duration
	Render  time.Duration
	Encode  time.Duration
	Publish time.Duration
	Total   time.Duration
}

// EffectiveFPS is frames written per second of total job time.
func (s Stats) EffectiveFPS() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Total.Seconds()
}

// Table renders the performance report.
func (s Stats) Table() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("PERFORMANCE REPORT")
	tw.AppendHeader(table.Row{"Stage", "Value"})
	tw.AppendRows([]table.Row{
		{"Build", s.Build},
		{"Frames", s.Frames},
		{"Workers", s.Workers},
		{"Audio", seconds(s.Audio)},
		{"Rendering", seconds(s.Render)},
		{"Encoding", seconds(s.Encode)},
		{"Publishing", seconds(s.Publish)},
		{"Total", seconds(s.Total)},
		{"Effective FPS", fmt.Sprintf("%.2f", s.EffectiveFPS())},
	})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	return tw.Render()
}

// BenchmarkLine is one line of the benchmark log.
func (s Stats) BenchmarkLine(input string) string {
	return fmt.Sprintf("[%s] Build: %s | Input: %s | Frames: %d | Workers: %d | Total: %.2fs | Render: %.2fs | Encode: %.2fs | FPS: %.2f\n",
		s.Started.Format("2006-01-02 15:04:05"),
		s.Build,
		filepath.Base(input),
		s.Frames,
		s.Workers,
		s.Total.Seconds(),
		s.Render.Seconds(),
		s.Encode.Seconds(),
		s.EffectiveFPS(),
	)
}

func (p *Project) report(job Job, s Stats, logger *zap.Logger) {
	if p.Report != nil {
		fmt.Fprintln(p.Report, s.Table())
	}
	logger.Info("job finished",
		zap.Int("frames", s.Frames),
		zap.Int("workers", s.Workers),
		zap.Duration("total", s.Total),
		zap.Float64("effective_fps", s.EffectiveFPS()))

	if p.BenchmarkLog == "" {
		return
	}
	input := p.Script.Source
	if input == "" {
		input = job.Output
	}
	if err := appendLine(p.BenchmarkLog, s.BenchmarkLine(input)); err != nil {
		logger.Warn("benchmark log not written", zap.String("path", p.BenchmarkLog), zap.Error(err))
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
