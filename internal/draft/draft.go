// Package draft writes a first-pass composition for a backdrop: one cue per
// page whose camera visits each detected content region in reading order.
package draft

import (
	"context"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/analyzer"
	"github.com/ivlev/scene2video/internal/composition"
	"github.com/ivlev/scene2video/internal/fault"
	"github.com/ivlev/scene2video/internal/source"
)

const (
	rowThreshold = 20  // viewport px; regions closer than this share a row
	fillFactor   = 0.9 // share of the viewport a zoomed region may fill
	cameraEase   = "easeInOutCubic"
)

type Options struct {
	Width, Height int
	FPS           int
	DPI           int
	// PageSec is the target time spent on a page; dwell per region is
	// derived from it and clamped to [MinDwell, MaxDwell].
	PageSec  float64
	IntroSec float64
	MinDwell float64
	MaxDwell float64
	MaxZoom  float64
}

func DefaultOptions() Options {
	return Options{
		Width:    1920,
		Height:   1080,
		FPS:      30,
		DPI:      72,
		PageSec:  6,
		IntroSec: 1,
		MinDwell: 1,
		MaxDwell: 3,
		MaxZoom:  3,
	}
}

type Drafter struct {
	Detector analyzer.Detector
	Options  Options
	Logger   *zap.Logger

	// Open loads the backdrop; defaults to source.Open.
	Open func(path string) (source.Source, error)
}

func New(detector analyzer.Detector, opts Options, logger *zap.Logger) *Drafter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drafter{Detector: detector, Options: opts, Logger: logger, Open: source.Open}
}

// Draft analyzes every page of the backdrop at backdrop and returns a
// script. The script's source is written relative to scriptDir so the file
// can be saved there and rendered as is.
func (d *Drafter) Draft(ctx context.Context, backdrop, scriptDir string) (*composition.Script, error) {
	o := d.Options
	if o.Width <= 0 || o.Height <= 0 {
		return nil, fault.Wrap(fault.ErrConfiguration, "draft", fmt.Sprintf("empty viewport %dx%d", o.Width, o.Height), nil)
	}
	if o.PageSec <= 0 {
		return nil, fault.Wrap(fault.ErrConfiguration, "draft", "page duration must be positive", nil)
	}

	src, err := d.Open(backdrop)
	if err != nil {
		return nil, fault.Wrap(fault.ErrPrecondition, "draft", "open backdrop "+backdrop, err)
	}
	defer src.Close()

	script := &composition.Script{
		Version: "1.0",
		FPS:     o.FPS,
		Width:   o.Width,
		Height:  o.Height,
		Source:  relative(backdrop, scriptDir),
	}
	for page := range src.PageCount() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := src.Render(page, o.DPI)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", page, err)
		}
		regions, err := d.Detector.Detect(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("detect page %d: %w", page, err)
		}
		cue := d.cue(page, img.Bounds(), regions)
		d.Logger.Info("page drafted",
			zap.Int("page", page), zap.Int("regions", len(regions)), zap.Float64("duration", cue.DurationSec))
		script.Cues = append(script.Cues, cue)
	}
	if len(script.Cues) == 0 {
		return nil, fault.Wrap(fault.ErrPrecondition, "draft", "backdrop has no pages", nil)
	}
	return script, nil
}

func (d *Drafter) cue(page int, bounds image.Rectangle, regions []analyzer.Region) composition.Cue {
	o := d.Options
	cue := composition.Cue{ID: fmt.Sprintf("page-%d", page+1), Page: page}
	if len(regions) == 0 {
		cue.DurationSec = o.PageSec
		return cue
	}

	rects := d.toViewport(bounds, regions)
	sortReadingOrder(rects)

	full := composition.Keyframe{Focus: "full", Rect: composition.Rectangle{W: o.Width, H: o.Height}, Zoom: 1}
	cue.Camera = append(cue.Camera, full)

	dwell := d.dwell(len(rects))
	t := o.IntroSec
	for i, r := range rects {
		cue.Camera = append(cue.Camera, composition.Keyframe{
			Time:  round3(t),
			Focus: fmt.Sprintf("region-%d", i+1),
			Rect:  composition.Rectangle{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()},
			Zoom:  round3(d.zoom(r)),
			Ease:  cameraEase,
		})
		t += dwell
	}
	out := full
	out.Time = round3(t)
	out.Ease = cameraEase
	cue.Camera = append(cue.Camera, out)
	cue.DurationSec = round3(t + o.IntroSec)
	return cue
}

// toViewport maps page pixels onto the viewport the way the scene fits a
// page: scaled to fit and centered.
func (d *Drafter) toViewport(b image.Rectangle, regions []analyzer.Region) []image.Rectangle {
	vw, vh := float64(d.Options.Width), float64(d.Options.Height)
	fit := math.Min(vw/float64(b.Dx()), vh/float64(b.Dy()))
	offX := (vw - float64(b.Dx())*fit) / 2
	offY := (vh - float64(b.Dy())*fit) / 2

	out := make([]image.Rectangle, 0, len(regions))
	for _, r := range regions {
		x0 := offX + float64(r.Rect.Min.X-b.Min.X)*fit
		y0 := offY + float64(r.Rect.Min.Y-b.Min.Y)*fit
		x1 := offX + float64(r.Rect.Max.X-b.Min.X)*fit
		y1 := offY + float64(r.Rect.Max.Y-b.Min.Y)*fit
		out = append(out, image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1))))
	}
	return out
}

func (d *Drafter) dwell(n int) float64 {
	o := d.Options
	avail := o.PageSec - 2*o.IntroSec
	if avail <= 0 {
		avail = o.PageSec
	}
	return math.Max(o.MinDwell, math.Min(o.MaxDwell, avail/float64(n)))
}

// zoom fits r into the viewport with some padding.
func (d *Drafter) zoom(r image.Rectangle) float64 {
	if r.Dx() == 0 || r.Dy() == 0 {
		return 1
	}
	z := math.Min(
		fillFactor*float64(d.Options.Width)/float64(r.Dx()),
		fillFactor*float64(d.Options.Height)/float64(r.Dy()),
	)
	maxZoom := d.Options.MaxZoom
	if maxZoom < 1 {
		maxZoom = 1
	}
	return math.Max(1, math.Min(maxZoom, z))
}

// sortReadingOrder sorts top to bottom, then left to right within a row.
func sortReadingOrder(rects []image.Rectangle) {
	sort.SliceStable(rects, func(i, j int) bool {
		dy := rects[i].Min.Y - rects[j].Min.Y
		if dy > rowThreshold || dy < -rowThreshold {
			return dy < 0
		}
		return rects[i].Min.X < rects[j].Min.X
	})
}

func relative(path, dir string) string {
	if dir == "" {
		return path
	}
	absPath, err1 := filepath.Abs(path)
	absDir, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return path
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return absPath
	}
	return filepath.ToSlash(rel)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
