package draft

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/analyzer"
	"github.com/ivlev/scene2video/internal/composition"
	"github.com/ivlev/scene2video/internal/fault"
	"github.com/ivlev/scene2video/internal/source"
)

type pages []image.Image

func (p pages) PageCount() int { return len(p) }
func (p pages) PageSize(i int) (float64, float64, error) {
	b := p[i].Bounds()
	return float64(b.Dx()), float64(b.Dy()), nil
}
func (p pages) Render(i int, _ int) (image.Image, error) { return p[i], nil }
func (p pages) Close() error                             { return nil }

// scripted returns one canned result per Detect call.
type scripted struct {
	results [][]analyzer.Region
	calls   int
}

func (s *scripted) Detect(context.Context, image.Image) ([]analyzer.Region, error) {
	r := s.results[s.calls]
	s.calls++
	return r, nil
}

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}

func drafter(src source.Source, det analyzer.Detector) *Drafter {
	opts := DefaultOptions()
	opts.Width, opts.Height = 200, 100
	d := New(det, opts, nil)
	d.Open = func(string) (source.Source, error) { return src, nil }
	return d
}

func TestDraftVisitsRegionsInReadingOrder(t *testing.T) {
	det := &scripted{results: [][]analyzer.Region{
		{
			{Rect: image.Rect(200, 20, 360, 100)},
			{Rect: image.Rect(20, 30, 180, 110)},
		},
		nil,
	}}
	dir := t.TempDir()
	d := drafter(pages{blank(400, 200), blank(400, 200)}, det)

	script, err := d.Draft(context.Background(), filepath.Join(dir, "deck.pdf"), dir)
	require.NoError(t, err)
	assert.Equal(t, "deck.pdf", script.Source)
	assert.Equal(t, 200, script.Width)
	require.Len(t, script.Cues, 2)

	cue := script.Cues[0]
	assert.Equal(t, "page-1", cue.ID)
	assert.Equal(t, 6.0, cue.DurationSec)
	require.Len(t, cue.Camera, 4)

	assert.Equal(t, composition.Keyframe{Focus: "full", Rect: composition.Rectangle{W: 200, H: 100}, Zoom: 1}, cue.Camera[0])

	first := cue.Camera[1]
	assert.Equal(t, "region-1", first.Focus)
	assert.Equal(t, 1.0, first.Time)
	assert.Equal(t, composition.Rectangle{X: 10, Y: 15, W: 80, H: 40}, first.Rect)
	assert.Equal(t, 2.25, first.Zoom)

	second := cue.Camera[2]
	assert.Equal(t, 3.0, second.Time)
	assert.Equal(t, composition.Rectangle{X: 100, Y: 10, W: 80, H: 40}, second.Rect)

	last := cue.Camera[3]
	assert.Equal(t, "full", last.Focus)
	assert.Equal(t, 5.0, last.Time)

	empty := script.Cues[1]
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, 6.0, empty.DurationSec)
	assert.Empty(t, empty.Camera)
}

func TestDwellIsClamped(t *testing.T) {
	regions := make([]analyzer.Region, 8)
	for i := range regions {
		regions[i] = analyzer.Region{Rect: image.Rect(i*50, 0, i*50+40, 40)}
	}
	d := drafter(pages{blank(400, 200)}, &scripted{results: [][]analyzer.Region{regions}})

	script, err := d.Draft(context.Background(), "deck.pdf", "")
	require.NoError(t, err)
	cam := script.Cues[0].Camera
	require.Len(t, cam, 10)
	assert.Equal(t, 1.0, cam[2].Time-cam[1].Time, "minimum dwell")
	assert.Equal(t, 9.0, cam[9].Time)
	assert.Equal(t, 10.0, script.Cues[0].DurationSec)
	assert.Equal(t, 3.0, cam[1].Zoom, "zoom capped")
}

func TestDraftWithEdgeDetector(t *testing.T) {
	img := blank(800, 400)
	draw.Draw(img, image.Rect(100, 100, 300, 300), image.NewUniform(color.White), image.Point{}, draw.Src)
	d := drafter(pages{img}, analyzer.NewEdgeDetector())

	script, err := d.Draft(context.Background(), "deck.pdf", "")
	require.NoError(t, err)
	cam := script.Cues[0].Camera
	require.Len(t, cam, 3)
	assert.Greater(t, cam[1].Zoom, 1.0)
	assert.LessOrEqual(t, cam[1].Zoom, 3.0)
	assert.InDelta(t, 50, cam[1].Rect.X+cam[1].Rect.W/2, 3)
}

func TestDraftErrors(t *testing.T) {
	d := drafter(pages{}, &scripted{})
	_, err := d.Draft(context.Background(), "deck.pdf", "")
	assert.ErrorIs(t, err, fault.ErrPrecondition)

	d.Open = func(string) (source.Source, error) { return nil, errors.New("no such file") }
	_, err = d.Draft(context.Background(), "deck.pdf", "")
	assert.ErrorIs(t, err, fault.ErrPrecondition)

	d.Options.PageSec = 0
	_, err = d.Draft(context.Background(), "deck.pdf", "")
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}
