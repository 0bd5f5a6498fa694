// Package analyzer finds regions of content on backdrop pages. The camera
// drafter frames these regions one after another.
package analyzer

import (
	"context"
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"

	"github.com/ivlev/scene2video/internal/fault"
)

// Region is a block of content in page pixels.
type Region struct {
	Rect image.Rectangle
	// Density is the share of edge pixels inside Rect.
	Density float64
}

// Detector finds regions on a rendered page.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Region, error)
}

// NewDetector returns the named detector.
func NewDetector(name string) (Detector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "edge":
		return NewEdgeDetector(), nil
	default:
		return nil, fault.Wrap(fault.ErrConfiguration, "detector", fmt.Sprintf("unknown detector %q (want edge)", name), nil)
	}
}

// EdgeDetector groups Sobel edges into regions: edges are thickened so
// nearby strokes merge, then each connected blob becomes one region.
type EdgeDetector struct {
	MinArea   int     // page pixels
	Threshold float64 // gradient magnitude
	Radius    int     // dilation radius per pass
	Passes    int
	// MaxSide bounds the analysis resolution; larger pages are downscaled.
	MaxSide int
}

func NewEdgeDetector() *EdgeDetector {
	return &EdgeDetector{
		MinArea:   500,
		Threshold: 30,
		Radius:    2,
		Passes:    2,
		MaxSide:   1024,
	}
}

func (d *EdgeDetector) Detect(ctx context.Context, img image.Image) ([]Region, error) {
	if img == nil {
		return nil, fault.Wrap(fault.ErrConfiguration, "detector", "nil image", nil)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}

	gray, scale := d.grayscale(img)
	edges := sobel(gray, d.Threshold)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mask := edges
	for range d.Passes {
		mask = dilate(mask, d.Radius)
	}

	var out []Region
	for _, blob := range components(mask) {
		r := image.Rect(
			b.Min.X+int(float64(blob.Min.X)/scale),
			b.Min.Y+int(float64(blob.Min.Y)/scale),
			b.Min.X+int(float64(blob.Max.X)/scale+0.999),
			b.Min.Y+int(float64(blob.Max.Y)/scale+0.999),
		).Intersect(b)
		if r.Dx()*r.Dy() < d.MinArea {
			continue
		}
		out = append(out, Region{Rect: r, Density: density(edges, blob)})
	}
	return out, nil
}

// grayscale converts img to gray, downscaled so neither side exceeds
// MaxSide. It returns the analysis-to-page scale.
func (d *EdgeDetector) grayscale(img image.Image) (*image.Gray, float64) {
	b := img.Bounds()
	scale := 1.0
	if longest := max(b.Dx(), b.Dy()); d.MaxSide > 0 && longest > d.MaxSide {
		scale = float64(d.MaxSide) / float64(longest)
	}
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))
	gray := image.NewGray(image.Rect(0, 0, w, h))
	if scale == 1 {
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	}
	return gray, scale
}

// sobel marks pixels whose gradient magnitude exceeds threshold.
func sobel(g *image.Gray, threshold float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	at := func(x, y int) int { return int(g.Pix[y*g.Stride+x]) }
	limit := threshold * threshold
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) - 2*at(x-1, y) + 2*at(x+1, y) - at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) + at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if float64(gx*gx+gy*gy) > limit {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// dilate grows set pixels by radius in both directions, as two 1-D passes.
func dilate(g *image.Gray, radius int) *image.Gray {
	if radius <= 0 {
		return g
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	horiz := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < w; x++ {
			if row[x] == 0 {
				continue
			}
			for dx := max(0, x-radius); dx <= min(w-1, x+radius); dx++ {
				horiz.Pix[y*horiz.Stride+dx] = 255
			}
		}
	}
	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if horiz.Pix[y*horiz.Stride+x] == 0 {
				continue
			}
			for dy := max(0, y-radius); dy <= min(h-1, y+radius); dy++ {
				out.Pix[dy*out.Stride+x] = 255
			}
		}
	}
	return out
}

// components returns the bounding boxes of 4-connected set pixels in
// scan order.
func components(g *image.Gray) []image.Rectangle {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	seen := make([]bool, w*h)
	var out []image.Rectangle
	var stack []int
	for start := range seen {
		if seen[start] || g.Pix[(start/w)*g.Stride+start%w] == 0 {
			continue
		}
		box := image.Rect(start%w, start/w, start%w+1, start/w+1)
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			box = box.Union(image.Rect(x, y, x+1, y+1))
			for _, n := range [4][2]int{{x + 1, y}, {x - 1, y}, {x, y + 1}, {x, y - 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				j := ny*w + nx
				if !seen[j] && g.Pix[ny*g.Stride+nx] != 0 {
					seen[j] = true
					stack = append(stack, j)
				}
			}
		}
		out = append(out, box)
	}
	return out
}

func density(edges *image.Gray, r image.Rectangle) float64 {
	if r.Empty() {
		return 0
	}
	set := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if edges.Pix[y*edges.Stride+x] != 0 {
				set++
			}
		}
	}
	return float64(set) / float64(r.Dx()*r.Dy())
}
