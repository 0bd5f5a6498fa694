// Package source loads backdrop pages for scenes.
package source

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/scene2video/internal/system"
)

// Source is an ordered set of backdrop pages. Implementations are safe for
// use by one goroutine; workers open their own.
type Source interface {
	PageCount() int
	PageSize(index int) (width, height float64, err error)
	Render(index int, dpi int) (image.Image, error)
	Close() error
}

// Open picks the source kind from path: a PDF file, an image file, or a
// folder of images.
func Open(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() && system.HasExtension(path, system.PDFExtensions) {
		return NewPDF(path)
	}
	return NewImages(path)
}

// PDF renders document pages with MuPDF.
type PDF struct {
	mu   sync.Mutex
	doc  *fitz.Document
	path string
}

func NewPDF(path string) (*PDF, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &PDF{doc: doc, path: path}, nil
}

func (p *PDF) PageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.NumPage()
}

func (p *PDF) PageSize(index int) (float64, float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rect, err := p.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

func (p *PDF) Render(index int, dpi int) (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= p.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range [0, %d)", index, p.doc.NumPage())
	}
	return p.doc.ImageDPI(index, float64(dpi))
}

func (p *PDF) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Close()
}
