package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/ivlev/scene2video/internal/system"
)

// Images serves one page per image file, in name order.
type Images struct {
	paths []string
}

func NewImages(path string) (*Images, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return &Images{paths: []string{path}}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && system.HasExtension(entry.Name(), system.ImageExtensions) {
			paths = append(paths, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images in %s", path)
	}
	return &Images{paths: paths}, nil
}

func (s *Images) PageCount() int {
	return len(s.paths)
}

func (s *Images) PageSize(index int) (float64, float64, error) {
	if err := s.check(index); err != nil {
		return 0, 0, err
	}
	f, err := os.Open(s.paths[index])
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return float64(cfg.Width), float64(cfg.Height), nil
}

// Render decodes the image; dpi does not apply to raster pages.
func (s *Images) Render(index int, _ int) (image.Image, error) {
	if err := s.check(index); err != nil {
		return nil, err
	}
	f, err := os.Open(s.paths[index])
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.paths[index], err)
	}
	return img, nil
}

func (s *Images) Close() error {
	return nil
}

func (s *Images) check(index int) error {
	if index < 0 || index >= len(s.paths) {
		return fmt.Errorf("page %d out of range [0, %d)", index, len(s.paths))
	}
	return nil
}
