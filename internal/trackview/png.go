package trackview

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// PNGFile writes every rendered strip to a PNG file, replacing it atomically
// so image viewers never see a partial file.
type PNGFile struct {
	path string
}

func NewPNGFile(path string) (*PNGFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating track view directory: %w", err)
	}
	return &PNGFile{path: path}, nil
}

func (p *PNGFile) Render(img *image.Gray) error {
	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".trackview-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encoding track view: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.path)
}

func (p *PNGFile) Close() error { return nil }
