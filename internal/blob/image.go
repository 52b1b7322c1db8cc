package blob

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ImageInfo is what a floor-plan header tells us without decoding pixels
type ImageInfo struct {
	Width       int
	Height      int
	Format      string
	ContentType string
}

// Header limits for floor plans; only the header is read, so these are
// checked before any pixels are trusted.
const (
	MaxImageSide   = 20000
	MaxImagePixels = 100_000_000
)

// SniffImage reads just enough of r to learn the image format and size
func SniffImage(r io.Reader) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("unsupported floor plan image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, fmt.Errorf("floor plan has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}
	if cfg.Width > MaxImageSide || cfg.Height > MaxImageSide || int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return ImageInfo{}, fmt.Errorf("floor plan is %dx%d, limit is %d px per side and %d px total",
			cfg.Width, cfg.Height, MaxImageSide, MaxImagePixels)
	}
	return ImageInfo{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      format,
		ContentType: "image/" + format,
	}, nil
}
