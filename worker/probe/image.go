package probe

import (
	"context"
	"fmt"

	"github.com/disintegration/imaging"
)

// ImageProber measures still images (thumbnails, cover art, image posts) by
// decoding them. Other files are rejected by extension without being read.
type ImageProber struct{}

func (ImageProber) Probe(ctx context.Context, path string) (Dimensions, error) {
	if _, err := imaging.FormatFromFilename(path); err != nil {
		return Dimensions{}, err
	}
	if err := ctx.Err(); err != nil {
		return Dimensions{}, err
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Dimensions{}, fmt.Errorf("failed to open image: %w", err)
	}

	b := img.Bounds()
	return Dimensions{Width: b.Dx(), Height: b.Dy()}, nil
}
