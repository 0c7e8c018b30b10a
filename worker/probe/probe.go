package probe

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mediaDownloader/api/models"
)

// ErrNoDimensions is returned when a probe succeeds but reports no usable size.
var ErrNoDimensions = errors.New("no video dimensions")

type Dimensions struct {
	Width  int
	Height int
}

type Prober interface {
	Probe(ctx context.Context, path string) (Dimensions, error)
}

// AspectRatio reduces width:height by their greatest common divisor. Non-positive
// dimensions yield models.AspectRatioUnknown.
func AspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return models.AspectRatioUnknown
	}
	d := gcd(width, height)
	return fmt.Sprintf("%d:%d", width/d, height/d)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Chain tries each prober in order and returns the first usable result.
type Chain struct {
	probers []Prober
	logger  *zap.Logger
}

func NewChain(logger *zap.Logger, probers ...Prober) *Chain {
	return &Chain{probers: probers, logger: logger}
}

// NewDefault measures still images by decoding them and everything else
// with ffprobe at ffprobePath.
func NewDefault(logger *zap.Logger, ffprobePath string) *Chain {
	return NewChain(logger, ImageProber{}, NewFFprobe(ffprobePath))
}

func (c *Chain) Probe(ctx context.Context, path string) (Dimensions, error) {
	var errs []error
	for _, p := range c.probers {
		dims, err := p.Probe(ctx, path)
		if err == nil {
			return dims, nil
		}
		c.logger.Debug("Prober failed",
			zap.String("path", path),
			zap.String("prober", fmt.Sprintf("%T", p)),
			zap.Error(err),
		)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Dimensions{}, ErrNoDimensions
	}
	return Dimensions{}, errors.Join(errs...)
}

// Ratio probes path and returns its reduced aspect ratio, or
// models.AspectRatioUnknown together with the probe error.
func Ratio(ctx context.Context, p Prober, path string) (string, error) {
	dims, err := p.Probe(ctx, path)
	if err != nil {
		return models.AspectRatioUnknown, err
	}
	ratio := AspectRatio(dims.Width, dims.Height)
	if ratio == models.AspectRatioUnknown {
		return ratio, ErrNoDimensions
	}
	return ratio, nil
}
