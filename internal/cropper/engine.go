// File: internal/cropper/engine.go
package cropper

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"github.com/slidescope/slidescope/api/schemas"
	"github.com/slidescope/slidescope/internal/geometry"
	"github.com/slidescope/slidescope/internal/pyramid"
)

// DefaultMaxRegionPixels is the default level-0 area ceiling for a single
// crop. The guard is on area, not dimensions: a very wide-and-short region
// can pass a max-dimension check yet still allocate excessive memory.
const DefaultMaxRegionPixels = 40_000_000

// Options tune a single crop request.
type Options struct {
	// TargetLongSide is the output image's long side in pixels.
	TargetLongSide int
	// JPEGQuality must be in [1,100].
	JPEGQuality int
	// Bias is the oversampling bias for level selection; 0 means default.
	Bias float64
}

// Result is one successfully produced crop.
type Result struct {
	Region schemas.Region
	Level  int
	JPEG   []byte
	Width  int
	Height int
}

// Engine reads slide regions through the SlideReader collaborator, picks the
// pyramid level, resizes and encodes the output.
type Engine struct {
	reader          schemas.SlideReader
	logger          *zap.Logger
	maxRegionPixels int64
}

// NewEngine builds a crop engine. maxRegionPixels <= 0 selects the default
// ceiling.
func NewEngine(reader schemas.SlideReader, logger *zap.Logger, maxRegionPixels int64) *Engine {
	if maxRegionPixels <= 0 {
		maxRegionPixels = DefaultMaxRegionPixels
	}
	return &Engine{
		reader:          reader,
		logger:          logger.Named("cropper"),
		maxRegionPixels: maxRegionPixels,
	}
}

// Crop produces a JPEG of the requested level-0 region. All failure modes
// surface as *CropError.
func (e *Engine) Crop(ctx context.Context, region schemas.Region, opts Options) (*Result, error) {
	// Reject bad quality before doing any work.
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		return nil, &CropError{Code: ErrCodeInvalidQuality, Region: region,
			Err: fmt.Errorf("jpeg quality %d outside [1,100]", opts.JPEGQuality)}
	}

	meta := e.reader.Metadata()
	if err := geometry.Validate(region, meta.Bounds()); err != nil {
		return nil, &CropError{Code: ErrCodeOutOfBounds, Region: region, Err: err}
	}

	// Memory guard runs before any read is attempted, so an oversized
	// request has no allocation side effect.
	if region.Area() > e.maxRegionPixels {
		return nil, &CropError{Code: ErrCodeRegionTooLarge, Region: region,
			Err: fmt.Errorf("region area %d px exceeds ceiling %d px", region.Area(), e.maxRegionPixels)}
	}

	level := pyramid.SelectLevel(region, opts.TargetLongSide, opts.Bias, meta)
	downsample := 1.0
	if level < len(meta.LevelDownsamples) {
		downsample = meta.LevelDownsamples[level]
	}
	levelRegion := geometry.RegionToLevel(region, downsample)
	// Recorded downsample factors rarely divide the level dimensions
	// exactly, so a valid level-0 region touching the slide edge can map a
	// pixel past the level's extent. Clamp to the actual extent.
	if level < len(meta.LevelDimensions) {
		dims := meta.LevelDimensions[level]
		levelRegion = geometry.Clamp(levelRegion, schemas.Region{Width: dims[0], Height: dims[1]})
	}

	src, err := e.reader.ReadRegion(ctx, levelRegion, level)
	if err != nil {
		return nil, &CropError{Code: ErrCodeReadFailure, Region: region, Err: err}
	}

	out := resizeToLongSide(src, opts.TargetLongSide)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return nil, &CropError{Code: ErrCodeEncodeFailure, Region: region, Err: err}
	}

	e.logger.Debug("Crop produced",
		zap.Stringer("region", region),
		zap.Int("level", level),
		zap.Float64("downsample", downsample),
		zap.Int("out_width", out.Bounds().Dx()),
		zap.Int("out_height", out.Bounds().Dy()),
		zap.Int("jpeg_bytes", buf.Len()),
	)

	return &Result{
		Region: region,
		Level:  level,
		JPEG:   buf.Bytes(),
		Width:  out.Bounds().Dx(),
		Height: out.Bounds().Dy(),
	}, nil
}

// resizeToLongSide scales src so its long side equals target, using
// Catmull-Rom resampling. The short side is clamped to a minimum of one
// pixel so the output never has a zero-length dimension.
func resizeToLongSide(src image.Image, target int) *image.RGBA {
	if target < 1 {
		target = 1
	}
	sb := src.Bounds()
	w, h := sb.Dx(), sb.Dy()

	var outW, outH int
	if w >= h {
		outW = target
		outH = h * target / w
	} else {
		outH = target
		outW = w * target / h
	}
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, xdraw.Src, nil)
	return dst
}
