// File: internal/cropper/thumbnail.go
package cropper

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/slidescope/slidescope/api/schemas"
)

// guideCount is the number of axis guides drawn along each dimension.
const guideCount = 4

// Thumbnail renders the whole slide at the given long side with axis guides:
// overlay lines labeled with absolute level-0 coordinates. The guides give
// the model a single coordinate system to reason in regardless of zoom.
func (e *Engine) Thumbnail(ctx context.Context, targetLongSide, jpegQuality int) (*Result, error) {
	meta := e.reader.Metadata()
	full := meta.Bounds()

	if jpegQuality < 1 || jpegQuality > 100 {
		return nil, &CropError{Code: ErrCodeInvalidQuality, Region: full,
			Err: fmt.Errorf("jpeg quality %d outside [1,100]", jpegQuality)}
	}

	// Read from the coarsest level; the thumbnail never needs more detail
	// than the target size, and the coarsest level is the cheapest read.
	level := meta.LevelCount - 1
	if level < 0 {
		level = 0
	}
	var levelRegion schemas.Region
	if level < len(meta.LevelDimensions) {
		dims := meta.LevelDimensions[level]
		levelRegion = schemas.Region{Width: dims[0], Height: dims[1]}
	} else {
		levelRegion = full
	}

	// The coarsest level of a single-level reader is the full slide, so the
	// memory guard applies here exactly as it does to crops.
	if levelRegion.Area() > e.maxRegionPixels {
		return nil, &CropError{Code: ErrCodeRegionTooLarge, Region: full,
			Err: fmt.Errorf("coarsest level %d spans %d px, exceeds ceiling %d px",
				level, levelRegion.Area(), e.maxRegionPixels)}
	}

	src, err := e.reader.ReadRegion(ctx, levelRegion, level)
	if err != nil {
		return nil, &CropError{Code: ErrCodeReadFailure, Region: full, Err: err}
	}

	out := resizeToLongSide(src, targetLongSide)
	drawAxisGuides(out, full)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, &CropError{Code: ErrCodeEncodeFailure, Region: full, Err: err}
	}

	return &Result{
		Region: full,
		Level:  level,
		JPEG:   buf.Bytes(),
		Width:  out.Bounds().Dx(),
		Height: out.Bounds().Dy(),
	}, nil
}

var guideColor = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xFF}

// drawAxisGuides overlays evenly spaced vertical and horizontal lines on the
// thumbnail, each labeled with the absolute level-0 coordinate it maps to.
func drawAxisGuides(img *image.RGBA, slideBounds schemas.Region) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	for i := 1; i <= guideCount; i++ {
		px := w * i / (guideCount + 1)
		level0X := slideBounds.Width * i / (guideCount + 1)
		drawVLine(img, px)
		drawLabel(img, px+2, 10, fmt.Sprintf("x=%d", level0X))
	}
	for i := 1; i <= guideCount; i++ {
		py := h * i / (guideCount + 1)
		level0Y := slideBounds.Height * i / (guideCount + 1)
		drawHLine(img, py)
		drawLabel(img, 2, py-2, fmt.Sprintf("y=%d", level0Y))
	}
}

func drawVLine(img *image.RGBA, x int) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		img.Set(x, y, guideColor)
	}
}

func drawHLine(img *image.RGBA, y int) {
	b := img.Bounds()
	for x := b.Min.X; x < b.Max.X; x++ {
		img.Set(x, y, guideColor)
	}
}

func drawLabel(img *image.RGBA, x, y int, text string) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(guideColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
