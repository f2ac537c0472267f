// File: internal/pyramid/memory.go
package pyramid

import (
	"context"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/slidescope/slidescope/api/schemas"
)

// MemoryPyramid is an in-memory SlideReader built by iteratively halving a
// base image. It backs tests and the demo path of the CLI; production slide
// formats are consumed through the same SlideReader interface by external
// readers.
type MemoryPyramid struct {
	levels []*image.RGBA
	meta   schemas.PyramidMetadata
}

// minLevelLongSide stops pyramid construction once the coarsest level's long
// side would drop below a useful thumbnail size.
const minLevelLongSide = 256

// NewMemoryPyramid builds a pyramid from the given base image. Level 0 is
// the base at full resolution; each subsequent level halves both dimensions
// until the long side falls under minLevelLongSide.
func NewMemoryPyramid(base image.Image) *MemoryPyramid {
	b := base.Bounds()
	level0 := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(level0, level0.Bounds(), base, b.Min, xdraw.Src)

	levels := []*image.RGBA{level0}
	for {
		prev := levels[len(levels)-1]
		w, h := prev.Bounds().Dx()/2, prev.Bounds().Dy()/2
		if w < 1 || h < 1 {
			break
		}
		long := w
		if h > long {
			long = h
		}
		if long < minLevelLongSide {
			break
		}
		next := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.ApproxBiLinear.Scale(next, next.Bounds(), prev, prev.Bounds(), xdraw.Src, nil)
		levels = append(levels, next)
	}

	meta := schemas.PyramidMetadata{
		Width:      b.Dx(),
		Height:     b.Dy(),
		LevelCount: len(levels),
	}
	for _, lvl := range levels {
		lb := lvl.Bounds()
		meta.LevelDimensions = append(meta.LevelDimensions, [2]int{lb.Dx(), lb.Dy()})
		meta.LevelDownsamples = append(meta.LevelDownsamples, float64(b.Dx())/float64(lb.Dx()))
	}
	return &MemoryPyramid{levels: levels, meta: meta}
}

// Metadata implements schemas.SlideReader.
func (p *MemoryPyramid) Metadata() schemas.PyramidMetadata { return p.meta }

// ReadRegion implements schemas.SlideReader. The region is level-relative.
func (p *MemoryPyramid) ReadRegion(ctx context.Context, region schemas.Region, level int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, &schemas.ReadError{Region: region, Level: level, Err: err}
	}
	if level < 0 || level >= len(p.levels) {
		return nil, &schemas.ReadError{Region: region, Level: level,
			Err: fmt.Errorf("level out of range, pyramid has %d levels", len(p.levels))}
	}
	lvl := p.levels[level]
	rect := image.Rect(region.X, region.Y, region.Right(), region.Bottom())
	if !rect.In(lvl.Bounds()) {
		return nil, &schemas.ReadError{Region: region, Level: level,
			Err: fmt.Errorf("region exceeds level dimensions %dx%d", lvl.Bounds().Dx(), lvl.Bounds().Dy())}
	}
	return lvl.SubImage(rect), nil
}
