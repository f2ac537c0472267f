// File: api/schemas/geometry.go
package schemas

import "fmt"

// Region is a rectangle in absolute level-0 pixel coordinates.
// It is an immutable value type; operations that change a region return a new one.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Right returns the exclusive right edge of the region.
func (r Region) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge of the region.
func (r Region) Bottom() int { return r.Y + r.Height }

// Area returns the pixel area of the region at level 0.
// Computed in int64 so that gigapixel regions do not overflow on 32-bit builds.
func (r Region) Area() int64 { return int64(r.Width) * int64(r.Height) }

// LongSide returns the larger of width and height.
func (r Region) LongSide() int {
	if r.Width > r.Height {
		return r.Width
	}
	return r.Height
}

// IsPositive reports whether both dimensions are strictly positive.
func (r Region) IsPositive() bool { return r.Width > 0 && r.Height > 0 }

func (r Region) String() string {
	return fmt.Sprintf("(x=%d, y=%d, w=%d, h=%d)", r.X, r.Y, r.Width, r.Height)
}

// PyramidMetadata describes a multi-resolution slide pyramid as reported by
// the slide reader. Level 0 is full resolution; LevelDownsamples[i] is the
// ratio of level-0 resolution to level i's resolution.
//
// MPPX/MPPY (microns per pixel) are optional: many slide files carry no
// calibration, so consumers must check for nil before use.
type PyramidMetadata struct {
	Width            int        `json:"width"`
	Height           int        `json:"height"`
	LevelCount       int        `json:"level_count"`
	LevelDimensions  [][2]int   `json:"level_dimensions"`
	LevelDownsamples []float64  `json:"level_downsamples"`
	MPPX             *float64   `json:"mpp_x,omitempty"`
	MPPY             *float64   `json:"mpp_y,omitempty"`
}

// Bounds returns the full level-0 extent of the slide as a Region.
func (m PyramidMetadata) Bounds() Region {
	return Region{X: 0, Y: 0, Width: m.Width, Height: m.Height}
}
