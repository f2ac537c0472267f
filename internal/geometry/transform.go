// File: internal/geometry/transform.go
package geometry

import "github.com/slidescope/slidescope/api/schemas"

// Level0ToLevel converts a level-0 pixel coordinate to a coordinate on a
// level with the given downsample factor. Truncation, not rounding, is the
// intended behavior: the resulting placement error is bounded by one
// downsample unit and keeps conversions monotonic.
func Level0ToLevel(v int, downsample float64) int {
	if downsample <= 0 {
		return v
	}
	return int(float64(v) / downsample)
}

// LevelToLevel0 converts a level-relative coordinate back to level 0.
// Round-tripping through Level0ToLevel differs from the input by at most
// one downsample unit.
func LevelToLevel0(v int, downsample float64) int {
	if downsample <= 0 {
		return v
	}
	return int(float64(v) * downsample)
}

// RegionToLevel maps a level-0 region onto a level with the given
// downsample. Dimensions are clamped to a minimum of 1 pixel so a valid
// level-0 region never degenerates to an empty read.
func RegionToLevel(r schemas.Region, downsample float64) schemas.Region {
	out := schemas.Region{
		X:      Level0ToLevel(r.X, downsample),
		Y:      Level0ToLevel(r.Y, downsample),
		Width:  Level0ToLevel(r.Width, downsample),
		Height: Level0ToLevel(r.Height, downsample),
	}
	if out.Width < 1 {
		out.Width = 1
	}
	if out.Height < 1 {
		out.Height = 1
	}
	return out
}
