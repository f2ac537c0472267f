// File: internal/pyramid/select.go
package pyramid

import (
	"math"

	"github.com/slidescope/slidescope/api/schemas"
)

// DefaultBias is the default oversampling bias. Values below 1.0 pull level
// selection toward finer (smaller-downsample) levels than the naive nearest
// match, letting the crop engine's resize do the final reduction for
// consistently sharper output at a small extra read cost.
const DefaultBias = 0.85

// SelectLevel picks the pyramid level to read a level-0 region from, given
// the desired output long side. The function is total: it never fails for
// any positive region and any valid metadata.
func SelectLevel(region schemas.Region, targetLongSide int, bias float64, meta schemas.PyramidMetadata) int {
	// Single-level pyramids have exactly one answer. Fast path with no
	// possibility of an out-of-range index.
	if meta.LevelCount <= 1 || len(meta.LevelDownsamples) <= 1 {
		return 0
	}

	if targetLongSide < 1 {
		targetLongSide = 1
	}
	if bias <= 0 {
		bias = DefaultBias
	}

	ideal := float64(region.LongSide()) / float64(targetLongSide)
	target := ideal * bias

	best := 0
	bestDist := math.Inf(1)
	for i, d := range meta.LevelDownsamples {
		dist := math.Abs(d - target)
		// Strict less keeps the earlier (finer) level on exact ties, because
		// downsample tables are ordered coarsest-last.
		if dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return best
}
