// File: internal/geometry/validate.go
package geometry

import (
	"errors"
	"fmt"

	"github.com/slidescope/slidescope/api/schemas"
)

// BoundsError reports a region that fails strict validation against the
// slide bounds. It carries the offending region and bounds so recovery
// prompts can show the model exactly what it asked for.
type BoundsError struct {
	Region schemas.Region
	Bounds schemas.Region
	Reason string
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("region %s out of bounds %s: %s", e.Region, e.Bounds, e.Reason)
}

// IsBoundsError reports whether err is (or wraps) a BoundsError.
func IsBoundsError(err error) bool {
	var be *BoundsError
	return errors.As(err, &be)
}

// Validate checks a region strictly against the slide bounds. A region whose
// right or bottom edge exceeds the bounds is rejected, never truncated:
// silent clamping would let a buggy model action appear to succeed while
// actually cropping a different region than requested, corrupting the
// trajectory's evidentiary value. Clamp exists as a separate, explicitly
// invoked recovery primitive.
func Validate(r, bounds schemas.Region) error {
	switch {
	case r.Width <= 0 || r.Height <= 0:
		return &BoundsError{Region: r, Bounds: bounds,
			Reason: fmt.Sprintf("width and height must be positive, got w=%d h=%d", r.Width, r.Height)}
	case r.X < 0 || r.Y < 0:
		return &BoundsError{Region: r, Bounds: bounds,
			Reason: fmt.Sprintf("origin must be non-negative, got x=%d y=%d", r.X, r.Y)}
	case r.Right() > bounds.Right():
		return &BoundsError{Region: r, Bounds: bounds,
			Reason: fmt.Sprintf("right edge %d exceeds slide width %d", r.Right(), bounds.Right())}
	case r.Bottom() > bounds.Bottom():
		return &BoundsError{Region: r, Bounds: bounds,
			Reason: fmt.Sprintf("bottom edge %d exceeds slide height %d", r.Bottom(), bounds.Bottom())}
	}
	return nil
}

// Clamp returns the largest sub-region of r that fits inside bounds, with a
// minimum size of 1x1. It is a pure function and is never called from
// Validate; callers opt into it as an explicit recovery step.
func Clamp(r, bounds schemas.Region) schemas.Region {
	x := clampInt(r.X, bounds.X, bounds.Right()-1)
	y := clampInt(r.Y, bounds.Y, bounds.Bottom()-1)
	w := clampInt(r.Width, 1, bounds.Right()-x)
	h := clampInt(r.Height, 1, bounds.Bottom()-y)
	return schemas.Region{X: x, Y: y, Width: w, Height: h}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
