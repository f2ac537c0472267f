// File: internal/cropper/errors.go
package cropper

import (
	"errors"
	"fmt"

	"github.com/slidescope/slidescope/api/schemas"
)

// ErrorCode classifies crop failures for structured reporting back to the
// model and the trajectory. A custom type keeps arbitrary strings out of
// positions expecting a code.
type ErrorCode string

const (
	ErrCodeInvalidQuality ErrorCode = "INVALID_JPEG_QUALITY"
	ErrCodeOutOfBounds    ErrorCode = "REGION_OUT_OF_BOUNDS"
	ErrCodeRegionTooLarge ErrorCode = "REGION_TOO_LARGE"
	ErrCodeReadFailure    ErrorCode = "SLIDE_READ_FAILURE"
	ErrCodeEncodeFailure  ErrorCode = "IMAGE_ENCODE_FAILURE"
)

// CropError is the single typed error the crop engine surfaces. Underlying
// causes (bounds validation, reader failures, encoder failures) are wrapped,
// never leaked as raw exceptions.
type CropError struct {
	Code   ErrorCode
	Region schemas.Region
	Err    error
}

func (e *CropError) Error() string {
	return fmt.Sprintf("crop %s failed [%s]: %v", e.Region, e.Code, e.Err)
}

func (e *CropError) Unwrap() error { return e.Err }

// AsCropError extracts a *CropError from an error chain, if present.
func AsCropError(err error) (*CropError, bool) {
	var ce *CropError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
